package esexec

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// ScriptWatcher watches an app's loaded file path on disk for
// replacement, surfacing it as a SYS_RELOAD control request the next
// time the scanner observes it. This supplements the core lifecycle
// with the detail spec.md section 6 describes but leaves unspecified:
// "the file path may have been replaced on disk since load" implies
// something notices the replacement.
type ScriptWatcher struct {
	watcher *fsnotify.Watcher
	reg     *Registry
	logger  Logger
	bump    func()
}

// NewScriptWatcher builds a watcher over reg. bump is called whenever a
// watched file changes, so it should increment the command counter the
// scanner's fast-skip path observes (see NewScanner's commandCtr
// parameter).
func NewScriptWatcher(reg *Registry, logger Logger, bump func()) (*ScriptWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = NopLogger{}
	}
	return &ScriptWatcher{watcher: w, reg: reg, logger: logger, bump: bump}, nil
}

// WatchApp adds the app's FileName to the watch set. Call this after
// AppCreate succeeds.
func (w *ScriptWatcher) WatchApp(slot int) error {
	w.reg.mu.Lock()
	path := w.reg.apps[slot].StartParams.FileName
	w.reg.mu.Unlock()
	if path == "" {
		return nil
	}
	return w.watcher.Add(path)
}

// Run processes filesystem events until ctx is canceled. On a write or
// create event (the common ways an on-disk image gets replaced) for a
// path matching a RUNNING app, that app's ControlReq is set to
// SYS_RELOAD; bump is invoked for every such event, whether or not an
// app matched.
func (w *ScriptWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleReplacement(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("app file watcher error", "error", err)
		}
	}
}

func (w *ScriptWatcher) handleReplacement(path string) {
	w.reg.mu.Lock()
	for i := range w.reg.apps {
		rec := &w.reg.apps[i]
		if rec.State == AppStateUndefined || rec.StartParams.FileName != path {
			continue
		}
		if rec.State == AppStateRunning {
			rec.ControlReq.Request = ControlRequestSysReload
		}
	}
	w.reg.mu.Unlock()

	if w.bump != nil {
		w.bump()
	}
	w.logger.Info("app file replaced on disk, reload requested", "path", path)
}

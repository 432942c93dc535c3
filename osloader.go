package esexec

import (
	"context"
	"fmt"
	"plugin"
	"sync"
)

// PluginLoader is a reference ModuleLoader built on the standard
// library's plugin package and goroutine-backed tasks. Module
// load/unload, symbol lookup, task creation, and object enumeration are
// explicitly out of scope for this package's core lifecycle semantics
// (spec.md section 1); PluginLoader exists so cmd/esexecd has a real,
// runnable default rather than requiring every deployment to bring its
// own. Production deployments with actual OS-level task/queue/
// semaphore primitives should supply their own ModuleLoader.
//
// Plugin unload is not supported by the Go runtime, so UnloadModule is
// a bookkeeping no-op: the shared object stays mapped for the process
// lifetime. This is logged, not hidden.
type PluginLoader struct {
	logger Logger

	mu       sync.Mutex
	modules  map[ModuleHandle]*plugin.Plugin
	nextMod  uint64
	symbols  map[Address]func(context.Context)
	nextAddr uint64
	tasks    map[TaskHandle]*pluginTask
	nextTask uint64
	objects  map[TaskHandle][]trackedObject
	nextObj  uint64
}

type pluginTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type trackedObject struct {
	id   ObjectID
	kind ObjectKind
}

// NewPluginLoader builds a PluginLoader. logger may be nil.
func NewPluginLoader(logger Logger) *PluginLoader {
	if logger == nil {
		logger = NopLogger{}
	}
	return &PluginLoader{
		logger:  logger,
		modules: make(map[ModuleHandle]*plugin.Plugin),
		symbols: make(map[Address]func(context.Context)),
		tasks:   make(map[TaskHandle]*pluginTask),
		objects: make(map[TaskHandle][]trackedObject),
	}
}

func (l *PluginLoader) LoadModule(_ context.Context, name, path string) (ModuleHandle, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open plugin %s: %w", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextMod++
	handle := ModuleHandle(l.nextMod)
	l.modules[handle] = p
	l.logger.Debug("module loaded", "name", name, "path", path, "handle", handle)
	return handle, nil
}

func (l *PluginLoader) UnloadModule(_ context.Context, handle ModuleHandle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.modules[handle]; !ok {
		return fmt.Errorf("unknown module handle %d", handle)
	}
	delete(l.modules, handle)
	l.logger.Debug("module handle released (image remains mapped, Go plugins cannot unload)", "handle", handle)
	return nil
}

// SymbolLookup resolves name against every currently loaded plugin and
// requires it to have the signature func(context.Context), the entry
// point convention PluginLoader-hosted apps must use. The returned
// Address is an opaque token into this loader's own symbol table, not
// a real memory address: PluginLoader never exposes the function value
// to the core, only CreateTask ever dereferences it.
func (l *PluginLoader) SymbolLookup(_ context.Context, name string) (Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var lastErr error
	for _, p := range l.modules {
		sym, err := p.Lookup(name)
		if err != nil {
			lastErr = err
			continue
		}
		fn, ok := sym.(func(context.Context))
		if !ok {
			lastErr = fmt.Errorf("symbol %s does not have signature func(context.Context)", name)
			continue
		}
		l.nextAddr++
		addr := Address(l.nextAddr)
		l.symbols[addr] = fn
		return addr, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("symbol %s not found: no modules loaded", name)
	}
	return 0, lastErr
}

func (l *PluginLoader) ModuleInfo(_ context.Context, handle ModuleHandle) (ModuleInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.modules[handle]; !ok {
		return ModuleInfo{}, fmt.Errorf("unknown module handle %d", handle)
	}
	// The plugin package does not expose segment addresses.
	return ModuleInfo{Valid: false}, nil
}

// CreateTask starts entry as a goroutine. entry must have been resolved
// through SymbolLookup, which has already checked that it is a
// func(context.Context) value; CreateTask looks it up in this loader's
// symbol table and calls it, the way the original loader performs an
// indirect call through a resolved function address.
func (l *PluginLoader) CreateTask(ctx context.Context, name string, entry Address, _, _ uint32) (TaskHandle, error) {
	l.mu.Lock()
	fn, ok := l.symbols[entry]
	l.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("entry point for task %s is not callable", name)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	l.mu.Lock()
	l.nextTask++
	handle := TaskHandle(l.nextTask)
	l.tasks[handle] = &pluginTask{cancel: cancel, done: done}
	l.mu.Unlock()

	go func() {
		defer close(done)
		fn(taskCtx)
	}()

	l.logger.Debug("task created", "name", name, "handle", handle)
	return handle, nil
}

func (l *PluginLoader) DeleteTask(_ context.Context, handle TaskHandle) error {
	l.mu.Lock()
	t, ok := l.tasks[handle]
	if ok {
		delete(l.tasks, handle)
		delete(l.objects, handle)
	}
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown task handle %d", handle)
	}
	t.cancel()
	<-t.done
	return nil
}

// TaskIndex converts a handle to a small stable integer by taking it
// modulo 4096; PluginLoader hands out monotonically increasing handles,
// so two handles share an index only after wraparound, which Registry
// handles per spec.md section 4.4 stage 6.
func (l *PluginLoader) TaskIndex(handle TaskHandle) int {
	const bound = 4096
	return int(uint64(handle) % bound)
}

func (l *PluginLoader) ForEachObject(_ context.Context, owner TaskHandle, fn func(ObjectID, ObjectKind)) error {
	l.mu.Lock()
	objs := append([]trackedObject(nil), l.objects[owner]...)
	l.mu.Unlock()

	for _, o := range objs {
		fn(o.id, o.kind)
	}
	return nil
}

func (l *PluginLoader) IdentifyObject(_ context.Context, id ObjectID) ObjectKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, objs := range l.objects {
		for _, o := range objs {
			if o.id == id {
				return o.kind
			}
		}
	}
	return ObjectKindUnknown
}

func (l *PluginLoader) DeleteObject(_ context.Context, id ObjectID, _ ObjectKind) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for owner, objs := range l.objects {
		for i, o := range objs {
			if o.id == id {
				l.objects[owner] = append(objs[:i], objs[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("unknown object id %d", id)
}

// TrackObject registers an OS-like object as owned by task, so a later
// CleanupTaskResources pass will enumerate and delete it. Entry points
// running under PluginLoader call this for any resource they want
// reclaimed automatically on teardown.
func (l *PluginLoader) TrackObject(task TaskHandle, kind ObjectKind) ObjectID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextObj++
	id := ObjectID(l.nextObj)
	l.objects[task] = append(l.objects[task], trackedObject{id: id, kind: kind})
	return id
}

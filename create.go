package esexec

import (
	"context"
	"fmt"
)

// Creator wires a Registry to a ModuleLoader and EventSink to implement
// AppCreate and LoadLibrary, the multi-stage-with-rollback construction
// paths. It also implements CleanUpApp/ProcessControlRequest (control.go,
// cleanup.go) since SYS_RESTART/SYS_RELOAD call back into AppCreate.
type Creator struct {
	reg    *Registry
	loader ModuleLoader
	events EventSink
	logger Logger

	maxAPIName int
	maxPathLen int
}

// CreatorOption customizes a Creator built by NewCreator.
type CreatorOption func(*Creator)

// WithLimits overrides the default MAX_API_NAME/MAX_PATH_LEN bounds
// AppCreate and LoadLibrary enforce against supplied names and paths.
func WithLimits(maxAPIName, maxPathLen int) CreatorOption {
	return func(c *Creator) {
		c.maxAPIName = maxAPIName
		c.maxPathLen = maxPathLen
	}
}

// NewCreator builds a Creator over reg and loader. events and logger may
// be nil-safe zero values (NopSink, NopLogger) for tests that don't care
// about notifications. Name/path length limits default to
// DefaultConfig's MaxAPIName/MaxPathLen; pass WithLimits to match a
// loaded Config instead.
func NewCreator(reg *Registry, loader ModuleLoader, events EventSink, logger Logger, opts ...CreatorOption) *Creator {
	if events == nil {
		events = NopSink()
	}
	if logger == nil {
		logger = NopLogger{}
	}
	defaults := DefaultConfig()
	c := &Creator{
		reg:        reg,
		loader:     loader,
		events:     events,
		logger:     logger,
		maxAPIName: defaults.MaxAPIName,
		maxPathLen: defaults.MaxPathLen,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// checkLength rejects a name/path field over its configured limit, per
// spec.md section 6: "names are bounded by MAX_API_NAME bytes, paths by
// MAX_PATH_LEN. Exceeding any limit causes the creation to fail with
// BAD_ARGUMENT", matching CFE_ES_LoadLibrary's own StringLength check
// against LibTable[0].LibName before the slot table is touched.
func checkLength(field, value string, limit int) error {
	if len(value) >= limit {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrBadArgument, field, limit)
	}
	return nil
}

// AppCreateParams names the caller-supplied half of StartParams.
type AppCreateParams struct {
	FileName        string
	EntryPointName  string
	Name            string
	Priority        uint32
	StackSize       uint32
	ExceptionAction ExceptionAction
}

// AppCreate allocates a slot, loads the module, resolves the entry
// point, and creates the primary task, rolling back everything already
// done on any failed stage. On success the slot transitions to RUNNING
// and is returned.
//
// Per the Open Question decision in this package's SPEC_FULL.md section
// 5.1, a task-create failure also unloads the just-loaded module before
// releasing the slot: the module image is never left orphaned, stricter
// than leaving it for post-mortem inspection.
func (c *Creator) AppCreate(ctx context.Context, p AppCreateParams) (int, error) {
	if p.Name == "" || p.FileName == "" || p.EntryPointName == "" {
		return -1, fmt.Errorf("%w: app create requires name, file, and entry point", ErrBadArgument)
	}
	if err := checkLength("name", p.Name, c.maxAPIName); err != nil {
		return -1, err
	}
	if err := checkLength("entry point name", p.EntryPointName, c.maxAPIName); err != nil {
		return -1, err
	}
	if err := checkLength("file name", p.FileName, c.maxPathLen); err != nil {
		return -1, err
	}

	c.reg.mu.Lock()
	slot, err := c.reg.reserveAppSlot()
	c.reg.mu.Unlock()
	if err != nil {
		c.events.Event(EventAppCreateErr, SeverityError, "app create failed for %s: %v", p.Name, err)
		return -1, fmt.Errorf("%w: %v", ErrAppCreate, err)
	}

	handle, loadErr := c.loader.LoadModule(ctx, p.Name, p.FileName)
	if loadErr != nil {
		c.reg.mu.Lock()
		c.reg.releaseAppSlot(slot)
		c.reg.mu.Unlock()
		c.events.Event(EventAppCreateErr, SeverityError, "module load failed for %s: %v", p.Name, loadErr)
		return -1, fmt.Errorf("%w: module load: %v", ErrAppCreate, loadErr)
	}

	addr, symErr := c.loader.SymbolLookup(ctx, p.EntryPointName)
	if symErr != nil {
		_ = c.loader.UnloadModule(ctx, handle)
		c.reg.mu.Lock()
		c.reg.releaseAppSlot(slot)
		c.reg.mu.Unlock()
		c.events.Event(EventAppCreateErr, SeverityError, "symbol lookup failed for %s: %v", p.EntryPointName, symErr)
		return -1, fmt.Errorf("%w: symbol lookup: %v", ErrAppCreate, symErr)
	}

	// A loader unable to report module addresses (e.g. a statically
	// linked module) returns a zero-value ModuleInfo with Valid false
	// rather than an error; an actual error is logged but otherwise
	// non-fatal, since the task itself was already resolvable.
	modInfo, infoErr := c.loader.ModuleInfo(ctx, handle)
	if infoErr != nil {
		c.logger.Warn("module info unavailable", "app", p.Name, "error", infoErr)
		modInfo = ModuleInfo{}
	}

	c.reg.mu.Lock()
	c.reg.apps[slot].StartParams = StartParams{
		Name:            p.Name,
		EntryPointName:  p.EntryPointName,
		FileName:        p.FileName,
		StackSize:       p.StackSize,
		Priority:        p.Priority,
		ExceptionAction: p.ExceptionAction,
		StartAddress:    addr,
		ModuleHandle:    handle,
	}
	c.reg.apps[slot].ModuleInfo = modInfo
	c.reg.apps[slot].ControlReq = ControlReq{Request: ControlRequestAppRun}
	c.reg.mu.Unlock()

	taskName := p.Name
	taskHandle, taskErr := c.loader.CreateTask(ctx, taskName, addr, p.StackSize, p.Priority)
	if taskErr != nil {
		_ = c.loader.UnloadModule(ctx, handle)
		c.reg.mu.Lock()
		c.reg.releaseAppSlot(slot)
		c.reg.mu.Unlock()
		c.events.Event(EventAppCreateErr, SeverityError, "task create failed for %s: %v", p.Name, taskErr)
		return -1, fmt.Errorf("%w: task create: %v", ErrAppCreate, taskErr)
	}

	idx := c.loader.TaskIndex(taskHandle)
	c.reg.mu.Lock()
	collided, prevName := c.reg.reserveTaskSlot(idx, slot, taskHandle, taskName)
	if collided {
		c.logger.Warn("task index collision on registration, overwriting stale record",
			"index", idx, "previous_name", prevName, "new_name", taskName)
	}
	c.reg.apps[slot].Type = AppTypeExternal
	c.reg.apps[slot].State = AppStateRunning
	c.reg.apps[slot].TaskInfo = TaskInfo{MainTaskHandle: taskHandle, MainTaskName: taskName}
	c.reg.counters.RegisteredTasks++
	c.reg.counters.RegisteredExternalApps++
	c.reg.mu.Unlock()

	c.logger.Info("app created", "slot", slot, "name", p.Name)
	return slot, nil
}

// LoadLibrary reserves a library slot (or returns the existing one for
// a duplicate name), optionally loads a module and resolves + invokes
// an init entry point, and rolls back the module load and slot
// reservation on any failure. All failure paths funnel through the
// same cleanup so there is exactly one place that frees resources.
func (c *Creator) LoadLibrary(ctx context.Context, p AppCreateParams, initFn func(ctx context.Context, handle ModuleHandle, slot int) error) (int, error) {
	if p.Name == "" {
		return -1, fmt.Errorf("%w: library load requires a name", ErrBadArgument)
	}
	if err := checkLength("name", p.Name, c.maxAPIName); err != nil {
		return -1, err
	}
	if p.FileName != "" {
		if err := checkLength("file name", p.FileName, c.maxPathLen); err != nil {
			return -1, err
		}
	}
	if p.EntryPointName != "" && p.EntryPointName != "NULL" {
		if err := checkLength("entry point name", p.EntryPointName, c.maxAPIName); err != nil {
			return -1, err
		}
	}

	c.reg.mu.Lock()
	slot, err := c.reg.reserveLibSlot(p.Name)
	c.reg.mu.Unlock()
	if err == ErrAlreadyLoaded {
		return slot, ErrAlreadyLoaded
	}
	if err != nil {
		c.events.Event(EventLoadLibErr, SeverityError, "library load failed for %s: %v", p.Name, err)
		return -1, fmt.Errorf("%w: %v", ErrLoadLib, err)
	}

	var handle ModuleHandle
	var moduleLoaded bool
	var loadErr error

	if p.FileName != "" {
		handle, loadErr = c.loader.LoadModule(ctx, p.Name, p.FileName)
		if loadErr == nil {
			moduleLoaded = true
		}
	}

	var hasEntry bool
	if loadErr == nil && p.EntryPointName != "" && p.EntryPointName != "NULL" {
		_, symErr := c.loader.SymbolLookup(ctx, p.EntryPointName)
		if symErr != nil {
			loadErr = symErr
		} else {
			hasEntry = true
		}
	}

	if loadErr == nil && hasEntry && initFn != nil {
		if initErr := initFn(ctx, handle, slot); initErr != nil {
			loadErr = initErr
		}
	}

	if loadErr != nil {
		if moduleLoaded {
			_ = c.loader.UnloadModule(ctx, handle)
		}
		c.reg.mu.Lock()
		c.reg.releaseLibSlot(slot)
		c.reg.mu.Unlock()
		c.events.Event(EventLoadLibErr, SeverityError, "library load failed for %s: %v", p.Name, loadErr)
		return -1, fmt.Errorf("%w: %v", ErrLoadLib, loadErr)
	}

	c.reg.mu.Lock()
	c.reg.libs[slot].ModuleHandle = handle
	c.reg.counters.RegisteredLibs++
	c.reg.mu.Unlock()

	c.logger.Info("library loaded", "slot", slot, "name", p.Name)
	return slot, nil
}

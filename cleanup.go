package esexec

import "context"

// CleanupHook is an external per-app teardown callback (Tables,
// Software Bus, Time, Events in the original system). Hooks are opaque
// to this package: CleanUpApp invokes each one outside the global lock
// and folds its error into the worst-observed status, but never
// inspects what the hook actually did.
type CleanupHook func(ctx context.Context, appSlot int) error

// TableCleaner, BusCleaner, TimeCleaner, and EventCleaner name the four
// per-app cleanup collaborators the original system invokes during
// teardown (Tables, Software Bus, Time, Events). This package only
// consumes them as CleanupHook values; no implementation lives here,
// matching spec.md's "invoked as opaque callbacks during teardown"
// scoping.
type (
	TableCleaner CleanupHook
	BusCleaner   CleanupHook
	TimeCleaner  CleanupHook
	EventCleaner CleanupHook
)

// StandardCleanupHooks orders the four collaborators the way
// CleanUpApp invokes them in the original system.
func StandardCleanupHooks(tables TableCleaner, bus BusCleaner, tm TimeCleaner, events EventCleaner) []CleanupHook {
	return []CleanupHook{CleanupHook(tables), CleanupHook(bus), CleanupHook(tm), CleanupHook(events)}
}

// CleanUpApp tears down app_slot without external cleanup hooks (see
// CleanUpAppWithHooks): every child task's resources, then the primary
// task's resources, then (for EXTERNAL apps) the module image itself. Cleanup never aborts partway
// through; every stage runs and the worst status observed is returned.
func (c *Creator) CleanUpApp(ctx context.Context, slot int) error {
	return c.cleanUpApp(ctx, slot, nil)
}

// CleanUpAppWithHooks is CleanUpApp plus external per-app cleanup hooks,
// invoked outside the global lock before any registry state changes.
func (c *Creator) CleanUpAppWithHooks(ctx context.Context, slot int, hooks []CleanupHook) error {
	return c.cleanUpApp(ctx, slot, hooks)
}

func (c *Creator) cleanUpApp(ctx context.Context, slot int, hooks []CleanupHook) error {
	var worst error
	for _, hook := range hooks {
		if err := hook(ctx, slot); err != nil && worst == nil {
			worst = err
		}
	}

	c.reg.mu.Lock()
	if slot < 0 || slot >= len(c.reg.apps) || c.reg.apps[slot].State == AppStateUndefined {
		c.reg.mu.Unlock()
		return ErrSlotUndefined
	}
	mainHandle := c.reg.apps[slot].TaskInfo.MainTaskHandle
	appType := c.reg.apps[slot].Type
	moduleHandle := c.reg.apps[slot].StartParams.ModuleHandle

	var children []TaskHandle
	for i := range c.reg.tasks {
		if c.reg.tasks[i].InUse && c.reg.tasks[i].OwningAppSlot == slot && c.reg.tasks[i].TaskHandle != mainHandle {
			children = append(children, c.reg.tasks[i].TaskHandle)
		}
	}
	c.reg.mu.Unlock()

	for _, child := range children {
		if err := c.CleanupTaskResources(ctx, child); err != nil && worst == nil {
			worst = err
		}
	}
	if err := c.CleanupTaskResources(ctx, mainHandle); err != nil && worst == nil {
		worst = err
	}

	if appType == AppTypeExternal {
		if err := c.loader.UnloadModule(ctx, moduleHandle); err != nil {
			c.logger.Error("module unload failed during app cleanup", "slot", slot, "error", err)
		}
	}

	c.reg.mu.Lock()
	if appType == AppTypeExternal {
		c.reg.counters.RegisteredExternalApps--
	}
	c.reg.apps[slot] = AppRecord{}
	c.reg.mu.Unlock()

	return worst
}

// CleanupTaskResources convergently reclaims every OS object task owns,
// then deletes the task itself and invalidates its TaskRecord. It
// terminates when a pass finds nothing left, or when a pass makes no
// forward progress (ErrorFlag), preventing an infinite loop when the
// underlying loader reports a stuck object.
func (c *Creator) CleanupTaskResources(ctx context.Context, task TaskHandle) error {
	var (
		prev      = -1
		residual  int
		kindErr   error
		errorFlag bool
	)

	for {
		var found, deleted int
		var passErr error

		enumErr := c.loader.ForEachObject(ctx, task, func(id ObjectID, kind ObjectKind) {
			found++
			if kind == ObjectKindTask && id == ObjectID(task) {
				// the task itself is deleted after the loop, not here.
				return
			}
			if err := c.loader.DeleteObject(ctx, id, kind); err != nil {
				if passErr == nil {
					passErr = mapObjectDeleteError(kind)
				}
				return
			}
			deleted++
		})
		if passErr != nil && kindErr == nil {
			kindErr = passErr
		}
		residual = found
		if enumErr != nil {
			break
		}

		if found == 0 {
			break
		}
		if deleted == 0 || (prev != -1 && found >= prev) {
			errorFlag = true
		}
		prev = found
		if errorFlag {
			break
		}
	}

	taskDeleteErr := c.loader.DeleteTask(ctx, task)
	if taskDeleteErr != nil {
		c.logger.Error("task delete failed during cleanup", "task", task, "error", taskDeleteErr)
	}

	if kindErr != nil {
		c.logger.Error("object delete failed during task cleanup", "task", task, "error", kindErr)
	}

	idx := c.loader.TaskIndex(task)
	c.reg.mu.Lock()
	if idx >= 0 && idx < len(c.reg.tasks) {
		c.reg.releaseTaskSlot(idx)
	}
	c.reg.counters.RegisteredTasks--
	c.reg.mu.Unlock()

	// Task-delete failure is the most severe outcome and always wins.
	// Otherwise a residual leak (objects still Found after the loop
	// exited early) is reported as a cleanup error even when the first
	// failing delete was of a more specific kind; the kind-specific
	// status is still logged above for diagnosis.
	switch {
	case taskDeleteErr != nil:
		return ErrTaskDelete
	case residual > 0:
		return ErrAppCleanup
	default:
		return kindErr
	}
}

// mapObjectDeleteError maps the kind of object whose delete failed to
// this package's error taxonomy.
func mapObjectDeleteError(kind ObjectKind) error {
	switch kind {
	case ObjectKindTask:
		return ErrChildTaskDelete
	case ObjectKindQueue:
		return ErrQueueDelete
	case ObjectKindBinSem:
		return ErrBinSemDelete
	case ObjectKindCountSem:
		return ErrCountSemDelete
	case ObjectKindMutex:
		return ErrMutexDelete
	case ObjectKindTimer:
		return ErrTimerDelete
	default:
		return ErrAppCleanup
	}
}

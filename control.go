package esexec

import "context"

// ProcessControlRequest dispatches the expired control request for
// app_slot. It is called by the scanner with the lock already
// released, and takes the lock itself only for the brief windows it
// needs.
//
// SYS_EXCEPTION and any value outside the known enum are rewritten to
// SYS_DELETE on first observation and returned immediately without
// running cleanup this tick, matching the known-bug mitigation against
// event storms (spec.md section 4.5, decision recorded in this
// package's SPEC_FULL.md section 5.3).
func (c *Creator) ProcessControlRequest(ctx context.Context, slot int) error {
	c.reg.mu.Lock()
	if slot < 0 || slot >= len(c.reg.apps) {
		c.reg.mu.Unlock()
		return ErrSlotNotFound
	}
	rec := c.reg.apps[slot]
	c.reg.mu.Unlock()

	if rec.State == AppStateUndefined {
		return ErrSlotUndefined
	}

	req := rec.ControlReq.Request
	if req == ControlRequestSysException || !knownControlRequest(req) {
		c.events.Event(EventPCRErr1, SeverityError, "app %s raised control request %d, coercing to delete", rec.StartParams.Name, req)
		c.reg.mu.Lock()
		c.reg.apps[slot].ControlReq.Request = ControlRequestSysDelete
		c.reg.mu.Unlock()
		return nil
	}

	snapshot := rec.StartParams

	switch req {
	case ControlRequestAppExit:
		status := c.CleanUpApp(ctx, slot)
		c.events.Event(EventExitAppInf, SeverityInfo, "app %s exited", snapshot.Name)
		return status

	case ControlRequestAppError:
		status := c.CleanUpApp(ctx, slot)
		c.events.Event(EventErrExitAppInf, SeverityInfo, "app %s exited on error", snapshot.Name)
		return status

	case ControlRequestSysDelete:
		status := c.CleanUpApp(ctx, slot)
		c.events.Event(EventStopInf, SeverityInfo, "app %s stopped", snapshot.Name)
		return status

	case ControlRequestSysRestart:
		if err := c.CleanUpApp(ctx, slot); err != nil {
			c.events.Event(EventRestartAppErr, SeverityError, "app %s cleanup failed during restart: %v", snapshot.Name, err)
		}
		if _, err := c.recreateFromSnapshot(ctx, snapshot); err != nil {
			c.events.Event(EventRestartAppErr, SeverityError, "app %s restart failed: %v", snapshot.Name, err)
			return err
		}
		c.events.Event(EventRestartAppInf, SeverityInfo, "app %s restarted", snapshot.Name)
		return nil

	case ControlRequestSysReload:
		if err := c.CleanUpApp(ctx, slot); err != nil {
			c.events.Event(EventReloadAppErr, SeverityError, "app %s cleanup failed during reload: %v", snapshot.Name, err)
		}
		if _, err := c.recreateFromSnapshot(ctx, snapshot); err != nil {
			c.events.Event(EventReloadAppErr, SeverityError, "app %s reload failed: %v", snapshot.Name, err)
			return err
		}
		c.events.Event(EventReloadAppInf, SeverityInfo, "app %s reloaded", snapshot.Name)
		return nil

	default:
		// Only APP_RUN reaches here (SYS_EXCEPTION and unknown values
		// were handled above); there is nothing to dispatch.
		return nil
	}
}

// recreateFromSnapshot re-runs AppCreate with the StartParams saved
// before teardown, used by SYS_RESTART and SYS_RELOAD. Reload uses the
// same path as restart because the file on disk may have been replaced
// since the original load; AppCreate always re-reads it.
func (c *Creator) recreateFromSnapshot(ctx context.Context, snapshot StartParams) (int, error) {
	return c.AppCreate(ctx, AppCreateParams{
		FileName:        snapshot.FileName,
		EntryPointName:  snapshot.EntryPointName,
		Name:            snapshot.Name,
		Priority:        snapshot.Priority,
		StackSize:       snapshot.StackSize,
		ExceptionAction: snapshot.ExceptionAction,
	})
}

package esexec

import (
	"sync"
)

// Registry holds the three fixed-capacity slotted tables this package
// manages: applications, libraries, and OS tasks. A single mutex guards
// all three tables, matching the original executive's one-lock-for-all
// discipline: every operation that touches slot state takes the lock,
// does O(1)-ish bookkeeping, and releases it before calling out to a
// ModuleLoader, which may block.
//
// Callers must never hold Registry's lock across a ModuleLoader call.
// AppCreate, LoadLibrary, ProcessControlRequest, and CleanUpApp all
// follow a take-lock / release-lock / call-loader / take-lock pattern
// for exactly this reason.
type Registry struct {
	mu sync.Mutex

	apps  []AppRecord
	libs  []LibRecord
	tasks []TaskRecord

	counters     Counters
	commandCount uint32
}

// NewRegistry builds a Registry with the given fixed table capacities.
// Capacities are immutable for the life of the Registry, matching the
// original executive's compile-time-sized tables.
func NewRegistry(maxApps, maxLibs, maxTasks int) *Registry {
	return &Registry{
		apps:  make([]AppRecord, maxApps),
		libs:  make([]LibRecord, maxLibs),
		tasks: make([]TaskRecord, maxTasks),
	}
}

// reserveAppSlot finds the first UNDEFINED app slot, marks it
// EARLY_INIT, and returns its index. Callers must hold mu.
func (r *Registry) reserveAppSlot() (int, error) {
	for i := range r.apps {
		if r.apps[i].State == AppStateUndefined {
			r.apps[i] = AppRecord{State: AppStateEarlyInit}
			return i, nil
		}
	}
	return -1, ErrNoFreeSlot
}

// releaseAppSlot resets slot back to UNDEFINED. Callers must hold mu.
func (r *Registry) releaseAppSlot(slot int) {
	r.apps[slot] = AppRecord{}
}

// reserveLibSlot finds a free library slot. A duplicate name returns the
// existing slot together with ErrAlreadyLoaded. Callers must hold mu.
func (r *Registry) reserveLibSlot(name string) (int, error) {
	for i := range r.libs {
		if r.libs[i].InUse && r.libs[i].Name == name {
			return i, ErrAlreadyLoaded
		}
	}
	for i := range r.libs {
		if !r.libs[i].InUse {
			r.libs[i] = LibRecord{InUse: true, Name: name}
			return i, nil
		}
	}
	return -1, ErrNoFreeSlot
}

func (r *Registry) releaseLibSlot(slot int) {
	r.libs[slot] = LibRecord{}
}

// reserveTaskSlot records a newly created OS task against owningAppSlot
// at the index the ModuleLoader assigned it. Collision (an already
// in-use slot, meaning the loader reused an index this package still
// believes is occupied) is not treated as fatal: the new record
// overwrites the old one, but a warning-level log line is expected from
// the caller, which has the names needed to make the message useful.
func (r *Registry) reserveTaskSlot(idx int, owningAppSlot int, handle TaskHandle, name string) (collided bool, previousName string) {
	prev := r.tasks[idx]
	r.tasks[idx] = TaskRecord{
		InUse:         true,
		OwningAppSlot: owningAppSlot,
		TaskHandle:    handle,
		Name:          name,
	}
	return prev.InUse, prev.Name
}

func (r *Registry) releaseTaskSlot(idx int) {
	r.tasks[idx] = TaskRecord{}
}

// AppInfo returns a point-in-time snapshot of the named app, or
// ErrSlotNotFound if no slot holds that name. Supplements the core
// lifecycle with the read-only query surface spec.md's supplemented
// features call for (grounded on CFE_ES_GetAppInfoInternal).
func (r *Registry) AppInfo(name string) (AppInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.apps {
		rec := &r.apps[i]
		if rec.State == AppStateUndefined || rec.StartParams.Name != name {
			continue
		}
		return r.snapshotAppInfo(i), nil
	}
	return AppInfo{}, ErrSlotNotFound
}

// AppInfoBySlot is the slot-indexed counterpart to AppInfo.
func (r *Registry) AppInfoBySlot(slot int) (AppInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot < 0 || slot >= len(r.apps) {
		return AppInfo{}, ErrSlotNotFound
	}
	if r.apps[slot].State == AppStateUndefined {
		return AppInfo{}, ErrSlotUndefined
	}
	return r.snapshotAppInfo(slot), nil
}

// ListApps returns a snapshot of every non-UNDEFINED app slot, ordered
// by slot index.
func (r *Registry) ListApps() []AppInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]AppInfo, 0, len(r.apps))
	for i := range r.apps {
		if r.apps[i].State == AppStateUndefined {
			continue
		}
		out = append(out, r.snapshotAppInfo(i))
	}
	return out
}

// snapshotAppInfo builds an AppInfo for slot. Callers must hold mu.
func (r *Registry) snapshotAppInfo(slot int) AppInfo {
	rec := &r.apps[slot]
	numChildren := 0
	for i := range r.tasks {
		if r.tasks[i].InUse && r.tasks[i].OwningAppSlot == slot && r.tasks[i].TaskHandle != rec.TaskInfo.MainTaskHandle {
			numChildren++
		}
	}
	return AppInfo{
		Slot:             slot,
		Name:             rec.StartParams.Name,
		Type:             rec.Type,
		State:            rec.State,
		EntryPoint:       rec.StartParams.EntryPointName,
		FileName:         rec.StartParams.FileName,
		ModuleHandle:     rec.StartParams.ModuleHandle,
		StackSize:        rec.StartParams.StackSize,
		Priority:         rec.StartParams.Priority,
		ExceptionAction:  rec.StartParams.ExceptionAction,
		StartAddress:     rec.StartParams.StartAddress,
		MainTaskHandle:   rec.TaskInfo.MainTaskHandle,
		MainTaskName:     rec.TaskInfo.MainTaskName,
		NumChildTasks:    numChildren,
		ExecutionCounter: r.mainTaskExecutionCounter(slot),
		AddressesValid:   rec.ModuleInfo.Valid,
		CodeAddress:      rec.ModuleInfo.CodeAddress,
		CodeSize:         rec.ModuleInfo.CodeSize,
		DataAddress:      rec.ModuleInfo.DataAddress,
		DataSize:         rec.ModuleInfo.DataSize,
		BSSAddress:       rec.ModuleInfo.BSSAddress,
		BSSSize:          rec.ModuleInfo.BSSSize,
	}
}

// mainTaskExecutionCounter looks up the main task's execution counter.
// Callers must hold mu.
func (r *Registry) mainTaskExecutionCounter(slot int) uint32 {
	handle := r.apps[slot].TaskInfo.MainTaskHandle
	for i := range r.tasks {
		if r.tasks[i].InUse && r.tasks[i].TaskHandle == handle {
			return r.tasks[i].ExecutionCounter
		}
	}
	return 0
}

// Counters returns a snapshot of the registration counts.
func (r *Registry) Counters() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

// CommandCount returns the current value of the monotonic command
// counter external control-request writers bump via SetControlRequest.
// The scanner's fast-skip path (spec.md section 4.6 step 1) compares
// this against its own last-observed value to decide whether a full
// scan is warranted.
func (r *Registry) CommandCount() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commandCount
}

// SetControlRequest writes req into the ControlReq of the app in slot and
// bumps the command counter, establishing the happens-before edge
// spec.md section 5 describes: any update preceding a counter bump is
// observed on the scanner's next pass. It is the only sanctioned way
// for an external command processor to mutate ControlReq.
func (r *Registry) SetControlRequest(slot int, req ControlRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot < 0 || slot >= len(r.apps) {
		return ErrSlotNotFound
	}
	if r.apps[slot].State == AppStateUndefined {
		return ErrSlotUndefined
	}
	r.apps[slot].ControlReq.Request = req
	r.commandCount++
	return nil
}

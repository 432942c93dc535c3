package esexec

import "errors"

// Error taxonomy. These are kinds, not per-call-site wrapped errors;
// callers wrap them with fmt.Errorf("...: %w", ...) when more context is
// useful. ErrAlreadyLoaded is informational, not a failure.
var (
	// Creation errors
	ErrAppCreate   = errors.New("app create failed")
	ErrLoadLib     = errors.New("load library failed")
	ErrBadArgument = errors.New("bad argument")

	// Teardown / resource-reclaim errors
	ErrAppCleanup      = errors.New("one or more app resources could not be cleaned up")
	ErrTaskDelete      = errors.New("primary task delete failed")
	ErrChildTaskDelete = errors.New("child task delete failed")
	ErrQueueDelete     = errors.New("queue delete failed")
	ErrBinSemDelete    = errors.New("binary semaphore delete failed")
	ErrCountSemDelete  = errors.New("counting semaphore delete failed")
	ErrMutexDelete     = errors.New("mutex delete failed")
	ErrTimerDelete     = errors.New("timer delete failed")

	// Registry errors
	ErrNoFreeSlot    = errors.New("no free slot available")
	ErrSlotNotFound  = errors.New("slot not found")
	ErrSlotUndefined = errors.New("slot is undefined")

	// Informational, not an error
	ErrAlreadyLoaded = errors.New("library already loaded")
)

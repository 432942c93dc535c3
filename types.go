package esexec

import "time"

// AppState is the lifecycle state of an AppRecord. UNDEFINED means the
// slot is free.
type AppState int

const (
	AppStateUndefined AppState = iota
	AppStateEarlyInit
	AppStateLateInit
	AppStateRunning
	AppStateWaiting
	AppStateStopped
)

// String renders the state for logging.
func (s AppState) String() string {
	switch s {
	case AppStateUndefined:
		return "UNDEFINED"
	case AppStateEarlyInit:
		return "EARLY_INIT"
	case AppStateLateInit:
		return "LATE_INIT"
	case AppStateRunning:
		return "RUNNING"
	case AppStateWaiting:
		return "WAITING"
	case AppStateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// AppType distinguishes apps the core itself owns from externally loaded
// applications. Only EXTERNAL apps are manipulated by this package.
type AppType int

const (
	AppTypeCore AppType = iota
	AppTypeExternal
)

// ExceptionAction is the policy taken when an app raises SYS_EXCEPTION.
type ExceptionAction uint32

const (
	ExceptionActionRestartApp ExceptionAction = iota
	ExceptionActionProcRestart
)

// ControlRequest is the action an external command processor has asked
// for. Any value greater than APP_RUN drives a RUNNING app to WAITING.
type ControlRequest int32

const (
	ControlRequestAppRun ControlRequest = iota
	ControlRequestAppExit
	ControlRequestAppError
	ControlRequestSysDelete
	ControlRequestSysRestart
	ControlRequestSysReload
	ControlRequestSysException
)

// knownControlRequest reports whether req is one of the enumerated values.
// Anything else is coerced to ControlRequestSysDelete by ProcessControlRequest,
// per the known-bug mitigation in spec.md section 4.5.
func knownControlRequest(req ControlRequest) bool {
	return req >= ControlRequestAppRun && req <= ControlRequestSysException
}

// StartParams is the immutable-after-creation tuple an app was created
// with. It is retained verbatim so SYS_RESTART/SYS_RELOAD can recreate
// the app after teardown.
type StartParams struct {
	Name            string
	EntryPointName  string
	FileName        string
	StackSize       uint32
	Priority        uint32
	ExceptionAction ExceptionAction
	StartAddress    Address
	ModuleHandle    ModuleHandle
}

// TaskInfo names the app's primary task.
type TaskInfo struct {
	MainTaskHandle TaskHandle
	MainTaskName   string
}

// ControlReq is the mutable control-plane field external command
// processors write and the scanner observes.
type ControlReq struct {
	Request     ControlRequest
	TimerMillis uint32
}

// AppRecord is one slot of the application table.
type AppRecord struct {
	State       AppState
	Type        AppType
	StartParams StartParams
	TaskInfo    TaskInfo
	ControlReq  ControlReq
	ModuleInfo  ModuleInfo
}

// LibRecord is one slot of the library table.
type LibRecord struct {
	InUse        bool
	Name         string
	ModuleHandle ModuleHandle
}

// TaskRecord is one slot of the OS-task-index table.
type TaskRecord struct {
	InUse            bool
	OwningAppSlot    int
	TaskHandle       TaskHandle
	Name             string
	ExecutionCounter uint32
}

// ScannerState is the process-wide state the background scanner
// maintains between ticks.
type ScannerState struct {
	PendingAppStateChanges uint32
	BackgroundTimer        time.Duration
	LastScanCommandCount   uint32
}

// Counters are the process-wide registration counts mirrored by the
// registry's tables.
type Counters struct {
	RegisteredExternalApps uint32
	RegisteredLibs         uint32
	RegisteredTasks        uint32
}

// AppInfo is a point-in-time snapshot of one app's record, suitable for
// returning to a caller outside the lock. It mirrors the query surface
// CFE_ES_GetAppInfoInternal exposes.
type AppInfo struct {
	Slot             int
	Name             string
	Type             AppType
	State            AppState
	EntryPoint       string
	FileName         string
	ModuleHandle     ModuleHandle
	StackSize        uint32
	Priority         uint32
	ExceptionAction  ExceptionAction
	StartAddress     Address
	MainTaskHandle   TaskHandle
	MainTaskName     string
	NumChildTasks    int
	ExecutionCounter uint32
	AddressesValid   bool
	CodeAddress      uint64
	CodeSize         uint64
	DataAddress      uint64
	DataSize         uint64
	BSSAddress       uint64
	BSSSize          uint64
}

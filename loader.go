package esexec

import "context"

// Address is an opaque resolved symbol address. The core never
// dereferences it directly; it is handed to ModuleLoader.CreateTask,
// which performs the indirect call on its own stack.
type Address uintptr

// ModuleHandle is an opaque token identifying a loaded module image.
// It is required to unload the module or query its info.
type ModuleHandle uint64

// TaskHandle is an opaque token identifying an OS task. It is
// convertible to a TaskRecord array index via ModuleLoader.TaskIndex.
type TaskHandle uint64

// ObjectID is an opaque token for any OS-owned object (task, queue,
// semaphore, mutex, timer, stream, module).
type ObjectID uint64

// ObjectKind enumerates the kinds of OS object CleanupTaskResources can
// encounter while enumerating a task's owned objects.
type ObjectKind int

const (
	ObjectKindUnknown ObjectKind = iota
	ObjectKindTask
	ObjectKindQueue
	ObjectKindBinSem
	ObjectKindCountSem
	ObjectKindMutex
	ObjectKindTimer
	ObjectKindStream
	ObjectKindModule
)

// ModuleInfo describes a loaded module's memory layout, as reported by
// the OS loader. Valid is false when the underlying platform cannot
// report addresses (e.g. statically-linked modules).
type ModuleInfo struct {
	CodeAddress uint64
	CodeSize    uint64
	DataAddress uint64
	DataSize    uint64
	BSSAddress  uint64
	BSSSize     uint64
	Valid       bool
}

// ModuleLoader is the capability set this package depends on rather
// than implements: module load/unload, symbol lookup, module info,
// task creation, and OS-object enumeration/deletion. Symbol relocation
// is performed entirely inside this port; the core never touches
// machine code.
//
// All methods may block and must never be called while holding the
// registry's global lock (see Registry's doc comment).
type ModuleLoader interface {
	// LoadModule loads the binary at path into memory, registering it
	// under name, and returns an opaque handle.
	LoadModule(ctx context.Context, name, path string) (ModuleHandle, error)

	// UnloadModule releases a previously loaded module.
	UnloadModule(ctx context.Context, handle ModuleHandle) error

	// SymbolLookup resolves name to an address. Which loaded images
	// are searched, and in what order, is up to the implementation.
	SymbolLookup(ctx context.Context, name string) (Address, error)

	// ModuleInfo reports the memory layout of a loaded module.
	ModuleInfo(ctx context.Context, handle ModuleHandle) (ModuleInfo, error)

	// CreateTask creates a primary or child task whose entry point is
	// entry, with the given name, stack size, and priority. The task
	// is created with floating-point context enabled, matching the
	// original flight-software convention.
	CreateTask(ctx context.Context, name string, entry Address, stackSize, priority uint32) (TaskHandle, error)

	// DeleteTask deletes a task.
	DeleteTask(ctx context.Context, handle TaskHandle) error

	// TaskIndex converts a task handle into a stable small integer
	// suitable for indexing TaskRecord storage.
	TaskIndex(handle TaskHandle) int

	// ForEachObject enumerates every OS object owned by owner,
	// invoking fn once per object. It is safe to delete objects from
	// within fn.
	ForEachObject(ctx context.Context, owner TaskHandle, fn func(ObjectID, ObjectKind)) error

	// IdentifyObject reports an object's kind.
	IdentifyObject(ctx context.Context, id ObjectID) ObjectKind

	// DeleteObject deletes an OS object of the given kind.
	DeleteObject(ctx context.Context, id ObjectID, kind ObjectKind) error
}

// ScriptReader is the byte-oriented file port the startup parser uses to
// read the startup script. Out of scope per spec.md section 1: the
// underlying filesystem implementation.
type ScriptReader interface {
	// Open opens path for reading. Choosing between the volatile and
	// nonvolatile paths is left to the caller (see
	// Config.StartupScriptPath).
	Open(ctx context.Context, path string) (ScriptFile, error)
}

// ScriptFile is an open startup script.
type ScriptFile interface {
	// ReadByte reads a single byte. io.EOF ends the stream.
	ReadByte() (byte, error)
	Close() error
}

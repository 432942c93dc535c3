package esexec

import (
	"context"
	"errors"
	"sync"
)

var (
	errMockLoad       = errors.New("mock: load failed")
	errMockSymbol     = errors.New("mock: symbol lookup failed")
	errMockTask       = errors.New("mock: task create failed")
	errMockDelete     = errors.New("mock: object delete failed")
	errMockTaskDelete = errors.New("mock: task delete failed")
	errMockModuleInfo = errors.New("mock: module info failed")
)

// mockLoader is a ModuleLoader test double recording every call so
// tests can assert on rollback behavior (spec.md section 8's "no leak
// on creation failure" property).
type mockLoader struct {
	mu sync.Mutex

	nextModule ModuleHandle
	nextTask   TaskHandle

	loaded   map[ModuleHandle]string
	unloaded []ModuleHandle

	symbols map[string]Address
	failSymbol     map[string]bool
	failLoad       map[string]bool
	failTask       bool
	failTaskDelete bool

	moduleInfo     ModuleInfo
	failModuleInfo bool

	createdTasks []TaskHandle
	deletedTasks []TaskHandle

	taskIndex map[TaskHandle]int

	objects      map[TaskHandle][]mockObject
	stuckDeletes map[ObjectID]bool
}

type mockObject struct {
	id   ObjectID
	kind ObjectKind
}

func newMockLoader() *mockLoader {
	return &mockLoader{
		loaded:       make(map[ModuleHandle]string),
		symbols:      make(map[string]Address),
		failSymbol:   make(map[string]bool),
		failLoad:     make(map[string]bool),
		taskIndex:    make(map[TaskHandle]int),
		objects:      make(map[TaskHandle][]mockObject),
		stuckDeletes: make(map[ObjectID]bool),
	}
}

func (m *mockLoader) LoadModule(_ context.Context, name, path string) (ModuleHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoad[path] {
		return 0, errMockLoad
	}
	m.nextModule++
	m.loaded[m.nextModule] = name
	return m.nextModule, nil
}

func (m *mockLoader) UnloadModule(_ context.Context, handle ModuleHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.loaded, handle)
	m.unloaded = append(m.unloaded, handle)
	return nil
}

func (m *mockLoader) SymbolLookup(_ context.Context, name string) (Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSymbol[name] {
		return 0, errMockSymbol
	}
	if addr, ok := m.symbols[name]; ok {
		return addr, nil
	}
	return Address(0xDEAD), nil
}

func (m *mockLoader) ModuleInfo(_ context.Context, handle ModuleHandle) (ModuleInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failModuleInfo {
		return ModuleInfo{}, errMockModuleInfo
	}
	return m.moduleInfo, nil
}

func (m *mockLoader) CreateTask(_ context.Context, name string, entry Address, stackSize, priority uint32) (TaskHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTask {
		return 0, errMockTask
	}
	m.nextTask++
	handle := m.nextTask
	m.taskIndex[handle] = int(handle)
	m.createdTasks = append(m.createdTasks, handle)
	return handle, nil
}

func (m *mockLoader) DeleteTask(_ context.Context, handle TaskHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedTasks = append(m.deletedTasks, handle)
	if m.failTaskDelete {
		return errMockTaskDelete
	}
	return nil
}

func (m *mockLoader) TaskIndex(handle TaskHandle) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.taskIndex[handle]
}

func (m *mockLoader) ForEachObject(_ context.Context, owner TaskHandle, fn func(ObjectID, ObjectKind)) error {
	m.mu.Lock()
	objs := append([]mockObject(nil), m.objects[owner]...)
	m.mu.Unlock()
	for _, o := range objs {
		fn(o.id, o.kind)
	}
	return nil
}

func (m *mockLoader) IdentifyObject(_ context.Context, id ObjectID) ObjectKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, objs := range m.objects {
		for _, o := range objs {
			if o.id == id {
				return o.kind
			}
		}
	}
	return ObjectKindUnknown
}

func (m *mockLoader) DeleteObject(_ context.Context, id ObjectID, kind ObjectKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stuckDeletes[id] {
		return errMockDelete
	}
	for owner, objs := range m.objects {
		for i, o := range objs {
			if o.id == id {
				m.objects[owner] = append(objs[:i], objs[i+1:]...)
				return nil
			}
		}
	}
	return errMockDelete
}

// addObject registers id/kind as owned by owner for ForEachObject to report.
func (m *mockLoader) addObject(owner TaskHandle, id ObjectID, kind ObjectKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[owner] = append(m.objects[owner], mockObject{id: id, kind: kind})
}

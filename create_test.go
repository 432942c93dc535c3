package esexec

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCreator() (*Creator, *Registry, *mockLoader) {
	reg := NewRegistry(4, 4, 4)
	loader := newMockLoader()
	creator := NewCreator(reg, loader, nil, nil)
	return creator, reg, loader
}

func validCreateParams() AppCreateParams {
	return AppCreateParams{
		FileName:       "worker.so",
		EntryPointName: "WorkerMain",
		Name:           "worker",
		Priority:       100,
		StackSize:      8192,
	}
}

// S1: happy-path creation lands the app in the RUNNING state with a
// registered primary task and no residual slot leak.
func TestAppCreate_HappyPath(t *testing.T) {
	creator, reg, loader := newTestCreator()

	slot, err := creator.AppCreate(context.Background(), validCreateParams())
	require.NoError(t, err)
	require.Equal(t, 0, slot)

	info, err := reg.AppInfoBySlot(slot)
	require.NoError(t, err)
	assert.Equal(t, AppStateRunning, info.State)
	assert.Equal(t, AppTypeExternal, info.Type)
	assert.Equal(t, "worker", info.Name)
	assert.Len(t, loader.createdTasks, 1)
	assert.Empty(t, loader.unloaded)

	counters := reg.Counters()
	assert.EqualValues(t, 1, counters.RegisteredExternalApps)
	assert.EqualValues(t, 1, counters.RegisteredTasks)
}

// S2: a missing entry point rolls back the module load and frees the
// slot, leaving the registry as if the create had never happened.
func TestAppCreate_SymbolMissingRollsBack(t *testing.T) {
	creator, reg, loader := newTestCreator()
	loader.failSymbol["WorkerMain"] = true

	slot, err := creator.AppCreate(context.Background(), validCreateParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAppCreate))
	assert.Equal(t, -1, slot)

	assert.Len(t, loader.unloaded, 1, "module load must be rolled back")
	_, infoErr := reg.AppInfoBySlot(0)
	assert.ErrorIs(t, infoErr, ErrSlotUndefined)

	counters := reg.Counters()
	assert.Zero(t, counters.RegisteredExternalApps)
	assert.Zero(t, counters.RegisteredTasks)
}

// A task-create failure also unloads the module (Open Question decision
// 1): the module image is never left orphaned behind a freed slot.
func TestAppCreate_TaskCreateFailureUnloadsModule(t *testing.T) {
	creator, reg, loader := newTestCreator()
	loader.failTask = true

	slot, err := creator.AppCreate(context.Background(), validCreateParams())
	require.Error(t, err)
	assert.Equal(t, -1, slot)
	assert.Len(t, loader.unloaded, 1)

	_, infoErr := reg.AppInfoBySlot(0)
	assert.ErrorIs(t, infoErr, ErrSlotUndefined)
}

// spec.md section 4's AppInfo query snapshot must report the loader's
// module addresses, matching CFE_ES_GetAppInfoInternal's own address/size
// fields (types.go's AddressesValid/CodeAddress/etc.).
func TestAppCreate_PopulatesModuleInfoFromLoader(t *testing.T) {
	creator, reg, loader := newTestCreator()
	loader.moduleInfo = ModuleInfo{
		Valid:       true,
		CodeAddress: 0x1000,
		CodeSize:    0x200,
		DataAddress: 0x2000,
		DataSize:    0x80,
		BSSAddress:  0x3000,
		BSSSize:     0x40,
	}

	slot, err := creator.AppCreate(context.Background(), validCreateParams())
	require.NoError(t, err)

	info, err := reg.AppInfoBySlot(slot)
	require.NoError(t, err)
	assert.True(t, info.AddressesValid)
	assert.EqualValues(t, 0x1000, info.CodeAddress)
	assert.EqualValues(t, 0x200, info.CodeSize)
	assert.EqualValues(t, 0x2000, info.DataAddress)
	assert.EqualValues(t, 0x80, info.DataSize)
	assert.EqualValues(t, 0x3000, info.BSSAddress)
	assert.EqualValues(t, 0x40, info.BSSSize)
}

// A loader unable to report module addresses must not fail the create:
// the task itself was already resolvable, so the AppInfo simply reports
// an invalid address snapshot.
func TestAppCreate_ModuleInfoErrorIsNonFatal(t *testing.T) {
	creator, reg, loader := newTestCreator()
	loader.failModuleInfo = true

	slot, err := creator.AppCreate(context.Background(), validCreateParams())
	require.NoError(t, err)

	info, err := reg.AppInfoBySlot(slot)
	require.NoError(t, err)
	assert.False(t, info.AddressesValid)
}

func TestAppCreate_MissingArgumentsRejected(t *testing.T) {
	creator, _, _ := newTestCreator()

	_, err := creator.AppCreate(context.Background(), AppCreateParams{Name: "worker"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadArgument))
}

// spec.md section 6: names are bounded by MAX_API_NAME bytes, matching
// CFE_ES_LoadLibrary's own StringLength check against LibName.
func TestAppCreate_OverlongNameRejected(t *testing.T) {
	creator, reg, _ := newTestCreator()

	params := validCreateParams()
	params.Name = strings.Repeat("a", 65)
	_, err := creator.AppCreate(context.Background(), params)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadArgument))
	assert.Zero(t, reg.Counters().RegisteredExternalApps, "a rejected over-length name must never reserve a slot")
}

func TestAppCreate_OverlongEntryPointRejected(t *testing.T) {
	creator, _, _ := newTestCreator()

	params := validCreateParams()
	params.EntryPointName = strings.Repeat("a", 65)
	_, err := creator.AppCreate(context.Background(), params)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadArgument))
}

func TestAppCreate_OverlongFileNameRejected(t *testing.T) {
	creator, _, _ := newTestCreator()

	params := validCreateParams()
	params.FileName = strings.Repeat("a", 257) + ".so"
	_, err := creator.AppCreate(context.Background(), params)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadArgument))
}

func TestAppCreate_NameAtLimitAccepted(t *testing.T) {
	creator, _, _ := newTestCreator()

	params := validCreateParams()
	params.Name = strings.Repeat("a", 63)
	_, err := creator.AppCreate(context.Background(), params)
	require.NoError(t, err)
}

func TestAppCreate_WithLimitsOverridesDefault(t *testing.T) {
	reg := NewRegistry(4, 4, 4)
	loader := newMockLoader()
	creator := NewCreator(reg, loader, nil, nil, WithLimits(12, 256))

	params := validCreateParams()
	params.Name = "worker" // 6 bytes, well under the default 64 but still under the override's 12-byte margin
	_, err := creator.AppCreate(context.Background(), params)
	require.NoError(t, err)

	params2 := validCreateParams()
	params2.Name = "verylongname12"
	_, err = creator.AppCreate(context.Background(), params2)
	require.Error(t, err, "under the default 64-byte limit this name would pass; the override must be the one enforced")
	assert.True(t, errors.Is(err, ErrBadArgument))
}

func TestLoadLibrary_OverlongNameRejected(t *testing.T) {
	creator, reg, _ := newTestCreator()

	params := AppCreateParams{Name: strings.Repeat("a", 65), FileName: "mathlib.so", EntryPointName: "MathInit"}
	_, err := creator.LoadLibrary(context.Background(), params, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadArgument))
	assert.Zero(t, reg.Counters().RegisteredLibs)
}

func TestLoadLibrary_OverlongFileNameRejected(t *testing.T) {
	creator, _, _ := newTestCreator()

	params := AppCreateParams{Name: "mathlib", FileName: strings.Repeat("a", 257) + ".so", EntryPointName: "MathInit"}
	_, err := creator.LoadLibrary(context.Background(), params, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadArgument))
}

func TestAppCreate_NoFreeSlot(t *testing.T) {
	reg := NewRegistry(1, 4, 4)
	loader := newMockLoader()
	creator := NewCreator(reg, loader, nil, nil)

	_, err := creator.AppCreate(context.Background(), validCreateParams())
	require.NoError(t, err)

	_, err = creator.AppCreate(context.Background(), AppCreateParams{
		FileName: "b.so", EntryPointName: "BMain", Name: "b",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAppCreate))
}

// S5: loading the same library name twice is idempotent, not an error
// that leaks a second slot.
func TestLoadLibrary_DuplicateNameReturnsExistingSlot(t *testing.T) {
	creator, reg, _ := newTestCreator()

	params := AppCreateParams{Name: "mathlib", FileName: "mathlib.so", EntryPointName: "MathInit"}
	first, err := creator.LoadLibrary(context.Background(), params, nil)
	require.NoError(t, err)

	second, err := creator.LoadLibrary(context.Background(), params, nil)
	assert.ErrorIs(t, err, ErrAlreadyLoaded)
	assert.Equal(t, first, second)

	assert.EqualValues(t, 1, reg.Counters().RegisteredLibs)
}

func TestLoadLibrary_InitFailureRollsBack(t *testing.T) {
	creator, reg, loader := newTestCreator()

	params := AppCreateParams{Name: "mathlib", FileName: "mathlib.so", EntryPointName: "MathInit"}
	failingInit := func(ctx context.Context, handle ModuleHandle, slot int) error {
		return errors.New("init failed")
	}

	_, err := creator.LoadLibrary(context.Background(), params, failingInit)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLoadLib))
	assert.Len(t, loader.unloaded, 1)
	assert.Zero(t, reg.Counters().RegisteredLibs)

	// The slot must be free again for a subsequent load to succeed.
	_, err = creator.LoadLibrary(context.Background(), params, nil)
	require.NoError(t, err)
}

func TestLoadLibrary_WithoutEntryPointSkipsSymbolLookup(t *testing.T) {
	creator, reg, loader := newTestCreator()
	loader.failSymbol["NULL"] = true

	params := AppCreateParams{Name: "passivelib", FileName: "passive.so", EntryPointName: "NULL"}
	_, err := creator.LoadLibrary(context.Background(), params, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, reg.Counters().RegisteredLibs)
}

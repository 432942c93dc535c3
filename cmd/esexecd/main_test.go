package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oliverhamburger/esexec"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// TestRunStartupScript_FallsBackToNonvolatileOnOpenFailure covers the
// spec.md section 6 requirement that a processor-reset volatile-open
// failure still falls back to the nonvolatile path rather than aborting
// startup outright.
func TestRunStartupScript_FallsBackToNonvolatileOnOpenFailure(t *testing.T) {
	dir := t.TempDir()
	fallbackPath := filepath.Join(dir, "nonvolatile.scr")
	require.NoError(t, os.WriteFile(fallbackPath, []byte(""), 0o644))

	cfg := esexec.DefaultConfig()
	cfg.VolatileStartupScript = filepath.Join(dir, "does-not-exist.scr")
	cfg.NonvolatileStartupScript = fallbackPath

	logger := nopLogger{}
	reg := esexec.NewRegistry(cfg.MaxApps, cfg.MaxLibs, cfg.MaxTasks)
	loader := esexec.NewPluginLoader(logger)
	creator := esexec.NewCreator(reg, loader, nil, logger, esexec.WithLimits(cfg.MaxAPIName, cfg.MaxPathLen))

	err := runStartupScript(context.Background(), cfg, "", false, reg, creator, loader, logger)
	require.NoError(t, err)
}

// TestRunStartupScript_PowerOnResetSkipsVolatileEntirely asserts the
// power-on-reset path goes straight to nonvolatile, per
// Config.StartupScriptPath, without any fallback bookkeeping kicking in.
func TestRunStartupScript_PowerOnResetSkipsVolatileEntirely(t *testing.T) {
	dir := t.TempDir()
	nonvolatilePath := filepath.Join(dir, "nonvolatile.scr")
	require.NoError(t, os.WriteFile(nonvolatilePath, []byte(""), 0o644))

	cfg := esexec.DefaultConfig()
	cfg.VolatileStartupScript = filepath.Join(dir, "does-not-exist.scr")
	cfg.NonvolatileStartupScript = nonvolatilePath

	logger := nopLogger{}
	reg := esexec.NewRegistry(cfg.MaxApps, cfg.MaxLibs, cfg.MaxTasks)
	loader := esexec.NewPluginLoader(logger)
	creator := esexec.NewCreator(reg, loader, nil, logger)

	err := runStartupScript(context.Background(), cfg, "", true, reg, creator, loader, logger)
	require.NoError(t, err)
}

// TestRunStartupScript_BothPathsFailingReturnsError ensures a missing
// fallback still surfaces the open error instead of hanging or panicking.
func TestRunStartupScript_BothPathsFailingReturnsError(t *testing.T) {
	dir := t.TempDir()
	cfg := esexec.DefaultConfig()
	cfg.VolatileStartupScript = filepath.Join(dir, "does-not-exist-either.scr")
	cfg.NonvolatileStartupScript = filepath.Join(dir, "also-missing.scr")

	logger := nopLogger{}
	reg := esexec.NewRegistry(cfg.MaxApps, cfg.MaxLibs, cfg.MaxTasks)
	loader := esexec.NewPluginLoader(logger)
	creator := esexec.NewCreator(reg, loader, nil, logger)

	err := runStartupScript(context.Background(), cfg, "", false, reg, creator, loader, logger)
	require.Error(t, err)
}

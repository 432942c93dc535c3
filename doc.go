// Package esexec implements an application lifecycle manager for a flight
// software executive. It loads external application and library binaries
// from a filesystem, binds their entry points, creates an application's
// primary task, tracks runtime state in a slotted registry, and tears
// applications down (exit, error-exit, delete, restart, reload) including
// recovery of every operating-system resource a task owns.
//
// The manager does not execute application logic itself and does not
// schedule threads; both are delegated to the operating-system port
// (ModuleLoader). Symbol resolution is likewise delegated; this package
// only resolves names to addresses through that port, it never relocates
// code.
//
// Basic usage:
//
//	cfg := esexec.DefaultConfig()
//	reg := esexec.NewRegistry(cfg.MaxApps, cfg.MaxLibs, cfg.MaxTasks)
//	creator := esexec.NewCreator(reg, loader, sink, logger)
//	slot, err := creator.AppCreate(ctx, esexec.AppCreateParams{
//		Name: "MyApp", EntryPointName: "MyApp_Main", FileName: "/cf/myapp.so",
//		Priority: 100, StackSize: 16384, ExceptionAction: esexec.ExceptionActionRestartApp,
//	})
//	scanner := esexec.NewScanner(creator, reg, cfg.ScanRate, cfg.KillTimeoutTicks, reg.CommandCount)
//	scanner.Start(ctx)
package esexec

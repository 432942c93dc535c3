// Command esexecd runs the application lifecycle manager as a
// standalone daemon: it loads the configured startup script, then
// serves the read-only query and control-request HTTP API until
// terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/oliverhamburger/esexec"
	"github.com/oliverhamburger/esexec/httpapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "esexecd: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a TOML config file (optional, overrides defaults)")
	startupScript := flag.String("startup-script", "", "path to a startup script (overrides the configured paths)")
	powerOnReset := flag.Bool("power-on-reset", true, "true for power-on reset, false for processor reset")
	flag.Parse()

	logger := esexec.NewStdLogger()

	cfg := esexec.DefaultConfig()
	if *configPath != "" {
		loaded, err := esexec.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	var events esexec.EventSink = esexec.NewLogSink(logger)
	if cfg.CloudEventTarget != "" {
		client, err := esexec.NewHTTPCloudEventClient(cfg.CloudEventTarget)
		if err != nil {
			logger.Warn("cloud event client unavailable, falling back to log sink", "error", err)
		} else {
			events = esexec.NewCloudEventSink(client, os.Stderr)
		}
	}

	reg := esexec.NewRegistry(cfg.MaxApps, cfg.MaxLibs, cfg.MaxTasks)
	loader := esexec.NewPluginLoader(logger)
	creator := esexec.NewCreator(reg, loader, events, logger, esexec.WithLimits(cfg.MaxAPIName, cfg.MaxPathLen))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runStartupScript(ctx, cfg, *startupScript, *powerOnReset, reg, creator, loader, logger); err != nil {
		logger.Error("startup script processing failed", "error", err)
	}

	scanner := esexec.NewScanner(creator, reg, cfg.ScanRate, cfg.KillTimeoutTicks, reg.CommandCount)
	scanner.Start(ctx)
	defer scanner.Stop()

	router := httpapi.Router(reg, reg.SetControlRequest)
	server := &http.Server{Addr: cfg.HTTPListenAddr, Handler: router}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped unexpectedly", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ScanRate*5)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// runStartupScript opens the configured script path and dispatches its
// records against creator. Per spec.md section 6, a power-on reset
// always uses the nonvolatile path, and a processor reset tries the
// volatile path first but falls back to nonvolatile on any open
// failure rather than aborting startup.
func runStartupScript(
	ctx context.Context,
	cfg esexec.Config,
	override string,
	powerOnReset bool,
	reg *esexec.Registry,
	creator *esexec.Creator,
	loader *esexec.PluginLoader,
	logger esexec.Logger,
) error {
	path := override
	fallback := ""
	if path == "" {
		reset := esexec.ResetTypePowerOn
		if !powerOnReset {
			reset = esexec.ResetTypeProcessor
		}
		path = cfg.StartupScriptPath(reset)
		if path != cfg.NonvolatileStartupScript {
			fallback = cfg.NonvolatileStartupScript
		}
	}

	f, err := os.Open(path)
	if err != nil && fallback != "" {
		logger.Warn("startup script open failed, falling back to nonvolatile path", "path", path, "fallback", fallback, "error", err)
		path = fallback
		f, err = os.Open(path)
	}
	if err != nil {
		return fmt.Errorf("open startup script %s: %w", path, err)
	}
	defer f.Close()

	return esexec.ParseStartupScript(ctx, osScriptFile{f}, logger,
		func(ctx context.Context, rec esexec.StartupRecord) error {
			_, err := creator.AppCreate(ctx, esexec.AppCreateParams{
				FileName:        rec.FileName,
				EntryPointName:  rec.EntryPoint,
				Name:            rec.Name,
				Priority:        rec.Priority,
				StackSize:       rec.StackSize,
				ExceptionAction: rec.ExceptionAction,
			})
			return err
		},
		func(ctx context.Context, rec esexec.StartupRecord) error {
			_, err := creator.LoadLibrary(ctx, esexec.AppCreateParams{
				FileName:       rec.FileName,
				EntryPointName: rec.EntryPoint,
				Name:           rec.Name,
			}, nil)
			if err == esexec.ErrAlreadyLoaded {
				return nil
			}
			return err
		},
	)
}

// osScriptFile adapts an *os.File to esexec.ScriptFile.
type osScriptFile struct{ f *os.File }

func (o osScriptFile) ReadByte() (byte, error) {
	var b [1]byte
	_, err := o.f.Read(b[:])
	return b[0], err
}

func (o osScriptFile) Close() error { return o.f.Close() }

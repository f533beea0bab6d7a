package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"autopunch/internal/api"
	"autopunch/internal/config"
	"autopunch/internal/core"
	punchmcp "autopunch/internal/mcp"
	"autopunch/internal/notify"
	"autopunch/internal/store"

	"github.com/spf13/cobra"
)

const (
	modeHTTP = "http"
	modeMCP  = "mcp"
	modeBoth = "both"
	modeNone = "none"
)

func newDaemonCmd(app *App, opts *rootOptions) *cobra.Command {
	var mode, addr string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the in-process polling scheduler",
		Long: "Daemon ticks once a minute and spawns `autopunch run --target <name>` for every due target,\n" +
			"at most once per target per day. It requires AUTOPUNCH_SCHEDULER=loop. The optional HTTP\n" +
			"and MCP surfaces expose targets, manual runs and run history.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts, func(cfg *config.Config) {
				if mode != "" {
					cfg.Server.Mode = mode
				}
				if addr != "" {
					cfg.Server.Addr = addr
				}
			})
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), app, opts, cfg)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "http|mcp|both|none (overrides AUTOPUNCH_DAEMON_MODE)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides AUTOPUNCH_ADDR)")
	return cmd
}

func runDaemon(parent context.Context, app *App, opts *rootOptions, cfg *config.Config) error {
	if err := cfg.ValidateAuthority(config.AuthorityLoop); err != nil {
		return err
	}
	switch cfg.Server.Mode {
	case modeHTTP, modeMCP, modeBoth, modeNone:
	default:
		return &config.ConfigurationError{
			Key:    "AUTOPUNCH_DAEMON_MODE",
			Reason: fmt.Sprintf("invalid mode %q (want http, mcp, both or none)", cfg.Server.Mode),
		}
	}
	targets, err := core.ParseTargets(cfg.Schedule.Spec)
	if err != nil {
		return &config.ConfigurationError{Key: "AUTOPUNCH_SCHEDULE", Reason: err.Error()}
	}

	logger := app.logger(cfg)
	if cfg.Server.Mode == modeMCP || cfg.Server.Mode == modeBoth {
		logger = loggerTo(cfg, app.Stderr)
	}

	// Store writes and runs are detached from the signal context; runs are
	// cancelled only once the shutdown grace has elapsed.
	runCtx, cancelRuns := context.WithCancel(context.WithoutCancel(parent))
	defer cancelRuns()
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(runCtx, cfg.StateDir, cfg.Log.Retention)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if n, err := st.AbandonRunning(runCtx); err != nil {
		logger.Warn("abandon stale runs", "err", err)
	} else if n > 0 {
		logger.Info("marked stale runs as failed", "count", n)
	}

	exe, err := app.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	var notifier core.Notifier
	if n := notify.FromConfig(cfg.Bark.URL, cfg.Bark.Enabled, logger); n.Len() > 0 {
		notifier = n
	}
	executor := core.NewProcessExecutor(st, logger, exe, opts.forwardedArgs(), cfg.Schedule.RunTimeout, notifier)
	scheduler := core.NewScheduler(st, executor, targets, logger, cfg.Location())

	if err := scheduler.Start(runCtx); err != nil {
		return err
	}
	logger.Info("daemon started", "targets", len(targets), "mode", cfg.Server.Mode, "state_dir", cfg.StateDir)

	serverErr := make(chan error, 1)
	var server *api.Server
	if cfg.Server.Mode == modeHTTP || cfg.Server.Mode == modeBoth {
		server = api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, st, scheduler, logger)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}
	mcpDone := make(chan error, 1)
	if cfg.Server.Mode == modeMCP || cfg.Server.Mode == modeBoth {
		mcpServer := punchmcp.NewMCPServer(st, scheduler, logger, app.Version)
		go func() {
			mcpDone <- mcpServer.Run()
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case runErr = <-serverErr:
		logger.Error("server error", "err", runErr)
	case err := <-mcpDone:
		if err != nil {
			runErr = err
			logger.Error("mcp server error", "err", err)
		} else {
			logger.Info("mcp session closed, shutting down")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "err", err)
		}
	}
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduler stop timed out")
	}
	if err := scheduler.Wait(shutdownCtx); err != nil {
		logger.Warn("runs still in flight, terminating", "err", err)
		cancelRuns()
		killCtx, killCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer killCancel()
		_ = scheduler.Wait(killCtx)
	}
	logger.Info("shutdown complete")
	return runErr
}

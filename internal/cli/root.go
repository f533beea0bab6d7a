// Package cli wires configuration, logging and the punch components into
// the autopunch command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"autopunch/internal/browser"
	"autopunch/internal/config"
	"autopunch/internal/logging"
	"autopunch/internal/wifi"

	"github.com/spf13/cobra"
)

// NetworkDetector resolves and checks the current wireless network.
type NetworkDetector interface {
	CurrentNetworkName(ctx context.Context) (string, bool)
	Check(ctx context.Context, expected []string) (string, bool)
}

// App carries the process-level collaborators so commands can be exercised
// without a real browser, network probe or executable.
type App struct {
	Version    string
	Stdout     io.Writer
	Stderr     io.Writer
	Open       browser.Opener
	Detector   func(iface string, logger *slog.Logger) NetworkDetector
	Executable func() (string, error)
	Now        func() time.Time
}

// DefaultApp returns an App bound to the real process environment.
func DefaultApp(version string) *App {
	return &App{
		Version: version,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Open:    browser.Open,
		Detector: func(iface string, logger *slog.Logger) NetworkDetector {
			return wifi.NewDetector(iface, logger)
		},
		Executable: os.Executable,
		Now:        time.Now,
	}
}

type rootOptions struct {
	envFile  string
	logLevel string
	stateDir string
}

// Execute runs the command tree and returns the process exit code.
func Execute(app *App, args []string) int {
	root := NewRootCmd(app)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(app.Stderr, err)
		return 1
	}
	return 0
}

// NewRootCmd builds the autopunch command tree.
func NewRootCmd(app *App) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "autopunch",
		Short:         "Automatic HR portal check-in/check-out",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(app.Stdout)
	root.SetErr(app.Stderr)
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "additional .env file, read before ./.env")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug|info|warn|error (overrides AUTOPUNCH_LOG_LEVEL)")
	root.PersistentFlags().StringVar(&opts.stateDir, "state-dir", "", "state directory (overrides AUTOPUNCH_STATE_DIR)")

	root.AddCommand(newRunCmd(app, opts))
	root.AddCommand(newDaemonCmd(app, opts))
	root.AddCommand(newWifiCmd(app, opts))
	root.AddCommand(newLaunchdCmd(app, opts))
	root.AddCommand(newTargetsCmd(app, opts))
	return root
}

// loadConfig reads configuration and applies the persistent flag overrides.
// apply runs before Finalize so command flags can influence derived paths.
func loadConfig(opts *rootOptions, apply func(*config.Config)) (*config.Config, error) {
	var extra []string
	if opts.envFile != "" {
		if _, err := os.Stat(opts.envFile); err != nil {
			return nil, &config.ConfigurationError{Key: "--env-file", Reason: err.Error()}
		}
		extra = append(extra, opts.envFile)
	}
	cfg, err := config.Load(extra...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.stateDir != "" {
		cfg.StateDir = opts.stateDir
	}
	if apply != nil {
		apply(cfg)
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *App) logger(cfg *config.Config) *slog.Logger {
	return logging.NewTo(cfg.Log.Level, a.Stdout, a.Stderr)
}

func loggerTo(cfg *config.Config, w io.Writer) *slog.Logger {
	return logging.NewTo(cfg.Log.Level, w, w)
}

// forwardedArgs repeats the persistent flags for `run` processes started
// by the daemon or launchd, whose working directory differs.
func (o *rootOptions) forwardedArgs() []string {
	var args []string
	if o.envFile != "" {
		args = append(args, "--env-file", absPath(o.envFile))
	}
	if o.logLevel != "" {
		args = append(args, "--log-level", o.logLevel)
	}
	if o.stateDir != "" {
		args = append(args, "--state-dir", absPath(o.stateDir))
	}
	return args
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"autopunch/internal/config"
	"autopunch/internal/core"
	"autopunch/internal/launchd"

	"github.com/spf13/cobra"
)

func newLaunchdCmd(app *App, opts *rootOptions) *cobra.Command {
	var (
		write bool
		label string
	)

	cmd := &cobra.Command{
		Use:   "launchd",
		Short: "Render the LaunchAgent plist that fires `run` at every target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts, nil)
			if err != nil {
				return err
			}
			if err := cfg.ValidateAuthority(config.AuthorityLaunchd); err != nil {
				return err
			}
			targets, err := core.ParseTargets(cfg.Schedule.Spec)
			if err != nil {
				return &config.ConfigurationError{Key: "AUTOPUNCH_SCHEDULE", Reason: err.Error()}
			}
			exe, err := app.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolve home dir: %w", err)
			}
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve working dir: %w", err)
			}

			// Runs fired by launchd must resolve the same configuration
			// as this invocation.
			fwd := *opts
			if fwd.envFile == "" {
				if _, err := os.Stat(filepath.Join(wd, ".env")); err == nil {
					fwd.envFile = filepath.Join(wd, ".env")
				}
			}
			fwd.stateDir = cfg.StateDir

			agent := launchd.Agent{
				Label:      label,
				Executable: exe,
				ExtraArgs:  fwd.forwardedArgs(),
				WorkingDir: wd,
				Home:       home,
				PathEnv:    os.Getenv("PATH"),
				Env:        configEnv(),
				LogPath:    filepath.Join(cfg.StateDir, "launchd.log"),
				Targets:    targets,
			}
			if !write {
				data, err := agent.Render()
				if err != nil {
					return err
				}
				_, err = app.Stdout.Write(data)
				return err
			}

			path := launchd.InstallPath(home, label)
			if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
				return fmt.Errorf("create state dir: %w", err)
			}
			if err := agent.Write(path); err != nil {
				return err
			}
			app.logger(cfg).Info("launch agent written", "path", path, "intervals", len(launchd.Intervals(targets)))
			_, _ = fmt.Fprintf(app.Stdout, "wrote %s\nload it with: launchctl load -w %s\n", path, path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "install into ~/Library/LaunchAgents instead of printing")
	cmd.Flags().StringVar(&label, "label", launchd.DefaultLabel, "launchd job label")
	return cmd
}

// configEnv collects the AUTOPUNCH_* variables of the current process.
func configEnv() map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(key, "AUTOPUNCH_") && value != "" {
			env[key] = value
		}
	}
	return env
}

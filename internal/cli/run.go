package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"autopunch/internal/config"
	"autopunch/internal/core"
	"autopunch/internal/punch"

	"github.com/spf13/cobra"
)

const adhocTarget = "adhoc"

func newRunCmd(app *App, opts *rootOptions) *cobra.Command {
	var (
		target   string
		headless bool
		engine   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one check-in/check-out flow and exit",
		Long: "Run opens the portal, restores the saved session, logs in when needed and clicks\n" +
			"the check-in or check-out control. The action is classified from the button, so the\n" +
			"same command serves every scheduled instant.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts, func(cfg *config.Config) {
				if cmd.Flags().Changed("headless") {
					cfg.Browser.Headless = headless
				}
				if engine != "" {
					cfg.Browser.Engine = config.Engine(engine)
				}
			})
			if err != nil {
				return err
			}
			logger := app.logger(cfg)

			name := adhocTarget
			if target != "" {
				targets, err := core.ParseTargets(cfg.Schedule.Spec)
				if err != nil {
					return &config.ConfigurationError{Key: "AUTOPUNCH_SCHEDULE", Reason: err.Error()}
				}
				t, ok := core.FindTarget(targets, target)
				if !ok {
					return fmt.Errorf("%w: %s", core.ErrUnknownTarget, target)
				}
				name = t.Name
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var gate punch.NetworkGate
			if len(cfg.Network.ExpectedSSIDs) > 0 {
				gate = app.Detector(cfg.Network.Interface, logger)
			}
			runner := punch.NewRunner(cfg, app.Open, gate, logger)
			report, err := runner.Run(ctx, name)
			if err != nil {
				logger.Error("run failed", "target", name, "err", err)
				return err
			}
			printReport(app.Stdout, report)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "configured target name this run serves (for logs and history)")
	cmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless (overrides AUTOPUNCH_HEADLESS)")
	cmd.Flags().StringVar(&engine, "engine", "", "chromedp|selenium (overrides AUTOPUNCH_ENGINE)")
	return cmd
}

func printReport(w io.Writer, report punch.Report) {
	action := "none"
	if report.Action.Clicked {
		action = string(report.Action.Action)
	}
	_, _ = fmt.Fprintf(w, "target=%s login=%s action=%s screenshot=%s\n",
		report.Target, report.Login.String(), action, report.Screenshot)
}

package cli

import (
	"fmt"
	"strings"

	"autopunch/internal/config"
	"autopunch/internal/core"

	"github.com/spf13/cobra"
)

func newTargetsCmd(app *App, opts *rootOptions) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "targets",
		Short: "List configured targets and their next fire times",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts, nil)
			if err != nil {
				return err
			}
			targets, err := core.ParseTargets(cfg.Schedule.Spec)
			if err != nil {
				return &config.ConfigurationError{Key: "AUTOPUNCH_SCHEDULE", Reason: err.Error()}
			}
			if count < 1 {
				count = 1
			}
			now := app.Now().In(cfg.Location())
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "scheduler: %s\n", cfg.Schedule.Authority)
			for _, t := range targets {
				_, _ = fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", t.Name, t.Clock(), weekdayLabel(t), t.CronSpec())
				for _, next := range t.NextOccurrences(now, count) {
					_, _ = fmt.Fprintf(out, "  next: %s\n", next.Format("2006-01-02 15:04 Mon"))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "upcoming fire times to show per target")
	return cmd
}

func weekdayLabel(t core.Target) string {
	days := t.WeekdayList()
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, d.String()[:3])
	}
	return strings.Join(names, ",")
}

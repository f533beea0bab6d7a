package cli

import (
	"errors"
	"fmt"

	"autopunch/internal/wifi"

	"github.com/spf13/cobra"
)

var errNetworkUndetermined = errors.New("could not determine the current network")

func newWifiCmd(app *App, opts *rootOptions) *cobra.Command {
	var ssids string

	cmd := &cobra.Command{
		Use:   "wifi",
		Short: "Check that the host is on an expected network",
		Long:  "Exits 0 when the current network is one of the expected names, 1 when it is not or cannot be determined.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts, nil)
			if err != nil {
				return err
			}
			logger := app.logger(cfg)
			expected := cfg.Network.ExpectedSSIDs
			if ssids != "" {
				expected = wifi.ParseNetworks(ssids)
			}

			detector := app.Detector(cfg.Network.Interface, logger)
			if len(expected) == 0 {
				name, ok := detector.CurrentNetworkName(cmd.Context())
				if !ok {
					return errNetworkUndetermined
				}
				_, _ = fmt.Fprintf(app.Stdout, "current network: %s (no expected networks configured)\n", name)
				return nil
			}

			name, ok := detector.Check(cmd.Context(), expected)
			switch {
			case name == "":
				return errNetworkUndetermined
			case !ok:
				return fmt.Errorf("current network %q is not one of %v", name, expected)
			}
			_, _ = fmt.Fprintf(app.Stdout, "network check passed: %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&ssids, "ssid", "", "expected network name(s), comma-separated (overrides AUTOPUNCH_WIFI_SSIDS)")
	return cmd
}

// File: cmd/status.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nkrsz/renewctl/internal/config"
	"github.com/nkrsz/renewctl/internal/observability"
	"github.com/nkrsz/renewctl/internal/report"
)

// newStatusCmd creates the `status` command, which prints the persisted
// record of the most recent run. Works without credentials configured.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Prints the outcome of the most recent renewal run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			reporter := report.NewReporter(cfg.Report, cfg.Account.VPSID, observability.GetLogger())
			state, err := reporter.Load()
			if err != nil {
				return fmt.Errorf("no cached run state at %s: %w", cfg.Report.CachePath, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:      %s\n", state.Status)
			fmt.Fprintf(out, "Last expiry: %s\n", state.LastExpiry)
			fmt.Fprintf(out, "Last check:  %s\n", state.LastCheck)
			fmt.Fprintf(out, "VPS id:      %s\n", state.VPSID)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

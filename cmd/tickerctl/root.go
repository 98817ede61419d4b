package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands
type rootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tickerctl",
		Short: "Manage ticker alarms",
		Long: `Create, inspect and synchronize ticker alarms.

Tickers are stored durably; their alarms live on the device scheduler,
which this tool simulates in process. "run" keeps the scheduler alive and
synchronizes on the configured refresh schedule.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newAddCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newExpandCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newRunCommand(opts))

	return cmd
}

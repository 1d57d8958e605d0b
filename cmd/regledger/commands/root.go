package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	ledgerPath string
	verbose    bool

	// reported as the telemetry service version
	serviceVersion string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	serviceVersion = version

	rootCmd := &cobra.Command{
		Use:   "regledger",
		Short: "Vehicle registration workflows on an append-only ledger",
		Long: `regledger records people, driver's licenses, vehicles and vehicle
registrations in an append-only document ledger. Every change is kept as a
new revision, so the full history of a registration can be queried.

Transactions are validated optimistically at commit and re-run when another
session changed what they read.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&ledgerPath, "ledger", "", "ledger database path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newSeedCommand())
	rootCmd.AddCommand(newTransferCommand())
	rootCmd.AddCommand(newSecondaryOwnerCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newVehiclesCommand())
	rootCmd.AddCommand(newScanCommand())

	return rootCmd
}

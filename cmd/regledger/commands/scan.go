package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/regledger/regledger/pkg/registration"
)

func newScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Dump the current documents of every table",
		Long: `Read every table in its own transaction, running up to the configured
number of sessions in parallel, and print the documents grouped by table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				scans, err := registration.ScanTables(cmd.Context(), a.driver)
				if err != nil {
					return err
				}
				for _, s := range scans {
					log.Debug().Str("table", s.Table).Int("documents", len(s.Documents)).Msg("Scanned table")
				}
				return printJSON(cmd.OutOrStdout(), scans)
			})
		},
	}
}

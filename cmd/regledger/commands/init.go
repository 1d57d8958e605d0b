package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/regledger/regledger/pkg/driver"
	"github.com/regledger/regledger/pkg/ledger"
	"github.com/regledger/regledger/pkg/registration"
)

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the registration tables and indexes",
		Long: `Create the Person, DriversLicense, VehicleRegistration and Vehicle tables
and their lookup indexes. Tables and indexes that already exist are kept.`,
		Example: `  regledger init --ledger ./regledger.db`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				created, err := initLedger(cmd.Context(), a.driver)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"createdTables": created,
					"indexes":       registration.DefaultIndexes,
				})
			})
		},
	}
}

// initLedger creates missing tables in one transaction and the indexes in
// the next, since an index needs its table to be committed.
func initLedger(ctx context.Context, d *driver.Driver) ([]string, error) {
	created, err := driver.Run(ctx, d, registration.CreateTables, driver.WithName("create_tables"))
	if err != nil {
		return nil, err
	}
	_, err = driver.Run(ctx, d, func(ctx context.Context, txn ledger.Transaction) (struct{}, error) {
		return struct{}{}, registration.CreateIndexes(ctx, txn)
	}, driver.WithName("create_indexes"))
	if err != nil {
		return nil, err
	}

	log.Info().Strs("created", created).Msg("Ledger tables ready")
	return created, nil
}

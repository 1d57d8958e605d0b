package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/regledger/regledger/pkg/driver"
	"github.com/regledger/regledger/pkg/ledger"
	"github.com/regledger/regledger/pkg/registration"
)

func newVehiclesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "vehicles GOV_ID",
		Short:   "List the vehicles a person is primary owner of",
		Example: `  regledger vehicles LEWISR261LL`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				vehicles, err := driver.Run(cmd.Context(), a.driver, func(ctx context.Context, txn ledger.Transaction) ([]registration.Vehicle, error) {
					return registration.FindVehiclesForOwner(ctx, txn, args[0])
				}, driver.WithName("vehicles_for_owner"))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), vehicles)
			})
		},
	}
}

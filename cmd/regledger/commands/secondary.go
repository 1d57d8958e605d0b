package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/regledger/regledger/pkg/driver"
	"github.com/regledger/regledger/pkg/ledger"
	"github.com/regledger/regledger/pkg/registration"
)

func newSecondaryOwnerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add-owner VIN GOV_ID",
		Short: "Add a secondary owner to a vehicle registration",
		Long: `Add the person with the given government id to the secondary owners of a
vehicle registration. Adding someone who is already a secondary owner
changes nothing and reports already_exists.`,
		Example: `  regledger add-owner 1N4AL11D75C109151 P626-168-229-765`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vin, govID := args[0], args[1]

			return withApp(cmd.Context(), func(a *app) error {
				res, err := driver.Run(cmd.Context(), a.driver, func(ctx context.Context, txn ledger.Transaction) (registration.SecondaryOwnerResult, error) {
					return registration.AddSecondaryOwner(ctx, txn, vin, govID)
				}, driver.WithName("add_secondary_owner"))
				if err != nil {
					return err
				}

				log.Info().
					Str("vin", vin).
					Str("outcome", string(res.Outcome)).
					Msg("Secondary owner processed")
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

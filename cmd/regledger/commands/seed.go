package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/regledger/regledger/pkg/config"
	"github.com/regledger/regledger/pkg/driver"
	"github.com/regledger/regledger/pkg/ledger"
	"github.com/regledger/regledger/pkg/registration"
)

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [fixtures]",
		Short: "Load people, licenses, vehicles and registrations",
		Long: `Create the registration tables if needed and insert seed data in a single
transaction. Fixtures are read from a .cue, .yaml or .json file; CUE files are
checked against the fixtures schema first. Without a file the built-in sample
data is loaded.

Each driver's license and registration is linked to the person at the same
position in the people list.`,
		Example: `  # Load the sample data
  regledger seed

  # Load fixtures from a CUE file
  regledger seed ./fixtures.cue`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fixtures := registration.SampleFixtures()
			if len(args) > 0 {
				f, err := config.LoadFixtures(args[0])
				if err != nil {
					return err
				}
				fixtures = f
			}

			return withApp(cmd.Context(), func(a *app) error {
				if _, err := initLedger(cmd.Context(), a.driver); err != nil {
					return err
				}

				res, err := driver.Run(cmd.Context(), a.driver, func(ctx context.Context, txn ledger.Transaction) (registration.SeedResult, error) {
					return registration.Seed(ctx, txn, fixtures)
				}, driver.WithName("seed"))
				if err != nil {
					return err
				}

				log.Info().
					Int("people", len(res.PersonIDs)).
					Int("licenses", len(res.LicenseIDs)).
					Int("registrations", len(res.RegistrationIDs)).
					Int("vehicles", len(res.VehicleIDs)).
					Msg("Seed data committed")
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/regledger/regledger/pkg/driver"
	"github.com/regledger/regledger/pkg/ledger"
	"github.com/regledger/regledger/pkg/registration"
)

func newHistoryCommand() *cobra.Command {
	var (
		since  string
		owners bool
	)

	cmd := &cobra.Command{
		Use:   "history VIN",
		Short: "Show every committed revision of a vehicle registration",
		Long: `Show the revisions of the registration for a VIN, oldest first. Each
revision carries its version, commit time and transaction id.

With --owners only the primary owner of each revision is listed.`,
		Example: `  # Full history
  regledger history KM8SRDHF6EU074761

  # Owners since a point in time
  regledger history KM8SRDHF6EU074761 --owners --since 2024-01-01T00:00:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vin := args[0]

			var from *time.Time
			if since != "" {
				t, err := time.Parse(time.RFC3339Nano, since)
				if err != nil {
					return fmt.Errorf("invalid --since %q: %w", since, err)
				}
				from = &t
			}

			return withApp(cmd.Context(), func(a *app) error {
				if owners {
					changes, err := driver.Run(cmd.Context(), a.driver, func(ctx context.Context, txn ledger.Transaction) ([]registration.OwnerChange, error) {
						return registration.PreviousPrimaryOwners(ctx, txn, vin, from)
					}, driver.WithName("owner_history"))
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), changes)
				}

				snapshots, err := driver.Run(cmd.Context(), a.driver, func(ctx context.Context, txn ledger.Transaction) ([]registration.Snapshot, error) {
					id, _, err := registration.FindRegistration(ctx, txn, vin)
					if err != nil {
						return nil, err
					}
					it, err := registration.History(ctx, txn, registration.TableVehicleRegistration, id, from)
					if err != nil {
						return nil, err
					}
					return it.Remaining(), nil
				}, driver.WithName("registration_history"))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), snapshots)
			})
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "only revisions committed at or after this RFC 3339 time")
	cmd.Flags().BoolVar(&owners, "owners", false, "list only the primary owner of each revision")

	return cmd
}

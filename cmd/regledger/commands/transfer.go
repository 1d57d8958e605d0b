package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/regledger/regledger/pkg/driver"
	"github.com/regledger/regledger/pkg/ledger"
	"github.com/regledger/regledger/pkg/registration"
)

func newTransferCommand() *cobra.Command {
	var req registration.TransferRequest

	cmd := &cobra.Command{
		Use:   "transfer VIN",
		Short: "Transfer the primary ownership of a vehicle",
		Long: `Make another person the primary owner of a vehicle registration.

The transfer only happens when --from matches the government id of the
current primary owner; otherwise nothing is written and the outcome is
validation_failed. The whole check-and-update runs in one transaction and
is re-run if another session changes the registration concurrently.`,
		Example: `  regledger transfer KM8SRDHF6EU074761 --from LOGANB486CG --to "744 849 301"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.VIN = args[0]

			return withApp(cmd.Context(), func(a *app) error {
				res, attempts, err := runCounted(cmd.Context(), a.driver, "transfer_ownership",
					func(ctx context.Context, txn ledger.Transaction) (registration.TransferResult, error) {
						return registration.TransferOwnership(ctx, txn, req)
					})
				if err != nil {
					if outcome, ok := registration.OutcomeFromError(err); ok {
						log.Warn().Err(err).Str("outcome", string(outcome)).Msg("Transfer rejected")
					}
					return err
				}

				log.Info().
					Str("vin", res.VIN).
					Str("outcome", string(res.Outcome)).
					Int("attempts", attempts).
					Msg("Transfer finished")
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if res.Outcome != registration.OutcomeSuccess {
					return fmt.Errorf("transfer of %s was not applied: %s", res.VIN, res.Outcome)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.CurrentOwnerGovID, "from", "", "government id of the current primary owner")
	cmd.Flags().StringVar(&req.NewOwnerGovID, "to", "", "government id of the new primary owner")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

// runCounted runs fn as one unit of work and reports how many attempts it
// took to commit.
func runCounted[T any](ctx context.Context, d *driver.Driver, name string, fn func(context.Context, ledger.Transaction) (T, error)) (T, int, error) {
	attempts := 1
	res, err := driver.Run(ctx, d, fn,
		driver.WithName(name),
		driver.WithRetryNotify(func(e driver.RetryEvent) { attempts = e.Attempt + 1 }))
	return res, attempts, err
}

package registration_test

import (
	"context"
	"fmt"

	"github.com/regledger/regledger/pkg/driver"
	"github.com/regledger/regledger/pkg/ledger"
	"github.com/regledger/regledger/pkg/registration"
)

func ExampleTransferOwnership() {
	ctx := context.Background()
	l, _ := ledger.Open(ctx, ledger.Config{Path: ":memory:"})
	defer l.Close()
	d, _ := driver.New(l)

	_, err := driver.Run(ctx, d, func(ctx context.Context, txn ledger.Transaction) (registration.SeedResult, error) {
		if _, err := registration.CreateTables(ctx, txn); err != nil {
			return registration.SeedResult{}, err
		}
		return registration.Seed(ctx, txn, registration.SampleFixtures())
	})
	if err != nil {
		panic(err)
	}

	transfer := func(current, next string) registration.Outcome {
		res, err := driver.Run(ctx, d, func(ctx context.Context, txn ledger.Transaction) (registration.TransferResult, error) {
			return registration.TransferOwnership(ctx, txn, registration.TransferRequest{
				VIN:               "KM8SRDHF6EU074761",
				CurrentOwnerGovID: current,
				NewOwnerGovID:     next,
			})
		})
		if err != nil {
			panic(err)
		}
		return res.Outcome
	}

	fmt.Println(transfer("LOGANB486CG", "744 849 301"))
	fmt.Println(transfer("LOGANB486CG", "744 849 301"))

	// Output:
	// success
	// validation_failed
}

func ExampleAddSecondaryOwner() {
	ctx := context.Background()
	l, _ := ledger.Open(ctx, ledger.Config{Path: ":memory:"})
	defer l.Close()
	d, _ := driver.New(l)

	_, _ = driver.Run(ctx, d, func(ctx context.Context, txn ledger.Transaction) (registration.SeedResult, error) {
		if _, err := registration.CreateTables(ctx, txn); err != nil {
			return registration.SeedResult{}, err
		}
		return registration.Seed(ctx, txn, registration.SampleFixtures())
	})

	for i := 0; i < 2; i++ {
		res, err := driver.Run(ctx, d, func(ctx context.Context, txn ledger.Transaction) (registration.SecondaryOwnerResult, error) {
			return registration.AddSecondaryOwner(ctx, txn, "1N4AL11D75C109151", "P626-168-229-765")
		})
		if err != nil {
			panic(err)
		}
		fmt.Println(res.Outcome)
	}

	// Output:
	// success
	// already_exists
}

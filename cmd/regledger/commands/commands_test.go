package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regledger/regledger/pkg/driver"
	"github.com/regledger/regledger/pkg/ledger"
	"github.com/regledger/regledger/pkg/registration"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, ledgerPath, verbose = "", "", false

	var out bytes.Buffer
	cmd := newRootCommand("test", "none", "today")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSeedTransferAndHistory(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ledger.db")

	out, err := runCLI(t, "seed", "--ledger", db)
	require.NoError(t, err)
	var seeded registration.SeedResult
	require.NoError(t, json.Unmarshal([]byte(out), &seeded))
	assert.Len(t, seeded.PersonIDs, 5)

	out, err = runCLI(t, "transfer", "KM8SRDHF6EU074761", "--from", "LOGANB486CG", "--to", "744 849 301", "--ledger", db)
	require.NoError(t, err)
	var res registration.TransferResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, registration.OutcomeSuccess, res.Outcome)

	_, err = runCLI(t, "transfer", "KM8SRDHF6EU074761", "--from", "LOGANB486CG", "--to", "744 849 301", "--ledger", db)
	assert.ErrorContains(t, err, "validation_failed")

	out, err = runCLI(t, "history", "KM8SRDHF6EU074761", "--owners", "--ledger", db)
	require.NoError(t, err)
	var changes []registration.OwnerChange
	require.NoError(t, json.Unmarshal([]byte(out), &changes))
	require.Len(t, changes, 2)
	assert.Equal(t, seeded.PersonIDs[1], changes[0].PersonID)
	assert.Equal(t, seeded.PersonIDs[2], changes[1].PersonID)
}

func TestAddOwnerAndVehicles(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ledger.db")
	_, err := runCLI(t, "seed", "--ledger", db)
	require.NoError(t, err)

	out, err := runCLI(t, "add-owner", "1N4AL11D75C109151", "P626-168-229-765", "--ledger", db)
	require.NoError(t, err)
	assert.Contains(t, out, `"outcome": "success"`)

	out, err = runCLI(t, "vehicles", "LEWISR261LL", "--ledger", db)
	require.NoError(t, err)
	var vehicles []registration.Vehicle
	require.NoError(t, json.Unmarshal([]byte(out), &vehicles))
	require.Len(t, vehicles, 1)
	assert.Equal(t, "Audi", vehicles[0].Make)
}

func TestHistoryRejectsBadSince(t *testing.T) {
	_, err := runCLI(t, "history", "KM8SRDHF6EU074761", "--since", "yesterday")
	assert.ErrorContains(t, err, "invalid --since")
}

func TestTelemetryCarriesBuildVersion(t *testing.T) {
	newRootCommand("1.4.0", "abc123", "today")
	configPath, verbose = "", false
	ledgerPath = filepath.Join(t.TempDir(), "ledger.db")

	ctx := context.Background()
	a, err := openApp(ctx)
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Equal(t, "1.4.0", a.tel.Config.ServiceVersion)
}

func TestRunCountedReportsReexecutions(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ledger.db")
	_, err := runCLI(t, "seed", "--ledger", db)
	require.NoError(t, err)
	ledgerPath = db

	ctx := context.Background()
	a, err := openApp(ctx)
	require.NoError(t, err)
	defer a.Close(ctx)

	transfer := func(ctx context.Context, txn ledger.Transaction, to string) (registration.TransferResult, error) {
		return registration.TransferOwnership(ctx, txn, registration.TransferRequest{
			VIN:               "KM8SRDHF6EU074761",
			CurrentOwnerGovID: "LOGANB486CG",
			NewOwnerGovID:     to,
		})
	}

	calls := 0
	res, attempts, err := runCounted(ctx, a.driver, "transfer_ownership",
		func(ctx context.Context, txn ledger.Transaction) (registration.TransferResult, error) {
			calls++
			res, err := transfer(ctx, txn, "744 849 301")
			if err != nil || calls > 1 {
				return res, err
			}
			// a concurrent transfer commits first and makes this snapshot stale
			_, err = driver.Run(ctx, a.driver, func(ctx context.Context, txn ledger.Transaction) (registration.TransferResult, error) {
				return transfer(ctx, txn, "S152-780-97-415-0")
			})
			return res, err
		})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, calls, attempts)
	assert.Equal(t, registration.OutcomeValidationFailed, res.Outcome)

	_, attempts, err = runCounted(ctx, a.driver, "noop",
		func(ctx context.Context, txn ledger.Transaction) (int, error) { return 0, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

package registration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regledger/regledger/pkg/driver"
	"github.com/regledger/regledger/pkg/ledger"
	"github.com/regledger/regledger/pkg/telemetry"
)

const (
	vinAudi  = "1N4AL11D75C109151"
	vinTesla = "KM8SRDHF6EU074761"

	govLewis   = "LEWISR261LL"
	govLogan   = "LOGANB486CG"
	govPena    = "744 849 301"
	govParker  = "P626-168-229-765"
	govSpencer = "S152-780-97-415-0"
)

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type testEnv struct {
	ledger *ledger.Ledger
	driver *driver.Driver
	seed   SeedResult
	tel    *telemetry.Telemetry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), step: time.Second}
	l, err := ledger.Open(ctx, ledger.Config{Path: ":memory:"}, ledger.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	tel, err := telemetry.NewTelemetry(telemetry.TestConfig())
	require.NoError(t, err)

	d, err := driver.New(l,
		driver.WithTelemetry(tel),
		driver.WithRetryPolicy(driver.RetryPolicy{
			MaxAttempts: 5,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
			Multiplier:  2,
		}))
	require.NoError(t, err)

	_, err = driver.Run(ctx, d, func(ctx context.Context, txn ledger.Transaction) ([]string, error) {
		return CreateTables(ctx, txn)
	})
	require.NoError(t, err)

	seed, err := driver.Run(ctx, d, func(ctx context.Context, txn ledger.Transaction) (SeedResult, error) {
		if err := CreateIndexes(ctx, txn); err != nil {
			return SeedResult{}, err
		}
		return Seed(ctx, txn, SampleFixtures())
	})
	require.NoError(t, err)

	return &testEnv{ledger: l, driver: d, seed: seed, tel: tel}
}

func (e *testEnv) transfer(t *testing.T, req TransferRequest) (TransferResult, error) {
	t.Helper()
	return driver.Run(context.Background(), e.driver, func(ctx context.Context, txn ledger.Transaction) (TransferResult, error) {
		return TransferOwnership(ctx, txn, req)
	})
}

func (e *testEnv) history(t *testing.T, vin string, since *time.Time) []Snapshot {
	t.Helper()
	snaps, err := driver.Run(context.Background(), e.driver, func(ctx context.Context, txn ledger.Transaction) ([]Snapshot, error) {
		id, err := ResolveDocumentID(ctx, txn, TableVehicleRegistration, "VIN", vin)
		if err != nil {
			return nil, err
		}
		it, err := History(ctx, txn, TableVehicleRegistration, id, since)
		if err != nil {
			return nil, err
		}
		return it.Remaining(), nil
	})
	require.NoError(t, err)
	return snaps
}

func (e *testEnv) primaryOwnerGovID(t *testing.T, vin string) string {
	t.Helper()
	p, err := driver.Run(context.Background(), e.driver, func(ctx context.Context, txn ledger.Transaction) (Person, error) {
		_, p, err := FindPrimaryOwner(ctx, txn, vin)
		return p, err
	})
	require.NoError(t, err)
	return p.GovID
}

func workflowCount(t *testing.T, reg *prometheus.Registry, workflow, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "regledger_workflow_outcomes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["workflow"] == workflow && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestResolveDocumentID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := driver.Run(ctx, env.driver, func(ctx context.Context, txn ledger.Transaction) (string, error) {
		return ResolveDocumentID(ctx, txn, TablePerson, "GovId", govLewis)
	})
	require.NoError(t, err)
	assert.Equal(t, env.seed.PersonIDs[0], id)

	_, err = driver.Run(ctx, env.driver, func(ctx context.Context, txn ledger.Transaction) (string, error) {
		return ResolveDocumentID(ctx, txn, TablePerson, "GovId", "NOBODY")
	})
	assert.True(t, ledger.IsNotFound(err))

	for _, tc := range []struct{ table, attr string }{
		{"Person; DROP", "GovId"},
		{TablePerson, "Gov.Id"},
		{"", "GovId"},
	} {
		_, err = driver.Run(ctx, env.driver, func(ctx context.Context, txn ledger.Transaction) (string, error) {
			return ResolveDocumentID(ctx, txn, tc.table, tc.attr, govLewis)
		})
		assert.True(t, ledger.IsValidation(err), "%s.%s", tc.table, tc.attr)
	}
}

func TestSeedThreadsPersonIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.Len(t, env.seed.PersonIDs, 5)
	require.Len(t, env.seed.LicenseIDs, 5)
	require.Len(t, env.seed.RegistrationIDs, 5)
	require.Len(t, env.seed.VehicleIDs, 5)

	lic, err := driver.Run(ctx, env.driver, func(ctx context.Context, txn ledger.Transaction) (DriversLicense, error) {
		var l DriversLicense
		res, err := txn.Execute(ctx, "SELECT * FROM DriversLicense AS d WHERE d.LicenseNumber = ?", govPena)
		if err != nil {
			return l, err
		}
		require.True(t, res.Next())
		return l, res.Decode(&l)
	})
	require.NoError(t, err)
	assert.Equal(t, env.seed.PersonIDs[2], lic.PersonID)

	assert.Equal(t, govLogan, env.primaryOwnerGovID(t, vinTesla))

	// the fixture values are not modified
	assert.Empty(t, SampleFixtures().VehicleRegistrations[0].Owners.PrimaryOwner.PersonID)
}

func TestFixturesValidate(t *testing.T) {
	require.NoError(t, SampleFixtures().Validate())

	f := SampleFixtures()
	f.People = f.People[:2]
	assert.True(t, ledger.IsValidation(f.Validate()))

	f = SampleFixtures()
	f.People[0].GovID = ""
	assert.True(t, ledger.IsValidation(f.Validate()))
}

func TestTransferOwnershipMismatchWritesNothing(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.transfer(t, TransferRequest{
		VIN:               vinTesla,
		CurrentOwnerGovID: govLewis,
		NewOwnerGovID:     govPena,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeValidationFailed, res.Outcome)
	assert.False(t, res.Outcome.Changed())
	assert.Equal(t, govLogan, res.PreviousOwnerGovID)

	assert.Len(t, env.history(t, vinTesla, nil), 1)
	assert.Equal(t, govLogan, env.primaryOwnerGovID(t, vinTesla))
	assert.Equal(t, 1.0, workflowCount(t, env.tel.Metrics.Registry(), workflowTransfer, string(OutcomeValidationFailed)))
}

func TestTransferOwnershipSuccess(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.transfer(t, TransferRequest{
		VIN:               vinTesla,
		CurrentOwnerGovID: govLogan,
		NewOwnerGovID:     govPena,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, env.seed.PersonIDs[1], res.PreviousOwnerID)
	assert.Equal(t, env.seed.PersonIDs[2], res.NewOwnerID)
	assert.Equal(t, env.seed.RegistrationIDs[1], res.RegistrationDocumentID)

	snaps := env.history(t, vinTesla, nil)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(1), snaps[1].Version)

	var reg VehicleRegistration
	require.NoError(t, snaps[1].Decode(&reg))
	assert.Equal(t, env.seed.PersonIDs[2], reg.Owners.PrimaryOwner.PersonID)
	assert.Equal(t, vinTesla, reg.VIN)
	assert.Equal(t, govPena, env.primaryOwnerGovID(t, vinTesla))
	assert.Equal(t, 1.0, workflowCount(t, env.tel.Metrics.Registry(), workflowTransfer, string(OutcomeSuccess)))
}

func TestTransferOwnershipErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		req   TransferRequest
		check func(error) bool
	}{
		{
			name:  "missing fields",
			req:   TransferRequest{VIN: vinTesla},
			check: ledger.IsValidation,
		},
		{
			name:  "same owner",
			req:   TransferRequest{VIN: vinTesla, CurrentOwnerGovID: govLogan, NewOwnerGovID: govLogan},
			check: ledger.IsValidation,
		},
		{
			name:  "unknown vehicle",
			req:   TransferRequest{VIN: "NOPE", CurrentOwnerGovID: govLogan, NewOwnerGovID: govPena},
			check: ledger.IsNotFound,
		},
		{
			name:  "unknown new owner",
			req:   TransferRequest{VIN: vinTesla, CurrentOwnerGovID: govLogan, NewOwnerGovID: "NOBODY"},
			check: ledger.IsNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.transfer(t, tt.req)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)

			outcome, ok := OutcomeFromError(err)
			assert.True(t, ok)
			assert.NotEqual(t, OutcomeSuccess, outcome)
		})
	}

	assert.Len(t, env.history(t, vinTesla, nil), 1)
}

func TestAddSecondaryOwnerIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	add := func() SecondaryOwnerResult {
		res, err := driver.Run(ctx, env.driver, func(ctx context.Context, txn ledger.Transaction) (SecondaryOwnerResult, error) {
			return AddSecondaryOwner(ctx, txn, vinAudi, govParker)
		})
		require.NoError(t, err)
		return res
	}

	first := add()
	assert.Equal(t, OutcomeSuccess, first.Outcome)
	assert.Equal(t, env.seed.PersonIDs[3], first.PersonID)
	assert.Equal(t, env.seed.RegistrationIDs[0], first.RegistrationDocumentID)

	second := add()
	assert.Equal(t, OutcomeAlreadyExists, second.Outcome)
	assert.False(t, second.Outcome.Changed())

	snaps := env.history(t, vinAudi, nil)
	require.Len(t, snaps, 2)
	var reg VehicleRegistration
	require.NoError(t, snaps[1].Decode(&reg))
	assert.Equal(t, []OwnerRef{{PersonID: env.seed.PersonIDs[3]}}, reg.Owners.SecondaryOwners)

	isOwner, err := driver.Run(ctx, env.driver, func(ctx context.Context, txn ledger.Transaction) (bool, error) {
		return IsSecondaryOwner(ctx, txn, vinAudi, env.seed.PersonIDs[3])
	})
	require.NoError(t, err)
	assert.True(t, isOwner)

	_, err = driver.Run(ctx, env.driver, func(ctx context.Context, txn ledger.Transaction) (SecondaryOwnerResult, error) {
		return AddSecondaryOwner(ctx, txn, vinAudi, "NOBODY")
	})
	assert.True(t, ledger.IsNotFound(err))
}

func TestHistorySince(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.transfer(t, TransferRequest{VIN: vinTesla, CurrentOwnerGovID: govLogan, NewOwnerGovID: govPena})
	require.NoError(t, err)
	_, err = env.transfer(t, TransferRequest{VIN: vinTesla, CurrentOwnerGovID: govPena, NewOwnerGovID: govParker})
	require.NoError(t, err)

	all := env.history(t, vinTesla, nil)
	require.Len(t, all, 3)
	for i, s := range all {
		assert.Equal(t, int64(i), s.Version)
		assert.Equal(t, env.seed.RegistrationIDs[1], s.DocumentID)
		assert.NotEmpty(t, s.TxnID)
	}
	assert.True(t, all[0].CommittedAt.Before(all[1].CommittedAt))

	since := all[1].CommittedAt
	recent := env.history(t, vinTesla, &since)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(1), recent[0].Version)
	assert.Equal(t, int64(2), recent[1].Version)

	changes, err := driver.Run(context.Background(), env.driver, func(ctx context.Context, txn ledger.Transaction) ([]OwnerChange, error) {
		return PreviousPrimaryOwners(ctx, txn, vinTesla, nil)
	})
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, env.seed.PersonIDs[1], changes[0].PersonID)
	assert.Equal(t, env.seed.PersonIDs[2], changes[1].PersonID)
	assert.Equal(t, env.seed.PersonIDs[3], changes[2].PersonID)
}

func TestSnapshotIterator(t *testing.T) {
	it := &SnapshotIterator{snapshots: []Snapshot{{Version: 0}, {Version: 1}}}
	assert.Equal(t, Snapshot{}, it.Snapshot())

	require.True(t, it.Next())
	assert.Equal(t, int64(0), it.Snapshot().Version)
	assert.Len(t, it.Remaining(), 1)
	assert.False(t, it.Next())
	assert.Empty(t, it.Remaining())
}

// G1 moves the Tesla from Logan to Pena, G2 from Pena to Parker. Replaying
// G1 afterwards must be rejected because Logan no longer owns the vehicle.
func TestTransferChainRejectsStaleRequest(t *testing.T) {
	env := newTestEnv(t)
	g1 := TransferRequest{VIN: vinTesla, CurrentOwnerGovID: govLogan, NewOwnerGovID: govPena}
	g2 := TransferRequest{VIN: vinTesla, CurrentOwnerGovID: govPena, NewOwnerGovID: govParker}

	res, err := env.transfer(t, g1)
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)

	res, err = env.transfer(t, g2)
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)

	res, err = env.transfer(t, g1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeValidationFailed, res.Outcome)
	assert.Equal(t, govParker, res.PreviousOwnerGovID)

	assert.Len(t, env.history(t, vinTesla, nil), 3)
	assert.Equal(t, govParker, env.primaryOwnerGovID(t, vinTesla))
}

// A transfer whose snapshot goes stale mid-flight is re-run, and the re-run
// sees the concurrent owner change.
func TestConcurrentTransferIsReexecuted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	attempts := 0
	res, err := driver.Run(ctx, env.driver, func(ctx context.Context, txn ledger.Transaction) (TransferResult, error) {
		attempts++
		res, err := TransferOwnership(ctx, txn, TransferRequest{
			VIN:               vinTesla,
			CurrentOwnerGovID: govLogan,
			NewOwnerGovID:     govPena,
		})
		if err != nil || attempts > 1 {
			return res, err
		}
		concurrent, err := env.transfer(t, TransferRequest{
			VIN:               vinTesla,
			CurrentOwnerGovID: govLogan,
			NewOwnerGovID:     govSpencer,
		})
		require.NoError(t, err)
		require.Equal(t, OutcomeSuccess, concurrent.Outcome)
		return res, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, OutcomeValidationFailed, res.Outcome)
	assert.Equal(t, govSpencer, env.primaryOwnerGovID(t, vinTesla))
	assert.Len(t, env.history(t, vinTesla, nil), 2)

	// the discarded first attempt is not counted
	reg := env.tel.Metrics.Registry()
	assert.Equal(t, 1.0, workflowCount(t, reg, workflowTransfer, string(OutcomeSuccess)))
	assert.Equal(t, 1.0, workflowCount(t, reg, workflowTransfer, string(OutcomeValidationFailed)))
}

func TestFindVehiclesForOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	vehicles, err := driver.Run(ctx, env.driver, func(ctx context.Context, txn ledger.Transaction) ([]Vehicle, error) {
		return FindVehiclesForOwner(ctx, txn, govLewis)
	})
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, vinAudi, vehicles[0].VIN)
	assert.Equal(t, "Audi", vehicles[0].Make)
	assert.Equal(t, 2011, vehicles[0].Year)

	_, err = driver.Run(ctx, env.driver, func(ctx context.Context, txn ledger.Transaction) ([]Vehicle, error) {
		return FindVehiclesForOwner(ctx, txn, "NOBODY")
	})
	assert.True(t, ledger.IsNotFound(err))
}

func TestScanTables(t *testing.T) {
	env := newTestEnv(t)

	scans, err := ScanTables(context.Background(), env.driver)
	require.NoError(t, err)
	require.Len(t, scans, 4)

	names := make([]string, len(scans))
	for i, s := range scans {
		names[i] = s.Table
		assert.Len(t, s.Documents, 5, s.Table)
	}
	assert.Equal(t, []string{TableDriversLicense, TablePerson, TableVehicle, TableVehicleRegistration}, names)
}

func TestCreateTablesAndIndexesAreIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := driver.Run(ctx, env.driver, func(ctx context.Context, txn ledger.Transaction) ([]string, error) {
		created, err := CreateTables(ctx, txn)
		if err != nil {
			return nil, err
		}
		return created, CreateIndexes(ctx, txn)
	})
	require.NoError(t, err)
	assert.Empty(t, created)

	attrs, err := env.ledger.Indexes(ctx, TableVehicleRegistration)
	require.NoError(t, err)
	assert.Equal(t, []string{"LicensePlateNumber", "VIN"}, attrs)

	attrs, err = env.ledger.Indexes(ctx, TableDriversLicense)
	require.NoError(t, err)
	assert.Equal(t, []string{"LicenseNumber", "PersonId"}, attrs)
}

func TestOutcomeFromError(t *testing.T) {
	tests := []struct {
		err     error
		outcome Outcome
		ok      bool
	}{
		{err: nil, outcome: OutcomeSuccess, ok: true},
		{err: ledger.NewNotFoundError("x", nil), outcome: OutcomeNotFound, ok: true},
		{err: ledger.NewValidationError("x", nil), outcome: OutcomeValidationFailed, ok: true},
		{err: ledger.NewConnectivityError("x", nil), ok: false},
		{err: ledger.NewExhaustedError(3, nil), ok: false},
	}
	for _, tt := range tests {
		outcome, ok := OutcomeFromError(tt.err)
		assert.Equal(t, tt.ok, ok)
		assert.Equal(t, tt.outcome, outcome)
	}
}

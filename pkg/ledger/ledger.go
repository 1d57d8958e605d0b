package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/regledger/regledger/pkg/telemetry"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const memoryPath = ":memory:"

// Config holds ledger storage configuration.
type Config struct {
	// Path is the SQLite database file, or ":memory:".
	Path string

	// MaxOpenConns bounds the connection pool. In-memory ledgers always use
	// a single connection so every caller sees the same database.
	MaxOpenConns int

	// BusyTimeout is how long a commit waits for the write lock.
	BusyTimeout time.Duration
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the clock used to stamp commits.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// WithLogger sets the ledger logger.
func WithLogger(logger *telemetry.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger.NewComponentLogger("ledger")
	}
}

// Ledger is an append-only document store. Every mutation appends a new
// revision; transactions read a snapshot and are validated optimistically
// at commit.
type Ledger struct {
	db     *sql.DB
	path   string
	clock  func() time.Time
	logger *telemetry.Logger
	closed atomic.Bool
}

// Open opens (creating if needed) a ledger and applies migrations.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Ledger, error) {
	if cfg.Path == "" {
		return nil, NewValidationError("ledger path is required", nil)
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.Path == memoryPath {
		cfg.MaxOpenConns = 1
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	l := &Ledger{
		path:   cfg.Path,
		clock:  time.Now,
		logger: telemetry.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, NewConnectivityError("failed to open ledger database", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	if cfg.Path == memoryPath {
		// closing the only connection would drop the database
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, NewConnectivityError("failed to ping ledger database", err)
	}
	l.db = db

	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	l.logger.WithField("path", cfg.Path).Debug("Ledger opened")
	return l, nil
}

// migrate runs the embedded schema migrations.
func (l *Ledger) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(l.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the ledger. Subsequent calls fail with a connectivity error.
func (l *Ledger) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.db.Close()
}

// HealthCheck verifies the database connection is healthy.
func (l *Ledger) HealthCheck(ctx context.Context) error {
	if l.closed.Load() {
		return NewConnectivityError("ledger is closed", nil)
	}
	if err := l.db.PingContext(ctx); err != nil {
		return NewConnectivityError("ledger is unreachable", err)
	}
	return nil
}

// Begin starts a transaction reading the latest committed snapshot.
func (l *Ledger) Begin(ctx context.Context) (*Txn, error) {
	if l.closed.Load() {
		return nil, NewConnectivityError("ledger is closed", nil)
	}

	var head int64
	if err := l.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM commits`).Scan(&head); err != nil {
		return nil, NewConnectivityError("failed to read ledger head", err)
	}

	return &Txn{
		ledger:    l,
		id:        uuid.NewString(),
		snapshot:  head,
		startedAt: l.clock(),
		reads:     make(map[docKey]int64),
		writes:    make(map[docKey]*pendingWrite),
		newTables: make(map[string]bool),
	}, nil
}

// TableNames lists the committed tables in name order.
func (l *Ledger) TableNames(ctx context.Context) ([]string, error) {
	if l.closed.Load() {
		return nil, NewConnectivityError("ledger is closed", nil)
	}

	rows, err := l.db.QueryContext(ctx, `SELECT name FROM ledger_tables ORDER BY name`)
	if err != nil {
		return nil, NewConnectivityError("failed to list tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Indexes lists the indexed attributes of a table.
func (l *Ledger) Indexes(ctx context.Context, table string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT attribute FROM ledger_indexes WHERE table_name = ? ORDER BY attribute`, table)
	if err != nil {
		return nil, NewConnectivityError("failed to list indexes", err)
	}
	defer rows.Close()

	var attrs []string
	for rows.Next() {
		var attr string
		if err := rows.Scan(&attr); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		attrs = append(attrs, attr)
	}
	return attrs, rows.Err()
}

// Path returns the database path the ledger was opened with.
func (l *Ledger) Path() string {
	return l.path
}

// Package store is the authoritative state of the mesh: the node table,
// the append-only packet log, the radio-connection graph derived from it,
// and the position estimator that fills in coordinates for nodes without a
// GPS fix. It is a single-process SQLite store; mutations take a writer
// lock, reads run concurrently against consistent snapshots.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"meshmap/internal/logs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNodeNotFound is returned by lookups for an id the store has never seen.
var ErrNodeNotFound = errors.New("store: node not found")

// Options tune store behavior beyond the database path.
type Options struct {
	// TxPowerDBm is the assumed transmit power used for RSSI ranging.
	TxPowerDBm float64

	// WindowHours is the default lookback for connection inference.
	WindowHours int

	// Notifier receives change callbacks. Nil means no notifications.
	Notifier Notifier

	// Now supplies timestamps; tests override it. Nil means time.Now.
	Now func() time.Time
}

// Store owns the nodes table and the packet log.
type Store struct {
	db *sql.DB

	// mu serializes mutations (node upserts, packet appends, position
	// persistence). Reads do not take it.
	mu sync.Mutex

	notifier    Notifier
	txPowerDBm  float64
	windowHours int
	now         func() time.Time
}

// Open opens (or creates) the SQLite database at path and brings the
// schema up to date. A failure here is a startup failure, distinct from
// the per-message errors the ingest path absorbs.
func Open(path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{
		db:          db,
		notifier:    opts.Notifier,
		txPowerDBm:  opts.TxPowerDBm,
		windowHours: opts.WindowHours,
		now:         opts.Now,
	}
	if s.notifier == nil {
		s.notifier = NopNotifier{}
	}
	if s.txPowerDBm == 0 {
		s.txPowerDBm = -10
	}
	if s.windowHours == 0 {
		s.windowHours = 72
	}
	if s.now == nil {
		s.now = time.Now
	}

	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SetNotifier installs the change sink. Call before ingestion starts.
func (s *Store) SetNotifier(n Notifier) {
	if n == nil {
		n = NopNotifier{}
	}
	s.notifier = n
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Not closing m: that would close the shared DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

func (s *Store) logWarn(err error, msg string, fields map[string]any) {
	entry := logs.L().WithError(err)
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	entry.Warn(msg)
}

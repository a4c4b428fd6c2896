// Package store provides storage backends for PrimeBot.
//
// It persists session snapshots, tracked pains, onboarding preferences, inbound
// message deduplication records and the outbound message queue. Backends are
// in-memory (default), SQLite and PostgreSQL.
package store

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PrimeBot/internal/models"
)

// ErrNotFound is returned when a record addressed by key does not exist.
var ErrNotFound = errors.New("record not found")

// SessionRepo persists per-user session snapshots.
type SessionRepo interface {
	// GetSession returns the stored session or nil when the user has none.
	GetSession(userID string) (*models.Session, error)
	SaveSession(s models.Session) error
	DeleteSession(userID string) error
}

// PainRepo persists tracked pains keyed by user and zone.
type PainRepo interface {
	ListPains(userID string) ([]models.PainRecord, error)
	// AddPain returns false when the zone is already tracked.
	AddPain(userID string, p models.PainRecord) (bool, error)
	// RemovePain returns false when the zone was not tracked.
	RemovePain(userID, zone string) (bool, error)
	RemoveAllPains(userID string) (int, error)
}

// PreferenceRepo persists onboarding preferences.
type PreferenceRepo interface {
	// GetPreferences returns nil when the user has no stored preferences.
	GetPreferences(userID string) (*models.Preferences, error)
	SavePreferences(p models.Preferences) error
}

// Store is the full storage surface used by the service.
type Store interface {
	SessionRepo
	PainRepo
	PreferenceRepo
	DedupRepo
	OutboxRepo
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the backend selected by the DSN. An empty DSN yields an in-memory store.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("Store.New: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		slog.Info("Store.New: using PostgreSQL store")
		return NewPostgresStore(opts...)
	}
	slog.Info("Store.New: using SQLite store", "path", cfg.DSN)
	return NewSQLiteStore(opts...)
}

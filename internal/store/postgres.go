// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/PrimeBot/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to PostgreSQL and applies migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore.New: DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("PostgresStore.New: failed to open connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore.New: ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore.New: failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore.New: migrations applied")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetSession(userID string) (*models.Session, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT session_json FROM sessions WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session for %s: %w", userID, err)
	}
	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session for %s: %w", userID, err)
	}
	return &sess, nil
}

func (s *PostgresStore) SaveSession(sess models.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session for %s: %w", sess.UserID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (user_id, session_json, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET session_json = EXCLUDED.session_json, updated_at = EXCLUDED.updated_at`,
		sess.UserID, string(raw), time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore.SaveSession: upsert failed", "error", err, "userID", sess.UserID)
		return fmt.Errorf("failed to save session for %s: %w", sess.UserID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteSession(userID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) ListPains(userID string) ([]models.PainRecord, error) {
	rows, err := s.db.Query(
		`SELECT zone, description, source, added_at FROM pains WHERE user_id = $1 ORDER BY added_at ASC, zone ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pains for %s: %w", userID, err)
	}
	defer rows.Close()
	return scanPains(rows)
}

func (s *PostgresStore) AddPain(userID string, p models.PainRecord) (bool, error) {
	if p.AddedAt.IsZero() {
		p.AddedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO pains (user_id, zone, description, source, added_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, zone) DO NOTHING`,
		userID, p.Zone, nilIfEmpty(p.Description), string(p.Source), p.AddedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to add pain %s for %s: %w", p.Zone, userID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PostgresStore) RemovePain(userID, zone string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM pains WHERE user_id = $1 AND zone = $2`, userID, zone)
	if err != nil {
		return false, fmt.Errorf("failed to remove pain %s for %s: %w", zone, userID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PostgresStore) RemoveAllPains(userID string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM pains WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear pains for %s: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) GetPreferences(userID string) (*models.Preferences, error) {
	row := s.db.QueryRow(
		`SELECT user_id, goal, experience_level, days_per_week, training_location, session_duration, equipment,
		        limitations_asked, limitations_answered, updated_at
		 FROM preferences WHERE user_id = $1`, userID)
	p, err := scanPreferences(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences for %s: %w", userID, err)
	}
	return p, nil
}

func (s *PostgresStore) SavePreferences(p models.Preferences) error {
	_, err := s.db.Exec(
		`INSERT INTO preferences (user_id, goal, experience_level, days_per_week, training_location, session_duration, equipment,
		                          limitations_asked, limitations_answered, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id) DO UPDATE SET
		   goal = EXCLUDED.goal,
		   experience_level = EXCLUDED.experience_level,
		   days_per_week = EXCLUDED.days_per_week,
		   training_location = EXCLUDED.training_location,
		   session_duration = EXCLUDED.session_duration,
		   equipment = EXCLUDED.equipment,
		   limitations_asked = EXCLUDED.limitations_asked,
		   limitations_answered = EXCLUDED.limitations_answered,
		   updated_at = EXCLUDED.updated_at`,
		p.UserID, nilIfEmpty(p.Goal), nilIfEmpty(p.ExperienceLevel), p.DaysPerWeek, nilIfEmpty(p.TrainingLocation),
		p.SessionDuration, nilIfEmpty(p.Equipment), p.LimitationsAsked, p.LimitationsAnswered, time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore.SavePreferences: upsert failed", "error", err, "userID", p.UserID)
		return fmt.Errorf("failed to save preferences for %s: %w", p.UserID, err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("PostgresStore.Close: closing database")
	return s.db.Close()
}

// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/PrimeBot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and creates if needed) the SQLite database at the DSN path.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore.New: DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore.New: failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("SQLiteStore.New: failed to open connection", "error", err)
		return nil, err
	}
	// SQLite serializes writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore.New: ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore.New: failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore.New: migrations applied", "path", dsn)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetSession(userID string) (*models.Session, error) {
	var raw string
	err := s.db.QueryRow(`SELECT session_json FROM sessions WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session for %s: %w", userID, err)
	}
	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session for %s: %w", userID, err)
	}
	return &sess, nil
}

func (s *SQLiteStore) SaveSession(sess models.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session for %s: %w", sess.UserID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (user_id, session_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET session_json = excluded.session_json, updated_at = excluded.updated_at`,
		sess.UserID, string(raw), time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveSession: upsert failed", "error", err, "userID", sess.UserID)
		return fmt.Errorf("failed to save session for %s: %w", sess.UserID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(userID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) ListPains(userID string) ([]models.PainRecord, error) {
	rows, err := s.db.Query(
		`SELECT zone, description, source, added_at FROM pains WHERE user_id = ? ORDER BY added_at ASC, zone ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pains for %s: %w", userID, err)
	}
	defer rows.Close()
	return scanPains(rows)
}

func (s *SQLiteStore) AddPain(userID string, p models.PainRecord) (bool, error) {
	if p.AddedAt.IsZero() {
		p.AddedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO pains (user_id, zone, description, source, added_at) VALUES (?, ?, ?, ?, ?)`,
		userID, p.Zone, nilIfEmpty(p.Description), string(p.Source), p.AddedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to add pain %s for %s: %w", p.Zone, userID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) RemovePain(userID, zone string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM pains WHERE user_id = ? AND zone = ?`, userID, zone)
	if err != nil {
		return false, fmt.Errorf("failed to remove pain %s for %s: %w", zone, userID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) RemoveAllPains(userID string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM pains WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear pains for %s: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) GetPreferences(userID string) (*models.Preferences, error) {
	row := s.db.QueryRow(
		`SELECT user_id, goal, experience_level, days_per_week, training_location, session_duration, equipment,
		        limitations_asked, limitations_answered, updated_at
		 FROM preferences WHERE user_id = ?`, userID)
	p, err := scanPreferences(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences for %s: %w", userID, err)
	}
	return p, nil
}

func (s *SQLiteStore) SavePreferences(p models.Preferences) error {
	_, err := s.db.Exec(
		`INSERT INTO preferences (user_id, goal, experience_level, days_per_week, training_location, session_duration, equipment,
		                          limitations_asked, limitations_answered, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   goal = excluded.goal,
		   experience_level = excluded.experience_level,
		   days_per_week = excluded.days_per_week,
		   training_location = excluded.training_location,
		   session_duration = excluded.session_duration,
		   equipment = excluded.equipment,
		   limitations_asked = excluded.limitations_asked,
		   limitations_answered = excluded.limitations_answered,
		   updated_at = excluded.updated_at`,
		p.UserID, nilIfEmpty(p.Goal), nilIfEmpty(p.ExperienceLevel), p.DaysPerWeek, nilIfEmpty(p.TrainingLocation),
		p.SessionDuration, nilIfEmpty(p.Equipment), p.LimitationsAsked, p.LimitationsAnswered, time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore.SavePreferences: upsert failed", "error", err, "userID", p.UserID)
		return fmt.Errorf("failed to save preferences for %s: %w", p.UserID, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("SQLiteStore.Close: closing database")
	return s.db.Close()
}

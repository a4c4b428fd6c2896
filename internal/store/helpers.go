package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/BTreeMap/PrimeBot/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanPains(rows *sql.Rows) ([]models.PainRecord, error) {
	pains := []models.PainRecord{}
	for rows.Next() {
		var p models.PainRecord
		var desc sql.NullString
		var source string
		if err := rows.Scan(&p.Zone, &desc, &source, &p.AddedAt); err != nil {
			return nil, fmt.Errorf("scan pain failed: %w", err)
		}
		p.Description = desc.String
		p.Source = models.PainSource(source)
		pains = append(pains, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pain iteration failed: %w", err)
	}
	return pains, nil
}

// scanPreferences returns sql.ErrNoRows unwrapped so callers can detect absence.
func scanPreferences(row rowScanner) (*models.Preferences, error) {
	var p models.Preferences
	var goal, level, location, equipment sql.NullString
	err := row.Scan(
		&p.UserID, &goal, &level, &p.DaysPerWeek, &location, &p.SessionDuration, &equipment,
		&p.LimitationsAsked, &p.LimitationsAnswered, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Goal = goal.String
	p.ExperienceLevel = level.String
	p.TrainingLocation = location.String
	p.Equipment = equipment.String
	return &p, nil
}

func scanOutboxMessage(row rowScanner) (OutboxMessage, error) {
	var m OutboxMessage
	var dedupeKey, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.Recipient, &m.Kind, &m.Body, &m.Status, &m.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan outbox message failed: %w", err)
	}
	m.DedupeKey = dedupeKey.String
	m.LastError = lastError.String
	if nextAttemptAt.Valid {
		t := nextAttemptAt.Time
		m.NextAttemptAt = &t
	}
	if lockedAt.Valid {
		t := lockedAt.Time
		m.LockedAt = &t
	}
	return m, nil
}

const outboxColumns = `id, recipient, kind, body, status, attempts, next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at`

// failTransition maps a retry time to the status and next_attempt_at column value.
// A zero time is terminal.
func failTransition(nextAttemptAt time.Time) (OutboxStatus, any) {
	if nextAttemptAt.IsZero() {
		return OutboxStatusFailed, nil
	}
	return OutboxStatusQueued, nextAttemptAt
}

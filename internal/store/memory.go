package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/PrimeBot/internal/models"
	"github.com/google/uuid"
)

// InMemoryStore keeps everything in process memory. Data is lost on restart.
type InMemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]models.Session
	pains       map[string][]models.PainRecord
	preferences map[string]models.Preferences
	dedup       map[string]DedupRecord
	outbox      []*OutboxMessage
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:    make(map[string]models.Session),
		pains:       make(map[string][]models.PainRecord),
		preferences: make(map[string]models.Preferences),
		dedup:       make(map[string]DedupRecord),
	}
}

func (s *InMemoryStore) GetSession(userID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	c := sess.Clone()
	return &c, nil
}

func (s *InMemoryStore) SaveSession(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.UserID] = sess.Clone()
	return nil
}

func (s *InMemoryStore) DeleteSession(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

func (s *InMemoryStore) ListPains(userID string) ([]models.PainRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PainRecord, len(s.pains[userID]))
	copy(out, s.pains[userID])
	return out, nil
}

func (s *InMemoryStore) AddPain(userID string, p models.PainRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.pains[userID] {
		if existing.Zone == p.Zone {
			return false, nil
		}
	}
	if p.AddedAt.IsZero() {
		p.AddedAt = time.Now()
	}
	s.pains[userID] = append(s.pains[userID], p)
	return true, nil
}

func (s *InMemoryStore) RemovePain(userID, zone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.pains[userID]
	for i, p := range list {
		if p.Zone == zone {
			s.pains[userID] = append(list[:i:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) RemoveAllPains(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pains[userID])
	delete(s.pains, userID)
	return n, nil
}

func (s *InMemoryStore) GetPreferences(userID string) (*models.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.preferences[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryStore) SavePreferences(p models.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = time.Now()
	s.preferences[p.UserID] = p
	return nil
}

func (s *InMemoryStore) IsDuplicate(messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dedup[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(messageID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = DedupRecord{MessageID: messageID, UserID: userID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.dedup[messageID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	rec.ProcessedAt = &now
	s.dedup[messageID] = rec
	return nil
}

func (s *InMemoryStore) ReleaseInbound(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[messageID]; ok && rec.ProcessedAt == nil {
		delete(s.dedup, messageID)
	}
	return nil
}

func (s *InMemoryStore) EnqueueOutboxMessage(recipient, kind, body, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, m := range s.outbox {
			if m.DedupeKey == dedupeKey && m.Status != OutboxStatusSent && m.Status != OutboxStatusFailed {
				slog.Debug("InMemoryStore.EnqueueOutboxMessage: dedupe hit", "dedupeKey", dedupeKey, "existingID", m.ID)
				return m.ID, nil
			}
		}
	}
	now := time.Now()
	m := &OutboxMessage{
		ID:        "outbox_" + uuid.NewString(),
		Recipient: recipient,
		Kind:      kind,
		Body:      body,
		Status:    OutboxStatusQueued,
		DedupeKey: dedupeKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.outbox = append(s.outbox, m)
	return m.ID, nil
}

func (s *InMemoryStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*OutboxMessage
	for _, m := range s.outbox {
		if m.Status == OutboxStatusQueued && (m.NextAttemptAt == nil || !m.NextAttemptAt.After(now)) {
			due = append(due, m)
		}
	}
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]OutboxMessage, 0, len(due))
	for _, m := range due {
		locked := now
		m.Status = OutboxStatusSending
		m.LockedAt = &locked
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

func (s *InMemoryStore) MarkOutboxMessageSent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findOutbox(id)
	if m == nil {
		return ErrNotFound
	}
	m.Status = OutboxStatusSent
	m.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findOutbox(id)
	if m == nil {
		return ErrNotFound
	}
	m.Attempts++
	m.LastError = errMsg
	m.LockedAt = nil
	m.UpdatedAt = time.Now()
	if nextAttemptAt.IsZero() {
		m.Status = OutboxStatusFailed
		m.NextAttemptAt = nil
		return nil
	}
	m.Status = OutboxStatusQueued
	m.NextAttemptAt = &nextAttemptAt
	return nil
}

func (s *InMemoryStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.outbox {
		if m.Status == OutboxStatusSending && m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			m.Status = OutboxStatusQueued
			m.LockedAt = nil
			n++
		}
	}
	return n, nil
}

// OutboxMessages returns a snapshot of every outbox record in enqueue order.
func (s *InMemoryStore) OutboxMessages() []OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OutboxMessage, 0, len(s.outbox))
	for _, m := range s.outbox {
		out = append(out, *m)
	}
	return out
}

func (s *InMemoryStore) findOutbox(id string) *OutboxMessage {
	for _, m := range s.outbox {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/PrimeBot/internal/models"
	"github.com/BTreeMap/PrimeBot/internal/store"
)

// SessionManager loads and saves session snapshots through a store.SessionRepo.
type SessionManager struct {
	repo store.SessionRepo
}

// NewSessionManager creates a SessionManager backed by repo.
func NewSessionManager(repo store.SessionRepo) *SessionManager {
	slog.Debug("SessionManager.NewSessionManager: created")
	return &SessionManager{repo: repo}
}

// Load returns the stored session for userID, or a fresh one.
func (sm *SessionManager) Load(ctx context.Context, userID string) (models.Session, error) {
	if err := ctx.Err(); err != nil {
		return models.Session{}, err
	}
	sess, err := sm.repo.GetSession(userID)
	if err != nil {
		slog.Error("SessionManager.Load: get failed", "userID", userID, "error", err)
		return models.Session{}, fmt.Errorf("failed to load session for %s: %w", userID, err)
	}
	if sess == nil {
		slog.Debug("SessionManager.Load: new session", "userID", userID)
		return models.NewSession(userID), nil
	}
	if !sess.Mode.Valid() {
		slog.Warn("SessionManager.Load: stored mode unknown, clearing", "userID", userID, "mode", sess.Mode)
		sess.ClearMode()
	}
	return *sess, nil
}

// Save stores the session snapshot.
func (sm *SessionManager) Save(ctx context.Context, sess models.Session) error {
	if err := sm.repo.SaveSession(sess); err != nil {
		slog.Error("SessionManager.Save: save failed", "userID", sess.UserID, "error", err)
		return fmt.Errorf("failed to save session for %s: %w", sess.UserID, err)
	}
	slog.Debug("SessionManager.Save: saved", "userID", sess.UserID, "mode", sess.Mode, "transcript", len(sess.Transcript))
	return nil
}

// Reset deletes the stored session so the next message starts fresh.
func (sm *SessionManager) Reset(ctx context.Context, userID string) error {
	if err := sm.repo.DeleteSession(userID); err != nil {
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	slog.Info("SessionManager.Reset: session deleted", "userID", userID)
	return nil
}

// Get returns the stored session without creating one. ok is false when the
// user has no session.
func (sm *SessionManager) Get(ctx context.Context, userID string) (models.Session, bool, error) {
	sess, err := sm.repo.GetSession(userID)
	if err != nil {
		return models.Session{}, false, fmt.Errorf("failed to load session for %s: %w", userID, err)
	}
	if sess == nil {
		return models.Session{}, false, nil
	}
	return *sess, true, nil
}

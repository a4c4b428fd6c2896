// Package models defines session and transcript structures for PrimeBot conversations.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Mode is the single multi-turn sub-flow a session is currently inside.
type Mode string

const (
	// ModeNone means no sub-flow claims the next message.
	ModeNone Mode = ""
	// ModeAwaitingPainResponse waits for an answer to "has the pain passed?".
	ModeAwaitingPainResponse Mode = "awaiting_pain_response"
	// ModeAwaitingPainDetails waits for the laterality of a just-mentioned injury.
	ModeAwaitingPainDetails Mode = "awaiting_pain_details"
	// ModeAwaitingPainPlanConfirmation waits for a go/no-go on a plan after a pain warning.
	ModeAwaitingPainPlanConfirmation Mode = "awaiting_pain_plan_confirmation"
	// ModeAwaitingOnboardingConfirmation waits for confirmation of the preference summary.
	ModeAwaitingOnboardingConfirmation Mode = "awaiting_onboarding_confirmation"
	// ModeAwaitingPreferenceEdit waits for the preference the user wants to change.
	ModeAwaitingPreferenceEdit Mode = "awaiting_preference_edit"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeNone, ModeAwaitingPainResponse, ModeAwaitingPainDetails, ModeAwaitingPainPlanConfirmation,
		ModeAwaitingOnboardingConfirmation, ModeAwaitingPreferenceEdit:
		return true
	}
	return false
}

// String returns a printable mode name.
func (m Mode) String() string {
	if m == ModeNone {
		return "none"
	}
	return string(m)
}

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PayloadKind identifies the structured attachment of an assistant message.
type PayloadKind string

const (
	PayloadPlan       PayloadKind = "plan"
	PayloadNavigation PayloadKind = "navigation"
	PayloadDisclaimer PayloadKind = "disclaimer"
	PayloadActions    PayloadKind = "actions"
)

// NavigationAction points the client at an application route.
type NavigationAction struct {
	Label string `json:"label"`
	Link  string `json:"link"`
}

// Action is a structured directive extracted from a language-model reply.
type Action struct {
	Type    string         `json:"type"`
	Label   string         `json:"label"`
	Payload map[string]any `json:"payload,omitempty"`
	Path    string         `json:"path,omitempty"`
}

// Payload is the optional structured part of a message.
type Payload struct {
	Kind       PayloadKind       `json:"kind"`
	Plan       *WorkoutPlan      `json:"plan,omitempty"`
	Navigation *NavigationAction `json:"navigation,omitempty"`
	Actions    []Action          `json:"actions,omitempty"`
}

// Message is one transcript entry. It is never modified once appended.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Payload   *Payload  `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage builds a message with a fresh ID and timestamp.
func NewMessage(role Role, text string, payload *Payload) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// Session is the per-user conversation memory.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Mode               Mode   `json:"mode"`
	PendingPlanRequest string `json:"pending_plan_request,omitempty"`
	TempBodyPart       string `json:"temp_body_part,omitempty"`
	CurrentPainZone    string `json:"current_pain_zone,omitempty"`
	SkipFallback       bool   `json:"skip_fallback,omitempty"`

	// Once-per-session markers.
	PainCheckDone        bool `json:"pain_check_done,omitempty"`
	PreferencesConfirmed bool `json:"preferences_confirmed,omitempty"`
	DisclaimerShown      bool `json:"disclaimer_shown,omitempty"`

	Transcript []Message `json:"transcript"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewSession creates an empty session for userID.
func NewSession(userID string) Session {
	now := time.Now()
	return Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		Transcript: []Message{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Enter switches to mode m. Mode-scoped fields belonging to another mode are dropped.
func (s *Session) Enter(m Mode) {
	if m != ModeAwaitingPainDetails {
		s.TempBodyPart = ""
	}
	if m != ModeAwaitingPainResponse {
		s.CurrentPainZone = ""
	}
	s.Mode = m
}

// ClearMode leaves the current mode and drops its temporary fields.
func (s *Session) ClearMode() {
	s.Mode = ModeNone
	s.TempBodyPart = ""
	s.CurrentPainZone = ""
}

// Clone returns a copy whose transcript can be appended without aliasing s.
func (s Session) Clone() Session {
	c := s
	c.Transcript = make([]Message, len(s.Transcript))
	copy(c.Transcript, s.Transcript)
	return c
}

// History returns up to n most recent transcript messages.
func (s Session) History(n int) []Message {
	if n <= 0 || len(s.Transcript) <= n {
		return s.Transcript
	}
	return s.Transcript[len(s.Transcript)-n:]
}

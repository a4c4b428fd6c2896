package models

import (
	"strings"
	"testing"
)

func TestChatRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     ChatRequest
		wantErr error
	}{
		{"valid", ChatRequest{UserID: "u1", Text: "ciao"}, nil},
		{"trims user id", ChatRequest{UserID: "  u1 ", Text: "ciao"}, nil},
		{"missing user", ChatRequest{Text: "ciao"}, ErrEmptyUserID},
		{"blank text", ChatRequest{UserID: "u1", Text: "   "}, ErrEmptyText},
		{"long user", ChatRequest{UserID: strings.Repeat("u", MaxUserIDLength+1), Text: "x"}, ErrUserIDTooLong},
		{"long text", ChatRequest{UserID: "u1", Text: strings.Repeat("a", MaxMessageLength+1)}, ErrMessageTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestModeValid(t *testing.T) {
	for _, m := range []Mode{ModeNone, ModeAwaitingPainResponse, ModeAwaitingPainDetails,
		ModeAwaitingPainPlanConfirmation, ModeAwaitingOnboardingConfirmation, ModeAwaitingPreferenceEdit} {
		if !m.Valid() {
			t.Errorf("mode %q should be valid", m)
		}
	}
	if Mode("bogus").Valid() {
		t.Error("unknown mode reported valid")
	}
	if ModeNone.String() != "none" {
		t.Errorf("ModeNone.String() = %q", ModeNone.String())
	}
}

func TestSessionEnterDropsForeignFields(t *testing.T) {
	s := NewSession("u1")
	s.TempBodyPart = "ginocchio"
	s.CurrentPainZone = "spalla"

	s.Enter(ModeAwaitingPainDetails)
	if s.TempBodyPart != "ginocchio" {
		t.Errorf("TempBodyPart should survive entering pain details, got %q", s.TempBodyPart)
	}
	if s.CurrentPainZone != "" {
		t.Errorf("CurrentPainZone should be cleared, got %q", s.CurrentPainZone)
	}

	s.ClearMode()
	if s.Mode != ModeNone || s.TempBodyPart != "" {
		t.Errorf("ClearMode left state behind: %+v", s)
	}
}

func TestSessionCloneDoesNotAlias(t *testing.T) {
	s := NewSession("u1")
	s.Transcript = append(s.Transcript, NewMessage(RoleUser, "ciao", nil))
	c := s.Clone()
	c.Transcript = append(c.Transcript, NewMessage(RoleAssistant, "ciao!", nil))
	c.Transcript[0].Text = "changed"

	if len(s.Transcript) != 1 || s.Transcript[0].Text != "ciao" {
		t.Errorf("original transcript modified: %+v", s.Transcript)
	}
}

func TestSessionHistory(t *testing.T) {
	s := NewSession("u1")
	for i := 0; i < 5; i++ {
		s.Transcript = append(s.Transcript, NewMessage(RoleUser, "m", nil))
	}
	if got := len(s.History(3)); got != 3 {
		t.Errorf("History(3) returned %d messages", got)
	}
	if got := len(s.History(10)); got != 5 {
		t.Errorf("History(10) returned %d messages", got)
	}
}

func TestWorkoutPlanValidateAndRender(t *testing.T) {
	p := &WorkoutPlan{Name: "Full body", DurationMinutes: 30, Exercises: []Exercise{
		{Name: "Lat Pulldown", Sets: 3, Reps: "10", RestSeconds: 60},
	}}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := p.Render()
	if !strings.Contains(out, "1. Lat Pulldown - 3x10") {
		t.Errorf("unexpected render: %q", out)
	}

	if err := (&WorkoutPlan{Name: "x"}).Validate(); err == nil {
		t.Error("expected error for plan without exercises")
	}
}

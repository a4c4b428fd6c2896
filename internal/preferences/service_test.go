package preferences

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/PrimeBot/internal/models"
	"github.com/BTreeMap/PrimeBot/internal/store"
)

func TestSummarizeWithoutOnboarding(t *testing.T) {
	svc := NewService(store.NewInMemoryStore())
	summary, ok, err := svc.Summarize(context.Background(), "u1")
	if err != nil || ok || summary != "" {
		t.Errorf("Summarize = %q, %v, %v; want empty, false, nil", summary, ok, err)
	}

	// Limitation flags alone are not onboarding data.
	svc.MarkLimitationsAsked(context.Background(), "u1")
	if _, ok, _ := svc.Summarize(context.Background(), "u1"); ok {
		t.Error("Summarize reported onboarding after only marking limitations")
	}
}

func TestSummarizeRendersFields(t *testing.T) {
	s := store.NewInMemoryStore()
	s.SavePreferences(models.Preferences{UserID: "u1", Goal: "massa", DaysPerWeek: 3, SessionDuration: 45, TrainingLocation: "palestra"})
	svc := NewService(s)

	summary, ok, err := svc.Summarize(context.Background(), "u1")
	if err != nil || !ok {
		t.Fatalf("Summarize = %v, %v", ok, err)
	}
	for _, want := range []string{"• Obiettivo: aumentare massa muscolare", "• Giorni a settimana: 3", "• Durata sessione: 45 minuti", "• Luogo: palestra"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
	if strings.Contains(summary, "Attrezzatura") {
		t.Errorf("summary shows empty field:\n%s", summary)
	}
}

func TestValidate(t *testing.T) {
	svc := NewService(store.NewInMemoryStore())
	tests := []struct {
		field, value string
		ok           bool
	}{
		{models.FieldGoal, "dimagrire", true},
		{models.FieldGoal, "volare", false},
		{models.FieldExperienceLevel, "avanzato", true},
		{models.FieldDaysPerWeek, "4", true},
		{models.FieldDaysPerWeek, "8", false},
		{models.FieldDaysPerWeek, "tanti", false},
		{models.FieldTrainingLocation, "outdoor", true},
		{models.FieldTrainingLocation, "ufficio", false},
		{models.FieldSessionDuration, "30", true},
		{models.FieldSessionDuration, "5", false},
		{models.FieldEquipment, "manubri, elastici", true},
		{models.FieldEquipment, " ", false},
	}
	for _, tt := range tests {
		err := svc.Validate(tt.field, tt.value)
		if (err == nil) != tt.ok {
			t.Errorf("Validate(%s, %q) = %v, want ok=%v", tt.field, tt.value, err, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrInvalidValue) {
			t.Errorf("Validate(%s, %q) error %v is not ErrInvalidValue", tt.field, tt.value, err)
		}
	}
	if err := svc.Validate("colore", "blu"); !errors.Is(err, models.ErrInvalidFieldName) {
		t.Errorf("Validate(unknown field) = %v, want ErrInvalidFieldName", err)
	}
}

func TestUpdate(t *testing.T) {
	s := store.NewInMemoryStore()
	s.SavePreferences(models.Preferences{UserID: "u1", Goal: "massa", DaysPerWeek: 3})
	svc := NewService(s)
	ctx := context.Background()

	res, err := svc.UpdateMany(ctx, "u1", []models.PreferenceEdit{{Field: models.FieldDaysPerWeek, Value: "4"}})
	if err != nil || !res.Success {
		t.Fatalf("UpdateMany = %+v, %v", res, err)
	}
	p, _ := s.GetPreferences("u1")
	if p.DaysPerWeek != 4 || p.Goal != "massa" {
		t.Errorf("preferences after update = %+v", p)
	}

	res, err = svc.UpdateMany(ctx, "u1", []models.PreferenceEdit{{Field: models.FieldDaysPerWeek, Value: "9"}})
	if err != nil || res.Success {
		t.Errorf("invalid UpdateMany = %+v, %v; want unsuccessful result", res, err)
	}
	if p, _ := s.GetPreferences("u1"); p.DaysPerWeek != 4 {
		t.Errorf("invalid update was written: %+v", p)
	}
}

// countingRepo counts writes and can be told to fail them.
type countingRepo struct {
	*store.InMemoryStore
	saves   int
	saveErr error
}

func (r *countingRepo) SavePreferences(p models.Preferences) error {
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.InMemoryStore.SavePreferences(p)
}

func TestUpdateManyWritesOnce(t *testing.T) {
	repo := &countingRepo{InMemoryStore: store.NewInMemoryStore()}
	svc := NewService(repo)

	res, err := svc.UpdateMany(context.Background(), "u1", []models.PreferenceEdit{
		{Field: models.FieldGoal, Value: "dimagrire"},
		{Field: models.FieldExperienceLevel, Value: "intermedio"},
	})
	if err != nil || !res.Success {
		t.Fatalf("UpdateMany = %+v, %v", res, err)
	}
	if repo.saves != 1 {
		t.Errorf("saves = %d, want 1", repo.saves)
	}
	p, _ := repo.GetPreferences("u1")
	if p.Goal != "dimagrire" || p.ExperienceLevel != "intermedio" {
		t.Errorf("preferences = %+v", p)
	}
}

func TestUpdateManyAllOrNothing(t *testing.T) {
	repo := &countingRepo{InMemoryStore: store.NewInMemoryStore()}
	svc := NewService(repo)
	ctx := context.Background()

	res, err := svc.UpdateMany(ctx, "u1", []models.PreferenceEdit{
		{Field: models.FieldGoal, Value: "dimagrire"},
		{Field: models.FieldDaysPerWeek, Value: "9"},
	})
	if err != nil || res.Success {
		t.Fatalf("UpdateMany with invalid edit = %+v, %v; want unsuccessful result", res, err)
	}
	if !strings.Contains(res.Message, "giorni") {
		t.Errorf("message does not name the rejected field: %q", res.Message)
	}
	if repo.saves != 0 {
		t.Errorf("saves = %d, want none", repo.saves)
	}

	repo.saveErr = errors.New("disk full")
	_, err = svc.UpdateMany(ctx, "u1", []models.PreferenceEdit{
		{Field: models.FieldGoal, Value: "dimagrire"},
		{Field: models.FieldExperienceLevel, Value: "intermedio"},
	})
	if err == nil {
		t.Fatal("expected save error")
	}
	if p, _ := repo.GetPreferences("u1"); p != nil {
		t.Errorf("failed save left preferences behind: %+v", p)
	}
}

func TestSaveKeepsLimitationFlags(t *testing.T) {
	s := store.NewInMemoryStore()
	svc := NewService(s)
	ctx := context.Background()
	if err := svc.MarkLimitationsAnswered(ctx, "u1"); err != nil {
		t.Fatalf("MarkLimitationsAnswered: %v", err)
	}
	if err := svc.Save(ctx, models.Preferences{UserID: "u1", Goal: "tonificare"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	p, _ := svc.Get(ctx, "u1")
	if !p.LimitationsAsked || !p.LimitationsAnswered || p.Goal != "tonificare" {
		t.Errorf("preferences = %+v", p)
	}
	if err := svc.Save(ctx, models.Preferences{UserID: "u1", DaysPerWeek: 12}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Save(invalid) = %v, want ErrInvalidValue", err)
	}
}

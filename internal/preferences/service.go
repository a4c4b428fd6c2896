// Package preferences stores onboarding preferences and renders the summary
// shown before plan generation.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/PrimeBot/internal/models"
	"github.com/BTreeMap/PrimeBot/internal/store"
)

// ErrInvalidValue is returned by Validate for values outside a field's domain.
var ErrInvalidValue = errors.New("invalid preference value")

// Duration bounds in minutes.
const (
	MinSessionDuration = 15
	MaxSessionDuration = 180
)

// FieldLabels maps field names to their Italian display labels.
var FieldLabels = map[string]string{
	models.FieldGoal:             "Obiettivo",
	models.FieldExperienceLevel:  "Livello",
	models.FieldDaysPerWeek:      "Giorni a settimana",
	models.FieldTrainingLocation: "Luogo",
	models.FieldSessionDuration:  "Durata sessione",
	models.FieldEquipment:        "Attrezzatura",
}

var goalLabels = map[string]string{
	"massa":      "aumentare massa muscolare",
	"dimagrire":  "perdere peso",
	"resistenza": "migliorare resistenza",
	"tonificare": "tonificare il corpo",
}

var (
	validLevels    = map[string]bool{"principiante": true, "intermedio": true, "avanzato": true}
	validLocations = map[string]bool{"casa": true, "palestra": true, "outdoor": true}
)

// Service reads and writes preferences through a store.PreferenceRepo.
type Service struct {
	repo store.PreferenceRepo
}

// NewService creates a Service.
func NewService(repo store.PreferenceRepo) *Service {
	return &Service{repo: repo}
}

// Get returns the stored preferences, or an empty record for the user.
func (s *Service) Get(ctx context.Context, userID string) (models.Preferences, error) {
	if err := ctx.Err(); err != nil {
		return models.Preferences{}, err
	}
	p, err := s.repo.GetPreferences(userID)
	if err != nil {
		return models.Preferences{}, fmt.Errorf("failed to load preferences: %w", err)
	}
	if p == nil {
		return models.Preferences{UserID: userID}, nil
	}
	return *p, nil
}

// Summarize renders the onboarding summary. ok is false when the user has no
// onboarding answers, in which case the confirmation flow is skipped.
func (s *Service) Summarize(ctx context.Context, userID string) (string, bool, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if !p.HasOnboarding() {
		return "", false, nil
	}
	return Render(p), true, nil
}

// Render formats preferences as an Italian bullet list.
func Render(p models.Preferences) string {
	var b strings.Builder
	b.WriteString("📋 Ecco le preferenze che ho salvato per te:")
	line := func(field, value string) {
		if value != "" {
			fmt.Fprintf(&b, "\n• %s: %s", FieldLabels[field], value)
		}
	}
	if label, ok := goalLabels[p.Goal]; ok {
		line(models.FieldGoal, label)
	} else {
		line(models.FieldGoal, p.Goal)
	}
	line(models.FieldExperienceLevel, p.ExperienceLevel)
	if p.DaysPerWeek > 0 {
		line(models.FieldDaysPerWeek, strconv.Itoa(p.DaysPerWeek))
	}
	line(models.FieldTrainingLocation, p.TrainingLocation)
	if p.SessionDuration > 0 {
		line(models.FieldSessionDuration, fmt.Sprintf("%d minuti", p.SessionDuration))
	}
	line(models.FieldEquipment, p.Equipment)
	return b.String()
}

// Validate checks a single field/value pair without writing anything.
func (s *Service) Validate(field, value string) error {
	value = strings.TrimSpace(value)
	switch field {
	case models.FieldGoal:
		if _, ok := goalLabels[value]; !ok {
			return fmt.Errorf("%w: obiettivo %q", ErrInvalidValue, value)
		}
	case models.FieldExperienceLevel:
		if !validLevels[value] {
			return fmt.Errorf("%w: livello %q", ErrInvalidValue, value)
		}
	case models.FieldDaysPerWeek:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 7 {
			return fmt.Errorf("%w: giorni %q (1-7)", ErrInvalidValue, value)
		}
	case models.FieldTrainingLocation:
		if !validLocations[value] {
			return fmt.Errorf("%w: luogo %q", ErrInvalidValue, value)
		}
	case models.FieldSessionDuration:
		n, err := strconv.Atoi(value)
		if err != nil || n < MinSessionDuration || n > MaxSessionDuration {
			return fmt.Errorf("%w: durata %q (%d-%d minuti)", ErrInvalidValue, value, MinSessionDuration, MaxSessionDuration)
		}
	case models.FieldEquipment:
		if value == "" {
			return fmt.Errorf("%w: attrezzatura vuota", ErrInvalidValue)
		}
	default:
		return fmt.Errorf("%w: %q", models.ErrInvalidFieldName, field)
	}
	return nil
}

// UpdateMany applies edits with a single write. If any edit is invalid nothing
// is stored and the result names every rejected field; errors are reserved for
// storage failures.
func (s *Service) UpdateMany(ctx context.Context, userID string, edits []models.PreferenceEdit) (models.UpdateResult, error) {
	if len(edits) == 0 {
		return models.UpdateResult{Success: false, Message: "nessuna modifica"}, nil
	}
	var rejected []string
	for _, e := range edits {
		if err := s.Validate(e.Field, e.Value); err != nil {
			slog.Debug("PreferenceService.UpdateMany: rejected", "userID", userID, "field", e.Field, "error", err)
			rejected = append(rejected, err.Error())
		}
	}
	if len(rejected) > 0 {
		return models.UpdateResult{Success: false, Message: strings.Join(rejected, "; ")}, nil
	}

	p, err := s.Get(ctx, userID)
	if err != nil {
		return models.UpdateResult{}, err
	}
	labels := make([]string, 0, len(edits))
	for _, e := range edits {
		apply(&p, e.Field, strings.TrimSpace(e.Value))
		labels = append(labels, FieldLabels[e.Field])
	}
	if err := s.repo.SavePreferences(p); err != nil {
		return models.UpdateResult{}, fmt.Errorf("failed to save preferences: %w", err)
	}
	slog.Info("PreferenceService.UpdateMany: preferences updated", "userID", userID, "fields", len(edits))
	return models.UpdateResult{Success: true, Message: strings.Join(labels, ", ") + " aggiornato"}, nil
}

// Save validates every non-empty field and stores the record as a whole.
func (s *Service) Save(ctx context.Context, p models.Preferences) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, field := range models.PreferenceFields {
		v := fieldValue(p, field)
		if v == "" {
			continue
		}
		if err := s.Validate(field, v); err != nil {
			return err
		}
	}
	existing, err := s.Get(ctx, p.UserID)
	if err != nil {
		return err
	}
	p.LimitationsAsked = p.LimitationsAsked || existing.LimitationsAsked
	p.LimitationsAnswered = p.LimitationsAnswered || existing.LimitationsAnswered
	if err := s.repo.SavePreferences(p); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// MarkLimitationsAsked records that the limitation question was put to the user.
func (s *Service) MarkLimitationsAsked(ctx context.Context, userID string) error {
	return s.setFlags(ctx, userID, func(p *models.Preferences) { p.LimitationsAsked = true })
}

// MarkLimitationsAnswered records that the user answered the limitation question.
func (s *Service) MarkLimitationsAnswered(ctx context.Context, userID string) error {
	return s.setFlags(ctx, userID, func(p *models.Preferences) {
		p.LimitationsAsked = true
		p.LimitationsAnswered = true
	})
}

func (s *Service) setFlags(ctx context.Context, userID string, set func(*models.Preferences)) error {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	set(&p)
	if err := s.repo.SavePreferences(p); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

func apply(p *models.Preferences, field, value string) {
	switch field {
	case models.FieldGoal:
		p.Goal = value
	case models.FieldExperienceLevel:
		p.ExperienceLevel = value
	case models.FieldDaysPerWeek:
		p.DaysPerWeek, _ = strconv.Atoi(value)
	case models.FieldTrainingLocation:
		p.TrainingLocation = value
	case models.FieldSessionDuration:
		p.SessionDuration, _ = strconv.Atoi(value)
	case models.FieldEquipment:
		p.Equipment = value
	}
}

func fieldValue(p models.Preferences, field string) string {
	switch field {
	case models.FieldGoal:
		return p.Goal
	case models.FieldExperienceLevel:
		return p.ExperienceLevel
	case models.FieldDaysPerWeek:
		if p.DaysPerWeek == 0 {
			return ""
		}
		return strconv.Itoa(p.DaysPerWeek)
	case models.FieldTrainingLocation:
		return p.TrainingLocation
	case models.FieldSessionDuration:
		if p.SessionDuration == 0 {
			return ""
		}
		return strconv.Itoa(p.SessionDuration)
	case models.FieldEquipment:
		return p.Equipment
	}
	return ""
}

package models

import (
	"fmt"
	"strings"
	"time"
)

// PainSource records where a pain declaration came from.
type PainSource string

const (
	PainSourceOnboarding PainSource = "onboarding"
	PainSourceChat       PainSource = "chat"
)

// PainRecord is a tracked pain or injury, identified by zone within a user.
type PainRecord struct {
	Zone        string     `json:"zone"`
	Description string     `json:"description"`
	Source      PainSource `json:"source"`
	AddedAt     time.Time  `json:"added_at"`
}

// DeclareResult reports the outcome of declaring a pain.
type DeclareResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Preference field names accepted by the preference store.
const (
	FieldGoal             = "goal"
	FieldExperienceLevel  = "experienceLevel"
	FieldDaysPerWeek      = "daysPerWeek"
	FieldTrainingLocation = "trainingLocation"
	FieldSessionDuration  = "sessionDuration"
	FieldEquipment        = "equipment"
)

// PreferenceFields lists the editable fields in display order.
var PreferenceFields = []string{
	FieldGoal, FieldExperienceLevel, FieldDaysPerWeek, FieldTrainingLocation, FieldSessionDuration, FieldEquipment,
}

// Preferences holds a user's onboarding answers.
type Preferences struct {
	UserID              string    `json:"user_id"`
	Goal                string    `json:"goal,omitempty"`
	ExperienceLevel     string    `json:"experience_level,omitempty"`
	DaysPerWeek         int       `json:"days_per_week,omitempty"`
	TrainingLocation    string    `json:"training_location,omitempty"`
	SessionDuration     int       `json:"session_duration,omitempty"`
	Equipment           string    `json:"equipment,omitempty"`
	LimitationsAsked    bool      `json:"limitations_asked"`
	LimitationsAnswered bool      `json:"limitations_answered"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// HasOnboarding reports whether any onboarding answer is present.
func (p Preferences) HasOnboarding() bool {
	return p.Goal != "" || p.ExperienceLevel != "" || p.DaysPerWeek > 0 ||
		p.TrainingLocation != "" || p.SessionDuration > 0 || p.Equipment != ""
}

// PreferenceEdit is one requested change to a preference field.
type PreferenceEdit struct {
	Field string
	Value string
}

// UpdateResult is the outcome of a preference update.
type UpdateResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WorkoutType is the broad category of a plan.
type WorkoutType string

const (
	WorkoutStrength WorkoutType = "forza"
	WorkoutCardio   WorkoutType = "cardio"
	WorkoutHIIT     WorkoutType = "hiit"
	WorkoutMobility WorkoutType = "mobilita"
	WorkoutCustom   WorkoutType = "personalizzato"
)

// Exercise is one entry of a workout plan.
type Exercise struct {
	Name         string `json:"name"`
	Sets         int    `json:"sets,omitempty"`
	Reps         string `json:"reps,omitempty"`
	RestSeconds  int    `json:"rest_seconds,omitempty"`
	Notes        string `json:"notes,omitempty"`
	ExerciseType string `json:"exercise_type,omitempty"`
}

// WorkoutPlan is a structured plan produced by the plan generator.
type WorkoutPlan struct {
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	WorkoutType     WorkoutType `json:"workout_type,omitempty"`
	DurationMinutes int         `json:"duration_minutes,omitempty"`
	Difficulty      string      `json:"difficulty,omitempty"`
	Exercises       []Exercise  `json:"exercises"`
	Warmup          string      `json:"warmup,omitempty"`
	Cooldown        string      `json:"cooldown,omitempty"`
	ProtectedZones  []string    `json:"protected_zones,omitempty"`
}

// Validate checks the fields every rendered plan needs.
func (p *WorkoutPlan) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("plan name is required")
	}
	if len(p.Exercises) == 0 {
		return fmt.Errorf("plan %q has no exercises", p.Name)
	}
	for i, ex := range p.Exercises {
		if strings.TrimSpace(ex.Name) == "" {
			return fmt.Errorf("exercise %d has no name", i)
		}
	}
	return nil
}

// Render formats the plan as plain text for chat transports.
func (p *WorkoutPlan) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏋️ %s", p.Name)
	if p.DurationMinutes > 0 {
		fmt.Fprintf(&b, " (%d min)", p.DurationMinutes)
	}
	b.WriteString("\n")
	if p.Description != "" {
		b.WriteString(p.Description + "\n")
	}
	if p.Warmup != "" {
		b.WriteString("Riscaldamento: " + p.Warmup + "\n")
	}
	for i, ex := range p.Exercises {
		fmt.Fprintf(&b, "%d. %s", i+1, ex.Name)
		if ex.Sets > 0 && ex.Reps != "" {
			fmt.Fprintf(&b, " - %dx%s", ex.Sets, ex.Reps)
		}
		if ex.RestSeconds > 0 {
			fmt.Fprintf(&b, ", recupero %ds", ex.RestSeconds)
		}
		if ex.Notes != "" {
			b.WriteString(" (" + ex.Notes + ")")
		}
		b.WriteString("\n")
	}
	if p.Cooldown != "" {
		b.WriteString("Defaticamento: " + p.Cooldown + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// PlanResultType discriminates the outcome of plan generation.
type PlanResultType string

const (
	PlanResultQuestion PlanResultType = "question"
	PlanResultPlan     PlanResultType = "plan"
	PlanResultError    PlanResultType = "error"
)

// PlanResult is the tagged outcome of a plan generation request.
// Type must be inspected before any other field.
type PlanResult struct {
	Type                   PlanResultType `json:"type"`
	Question               string         `json:"question,omitempty"`
	Plan                   *WorkoutPlan   `json:"plan,omitempty"`
	HasExistingLimitations bool           `json:"has_existing_limitations,omitempty"`
	HasAnsweredBefore      bool           `json:"has_answered_before,omitempty"`
	Message                string         `json:"message,omitempty"`
}

// CannedResponse is a fixed answer from the fallback table.
type CannedResponse struct {
	Text                   string            `json:"text"`
	Action                 *NavigationAction `json:"action,omitempty"`
	Warning                bool              `json:"warning,omitempty"`
	AskForPlanConfirmation bool              `json:"ask_for_plan_confirmation,omitempty"`
}

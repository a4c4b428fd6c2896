package planner

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PrimeBot/internal/intent"
	"github.com/BTreeMap/PrimeBot/internal/models"
	"github.com/BTreeMap/PrimeBot/internal/preferences"
)

//go:embed plan_prompt.txt
var defaultPlanPrompt string

// ErrNoJSONObject is returned when a model reply contains no JSON object.
var ErrNoJSONObject = errors.New("no JSON object in reply")

// LimitationsQuestion is asked once before the first plan of a user without tracked pains.
const LimitationsQuestion = "Prima di creare il tuo piano, hai qualche limitazione fisica, dolore o infortunio di cui dovrei tenere conto? 🏥\n\nSe non hai limitazioni rispondi pure \"nessuna\"."

// GenerationFailedMessage is shown when the model reply could not be turned into a plan.
const GenerationFailedMessage = "Non sono riuscito a generare il piano di allenamento. Riprova tra poco o descrivimi meglio cosa ti serve. 🙏"

type textGenerator interface {
	GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type painLister interface {
	List(ctx context.Context, userID string) ([]models.PainRecord, error)
}

type preferenceSource interface {
	Get(ctx context.Context, userID string) (models.Preferences, error)
	MarkLimitationsAsked(ctx context.Context, userID string) error
	MarkLimitationsAnswered(ctx context.Context, userID string) error
}

// Generator produces workout plans with the language model and filters them
// against the user's tracked pains.
type Generator struct {
	llm          textGenerator
	pains        painLister
	prefs        preferenceSource
	catalog      *Catalog
	systemPrompt string
}

// Option configures a Generator.
type Option func(*Generator)

// WithCatalog replaces the built-in exercise catalog.
func WithCatalog(c *Catalog) Option {
	return func(g *Generator) {
		if c != nil {
			g.catalog = c
		}
	}
}

// WithSystemPrompt replaces the built-in plan prompt.
func WithSystemPrompt(prompt string) Option {
	return func(g *Generator) {
		if strings.TrimSpace(prompt) != "" {
			g.systemPrompt = prompt
		}
	}
}

// NewGenerator creates a Generator.
func NewGenerator(llm textGenerator, pains painLister, prefs preferenceSource, opts ...Option) (*Generator, error) {
	g := &Generator{
		llm:          llm,
		pains:        pains,
		prefs:        prefs,
		systemPrompt: defaultPlanPrompt,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.catalog == nil {
		c, err := LoadCatalog()
		if err != nil {
			return nil, err
		}
		g.catalog = c
	}
	return g, nil
}

// GeneratePlan answers a plan request. It returns a question result when the user
// has never been asked about physical limitations, a plan result on success and an
// error result when the model reply is not a usable plan. Collaborator failures are
// returned as errors.
func (g *Generator) GeneratePlan(ctx context.Context, request, userID, sessionID string) (models.PlanResult, error) {
	slog.Debug("Generator.GeneratePlan: start", "userID", userID, "sessionID", sessionID)

	pains, err := g.pains.List(ctx, userID)
	if err != nil {
		return models.PlanResult{}, fmt.Errorf("failed to list pains: %w", err)
	}
	prefs, err := g.prefs.Get(ctx, userID)
	if err != nil {
		return models.PlanResult{}, fmt.Errorf("failed to load preferences: %w", err)
	}

	statesLimitations := mentionsLimitations(request)
	answered := prefs.LimitationsAnswered
	if len(pains) == 0 && !answered {
		if !prefs.LimitationsAsked && !statesLimitations {
			if err := g.prefs.MarkLimitationsAsked(ctx, userID); err != nil {
				return models.PlanResult{}, fmt.Errorf("failed to record limitations question: %w", err)
			}
			slog.Info("Generator.GeneratePlan: asking about limitations", "userID", userID)
			return models.PlanResult{Type: models.PlanResultQuestion, Question: LimitationsQuestion}, nil
		}
		// Either this request answers the question or it states limitations itself.
		if err := g.prefs.MarkLimitationsAnswered(ctx, userID); err != nil {
			return models.PlanResult{}, fmt.Errorf("failed to record limitations answer: %w", err)
		}
		answered = true
	}

	zones := make([]string, 0, len(pains))
	for _, p := range pains {
		zones = append(zones, p.Zone)
	}

	reply, err := g.llm.GeneratePromptWithContext(ctx, g.systemPrompt, buildUserPrompt(request, prefs, pains))
	if err != nil {
		return models.PlanResult{}, fmt.Errorf("plan generation failed: %w", err)
	}

	plan, err := parsePlan(reply)
	if err != nil {
		slog.Warn("Generator.GeneratePlan: unusable model reply", "userID", userID, "error", err)
		return models.PlanResult{Type: models.PlanResultError, Message: GenerationFailedMessage}, nil
	}

	if removed := g.applySafety(plan, zones); removed > 0 {
		slog.Info("Generator.GeneratePlan: unsafe exercises replaced", "userID", userID, "removed", removed, "zones", zones)
	}
	if len(plan.Exercises) == 0 {
		slog.Warn("Generator.GeneratePlan: no exercise survived the safety filter", "userID", userID)
		return models.PlanResult{Type: models.PlanResultError, Message: GenerationFailedMessage}, nil
	}

	slog.Info("Generator.GeneratePlan: plan generated", "userID", userID, "plan", plan.Name, "exercises", len(plan.Exercises))
	return models.PlanResult{
		Type:                   models.PlanResultPlan,
		Plan:                   plan,
		HasExistingLimitations: len(pains) > 0 || (statesLimitations && !isNoLimitationsReply(request)),
		HasAnsweredBefore:      answered,
	}, nil
}

func buildUserPrompt(request string, prefs models.Preferences, pains []models.PainRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Richiesta dell'utente: %s\n", strings.TrimSpace(request))
	if prefs.HasOnboarding() {
		b.WriteString("\n")
		b.WriteString(preferences.Render(prefs))
		b.WriteString("\n")
	}
	if len(pains) > 0 {
		b.WriteString("\nZone doloranti da proteggere (NON caricarle):\n")
		for _, p := range pains {
			fmt.Fprintf(&b, "- %s", p.Zone)
			if p.Description != "" {
				fmt.Fprintf(&b, ": %s", p.Description)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// parsePlan extracts and validates the first JSON object of a model reply.
func parsePlan(reply string) (*models.WorkoutPlan, error) {
	raw, err := extractJSONObject(reply)
	if err != nil {
		return nil, err
	}
	var plan models.WorkoutPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// extractJSONObject returns the first balanced {...} span of s. Braces inside JSON
// strings are ignored.
func extractJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", ErrNoJSONObject
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSONObject
}

// applySafety drops exercises excluded by any tracked zone and refills the plan
// from the zones' safe lists. Replacements are checked against every zone.
func (g *Generator) applySafety(plan *models.WorkoutPlan, zones []string) int {
	if len(zones) == 0 {
		return 0
	}
	plan.ProtectedZones = append([]string(nil), zones...)

	kept := make([]models.Exercise, 0, len(plan.Exercises))
	seen := make(map[string]bool)
	removed := 0
	for _, ex := range plan.Exercises {
		if g.excludedByAny(zones, ex.Name) {
			removed++
			continue
		}
		kept = append(kept, ex)
		seen[intent.Normalize(ex.Name)] = true
	}

	need := removed
	for _, zone := range zones {
		if need == 0 {
			break
		}
		for _, candidate := range g.catalog.SafeExercises(zone) {
			if need == 0 {
				break
			}
			key := intent.Normalize(candidate.Name)
			if seen[key] || g.excludedByAny(zones, candidate.Name) {
				continue
			}
			seen[key] = true
			kept = append(kept, candidate)
			need--
		}
	}
	plan.Exercises = kept
	return removed
}

func (g *Generator) excludedByAny(zones []string, exercise string) bool {
	for _, z := range zones {
		if g.catalog.Excludes(z, exercise) {
			return true
		}
	}
	return false
}

// mentionsLimitations reports whether a request already speaks about pains or
// limitations, so the limitations question is not needed.
func mentionsLimitations(request string) bool {
	norm := intent.Normalize(request)
	return strings.Contains(norm, "limitazion") || intent.MentionsPain(request) || isNoLimitationsReply(request)
}

var noLimitationPhrases = []string{
	"nessuna", "nessuna limitazione", "niente", "sto bene", "tutto ok", "tutto a posto",
	"nessun problema", "non ho limitazioni", "non ho problemi", "tutto perfetto", "tutto normale",
}

// isNoLimitationsReply reports a "no limitations" answer.
func isNoLimitationsReply(text string) bool {
	norm := " " + intent.Normalize(text) + " "
	for _, p := range noLimitationPhrases {
		if strings.Contains(norm, " "+p+" ") {
			return true
		}
	}
	return false
}

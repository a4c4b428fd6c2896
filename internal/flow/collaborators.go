package flow

import (
	"context"

	"github.com/BTreeMap/PrimeBot/internal/models"
)

// LanguageModel answers free text that no sub-flow claims.
type LanguageModel interface {
	Respond(ctx context.Context, req models.RespondRequest) (string, error)
}

// PlanGenerator produces workout plans. Callers must branch on PlanResult.Type
// before reading any other field.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, request, userID, sessionID string) (models.PlanResult, error)
}

// PainTracker owns the user's tracked pains.
type PainTracker interface {
	List(ctx context.Context, userID string) ([]models.PainRecord, error)
	Resolve(ctx context.Context, userID, zone string) (string, error)
	ResolveAll(ctx context.Context, userID string) (string, error)
	Declare(ctx context.Context, userID, zone, note string, source models.PainSource) (models.DeclareResult, error)
	CheckMessage(pains []models.PainRecord) string
	StillPresentMessage(zone string) string
	WhichPainMessage(pains []models.PainRecord) string
}

// PreferenceStore owns the onboarding preferences.
type PreferenceStore interface {
	// Summarize returns ok=false when the user has no onboarding data.
	Summarize(ctx context.Context, userID string) (summary string, ok bool, err error)
	// UpdateMany stores every edit or none of them.
	UpdateMany(ctx context.Context, userID string, edits []models.PreferenceEdit) (models.UpdateResult, error)
	Validate(field, value string) error
}

// CannedTable is the fixed fallback table consulted before plan generation.
type CannedTable interface {
	Lookup(text string) *models.CannedResponse
	Disclaimer() string
}

// Collaborators groups the services the orchestrator calls but does not own.
type Collaborators struct {
	LLM     LanguageModel
	Planner PlanGenerator
	Pains   PainTracker
	Prefs   PreferenceStore
	Canned  CannedTable
}

// The call helpers below bound every collaborator call with the configured timeout.

func (t *turn) bounded() (context.Context, context.CancelFunc) {
	return context.WithTimeout(t.ctx, t.o.opts.CollaboratorTimeout)
}

func (t *turn) listPains() ([]models.PainRecord, error) {
	ctx, cancel := t.bounded()
	defer cancel()
	return t.o.c.Pains.List(ctx, t.sess.UserID)
}

func (t *turn) resolvePain(zone string) (string, error) {
	ctx, cancel := t.bounded()
	defer cancel()
	return t.o.c.Pains.Resolve(ctx, t.sess.UserID, zone)
}

func (t *turn) resolveAllPains() (string, error) {
	ctx, cancel := t.bounded()
	defer cancel()
	return t.o.c.Pains.ResolveAll(ctx, t.sess.UserID)
}

func (t *turn) declarePain(zone, note string) (models.DeclareResult, error) {
	ctx, cancel := t.bounded()
	defer cancel()
	return t.o.c.Pains.Declare(ctx, t.sess.UserID, zone, note, models.PainSourceChat)
}

func (t *turn) summarize() (string, bool, error) {
	ctx, cancel := t.bounded()
	defer cancel()
	return t.o.c.Prefs.Summarize(ctx, t.sess.UserID)
}

func (t *turn) updatePreferences(edits []models.PreferenceEdit) (models.UpdateResult, error) {
	ctx, cancel := t.bounded()
	defer cancel()
	return t.o.c.Prefs.UpdateMany(ctx, t.sess.UserID, edits)
}

func (t *turn) generatePlan(request string) (models.PlanResult, error) {
	ctx, cancel := t.bounded()
	defer cancel()
	return t.o.c.Planner.GeneratePlan(ctx, request, t.sess.UserID, t.sess.ID)
}

func (t *turn) respond(req models.RespondRequest) (string, error) {
	ctx, cancel := t.bounded()
	defer cancel()
	return t.o.c.LLM.Respond(ctx, req)
}

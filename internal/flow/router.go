package flow

import (
	"log/slog"

	"github.com/BTreeMap/PrimeBot/internal/intent"
	"github.com/BTreeMap/PrimeBot/internal/models"
)

// modeHandlers maps each waiting mode to the handler that owns its next message.
var modeHandlers = map[models.Mode]handler{
	models.ModeAwaitingPainResponse:           handlePainResponse,
	models.ModeAwaitingPainDetails:            handlePainDetails,
	models.ModeAwaitingPainPlanConfirmation:   handlePainPlanConfirmation,
	models.ModeAwaitingOnboardingConfirmation: handleOnboardingConfirmation,
	models.ModeAwaitingPreferenceEdit:         handlePreferenceEdit,
}

// route picks the handler for the current message. Precedence, highest first:
// the active mode, a fresh injury in a plan request, tracked pains with a plan
// request, a first plan request with onboarding data, then the default pipeline.
func (t *turn) route() handler {
	mode := t.sess.Mode
	if mode != models.ModeNone {
		if intent.IsCancel(t.text) {
			return handleCancel
		}
		if h, ok := modeHandlers[mode]; ok {
			slog.Debug("Orchestrator.route: mode handler", "userID", t.sess.UserID, "mode", mode)
			return h
		}
		slog.Warn("Orchestrator.route: unknown mode, clearing", "userID", t.sess.UserID, "mode", mode)
		t.sess.ClearMode()
	}

	if !intent.IsPlanRequest(t.text) {
		return handleDefault
	}

	if _, ok := intent.DetectBodyPart(t.text); ok && intent.ClassifyMention(t.text) == intent.MentionPain {
		slog.Debug("Orchestrator.route: injury in plan request", "userID", t.sess.UserID)
		return handleInjuryEntry
	}

	if !t.sess.PainCheckDone {
		pains, err := t.listPains()
		if err != nil {
			slog.Warn("Orchestrator.route: pain lookup failed, skipping pain check", "userID", t.sess.UserID, "error", err)
		} else if len(pains) > 0 {
			return startPainCheck(pains)
		}
	}

	if !t.sess.PreferencesConfirmed {
		summary, ok, err := t.summarize()
		if err != nil {
			slog.Warn("Orchestrator.route: preference summary failed, skipping confirmation", "userID", t.sess.UserID, "error", err)
		} else if ok {
			return startOnboardingConfirmation(summary)
		}
	}

	return handleDefault
}

func handleCancel(t *turn) handler {
	slog.Info("Orchestrator.handleCancel: mode cancelled", "userID", t.sess.UserID, "mode", t.sess.Mode)
	t.sess.ClearMode()
	t.sess.PendingPlanRequest = ""
	t.sess.SkipFallback = false
	t.say("Ok, lasciamo stare 👍 Dimmi pure se ti serve altro!")
	return nil
}

package flow

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PrimeBot/internal/intent"
	"github.com/BTreeMap/PrimeBot/internal/models"
	"github.com/BTreeMap/PrimeBot/internal/pain"
)

// handleDefault runs the fallback pipeline: canned table, plan generation, then
// the language model.
func handleDefault(t *turn) handler {
	if t.sess.SkipFallback {
		t.sess.SkipFallback = false
		return handleLanguageModel
	}
	if t.forcedRequest != "" {
		return handlePlan
	}

	// A pending request means this message continues the plan conversation.
	if t.sess.PendingPlanRequest == "" {
		if resp := t.o.c.Canned.Lookup(t.text); resp != nil {
			return cannedReply(resp)
		}
	}

	if intent.IsPlanRequest(t.text) || t.sess.PendingPlanRequest != "" {
		return handlePlan
	}
	return handleLanguageModel
}

func cannedReply(resp *models.CannedResponse) handler {
	return func(t *turn) handler {
		var payload *models.Payload
		if resp.Action != nil {
			payload = &models.Payload{Kind: models.PayloadNavigation, Navigation: resp.Action}
		}
		t.sayWith(resp.Text, payload)
		if resp.AskForPlanConfirmation {
			t.sess.PendingPlanRequest = t.text
			t.sess.Enter(models.ModeAwaitingPainPlanConfirmation)
			slog.Info("Orchestrator.cannedReply: awaiting plan confirmation after warning", "userID", t.sess.UserID)
		}
		return nil
	}
}

// planRequest picks the text sent to the plan generator.
func (t *turn) planRequest() string {
	switch {
	case t.forcedRequest != "":
		return t.forcedRequest
	case t.sess.PendingPlanRequest == "":
		return t.text
	case intent.IsPlanRequest(t.text):
		// A new request replaces the old one.
		return t.text
	default:
		// Answer to a follow-up question about the pending request.
		return t.sess.PendingPlanRequest + "\n" + t.text
	}
}

// handlePlan calls the plan generator and renders its tagged result.
func handlePlan(t *turn) handler {
	request := t.planRequest()
	answering := t.forcedRequest == "" && t.sess.PendingPlanRequest != "" && !intent.IsPlanRequest(t.text)
	if answering && intent.MentionsPain(t.text) {
		if zone, ok := intent.DetectBodyPart(t.text); ok {
			if lat, hasSide := intent.ParseLaterality(t.text); hasSide {
				zone = intent.QualifyZone(zone, lat)
			}
			t.recordPain(zone, t.text)
		}
	}

	res, err := t.generatePlan(request)
	if err != nil {
		return t.fail("generatePlan", err)
	}

	switch res.Type {
	case models.PlanResultQuestion:
		if t.sess.PendingPlanRequest == "" || t.forcedRequest != "" {
			t.sess.PendingPlanRequest = request
		}
		slog.Info("Orchestrator.handlePlan: generator asked a question", "userID", t.sess.UserID)
		t.say(res.Question)
	case models.PlanResultPlan:
		t.sess.PendingPlanRequest = ""
		if res.Plan == nil {
			return t.fail("generatePlan", fmt.Errorf("plan result without plan"))
		}
		if res.HasExistingLimitations && res.HasAnsweredBefore && !t.sess.DisclaimerShown {
			t.sess.DisclaimerShown = true
			t.sayWith(t.o.c.Canned.Disclaimer(), &models.Payload{Kind: models.PayloadDisclaimer})
		}
		slog.Info("Orchestrator.handlePlan: plan delivered", "userID", t.sess.UserID, "plan", res.Plan.Name)
		t.sayWith(planIntro(res.Plan), &models.Payload{Kind: models.PayloadPlan, Plan: res.Plan})
	case models.PlanResultError:
		t.sess.PendingPlanRequest = ""
		slog.Warn("Orchestrator.handlePlan: generator reported an error", "userID", t.sess.UserID, "message", res.Message)
		t.say(res.Message)
	default:
		return t.fail("generatePlan", fmt.Errorf("unknown plan result type %q", res.Type))
	}
	return nil
}

func planIntro(p *models.WorkoutPlan) string {
	intro := "💪 Ecco il tuo piano: " + p.Name
	if len(p.ProtectedZones) == 0 {
		return intro
	}
	labels := make([]string, len(p.ProtectedZones))
	for i, z := range p.ProtectedZones {
		labels[i] = pain.Label(z)
	}
	return intro + "\n🛡️ Ho escluso gli esercizi che caricano " + strings.Join(labels, ", ") + "."
}

// handleLanguageModel forwards the message to the language model and extracts
// its action directives.
func handleLanguageModel(t *turn) handler {
	reply, err := t.respond(models.RespondRequest{
		UserID:    t.sess.UserID,
		SessionID: t.sess.ID,
		Text:      t.text,
		History:   t.history(),
	})
	if err != nil {
		return t.fail("respond", err)
	}

	clean, actions := ParseActions(reply)
	var payload *models.Payload
	if len(actions) > 0 {
		payload = &models.Payload{Kind: models.PayloadActions, Actions: actions}
	}
	if clean == "" && payload == nil {
		slog.Warn("Orchestrator.handleLanguageModel: empty reply", "userID", t.sess.UserID)
		t.say(genericErrorMessage)
		return nil
	}
	t.sayWith(clean, payload)
	return nil
}

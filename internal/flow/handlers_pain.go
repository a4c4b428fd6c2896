package flow

import (
	"fmt"
	"log/slog"
	"unicode"
	"unicode/utf8"

	"github.com/BTreeMap/PrimeBot/internal/intent"
	"github.com/BTreeMap/PrimeBot/internal/models"
	"github.com/BTreeMap/PrimeBot/internal/pain"
)

// limitationsRequestFormat is the plan request used once a pain zone is known.
const limitationsRequestFormat = "Crea un piano di allenamento considerando le mie limitazioni fisiche: %s"

func limitationsRequest(zone string) string {
	return fmt.Sprintf(limitationsRequestFormat, zone)
}

// handleInjuryEntry handles a plan request that mentions a fresh injury.
func handleInjuryEntry(t *turn) handler {
	zone, _ := intent.DetectBodyPart(t.text)
	lat, hasSide := intent.ParseLaterality(t.text)

	if intent.IsBilateral(zone) && !hasSide {
		t.sess.PendingPlanRequest = t.text
		t.sess.Enter(models.ModeAwaitingPainDetails)
		t.sess.TempBodyPart = zone
		slog.Info("Orchestrator.handleInjuryEntry: asking laterality", "userID", t.sess.UserID, "zone", zone)
		t.say(fmt.Sprintf("Mi dispiace per %s 😟 Da quale lato ti fa male? Destro, sinistro o entrambi?", pain.Label(zone)))
		return nil
	}

	if hasSide {
		zone = intent.QualifyZone(zone, lat)
	}
	t.recordPain(zone, t.text)
	t.forcedRequest = limitationsRequest(zone)
	return handlePlan
}

// handlePainDetails completes a pending injury with its laterality.
func handlePainDetails(t *turn) handler {
	base := t.sess.TempBodyPart
	if base == "" {
		slog.Warn("Orchestrator.handlePainDetails: no pending body part, clearing mode", "userID", t.sess.UserID)
		t.sess.ClearMode()
		return handleDefault
	}
	lat, ok := intent.ParseLaterality(t.text)
	if !ok {
		t.say(fmt.Sprintf("Non ho capito il lato 🤔 Ti fa male %s destro, sinistro o da entrambi i lati?", pain.Label(base)))
		return nil
	}

	zone := intent.QualifyZone(base, lat)
	note := t.sess.PendingPlanRequest
	t.sess.ClearMode()
	t.recordPain(zone, note)
	slog.Info("Orchestrator.handlePainDetails: pain qualified", "userID", t.sess.UserID, "zone", zone)
	t.forcedRequest = limitationsRequest(zone)
	return handlePlan
}

// recordPain declares zone. A rejected declaration does not stop the plan.
func (t *turn) recordPain(zone, note string) {
	res, err := t.declarePain(zone, note)
	switch {
	case err != nil:
		slog.Warn("Orchestrator.recordPain: declare failed", "userID", t.sess.UserID, "zone", zone, "error", err)
	case !res.Success:
		slog.Warn("Orchestrator.recordPain: declare rejected", "userID", t.sess.UserID, "zone", zone, "reason", res.Error)
	}
}

// startPainCheck asks whether the oldest tracked pain is gone before planning.
func startPainCheck(pains []models.PainRecord) handler {
	return func(t *turn) handler {
		t.sess.PendingPlanRequest = t.text
		t.sess.PainCheckDone = true
		t.sess.Enter(models.ModeAwaitingPainResponse)
		t.sess.CurrentPainZone = pains[0].Zone
		slog.Info("Orchestrator.startPainCheck: asking about tracked pain", "userID", t.sess.UserID, "zone", pains[0].Zone, "tracked", len(pains))
		t.say(t.o.c.Pains.CheckMessage(pains))
		return nil
	}
}

// handlePainResponse handles the answer to "has the pain passed?".
func handlePainResponse(t *turn) handler {
	switch intent.ClassifyPainReply(t.text) {
	case intent.PainReplyGone:
		return t.painGone()
	case intent.PainReplyStill:
		return t.painStill()
	}
	zone := t.sess.CurrentPainZone
	if zone == "" {
		t.say("Non ho capito bene 🤔 Il dolore è passato o c'è ancora? Rispondi ad esempio \"è passato\" oppure \"fa ancora male\".")
		return nil
	}
	t.say(fmt.Sprintf("Non ho capito bene 🤔 %s ti fa ancora male o è passato? Rispondi ad esempio \"è passato\" oppure \"fa ancora male\".", capitalizeFirst(pain.Label(zone))))
	return nil
}

func (t *turn) painGone() handler {
	if intent.MentionsAll(t.text) {
		msg, err := t.resolveAllPains()
		if err != nil {
			return t.fail("resolveAll", err)
		}
		t.sess.ClearMode()
		t.say(msg)
		return nil
	}

	pains, err := t.listPains()
	if err != nil {
		return t.fail("list", err)
	}
	zone := t.pickZone(pains)
	if zone == "" {
		switch {
		case len(pains) == 0:
			msg, err := t.resolveAllPains()
			if err != nil {
				return t.fail("resolveAll", err)
			}
			t.sess.ClearMode()
			t.say(msg)
			return nil
		case len(pains) == 1 || t.o.opts.PainResolution == PainResolutionResolveFirst:
			zone = pains[0].Zone
		default:
			slog.Info("Orchestrator.painGone: ambiguous reply, asking which pain", "userID", t.sess.UserID, "tracked", len(pains))
			t.say(t.o.c.Pains.WhichPainMessage(pains))
			return nil
		}
	}

	msg, err := t.resolvePain(zone)
	if err != nil {
		return t.fail("resolve", err)
	}
	slog.Info("Orchestrator.painGone: pain resolved", "userID", t.sess.UserID, "zone", zone)
	t.say(msg)

	remaining := withoutZone(pains, zone)
	if len(remaining) > 0 {
		t.sess.CurrentPainZone = remaining[0].Zone
		return nil
	}
	t.sess.ClearMode()
	return nil
}

func (t *turn) painStill() handler {
	pains, err := t.listPains()
	if err != nil {
		return t.fail("list", err)
	}
	zone := t.pickZone(pains)
	if zone == "" && len(pains) > 0 {
		zone = pains[0].Zone
	}
	t.sess.ClearMode()
	t.sess.PainCheckDone = true
	if zone == "" {
		// Nothing tracked: keep going with whatever was pending.
		return handleDefault
	}

	t.say(t.o.c.Pains.StillPresentMessage(zone))
	if t.sess.PendingPlanRequest != "" {
		t.forcedRequest = t.sess.PendingPlanRequest
	} else {
		t.forcedRequest = limitationsRequest(zone)
	}
	return handlePlan
}

// pickZone finds the pain the reply is about: a tracked zone named in the text,
// then the zone under discussion. It returns "" when neither applies.
func (t *turn) pickZone(pains []models.PainRecord) string {
	if named, ok := intent.DetectBodyPart(t.text); ok {
		for _, p := range pains {
			if intent.BaseZone(p.Zone) == named {
				return p.Zone
			}
		}
	}
	if z := t.sess.CurrentPainZone; z != "" {
		for _, p := range pains {
			if p.Zone == z {
				return z
			}
		}
	}
	return ""
}

func withoutZone(pains []models.PainRecord, zone string) []models.PainRecord {
	out := make([]models.PainRecord, 0, len(pains))
	for _, p := range pains {
		if p.Zone != zone {
			out = append(out, p)
		}
	}
	return out
}

// handlePainPlanConfirmation handles the go/no-go after a pain safety warning.
func handlePainPlanConfirmation(t *turn) handler {
	switch {
	case intent.IsDecline(t.text):
		slog.Info("Orchestrator.handlePainPlanConfirmation: declined", "userID", t.sess.UserID)
		t.sess.ClearMode()
		t.sess.PendingPlanRequest = ""
		t.say("Va bene, nessun problema! 💙 Prenditi cura di te e, se il dolore continua, parlane con un professionista. Quando ti senti pronto, sono qui.")
		return nil
	case intent.IsConfirm(t.text):
		pending := t.sess.PendingPlanRequest
		t.sess.ClearMode()
		if zone, ok := intent.DetectBodyPart(pending); ok {
			if lat, hasSide := intent.ParseLaterality(pending); hasSide {
				zone = intent.QualifyZone(zone, lat)
			}
			t.recordPain(zone, pending)
			t.forcedRequest = limitationsRequest(zone)
		} else {
			t.forcedRequest = "Crea un piano di allenamento leggero considerando le mie limitazioni fisiche"
		}
		slog.Info("Orchestrator.handlePainPlanConfirmation: confirmed", "userID", t.sess.UserID)
		return handlePlan
	}
	// Free text here is usually more context about the pain.
	t.sess.ClearMode()
	t.sess.PendingPlanRequest = ""
	t.sess.SkipFallback = true
	return handleDefault
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

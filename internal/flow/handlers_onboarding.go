package flow

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PrimeBot/internal/intent"
	"github.com/BTreeMap/PrimeBot/internal/models"
	"github.com/BTreeMap/PrimeBot/internal/preferences"
)

const confirmSummaryPrompt = "È tutto corretto? Rispondi \"sì\" per creare il piano oppure \"modifica\" per cambiare qualcosa."

const preferenceExamples = "Non ho capito cosa vuoi cambiare 🤔 Prova ad esempio con:\n" +
	"• \"voglio allenarmi 4 giorni a settimana\"\n" +
	"• \"obiettivo dimagrire\"\n" +
	"• \"sono intermedio\"\n" +
	"• \"mi alleno in palestra\"\n" +
	"• \"sessioni da 45 minuti\"\n" +
	"• \"ho manubri e elastici\"\n\n" +
	"Quando hai finito scrivi \"procedi\"."

const saveFailedMessage = "⚠️ Non sono riuscito a salvare le modifiche, nessuna preferenza è stata cambiata. Riprova tra qualche istante."

// startOnboardingConfirmation shows the stored preferences before the first plan.
func startOnboardingConfirmation(summary string) handler {
	return func(t *turn) handler {
		t.sess.PendingPlanRequest = t.text
		t.sess.Enter(models.ModeAwaitingOnboardingConfirmation)
		slog.Info("Orchestrator.startOnboardingConfirmation: summary shown", "userID", t.sess.UserID)
		t.say(summary + "\n\n" + confirmSummaryPrompt)
		return nil
	}
}

// handleOnboardingConfirmation handles the reply to the preference summary.
// A modify request wins over a confirmation ("sì, modifica l'obiettivo").
func handleOnboardingConfirmation(t *turn) handler {
	switch {
	case intent.IsModifyRequest(t.text):
		t.sess.Enter(models.ModeAwaitingPreferenceEdit)
		slog.Info("Orchestrator.handleOnboardingConfirmation: editing preferences", "userID", t.sess.UserID)
		t.say(editableFieldsMessage())
		return nil
	case intent.IsConfirm(t.text):
		t.sess.PreferencesConfirmed = true
		t.sess.ClearMode()
		t.forcedRequest = t.pendingOr(t.text)
		slog.Info("Orchestrator.handleOnboardingConfirmation: confirmed", "userID", t.sess.UserID)
		return handlePlan
	}
	t.say("Non ho capito 🤔 " + confirmSummaryPrompt)
	return nil
}

// handlePreferenceEdit applies the edits named in the message, all or nothing.
func handlePreferenceEdit(t *turn) handler {
	if intent.IsProceed(t.text) {
		t.sess.PreferencesConfirmed = true
		t.sess.ClearMode()
		t.forcedRequest = t.pendingOr(t.text)
		slog.Info("Orchestrator.handlePreferenceEdit: proceeding to plan", "userID", t.sess.UserID)
		return handlePlan
	}

	edits := intent.ParsePreferenceEdits(t.text)
	if len(edits) == 0 {
		t.say(preferenceExamples)
		return nil
	}

	var rejected []string
	for _, e := range edits {
		if err := t.o.c.Prefs.Validate(e.Field, e.Value); err != nil {
			slog.Debug("Orchestrator.handlePreferenceEdit: invalid edit", "userID", t.sess.UserID, "field", e.Field, "value", e.Value, "error", err)
			rejected = append(rejected, fmt.Sprintf("%s (%s)", fieldLabel(e.Field), e.Value))
		}
	}
	if len(rejected) > 0 {
		t.say("Non ho potuto aggiornare: " + strings.Join(rejected, ", ") + ". Nessuna modifica è stata salvata, riprova con valori validi.")
		return nil
	}

	res, err := t.updatePreferences(edits)
	if err != nil {
		slog.Error("Orchestrator.handlePreferenceEdit: save failed", "userID", t.sess.UserID, "error", err)
		t.say(saveFailedMessage)
		return nil
	}
	if !res.Success {
		slog.Warn("Orchestrator.handlePreferenceEdit: update rejected", "userID", t.sess.UserID, "reason", res.Message)
		t.say("Non ho potuto aggiornare: " + res.Message + ". Nessuna modifica è stata salvata, riprova con valori validi.")
		return nil
	}
	slog.Info("Orchestrator.handlePreferenceEdit: preferences updated", "userID", t.sess.UserID, "count", len(edits))

	summary, ok, err := t.summarize()
	if err != nil {
		return t.fail("summarize", err)
	}
	t.sess.Enter(models.ModeAwaitingOnboardingConfirmation)
	if !ok {
		t.say("✅ Fatto! " + confirmSummaryPrompt)
		return nil
	}
	t.say("✅ Fatto!\n\n" + summary + "\n\n" + confirmSummaryPrompt)
	return nil
}

func (t *turn) pendingOr(fallback string) string {
	if t.sess.PendingPlanRequest != "" {
		return t.sess.PendingPlanRequest
	}
	return fallback
}

func editableFieldsMessage() string {
	var b strings.Builder
	b.WriteString("Certo! ✏️ Cosa vuoi modificare?\n")
	for _, f := range models.PreferenceFields {
		b.WriteString("• " + fieldLabel(f) + "\n")
	}
	b.WriteString("\nScrivimi il nuovo valore (ad esempio \"3 giorni a settimana\"), oppure \"procedi\" per creare il piano.")
	return b.String()
}

func fieldLabel(field string) string {
	if l, ok := preferences.FieldLabels[field]; ok {
		return l
	}
	return field
}

package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/PrimeBot/internal/models"
)

const genericErrorMessage = "⚠️ Ops, qualcosa è andato storto. Riprova tra qualche istante."

// handler processes the turn and returns the next handler to run, or nil when the
// turn is complete.
type handler func(t *turn) handler

// turn carries the working state of one Send.
type turn struct {
	o    *Orchestrator
	ctx  context.Context
	sess models.Session
	text string

	// messageAlreadyCommitted guards the single user message of the turn.
	messageAlreadyCommitted bool
	replies                 []models.Message

	// forcedRequest, when set, sends the default handler straight to plan
	// generation with this request.
	forcedRequest string
}

// commitUser appends the user's message. Later calls in the same turn are no-ops.
func (t *turn) commitUser() {
	if t.messageAlreadyCommitted {
		return
	}
	t.sess.Transcript = append(t.sess.Transcript, models.NewMessage(models.RoleUser, t.text, nil))
	t.messageAlreadyCommitted = true
}

// history is the transcript before the current user message.
func (t *turn) history() []models.Message {
	n := len(t.sess.Transcript)
	if t.messageAlreadyCommitted && n > 0 {
		return t.sess.Transcript[:n-1]
	}
	return t.sess.Transcript
}

func (t *turn) say(text string) {
	t.sayWith(text, nil)
}

func (t *turn) sayWith(text string, payload *models.Payload) {
	t.replies = append(t.replies, models.NewMessage(models.RoleAssistant, text, payload))
}

// fail reports a collaborator failure and leaves the session in a clean state.
func (t *turn) fail(op string, err error) handler {
	slog.Error("Orchestrator.Send: collaborator failed", "op", op, "userID", t.sess.UserID, "mode", t.sess.Mode, "error", err)
	t.sess.ClearMode()
	t.sess.PendingPlanRequest = ""
	t.sess.SkipFallback = false
	t.say(genericErrorMessage)
	return nil
}

// finish appends the assistant replies after the user message.
func (t *turn) finish() TurnResult {
	t.sess.Transcript = append(t.sess.Transcript, t.replies...)
	t.sess.UpdatedAt = time.Now()
	return TurnResult{Session: t.sess, Replies: t.replies}
}

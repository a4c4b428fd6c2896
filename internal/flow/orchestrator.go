// Package flow implements the PrimeBot dialogue orchestrator: a single-mode state
// machine that routes each user message to one sub-flow handler, and the session
// runner that serializes turns per user.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/PrimeBot/internal/models"
)

// DefaultCollaboratorTimeout bounds every collaborator call made during a turn.
const DefaultCollaboratorTimeout = 20 * time.Second

// PainResolutionPolicy decides what a generic "it's gone" reply resolves when the
// pain under discussion is unknown and several pains are tracked.
type PainResolutionPolicy int

const (
	// PainResolutionAskWhich asks the user which pain is gone.
	PainResolutionAskWhich PainResolutionPolicy = iota
	// PainResolutionResolveFirst resolves the oldest tracked pain.
	PainResolutionResolveFirst
)

// ParsePainResolutionPolicy maps "ask" and "first" to a policy.
func ParsePainResolutionPolicy(s string) (PainResolutionPolicy, bool) {
	switch s {
	case "ask", "":
		return PainResolutionAskWhich, true
	case "first":
		return PainResolutionResolveFirst, true
	}
	return PainResolutionAskWhich, false
}

// Options configures an Orchestrator.
type Options struct {
	CollaboratorTimeout time.Duration
	PainResolution      PainResolutionPolicy
}

// Option is a functional option for NewOrchestrator.
type Option func(*Options)

// WithCollaboratorTimeout overrides DefaultCollaboratorTimeout.
func WithCollaboratorTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.CollaboratorTimeout = d
		}
	}
}

// WithPainResolutionPolicy sets the policy for ambiguous "it's gone" replies.
func WithPainResolutionPolicy(p PainResolutionPolicy) Option {
	return func(o *Options) {
		o.PainResolution = p
	}
}

// Orchestrator runs one turn at a time over a session value. It holds no
// per-session state of its own and is safe for concurrent use across sessions.
type Orchestrator struct {
	c    Collaborators
	opts Options
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(c Collaborators, opts ...Option) *Orchestrator {
	o := Options{
		CollaboratorTimeout: DefaultCollaboratorTimeout,
		PainResolution:      PainResolutionAskWhich,
	}
	for _, opt := range opts {
		opt(&o)
	}
	slog.Debug("Orchestrator.NewOrchestrator: created", "timeout", o.CollaboratorTimeout, "painResolution", o.PainResolution)
	return &Orchestrator{c: c, opts: o}
}

// TurnResult is the outcome of one Send.
type TurnResult struct {
	Session models.Session
	// Replies holds the assistant messages appended during the turn.
	Replies []models.Message
}

// Send processes text as the next user message of sess and returns the updated
// session. The input session is not modified. Exactly one user message is
// appended to the transcript whatever path the turn takes.
func (o *Orchestrator) Send(ctx context.Context, sess models.Session, text string) TurnResult {
	t := &turn{
		o:    o,
		ctx:  ctx,
		sess: sess.Clone(),
		text: text,
	}
	t.commitUser()

	h := t.route()
	for h != nil {
		h = h(t)
	}
	return t.finish()
}

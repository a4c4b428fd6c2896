package messaging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BTreeMap/PrimeBot/internal/flow"
	"github.com/BTreeMap/PrimeBot/internal/store"
)

// BusyMessage is sent when a user's queue is full.
const BusyMessage = "⏳ Sto ancora rispondendo ai tuoi messaggi precedenti, dammi un attimo e riprova."

type turnRunner interface {
	SubmitAsync(ctx context.Context, userID, text string, fn func(flow.TurnResult, error)) error
}

// Bridge feeds inbound transport messages through the session runner and queues
// the replies in the outbox.
type Bridge struct {
	svc    Service
	runner turnRunner
	dedup  store.DedupRepo
	outbox store.OutboxRepo
}

// NewBridge creates a Bridge.
func NewBridge(svc Service, runner turnRunner, dedup store.DedupRepo, outbox store.OutboxRepo) *Bridge {
	return &Bridge{svc: svc, runner: runner, dedup: dedup, outbox: outbox}
}

// Run consumes the service's inbound channel until ctx ends or the channel closes.
func (b *Bridge) Run(ctx context.Context) error {
	slog.Info("Bridge.Run: started")
	in := b.svc.Responses()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Bridge.Run: stopping")
			return nil
		case msg, ok := <-in:
			if !ok {
				slog.Info("Bridge.Run: inbound channel closed")
				return nil
			}
			b.handle(ctx, msg.ID, msg.From, msg.Body)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, messageID, from, body string) {
	userID, err := b.svc.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("Bridge.handle: invalid sender, dropping", "from", from, "error", err)
		return
	}

	if messageID != "" {
		fresh, err := b.dedup.RecordInbound(messageID, userID)
		if err != nil {
			slog.Error("Bridge.handle: dedup record failed", "id", messageID, "error", err)
		} else if !fresh {
			slog.Info("Bridge.handle: duplicate message, skipping", "id", messageID, "userID", userID)
			return
		}
	}

	err = b.runner.SubmitAsync(ctx, userID, body, func(res flow.TurnResult, err error) {
		b.deliver(messageID, userID, res, err)
	})
	switch {
	case errors.Is(err, flow.ErrSessionBusy):
		b.enqueue(userID, BusyMessage, "")
		b.markProcessed(messageID)
	case err != nil:
		slog.Error("Bridge.handle: submit failed", "userID", userID, "error", err)
		b.releaseInbound(messageID)
	}
}

// deliver runs on the user's worker, so replies are queued in turn order.
func (b *Bridge) deliver(messageID, userID string, res flow.TurnResult, err error) {
	if err != nil && len(res.Replies) == 0 {
		slog.Error("Bridge.deliver: turn failed", "userID", userID, "error", err)
		b.releaseInbound(messageID)
		return
	}
	if err != nil {
		// The turn ran but could not be saved; the replies still reflect it.
		slog.Error("Bridge.deliver: session not saved", "userID", userID, "error", err)
	}
	for _, reply := range res.Replies {
		b.enqueue(userID, RenderMessage(reply), reply.ID)
	}
	b.markProcessed(messageID)
}

func (b *Bridge) enqueue(userID, body, dedupeKey string) {
	if body == "" {
		return
	}
	id, err := b.outbox.EnqueueOutboxMessage(userID, store.OutboxKindReply, body, dedupeKey)
	if err != nil {
		slog.Error("Bridge.enqueue: outbox enqueue failed", "userID", userID, "error", err)
		return
	}
	slog.Debug("Bridge.enqueue: reply queued", "userID", userID, "outboxID", id)
}

func (b *Bridge) markProcessed(messageID string) {
	if messageID == "" {
		return
	}
	if err := b.dedup.MarkProcessed(messageID); err != nil {
		slog.Warn("Bridge.markProcessed: failed", "id", messageID, "error", err)
	}
}

// releaseInbound lets a redelivery of messageID through again.
func (b *Bridge) releaseInbound(messageID string) {
	if messageID == "" {
		return
	}
	if err := b.dedup.ReleaseInbound(messageID); err != nil {
		slog.Warn("Bridge.releaseInbound: failed", "id", messageID, "error", err)
	}
}

// SendFunc adapts svc to the outbox sender.
func SendFunc(svc Service) store.OutboxSendFunc {
	return func(ctx context.Context, msg store.OutboxMessage) error {
		return svc.SendMessage(ctx, msg.Recipient, msg.Body)
	}
}

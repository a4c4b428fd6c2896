package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/PrimeBot/internal/models"
	"github.com/BTreeMap/PrimeBot/internal/twiliowhatsapp"
)

// TwilioService implements Service over the Twilio WhatsApp API. Inbound
// messages arrive through TwilioWebhookHandler.
type TwilioService struct {
	client twiliowhatsapp.Sender
	mu     sync.RWMutex
	in     inbox
}

// NewTwilioService creates a TwilioService sending through client.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client: client,
		in:     newInbox("TwilioService"),
	}
}

// ValidateAndCanonicalizeRecipient accepts "whatsapp:+39…" or plain numbers and
// returns the digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalPhone("TwilioService", strings.TrimPrefix(recipient, "whatsapp:"))
}

// Start is a no-op; Twilio pushes inbound messages to the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	slog.Debug("TwilioService.Start: waiting for webhooks")
	return nil
}

// Stop closes the inbound channel.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.in.stop() {
		slog.Info("TwilioService.Stop: stopped")
	}
	return nil
}

// SendMessage sends body to the canonical form of to.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.in.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage: invalid recipient", "to", to, "error", err)
		return err
	}
	if err := s.client.SendMessage(ctx, "+"+canonicalTo, body); err != nil {
		return fmt.Errorf("twilio send to %s: %w", canonicalTo, err)
	}
	return nil
}

// Responses returns the inbound message channel.
func (s *TwilioService) Responses() <-chan models.InboundMessage {
	return s.in.ch
}

// TwilioWebhookHandler parses an inbound Twilio webhook (From, Body, MessageSid)
// and emits it on the Responses channel.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("TwilioService.TwilioWebhookHandler: bad form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || strings.TrimSpace(body) == "" {
		slog.Warn("TwilioService.TwilioWebhookHandler: missing fields", "from", from, "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		http.Error(w, "Invalid sender", http.StatusBadRequest)
		return
	}

	id := r.FormValue("MessageSid")
	if id == "" {
		id = uuid.NewString()
	}
	msg := models.InboundMessage{ID: id, From: canonical, Body: body, Time: time.Now()}
	slog.Info("TwilioService.TwilioWebhookHandler: inbound message", "from", canonical, "id", id)

	s.mu.RLock()
	delivered := s.in.emit(msg)
	s.mu.RUnlock()
	if !delivered {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	// Replies go out through the REST API, so the TwiML answer is empty.
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "<Response></Response>")
}

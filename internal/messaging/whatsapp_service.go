package messaging

import (
	"context"
	"log/slog"
	"sync"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/PrimeBot/internal/models"
	"github.com/BTreeMap/PrimeBot/internal/whatsapp"
)

// messageSource is implemented by clients that deliver inbound whatsmeow events.
type messageSource interface {
	OnMessage(fn func(*events.Message))
}

// WhatsAppService implements Service over a linked whatsmeow device.
type WhatsAppService struct {
	client whatsapp.Sender
	mu     sync.RWMutex
	in     inbox
}

// NewWhatsAppService creates a WhatsAppService sending through client. When the
// client is a full *whatsapp.Client, Start also subscribes to inbound messages.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	return &WhatsAppService{
		client: client,
		in:     newInbox("WhatsAppService"),
	}
}

// ValidateAndCanonicalizeRecipient returns the digits of a phone number.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalPhone("WhatsAppService", recipient)
}

// Start subscribes to inbound messages when the client supports it.
func (s *WhatsAppService) Start(ctx context.Context) error {
	src, ok := s.client.(messageSource)
	if !ok {
		slog.Debug("WhatsAppService.Start: client has no event source, outbound only")
		return nil
	}
	src.OnMessage(s.handleIncomingMessage)
	slog.Info("WhatsAppService.Start: listening for messages")
	return nil
}

// Stop closes the inbound channel.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.in.stop() {
		slog.Info("WhatsAppService.Stop: stopped")
	}
	return nil
}

// SendMessage sends body to the phone number to.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.in.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// Responses returns the inbound message channel.
func (s *WhatsAppService) Responses() <-chan models.InboundMessage {
	return s.in.ch
}

func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	msg, ok := inboundFromEvent(evt)
	if !ok {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.in.emit(msg)
}

// inboundFromEvent extracts a direct text message. Own messages, group chats and
// media are ignored.
func inboundFromEvent(evt *events.Message) (models.InboundMessage, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return models.InboundMessage{}, false
	}

	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("WhatsAppService.handleIncomingMessage: ignoring non-text message", "from", evt.Info.Sender.String())
		return models.InboundMessage{}, false
	}
	if text == "" {
		return models.InboundMessage{}, false
	}

	from := evt.Info.Sender.User
	if from == "" {
		return models.InboundMessage{}, false
	}
	return models.InboundMessage{
		ID:   string(evt.Info.ID),
		From: from,
		Body: text,
		Time: evt.Info.Timestamp,
	}, true
}

// Package messaging connects PrimeBot to chat transports. Each Service turns a
// transport's inbound traffic into models.InboundMessage values and sends plain
// text replies; the Bridge feeds inbound messages through the session runner and
// queues the replies in the durable outbox.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/BTreeMap/PrimeBot/internal/models"
)

const (
	// DefaultChannelBufferSize is the buffer of each service's inbound channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an inbound message waits for a reader.
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned by SendMessage after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable chat transport.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates a recipient and returns its
	// canonical form, which is also the PrimeBot user ID.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins background processing.
	Start(ctx context.Context) error

	// Stop stops background processing and closes the inbound channel.
	Stop() error

	// Responses returns the channel of inbound user messages.
	Responses() <-chan models.InboundMessage
}

// canonicalPhone strips everything but digits and requires at least 6 of them.
func canonicalPhone(service, recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if canonical != recipient {
		slog.Debug(service+".ValidateAndCanonicalizeRecipient: canonicalized", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// inbox is the stop-aware inbound channel shared by the services.
type inbox struct {
	name    string
	ch      chan models.InboundMessage
	done    chan struct{}
	stopped bool
}

func newInbox(name string) inbox {
	return inbox{
		name: name,
		ch:   make(chan models.InboundMessage, DefaultChannelBufferSize),
		done: make(chan struct{}),
	}
}

// emit delivers msg unless the service stopped or no reader shows up in time.
// It reports whether the message was delivered. Callers hold the service lock
// for reading so Stop cannot close the channel underneath.
func (b *inbox) emit(msg models.InboundMessage) bool {
	if b.stopped {
		slog.Warn(b.name+".emit: service stopped, dropping inbound message", "from", msg.From)
		return false
	}
	select {
	case b.ch <- msg:
		slog.Debug(b.name+".emit: inbound message forwarded", "from", msg.From, "id", msg.ID)
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(b.name+".emit: inbound channel blocked, dropping message", "from", msg.From, "timeout", DefaultChannelTimeout)
		return false
	}
}

// stop marks the inbox stopped and closes its channel. Callers hold the
// service lock for writing.
func (b *inbox) stop() bool {
	if b.stopped {
		return false
	}
	b.stopped = true
	close(b.done)
	close(b.ch)
	return true
}

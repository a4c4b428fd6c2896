package genai

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/PrimeBot/internal/models"
)

//go:embed system_prompt.txt
var defaultSystemPrompt string

// DefaultHistoryLimit is how many transcript messages are sent as context.
const DefaultHistoryLimit = 12

type messageGenerator interface {
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// Responder answers free-form chat turns with the language model.
type Responder struct {
	gen          messageGenerator
	systemPrompt string
	historyLimit int
}

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithSystemPrompt replaces the built-in system prompt.
func WithSystemPrompt(prompt string) ResponderOption {
	return func(r *Responder) {
		if strings.TrimSpace(prompt) != "" {
			r.systemPrompt = prompt
		}
	}
}

// WithHistoryLimit sets how many previous messages are included.
func WithHistoryLimit(n int) ResponderOption {
	return func(r *Responder) {
		if n >= 0 {
			r.historyLimit = n
		}
	}
}

// NewResponder creates a Responder over client.
func NewResponder(client *Client, opts ...ResponderOption) *Responder {
	return newResponder(client, opts...)
}

func newResponder(gen messageGenerator, opts ...ResponderOption) *Responder {
	r := &Responder{gen: gen, systemPrompt: defaultSystemPrompt, historyLimit: DefaultHistoryLimit}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadSystemPrompt reads a prompt file, falling back to the built-in prompt when
// path is empty or unreadable.
func LoadSystemPrompt(path string) string {
	if path == "" {
		return defaultSystemPrompt
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Responder.LoadSystemPrompt: using built-in prompt", "path", path, "error", err)
		return defaultSystemPrompt
	}
	if strings.TrimSpace(string(data)) == "" {
		slog.Warn("Responder.LoadSystemPrompt: prompt file empty, using built-in prompt", "path", path)
		return defaultSystemPrompt
	}
	return string(data)
}

// Respond generates the assistant reply for req.
func (r *Responder) Respond(ctx context.Context, req models.RespondRequest) (string, error) {
	history := req.History
	if r.historyLimit >= 0 && len(history) > r.historyLimit {
		history = history[len(history)-r.historyLimit:]
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(r.systemPrompt))
	for _, m := range history {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		switch m.Role {
		case models.RoleUser:
			messages = append(messages, openai.UserMessage(m.Text))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Text))
		}
	}
	messages = append(messages, openai.UserMessage(req.Text))

	slog.Debug("Responder.Respond: calling model", "userID", req.UserID, "historyMessages", len(messages)-2)
	out, err := r.gen.GenerateWithMessages(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("responder failed: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("responder returned empty text")
	}
	return out, nil
}

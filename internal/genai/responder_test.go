package genai

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/PrimeBot/internal/models"
)

type recordingGenerator struct {
	messages []openai.ChatCompletionMessageParamUnion
	reply    string
	err      error
}

func (g *recordingGenerator) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	g.messages = messages
	return g.reply, g.err
}

func TestRespondBuildsConversation(t *testing.T) {
	gen := &recordingGenerator{reply: "  Ciao! Pronto ad allenarti?  "}
	r := newResponder(gen, WithHistoryLimit(2), WithSystemPrompt("sei un coach"))

	history := []models.Message{
		models.NewMessage(models.RoleUser, "primo", nil),
		models.NewMessage(models.RoleAssistant, "risposta", nil),
		models.NewMessage(models.RoleUser, "secondo", nil),
	}
	out, err := r.Respond(context.Background(), models.RespondRequest{UserID: "u1", Text: "ciao", History: history})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if out != "Ciao! Pronto ad allenarti?" {
		t.Errorf("Respond = %q", out)
	}
	// system + 2 history + current
	if len(gen.messages) != 4 {
		t.Fatalf("sent %d messages, want 4", len(gen.messages))
	}
	if gen.messages[0].OfSystem == nil {
		t.Error("first message is not the system prompt")
	}
	if gen.messages[1].OfAssistant == nil || gen.messages[2].OfUser == nil || gen.messages[3].OfUser == nil {
		t.Errorf("unexpected roles: %+v", gen.messages)
	}
}

func TestRespondErrors(t *testing.T) {
	r := newResponder(&recordingGenerator{err: errors.New("timeout")})
	if _, err := r.Respond(context.Background(), models.RespondRequest{Text: "ciao"}); err == nil {
		t.Error("expected error from failing generator")
	}

	r = newResponder(&recordingGenerator{reply: "   "})
	if _, err := r.Respond(context.Background(), models.RespondRequest{Text: "ciao"}); err == nil {
		t.Error("expected error for empty reply")
	}
}

func TestLoadSystemPrompt(t *testing.T) {
	if got := LoadSystemPrompt(""); got != defaultSystemPrompt {
		t.Error("empty path did not return the built-in prompt")
	}
	if got := LoadSystemPrompt(filepath.Join(t.TempDir(), "missing.txt")); got != defaultSystemPrompt {
		t.Error("missing file did not return the built-in prompt")
	}
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("prompt personalizzato"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := LoadSystemPrompt(path); got != "prompt personalizzato" {
		t.Errorf("LoadSystemPrompt = %q", got)
	}
}

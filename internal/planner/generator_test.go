package planner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BTreeMap/PrimeBot/internal/models"
	"github.com/BTreeMap/PrimeBot/internal/pain"
	"github.com/BTreeMap/PrimeBot/internal/preferences"
	"github.com/BTreeMap/PrimeBot/internal/store"
)

type fakeLLM struct {
	reply   string
	err     error
	calls   int
	prompts []string
}

func (f *fakeLLM) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, userPrompt)
	return f.reply, f.err
}

const kneeUnsafePlan = "Ecco il piano:\n```json\n" + `{
  "name": "Forza Total Body",
  "workout_type": "forza",
  "duration_minutes": 45,
  "exercises": [
    {"name": "Squat con bilanciere", "sets": 4, "reps": "8"},
    {"name": "Panca piana", "sets": 4, "reps": "8-10"},
    {"name": "Affondi", "sets": 3, "reps": "12"}
  ]
}` + "\n```"

func newTestGenerator(t *testing.T, llm *fakeLLM) (*Generator, *pain.Tracker, *preferences.Service) {
	t.Helper()
	st := store.NewInMemoryStore()
	tracker := pain.NewTracker(st)
	prefs := preferences.NewService(st)
	g, err := NewGenerator(llm, tracker, prefs)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g, tracker, prefs
}

func TestGeneratePlanAsksAboutLimitationsOnce(t *testing.T) {
	llm := &fakeLLM{reply: kneeUnsafePlan}
	g, _, prefs := newTestGenerator(t, llm)
	ctx := context.Background()

	res, err := g.GeneratePlan(ctx, "creami un piano di allenamento", "u1", "s1")
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if res.Type != models.PlanResultQuestion || res.Question != LimitationsQuestion {
		t.Fatalf("expected limitations question, got %+v", res)
	}
	if llm.calls != 0 {
		t.Errorf("model should not be called before the question is answered")
	}
	p, _ := prefs.Get(ctx, "u1")
	if !p.LimitationsAsked || p.LimitationsAnswered {
		t.Errorf("unexpected flags after question: %+v", p)
	}

	res, err = g.GeneratePlan(ctx, "creami un piano di allenamento\nnessuna", "u1", "s1")
	if err != nil {
		t.Fatalf("GeneratePlan answer: %v", err)
	}
	if res.Type != models.PlanResultPlan {
		t.Fatalf("expected plan after answer, got %+v", res)
	}
	if !res.HasAnsweredBefore || res.HasExistingLimitations {
		t.Errorf("unexpected limitation flags: %+v", res)
	}
	p, _ = prefs.Get(ctx, "u1")
	if !p.LimitationsAnswered {
		t.Errorf("answer was not recorded")
	}
	if len(res.Plan.ProtectedZones) != 0 || len(res.Plan.Exercises) != 3 {
		t.Errorf("plan without pains should be unchanged, got %+v", res.Plan)
	}
}

func TestGeneratePlanSkipsQuestionWhenRequestStatesLimitations(t *testing.T) {
	llm := &fakeLLM{reply: kneeUnsafePlan}
	g, _, _ := newTestGenerator(t, llm)

	res, err := g.GeneratePlan(context.Background(), "Crea un piano di allenamento considerando le mie limitazioni fisiche: schiena", "u1", "s1")
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if res.Type != models.PlanResultPlan {
		t.Fatalf("expected plan, got %+v", res)
	}
	if !res.HasExistingLimitations {
		t.Errorf("expected HasExistingLimitations")
	}
}

func TestGeneratePlanReplacesUnsafeExercises(t *testing.T) {
	llm := &fakeLLM{reply: kneeUnsafePlan}
	g, tracker, _ := newTestGenerator(t, llm)
	ctx := context.Background()
	if _, err := tracker.Declare(ctx, "u1", "ginocchio destro", "", models.PainSourceChat); err != nil {
		t.Fatalf("Declare: %v", err)
	}

	res, err := g.GeneratePlan(ctx, "voglio un piano per la forza", "u1", "s1")
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if res.Type != models.PlanResultPlan {
		t.Fatalf("expected plan, got %+v", res)
	}
	var names []string
	for _, ex := range res.Plan.Exercises {
		names = append(names, ex.Name)
	}
	want := []string{"Panca piana", "Chest Press Macchina", "Shoulder Press Macchina"}
	if strings.Join(names, "|") != strings.Join(want, "|") {
		t.Errorf("exercises = %v, want %v", names, want)
	}
	if len(res.Plan.ProtectedZones) != 1 || res.Plan.ProtectedZones[0] != "ginocchio destro" {
		t.Errorf("ProtectedZones = %v", res.Plan.ProtectedZones)
	}
	if !res.HasExistingLimitations {
		t.Errorf("expected HasExistingLimitations with a tracked pain")
	}
	if !strings.Contains(llm.prompts[0], "ginocchio destro") {
		t.Errorf("prompt should list the tracked pain, got %q", llm.prompts[0])
	}
}

func TestGeneratePlanMalformedReply(t *testing.T) {
	llm := &fakeLLM{reply: "Certo! Ecco il piano: {\"name\": \"Senza esercizi\""}
	g, tracker, _ := newTestGenerator(t, llm)
	ctx := context.Background()
	tracker.Declare(ctx, "u1", "schiena", "", models.PainSourceChat)

	res, err := g.GeneratePlan(ctx, "fammi una scheda", "u1", "s1")
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if res.Type != models.PlanResultError || res.Message != GenerationFailedMessage {
		t.Errorf("expected error result, got %+v", res)
	}

	llm.reply = `{"name": "Vuoto", "exercises": []}`
	res, _ = g.GeneratePlan(ctx, "fammi una scheda", "u1", "s1")
	if res.Type != models.PlanResultError {
		t.Errorf("plan without exercises should be rejected, got %+v", res)
	}
}

func TestGeneratePlanModelFailure(t *testing.T) {
	boom := errors.New("upstream down")
	llm := &fakeLLM{err: boom}
	g, tracker, _ := newTestGenerator(t, llm)
	ctx := context.Background()
	tracker.Declare(ctx, "u1", "collo", "", models.PainSourceChat)

	_, err := g.GeneratePlan(ctx, "fammi una scheda", "u1", "s1")
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped model error, got %v", err)
	}
}

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"testo prima {\"a\":{\"b\":2}} testo dopo {\"c\":3}", `{"a":{"b":2}}`},
		{`{"note":"usa {molta} attenzione \"}\""}`, `{"note":"usa {molta} attenzione \"}\""}`},
	}
	for _, c := range cases {
		got, err := extractJSONObject(c.in)
		if err != nil || got != c.want {
			t.Errorf("extractJSONObject(%q) = %q, %v; want %q", c.in, got, err, c.want)
		}
	}
	if _, err := extractJSONObject("nessun oggetto"); !errors.Is(err, ErrNoJSONObject) {
		t.Errorf("expected ErrNoJSONObject, got %v", err)
	}
	if _, err := extractJSONObject(`{"aperto": 1`); !errors.Is(err, ErrNoJSONObject) {
		t.Errorf("unbalanced object should fail, got %v", err)
	}
}

func TestCatalogExcludes(t *testing.T) {
	c, err := LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	cases := []struct {
		zone, exercise string
		want           bool
	}{
		{"spalla", "Push-up", true},
		{"spalla destra", "Military Press con manubri", true},
		{"spalla", "Leg Press", false},
		{"polso sinistro", "Leg Curl", true},
		{"ginocchio", "Squatting machine", false},
		{"gomito", "Rowing", false},
		{"sconosciuta", "Squat", false},
	}
	for _, tc := range cases {
		if got := c.Excludes(tc.zone, tc.exercise); got != tc.want {
			t.Errorf("Excludes(%q, %q) = %v, want %v", tc.zone, tc.exercise, got, tc.want)
		}
	}
	if len(c.SafeExercises("schiena")) == 0 || len(c.Advice("schiena")) == 0 {
		t.Errorf("schiena should have safe exercises and advice")
	}
}

func TestParseCatalogNormalizesTerms(t *testing.T) {
	c, err := ParseCatalog([]byte("zones:\n  petto:\n    exclude: [\"Panca Piana\"]\n    safe:\n      - {name: \"Leg Press\", sets: 3, reps: \"10\", rest_seconds: 60}\n"))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if !c.Excludes("petto", "panca piana con bilanciere") {
		t.Errorf("normalized exclusion should match")
	}
	safe := c.SafeExercises("petto")
	if len(safe) != 1 || safe[0].RestSeconds != 60 {
		t.Errorf("unexpected safe list %+v", safe)
	}
	if _, err := ParseCatalog([]byte("zones: [")); err == nil {
		t.Errorf("expected parse error")
	}
}

func TestWithCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := "zones:\n  polso:\n    exclude: [\"flessioni\"]\n    safe:\n      - {name: \"Cyclette\", sets: 1, reps: \"20 min\", rest_seconds: 0}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	custom, err := LoadCatalogFile(path)
	if err != nil {
		t.Fatalf("LoadCatalogFile: %v", err)
	}

	st := store.NewInMemoryStore()
	g, err := NewGenerator(&fakeLLM{}, pain.NewTracker(st), preferences.NewService(st), WithCatalog(custom))
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if g.catalog != custom {
		t.Fatal("custom catalog not installed")
	}
	if !g.catalog.Excludes("polso", "Flessioni sulle nocche") || g.catalog.Excludes("ginocchio", "squat") {
		t.Error("generator does not use the custom catalog rules")
	}

	g, err = NewGenerator(&fakeLLM{}, pain.NewTracker(st), preferences.NewService(st), WithCatalog(nil))
	if err != nil || g.catalog == nil {
		t.Errorf("nil catalog should keep the built-in one: %v", err)
	}

	if _, err := LoadCatalogFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadCatalogFile of a missing file returned nil error")
	}
}

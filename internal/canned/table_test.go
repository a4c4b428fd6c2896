package canned

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func mustLoad(t *testing.T) *Table {
	t.Helper()
	tbl, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return tbl
}

func TestLookupExactPreset(t *testing.T) {
	tbl := mustLoad(t)

	r := tbl.Lookup("Non ho tempo!")
	if r == nil || !strings.HasPrefix(r.Text, "Capisco! Con soli 10 minuti") {
		t.Fatalf("Lookup(non ho tempo) = %+v", r)
	}
	if r.Action == nil || r.Action.Link != "/workout/quick" {
		t.Errorf("action = %+v", r.Action)
	}

	// Only exact matches are served.
	if r := tbl.Lookup("oggi non ho tempo per niente"); r != nil {
		t.Errorf("partial match returned %+v", r)
	}
}

func TestLookupPainWarning(t *testing.T) {
	tbl := mustLoad(t)

	r := tbl.Lookup("ho male al ginocchio")
	if r == nil {
		t.Fatal("pain mention returned nil")
	}
	if !r.Warning || !r.AskForPlanConfirmation {
		t.Errorf("pain warning flags = %+v", r)
	}
	if r.Action == nil || r.Action.Link != "/professionals" {
		t.Errorf("pain warning action = %+v", r.Action)
	}

	// An exact preset wins over the generic warning.
	r = tbl.Lookup("male schiena")
	if r == nil || r.AskForPlanConfirmation || !strings.Contains(r.Text, "mobilità dolce") {
		t.Errorf("Lookup(male schiena) = %+v", r)
	}
}

func TestLookupPassesThrough(t *testing.T) {
	tbl := mustLoad(t)
	for _, text := range []string{
		"ho male al ginocchio, fammi un piano",
		"il dolore è passato",
		"non mi fa più male la spalla",
		"sto meglio",
		"ciao come stai",
		"   ",
	} {
		if r := tbl.Lookup(text); r != nil {
			t.Errorf("Lookup(%q) = %+v, want nil", text, r)
		}
	}
}

func TestLookupReturnsCopies(t *testing.T) {
	tbl := mustLoad(t)
	r := tbl.Lookup("casa")
	r.Action.Link = "/altrove"
	if again := tbl.Lookup("casa"); again.Action.Link != "/workouts" {
		t.Errorf("table mutated through returned action: %+v", again.Action)
	}
}

func TestParseCustomTable(t *testing.T) {
	tbl, err := Parse([]byte(`
presets:
  "Buongiorno":
    text: "Buongiorno a te!"
disclaimer: "nota"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r := tbl.Lookup("buongiorno"); r == nil || r.Text != "Buongiorno a te!" {
		t.Errorf("Lookup(buongiorno) = %+v", r)
	}
	if tbl.Disclaimer() != "nota" {
		t.Errorf("Disclaimer() = %q", tbl.Disclaimer())
	}
	// Without a pain_warning entry a pain mention is not intercepted.
	if r := tbl.Lookup("ho male alla spalla"); r != nil {
		t.Errorf("Lookup(pain) without warning = %+v", r)
	}

	if _, err := Parse([]byte("presets: [")); err == nil {
		t.Error("Parse of malformed YAML returned nil error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canned.yaml")
	data := "presets:\n  \"orari palestra\":\n    text: \"Siamo aperti dalle 7 alle 22.\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	tbl, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if r := tbl.Lookup("Orari palestra?"); r == nil || r.Text != "Siamo aperti dalle 7 alle 22." {
		t.Errorf("Lookup = %+v", r)
	}
	if r := tbl.Lookup("non ho tempo"); r != nil {
		t.Errorf("built-in preset leaked into custom table: %+v", r)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile of a missing file returned nil error")
	}
}

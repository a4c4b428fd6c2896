// Package canned serves the fixed answers PrimeBot gives without calling the
// language model.
package canned

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/PrimeBot/internal/intent"
	"github.com/BTreeMap/PrimeBot/internal/models"
)

//go:embed responses.yaml
var defaultTable []byte

type entry struct {
	Text                   string                   `yaml:"text"`
	Action                 *models.NavigationAction `yaml:"action"`
	Warning                bool                     `yaml:"warning"`
	AskForPlanConfirmation bool                     `yaml:"ask_for_plan_confirmation"`
}

func (e entry) response() *models.CannedResponse {
	r := &models.CannedResponse{
		Text:                   e.Text,
		Warning:                e.Warning,
		AskForPlanConfirmation: e.AskForPlanConfirmation,
	}
	if e.Action != nil {
		a := *e.Action
		r.Action = &a
	}
	return r
}

type file struct {
	Presets      map[string]entry `yaml:"presets"`
	PainResolved []string         `yaml:"pain_resolved"`
	PainWarning  entry            `yaml:"pain_warning"`
	Disclaimer   string           `yaml:"disclaimer"`
}

// Table answers exact-match presets and the pain safety warning.
type Table struct {
	presets      map[string]entry
	painResolved []string
	painWarning  entry
	disclaimer   string
}

// Load returns the built-in table.
func Load() (*Table, error) {
	return Parse(defaultTable)
}

// LoadFile reads a table from a YAML file with the same layout as the built-in one.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read canned table %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML table.
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse canned table: %w", err)
	}
	t := &Table{
		presets:     make(map[string]entry, len(f.Presets)),
		painWarning: f.PainWarning,
		disclaimer:  f.Disclaimer,
	}
	for key, e := range f.Presets {
		t.presets[intent.Normalize(key)] = e
	}
	for _, p := range f.PainResolved {
		t.painResolved = append(t.painResolved, intent.Normalize(p))
	}
	slog.Debug("CannedTable.Parse: loaded", "presets", len(t.presets), "resolvedPhrases", len(t.painResolved))
	return t, nil
}

// Lookup returns the canned answer for text, or nil when the message should go
// further down the pipeline.
func (t *Table) Lookup(text string) *models.CannedResponse {
	norm := intent.Normalize(text)
	if norm == "" {
		return nil
	}
	padded := " " + norm + " "
	for _, phrase := range t.painResolved {
		if phrase != "" && strings.Contains(padded, " "+phrase+" ") {
			return nil
		}
	}

	pain := intent.MentionsPain(norm)
	if pain && intent.IsPlanRequest(norm) {
		return nil
	}
	if e, ok := t.presets[norm]; ok {
		return e.response()
	}
	if pain && t.painWarning.Text != "" {
		return t.painWarning.response()
	}
	return nil
}

// Disclaimer is the one-time safety note shown before a plan for users with
// declared limitations.
func (t *Table) Disclaimer() string {
	return t.disclaimer
}

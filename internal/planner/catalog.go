// Package planner turns plan requests into validated workout plans. The language
// model drafts the plan; a safety filter driven by an embedded exercise catalog
// removes exercises that load a tracked pain zone.
package planner

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/BTreeMap/PrimeBot/internal/intent"
	"github.com/BTreeMap/PrimeBot/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type safeExercise struct {
	Name        string `yaml:"name"`
	Sets        int    `yaml:"sets"`
	Reps        string `yaml:"reps"`
	RestSeconds int    `yaml:"rest_seconds"`
	Notes       string `yaml:"notes"`
}

type zoneFile struct {
	Exclude []string       `yaml:"exclude"`
	Safe    []safeExercise `yaml:"safe"`
	Advice  []string       `yaml:"advice"`
}

type catalogFile struct {
	Zones map[string]zoneFile `yaml:"zones"`
}

type zoneEntry struct {
	exclude []string
	safe    []models.Exercise
	advice  []string
}

// Catalog holds per-zone exclusion lists and safe replacement exercises.
type Catalog struct {
	zones map[string]zoneEntry
}

// LoadCatalog parses the built-in catalog.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalogFile parses a catalog from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog. Exclusion terms are normalized so they can
// be matched against normalized exercise names.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	c := &Catalog{zones: make(map[string]zoneEntry, len(f.Zones))}
	for zone, zf := range f.Zones {
		e := zoneEntry{advice: zf.Advice}
		for _, term := range zf.Exclude {
			if n := intent.Normalize(term); n != "" {
				e.exclude = append(e.exclude, n)
			}
		}
		for _, s := range zf.Safe {
			e.safe = append(e.safe, models.Exercise{
				Name:        s.Name,
				Sets:        s.Sets,
				Reps:        s.Reps,
				RestSeconds: s.RestSeconds,
				Notes:       s.Notes,
			})
		}
		c.zones[zone] = e
	}
	return c, nil
}

// Excludes reports whether the exercise name matches an exclusion term of zone.
// Qualified zones ("ginocchio destro") use the base zone's entry.
func (c *Catalog) Excludes(zone, exercise string) bool {
	e, ok := c.zones[intent.BaseZone(zone)]
	if !ok {
		return false
	}
	name := " " + intent.Normalize(exercise) + " "
	for _, term := range e.exclude {
		if strings.Contains(name, " "+term+" ") {
			return true
		}
	}
	return false
}

// SafeExercises returns a copy of the replacement list for zone.
func (c *Catalog) SafeExercises(zone string) []models.Exercise {
	e := c.zones[intent.BaseZone(zone)]
	out := make([]models.Exercise, len(e.safe))
	copy(out, e.safe)
	return out
}

// Advice returns the self-care tips for zone.
func (c *Catalog) Advice(zone string) []string {
	return c.zones[intent.BaseZone(zone)].advice
}

// Package sim is a deterministic in-memory game used to drive the engine end
// to end without a real client. Worlds are described in YAML.
package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition describes a simulated world.
type Definition struct {
	Paused     bool           `yaml:"paused"`
	Cards      []CardDef      `yaml:"cards"`
	Situations []SituationDef `yaml:"situations"`
	Recipes    []RecipeDef    `yaml:"recipes"`
}

// CardDef is a card present at the start.
type CardDef struct {
	ID       string         `yaml:"id"`
	Element  string         `yaml:"element"`
	Aspects  map[string]int `yaml:"aspects"`
	Lifetime int            `yaml:"lifetime"`
}

// SituationDef is a verb on the table.
type SituationDef struct {
	ID    string   `yaml:"id"`
	Slots []string `yaml:"slots"` // slots offered while idle
}

// RecipeDef is what a situation does once started.
type RecipeDef struct {
	ID        string         `yaml:"id"`
	Situation string         `yaml:"situation"`
	Requires  map[string]int `yaml:"requires"` // aspect minimums summed over slotted cards
	Duration  int            `yaml:"duration"`
	Slots     []string       `yaml:"slots"` // slots offered while this recipe runs
	Consumes  bool           `yaml:"consumes"`
	Produces  []CardDef      `yaml:"produces"`
	Mansus    []string       `yaml:"mansus"` // faces offered when the recipe ends
	Next      string         `yaml:"next"`
}

// Parse decodes a world definition.
func Parse(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return def, fmt.Errorf("parse world: %w", err)
	}
	if err := def.Validate(); err != nil {
		return def, err
	}
	return def, nil
}

// Load reads and decodes a world definition file.
func Load(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read world %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks cross references.
func (d Definition) Validate() error {
	situations := make(map[string]bool, len(d.Situations))
	for _, s := range d.Situations {
		if s.ID == "" {
			return fmt.Errorf("situation without id")
		}
		if situations[s.ID] {
			return fmt.Errorf("duplicate situation %q", s.ID)
		}
		situations[s.ID] = true
	}
	recipes := make(map[string]bool, len(d.Recipes))
	for _, r := range d.Recipes {
		if r.ID == "" {
			return fmt.Errorf("recipe without id")
		}
		if recipes[r.ID] {
			return fmt.Errorf("duplicate recipe %q", r.ID)
		}
		recipes[r.ID] = true
		if !situations[r.Situation] {
			return fmt.Errorf("recipe %q: unknown situation %q", r.ID, r.Situation)
		}
		if r.Duration < 0 {
			return fmt.Errorf("recipe %q: negative duration", r.ID)
		}
	}
	for _, r := range d.Recipes {
		if r.Next != "" && !recipes[r.Next] {
			return fmt.Errorf("recipe %q: unknown next recipe %q", r.ID, r.Next)
		}
	}
	cards := make(map[string]bool, len(d.Cards))
	for _, c := range d.Cards {
		if c.ID == "" || c.Element == "" {
			return fmt.Errorf("card needs id and element")
		}
		if cards[c.ID] {
			return fmt.Errorf("duplicate card %q", c.ID)
		}
		cards[c.ID] = true
	}
	return nil
}

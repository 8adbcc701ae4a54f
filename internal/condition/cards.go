package condition

import (
	"fmt"
	"sort"
	"strings"

	"acolyte/internal/state"
)

// CardChooser selects tabletop cards by element and aspects.
type CardChooser struct {
	Element     string         // exact element id, empty = any
	Aspects     map[string]int // minimum aspect values
	Forbidden   []string       // aspects the card must not carry
	MinLifetime int            // decaying cards need at least this many beats left
}

// Matches reports whether card satisfies the chooser.
func (c CardChooser) Matches(card state.Card) bool {
	if c.Element != "" && card.Element != c.Element {
		return false
	}
	for aspect, min := range c.Aspects {
		if card.Aspect(aspect) < min {
			return false
		}
	}
	for _, aspect := range c.Forbidden {
		if card.Aspect(aspect) > 0 {
			return false
		}
	}
	if c.MinLifetime > 0 && card.Lifetime > 0 && card.Lifetime < c.MinLifetime {
		return false
	}
	return true
}

func (c CardChooser) String() string {
	var parts []string
	if c.Element != "" {
		parts = append(parts, c.Element)
	}
	keys := make([]string, 0, len(c.Aspects))
	for k := range c.Aspects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s>=%d", k, c.Aspects[k]))
	}
	for _, f := range c.Forbidden {
		parts = append(parts, "!"+f)
	}
	if len(parts) == 0 {
		return "card(*)"
	}
	return "card(" + strings.Join(parts, " ") + ")"
}

// ChooseCards assigns a distinct tabletop card to each chooser in order.
// Cards listed in exclude are never chosen. On failure the index of the first
// chooser that found nothing is returned.
func ChooseCards(s *state.Snapshot, choosers []CardChooser, exclude map[string]bool) ([]state.Card, int, bool) {
	used := make(map[string]bool, len(exclude)+len(choosers))
	for id := range exclude {
		used[id] = true
	}
	chosen := make([]state.Card, 0, len(choosers))
	for i, ch := range choosers {
		found := false
		for _, card := range s.Cards {
			if used[card.ID] || !ch.Matches(card) {
				continue
			}
			used[card.ID] = true
			chosen = append(chosen, card)
			found = true
			break
		}
		if !found {
			return nil, i, false
		}
	}
	return chosen, -1, true
}

type hasCards []CardChooser

// HasCard holds when some tabletop card matches the chooser.
func HasCard(chooser CardChooser) Condition {
	return hasCards{chooser}
}

// HasCards holds when every chooser can be given its own distinct card.
func HasCards(choosers ...CardChooser) Condition {
	return hasCards(choosers)
}

func (h hasCards) Evaluate(s *state.Snapshot) Result {
	_, failed, ok := ChooseCards(s, h, nil)
	if !ok {
		return Fail("no card for %s", h[failed])
	}
	return Pass()
}

func (h hasCards) String() string {
	parts := make([]string, len(h))
	for i, c := range h {
		parts[i] = c.String()
	}
	return strings.Join(parts, " + ")
}

type aspectsAtLeast map[string]int

// AspectsAtLeast holds when the summed aspects across the table reach every minimum.
func AspectsAtLeast(min map[string]int) Condition {
	cp := make(map[string]int, len(min))
	for k, v := range min {
		cp[k] = v
	}
	return aspectsAtLeast(cp)
}

func (a aspectsAtLeast) Evaluate(s *state.Snapshot) Result {
	totals := s.AspectTotals()
	for _, k := range a.keys() {
		if totals[k] < a[k] {
			return Fail("%s is %d, need %d", k, totals[k], a[k])
		}
	}
	return Pass()
}

func (a aspectsAtLeast) keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a aspectsAtLeast) String() string {
	parts := make([]string, 0, len(a))
	for _, k := range a.keys() {
		parts = append(parts, fmt.Sprintf("%s>=%d", k, a[k]))
	}
	return "aspects(" + strings.Join(parts, " ") + ")"
}

type situationIn struct {
	id     string
	states []state.SituationState
}

// SituationIn holds when the situation exists and is in one of the states.
// With no states it only checks that the situation exists.
func SituationIn(id string, states ...state.SituationState) Condition {
	return situationIn{id: id, states: states}
}

func (c situationIn) Evaluate(s *state.Snapshot) Result {
	sit, ok := s.Situation(c.id)
	if !ok {
		return Fail("situation %s not on the table", c.id)
	}
	if len(c.states) == 0 {
		return Pass()
	}
	for _, st := range c.states {
		if sit.State == st {
			return Pass()
		}
	}
	return Fail("situation %s is %s", c.id, sit.State)
}

func (c situationIn) String() string {
	if len(c.states) == 0 {
		return "situation(" + c.id + ")"
	}
	states := make([]string, len(c.states))
	for i, st := range c.states {
		states[i] = string(st)
	}
	return fmt.Sprintf("situation(%s in %s)", c.id, strings.Join(states, "|"))
}

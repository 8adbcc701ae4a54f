// Package state models an immutable, point-in-time read of the game table.
//
// A Snapshot is produced by the world adapter once per beat and then shared
// read-only by every condition, imperative and reaction evaluated during that
// beat. Nothing in the engine mutates a Snapshot after New returns.
package state

import (
	"sort"
)

// SituationState is the lifecycle phase of a situation (a verb on the table).
type SituationState string

const (
	SituationIdle     SituationState = "idle"     // empty, may be started
	SituationOngoing  SituationState = "ongoing"  // a recipe is running
	SituationComplete SituationState = "complete" // finished, output waiting to be collected
)

// Valid reports whether s is a known situation state.
func (s SituationState) Valid() bool {
	switch s {
	case SituationIdle, SituationOngoing, SituationComplete:
		return true
	}
	return false
}

// Card is an element instance on the table.
type Card struct {
	ID       string
	Element  string
	Aspects  map[string]int
	Lifetime int // beats left before the card decays; 0 = does not decay
}

// Aspect returns the card's value for an aspect, including its element id
// which every card carries implicitly with value 1.
func (c Card) Aspect(name string) int {
	if name == c.Element {
		return c.Aspects[name] + 1
	}
	return c.Aspects[name]
}

// Slot is one input slot of a situation.
type Slot struct {
	ID   string
	Card string // card id, empty when free
}

// Situation is a verb on the table that runs recipes.
type Situation struct {
	ID            string
	State         SituationState
	Recipe        string
	TimeRemaining int
	Slots         []Slot
	Output        []Card
}

// Slot returns the named slot.
func (s Situation) Slot(id string) (Slot, bool) {
	for _, sl := range s.Slots {
		if sl.ID == id {
			return sl, true
		}
	}
	return Slot{}, false
}

// Mansus is an open branch choice: a situation waiting for one face to be picked.
type Mansus struct {
	Situation string
	Faces     []string
}

// Snapshot is an immutable read of all relevant external entities.
type Snapshot struct {
	Running    bool
	Cards      []Card
	Situations []Situation
	Mansus     *Mansus

	hash uint64
}

// New copies and normalizes its inputs into a Snapshot.
func New(running bool, cards []Card, situations []Situation, mansus *Mansus) *Snapshot {
	s := &Snapshot{Running: running}

	s.Cards = make([]Card, len(cards))
	for i, c := range cards {
		s.Cards[i] = copyCard(c)
	}
	sort.Slice(s.Cards, func(i, j int) bool { return s.Cards[i].ID < s.Cards[j].ID })

	s.Situations = make([]Situation, len(situations))
	for i, sit := range situations {
		cp := sit
		cp.Slots = append([]Slot(nil), sit.Slots...)
		cp.Output = make([]Card, len(sit.Output))
		for j, c := range sit.Output {
			cp.Output[j] = copyCard(c)
		}
		s.Situations[i] = cp
	}
	sort.Slice(s.Situations, func(i, j int) bool { return s.Situations[i].ID < s.Situations[j].ID })

	if mansus != nil {
		s.Mansus = &Mansus{Situation: mansus.Situation, Faces: append([]string(nil), mansus.Faces...)}
	}

	s.hash = computeHash(s)
	return s
}

func copyCard(c Card) Card {
	cp := c
	if c.Aspects != nil {
		cp.Aspects = make(map[string]int, len(c.Aspects))
		for k, v := range c.Aspects {
			cp.Aspects[k] = v
		}
	}
	return cp
}

// Hash returns the structural content hash of the snapshot.
func (s *Snapshot) Hash() uint64 {
	if s == nil {
		return 0
	}
	return s.hash
}

// Situation looks up a situation by id.
func (s *Snapshot) Situation(id string) (Situation, bool) {
	i := sort.Search(len(s.Situations), func(i int) bool { return s.Situations[i].ID >= id })
	if i < len(s.Situations) && s.Situations[i].ID == id {
		return s.Situations[i], true
	}
	return Situation{}, false
}

// Card looks up a tabletop card by id.
func (s *Snapshot) Card(id string) (Card, bool) {
	i := sort.Search(len(s.Cards), func(i int) bool { return s.Cards[i].ID >= id })
	if i < len(s.Cards) && s.Cards[i].ID == id {
		return s.Cards[i], true
	}
	return Card{}, false
}

// AspectTotals sums aspects across every tabletop card.
func (s *Snapshot) AspectTotals() map[string]int {
	totals := make(map[string]int)
	for _, c := range s.Cards {
		totals[c.Element]++
		for k, v := range c.Aspects {
			totals[k] += v
		}
	}
	return totals
}

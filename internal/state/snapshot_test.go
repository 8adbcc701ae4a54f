package state

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCards() []Card {
	return []Card{
		{ID: "c2", Element: "funds", Lifetime: 0},
		{ID: "c1", Element: "health", Aspects: map[string]int{"ability": 1, "health": 2}},
	}
}

func sampleSituations() []Situation {
	return []Situation{
		{ID: "work", State: SituationIdle, Slots: []Slot{{ID: "work"}}},
		{ID: "dream", State: SituationOngoing, Recipe: "dream.rest", TimeRemaining: 4},
	}
}

func TestNewSortsAndCopies(t *testing.T) {
	cards := sampleCards()
	snap := New(true, cards, sampleSituations(), nil)

	require.Len(t, snap.Cards, 2)
	assert.Equal(t, "c1", snap.Cards[0].ID)
	assert.Equal(t, "dream", snap.Situations[0].ID)

	// Mutating the caller's input must not leak into the snapshot.
	cards[1].Aspects["ability"] = 99
	c, ok := snap.Card("c1")
	require.True(t, ok)
	assert.Equal(t, 1, c.Aspects["ability"])
}

func TestLookups(t *testing.T) {
	snap := New(true, sampleCards(), sampleSituations(), &Mansus{Situation: "dream", Faces: []string{"wood"}})

	sit, ok := snap.Situation("work")
	require.True(t, ok)
	assert.Equal(t, SituationIdle, sit.State)
	_, ok = sit.Slot("work")
	assert.True(t, ok)

	_, ok = snap.Situation("explore")
	assert.False(t, ok)
	_, ok = snap.Card("c9")
	assert.False(t, ok)
}

func TestAspectTotalsCountElements(t *testing.T) {
	snap := New(true, sampleCards(), nil, nil)
	totals := snap.AspectTotals()

	assert.Equal(t, 1, totals["funds"])
	assert.Equal(t, 3, totals["health"], "element counts once plus its explicit aspect")
	assert.Equal(t, 1, totals["ability"])
}

func TestCardAspectIncludesElement(t *testing.T) {
	c := Card{ID: "x", Element: "passion", Aspects: map[string]int{"lantern": 2}}
	assert.Equal(t, 1, c.Aspect("passion"))
	assert.Equal(t, 2, c.Aspect("lantern"))
	assert.Equal(t, 0, c.Aspect("edge"))
}

func TestHashIsOrderIndependent(t *testing.T) {
	a := New(true, sampleCards(), sampleSituations(), nil)
	reversed := sampleCards()
	reversed[0], reversed[1] = reversed[1], reversed[0]
	b := New(true, reversed, sampleSituations(), nil)

	assert.Equal(t, a.Hash(), b.Hash())
}

func TestHashCoversEveryField(t *testing.T) {
	base := New(true, sampleCards(), sampleSituations(), nil)

	variants := map[string]*Snapshot{
		"running": New(false, sampleCards(), sampleSituations(), nil),
		"mansus":  New(true, sampleCards(), sampleSituations(), &Mansus{Situation: "dream"}),
		"aspect": func() *Snapshot {
			cards := sampleCards()
			cards[1].Aspects["health"] = 3
			return New(true, cards, sampleSituations(), nil)
		}(),
		"lifetime": func() *Snapshot {
			cards := sampleCards()
			cards[0].Lifetime = 5
			return New(true, cards, sampleSituations(), nil)
		}(),
		"slot": func() *Snapshot {
			sits := sampleSituations()
			sits[0].Slots[0].Card = "c1"
			return New(true, sampleCards(), sits, nil)
		}(),
		"timer": func() *Snapshot {
			sits := sampleSituations()
			sits[1].TimeRemaining = 3
			return New(true, sampleCards(), sits, nil)
		}(),
		"output": func() *Snapshot {
			sits := sampleSituations()
			sits[1].Output = []Card{{ID: "o1", Element: "funds"}}
			return New(true, sampleCards(), sits, nil)
		}(),
	}
	for name, v := range variants {
		assert.NotEqual(t, base.Hash(), v.Hash(), name)
	}
}

func TestHashDeterminismProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("equal inputs hash equally", prop.ForAll(
		func(ids []string, elements []string) bool {
			var cards []Card
			for i := 0; i < len(ids) && i < len(elements); i++ {
				cards = append(cards, Card{ID: ids[i], Element: elements[i]})
			}
			a := New(true, cards, nil, nil)
			b := New(true, cards, nil, nil)
			return a.Hash() == b.Hash()
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func TestSituationStateValid(t *testing.T) {
	assert.True(t, SituationOngoing.Valid())
	assert.False(t, SituationState("paused").Valid())
}

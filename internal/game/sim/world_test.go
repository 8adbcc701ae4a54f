package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"acolyte/internal/game"
	"acolyte/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWorld = `
cards:
  - id: health-1
    element: health
  - id: passion-1
    element: passion
    aspects: {passion: 1}
  - id: rumour-1
    element: rumour
    lifetime: 2
situations:
  - id: work
    slots: [work]
  - id: dream
    slots: [dream]
recipes:
  - id: work.labour
    situation: work
    requires: {health: 1}
    duration: 2
    produces:
      - element: funds
        aspects: {funds: 1}
  - id: dream.reflect
    situation: dream
    requires: {passion: 1}
    duration: 1
    slots: [memory]
    mansus: [wood, white-door]
    consumes: true
`

func newWorld(t *testing.T) *World {
	t.Helper()
	def, err := Parse([]byte(testWorld))
	require.NoError(t, err)
	return New(def)
}

func snap(t *testing.T, w *World) *state.Snapshot {
	t.Helper()
	s, err := w.Snapshot(context.Background())
	require.NoError(t, err)
	return s
}

func TestWorkRecipeEndToEnd(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	require.NoError(t, w.OpenSituation(ctx, "work"))
	require.NoError(t, w.SlotCard(ctx, "work", "work", "health-1"))
	require.NoError(t, w.StartSituation(ctx, "work"))
	require.NoError(t, w.CloseSituation(ctx, "work"))

	s := snap(t, w)
	sit, ok := s.Situation("work")
	require.True(t, ok)
	assert.Equal(t, state.SituationOngoing, sit.State)
	assert.Equal(t, "work.labour", sit.Recipe)
	assert.Equal(t, 2, sit.TimeRemaining)
	_, onTable := s.Card("health-1")
	assert.False(t, onTable)

	w.Advance()
	w.Advance()
	sit, _ = snap(t, w).Situation("work")
	require.Equal(t, state.SituationComplete, sit.State)
	require.Len(t, sit.Output, 2)

	require.NoError(t, w.OpenSituation(ctx, "work"))
	require.NoError(t, w.ConcludeSituation(ctx, "work"))

	s = snap(t, w)
	assert.Equal(t, 2, s.AspectTotals()["funds"], "element plus aspect")
	_, back := s.Card("health-1")
	assert.True(t, back, "unconsumed cards return to the table")
	sit, _ = s.Situation("work")
	assert.Equal(t, state.SituationIdle, sit.State)
	assert.Equal(t, []state.Slot{{ID: "work"}}, sit.Slots)

	assert.Equal(t, []string{
		"open work", "slot work/work health-1", "start work work.labour", "close work",
		"open work", "conclude work",
	}, w.Calls())
}

func TestMansusChoice(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	require.NoError(t, w.OpenSituation(ctx, "dream"))
	require.NoError(t, w.SlotCard(ctx, "dream", "dream", "passion-1"))
	require.NoError(t, w.StartSituation(ctx, "dream"))

	sit, _ := snap(t, w).Situation("dream")
	assert.Equal(t, []state.Slot{{ID: "memory"}}, sit.Slots)
	require.NoError(t, w.SlotCard(ctx, "dream", "memory", "health-1"))

	w.Advance()
	s := snap(t, w)
	require.NotNil(t, s.Mansus)
	assert.Equal(t, "dream", s.Mansus.Situation)
	assert.Equal(t, []string{"wood", "white-door"}, s.Mansus.Faces)

	assert.ErrorIs(t, w.ChooseMansus(ctx, "moon"), game.ErrUnknownMansusFace)
	require.NoError(t, w.ChooseMansus(ctx, "wood"))

	s = snap(t, w)
	assert.Nil(t, s.Mansus)
	sit, _ = s.Situation("dream")
	require.Equal(t, state.SituationComplete, sit.State)
	require.Len(t, sit.Output, 1, "consumed inputs are not returned")
	assert.Equal(t, "wood", sit.Output[0].Element)

	assert.ErrorIs(t, w.ChooseMansus(ctx, "wood"), game.ErrNoMansus)
}

func TestActionErrors(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	assert.ErrorIs(t, w.OpenSituation(ctx, "explore"), game.ErrUnknownSituation)
	assert.ErrorIs(t, w.SlotCard(ctx, "work", "work", "health-1"), game.ErrSituationClosed)

	require.NoError(t, w.OpenSituation(ctx, "work"))
	assert.ErrorIs(t, w.SlotCard(ctx, "work", "nope", "health-1"), game.ErrUnknownSlot)
	assert.ErrorIs(t, w.SlotCard(ctx, "work", "work", "ghost"), game.ErrCardUnavailable)
	assert.ErrorIs(t, w.StartSituation(ctx, "work"), game.ErrNoRecipe)

	require.NoError(t, w.SlotCard(ctx, "work", "work", "passion-1"))
	assert.ErrorIs(t, w.SlotCard(ctx, "work", "work", "health-1"), game.ErrSlotOccupied)
	assert.ErrorIs(t, w.StartSituation(ctx, "work"), game.ErrNoRecipe, "passion does not satisfy work")
	assert.ErrorIs(t, w.ConcludeSituation(ctx, "work"), game.ErrSituationBusy)
}

func TestInjectedFaultIsOneShot(t *testing.T) {
	w := newWorld(t)
	boom := errors.New("client froze")
	w.Inject("open", boom)

	assert.ErrorIs(t, w.OpenSituation(context.Background(), "work"), boom)
	assert.NoError(t, w.OpenSituation(context.Background(), "work"))
}

func TestPause(t *testing.T) {
	w := newWorld(t)
	w.Pause()

	assert.False(t, snap(t, w).Running)
	assert.ErrorIs(t, w.Tidy(context.Background()), game.ErrNotRunning)
	w.Advance()
	assert.Equal(t, uint64(0), w.Beat())

	w.Resume()
	assert.True(t, snap(t, w).Running)
	require.NoError(t, w.Tidy(context.Background()))
	assert.Equal(t, 1, w.Tidies())
}

func TestCardsDecay(t *testing.T) {
	w := newWorld(t)
	w.Advance()
	c, ok := snap(t, w).Card("rumour-1")
	require.True(t, ok)
	assert.Equal(t, 1, c.Lifetime)

	w.Advance()
	_, ok = snap(t, w).Card("rumour-1")
	assert.False(t, ok)
}

func TestLatencyHonorsContext(t *testing.T) {
	w := newWorld(t)
	w.SetLatency(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.OpenSituation(ctx, "work"), context.DeadlineExceeded)
	assert.Empty(t, w.Calls())
}

func TestParseRejectsBrokenReferences(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown situation": "recipes: [{id: r, situation: nowhere}]",
		"unknown next":      "situations: [{id: s}]\nrecipes: [{id: r, situation: s, next: q}]",
		"duplicate card":    "cards: [{id: a, element: e}, {id: a, element: e}]",
		"bad yaml":          "cards: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

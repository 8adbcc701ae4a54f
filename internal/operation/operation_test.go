package operation

import (
	"context"
	"errors"
	"testing"
	"time"

	"acolyte/internal/condition"
	"acolyte/internal/coordinator"
	"acolyte/internal/game/sim"
	"acolyte/internal/reaction"
	"acolyte/internal/resource"
	"acolyte/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const world = `
cards:
  - id: health-1
    element: health
  - id: passion-1
    element: passion
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
  - id: dream.reflect
    situation: dream
    requires: {passion: 1}
    duration: 3
    slots: [memory]
    mansus: [wood, white-door]
    consumes: true
`

type harness struct {
	t     *testing.T
	world *sim.World
	coord *coordinator.Coordinator
	env   *Env
	beat  uint64
}

func newHarness(t *testing.T, stall uint64) *harness {
	t.Helper()
	def, err := sim.Parse([]byte(world))
	require.NoError(t, err)
	w := sim.New(def)
	c := coordinator.New(coordinator.DefaultConfig())
	require.NoError(t, c.Start())
	t.Cleanup(func() { _ = c.Stop() })
	return &harness{
		t:     t,
		world: w,
		coord: c,
		env: &Env{
			Registry:    resource.NewRegistry(),
			Coordinator: c,
			Actions:     w,
			StallBeats:  stall,
		},
	}
}

func (h *harness) tick() reaction.Tick {
	s, err := h.world.Snapshot(context.Background())
	require.NoError(h.t, err)
	return reaction.Tick{Beat: h.beat, State: s}
}

// step runs one beat: poll, let the coordinator execute, advance the world.
func (h *harness) step(r reaction.Reaction) reaction.Status {
	st := r.Poll(h.tick())
	h.flush()
	h.world.Advance()
	h.beat++
	return st
}

func (h *harness) flush() {
	h.coord.Tick()
	require.Eventually(h.t, h.coord.Idle, time.Second, time.Millisecond)
}

func (h *harness) run(r reaction.Reaction, beats int) {
	h.t.Helper()
	for i := 0; i < beats && !r.Status().Terminal(); i++ {
		h.step(r)
	}
}

func workOp() *Operation {
	return &Operation{
		Name:       "labour",
		Situation:  "work",
		StartSlots: []SlotFill{{Slot: "work", Chooser: condition.CardChooser{Element: "health"}}},
	}
}

func TestOperationRunsSituationEndToEnd(t *testing.T) {
	h := newHarness(t, 0)
	op := workOp()
	r := NewReaction(op, h.env)

	require.NoError(t, r.Start(h.tick()))
	assert.True(t, h.env.Registry.IsClaimed(op.Key()))
	h.flush()

	h.run(r, 20)
	require.Equal(t, reaction.Completed, r.Status(), "err: %v", r.Err())

	assert.False(t, h.env.Registry.IsClaimed(op.Key()), "claim released on end")
	assert.Equal(t, []string{
		"open work", "slot work/work health-1", "start work work.labour", "close work",
		"open work", "conclude work", "close work",
	}, h.world.Calls())

	s := h.tick().State
	_, ok := s.Card("health-1")
	assert.True(t, ok)
	assert.Equal(t, 1, s.AspectTotals()["funds"])
}

func TestSecondClaimOnSameSituationFailsStart(t *testing.T) {
	h := newHarness(t, 0)
	op := workOp()
	first, second := NewReaction(op, h.env), NewReaction(op, h.env)

	require.NoError(t, first.Start(h.tick()))
	err := second.Start(h.tick())

	assert.ErrorIs(t, err, ErrResourceClaimed)
	assert.Equal(t, reaction.Aborted, second.Status())
	holder, ok := h.env.Registry.Holder(op.Key())
	require.True(t, ok)
	assert.Equal(t, first.ID(), holder.ID())
}

func TestCanStart(t *testing.T) {
	h := newHarness(t, 0)
	op := workOp()
	s := h.tick().State

	assert.True(t, op.CanStart(s, h.env.Registry).Met)

	blocked := &Operation{Name: "x", Situation: "work", Requirements: condition.Never,
		StartSlots: op.StartSlots}
	assert.Contains(t, blocked.CanStart(s, nil).Reason, "requirements")

	noCards := &Operation{Name: "x", Situation: "work",
		StartSlots: []SlotFill{{Slot: "work", Chooser: condition.CardChooser{Element: "funds"}}}}
	assert.Contains(t, noCards.CanStart(s, nil).Reason, "no card for card(funds)")

	missing := &Operation{Name: "x", Situation: "explore"}
	assert.Contains(t, missing.CanStart(s, nil).Reason, "not on the table")

	r := NewReaction(op, h.env)
	require.NoError(t, r.Start(h.tick()))
	res := op.CanStart(s, h.env.Registry)
	assert.False(t, res.Met)
	assert.Contains(t, res.Reason, "claimed by labour")
	r.Abort()
	assert.True(t, op.CanStart(s, h.env.Registry).Met)
}

func TestCanStartOnRunningSituation(t *testing.T) {
	s := state.New(true, nil, []state.Situation{
		{ID: "work", State: state.SituationOngoing, Recipe: "work.labour"},
		{ID: "dream", State: state.SituationComplete, Recipe: "dream.reflect"},
	}, nil)

	stranger := workOp()
	assert.False(t, stranger.CanStart(s, nil).Met)

	resuming := workOp()
	resuming.Recipes = map[string][]SlotFill{"work.labour": nil}
	assert.True(t, resuming.CanStart(s, nil).Met)

	collector := &Operation{Name: "collect", Situation: "dream"}
	assert.True(t, collector.CanStart(s, nil).Met)
}

func TestOperationFeedsRecipeAndChoosesMansus(t *testing.T) {
	h := newHarness(t, 0)
	op := &Operation{
		Name:       "reflect",
		Situation:  "dream",
		StartSlots: []SlotFill{{Slot: "dream", Chooser: condition.CardChooser{Element: "passion"}}},
		Recipes: map[string][]SlotFill{
			"dream.reflect": {{Slot: "memory", Chooser: condition.CardChooser{Element: "health"}}},
		},
		Mansus: []string{"white-door", "wood"},
	}
	r := NewReaction(op, h.env)
	require.NoError(t, r.Start(h.tick()))
	h.flush()

	h.run(r, 20)
	require.Equal(t, reaction.Completed, r.Status(), "err: %v", r.Err())

	calls := h.world.Calls()
	assert.Contains(t, calls, "slot dream/memory health-1")
	assert.Contains(t, calls, "mansus white-door")
	_, ok := h.tick().State.Card("health-1")
	assert.False(t, ok, "consumed by the recipe")
}

func TestOperationAbortsWhenStepFails(t *testing.T) {
	h := newHarness(t, 0)
	refused := errors.New("slot refused")
	h.world.Inject("slot", refused)

	r := NewReaction(workOp(), h.env)
	require.NoError(t, r.Start(h.tick()))
	h.flush()
	h.run(r, 5)

	require.Equal(t, reaction.Aborted, r.Status())
	assert.ErrorIs(t, r.Err(), refused)
	assert.Equal(t, []string{"open work", "close work"}, h.world.Calls())
	assert.False(t, h.env.Registry.IsClaimed(resource.SituationKey("work")))
}

func TestOperationAbortCancelsQueuedStep(t *testing.T) {
	h := newHarness(t, 0)
	r := NewReaction(workOp(), h.env)
	require.NoError(t, r.Start(h.tick()))

	r.Abort()
	r.Abort()
	h.flush()

	assert.Equal(t, reaction.Aborted, r.Status())
	assert.Empty(t, h.world.Calls())
	assert.Equal(t, 0, h.env.Registry.Len())
}

func TestOperationStallsWithoutCoordinator(t *testing.T) {
	h := newHarness(t, 3)
	r := NewReaction(workOp(), h.env)
	require.NoError(t, r.Start(h.tick()))

	// Never tick the coordinator: the start step never lands.
	for i := 0; i < 5 && !r.Status().Terminal(); i++ {
		h.beat++
		r.Poll(h.tick())
	}

	require.Equal(t, reaction.Aborted, r.Status())
	assert.ErrorIs(t, r.Err(), ErrStalled)
	assert.Contains(t, r.Err().Error(), "waiting for start")
}

func TestOperationAbortsWhenSituationVanishes(t *testing.T) {
	h := newHarness(t, 0)
	op := workOp()
	op.Recipes = map[string][]SlotFill{"work.labour": nil}
	running := state.New(true, nil, []state.Situation{
		{ID: "work", State: state.SituationOngoing, Recipe: "work.labour", TimeRemaining: 3},
	}, nil)

	r := NewReaction(op, h.env)
	require.NoError(t, r.Start(reaction.Tick{Beat: 1, State: running}))
	assert.Equal(t, reaction.Running, r.Status())

	r.Poll(reaction.Tick{Beat: 2, State: state.New(true, nil, nil, nil)})
	assert.ErrorIs(t, r.Err(), ErrSituationVanished)
}

func TestOperationRefusesUnpreferredMansus(t *testing.T) {
	h := newHarness(t, 0)
	op := &Operation{Name: "reflect", Situation: "dream", Mansus: []string{"moon"},
		Recipes: map[string][]SlotFill{"dream.reflect": nil}}
	s := state.New(true, nil, []state.Situation{
		{ID: "dream", State: state.SituationOngoing, Recipe: "dream.reflect"},
	}, &state.Mansus{Situation: "dream", Faces: []string{"wood"}})

	r := NewReaction(op, h.env)
	require.NoError(t, r.Start(reaction.Tick{State: s}))
	assert.ErrorIs(t, r.Err(), ErrNoMansusFace)
}

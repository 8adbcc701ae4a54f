package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"acolyte/internal/config"
	"acolyte/internal/definitions"
	"acolyte/internal/game/sim"
	"acolyte/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const world = `
cards:
  - id: health-1
    element: health
situations:
  - id: work
    slots: [work]
recipes:
  - id: work.labour
    situation: work
    requires: {health: 1}
    duration: 2
    produces:
      - element: funds
`

const goals = `
operations:
  - id: labour
    situation: work
    slots:
      - slot: work
        card: {element: health}

goals:
  - id: earn
    complete: {aspects: {funds: 1}}
    impulses:
      - operation: labour
        priority: goal
  - id: hoard
    complete: {aspects: {funds: 2}}
    impulses:
      - operation: labour

motivations:
  - id: prosper
    primary: [earn]
  - id: save
    primary: [hoard]

sequence: [prosper, save]
`

func testConfig() Config {
	return Config{
		TidyWhenIdle: true,
		Lockstep:     true,
		StallBeats:   50,
		Scheduler:    scheduler.DefaultConfig(),
	}
}

func load(t *testing.T, data string) *definitions.Library {
	t.Helper()
	lib, probs := definitions.LoadBytes("test.yaml", []byte(data))
	require.Empty(t, probs)
	return lib
}

func newWorld(t *testing.T) *sim.World {
	t.Helper()
	def, err := sim.Parse([]byte(world))
	require.NoError(t, err)
	return sim.New(def)
}

func startAgent(t *testing.T, cfg Config, w *sim.World, lib *definitions.Library, opts ...Option) *Agent {
	t.Helper()
	a := New(cfg, w, lib, opts...)
	require.NoError(t, a.Start())
	t.Cleanup(func() { _ = a.Stop() })
	return a
}

func TestAgentRunsMotivationSequence(t *testing.T) {
	w := newWorld(t)
	var events []scheduler.Event
	a := startAgent(t, testConfig(), w, load(t, goals), WithListener(scheduler.ListenerFunc(func(e scheduler.Event) {
		events = append(events, e)
	})))

	require.NotNil(t, a.CurrentMotivation())
	assert.Equal(t, "prosper", a.CurrentMotivation().Name())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := 0; i < 200 && !a.SequenceDone(); i++ {
		require.NoError(t, a.Step(ctx))
	}
	require.True(t, a.SequenceDone(), "sequence did not finish; calls: %v", w.Calls())
	assert.Equal(t, "save", a.CurrentMotivation().Name())

	// Let the idle hook's tidy job run.
	for i := 0; i < 5; i++ {
		require.NoError(t, a.Step(ctx))
	}
	assert.GreaterOrEqual(t, w.Tidies(), 1)
	assert.GreaterOrEqual(t, a.Tidies(), 1)

	s, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.AspectTotals()["funds"])
	assert.Empty(t, a.Scheduler().Imperatives())
	assert.Zero(t, a.Registry().Len())

	var completed []string
	for _, e := range events {
		if e.Kind == scheduler.EventImperativeCompleted {
			completed = append(completed, e.Imperative)
		}
	}
	assert.Equal(t, []string{"prosper", "save"}, completed)
}

func TestAgentStopsOnRepeatedAborts(t *testing.T) {
	w := newWorld(t)
	lib := load(t, `
operations:
  - id: fidget
    situation: work
    slots:
      - slot: work
        card: {element: ghost}
        optional: true
goals:
  - id: busy
    impulses: [{operation: fidget}]
imperatives: [busy]
`)
	a := startAgent(t, testConfig(), w, lib)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := a.Run(ctx, 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, scheduler.ErrTooManyAborts), "got %v", err)
	assert.Equal(t, err, a.Scheduler().Err())
	assert.True(t, a.Coordinator().Idle())
}

func TestAgentReload(t *testing.T) {
	w := newWorld(t)
	a := startAgent(t, testConfig(), w, load(t, goals))

	ctx := context.Background()
	require.NoError(t, a.Step(ctx))

	a.Reload(load(t, `
operations:
  - id: labour
    situation: work
    slots: [{slot: work, card: {element: health}}]
goals:
  - id: wealth
    complete: {aspects: {funds: 5}}
    impulses: [{operation: labour}]
imperatives: [wealth]
`))
	a.Reload(nil)
	require.NoError(t, a.Step(ctx))

	assert.Equal(t, 1, a.Reloads())
	names := make([]string, 0)
	for _, imp := range a.Scheduler().Imperatives() {
		names = append(names, imp.Name())
	}
	assert.Equal(t, []string{"wealth"}, names)
	assert.Nil(t, a.CurrentMotivation())
}

func TestAgentReloadFromWatchedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "goals.yaml")
	require.NoError(t, os.WriteFile(path, []byte(goals), 0644))

	a := startAgent(t, testConfig(), newWorld(t), nil)
	probs := a.ReloadFrom([]string{dir})
	assert.Empty(t, probs)
	require.NoError(t, a.Step(context.Background()))
	assert.Equal(t, 1, a.Reloads())
	assert.Equal(t, "prosper", a.CurrentMotivation().Name())

	probs = a.ReloadFrom([]string{filepath.Join(dir, "missing")})
	assert.Len(t, probs, 1)
	require.NoError(t, a.Step(context.Background()))
	assert.Equal(t, 1, a.Reloads(), "an unreadable path keeps the current definitions")
}

func TestStepBeforeStart(t *testing.T) {
	a := New(testConfig(), newWorld(t), nil)
	assert.ErrorIs(t, a.Step(context.Background()), ErrNotStarted)
	require.NoError(t, a.Stop())
}

func TestRunHonorsContext(t *testing.T) {
	cfg := testConfig()
	cfg.BeatInterval = time.Millisecond
	a := startAgent(t, cfg, newWorld(t), load(t, goals))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.NoError(t, a.Run(ctx, 0))
	assert.Greater(t, a.Scheduler().Beats(), uint64(0))
}

func TestConfigFrom(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Scheduler.AbortThreshold = 5
	cfg.Reaction.StallBeats = 12
	cfg.Coordinator.ItemTimeout = "2s"

	got := ConfigFrom(cfg)
	assert.Equal(t, 5, got.Scheduler.AbortThreshold)
	assert.Equal(t, 100, got.Scheduler.RunawayThreshold)
	assert.Equal(t, uint64(12), got.StallBeats)
	assert.Equal(t, 2*time.Second, got.Coordinator.ItemTimeout)
	assert.Equal(t, 100*time.Millisecond, got.BeatInterval)
	assert.True(t, got.TidyWhenIdle)
}

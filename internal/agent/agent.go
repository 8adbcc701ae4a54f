// Package agent drives the engine: each beat it reads the world, lets the
// scheduler decide, releases one coordinator item and advances the clock.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"acolyte/internal/config"
	"acolyte/internal/coordinator"
	"acolyte/internal/definitions"
	"acolyte/internal/game"
	"acolyte/internal/imperative"
	"acolyte/internal/logging"
	"acolyte/internal/operation"
	"acolyte/internal/resource"
	"acolyte/internal/scheduler"
	"acolyte/internal/state"
)

// ErrNotStarted is returned by Step before Start.
var ErrNotStarted = errors.New("agent not started")

// Config tunes the agent loop.
type Config struct {
	BeatInterval time.Duration // 0 beats as fast as possible
	TidyWhenIdle bool
	Lockstep     bool   // wait for each released action before the next beat
	StallBeats   uint64 // passed to operation reactions

	Scheduler   scheduler.Config
	Coordinator coordinator.Config
}

// ConfigFrom maps the file configuration onto the agent.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		BeatInterval: cfg.GetBeatInterval(),
		TidyWhenIdle: cfg.Scheduler.TidyWhenIdle,
		StallBeats:   uint64(cfg.Reaction.StallBeats),
		Scheduler: scheduler.Config{
			AbortThreshold:   cfg.Scheduler.AbortThreshold,
			RunawayThreshold: cfg.Scheduler.RunawayThreshold,
		},
		Coordinator: coordinator.Config{
			ItemTimeout:  cfg.GetItemTimeout(),
			DrainTimeout: cfg.GetDrainTimeout(),
		},
	}
}

// Option configures an Agent.
type Option func(*Agent)

// WithListener forwards scheduler events to l, e.g. the journal.
func WithListener(l scheduler.Listener) Option {
	return func(a *Agent) { a.listeners = append(a.listeners, l) }
}

// WithClock overrides the clock; by default a game that implements
// game.Clock is advanced once per beat.
func WithClock(c game.Clock) Option {
	return func(a *Agent) { a.clock = c }
}

// Agent owns one scheduler, one coordinator and one resource registry.
type Agent struct {
	cfg       Config
	game      game.Game
	clock     game.Clock
	listeners []scheduler.Listener

	coord    *coordinator.Coordinator
	sched    *scheduler.Scheduler
	registry *resource.Registry
	env      *operation.Env

	mu         sync.Mutex
	lib        *definitions.Library
	bound      *definitions.Bound
	reload     *definitions.Library
	completed  []string
	started    bool
	sequenceOK bool // the sequence ran to its end
	reloads    int
	tidies     int
}

// New wires an agent for g using the definitions in lib.
func New(cfg Config, g game.Game, lib *definitions.Library, opts ...Option) *Agent {
	a := &Agent{
		cfg:      cfg,
		game:     g,
		coord:    coordinator.New(cfg.Coordinator),
		registry: resource.NewRegistry(),
		lib:      lib,
	}
	if c, ok := g.(game.Clock); ok {
		a.clock = c
	}
	for _, opt := range opts {
		opt(a)
	}

	a.env = &operation.Env{
		Registry:    a.registry,
		Coordinator: a.coord,
		Actions:     g,
		StallBeats:  cfg.StallBeats,
	}

	schedOpts := []scheduler.Option{
		scheduler.WithListener(scheduler.ListenerFunc(a.onEvent)),
	}
	for _, l := range a.listeners {
		schedOpts = append(schedOpts, scheduler.WithListener(l))
	}
	if cfg.TidyWhenIdle {
		schedOpts = append(schedOpts, scheduler.WithIdleHook(a.tidy))
	}
	a.sched = scheduler.New(cfg.Scheduler, schedOpts...)
	return a
}

// Scheduler exposes the scheduler for status display.
func (a *Agent) Scheduler() *scheduler.Scheduler { return a.sched }

// Coordinator exposes the coordinator for metrics.
func (a *Agent) Coordinator() *coordinator.Coordinator { return a.coord }

// Registry exposes the resource registry.
func (a *Agent) Registry() *resource.Registry { return a.registry }

// Start launches the coordinator and activates the initial imperatives.
func (a *Agent) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	if err := a.coord.Start(); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	a.started = true
	a.seedLocked()
	logging.Agent("agent started")
	return nil
}

// Stop halts the scheduler and the coordinator.
func (a *Agent) Stop() error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	a.mu.Unlock()

	a.sched.Stop()
	a.coord.AbortAll()
	err := a.coord.Stop()
	logging.Agent("agent stopped after %d beats", a.sched.Beats())
	return err
}

// Reload replaces the definitions. The swap happens at the start of the next
// beat, on the beat goroutine.
func (a *Agent) Reload(lib *definitions.Library) {
	if lib == nil {
		return
	}
	a.mu.Lock()
	a.reload = lib
	a.mu.Unlock()
	logging.Agent("reload queued")
}

// Reloads returns how many reloads have been applied.
func (a *Agent) Reloads() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reloads
}

// Tidies returns how many tidy jobs the idle hook queued.
func (a *Agent) Tidies() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tidies
}

// CurrentMotivation returns the motivation the sequence is on, or nil.
func (a *Agent) CurrentMotivation() *imperative.Motivation {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bound == nil {
		return nil
	}
	return a.bound.Sequence.Current()
}

// SequenceDone reports whether every motivation of the sequence completed.
func (a *Agent) SequenceDone() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sequenceOK
}

// Snapshot reads the world.
func (a *Agent) Snapshot(ctx context.Context) (*state.Snapshot, error) {
	return a.game.Snapshot(ctx)
}

// Step runs one beat. It returns the scheduler's error once it has stopped.
func (a *Agent) Step(ctx context.Context) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return ErrNotStarted
	}
	a.applyReloadLocked()
	a.mu.Unlock()

	s, err := a.game.Snapshot(ctx)
	if err != nil {
		logging.AgentWarn("snapshot failed: %v", err)
		s = nil
	}
	a.sched.Beat(s)
	a.advanceSequence()

	a.coord.Tick()
	if a.cfg.Lockstep {
		if err := a.coord.Settle(ctx); err != nil {
			return err
		}
	}
	if a.clock != nil {
		a.clock.Advance()
	}
	return a.sched.Err()
}

// Run beats until ctx ends, the scheduler stops, or maxBeats beats have run
// when maxBeats is positive. A cancelled context is not an error.
func (a *Agent) Run(ctx context.Context, maxBeats int) error {
	var tick <-chan time.Time
	if a.cfg.BeatInterval > 0 {
		ticker := time.NewTicker(a.cfg.BeatInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for n := 0; maxBeats <= 0 || n < maxBeats; n++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}
		if err := a.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

// seedLocked binds the current library and activates its imperatives and the
// first motivation of its sequence.
func (a *Agent) seedLocked() {
	a.completed = nil
	a.sequenceOK = false
	if a.lib == nil {
		a.bound = nil
		return
	}
	a.bound = a.lib.Bind(a.env)
	for _, imp := range a.bound.Imperatives {
		a.activate(imp)
	}
	if m := a.bound.Sequence.Advance(); m != nil {
		logging.Agent("motivation %s", m.Name())
		a.activate(m)
	} else if len(a.lib.Sequence) == 0 {
		logging.AgentDebug("no motivation sequence")
	}
}

func (a *Agent) activate(imp imperative.Imperative) {
	if err := a.sched.AddImperative(imp); err != nil {
		logging.AgentWarn("cannot activate %s: %v", imp.Name(), err)
	}
}

func (a *Agent) applyReloadLocked() {
	if a.reload == nil {
		return
	}
	a.lib, a.reload = a.reload, nil
	a.sched.Reset()
	if n := a.coord.AbortAll(); n > 0 {
		logging.AgentDebug("reload aborted %d queued actions", n)
	}
	if n := a.registry.ReleaseAll(); n > 0 {
		logging.AgentWarn("reload released %d leftover claims", n)
	}
	a.seedLocked()
	a.reloads++
	logging.Agent("definitions reloaded (%d operations, %d goals)", len(a.lib.Operations), len(a.lib.Goals))
}

// advanceSequence moves to the next motivation once the current one has been
// reported complete.
func (a *Agent) advanceSequence() {
	a.mu.Lock()
	defer a.mu.Unlock()

	completed := a.completed
	a.completed = nil
	if a.bound == nil {
		return
	}
	seq := a.bound.Sequence
	for _, name := range completed {
		cur := seq.Current()
		if cur == nil || cur.Name() != name {
			continue
		}
		next := seq.Advance()
		if next == nil {
			a.sequenceOK = true
			logging.Agent("motivation %s complete, sequence finished", name)
			continue
		}
		logging.Agent("motivation %s complete, next %s", name, next.Name())
		a.activate(next)
	}
}

func (a *Agent) onEvent(e scheduler.Event) {
	switch e.Kind {
	case scheduler.EventImperativeCompleted:
		a.mu.Lock()
		a.completed = append(a.completed, e.Imperative)
		a.mu.Unlock()
	case scheduler.EventSchedulerStopped:
		if n := a.coord.AbortAll(); n > 0 {
			logging.AgentWarn("scheduler stopped, aborted %d queued actions", n)
		}
	}
}

func (a *Agent) tidy() {
	a.coord.Coordinate(context.Background(), "tidy", a.game.Tidy)
	a.mu.Lock()
	a.tidies++
	a.mu.Unlock()
	logging.AgentDebug("idle, tidy queued")
}

// ReloadFrom loads the definitions under paths and queues them for the next
// beat. Problems are returned; the valid rest still loads. When nothing
// could be read the current definitions stay.
func (a *Agent) ReloadFrom(paths []string) []error {
	lib, probs := definitions.Load(paths)
	if lib == nil {
		logging.AgentWarn("reload skipped: %v", probs)
		return probs
	}
	a.Reload(lib)
	return probs
}

// Package scheduler is the top-level decision loop.
//
// Every beat the Scheduler polls the reactions in flight, retires satisfied
// imperatives, ranks the eligible impulses of the rest by priority and starts
// the best one that is not already running. Repeated aborts and endless
// busy loops stop it for good.
package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"acolyte/internal/imperative"
	"acolyte/internal/logging"
	"acolyte/internal/reaction"
	"acolyte/internal/state"
)

// Mode is the scheduler's coarse state.
type Mode int

const (
	// Idle: nothing in flight.
	Idle Mode = iota
	// Active: at least one reaction in flight.
	Active
)

func (m Mode) String() string {
	if m == Active {
		return "active"
	}
	return "idle"
}

var (
	// ErrTooManyAborts stops the scheduler after consecutive reaction aborts.
	ErrTooManyAborts = errors.New("too many consecutive reaction aborts")

	// ErrRunawayLoop stops the scheduler after too many consecutive busy beats.
	ErrRunawayLoop = errors.New("runaway impulse loop")

	// ErrStopped is the error of a scheduler stopped on request.
	ErrStopped = errors.New("scheduler stopped")

	// ErrDuplicateImperative is returned when adding an imperative twice.
	ErrDuplicateImperative = errors.New("imperative already active")
)

// Config configures the scheduler.
type Config struct {
	AbortThreshold   int // consecutive aborts that stop the scheduler
	RunawayThreshold int // consecutive beats starting an impulse that stop the scheduler
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{AbortThreshold: 3, RunawayThreshold: 100}
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithListener registers a lifecycle listener.
func WithListener(l Listener) Option {
	return func(sc *Scheduler) { sc.listeners = append(sc.listeners, l) }
}

// WithIdleHook runs fn, outside the lock, on every Active to Idle transition.
func WithIdleHook(fn func()) Option {
	return func(sc *Scheduler) { sc.onIdle = fn }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(sc *Scheduler) { sc.now = now }
}

// entry tracks one reaction in flight.
type entry struct {
	reaction    reaction.Reaction
	impulse     *imperative.Impulse
	imperative  imperative.Imperative
	startedBeat uint64
	retired     bool // aborted by the scheduler itself
}

// SchedulerState is everything one scheduler instance tracks between beats.
type SchedulerState struct {
	Imperatives       []imperative.Imperative
	Running           map[*imperative.Impulse]*entry
	InFlight          []*entry // start order
	ConsecutiveAborts int
	BusyBeats         int
	LastHash          uint64
	HashValid         bool
	Dirty             bool
	Mode              Mode
	Beat              uint64
	Err               error
}

func newState() SchedulerState {
	return SchedulerState{Running: make(map[*imperative.Impulse]*entry), Dirty: true}
}

// Scheduler arbitrates impulses. Beat must be called from a single goroutine;
// the other methods are safe to call concurrently with it.
type Scheduler struct {
	mu  sync.Mutex
	cfg Config
	st  SchedulerState

	listeners []Listener
	onIdle    func()
	now       func() time.Time

	events      []Event
	idlePending bool
}

// New creates a scheduler.
func New(cfg Config, opts ...Option) *Scheduler {
	defaults := DefaultConfig()
	if cfg.AbortThreshold <= 0 {
		cfg.AbortThreshold = defaults.AbortThreshold
	}
	if cfg.RunawayThreshold <= 0 {
		cfg.RunawayThreshold = defaults.RunawayThreshold
	}
	sc := &Scheduler{cfg: cfg, st: newState(), now: time.Now}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// unlock releases the lock and then delivers buffered events and the idle hook.
func (sc *Scheduler) unlock() {
	events := sc.events
	sc.events = nil
	idle := sc.idlePending
	sc.idlePending = false
	listeners := sc.listeners
	sc.mu.Unlock()

	dispatch(listeners, events)
	if idle && sc.onIdle != nil {
		sc.onIdle()
	}
}

func (sc *Scheduler) emit(e Event) {
	e.Beat = sc.st.Beat
	e.At = sc.now()
	sc.events = append(sc.events, e)
}

// AddListener registers a listener after construction.
func (sc *Scheduler) AddListener(l Listener) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.listeners = append(sc.listeners, l)
}

// AddImperative activates imp. The next beat re-evaluates even if the
// snapshot is unchanged.
func (sc *Scheduler) AddImperative(imp imperative.Imperative) error {
	sc.mu.Lock()
	defer sc.unlock()
	for _, existing := range sc.st.Imperatives {
		if existing == imp || existing.Name() == imp.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateImperative, imp.Name())
		}
	}
	sc.st.Imperatives = append(sc.st.Imperatives, imp)
	sc.st.Dirty = true
	sc.emit(Event{Kind: EventImperativeAdded, Imperative: imp.Name()})
	logging.Scheduler("imperative %s added", imp.Name())
	return nil
}

// RemoveImperative deactivates the named imperative and aborts its reactions.
func (sc *Scheduler) RemoveImperative(name string) bool {
	sc.mu.Lock()
	defer sc.unlock()
	for i, imp := range sc.st.Imperatives {
		if imp.Name() != name {
			continue
		}
		sc.retireReactions(imp, "imperative removed")
		sc.st.Imperatives = append(sc.st.Imperatives[:i:i], sc.st.Imperatives[i+1:]...)
		sc.st.Dirty = true
		sc.emit(Event{Kind: EventImperativeRemoved, Imperative: name})
		logging.Scheduler("imperative %s removed", name)
		return true
	}
	return false
}

// Imperatives returns the active imperatives in activation order.
func (sc *Scheduler) Imperatives() []imperative.Imperative {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return append([]imperative.Imperative(nil), sc.st.Imperatives...)
}

// Reset aborts every reaction, clears every imperative and every counter,
// and clears a previous fatal error. Used on game restart and reload.
func (sc *Scheduler) Reset() {
	sc.mu.Lock()
	defer sc.unlock()
	sc.retireAll("reset")
	for _, imp := range sc.st.Imperatives {
		sc.emit(Event{Kind: EventImperativeRemoved, Imperative: imp.Name(), Detail: "reset"})
	}
	beat := sc.st.Beat
	sc.st = newState()
	sc.st.Beat = beat
	logging.Scheduler("scheduler reset")
}

// Stop halts the scheduler and aborts everything in flight.
func (sc *Scheduler) Stop() {
	sc.mu.Lock()
	defer sc.unlock()
	if sc.st.Err == nil {
		sc.stop(ErrStopped)
	}
}

// Err returns the error that stopped the scheduler, nil while it runs.
func (sc *Scheduler) Err() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.st.Err
}

// Mode returns the current mode.
func (sc *Scheduler) Mode() Mode {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.st.Mode
}

// Beats returns how many beats have been processed.
func (sc *Scheduler) Beats() uint64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.st.Beat
}

// RunningReaction describes a reaction in flight.
type RunningReaction struct {
	Imperative  string
	Impulse     string
	Priority    imperative.Priority
	ReactionID  string
	Status      reaction.Status
	StartedBeat uint64
}

// Running lists the reactions in flight in start order.
func (sc *Scheduler) Running() []RunningReaction {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	out := make([]RunningReaction, 0, len(sc.st.InFlight))
	for _, e := range sc.st.InFlight {
		out = append(out, RunningReaction{
			Imperative:  e.imperative.Name(),
			Impulse:     e.impulse.Name,
			Priority:    e.impulse.Priority,
			ReactionID:  e.reaction.ID(),
			Status:      e.reaction.Status(),
			StartedBeat: e.startedBeat,
		})
	}
	return out
}

// Beat runs one scheduling step against s.
func (sc *Scheduler) Beat(s *state.Snapshot) {
	sc.mu.Lock()
	defer sc.unlock()
	sc.beat(s)
}

func (sc *Scheduler) beat(s *state.Snapshot) {
	st := &sc.st
	if st.Err != nil {
		return
	}
	st.Beat++

	if s == nil || !s.Running {
		st.Mode = Idle
		st.HashValid = false
		st.BusyBeats = 0
		return
	}

	tick := reaction.Tick{Beat: st.Beat, State: s}
	sc.pollAll(tick)
	if st.Err != nil {
		return
	}

	hash := s.Hash()
	if st.Mode == Idle && len(st.InFlight) == 0 && st.HashValid && hash == st.LastHash && !st.Dirty {
		st.BusyBeats = 0
		return
	}
	st.LastHash, st.HashValid, st.Dirty = hash, true, false

	sc.retireSatisfied(s)

	var started *imperative.Impulse
	if c, ok := sc.choose(s); ok {
		if sc.start(c, tick) {
			started = c.impulse
		}
		if st.Err != nil {
			return
		}
	}

	if started != nil {
		st.BusyBeats++
		if st.BusyBeats >= sc.cfg.RunawayThreshold {
			logging.SchedulerError("impulse %s started on %d consecutive beats without going idle", started.Name, st.BusyBeats)
			sc.stop(fmt.Errorf("%w: impulse %s started on %d consecutive beats", ErrRunawayLoop, started.Name, st.BusyBeats))
			return
		}
	} else {
		st.BusyBeats = 0
	}

	prev := st.Mode
	if len(st.InFlight) > 0 {
		st.Mode = Active
	} else {
		st.Mode = Idle
	}
	if prev == Active && st.Mode == Idle {
		logging.SchedulerDebug("beat %d: active -> idle", st.Beat)
		sc.idlePending = true
	}
}

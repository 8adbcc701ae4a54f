// Package reaction implements the abortable execution units the scheduler runs.
//
// A Reaction moves Unstarted -> Running -> {Completed | Aborted} exactly once.
// Reactions are driven by Poll calls from the beat loop; they never block the
// caller. The end of a reaction is observable through Done and through OnEnd
// finalizers, each of which runs exactly once.
package reaction

import (
	"errors"
	"fmt"
	"sync"

	"acolyte/internal/state"

	"github.com/google/uuid"
)

// Status is a reaction lifecycle state.
type Status int

const (
	Unstarted Status = iota
	Running
	Completed
	Aborted
)

func (s Status) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether s is Completed or Aborted.
func (s Status) Terminal() bool {
	return s == Completed || s == Aborted
}

var (
	// ErrAlreadyStarted is returned by Start on a reaction that has already been started.
	ErrAlreadyStarted = errors.New("reaction already started")

	// ErrEnded is returned by Start on a reaction that was aborted before it started.
	ErrEnded = errors.New("reaction already ended")

	// ErrAborted is the end reason of a reaction aborted from outside.
	ErrAborted = errors.New("reaction aborted")

	// ErrTimeout is the end reason of a reaction whose bounded wait elapsed.
	ErrTimeout = errors.New("reaction timed out")
)

// Tick is what a reaction sees each time it is driven.
type Tick struct {
	Beat  uint64
	State *state.Snapshot
}

// Reaction is a stateful, abortable unit of execution.
type Reaction interface {
	ID() string
	Name() string

	// Start begins execution. It may be called once.
	Start(t Tick) error

	// Poll advances the reaction and returns its status afterwards.
	Poll(t Tick) Status

	// Abort ends the reaction. Safe from any state, idempotent.
	Abort()

	Status() Status

	// Err is nil for a completed reaction and the abort reason otherwise.
	Err() error

	// Done is closed when the reaction reaches a terminal state.
	Done() <-chan struct{}

	// OnEnd registers fn to run exactly once when the reaction ends.
	// If it already ended, fn runs immediately.
	OnEnd(fn func(aborted bool))
}

// Base carries the lifecycle bookkeeping shared by every reaction.
// Embed it and call Begin/End from the concrete implementation.
type Base struct {
	mu     sync.Mutex
	id     string
	name   string
	status Status
	err    error
	done   chan struct{}
	onEnd  []func(aborted bool)
}

// NewBase creates lifecycle bookkeeping for a reaction named name.
func NewBase(name string) *Base {
	return &Base{
		id:   uuid.NewString(),
		name: name,
		done: make(chan struct{}),
	}
}

func (b *Base) ID() string   { return b.id }
func (b *Base) Name() string { return b.name }

func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Base) Done() <-chan struct{} {
	return b.done
}

func (b *Base) OnEnd(fn func(aborted bool)) {
	b.mu.Lock()
	if !b.status.Terminal() {
		b.onEnd = append(b.onEnd, fn)
		b.mu.Unlock()
		return
	}
	aborted := b.status == Aborted
	b.mu.Unlock()
	fn(aborted)
}

// Begin moves Unstarted -> Running.
func (b *Base) Begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.status == Running:
		return fmt.Errorf("%s: %w", b.name, ErrAlreadyStarted)
	case b.status.Terminal():
		return fmt.Errorf("%s: %w", b.name, ErrEnded)
	}
	b.status = Running
	return nil
}

// End moves the reaction to its terminal state: Completed when err is nil,
// Aborted otherwise. Only the first call has any effect; it reports whether
// this call ended the reaction.
func (b *Base) End(err error) bool {
	b.mu.Lock()
	if b.status.Terminal() {
		b.mu.Unlock()
		return false
	}
	if err == nil {
		b.status = Completed
	} else {
		b.status = Aborted
		b.err = err
	}
	aborted := b.status == Aborted
	hooks := b.onEnd
	b.onEnd = nil
	close(b.done)
	b.mu.Unlock()

	for _, fn := range hooks {
		fn(aborted)
	}
	return true
}

// Ended reports whether the reaction is terminal.
func (b *Base) Ended() bool {
	return b.Status().Terminal()
}

package reaction

import (
	"context"
	"fmt"

	"acolyte/internal/coordinator"
)

// Submitter accepts work for serialized execution.
type Submitter interface {
	Coordinate(ctx context.Context, label string, work coordinator.Work) *coordinator.Pending
}

// Work is a leaf reaction wrapping one coordinated item. It completes when the
// item succeeds and aborts with the item's error otherwise.
type Work struct {
	*Base
	submitter Submitter
	fn        coordinator.Work
	pending   *coordinator.Pending
}

// NewWork wraps fn.
func NewWork(name string, submitter Submitter, fn coordinator.Work) *Work {
	return &Work{Base: NewBase(name), submitter: submitter, fn: fn}
}

func (w *Work) Start(t Tick) error {
	if err := w.Begin(); err != nil {
		return err
	}
	w.pending = w.submitter.Coordinate(context.Background(), w.Name(), w.fn)
	w.settle()
	return nil
}

func (w *Work) Poll(t Tick) Status {
	if w.Status() == Running {
		w.settle()
	}
	return w.Status()
}

func (w *Work) settle() {
	if w.pending == nil || !w.pending.Ready() {
		return
	}
	if err := w.pending.Err(); err != nil {
		w.End(fmt.Errorf("%s: %w", w.Name(), err))
		return
	}
	w.End(nil)
}

func (w *Work) Abort() {
	if w.Ended() {
		return
	}
	if w.pending != nil {
		w.pending.Cancel()
	}
	w.End(ErrAborted)
}

package reaction

import "fmt"

// Followup runs first, then second once first completes cleanly.
// If first aborts, second is never started.
type Followup struct {
	*Base
	first  Reaction
	second Reaction
	onto   bool // second has been started
}

// NewFollowup sequences two reactions.
func NewFollowup(name string, first, second Reaction) *Followup {
	return &Followup{Base: NewBase(name), first: first, second: second}
}

func (f *Followup) Start(t Tick) error {
	if err := f.Begin(); err != nil {
		return err
	}
	if err := f.first.Start(t); err != nil {
		f.End(fmt.Errorf("%s: %s failed to start: %w", f.Name(), f.first.Name(), err))
		return err
	}
	return f.advance(t)
}

func (f *Followup) Poll(t Tick) Status {
	if f.Status() != Running {
		return f.Status()
	}
	if f.onto {
		f.second.Poll(t)
	} else {
		f.first.Poll(t)
	}
	_ = f.advance(t)
	return f.Status()
}

func (f *Followup) advance(t Tick) error {
	if !f.onto {
		switch f.first.Status() {
		case Aborted:
			f.End(fmt.Errorf("%s: %s aborted: %w", f.Name(), f.first.Name(), childErr(f.first)))
			return nil
		case Completed:
			f.onto = true
			if err := f.second.Start(t); err != nil {
				f.End(fmt.Errorf("%s: %s failed to start: %w", f.Name(), f.second.Name(), err))
				return err
			}
		default:
			return nil
		}
	}
	switch f.second.Status() {
	case Aborted:
		f.End(fmt.Errorf("%s: %s aborted: %w", f.Name(), f.second.Name(), childErr(f.second)))
	case Completed:
		f.End(nil)
	}
	return nil
}

func (f *Followup) Abort() {
	if f.Ended() {
		return
	}
	if f.onto {
		f.second.Abort()
	} else {
		f.first.Abort()
	}
	f.End(ErrAborted)
}

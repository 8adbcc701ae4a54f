package scheduler

import (
	"fmt"
	"sort"

	"acolyte/internal/condition"
	"acolyte/internal/imperative"
	"acolyte/internal/logging"
	"acolyte/internal/reaction"
	"acolyte/internal/state"
)

// pollAll advances every reaction in flight and settles the ones that ended.
func (sc *Scheduler) pollAll(tick reaction.Tick) {
	for _, e := range append([]*entry(nil), sc.st.InFlight...) {
		if !e.reaction.Status().Terminal() {
			sc.poll(e, tick)
		}
	}
	for _, e := range append([]*entry(nil), sc.st.InFlight...) {
		if e.reaction.Status().Terminal() {
			sc.settle(e)
			if sc.st.Err != nil {
				return
			}
		}
	}
}

// poll converts a panicking reaction into an aborted one.
func (sc *Scheduler) poll(e *entry, tick reaction.Tick) {
	defer func() {
		if r := recover(); r != nil {
			logging.SchedulerError("reaction %s (%s) panicked: %v", e.reaction.Name(), e.impulse.Name, r)
			e.reaction.Abort()
		}
	}()
	e.reaction.Poll(tick)
}

// settle removes an ended reaction from the books and feeds the breaker.
func (sc *Scheduler) settle(e *entry) {
	st := &sc.st
	for i, x := range st.InFlight {
		if x == e {
			st.InFlight = append(st.InFlight[:i:i], st.InFlight[i+1:]...)
			break
		}
	}
	if st.Running[e.impulse] == e {
		delete(st.Running, e.impulse)
	}
	st.Dirty = true

	aborted := e.reaction.Status() == reaction.Aborted
	detail := ""
	if err := e.reaction.Err(); err != nil {
		detail = err.Error()
	}
	sc.emit(Event{Kind: EventReactionEnded, Imperative: e.imperative.Name(), Impulse: e.impulse.Name,
		Priority: e.impulse.Priority.String(), Reaction: e.reaction.ID(), Aborted: aborted, Detail: detail})
	sc.emit(Event{Kind: EventImpulseEnded, Imperative: e.imperative.Name(), Impulse: e.impulse.Name,
		Priority: e.impulse.Priority.String(), Reaction: e.reaction.ID(), Aborted: aborted, Detail: detail})

	if e.retired {
		return
	}
	if !aborted {
		if st.ConsecutiveAborts > 0 {
			logging.SchedulerDebug("%s completed, abort counter reset from %d", e.impulse.Name, st.ConsecutiveAborts)
		}
		st.ConsecutiveAborts = 0
		return
	}

	st.ConsecutiveAborts++
	logging.SchedulerWarn("impulse %s aborted (%d/%d): %s", e.impulse.Name, st.ConsecutiveAborts, sc.cfg.AbortThreshold, detail)
	if st.ConsecutiveAborts >= sc.cfg.AbortThreshold {
		sc.stop(fmt.Errorf("%w: %d in a row, last %s: %s", ErrTooManyAborts, st.ConsecutiveAborts, e.impulse.Name, detail))
	}
}

// retire aborts a reaction on the scheduler's own initiative; it does not
// count toward the breaker.
func (sc *Scheduler) retire(e *entry, why string) {
	e.retired = true
	if !e.reaction.Status().Terminal() {
		logging.SchedulerDebug("aborting %s: %s", e.impulse.Name, why)
		e.reaction.Abort()
	}
	sc.settle(e)
}

func (sc *Scheduler) retireReactions(imp imperative.Imperative, why string) {
	for _, e := range append([]*entry(nil), sc.st.InFlight...) {
		if e.imperative == imp {
			sc.retire(e, why)
		}
	}
}

func (sc *Scheduler) retireAll(why string) {
	for _, e := range append([]*entry(nil), sc.st.InFlight...) {
		sc.retire(e, why)
	}
}

// stop records a fatal error and aborts everything in flight.
func (sc *Scheduler) stop(err error) {
	sc.st.Err = err
	sc.retireAll("scheduler stopped")
	sc.st.Mode = Idle
	sc.emit(Event{Kind: EventSchedulerStopped, Detail: err.Error()})
	logging.SchedulerError("scheduler stopped: %v", err)
}

// retireSatisfied removes imperatives whose completion condition holds.
func (sc *Scheduler) retireSatisfied(s *state.Snapshot) {
	kept := sc.st.Imperatives[:0:0]
	for _, imp := range sc.st.Imperatives {
		res, ok := safeResult(func() condition.Result { return imp.IsSatisfied(s) })
		if !ok || !res.Met {
			kept = append(kept, imp)
			continue
		}
		sc.retireReactions(imp, "imperative complete")
		sc.emit(Event{Kind: EventImperativeCompleted, Imperative: imp.Name(), Detail: res.Reason})
		sc.emit(Event{Kind: EventImperativeRemoved, Imperative: imp.Name()})
		logging.Scheduler("imperative %s complete", imp.Name())
	}
	sc.st.Imperatives = kept
}

type candidate struct {
	imperative imperative.Imperative
	impulse    *imperative.Impulse
}

// choose ranks eligible impulses and returns the best one not already running.
// A panic anywhere in the scan means no impulse this beat.
func (sc *Scheduler) choose(s *state.Snapshot) (c candidate, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.SchedulerError("eligibility scan panicked: %v", r)
			c, ok = candidate{}, false
		}
	}()

	var candidates []candidate
	for _, imp := range sc.st.Imperatives {
		for _, i := range imp.Impulses(s) {
			candidates = append(candidates, candidate{imperative: imp, impulse: i})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].impulse.Priority > candidates[j].impulse.Priority
	})
	for _, c := range candidates {
		if _, running := sc.st.Running[c.impulse]; !running {
			return c, true
		}
	}
	return candidate{}, false
}

// start creates, registers and starts the chosen impulse's reaction. It
// reports whether a reaction was started.
func (sc *Scheduler) start(c candidate, tick reaction.Tick) bool {
	r, err := newReaction(c.impulse)
	if err != nil {
		logging.SchedulerError("impulse %s: %v", c.impulse.Name, err)
		return false
	}
	e := &entry{reaction: r, impulse: c.impulse, imperative: c.imperative, startedBeat: tick.Beat}
	sc.st.Running[c.impulse] = e
	sc.st.InFlight = append(sc.st.InFlight, e)

	sc.emit(Event{Kind: EventImpulseStarted, Imperative: c.imperative.Name(), Impulse: c.impulse.Name,
		Priority: c.impulse.Priority.String(), Reaction: r.ID()})
	sc.emit(Event{Kind: EventReactionStarted, Imperative: c.imperative.Name(), Impulse: c.impulse.Name,
		Priority: c.impulse.Priority.String(), Reaction: r.ID()})
	logging.Scheduler("beat %d: starting %s (%s) for %s", tick.Beat, c.impulse.Name, c.impulse.Priority, c.imperative.Name())

	if err := startReaction(r, tick); err != nil {
		logging.SchedulerWarn("impulse %s failed to start: %v", c.impulse.Name, err)
		r.Abort()
	}
	if r.Status().Terminal() {
		// Ended synchronously; the impulse is free again next beat.
		sc.settle(e)
	}
	return true
}

func newReaction(i *imperative.Impulse) (r reaction.Reaction, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reaction factory panicked: %v", p)
		}
	}()
	if i.Reactor == nil {
		return nil, fmt.Errorf("no reactor")
	}
	r = i.NewReaction()
	if r == nil {
		return nil, fmt.Errorf("reactor %s produced no reaction", i.Reactor.Name())
	}
	return r, nil
}

func startReaction(r reaction.Reaction, tick reaction.Tick) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("start panicked: %v", p)
		}
	}()
	return r.Start(tick)
}

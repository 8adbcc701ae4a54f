// Package imperative holds the declarative description of intent: goals,
// motivations and the priority-tagged impulses they offer.
//
// Nothing here carries execution state. Eligibility is recomputed from the
// snapshot on every call.
package imperative

import (
	"fmt"

	"acolyte/internal/condition"
	"acolyte/internal/reaction"
	"acolyte/internal/state"
)

// Reactor produces the reaction an impulse runs and reports whether that
// reaction could start against the current snapshot.
type Reactor interface {
	Name() string
	CanStart(s *state.Snapshot) condition.Result
	NewReaction() reaction.Reaction
}

// Impulse is a priority-tagged, conditionally eligible offer to run a reaction.
// Impulses are compared by pointer identity.
type Impulse struct {
	Name         string
	Priority     Priority
	Requirements condition.Condition // nil always holds
	Forbidders   condition.Condition // nil never forbids
	Reactor      Reactor
}

// Eligible reports whether the impulse may start now: requirements hold,
// forbidders do not, and the reactor can start.
func (i *Impulse) Eligible(s *state.Snapshot) condition.Result {
	if r := condition.Evaluate(i.Requirements, s); !r.Met {
		return condition.Fail("requirements: %s", r.Reason)
	}
	if i.Forbidders != nil {
		if r := condition.Evaluate(condition.Not(i.Forbidders), s); !r.Met {
			return r
		}
	}
	if i.Reactor == nil {
		return condition.Fail("no reactor")
	}
	if r := i.Reactor.CanStart(s); !r.Met {
		return condition.Fail("cannot start %s: %s", i.Reactor.Name(), r.Reason)
	}
	return condition.Pass()
}

// NewReaction asks the reactor for a fresh reaction.
func (i *Impulse) NewReaction() reaction.Reaction {
	return i.Reactor.NewReaction()
}

func (i *Impulse) String() string {
	return fmt.Sprintf("%s[%s]", i.Name, i.Priority)
}

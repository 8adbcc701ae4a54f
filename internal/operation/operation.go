// Package operation drives one situation end to end: slot cards and start it,
// feed its running recipes, pick its mansus face and collect its output.
package operation

import (
	"errors"
	"fmt"
	"sort"

	"acolyte/internal/condition"
	"acolyte/internal/game"
	"acolyte/internal/reaction"
	"acolyte/internal/resource"
	"acolyte/internal/state"
)

var (
	// ErrResourceClaimed is returned by Start when another reaction holds the situation.
	ErrResourceClaimed = errors.New("resource already claimed")

	// ErrSituationVanished aborts an operation whose situation left the table.
	ErrSituationVanished = errors.New("situation vanished")

	// ErrInterrupted aborts an operation whose situation was reset by someone else.
	ErrInterrupted = errors.New("situation reset externally")

	// ErrNoCards aborts an operation that cannot fill a required slot.
	ErrNoCards = errors.New("no card for slot")

	// ErrNoMansusFace aborts an operation offered none of its preferred faces.
	ErrNoMansusFace = errors.New("no preferred mansus face")

	// ErrStalled aborts an operation that made no progress for too long.
	ErrStalled = errors.New("operation stalled")
)

// SlotFill says which card goes into a slot.
type SlotFill struct {
	Slot     string
	Chooser  condition.CardChooser
	Optional bool
}

// Operation is the resolved, read-only description of how to run a situation.
type Operation struct {
	Name         string
	Situation    string
	Requirements condition.Condition   // extra start condition, nil always holds
	StartSlots   []SlotFill            // filled before starting an idle situation
	Recipes      map[string][]SlotFill // per-recipe fills; keys are the recipes this operation can resume
	Mansus       []string              // face preference, first offered wins
}

// Key is the resource the operation claims.
func (op *Operation) Key() resource.Key {
	return resource.SituationKey(op.Situation)
}

// RecipeIDs returns the recognised recipes in order.
func (op *Operation) RecipeIDs() []string {
	ids := make([]string, 0, len(op.Recipes))
	for id := range op.Recipes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CanStart reports whether an operation reaction could start now. It fails
// while another reaction holds the situation, so the same resource is never
// selected twice.
func (op *Operation) CanStart(s *state.Snapshot, registry *resource.Registry) condition.Result {
	sit, ok := s.Situation(op.Situation)
	if !ok {
		return condition.Fail("situation %s not on the table", op.Situation)
	}
	if registry != nil {
		if holder, held := registry.Holder(op.Key()); held {
			return condition.Fail("situation %s claimed by %s", op.Situation, holder.Name())
		}
	}
	if r := condition.Evaluate(op.Requirements, s); !r.Met {
		return condition.Fail("requirements: %s", r.Reason)
	}

	switch sit.State {
	case state.SituationIdle:
		if _, failed, ok := condition.ChooseCards(s, required(op.StartSlots), nil); !ok {
			return condition.Fail("no card for %s", required(op.StartSlots)[failed])
		}
		return condition.Pass()
	case state.SituationOngoing:
		if _, known := op.Recipes[sit.Recipe]; known {
			return condition.PassBecause("resume %s", sit.Recipe)
		}
		return condition.Fail("situation %s is running %s", op.Situation, sit.Recipe)
	case state.SituationComplete:
		return condition.PassBecause("collect %s", op.Situation)
	default:
		return condition.Fail("situation %s is %s", op.Situation, sit.State)
	}
}

func required(fills []SlotFill) []condition.CardChooser {
	var out []condition.CardChooser
	for _, f := range fills {
		if !f.Optional {
			out = append(out, f.Chooser)
		}
	}
	return out
}

// Env is what a running operation needs from the agent.
type Env struct {
	Registry    *resource.Registry
	Coordinator reaction.Submitter
	Actions     game.Actions
	StallBeats  uint64 // 0 disables the stall timeout
}

// Reactor binds an operation to an environment so impulses can start it.
type Reactor struct {
	Op  *Operation
	Env *Env
}

// Bind returns a Reactor for op.
func (op *Operation) Bind(env *Env) *Reactor {
	return &Reactor{Op: op, Env: env}
}

func (r *Reactor) Name() string { return r.Op.Name }

func (r *Reactor) CanStart(s *state.Snapshot) condition.Result {
	return r.Op.CanStart(s, r.Env.Registry)
}

func (r *Reactor) NewReaction() reaction.Reaction {
	return NewReaction(r.Op, r.Env)
}

func (r *Reactor) String() string {
	return fmt.Sprintf("operation(%s on %s)", r.Op.Name, r.Op.Situation)
}

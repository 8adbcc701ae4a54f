package operation

import (
	"context"
	"fmt"
	"strings"

	"acolyte/internal/condition"
	"acolyte/internal/coordinator"
	"acolyte/internal/game"
	"acolyte/internal/logging"
	"acolyte/internal/reaction"
	"acolyte/internal/state"
)

// Reaction operates one situation end to end. It holds the situation's claim
// for its whole life and decides each step from the snapshot it is polled with.
type Reaction struct {
	*reaction.Base
	op  *Operation
	env *Env

	pending   *coordinator.Pending
	step      string
	onSuccess func()

	kicked    bool            // the situation has been started, by us or before we adopted it
	concluded bool            // we collected the output
	fed       map[string]bool // recipes whose slots we filled

	signature    string
	lastProgress uint64
}

// NewReaction creates an unstarted operation reaction.
func NewReaction(op *Operation, env *Env) *Reaction {
	return &Reaction{
		Base: reaction.NewBase(op.Name),
		op:   op,
		env:  env,
		fed:  make(map[string]bool),
	}
}

// Operation returns the operation being run.
func (r *Reaction) Operation() *Operation {
	return r.op
}

// Start claims the situation and issues the first step. A rejected claim
// means two reactions were chosen for one situation; it fails Start and ends
// the reaction aborted.
func (r *Reaction) Start(t reaction.Tick) error {
	if err := r.Begin(); err != nil {
		return err
	}
	if !r.env.Registry.TryAddConstraint(r, r.op.Key()) {
		err := fmt.Errorf("%s: %w: %s", r.Name(), ErrResourceClaimed, r.op.Key())
		logging.ReactionWarn("%v", err)
		r.End(err)
		return err
	}
	r.lastProgress = t.Beat
	r.advance(t)
	return nil
}

func (r *Reaction) Poll(t reaction.Tick) reaction.Status {
	if r.Status() == reaction.Running {
		r.advance(t)
	}
	return r.Status()
}

func (r *Reaction) Abort() {
	if r.Ended() {
		return
	}
	if r.pending != nil {
		r.pending.Cancel()
	}
	r.End(reaction.ErrAborted)
}

func (r *Reaction) fail(err error) {
	if r.pending != nil {
		r.pending.Cancel()
		r.pending = nil
	}
	logging.ReactionWarn("%s aborted: %v", r.Name(), err)
	r.End(err)
}

func (r *Reaction) progress(t reaction.Tick) {
	r.lastProgress = t.Beat
}

func (r *Reaction) stalled(t reaction.Tick) bool {
	if r.env.StallBeats == 0 || t.Beat < r.lastProgress {
		return false
	}
	if t.Beat-r.lastProgress < r.env.StallBeats {
		return false
	}
	r.fail(fmt.Errorf("%s: %w after %d beats (%s)", r.Name(), ErrStalled, t.Beat-r.lastProgress, r.describe()))
	return true
}

func (r *Reaction) describe() string {
	if r.pending != nil {
		return "waiting for " + r.step
	}
	return "waiting on " + r.op.Situation
}

// advance is the state machine. At most one coordinated step is outstanding;
// after it lands the next decision waits for a fresh snapshot.
func (r *Reaction) advance(t reaction.Tick) {
	if r.pending != nil {
		if !r.pending.Ready() {
			r.stalled(t)
			return
		}
		err := r.pending.Err()
		r.pending = nil
		if err != nil {
			r.fail(fmt.Errorf("%s: %s: %w", r.Name(), r.step, err))
			return
		}
		if r.onSuccess != nil {
			r.onSuccess()
		}
		r.progress(t)
		return
	}

	s := t.State
	if s == nil {
		return
	}
	sit, ok := s.Situation(r.op.Situation)
	if !ok {
		r.fail(fmt.Errorf("%s: %w: %s", r.Name(), ErrSituationVanished, r.op.Situation))
		return
	}
	if sig := signature(sit); sig != r.signature {
		r.signature = sig
		r.progress(t)
	} else if r.stalled(t) {
		return
	}

	switch sit.State {
	case state.SituationIdle:
		r.onIdle(s)
	case state.SituationOngoing:
		r.onOngoing(s, sit)
	case state.SituationComplete:
		r.onComplete()
	}
}

func (r *Reaction) onIdle(s *state.Snapshot) {
	switch {
	case r.concluded:
		logging.ReactionDebug("%s: %s collected", r.Name(), r.op.Situation)
		r.End(nil)
		return
	case r.kicked:
		r.fail(fmt.Errorf("%s: %w: %s", r.Name(), ErrInterrupted, r.op.Situation))
		return
	}

	placements, err := place(s, r.op.StartSlots, nil)
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", r.Name(), err))
		return
	}
	id, actions := r.op.Situation, r.env.Actions
	r.issue("start", func() { r.kicked = true }, func(ctx context.Context) (err error) {
		if err := actions.OpenSituation(ctx, id); err != nil {
			return err
		}
		defer closeOnError(ctx, actions, id, &err)
		for _, p := range placements {
			if err := actions.SlotCard(ctx, id, p.slot, p.card); err != nil {
				return err
			}
		}
		if err := actions.StartSituation(ctx, id); err != nil {
			return err
		}
		return actions.CloseSituation(ctx, id)
	})
}

func (r *Reaction) onOngoing(s *state.Snapshot, sit state.Situation) {
	if !r.kicked {
		logging.ReactionDebug("%s: adopting running %s", r.Name(), sit.Recipe)
		r.kicked = true
	}

	if m := s.Mansus; m != nil && m.Situation == r.op.Situation {
		face, ok := prefer(r.op.Mansus, m.Faces)
		if !ok {
			r.fail(fmt.Errorf("%s: %w among %v", r.Name(), ErrNoMansusFace, m.Faces))
			return
		}
		actions := r.env.Actions
		r.issue("mansus "+face, nil, func(ctx context.Context) error {
			return actions.ChooseMansus(ctx, face)
		})
		return
	}

	fills := r.op.Recipes[sit.Recipe]
	if len(fills) == 0 || r.fed[sit.Recipe] {
		return
	}
	var open []SlotFill
	for _, f := range fills {
		if slot, ok := sit.Slot(f.Slot); ok && slot.Card == "" {
			open = append(open, f)
		}
	}
	if len(open) == 0 {
		return
	}
	placements, err := place(s, open, nil)
	if err != nil {
		r.fail(fmt.Errorf("%s: %s: %w", r.Name(), sit.Recipe, err))
		return
	}
	recipe := sit.Recipe
	if len(placements) == 0 {
		r.fed[recipe] = true
		return
	}
	id, actions := r.op.Situation, r.env.Actions
	r.issue("feed "+recipe, func() { r.fed[recipe] = true }, func(ctx context.Context) (err error) {
		if err := actions.OpenSituation(ctx, id); err != nil {
			return err
		}
		defer closeOnError(ctx, actions, id, &err)
		for _, p := range placements {
			if err := actions.SlotCard(ctx, id, p.slot, p.card); err != nil {
				return err
			}
		}
		return actions.CloseSituation(ctx, id)
	})
}

func (r *Reaction) onComplete() {
	r.kicked = true
	id, actions := r.op.Situation, r.env.Actions
	r.issue("conclude", func() { r.concluded = true }, func(ctx context.Context) (err error) {
		if err := actions.OpenSituation(ctx, id); err != nil {
			return err
		}
		defer closeOnError(ctx, actions, id, &err)
		if err := actions.ConcludeSituation(ctx, id); err != nil {
			return err
		}
		return actions.CloseSituation(ctx, id)
	})
}

func (r *Reaction) issue(step string, onSuccess func(), work coordinator.Work) {
	r.step = step
	r.onSuccess = onSuccess
	r.pending = r.env.Coordinator.Coordinate(context.Background(), r.Name()+":"+step, work)
	logging.ReactionDebug("%s: issued %s", r.Name(), step)
}

// closeOnError closes the situation after a failed step so the table is not
// left with a dangling open window.
func closeOnError(ctx context.Context, actions game.Actions, id string, err *error) {
	if *err != nil {
		_ = actions.CloseSituation(ctx, id)
	}
}

type placement struct {
	slot string
	card string
}

// place assigns distinct cards to fills. Optional fills that find nothing are
// skipped; a required fill that finds nothing is an error.
func place(s *state.Snapshot, fills []SlotFill, exclude map[string]bool) ([]placement, error) {
	used := make(map[string]bool, len(exclude))
	for k := range exclude {
		used[k] = true
	}
	var out []placement
	for _, f := range fills {
		chosen, _, ok := condition.ChooseCards(s, []condition.CardChooser{f.Chooser}, used)
		if !ok {
			if f.Optional {
				continue
			}
			return nil, fmt.Errorf("%w %s: %s", ErrNoCards, f.Slot, f.Chooser)
		}
		used[chosen[0].ID] = true
		out = append(out, placement{slot: f.Slot, card: chosen[0].ID})
	}
	return out, nil
}

func prefer(preferences, offered []string) (string, bool) {
	for _, p := range preferences {
		for _, o := range offered {
			if p == o {
				return p, true
			}
		}
	}
	return "", false
}

func signature(sit state.Situation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%d|%d", sit.State, sit.Recipe, sit.TimeRemaining, len(sit.Output))
	for _, sl := range sit.Slots {
		b.WriteString("|" + sl.ID + "=" + sl.Card)
	}
	return b.String()
}

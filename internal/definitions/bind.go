package definitions

import (
	"acolyte/internal/imperative"
	"acolyte/internal/operation"
)

// Bound is a Library turned into live imperatives for one environment.
// Goals are shared: a goal named by a motivation and by the imperatives list
// is the same *imperative.Goal.
type Bound struct {
	Goals       map[string]*imperative.Goal
	Motivations map[string]*imperative.Motivation
	Sequence    *imperative.Sequence
	Imperatives []imperative.Imperative
}

// Bind builds imperatives whose impulses run operations against env.
func (l *Library) Bind(env *operation.Env) *Bound {
	reactors := make(map[string]*operation.Reactor, len(l.Operations))
	for id, op := range l.Operations {
		reactors[id] = op.Bind(env)
	}

	b := &Bound{
		Goals:       make(map[string]*imperative.Goal, len(l.Goals)),
		Motivations: make(map[string]*imperative.Motivation, len(l.Motivations)),
	}
	for _, id := range l.GoalOrder {
		def := l.Goals[id]
		g := &imperative.Goal{
			ID:           def.ID,
			Requirements: def.Requirements,
			Completion:   def.Completion,
		}
		for _, imp := range def.Impulses {
			g.Offers = append(g.Offers, &imperative.Impulse{
				Name:         imp.Name,
				Priority:     imp.Priority,
				Requirements: imp.Requirements,
				Forbidders:   imp.Forbidders,
				Reactor:      reactors[imp.Operation],
			})
		}
		b.Goals[id] = g
	}
	for _, id := range l.MotivationOrder {
		def := l.Motivations[id]
		m := &imperative.Motivation{ID: def.ID}
		for _, gid := range def.Primary {
			m.Primary = append(m.Primary, b.Goals[gid])
		}
		for _, gid := range def.Supporting {
			m.Supporting = append(m.Supporting, b.Goals[gid])
		}
		b.Motivations[id] = m
	}

	seq := make([]*imperative.Motivation, 0, len(l.Sequence))
	for _, id := range l.Sequence {
		seq = append(seq, b.Motivations[id])
	}
	b.Sequence = imperative.NewSequence(seq...)
	for _, id := range l.Imperatives {
		b.Imperatives = append(b.Imperatives, b.Goals[id])
	}
	return b
}

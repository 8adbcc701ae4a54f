package imperative

import (
	"acolyte/internal/condition"
	"acolyte/internal/state"
)

// Imperative is anything that offers impulses: a Goal or a Motivation.
type Imperative interface {
	Name() string

	// CanActivate reports whether the imperative may offer impulses now.
	CanActivate(s *state.Snapshot) condition.Result

	// IsSatisfied reports whether the imperative is complete.
	IsSatisfied(s *state.Snapshot) condition.Result

	// Impulses returns the eligible impulses in declaration order.
	Impulses(s *state.Snapshot) []*Impulse

	// Declared returns every impulse regardless of eligibility.
	Declared() []*Impulse
}

// Goal bundles an activation condition, a completion condition and the
// impulses that work toward it.
type Goal struct {
	ID           string
	Requirements condition.Condition // activation; nil always holds
	Completion   condition.Condition // nil is never complete
	Offers       []*Impulse
}

func (g *Goal) Name() string { return g.ID }

func (g *Goal) CanActivate(s *state.Snapshot) condition.Result {
	if r := g.IsSatisfied(s); r.Met {
		return condition.Fail("already complete: %s", r.Reason)
	}
	return condition.Evaluate(g.Requirements, s)
}

func (g *Goal) IsSatisfied(s *state.Snapshot) condition.Result {
	if g.Completion == nil {
		return condition.Fail("no completion condition")
	}
	return g.Completion.Evaluate(s)
}

func (g *Goal) Impulses(s *state.Snapshot) []*Impulse {
	if !g.CanActivate(s).Met {
		return nil
	}
	return eligible(g.Offers, s)
}

func (g *Goal) Declared() []*Impulse {
	return g.Offers
}

func eligible(impulses []*Impulse, s *state.Snapshot) []*Impulse {
	var out []*Impulse
	for _, imp := range impulses {
		if imp.Eligible(s).Met {
			out = append(out, imp)
		}
	}
	return out
}

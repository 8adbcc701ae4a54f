package imperative

import (
	"acolyte/internal/condition"
	"acolyte/internal/state"
)

// Motivation aggregates primary goals, which gate completion, and supporting
// goals, which run alongside but never gate it.
type Motivation struct {
	ID         string
	Primary    []*Goal
	Supporting []*Goal
}

func (m *Motivation) Name() string { return m.ID }

func (m *Motivation) CanActivate(s *state.Snapshot) condition.Result {
	if r := m.IsSatisfied(s); r.Met {
		return condition.Fail("already complete")
	}
	return condition.Pass()
}

// IsSatisfied holds once every primary goal is satisfied.
func (m *Motivation) IsSatisfied(s *state.Snapshot) condition.Result {
	if len(m.Primary) == 0 {
		return condition.Fail("no primary goals")
	}
	for _, g := range m.Primary {
		if r := g.IsSatisfied(s); !r.Met {
			return condition.Fail("%s: %s", g.ID, r.Reason)
		}
	}
	return condition.PassBecause("all %d primary goals complete", len(m.Primary))
}

// Impulses collects the eligible impulses of every goal that can activate,
// primaries first.
func (m *Motivation) Impulses(s *state.Snapshot) []*Impulse {
	if !m.CanActivate(s).Met {
		return nil
	}
	var out []*Impulse
	for _, g := range m.Goals() {
		out = append(out, g.Impulses(s)...)
	}
	return out
}

func (m *Motivation) Declared() []*Impulse {
	var out []*Impulse
	for _, g := range m.Goals() {
		out = append(out, g.Offers...)
	}
	return out
}

// Goals returns primary then supporting goals.
func (m *Motivation) Goals() []*Goal {
	out := make([]*Goal, 0, len(m.Primary)+len(m.Supporting))
	out = append(out, m.Primary...)
	return append(out, m.Supporting...)
}

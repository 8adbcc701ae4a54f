// Package condition evaluates declarative predicates against a state snapshot.
//
// Conditions are pure: they never mutate the snapshot, never cache results
// across calls and never return errors. A condition that cannot hold reports a
// negative Result carrying a human-readable reason so operators can see why
// an impulse was not eligible.
package condition

import (
	"fmt"
	"strings"

	"acolyte/internal/state"
)

// Result is the outcome of evaluating a condition.
// Met with an empty Reason is a plain pass; Met with a Reason explains why it
// passed; !Met always carries the reason it failed.
type Result struct {
	Met    bool
	Reason string
}

// Pass returns an unexplained positive result.
func Pass() Result {
	return Result{Met: true}
}

// PassBecause returns a positive result with an explanation.
func PassBecause(format string, args ...interface{}) Result {
	return Result{Met: true, Reason: fmt.Sprintf(format, args...)}
}

// Fail returns a negative result with an explanation.
func Fail(format string, args ...interface{}) Result {
	return Result{Met: false, Reason: fmt.Sprintf(format, args...)}
}

func (r Result) String() string {
	switch {
	case r.Met && r.Reason == "":
		return "met"
	case r.Met:
		return "met: " + r.Reason
	default:
		return "not met: " + r.Reason
	}
}

// Condition is a predicate over a snapshot.
type Condition interface {
	Evaluate(s *state.Snapshot) Result
	String() string
}

// Evaluate evaluates c against s. A nil condition always holds.
func Evaluate(c Condition, s *state.Snapshot) Result {
	if c == nil {
		return Pass()
	}
	return c.Evaluate(s)
}

// Func adapts a function to Condition.
type Func struct {
	Name string
	Fn   func(s *state.Snapshot) Result
}

func (f Func) Evaluate(s *state.Snapshot) Result { return f.Fn(s) }
func (f Func) String() string                    { return f.Name }

type constant bool

// Always holds.
const Always = constant(true)

// Never holds.
const Never = constant(false)

func (c constant) Evaluate(*state.Snapshot) Result {
	if c {
		return Pass()
	}
	return Fail("never")
}

func (c constant) String() string {
	if c {
		return "always"
	}
	return "never"
}

type all []Condition

// All holds when every child holds. It stops at the first failure.
func All(conds ...Condition) Condition {
	return all(compact(conds))
}

func (a all) Evaluate(s *state.Snapshot) Result {
	for _, c := range a {
		r := c.Evaluate(s)
		if !r.Met {
			return Fail("%s: %s", c, r.Reason)
		}
	}
	return Pass()
}

func (a all) String() string {
	return "all(" + join(a) + ")"
}

type anyOf []Condition

// Any holds when at least one child holds.
func Any(conds ...Condition) Condition {
	return anyOf(compact(conds))
}

func (a anyOf) Evaluate(s *state.Snapshot) Result {
	if len(a) == 0 {
		return Fail("no alternatives")
	}
	reasons := make([]string, 0, len(a))
	for _, c := range a {
		r := c.Evaluate(s)
		if r.Met {
			return r
		}
		reasons = append(reasons, fmt.Sprintf("%s: %s", c, r.Reason))
	}
	return Fail("none of [%s]", strings.Join(reasons, "; "))
}

func (a anyOf) String() string {
	return "any(" + join(a) + ")"
}

type not struct {
	inner Condition
}

// Not is a forbidder: it holds when inner does not.
func Not(inner Condition) Condition {
	return not{inner: inner}
}

func (n not) Evaluate(s *state.Snapshot) Result {
	r := n.inner.Evaluate(s)
	if r.Met {
		if r.Reason != "" {
			return Fail("forbidden: %s (%s)", n.inner, r.Reason)
		}
		return Fail("forbidden: %s", n.inner)
	}
	return PassBecause("not %s", n.inner)
}

func (n not) String() string {
	return "not(" + n.inner.String() + ")"
}

func compact(conds []Condition) []Condition {
	out := make([]Condition, 0, len(conds))
	for _, c := range conds {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

func join(conds []Condition) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

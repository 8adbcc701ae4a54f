package scheduler

import (
	"fmt"
	"strings"

	"acolyte/internal/condition"
	"acolyte/internal/imperative"
	"acolyte/internal/logging"
	"acolyte/internal/state"
)

// ImpulseStatus explains one impulse of an active imperative.
type ImpulseStatus struct {
	Name     string
	Priority imperative.Priority
	Eligible condition.Result
	Running  bool
}

// ImperativeStatus is the operator's view of one active imperative.
type ImperativeStatus struct {
	Name      string
	Active    condition.Result
	Satisfied condition.Result
	Impulses  []ImpulseStatus
}

// Status evaluates every active imperative against s and explains why each
// impulse is or is not eligible.
func (sc *Scheduler) Status(s *state.Snapshot) []ImperativeStatus {
	sc.mu.Lock()
	imps := append([]imperative.Imperative(nil), sc.st.Imperatives...)
	running := make(map[*imperative.Impulse]bool, len(sc.st.Running))
	for i := range sc.st.Running {
		running[i] = true
	}
	sc.mu.Unlock()

	out := make([]ImperativeStatus, 0, len(imps))
	for _, imp := range imps {
		st := ImperativeStatus{Name: imp.Name()}
		st.Active, _ = safeResult(func() condition.Result { return imp.CanActivate(s) })
		st.Satisfied, _ = safeResult(func() condition.Result { return imp.IsSatisfied(s) })
		for _, i := range imp.Declared() {
			i := i
			res, _ := safeResult(func() condition.Result { return i.Eligible(s) })
			st.Impulses = append(st.Impulses, ImpulseStatus{
				Name:     i.Name,
				Priority: i.Priority,
				Eligible: res,
				Running:  running[i],
			})
		}
		out = append(out, st)
	}
	return out
}

// String renders the status as an indented trace.
func (st ImperativeStatus) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s active=%s satisfied=%s\n", st.Name, st.Active, st.Satisfied)
	for _, i := range st.Impulses {
		mark := " "
		switch {
		case i.Running:
			mark = "*"
		case i.Eligible.Met:
			mark = "+"
		}
		fmt.Fprintf(&b, "  %s %s [%s] %s\n", mark, i.Name, i.Priority, i.Eligible)
	}
	return b.String()
}

func safeResult(fn func() condition.Result) (res condition.Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.SchedulerError("condition panicked: %v", r)
			res, ok = condition.Fail("panic: %v", r), false
		}
	}()
	return fn(), true
}

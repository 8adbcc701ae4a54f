package definitions

import (
	"fmt"
	"strings"

	"acolyte/internal/condition"
	"acolyte/internal/imperative"
	"acolyte/internal/operation"
	"acolyte/internal/state"
)

// Goal is a resolved goal whose impulses still refer to operations by id.
type Goal struct {
	ID           string
	File         string
	Requirements condition.Condition
	Completion   condition.Condition
	Impulses     []Impulse
}

// Impulse is a resolved impulse.
type Impulse struct {
	Name         string
	Priority     imperative.Priority
	Operation    string
	Requirements condition.Condition
	Forbidders   condition.Condition
}

// Motivation is a resolved motivation.
type Motivation struct {
	ID         string
	File       string
	Primary    []string
	Supporting []string
}

// Library is the validated, resolved content of the definition files.
type Library struct {
	Files       []string
	Operations  map[string]*operation.Operation
	Goals       map[string]*Goal
	Motivations map[string]*Motivation

	OperationOrder  []string
	GoalOrder       []string
	MotivationOrder []string
	Sequence        []string
	Imperatives     []string
}

func newLibrary() *Library {
	return &Library{
		Operations:  make(map[string]*operation.Operation),
		Goals:       make(map[string]*Goal),
		Motivations: make(map[string]*Motivation),
	}
}

type resolver struct {
	lib   *Library
	probs []error
	file  string
}

func (r *resolver) fail(kind, id, format string, args ...interface{}) {
	r.probs = append(r.probs, &DefinitionError{File: r.file, Kind: kind, ID: id, Msg: fmt.Sprintf(format, args...)})
}

// resolve runs in dependency order: operations, goals, motivations, then the
// top-level lists, so references can be checked against what survived.
func resolve(docs []sourced) (*Library, []error) {
	r := &resolver{lib: newLibrary()}

	for _, d := range docs {
		r.file = d.path
		for _, n := range d.file.Operations {
			r.operation(n)
		}
	}
	for _, d := range docs {
		r.file = d.path
		for _, n := range d.file.Goals {
			r.goal(n)
		}
	}
	for _, d := range docs {
		r.file = d.path
		for _, n := range d.file.Motivations {
			r.motivation(n)
		}
	}
	for _, d := range docs {
		r.file = d.path
		for _, id := range d.file.Sequence {
			if _, ok := r.lib.Motivations[id]; !ok {
				r.fail("sequence", id, "unknown motivation")
				continue
			}
			r.lib.Sequence = append(r.lib.Sequence, id)
		}
		for _, id := range d.file.Imperatives {
			if _, ok := r.lib.Goals[id]; !ok {
				r.fail("imperative", id, "unknown goal")
				continue
			}
			r.lib.Imperatives = append(r.lib.Imperatives, id)
		}
	}
	return r.lib, r.probs
}

func (r *resolver) operation(n OperationNode) {
	const kind = "operation"
	if n.ID == "" {
		r.fail(kind, "", "missing id")
		return
	}
	if _, dup := r.lib.Operations[n.ID]; dup {
		r.fail(kind, n.ID, "duplicate id")
		return
	}
	if n.Situation == "" {
		r.fail(kind, n.ID, "missing situation")
		return
	}
	if len(n.Slots) == 0 && len(n.Recipes) == 0 {
		r.fail(kind, n.ID, "needs slots to start or recipes to resume")
		return
	}
	op := &operation.Operation{
		Name:      n.ID,
		Situation: n.Situation,
		Mansus:    n.Mansus,
		Recipes:   make(map[string][]operation.SlotFill, len(n.Recipes)),
	}
	var err error
	if op.Requirements, err = r.condition(n.Requires, "requires"); err != nil {
		r.fail(kind, n.ID, "%v", err)
		return
	}
	if op.StartSlots, err = slotFills(n.Slots); err != nil {
		r.fail(kind, n.ID, "%v", err)
		return
	}
	for recipe, nodes := range n.Recipes {
		fills, err := slotFills(nodes)
		if err != nil {
			r.fail(kind, n.ID, "recipe %s: %v", recipe, err)
			return
		}
		op.Recipes[recipe] = fills
	}
	r.lib.Operations[n.ID] = op
	r.lib.OperationOrder = append(r.lib.OperationOrder, n.ID)
}

func slotFills(nodes []SlotNode) ([]operation.SlotFill, error) {
	seen := make(map[string]bool, len(nodes))
	out := make([]operation.SlotFill, 0, len(nodes))
	for _, n := range nodes {
		if n.Slot == "" {
			return nil, fmt.Errorf("slot without name")
		}
		if seen[n.Slot] {
			return nil, fmt.Errorf("slot %s filled twice", n.Slot)
		}
		seen[n.Slot] = true
		out = append(out, operation.SlotFill{Slot: n.Slot, Chooser: chooser(n.Card), Optional: n.Optional})
	}
	return out, nil
}

func chooser(n ChooserNode) condition.CardChooser {
	return condition.CardChooser{
		Element:     n.Element,
		Aspects:     n.Aspects,
		Forbidden:   n.Forbidden,
		MinLifetime: n.MinLifetime,
	}
}

func (r *resolver) goal(n GoalNode) {
	const kind = "goal"
	if n.ID == "" {
		r.fail(kind, "", "missing id")
		return
	}
	if _, dup := r.lib.Goals[n.ID]; dup {
		r.fail(kind, n.ID, "duplicate id")
		return
	}
	g := &Goal{ID: n.ID, File: r.file}
	var err error
	if g.Requirements, err = r.condition(n.Requires, "requires"); err != nil {
		r.fail(kind, n.ID, "%v", err)
		return
	}
	if g.Completion, err = r.condition(n.Complete, "complete"); err != nil {
		r.fail(kind, n.ID, "%v", err)
		return
	}

	names := make(map[string]bool)
	for i, in := range n.Impulses {
		imp, ok := r.impulse(n.ID, i, in)
		if !ok {
			continue
		}
		if names[imp.Name] {
			r.fail("impulse", n.ID+"/"+imp.Name, "duplicate name")
			continue
		}
		names[imp.Name] = true
		g.Impulses = append(g.Impulses, imp)
	}
	if len(g.Impulses) == 0 {
		r.fail(kind, n.ID, "no valid impulses")
		return
	}
	r.lib.Goals[n.ID] = g
	r.lib.GoalOrder = append(r.lib.GoalOrder, n.ID)
}

func (r *resolver) impulse(goal string, idx int, n ImpulseNode) (Impulse, bool) {
	const kind = "impulse"
	name := n.ID
	if name == "" {
		name = n.Operation
	}
	label := fmt.Sprintf("%s/%d", goal, idx)
	if name != "" {
		label = goal + "/" + name
	}
	if n.Operation == "" {
		r.fail(kind, label, "missing operation")
		return Impulse{}, false
	}
	if _, ok := r.lib.Operations[n.Operation]; !ok {
		r.fail(kind, label, "unknown operation %q", n.Operation)
		return Impulse{}, false
	}
	pri, err := imperative.ParsePriority(n.Priority)
	if err != nil {
		r.fail(kind, label, "%v", err)
		return Impulse{}, false
	}
	imp := Impulse{Name: name, Priority: pri, Operation: n.Operation}
	if imp.Requirements, err = r.condition(n.Requires, "requires"); err != nil {
		r.fail(kind, label, "%v", err)
		return Impulse{}, false
	}
	if imp.Forbidders, err = r.condition(n.Forbids, "forbids"); err != nil {
		r.fail(kind, label, "%v", err)
		return Impulse{}, false
	}
	return imp, true
}

func (r *resolver) motivation(n MotivationNode) {
	const kind = "motivation"
	if n.ID == "" {
		r.fail(kind, "", "missing id")
		return
	}
	if _, dup := r.lib.Motivations[n.ID]; dup {
		r.fail(kind, n.ID, "duplicate id")
		return
	}
	if len(n.Primary) == 0 {
		r.fail(kind, n.ID, "no primary goals")
		return
	}
	for _, id := range append(append([]string(nil), n.Primary...), n.Supporting...) {
		if _, ok := r.lib.Goals[id]; !ok {
			r.fail(kind, n.ID, "unknown goal %q", id)
			return
		}
	}
	for _, id := range n.Primary {
		if r.lib.Goals[id].Completion == nil {
			r.fail(kind, n.ID, "primary goal %q has no completion condition", id)
			return
		}
	}
	r.lib.Motivations[n.ID] = &Motivation{ID: n.ID, File: r.file, Primary: n.Primary, Supporting: n.Supporting}
	r.lib.MotivationOrder = append(r.lib.MotivationOrder, n.ID)
}

// condition resolves an optional condition; nil stays nil.
func (r *resolver) condition(n *ConditionNode, path string) (condition.Condition, error) {
	if n == nil {
		return nil, nil
	}
	return resolveCondition(*n, path)
}

func resolveCondition(n ConditionNode, path string) (condition.Condition, error) {
	tags := n.Tags()
	switch len(tags) {
	case 0:
		return nil, fmt.Errorf("%s: empty condition", path)
	case 1:
	default:
		return nil, fmt.Errorf("%s: condition sets %s, want exactly one", path, strings.Join(tags, ", "))
	}

	switch tags[0] {
	case "all", "any":
		children := n.All
		if tags[0] == "any" {
			children = n.Any
		}
		conds := make([]condition.Condition, 0, len(children))
		for i, child := range children {
			c, err := resolveCondition(child, fmt.Sprintf("%s.%s[%d]", path, tags[0], i))
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		if tags[0] == "all" {
			return condition.All(conds...), nil
		}
		return condition.Any(conds...), nil
	case "not":
		inner, err := resolveCondition(*n.Not, path+".not")
		if err != nil {
			return nil, err
		}
		return condition.Not(inner), nil
	case "card":
		return condition.HasCard(chooser(*n.Card)), nil
	case "cards":
		choosers := make([]condition.CardChooser, len(n.Cards))
		for i, c := range n.Cards {
			choosers[i] = chooser(c)
		}
		return condition.HasCards(choosers...), nil
	case "aspects":
		return condition.AspectsAtLeast(n.Aspects), nil
	case "situation":
		if n.Situation.ID == "" {
			return nil, fmt.Errorf("%s.situation: missing id", path)
		}
		states := make([]state.SituationState, 0, len(n.Situation.State))
		for _, s := range n.Situation.State {
			st := state.SituationState(s)
			if !st.Valid() {
				return nil, fmt.Errorf("%s.situation: unknown state %q", path, s)
			}
			states = append(states, st)
		}
		return condition.SituationIn(n.Situation.ID, states...), nil
	case "expr":
		e, err := condition.NewExpr(n.Expr)
		if err != nil {
			return nil, fmt.Errorf("%s.expr: %w", path, err)
		}
		return e, nil
	case "always":
		return condition.Always, nil
	default:
		return condition.Never, nil
	}
}

package condition

import (
	"fmt"
	"sync"

	"acolyte/internal/state"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

var (
	exprEnv     *cel.Env
	exprEnvErr  error
	exprEnvOnce sync.Once
)

func environment() (*cel.Env, error) {
	exprEnvOnce.Do(func() {
		exprEnv, exprEnvErr = cel.NewEnv(
			cel.Variable("cards", cel.ListType(cel.DynType)),
			cel.Variable("situations", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("aspects", cel.MapType(cel.StringType, cel.IntType)),
			cel.Variable("mansus", cel.DynType),
			cel.Variable("running", cel.BoolType),
		)
	})
	return exprEnv, exprEnvErr
}

// Expr is a CEL expression evaluated against the snapshot. Variables:
//
//	cards       list of {id, element, aspects, lifetime}
//	situations  map of id -> {id, state, recipe, time_remaining, slots, output}
//	aspects     summed tabletop aspects
//	mansus      {situation, faces} or null
//	running     whether the game clock is running
type Expr struct {
	source string
	prg    cel.Program
}

// NewExpr compiles source. Compilation errors are definition errors and are
// reported at load time, never at evaluation time.
func NewExpr(source string) (*Expr, error) {
	env, err := environment()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", source, issues.Err())
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression %q yields %s, want bool", source, cel.FormatCELType(out))
	}
	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", source, err)
	}
	return &Expr{source: source, prg: prg}, nil
}

// MustExpr is NewExpr for tests and static tables.
func MustExpr(source string) *Expr {
	e, err := NewExpr(source)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Expr) String() string {
	return "expr(" + e.source + ")"
}

func (e *Expr) Evaluate(s *state.Snapshot) Result {
	out, _, err := e.prg.Eval(activation(s))
	if err != nil {
		return Fail("evaluation error: %v", err)
	}
	switch out {
	case types.True:
		return Pass()
	case types.False:
		return Fail("%s is false", e.source)
	}
	return Fail("%s yielded %v, want bool", e.source, out.Value())
}

func activation(s *state.Snapshot) map[string]any {
	cards := make([]any, len(s.Cards))
	for i, c := range s.Cards {
		cards[i] = cardValue(c)
	}

	situations := make(map[string]any, len(s.Situations))
	for _, sit := range s.Situations {
		slots := make(map[string]any, len(sit.Slots))
		for _, sl := range sit.Slots {
			slots[sl.ID] = sl.Card
		}
		output := make([]any, len(sit.Output))
		for i, c := range sit.Output {
			output[i] = cardValue(c)
		}
		situations[sit.ID] = map[string]any{
			"id":             sit.ID,
			"state":          string(sit.State),
			"recipe":         sit.Recipe,
			"time_remaining": int64(sit.TimeRemaining),
			"slots":          slots,
			"output":         output,
		}
	}

	totals := s.AspectTotals()
	aspects := make(map[string]int64, len(totals))
	for k, v := range totals {
		aspects[k] = int64(v)
	}

	var mansus any
	if s.Mansus != nil {
		faces := make([]any, len(s.Mansus.Faces))
		for i, f := range s.Mansus.Faces {
			faces[i] = f
		}
		mansus = map[string]any{"situation": s.Mansus.Situation, "faces": faces}
	}

	return map[string]any{
		"cards":      cards,
		"situations": situations,
		"aspects":    aspects,
		"mansus":     mansus,
		"running":    s.Running,
	}
}

func cardValue(c state.Card) map[string]any {
	aspects := make(map[string]int64, len(c.Aspects)+1)
	for k, v := range c.Aspects {
		aspects[k] = int64(v)
	}
	aspects[c.Element] = int64(c.Aspect(c.Element))
	return map[string]any{
		"id":       c.ID,
		"element":  c.Element,
		"aspects":  aspects,
		"lifetime": int64(c.Lifetime),
	}
}

// Package definitions loads the declarative goal and operation files.
//
// Files are decoded into a closed, tagged-union AST, validated in a separate
// pass that collects every problem, and resolved into plain data. Invalid
// definitions are reported and left out; the valid rest still loads.
package definitions

import (
	"fmt"
	"strings"
)

// File is the top-level document of one definitions file.
type File struct {
	Operations  []OperationNode  `yaml:"operations"`
	Goals       []GoalNode       `yaml:"goals"`
	Motivations []MotivationNode `yaml:"motivations"`
	Sequence    []string         `yaml:"sequence"`    // motivations, consumed in order
	Imperatives []string         `yaml:"imperatives"` // goals active from the start
}

// OperationNode describes how to run one situation.
type OperationNode struct {
	ID        string                `yaml:"id"`
	Situation string                `yaml:"situation"`
	Requires  *ConditionNode        `yaml:"requires"`
	Slots     []SlotNode            `yaml:"slots"`
	Recipes   map[string][]SlotNode `yaml:"recipes"`
	Mansus    []string              `yaml:"mansus"`
}

// SlotNode fills one slot.
type SlotNode struct {
	Slot     string      `yaml:"slot"`
	Card     ChooserNode `yaml:"card"`
	Optional bool        `yaml:"optional"`
}

// ChooserNode selects a card.
type ChooserNode struct {
	Element     string         `yaml:"element"`
	Aspects     map[string]int `yaml:"aspects"`
	Forbidden   []string       `yaml:"forbidden"`
	MinLifetime int            `yaml:"min_lifetime"`
}

// GoalNode is a goal and its impulses.
type GoalNode struct {
	ID       string         `yaml:"id"`
	Requires *ConditionNode `yaml:"requires"`
	Complete *ConditionNode `yaml:"complete"`
	Impulses []ImpulseNode  `yaml:"impulses"`
}

// ImpulseNode offers an operation at a priority.
type ImpulseNode struct {
	ID        string         `yaml:"id"`
	Priority  string         `yaml:"priority"`
	Operation string         `yaml:"operation"`
	Requires  *ConditionNode `yaml:"requires"`
	Forbids   *ConditionNode `yaml:"forbids"`
}

// MotivationNode groups goals.
type MotivationNode struct {
	ID         string   `yaml:"id"`
	Primary    []string `yaml:"primary"`
	Supporting []string `yaml:"supporting"`
}

// SituationNode tests a situation's state.
type SituationNode struct {
	ID    string   `yaml:"id"`
	State []string `yaml:"state"`
}

// ConditionNode is a tagged union: exactly one field is set.
type ConditionNode struct {
	All       []ConditionNode `yaml:"all"`
	Any       []ConditionNode `yaml:"any"`
	Not       *ConditionNode  `yaml:"not"`
	Card      *ChooserNode    `yaml:"card"`
	Cards     []ChooserNode   `yaml:"cards"`
	Aspects   map[string]int  `yaml:"aspects"`
	Situation *SituationNode  `yaml:"situation"`
	Expr      string          `yaml:"expr"`
	Always    bool            `yaml:"always"`
	Never     bool            `yaml:"never"`
}

// Tags lists the variants set on the node.
func (c ConditionNode) Tags() []string {
	var tags []string
	if c.All != nil {
		tags = append(tags, "all")
	}
	if c.Any != nil {
		tags = append(tags, "any")
	}
	if c.Not != nil {
		tags = append(tags, "not")
	}
	if c.Card != nil {
		tags = append(tags, "card")
	}
	if c.Cards != nil {
		tags = append(tags, "cards")
	}
	if c.Aspects != nil {
		tags = append(tags, "aspects")
	}
	if c.Situation != nil {
		tags = append(tags, "situation")
	}
	if c.Expr != "" {
		tags = append(tags, "expr")
	}
	if c.Always {
		tags = append(tags, "always")
	}
	if c.Never {
		tags = append(tags, "never")
	}
	return tags
}

// DefinitionError is one problem found in a definitions file.
type DefinitionError struct {
	File string
	Kind string // operation, goal, impulse, motivation, sequence, imperative, file
	ID   string
	Msg  string
}

func (e *DefinitionError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File + ": ")
	}
	if e.ID != "" {
		fmt.Fprintf(&b, "%s %q: ", e.Kind, e.ID)
	} else if e.Kind != "" {
		b.WriteString(e.Kind + ": ")
	}
	b.WriteString(e.Msg)
	return b.String()
}

func (e *DefinitionError) Unwrap() error {
	return ErrInvalidDefinition
}

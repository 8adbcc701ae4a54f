package reaction

import (
	"fmt"
	"strings"
)

// Compound runs every child at once. It completes when all children complete
// and aborts every remaining child as soon as one aborts.
type Compound struct {
	*Base
	children []Reaction
}

// NewCompound fans out over children.
func NewCompound(name string, children ...Reaction) *Compound {
	return &Compound{Base: NewBase(name), children: children}
}

// Children returns the child reactions.
func (c *Compound) Children() []Reaction {
	return c.children
}

func (c *Compound) Start(t Tick) error {
	if err := c.Begin(); err != nil {
		return err
	}
	for _, child := range c.children {
		if c.Ended() {
			// A child ended the compound synchronously; the rest were aborted.
			break
		}
		if err := child.Start(t); err != nil {
			c.fail(fmt.Errorf("%s: child %s failed to start: %w", c.Name(), child.Name(), err))
			return err
		}
		c.settle()
	}
	c.settle()
	return nil
}

func (c *Compound) Poll(t Tick) Status {
	if c.Status() != Running {
		return c.Status()
	}
	for _, child := range c.children {
		if child.Status() == Running {
			child.Poll(t)
		}
	}
	c.settle()
	return c.Status()
}

// settle inspects the children and ends the compound when it must.
func (c *Compound) settle() {
	if c.Ended() {
		return
	}
	remaining := 0
	for _, child := range c.children {
		switch child.Status() {
		case Aborted:
			c.fail(fmt.Errorf("%s: child %s aborted: %w", c.Name(), child.Name(), childErr(child)))
			return
		case Completed:
		default:
			remaining++
		}
	}
	if remaining == 0 {
		c.End(nil)
	}
}

func (c *Compound) fail(err error) {
	for _, child := range c.children {
		child.Abort()
	}
	c.End(err)
}

func (c *Compound) Abort() {
	if c.Ended() {
		return
	}
	c.fail(ErrAborted)
}

func (c *Compound) String() string {
	names := make([]string, len(c.children))
	for i, ch := range c.children {
		names[i] = ch.Name()
	}
	return fmt.Sprintf("compound(%s)", strings.Join(names, ", "))
}

func childErr(r Reaction) error {
	if err := r.Err(); err != nil {
		return err
	}
	return ErrAborted
}

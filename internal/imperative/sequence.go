package imperative

// Sequence is an ordered queue of motivations consumed one at a time.
type Sequence struct {
	items []*Motivation
	next  int
}

// NewSequence queues motivations in order.
func NewSequence(items ...*Motivation) *Sequence {
	return &Sequence{items: items}
}

// Advance returns the next motivation, or nil when the sequence is exhausted.
func (q *Sequence) Advance() *Motivation {
	if q.next >= len(q.items) {
		return nil
	}
	m := q.items[q.next]
	q.next++
	return m
}

// Current returns the most recently advanced motivation.
func (q *Sequence) Current() *Motivation {
	if q.next == 0 {
		return nil
	}
	return q.items[q.next-1]
}

// Remaining returns how many motivations have not been advanced to.
func (q *Sequence) Remaining() int {
	return len(q.items) - q.next
}

// Done reports whether every motivation has been handed out.
func (q *Sequence) Done() bool {
	return q.Remaining() == 0
}

// Rewind restarts the sequence from the first motivation.
func (q *Sequence) Rewind() {
	q.next = 0
}

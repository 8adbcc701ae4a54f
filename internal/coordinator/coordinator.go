// Package coordinator serializes every interaction with the game world.
//
// The Coordinator is a strict FIFO queue with at most one item executing at a
// time, regardless of which reaction enqueued it. Items start only on a beat
// boundary: after an item finishes, the next one waits for a fresh Tick so the
// beat driver can observe the world before the next action begins.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"acolyte/internal/logging"

	"github.com/google/uuid"
)

// =============================================================================
// ACTION COORDINATOR
// =============================================================================

// Work is one deferred unit of interaction with the world. It must honor ctx.
type Work func(ctx context.Context) error

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrStopped completes items submitted to, or still queued in, a stopped coordinator.
	ErrStopped = errors.New("coordinator is stopped")

	// ErrAborted completes items cancelled by AbortAll.
	ErrAborted = errors.New("coordinator item aborted")

	// ErrCancelled completes items cancelled by their owner.
	ErrCancelled = errors.New("coordinator item cancelled")

	// ErrItemTimeout completes items whose execution exceeded the item timeout.
	ErrItemTimeout = errors.New("coordinator item timed out")

	// ErrPanic wraps a panic recovered from an item.
	ErrPanic = errors.New("coordinator item panicked")
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures the coordinator.
type Config struct {
	ItemTimeout  time.Duration // bound on a single item's execution
	DrainTimeout time.Duration // bound on Stop waiting for the in-flight item
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ItemTimeout:  10 * time.Second,
		DrainTimeout: 5 * time.Second,
	}
}

// -----------------------------------------------------------------------------
// Pending
// -----------------------------------------------------------------------------

// Pending is the awaitable result of a coordinated item.
type Pending struct {
	ID          string
	Label       string
	SubmittedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	work   Work

	once    sync.Once
	done    chan struct{}
	err     error
	started atomic.Bool
}

func newPending(ctx context.Context, label string, work Work) *Pending {
	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithCancel(ctx)
	return &Pending{
		ID:          uuid.NewString(),
		Label:       label,
		SubmittedAt: time.Now(),
		ctx:         cctx,
		cancel:      cancel,
		work:        work,
		done:        make(chan struct{}),
	}
}

// Done is closed once the item has an outcome.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Ready reports whether the item has an outcome. Never blocks.
func (p *Pending) Ready() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err returns the item's outcome. It is nil until Ready and for successful items.
func (p *Pending) Err() error {
	if !p.Ready() {
		return nil
	}
	return p.err
}

// Started reports whether the item began executing.
func (p *Pending) Started() bool {
	return p.started.Load()
}

// Cancel withdraws a queued item or cancels the context of an executing one.
// The item completes with ErrCancelled unless it already had an outcome.
func (p *Pending) Cancel() {
	p.complete(ErrCancelled)
}

// Wait blocks until the item has an outcome or ctx ends.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// complete records err as the outcome. Only the first call has effect.
func (p *Pending) complete(err error) bool {
	first := false
	p.once.Do(func() {
		first = true
		p.err = err
		close(p.done)
	})
	p.cancel()
	return first
}

// -----------------------------------------------------------------------------
// Coordinator
// -----------------------------------------------------------------------------

// Metrics is a point-in-time view of coordinator activity.
type Metrics struct {
	Depth     int    // items waiting
	InFlight  string // label of the executing item, empty when none
	Queued    int64
	Succeeded int64
	Failed    int64
	Cancelled int64
	Panics    int64
}

// Coordinator is the single-flight FIFO executor.
type Coordinator struct {
	mu sync.Mutex

	queue   []*Pending
	current *Pending

	config Config

	isRunning bool
	stopCh    chan struct{}
	beats     chan struct{}
	workerWg  sync.WaitGroup

	// Beats delivered to and fully handled by the worker, for Settle.
	beatsSent    uint64
	beatsHandled uint64

	// Metrics (atomic for lock-free reads)
	totalQueued    int64
	totalSucceeded int64
	totalFailed    int64
	totalCancelled int64
	totalPanics    int64
}

// New creates a coordinator. Call Start before submitting work.
func New(cfg Config) *Coordinator {
	defaults := DefaultConfig()
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = defaults.ItemTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaults.DrainTimeout
	}
	return &Coordinator{
		config: cfg,
		stopCh: make(chan struct{}),
		beats:  make(chan struct{}, 1),
	}
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config {
	return c.config
}

// Start launches the worker.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isRunning {
		return nil
	}
	c.isRunning = true
	c.stopCh = make(chan struct{})

	c.workerWg.Add(1)
	go c.worker()

	logging.Coordinator("Coordinator: started, item_timeout=%v", c.config.ItemTimeout)
	return nil
}

// Stop cancels the in-flight item, waits for the worker and fails everything
// still queued with ErrStopped.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	close(c.stopCh)
	current := c.current
	c.mu.Unlock()

	if current != nil && current.complete(ErrStopped) {
		atomic.AddInt64(&c.totalCancelled, 1)
	}

	done := make(chan struct{})
	go func() {
		c.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Coordinator("Coordinator: stopped gracefully")
	case <-time.After(c.config.DrainTimeout):
		logging.CoordinatorWarn("Coordinator: drain timeout exceeded, in-flight item %q abandoned", labelOf(current))
	}

	c.mu.Lock()
	remaining := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, p := range remaining {
		if p.complete(ErrStopped) {
			atomic.AddInt64(&c.totalCancelled, 1)
		}
	}
	return nil
}

// Running reports whether the worker is active.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isRunning
}

// Coordinate enqueues work and returns immediately. It never fails: on a
// stopped coordinator the returned Pending is already complete with ErrStopped.
func (c *Coordinator) Coordinate(ctx context.Context, label string, work Work) *Pending {
	p := newPending(ctx, label, work)

	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		p.complete(ErrStopped)
		return p
	}
	c.queue = append(c.queue, p)
	depth := len(c.queue)
	c.mu.Unlock()

	atomic.AddInt64(&c.totalQueued, 1)
	logging.CoordinatorDebug("Coordinator: queued %s (%s), depth=%d", p.Label, p.ID, depth)
	return p
}

// Tick signals a beat boundary. The worker starts at most one item per Tick.
func (c *Coordinator) Tick() {
	select {
	case c.beats <- struct{}{}:
		atomic.AddUint64(&c.beatsSent, 1)
	default:
	}
}

// Settle blocks until the worker has finished with every delivered beat,
// including the item a beat released. Lockstep drivers call it after Tick so
// the next snapshot already reflects the action.
func (c *Coordinator) Settle(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if atomic.LoadUint64(&c.beatsHandled) >= atomic.LoadUint64(&c.beatsSent) || !c.Running() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// AbortAll cancels the in-flight item and every queued item without running them.
func (c *Coordinator) AbortAll() int {
	c.mu.Lock()
	queued := c.queue
	c.queue = nil
	current := c.current
	c.mu.Unlock()

	n := 0
	if current != nil && current.complete(ErrAborted) {
		n++
	}
	for _, p := range queued {
		if p.complete(ErrAborted) {
			n++
		}
	}
	atomic.AddInt64(&c.totalCancelled, int64(n))
	if n > 0 {
		logging.CoordinatorWarn("Coordinator: aborted %d items", n)
	}
	return n
}

// Idle reports whether nothing is queued or executing.
func (c *Coordinator) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == nil && len(c.queue) == 0
}

// GetMetrics returns current metrics.
func (c *Coordinator) GetMetrics() Metrics {
	c.mu.Lock()
	m := Metrics{
		Depth:    len(c.queue),
		InFlight: labelOf(c.current),
	}
	c.mu.Unlock()

	m.Queued = atomic.LoadInt64(&c.totalQueued)
	m.Succeeded = atomic.LoadInt64(&c.totalSucceeded)
	m.Failed = atomic.LoadInt64(&c.totalFailed)
	m.Cancelled = atomic.LoadInt64(&c.totalCancelled)
	m.Panics = atomic.LoadInt64(&c.totalPanics)
	return m
}

// -----------------------------------------------------------------------------
// Worker Logic
// -----------------------------------------------------------------------------

func (c *Coordinator) worker() {
	defer c.workerWg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		case <-c.beats:
		}

		p := c.next()
		if p == nil {
			atomic.AddUint64(&c.beatsHandled, 1)
			continue
		}
		c.execute(p)

		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()

		// The next item waits for a beat that arrives after this one finished.
		select {
		case <-c.beats:
			atomic.AddUint64(&c.beatsHandled, 1)
		default:
		}
		atomic.AddUint64(&c.beatsHandled, 1)
	}
}

// next pops the first item that has not already been cancelled.
func (c *Coordinator) next() *Pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.queue) > 0 {
		p := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		if p.Ready() {
			continue
		}
		c.current = p
		return p
	}
	return nil
}

func (c *Coordinator) execute(p *Pending) {
	p.started.Store(true)
	ctx, cancel := context.WithTimeout(p.ctx, c.config.ItemTimeout)
	defer cancel()

	start := time.Now()
	err := c.invoke(ctx, p)

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && p.ctx.Err() == nil {
		err = fmt.Errorf("%s: %w after %v", p.Label, ErrItemTimeout, c.config.ItemTimeout)
	}

	if !p.complete(err) {
		// Outcome already decided by Cancel or AbortAll.
		logging.CoordinatorDebug("Coordinator: %s finished after cancellation", p.Label)
		return
	}

	if err != nil {
		atomic.AddInt64(&c.totalFailed, 1)
		logging.CoordinatorWarn("Coordinator: %s failed after %v: %v", p.Label, time.Since(start), err)
		return
	}
	atomic.AddInt64(&c.totalSucceeded, 1)
	logging.CoordinatorDebug("Coordinator: %s done in %v", p.Label, time.Since(start))
}

// invoke runs the work, converting a panic into an error on this item only.
func (c *Coordinator) invoke(ctx context.Context, p *Pending) (err error) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&c.totalPanics, 1)
			err = fmt.Errorf("%s: %w: %v", p.Label, ErrPanic, r)
		}
	}()
	if p.work == nil {
		return nil
	}
	return p.work(ctx)
}

func labelOf(p *Pending) string {
	if p == nil {
		return ""
	}
	return p.Label
}

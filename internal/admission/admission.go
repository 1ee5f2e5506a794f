// Package admission implements the per-model admission controller: a
// bounded semaphore plus a bounded FIFO wait queue per model name, so one
// overloaded model cannot starve capacity meant for others. Grounded on the
// teacher's per-key mutex-map locking idiom (a map of per-key state behind
// a creation lock, with per-key operations taking only that key's lock).
package admission

import (
	"context"
	"errors"
	"sync"
	"time"
)

// RejectReason distinguishes why Acquire failed to admit a request.
type RejectReason string

const (
	RejectQueueFull RejectReason = "queue_full"
	RejectCanceled  RejectReason = "canceled"
)

// RejectionError is returned by Acquire when a request is not admitted.
type RejectionError struct {
	Reason RejectReason
}

func (e *RejectionError) Error() string { return "admission: " + string(e.Reason) }

// Is reports whether target matches this rejection's reason, so callers
// can use errors.Is(err, admission.ErrQueueFull) style checks.
func (e *RejectionError) Is(target error) bool {
	var re *RejectionError
	if errors.As(target, &re) {
		return re.Reason == e.Reason
	}
	return false
}

// ErrQueueFull and ErrCanceled are sentinel rejections for errors.Is checks.
var (
	ErrQueueFull = &RejectionError{Reason: RejectQueueFull}
	ErrCanceled  = &RejectionError{Reason: RejectCanceled}
)

// Ticket is returned by a successful Acquire and must be passed to Release
// exactly once.
type Ticket struct {
	model     string
	acquired  time.Time
}

// Limits configures one model's queue. QueueLimit of 0 means no waiting is
// permitted — the fast path or immediate rejection.
type Limits struct {
	ParallelLimit int
	QueueLimit    int
}

// Snapshot is a point-in-time view of one model's queue, for the stats
// endpoint and Prometheus exposition.
type Snapshot struct {
	Model           string
	ParallelLimit   int
	QueueLimit      int
	InFlight        int
	QueueDepth      int
	TotalProcessed  uint64
	TotalRejected   uint64
	AvgWaitMs       float64
	AvgProcessMs    float64
}

// Controller owns one ModelQueue per model name, created lazily on first
// admission for that model.
type Controller struct {
	mu      sync.Mutex // guards the queues map only, per model state has its own lock
	queues  map[string]*modelQueue
	limits  func(model string) Limits
}

// New builds a Controller. limitsFor resolves the effective Limits for a
// model name (default plus any per-model override), evaluated once per
// model at queue-creation time.
func New(limitsFor func(model string) Limits) *Controller {
	return &Controller{
		queues: make(map[string]*modelQueue),
		limits: limitsFor,
	}
}

func (c *Controller) queueFor(model string) *modelQueue {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[model]
	if !ok {
		limits := c.limits(model)
		q = newModelQueue(model, limits)
		c.queues[model] = q
	}
	return q
}

// Acquire admits a request for model, blocking on the model's wait queue if
// the model is already at parallel_limit. Returns a Ticket on success, or a
// *RejectionError (ErrQueueFull / ErrCanceled) on failure.
func (c *Controller) Acquire(ctx context.Context, model string) (*Ticket, error) {
	return c.queueFor(model).acquire(ctx)
}

// Release returns a ticket's slot to its model's queue, waking the head
// waiter if any. Safe to call at most once per ticket; a second call
// double-releases capacity and is a caller bug, not guarded against here
// (mirrors the teacher's "release is the caller's responsibility" idiom).
func (c *Controller) Release(t *Ticket) {
	c.queueFor(t.model).release(t)
}

// Snapshot returns the current state of every model queue that has been
// created so far.
func (c *Controller) Snapshot() []Snapshot {
	c.mu.Lock()
	queues := make([]*modelQueue, 0, len(c.queues))
	for _, q := range c.queues {
		queues = append(queues, q)
	}
	c.mu.Unlock()

	out := make([]Snapshot, 0, len(queues))
	for _, q := range queues {
		out = append(out, q.snapshot())
	}
	return out
}

// Reset drops a model's queue entirely, including any counters. In-flight
// tickets for that model become orphaned (their Release call recreates an
// empty queue and then immediately releases on it, which is harmless). Used
// by the admin queue-reset endpoint.
func (c *Controller) Reset(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.queues, model)
}

// UpdateLimits changes an existing queue's limits in place (so in-flight
// waiters are not disturbed), or does nothing if the model has no queue yet
// — the next Acquire will create one using the current limitsFor function.
func (c *Controller) UpdateLimits(model string, limits Limits) bool {
	c.mu.Lock()
	q, ok := c.queues[model]
	c.mu.Unlock()
	if !ok {
		return false
	}
	q.updateLimits(limits)
	return true
}

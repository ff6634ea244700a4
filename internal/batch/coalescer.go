// internal/batch/coalescer.go

// Package batch provides the write-coalescing processor: per-entity
// mutation requests are buffered over a time/size window and flushed as a
// single bulk upsert, trading durability-on-return for fewer storage
// round-trips.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/reachpoint/reachpoint/internal/types"
)

/*
 * State machine per coalescer instance: IDLE (no timer armed) and ARMED
 * (one timer counting down to the next flush).
 *
 *   IDLE  --Enqueue--> ARMED        first enqueue arms a FlushInterval timer
 *   ARMED --Enqueue--> ARMED        appends only; never resets the timer
 *   ARMED --fire--> flush --queue non-empty--> ARMED   immediate re-arm
 *   ARMED --fire--> flush --queue empty-----> IDLE
 *   any   --Stop--> drain remaining batches, reject further enqueues
 *
 * The interval is measured from the first enqueue of a batch window, not
 * the last. Flushes are single-flight: only the timer goroutine drains the
 * queue, and the next timer is armed after the current flush finishes, so
 * two flushes for one instance never overlap. Enqueues during an
 * outstanding flush grow the queue for the next cycle.
 *
 * Queue order is FIFO with no identity-based dedup: two enqueues for the
 * same id both apply, in order, within a flush (last wins for overlapping
 * fields). No ordering is guaranteed across different coalescer instances.
 *
 * Flush failures are invisible to Enqueue callers. A failed bulk call is
 * retried with exponential backoff a bounded number of times, then the
 * whole batch is handed to the dead-letter hook (or dropped with a log
 * line when no hook is set).
 */

// Op is one pending write: an entity id plus the patch to upsert.
type Op struct {
	ID    string
	Patch types.Patch
}

// Sink receives flushed batches. Implementations must be safe for
// concurrent bulk calls; the store's collections qualify.
type Sink interface {
	BulkUpsert(ctx context.Context, ops []Op) error
}

// Config tunes a Coalescer. Zero values fall back to defaults.
type Config struct {
	// BatchSize caps how many ops one flush submits; excess stays queued
	// for the immediately re-armed next cycle. Default 100.
	BatchSize int

	// FlushInterval is the coalescing window, measured from the first
	// enqueue after idle. Default 5s.
	FlushInterval time.Duration

	// QueueLimit bounds the in-memory queue; Enqueue returns
	// types.ErrQueueFull at capacity. Default 10000.
	QueueLimit int

	// FlushTimeout bounds one bulk call including retries, so a hung sink
	// cannot stall the timer chain. Default 30s.
	FlushTimeout time.Duration

	// MaxRetries is how many times a failed bulk call is retried before
	// the batch dead-letters. Default 3.
	MaxRetries uint64

	// RetryInterval seeds the exponential backoff. Default 500ms.
	RetryInterval time.Duration

	// OnDeadLetter receives batches that exhausted their retries.
	// Optional; without it dead batches are logged and dropped.
	OnDeadLetter func(ops []Op, err error)

	// Clock defaults to the real clock; tests inject a fake.
	Clock clockwork.Clock

	Logger zerolog.Logger
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.QueueLimit <= 0 {
		c.QueueLimit = 10000
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 500 * time.Millisecond
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
}

// Coalescer buffers writes for one target collection. Construct once per
// entity type, inject where needed, Stop during orderly shutdown.
type Coalescer struct {
	sink Sink
	cfg  Config
	log  zerolog.Logger

	mu      sync.Mutex
	queue   []Op
	armed   bool
	stopped bool
	timer   clockwork.Timer

	// inflight tracks the armed timer callback so Stop can wait for an
	// outstanding flush before draining; preserves FIFO across shutdown.
	inflight sync.WaitGroup
}

// New creates a coalescer writing to sink under cfg.
func New(sink Sink, cfg Config) *Coalescer {
	cfg.applyDefaults()
	return &Coalescer{
		sink: sink,
		cfg:  cfg,
		log:  cfg.Logger.With().Str("component", "coalescer").Logger(),
	}
}

// Enqueue appends one pending write. Non-blocking: it never waits on the
// sink, and flush outcomes are never reported back to this caller.
// Fails only when the bounded queue is at capacity (types.ErrQueueFull)
// or after Stop (types.ErrStopped).
func (c *Coalescer) Enqueue(id string, patch types.Patch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return types.ErrStopped
	}
	if len(c.queue) >= c.cfg.QueueLimit {
		return types.ErrQueueFull
	}

	c.queue = append(c.queue, Op{ID: id, Patch: patch})
	if !c.armed {
		c.arm()
	}
	return nil
}

// Len reports the current queue depth.
func (c *Coalescer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// arm starts the flush timer. Caller holds mu.
func (c *Coalescer) arm() {
	c.armed = true
	c.inflight.Add(1)
	c.timer = c.cfg.Clock.AfterFunc(c.cfg.FlushInterval, c.flushDue)
}

// flushDue runs in the timer goroutine: drain one batch, deliver it, then
// re-arm if work remains or fall back to idle.
func (c *Coalescer) flushDue() {
	defer c.inflight.Done()

	c.mu.Lock()
	ops := c.dequeueBatch()
	c.mu.Unlock()

	if len(ops) > 0 {
		c.deliver(context.Background(), ops)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) > 0 && !c.stopped {
		c.arm()
		return
	}
	c.armed = false
	c.timer = nil
}

// dequeueBatch removes up to BatchSize ops from the head. Caller holds mu.
func (c *Coalescer) dequeueBatch() []Op {
	n := min(len(c.queue), c.cfg.BatchSize)
	if n == 0 {
		return nil
	}
	ops := make([]Op, n)
	copy(ops, c.queue[:n])
	c.queue = append(c.queue[:0:0], c.queue[n:]...)
	return ops
}

// deliver submits one batch as a single bulk call, retrying with
// exponential backoff under the flush timeout before dead-lettering.
func (c *Coalescer) deliver(ctx context.Context, ops []Op) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FlushTimeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)

	err := backoff.Retry(func() error {
		return c.sink.BulkUpsert(ctx, ops)
	}, policy)
	if err == nil {
		c.log.Debug().Int("ops", len(ops)).Msg("batch flushed")
		return
	}

	c.log.Error().Err(err).Int("ops", len(ops)).Msg("batch flush failed, dead-lettering")
	if c.cfg.OnDeadLetter != nil {
		c.cfg.OnDeadLetter(ops, err)
	}
}

// Stop rejects further enqueues and drains the queue in batch-size chunks.
// Returns early with the context error if ctx expires mid-drain; undrained
// ops are lost, matching the documented shutdown contract.
func (c *Coalescer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	t := c.timer
	c.timer = nil
	c.mu.Unlock()

	// A timer that had not fired yet will never run its callback.
	if t != nil && t.Stop() {
		c.inflight.Done()
	}
	c.inflight.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.mu.Lock()
		ops := c.dequeueBatch()
		c.mu.Unlock()
		if len(ops) == 0 {
			return nil
		}
		c.deliver(ctx, ops)
	}
}

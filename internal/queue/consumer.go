package queue

import (
	"context"
	"log"
	"time"
)

// Handler processes one job. A non-nil error triggers the retry policy.
type Handler func(ctx context.Context, job *Job) error

// jobSource is the slice of Queue the consumer drives. Tests substitute a
// recording fake.
type jobSource interface {
	Name() string
	Dequeue(ctx context.Context, block time.Duration) (*Job, error)
	push(ctx context.Context, job Job, delay time.Duration) error
	bury(ctx context.Context, job Job, cause error) error
}

// Consumer runs a single-goroutine processing loop over one queue.
// Concurrency is pinned to 1: the next job is only dequeued after the
// current handler call returns, so jobs on the same queue never overlap.
type Consumer struct {
	queue   jobSource
	handler Handler

	// BackoffBase is the delay before the first retry; each further retry
	// doubles it, capped at BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// DequeueBlock bounds each blocking pop so ctx cancellation is noticed.
	DequeueBlock time.Duration
}

// NewConsumer builds a consumer with the default backoff policy.
func NewConsumer(q *Queue, handler Handler) *Consumer {
	return &Consumer{
		queue:        q,
		handler:      handler,
		BackoffBase:  30 * time.Second,
		BackoffMax:   15 * time.Minute,
		DequeueBlock: 5 * time.Second,
	}
}

// Run processes jobs until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	log.Printf("[queue:%s] consumer started (concurrency=1)", c.queue.Name())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := c.queue.Dequeue(ctx, c.DequeueBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[queue:%s] dequeue error: %v", c.queue.Name(), err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		c.process(ctx, job)
	}
}

func (c *Consumer) process(ctx context.Context, job *Job) {
	err := c.handler(ctx, job)
	if err == nil {
		return
	}

	// Dequeue already deleted the payload key, so the requeue/bury write is
	// the only copy of this job. It must go through even when the handler
	// failed because the run context was cancelled at shutdown.
	wctx := context.WithoutCancel(ctx)

	job.Attempt++
	if job.Attempt >= job.MaxAttempts {
		log.Printf("[queue:%s] job %s (%s) exhausted after %d attempts: %v",
			c.queue.Name(), job.ID, job.Name, job.Attempt, err)
		if buryErr := c.queue.bury(wctx, *job, err); buryErr != nil {
			log.Printf("[queue:%s] failed to bury job %s: %v", c.queue.Name(), job.ID, buryErr)
		}
		return
	}

	delay := RetryDelay(c.BackoffBase, c.BackoffMax, job.Attempt)
	log.Printf("[queue:%s] job %s (%s) failed (attempt %d/%d), retrying in %s: %v",
		c.queue.Name(), job.ID, job.Name, job.Attempt, job.MaxAttempts, delay, err)
	if pushErr := c.queue.push(wctx, *job, delay); pushErr != nil {
		log.Printf("[queue:%s] failed to requeue job %s: %v", c.queue.Name(), job.ID, pushErr)
	}
}

// RetryDelay returns the exponential backoff delay for the given attempt
// (attempt 1 = first retry).
func RetryDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 30 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

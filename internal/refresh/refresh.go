// Package refresh debounces and executes the opportunity_map materialized
// view rebuild after sourcing writes.
package refresh

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/db"
	"github.com/greg-easycraft/linkinvests-sourcing/internal/queue"
)

// JobName is the queue job name carried by refresh jobs.
const JobName = "refresh"

// jobID is fixed so repeated Schedule calls within the delay window collapse
// into a single pending job.
const jobID = "opportunity-map-refresh"

const defaultDelay = 5 * time.Minute

// DelayedQueue is the slice of the queue API the trigger needs.
type DelayedQueue interface {
	RemoveDelayed(ctx context.Context, id string) (bool, error)
	Enqueue(ctx context.Context, name string, payload any, opts ...queue.EnqueueOption) (string, error)
}

// Trigger schedules a debounced refresh: each call cancels any still-delayed
// refresh job and re-enqueues it delay in the future, so a burst of scrapes
// produces one rebuild after the burst settles.
type Trigger struct {
	q     DelayedQueue
	delay time.Duration
}

func NewTrigger(q DelayedQueue, delay time.Duration) *Trigger {
	if delay <= 0 {
		delay = defaultDelay
	}
	return &Trigger{q: q, delay: delay}
}

// Schedule pushes the refresh job out to now+delay. A job that already left
// the delayed set (promoted or running) is not touched; the new job simply
// queues another rebuild behind it.
func (t *Trigger) Schedule(ctx context.Context) error {
	removed, err := t.q.RemoveDelayed(ctx, jobID)
	if err != nil {
		return fmt.Errorf("debouncing pending refresh: %w", err)
	}
	if removed {
		log.Printf("[refresh] pending refresh pushed back by %s", t.delay)
	}

	if _, err := t.q.Enqueue(ctx, JobName, nil, queue.WithID(jobID), queue.WithDelay(t.delay)); err != nil {
		return fmt.Errorf("scheduling refresh: %w", err)
	}
	return nil
}

// Worker executes refresh jobs against the database.
type Worker struct {
	db db.DBTX
}

func NewWorker(database db.DBTX) *Worker {
	return &Worker{db: database}
}

// Handle implements queue.Handler.
func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	start := time.Now()
	if err := db.RefreshOpportunityMap(ctx, w.db); err != nil {
		return err
	}
	log.Printf("[refresh] opportunity_map rebuilt in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/queue"
)

// fakeQueue keeps delayed jobs by id, like the Redis ZSET does.
type fakeQueue struct {
	delayed     map[string]time.Duration
	enqueues    int
	removeCalls int
	enqueueErr  error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{delayed: make(map[string]time.Duration)}
}

func (f *fakeQueue) RemoveDelayed(ctx context.Context, id string) (bool, error) {
	f.removeCalls++
	if _, ok := f.delayed[id]; !ok {
		return false, nil
	}
	delete(f.delayed, id)
	return true, nil
}

func (f *fakeQueue) Enqueue(ctx context.Context, name string, payload any, opts ...queue.EnqueueOption) (string, error) {
	if f.enqueueErr != nil {
		return "", f.enqueueErr
	}
	f.enqueues++

	var o queue.EnqueueOptions
	for _, opt := range opts {
		opt(&o)
	}
	f.delayed[o.ID] = o.Delay
	return o.ID, nil
}

func TestSchedule_DebouncesToSinglePendingJob(t *testing.T) {
	q := newFakeQueue()
	trigger := NewTrigger(q, 5*time.Minute)

	for i := 0; i < 3; i++ {
		if err := trigger.Schedule(context.Background()); err != nil {
			t.Fatalf("Schedule %d failed: %v", i+1, err)
		}
	}

	if len(q.delayed) != 1 {
		t.Fatalf("expected exactly 1 pending refresh after 3 schedules, got %d", len(q.delayed))
	}
	if delay, ok := q.delayed["opportunity-map-refresh"]; !ok {
		t.Errorf("pending job does not use the fixed id: %v", q.delayed)
	} else if delay != 5*time.Minute {
		t.Errorf("pending job delay = %s, want 5m", delay)
	}
	if q.enqueues != 3 {
		t.Errorf("every Schedule call should enqueue, got %d", q.enqueues)
	}
}

func TestSchedule_DefaultsDelay(t *testing.T) {
	q := newFakeQueue()
	trigger := NewTrigger(q, 0)

	if err := trigger.Schedule(context.Background()); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if delay := q.delayed["opportunity-map-refresh"]; delay != 5*time.Minute {
		t.Errorf("default delay = %s, want 5m", delay)
	}
}

func TestSchedule_EnqueueErrorPropagates(t *testing.T) {
	q := newFakeQueue()
	q.enqueueErr = errors.New("redis down")
	trigger := NewTrigger(q, time.Minute)

	if err := trigger.Schedule(context.Background()); !errors.Is(err, q.enqueueErr) {
		t.Fatalf("expected wrapped enqueue error, got %v", err)
	}
}

// Package queue implements a Redis-backed job queue with delayed jobs,
// fixed job ids (for debouncing) and a single-consumer execution loop.
//
// Layout per queue name:
//
//	queue:<name>  LIST of ready job ids (LPush producer, BRPop consumer)
//	delay:<name>  ZSET of delayed job ids scored by unix run-at
//	dead:<name>   LIST of exhausted job payloads
//	job:<name>:<id>  JSON payload for a pending job
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultMaxAttempts = 3

// Job is one unit of work. The queue owns identity and lifecycle; handlers
// only inspect Name/Payload and report an error to trigger a retry.
type Job struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"maxAttempts"`
}

// Queue is a named Redis queue.
type Queue struct {
	rdb  *redis.Client
	name string
}

// New returns a queue bound to the given name.
func New(rdb *redis.Client, name string) *Queue {
	return &Queue{rdb: rdb, name: name}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

func (q *Queue) readyKey() string        { return "queue:" + q.name }
func (q *Queue) delayKey() string        { return "delay:" + q.name }
func (q *Queue) deadKey() string         { return "dead:" + q.name }
func (q *Queue) jobKey(id string) string { return "job:" + q.name + ":" + id }

// EnqueueOptions collects the per-call enqueue settings. Exposed so fakes of
// the queue can apply the same options the real queue does.
type EnqueueOptions struct {
	ID          string
	Delay       time.Duration
	MaxAttempts int
}

// EnqueueOption customizes a single Enqueue call.
type EnqueueOption func(*EnqueueOptions)

// WithID forces a fixed job id. Re-enqueueing under the same id overwrites
// the stored payload; combined with RemoveDelayed this debounces bursts.
func WithID(id string) EnqueueOption {
	return func(o *EnqueueOptions) { o.ID = id }
}

// WithDelay schedules the job to become ready after d.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) { o.Delay = d }
}

// WithMaxAttempts overrides the retry budget for this job.
func WithMaxAttempts(n int) EnqueueOption {
	return func(o *EnqueueOptions) { o.MaxAttempts = n }
}

// Enqueue submits a named job with a JSON-serializable payload and returns
// the job id.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any, opts ...EnqueueOption) (string, error) {
	o := EnqueueOptions{MaxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("marshaling payload for %q: %w", name, err)
		}
		raw = data
	}

	job := Job{ID: o.ID, Name: name, Payload: raw, MaxAttempts: o.MaxAttempts}
	if err := q.push(ctx, job, o.Delay); err != nil {
		return "", err
	}
	return o.ID, nil
}

// push writes the payload key and places the id on the ready list or the
// delay set. Used by Enqueue and by the consumer's retry path.
func (q *Queue) push(ctx context.Context, job Job, delay time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job %s: %w", job.ID, err)
	}
	if err := q.rdb.Set(ctx, q.jobKey(job.ID), data, 7*24*time.Hour).Err(); err != nil {
		return fmt.Errorf("storing job %s: %w", job.ID, err)
	}
	if delay > 0 {
		runAt := time.Now().Add(delay)
		if err := q.rdb.ZAdd(ctx, q.delayKey(), redis.Z{Score: float64(runAt.Unix()), Member: job.ID}).Err(); err != nil {
			return fmt.Errorf("delaying job %s: %w", job.ID, err)
		}
		return nil
	}
	if err := q.rdb.LPush(ctx, q.readyKey(), job.ID).Err(); err != nil {
		return fmt.Errorf("enqueueing job %s: %w", job.ID, err)
	}
	return nil
}

// RemoveDelayed drops a job from the delay set if it has not been promoted
// yet. Returns true when a pending delayed job was removed. Jobs that are
// already ready or running are left alone.
func (q *Queue) RemoveDelayed(ctx context.Context, id string) (bool, error) {
	removed, err := q.rdb.ZRem(ctx, q.delayKey(), id).Result()
	if err != nil {
		return false, fmt.Errorf("removing delayed job %s: %w", id, err)
	}
	if removed == 0 {
		return false, nil
	}
	_ = q.rdb.Del(ctx, q.jobKey(id)).Err()
	return true, nil
}

// PromoteDue moves delayed jobs whose run-at has passed onto the ready list.
// Returns the number of promoted jobs.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time, batch int64) (int, error) {
	ids, err := q.rdb.ZRangeByScore(ctx, q.delayKey(), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", now.Unix()), Offset: 0, Count: batch,
	}).Result()
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	pipe := q.rdb.TxPipeline()
	for _, id := range ids {
		pipe.LPush(ctx, q.readyKey(), id)
		pipe.ZRem(ctx, q.delayKey(), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("promoting due jobs: %w", err)
	}
	return len(ids), nil
}

// Dequeue blocks up to the given duration for a ready job. Returns (nil, nil)
// when the wait times out or the popped id has no payload (removed job).
func (q *Queue) Dequeue(ctx context.Context, block time.Duration) (*Job, error) {
	res, err := q.rdb.BRPop(ctx, block, q.readyKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue from %s: %w", q.name, err)
	}
	if len(res) != 2 {
		return nil, nil
	}
	id := res[1]

	data, err := q.rdb.GetDel(ctx, q.jobKey(id)).Result()
	if err == redis.Nil {
		// Payload gone: job was debounced away after promotion. Not an error.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}

	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", id, err)
	}
	return &job, nil
}

// bury moves an exhausted job onto the dead list for inspection.
func (q *Queue) bury(ctx context.Context, job Job, cause error) error {
	job.Payload = appendError(job.Payload, cause)
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.deadKey(), data).Err()
}

func appendError(payload json.RawMessage, cause error) json.RawMessage {
	if cause == nil {
		return payload
	}
	wrapper := struct {
		Payload json.RawMessage `json:"payload,omitempty"`
		Error   string          `json:"error"`
	}{Payload: payload, Error: cause.Error()}
	data, err := json.Marshal(wrapper)
	if err != nil {
		return payload
	}
	return data
}

// Stats is a point-in-time snapshot of queue depth.
type Stats struct {
	Queue   string `json:"queue"`
	Ready   int64  `json:"ready"`
	Delayed int64  `json:"delayed"`
	Dead    int64  `json:"dead"`
}

// Stats reports ready/delayed/dead counts.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	ready, err := q.rdb.LLen(ctx, q.readyKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("stats for %s: %w", q.name, err)
	}
	delayed, err := q.rdb.ZCard(ctx, q.delayKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("stats for %s: %w", q.name, err)
	}
	dead, err := q.rdb.LLen(ctx, q.deadKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("stats for %s: %w", q.name, err)
	}
	return Stats{Queue: q.name, Ready: ready, Delayed: delayed, Dead: dead}, nil
}

// Package queue is the durable, ordered log of remote writes that could not
// be delivered. The whole log is stored as one JSON array under a fixed key.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"planner/internal/model"
)

const (
	// DefaultKey is the storage key holding the log.
	DefaultKey = "planner-offline-queue"
	// DefaultRetention is how long an entry may wait before it is abandoned.
	DefaultRetention = 24 * time.Hour
)

// Kind names the remote operation an entry replays.
type Kind string

const (
	KindUpsert Kind = "upsert"
	KindDelete Kind = "delete"
)

// Payload carries the arguments of the operation.
type Payload struct {
	Date   string      `json:"date,omitempty"`
	Task   *model.Task `json:"task,omitempty"`
	TaskID string      `json:"task_id,omitempty"`
}

// Entry is one queued operation.
type Entry struct {
	Kind       Kind      `json:"kind"`
	Payload    Payload   `json:"payload"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Upsert returns an entry that replays an upsert of task under dateKey.
func Upsert(dateKey string, task model.Task) Entry {
	t := task.Clone()
	return Entry{Kind: KindUpsert, Payload: Payload{Date: dateKey, Task: &t}}
}

// Delete returns an entry that replays a delete by id.
func Delete(taskID string) Entry {
	return Entry{Kind: KindDelete, Payload: Payload{TaskID: taskID}}
}

// Queue reads and writes the log. Its methods are safe for concurrent use;
// each one is a single read-modify-write of the stored array.
type Queue struct {
	store     Storage
	key       string
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu sync.Mutex
}

// Option configures a Queue.
type Option func(*Queue)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(q *Queue) { q.key = key }
}

// WithRetention overrides how long entries survive a failed replay.
func WithRetention(d time.Duration) Option {
	return func(q *Queue) { q.retention = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a queue over store.
func New(store Storage, logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		store:     store,
		key:       DefaultKey,
		retention: DefaultRetention,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// load must be called with q.mu held. A corrupt array reads as empty.
func (q *Queue) load(ctx context.Context) ([]Entry, error) {
	raw, ok, err := q.store.Get(ctx, q.key)
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		q.logger.Warn("discarding unreadable offline queue", slog.String("error", err.Error()))
		return nil, nil
	}
	return entries, nil
}

// save must be called with q.mu held.
func (q *Queue) save(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		if err := q.store.Remove(ctx, q.key); err != nil {
			return fmt.Errorf("clear queue: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := q.store.Set(ctx, q.key, raw); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	return nil
}

// Enqueue appends entries, stamping EnqueuedAt on those that lack it.
func (q *Queue) Enqueue(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.load(ctx)
	if err != nil {
		return err
	}
	now := q.now()
	for _, e := range entries {
		if e.EnqueuedAt.IsZero() {
			e.EnqueuedAt = now
		}
		current = append(current, e)
	}
	return q.save(ctx, current)
}

// Entries returns the log without changing it.
func (q *Queue) Entries(ctx context.Context) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Len returns the number of queued entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	entries, err := q.Entries(ctx)
	return len(entries), err
}

// Take returns the whole log and clears it.
func (q *Queue) Take(ctx context.Context) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	if err := q.save(ctx, nil); err != nil {
		return nil, err
	}
	return entries, nil
}

// Requeue puts back the unexecuted remainder of a replay ahead of anything
// enqueued since it was taken. Entries older than the retention window are
// dropped; the number dropped is returned.
func (q *Queue) Requeue(ctx context.Context, remainder []Entry) (dropped int, err error) {
	cutoff := q.now().Add(-q.retention)
	kept := make([]Entry, 0, len(remainder))
	for _, e := range remainder {
		if e.EnqueuedAt.After(cutoff) {
			kept = append(kept, e)
		} else {
			dropped++
		}
	}
	if len(kept) == 0 {
		return dropped, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.load(ctx)
	if err != nil {
		return dropped, err
	}
	return dropped, q.save(ctx, append(kept, current...))
}

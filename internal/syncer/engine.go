// Package syncer delivers local mutations to the remote store, parking the
// ones that cannot be delivered in the durable queue until connectivity returns.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"planner/internal/model"
	"planner/internal/queue"
)

// Remote is the subset of the remote store the engine writes to.
type Remote interface {
	Upsert(ctx context.Context, userID, dateKey string, task model.Task) error
	Delete(ctx context.Context, taskID string) error
	BatchUpsertPositions(ctx context.Context, userID, dateKey string, tasks []model.Task) error
}

// Operation is one remote write.
type Operation func(ctx context.Context) error

var errMalformed = errors.New("malformed queue entry")

// Report describes one flush.
type Report struct {
	Skipped  bool      `json:"skipped"`
	Replayed int       `json:"replayed"`
	Requeued int       `json:"requeued"`
	Dropped  int       `json:"dropped"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

// Status is a snapshot of the engine for status indicators.
type Status struct {
	Online    bool    `json:"online"`
	Syncing   bool    `json:"syncing"`
	Queued    int     `json:"queued"`
	LastFlush *Report `json:"last_flush,omitempty"`
}

// DefaultWriteTimeout bounds one remote write attempt.
const DefaultWriteTimeout = 10 * time.Second

// ErrQueueUnavailable wraps failures of the queue's backing storage, as
// opposed to failures of the remote store.
var ErrQueueUnavailable = errors.New("offline queue unavailable")

// Option configures an Engine.
type Option func(*Engine)

// WithWriteTimeout bounds each remote attempt made by Commit, BestEffort and
// Flush. An attempt that runs out of time counts as failed.
func WithWriteTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// job is one Commit or BestEffort call waiting for the writer.
type job struct {
	ctx        context.Context
	op         Operation
	entries    []queue.Entry
	bestEffort bool
}

// Engine makes local mutations durable against an unreliable remote store.
// One Engine is built per running application.
//
// Writes are attempted by a single background writer in the order they were
// committed, so a slow or hung remote never blocks the caller.
type Engine struct {
	remote  Remote
	queue   *queue.Queue
	logger  *slog.Logger
	timeout time.Duration

	online   atomic.Bool
	flushing atomic.Bool

	mu        sync.Mutex
	cond      *sync.Cond
	jobs      []job // head is the write in progress
	closing   bool
	done      chan struct{}
	lastFlush *Report
}

// New returns an engine that starts out believing the network is up, and
// starts its writer. Close stops the writer.
func New(remote Remote, q *queue.Queue, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		remote:  remote,
		queue:   q,
		logger:  logger,
		timeout: DefaultWriteTimeout,
		done:    make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	e.online.Store(true)
	go e.run()
	return e
}

// Commit hands op to the writer and returns at once. When the engine
// believes it is offline, or op fails or times out, entries are appended to
// the durable queue instead.
//
// Commit never reports failure. Callers have already applied the change
// locally and must not roll it back: a write that cannot be delivered now is
// delivered later by Flush.
func (e *Engine) Commit(ctx context.Context, op Operation, entries ...queue.Entry) {
	e.submit(job{ctx: context.WithoutCancel(ctx), op: op, entries: entries})
}

// BestEffort hands op to the writer. A failure is only logged. entries
// describe op for Unsynced while it waits; they are never queued.
func (e *Engine) BestEffort(ctx context.Context, op Operation, entries ...queue.Entry) {
	e.submit(job{ctx: context.WithoutCancel(ctx), op: op, entries: entries, bestEffort: true})
}

func (e *Engine) submit(j job) {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		if !j.bestEffort {
			e.park(j.ctx, j.entries, "engine closed")
		}
		return
	}
	e.jobs = append(e.jobs, j)
	e.cond.Broadcast()
	e.mu.Unlock()
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.jobs) == 0 && !e.closing {
			e.cond.Wait()
		}
		if len(e.jobs) == 0 {
			e.mu.Unlock()
			return
		}
		j := e.jobs[0]
		e.mu.Unlock()

		e.attempt(j)

		e.mu.Lock()
		e.jobs[0] = job{}
		e.jobs = e.jobs[1:]
		e.cond.Broadcast()
		e.mu.Unlock()
	}
}

func (e *Engine) attempt(j job) {
	if j.bestEffort {
		if err := e.call(j.ctx, j.op); err != nil {
			e.logger.Warn("best-effort remote write failed", slog.String("error", err.Error()))
		}
		return
	}
	if !e.Online() {
		e.park(j.ctx, j.entries, "offline")
		return
	}
	if err := e.call(j.ctx, j.op); err != nil {
		e.logger.Warn("remote write failed, queuing",
			slog.String("error", err.Error()),
			slog.Int("entries", len(j.entries)),
		)
		e.park(j.ctx, j.entries, "remote error")
	}
}

func (e *Engine) call(ctx context.Context, op Operation) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return op(ctx)
}

func (e *Engine) park(ctx context.Context, entries []queue.Entry, reason string) {
	if len(entries) == 0 {
		return
	}
	if err := e.queue.Enqueue(context.WithoutCancel(ctx), entries...); err != nil {
		e.logger.Error("failed to persist offline queue",
			slog.String("error", err.Error()),
			slog.String("reason", reason),
		)
		return
	}
	e.logger.Debug("queued remote write", slog.String("reason", reason), slog.Int("entries", len(entries)))
}

// Wait blocks until every write committed so far has been delivered or
// queued.
func (e *Engine) Wait() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.jobs) > 0 {
		e.cond.Wait()
	}
}

// Close lets the writer finish what was committed and stops it. Writes
// committed after Close go straight to the queue. If ctx ends first, the
// writes still waiting are parked so none is lost.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closing = true
	e.cond.Broadcast()
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
	}

	e.mu.Lock()
	var waiting []job
	if len(e.jobs) > 1 {
		waiting = append(waiting, e.jobs[1:]...)
		e.jobs = e.jobs[:1]
	}
	e.mu.Unlock()
	for _, j := range waiting {
		if !j.bestEffort {
			e.park(j.ctx, j.entries, "shutdown")
		}
	}
	return ctx.Err()
}

// Unsynced returns every write the remote may not have yet: the queue in
// order, then the writes still waiting for the writer. A write that moves
// from the writer to the queue during the call can appear twice.
func (e *Engine) Unsynced(ctx context.Context) ([]queue.Entry, error) {
	e.mu.Lock()
	var waiting []queue.Entry
	for _, j := range e.jobs {
		waiting = append(waiting, j.entries...)
	}
	e.mu.Unlock()

	queued, err := e.queue.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}
	return append(queued, waiting...), nil
}

// Online reports whether the engine believes the network is up.
func (e *Engine) Online() bool {
	return e.online.Load()
}

// Syncing reports whether a remote write or a flush is in progress.
func (e *Engine) Syncing() bool {
	e.mu.Lock()
	busy := len(e.jobs) > 0
	e.mu.Unlock()
	return busy || e.flushing.Load()
}

// SetOnline records a connectivity signal. A transition to online flushes
// the queue for userID; the returned report is nil when no flush ran.
func (e *Engine) SetOnline(ctx context.Context, userID string, online bool) *Report {
	was := e.online.Swap(online)
	if was == online {
		return nil
	}
	e.logger.Info("connectivity changed", slog.Bool("online", online))
	if !online {
		return nil
	}
	rep, err := e.Flush(ctx, userID)
	if err != nil {
		e.logger.Warn("flush after reconnect incomplete", slog.String("error", err.Error()))
	}
	return &rep
}

// Flush replays the queue in enqueue order. Only one flush runs at a time; a
// concurrent call returns a Skipped report. On the first failure the
// unexecuted remainder goes back to the queue, minus entries past retention.
// Delivery is at-least-once, so every queued operation must be idempotent.
//
// A replay failure is recorded in the report and returned. A failure to read
// the queue itself wraps ErrQueueUnavailable.
func (e *Engine) Flush(ctx context.Context, userID string) (Report, error) {
	if !e.flushing.CompareAndSwap(false, true) {
		return Report{Skipped: true}, nil
	}
	defer e.flushing.Store(false)

	rep, err := e.flush(ctx, userID)
	rep.At = time.Now()
	if err != nil {
		rep.Error = err.Error()
	}

	e.mu.Lock()
	e.lastFlush = &rep
	e.mu.Unlock()
	return rep, err
}

func (e *Engine) flush(ctx context.Context, userID string) (Report, error) {
	var rep Report

	entries, err := e.queue.Take(ctx)
	if err != nil {
		return rep, fmt.Errorf("%w: take: %w", ErrQueueUnavailable, err)
	}
	if len(entries) == 0 {
		return rep, nil
	}

	for i, entry := range entries {
		err := e.call(ctx, func(ctx context.Context) error { return e.replay(ctx, userID, entry) })
		if errors.Is(err, errMalformed) {
			e.logger.Warn("dropping malformed queue entry", slog.String("kind", string(entry.Kind)))
			rep.Dropped++
			continue
		}
		if err != nil {
			remainder := entries[i:]
			dropped, qerr := e.queue.Requeue(context.WithoutCancel(ctx), remainder)
			rep.Dropped += dropped
			rep.Requeued = len(remainder) - dropped
			if qerr != nil {
				e.logger.Error("failed to requeue remainder", slog.String("error", qerr.Error()))
			}
			e.logger.Warn("flush stopped",
				slog.String("error", err.Error()),
				slog.Int("replayed", rep.Replayed),
				slog.Int("requeued", rep.Requeued),
				slog.Int("dropped", rep.Dropped),
			)
			return rep, fmt.Errorf("replay %s: %w", entry.Kind, err)
		}
		rep.Replayed++
	}

	e.logger.Info("offline queue flushed", slog.Int("replayed", rep.Replayed))
	return rep, nil
}

func (e *Engine) replay(ctx context.Context, userID string, entry queue.Entry) error {
	switch entry.Kind {
	case queue.KindUpsert:
		if entry.Payload.Task == nil || entry.Payload.Date == "" {
			return errMalformed
		}
		return e.remote.Upsert(ctx, userID, entry.Payload.Date, *entry.Payload.Task)
	case queue.KindDelete:
		if entry.Payload.TaskID == "" {
			return errMalformed
		}
		return e.remote.Delete(ctx, entry.Payload.TaskID)
	}
	return errMalformed
}

// Status returns a snapshot of the engine.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	n, err := e.queue.Len(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}
	e.mu.Lock()
	last := e.lastFlush
	e.mu.Unlock()
	return Status{
		Online:    e.Online(),
		Syncing:   e.Syncing(),
		Queued:    n,
		LastFlush: last,
	}, nil
}

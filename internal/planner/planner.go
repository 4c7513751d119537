// Package planner is one user's planner session. Every mutation is applied to
// the local task state first and then handed to the sync engine, which
// delivers it to the remote store or queues it for later.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"planner/internal/calendar"
	"planner/internal/model"
	"planner/internal/queue"
	"planner/internal/state"
	"planner/internal/syncer"
)

// DefaultUndoGrace is how long a delete can be undone.
const DefaultUndoGrace = 5 * time.Second

// searchLimit caps Search results.
const searchLimit = 20

var ErrNoPendingDelete = errors.New("no delete to undo")

// Store is the remote store as seen by a session.
type Store interface {
	syncer.Remote
	FetchAll(ctx context.Context, userID string) (map[string][]model.Task, error)
	FetchWeightLogs(ctx context.Context, userID string) ([]model.WeightLog, error)
	UpsertWeightLog(ctx context.Context, userID, date string, weightKg float64) error
	FetchWeightGoal(ctx context.Context, userID string) (*float64, error)
	UpsertWeightGoal(ctx context.Context, userID string, goalKg *float64) error
}

// Config holds session settings.
type Config struct {
	UserID    string
	UndoGrace time.Duration
	// NewID generates task and subtask ids. Defaults to random UUIDs.
	NewID func() string
}

// Planner holds the local state of one user session.
type Planner struct {
	userID string
	store  Store
	engine *syncer.Engine
	logger *slog.Logger
	grace  time.Duration
	newID  func() string

	mu      sync.Mutex
	tasks   state.Buckets
	pending *pendingDelete
	weights []model.WeightLog
}

// New creates a session with empty state; call Load to populate it.
func New(cfg Config, store Store, engine *syncer.Engine, logger *slog.Logger) *Planner {
	if cfg.UndoGrace <= 0 {
		cfg.UndoGrace = DefaultUndoGrace
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.New().String() }
	}
	return &Planner{
		userID: cfg.UserID,
		store:  store,
		engine: engine,
		logger: logger,
		grace:  cfg.UndoGrace,
		newID:  cfg.NewID,
		tasks:  state.Buckets{},
	}
}

// UserID returns the session's user.
func (p *Planner) UserID() string {
	return p.userID
}

// Engine returns the session's sync engine.
func (p *Planner) Engine() *syncer.Engine {
	return p.engine
}

// Load replaces local state with everything the remote store holds, then
// reapplies in order every write the remote may not have yet, so a reload
// never undoes a local change. On failure local state is left as it was. A
// task whose delete is still pending stays hidden.
func (p *Planner) Load(ctx context.Context) error {
	tasks, err := p.store.FetchAll(ctx, p.userID)
	if err != nil {
		return err
	}
	logs, err := p.store.FetchWeightLogs(ctx, p.userID)
	if err != nil {
		return fmt.Errorf("load weight logs: %w", err)
	}
	sortLogs(logs)

	p.mu.Lock()
	// mutations commit under p.mu, so nothing applied locally is missing here
	unsynced, err := p.engine.Unsynced(ctx)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("load unsynced writes: %w", err)
	}
	b := overlay(state.Buckets(tasks), unsynced)
	if p.pending != nil {
		if next, _, err := state.DeleteTask(b, p.pending.dateKey, p.pending.task.ID); err == nil {
			b = next
		}
	}
	p.tasks = b
	p.weights = logs
	n := b.Len()
	p.mu.Unlock()

	p.logger.Info("planner loaded",
		slog.Int("tasks", n),
		slog.Int("days", len(tasks)),
		slog.Int("unsynced", len(unsynced)),
		slog.Int("weights", len(logs)),
	)
	return nil
}

// overlay applies queued writes to fetched buckets in enqueue order. An
// upsert naming a task filed under another date moves it.
func overlay(b state.Buckets, entries []queue.Entry) state.Buckets {
	for _, e := range entries {
		switch e.Kind {
		case queue.KindUpsert:
			if e.Payload.Task == nil {
				continue
			}
			t := *e.Payload.Task
			if from, ok := b.Locate(t.ID); ok && from != e.Payload.Date {
				b, _, _ = state.DeleteTask(b, from, t.ID)
			}
			if next, _, err := state.UpsertTask(b, e.Payload.Date, model.InputFrom(t)); err == nil {
				b = next
			}
		case queue.KindDelete:
			if from, ok := b.Locate(e.Payload.TaskID); ok {
				b, _, _ = state.DeleteTask(b, from, e.Payload.TaskID)
			}
		}
	}
	return b
}

// Tasks returns a snapshot of all buckets.
func (p *Planner) Tasks() state.Buckets {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks.Clone()
}

// Day returns one bucket in display order.
func (p *Planner) Day(dateKey string) []model.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return state.Sorted(p.tasks[dateKey])
}

// Search finds tasks by text, newest first.
func (p *Planner) Search(query string) []model.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return state.Search(p.tasks, query, searchLimit)
}

// Upsert creates or replaces a task. Blank text returns state.ErrEmptyText
// and changes nothing. An id filed under another date returns
// state.ErrFiledElsewhere; use Move to change a task's date.
func (p *Planner) Upsert(ctx context.Context, dateKey string, in model.TaskInput) (model.Task, error) {
	if !calendar.ValidDateKey(dateKey) {
		return model.Task{}, calendar.ErrInvalidDate
	}
	if err := in.Validate(); err != nil {
		return model.Task{}, err
	}
	if in.ID == "" {
		in.ID = p.newID()
	}
	in.Subtasks = append([]model.Subtask(nil), in.Subtasks...)
	for i := range in.Subtasks {
		if in.Subtasks[i].ID == "" {
			in.Subtasks[i].ID = p.newID()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	next, task, err := state.UpsertTask(p.tasks, dateKey, in)
	if err != nil {
		return model.Task{}, err
	}
	p.tasks = next
	p.commitUpsert(ctx, task)
	return task, nil
}

// Toggle flips a task's done flag. Completing a recurring task also returns
// the spawned next occurrence.
func (p *Planner) Toggle(ctx context.Context, dateKey, id string) (model.Task, *model.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, task, spawned, err := state.ToggleDone(p.tasks, dateKey, id, p.newID)
	if err != nil {
		return model.Task{}, nil, err
	}
	p.tasks = next

	p.commitUpsert(ctx, task)
	if spawned != nil {
		p.logger.Debug("spawned next occurrence", slog.String("task", task.ID), slog.String("date", spawned.Date))
		p.commitUpsert(ctx, *spawned)
	}
	return task, spawned, nil
}

// ToggleSubtask flips one subtask.
func (p *Planner) ToggleSubtask(ctx context.Context, dateKey, id, subtaskID string) (model.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, task, err := state.ToggleSubtask(p.tasks, dateKey, id, subtaskID)
	if err != nil {
		return model.Task{}, err
	}
	p.tasks = next

	p.commitUpsert(ctx, task)
	return task, nil
}

// Reorder sets the order of a bucket from ids and renumbers it 0..n-1.
func (p *Planner) Reorder(ctx context.Context, dateKey string, ids []string) ([]model.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, bucket, err := state.ReorderByID(p.tasks, dateKey, ids)
	if err != nil {
		return nil, err
	}
	p.tasks = next

	entries := make([]queue.Entry, len(bucket))
	for i, t := range bucket {
		entries[i] = queue.Upsert(dateKey, t)
	}
	p.engine.Commit(ctx, func(ctx context.Context) error {
		return p.store.BatchUpsertPositions(ctx, p.userID, dateKey, bucket)
	}, entries...)
	return bucket, nil
}

// Move files a task under another date, at the end of that day. Moving to
// the same date is a no-op and reports moved == false.
func (p *Planner) Move(ctx context.Context, from, to, id string) (task model.Task, moved bool, err error) {
	if !calendar.ValidDateKey(to) {
		return model.Task{}, false, calendar.ErrInvalidDate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	next, task, moved, err := state.MoveTask(p.tasks, from, to, id)
	if err != nil || !moved {
		return task, moved, err
	}
	p.tasks = next

	p.commitUpsert(ctx, task)
	return task, true, nil
}

// commitUpsert and commitDelete hand a write to the engine. Callers hold p.mu
// so that Load sees the write as unsynced from the moment it is applied.
func (p *Planner) commitUpsert(ctx context.Context, task model.Task) {
	p.engine.Commit(ctx, func(ctx context.Context) error {
		return p.store.Upsert(ctx, p.userID, task.Date, task)
	}, queue.Upsert(task.Date, task))
}

func (p *Planner) commitDelete(ctx context.Context, taskID string) {
	p.engine.Commit(ctx, func(ctx context.Context) error {
		return p.store.Delete(ctx, taskID)
	}, queue.Delete(taskID))
}

// Close finalizes a pending delete so it is not lost on shutdown, then lets
// the engine deliver or queue what is still in flight.
func (p *Planner) Close(ctx context.Context) error {
	p.mu.Lock()
	if pd := p.takePendingLocked(nil); pd != nil {
		p.logger.Info("finalizing pending delete on shutdown", slog.String("task", pd.task.ID))
		p.commitDelete(ctx, pd.task.ID)
	}
	p.mu.Unlock()
	return p.engine.Close(ctx)
}

// IsValidation reports whether err was caused by bad input.
func IsValidation(err error) bool {
	return errors.Is(err, state.ErrEmptyText) ||
		errors.Is(err, state.ErrOrderMismatch) ||
		errors.Is(err, model.ErrInvalidTask) ||
		errors.Is(err, calendar.ErrInvalidDate) ||
		errors.Is(err, ErrInvalidWeight)
}

func wrapNotFound(dateKey, id string) error {
	return fmt.Errorf("%w: %s on %s", state.ErrNotFound, id, dateKey)
}

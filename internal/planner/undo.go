package planner

import (
	"context"
	"log/slog"
	"time"

	"planner/internal/model"
	"planner/internal/queue"
	"planner/internal/state"
)

// pendingDelete is a delete that can still be undone. The remote delete is
// only issued once it is finalized.
type pendingDelete struct {
	dateKey   string
	task      model.Task
	timer     *time.Timer
	expiresAt time.Time
}

// Pending describes the delete that can currently be undone.
type Pending struct {
	Date      string     `json:"date"`
	Task      model.Task `json:"task"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Delete removes a task from local state and arms the undo timer. The remote
// delete is committed when the timer fires. A delete that was still pending
// is finalized immediately.
func (p *Planner) Delete(ctx context.Context, dateKey, id string) (model.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, task, err := state.DeleteTask(p.tasks, dateKey, id)
	if err != nil {
		return model.Task{}, wrapNotFound(dateKey, id)
	}
	p.tasks = next

	if prev := p.takePendingLocked(nil); prev != nil {
		p.logger.Debug("finalizing previous delete", slog.String("task", prev.task.ID))
		p.commitDelete(ctx, prev.task.ID)
	}

	pd := &pendingDelete{dateKey: dateKey, task: task, expiresAt: time.Now().Add(p.grace)}
	pd.timer = time.AfterFunc(p.grace, func() { p.expire(pd) })
	p.pending = pd
	return task, nil
}

// Undo restores the pending delete at its original position. Nothing was sent
// to the remote store, so nothing else needs to happen.
func (p *Planner) Undo(ctx context.Context) (model.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pd := p.takePendingLocked(nil)
	if pd == nil {
		return model.Task{}, ErrNoPendingDelete
	}
	p.tasks = state.Restore(p.tasks, pd.dateKey, pd.task)
	p.logger.Debug("delete undone", slog.String("task", pd.task.ID))
	return pd.task, nil
}

// Hidden finalizes a pending delete right away when the session goes to the
// background. The remote call is attempted once and not queued.
func (p *Planner) Hidden(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pd := p.takePendingLocked(nil)
	if pd == nil {
		return false
	}
	p.engine.BestEffort(ctx, func(ctx context.Context) error {
		return p.store.Delete(ctx, pd.task.ID)
	}, queue.Delete(pd.task.ID))
	return true
}

// PendingDelete returns the delete that can currently be undone.
func (p *Planner) PendingDelete() (Pending, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return Pending{}, false
	}
	return Pending{Date: p.pending.dateKey, Task: p.pending.task, ExpiresAt: p.pending.expiresAt}, true
}

func (p *Planner) expire(pd *pendingDelete) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.takePendingLocked(pd) == nil {
		return
	}
	p.commitDelete(context.Background(), pd.task.ID)
}

// takePendingLocked clears and returns the pending delete. With match set it
// only does so if match is still the pending one.
func (p *Planner) takePendingLocked(match *pendingDelete) *pendingDelete {
	pd := p.pending
	if pd == nil || (match != nil && pd != match) {
		return nil
	}
	p.pending = nil
	pd.timer.Stop()
	return pd
}

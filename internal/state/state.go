// Package state is the local task store: a mapping from date key to the
// ordered bucket of tasks filed under that date.
//
// Every operation is a pure function. It returns a new Buckets value in which
// only the touched buckets are freshly allocated, so a previously returned
// map is never mutated and may still be read by whoever holds it. None of
// these functions perform I/O.
package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"planner/internal/calendar"
	"planner/internal/model"
)

var (
	ErrEmptyText     = errors.New("task text is required")
	ErrMissingID     = errors.New("task id is required")
	ErrNotFound      = errors.New("task not found")
	ErrOrderMismatch = errors.New("order does not match bucket")
	// ErrFiledElsewhere rejects an upsert naming a task that lives under
	// another date. Moving a task goes through MoveTask.
	ErrFiledElsewhere = errors.New("task is filed under another date")
)

// Buckets maps a date key to the tasks filed under it.
type Buckets map[string][]model.Task

// Clone returns a shallow copy of the map. Buckets are shared.
func (b Buckets) Clone() Buckets {
	out := make(Buckets, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Find returns the task with id in dateKey and its index in the bucket.
func (b Buckets) Find(dateKey, id string) (model.Task, int, bool) {
	for i, t := range b[dateKey] {
		if t.ID == id {
			return t, i, true
		}
	}
	return model.Task{}, -1, false
}

// Locate returns the date key a task id is filed under.
func (b Buckets) Locate(id string) (string, bool) {
	for dateKey, bucket := range b {
		for _, t := range bucket {
			if t.ID == id {
				return dateKey, true
			}
		}
	}
	return "", false
}

// Len returns the number of tasks across all buckets.
func (b Buckets) Len() int {
	n := 0
	for _, bucket := range b {
		n += len(bucket)
	}
	return n
}

func (b Buckets) with(dateKey string, bucket []model.Task) Buckets {
	out := b.Clone()
	out[dateKey] = bucket
	return out
}

func copyBucket(bucket []model.Task) []model.Task {
	return append(make([]model.Task, 0, len(bucket)+1), bucket...)
}

// UpsertTask replaces the task whose ID matches in.ID, keeping its position
// unless in.Position is set, or appends a new task at the end of the bucket.
// Text that is empty after trimming leaves b untouched and returns ErrEmptyText.
// An id already filed under another date returns ErrFiledElsewhere, so one
// id never lives in two buckets.
func UpsertTask(b Buckets, dateKey string, in model.TaskInput) (Buckets, model.Task, error) {
	if strings.TrimSpace(in.Text) == "" {
		return b, model.Task{}, ErrEmptyText
	}
	if in.ID == "" {
		return b, model.Task{}, ErrMissingID
	}

	bucket := copyBucket(b[dateKey])
	if existing, i, ok := b.Find(dateKey, in.ID); ok {
		pos := existing.Position
		if in.Position != nil {
			pos = *in.Position
		}
		t := in.Task(dateKey, pos)
		bucket[i] = t
		return b.with(dateKey, bucket), t, nil
	}
	if other, ok := b.Locate(in.ID); ok {
		return b, model.Task{}, fmt.Errorf("%w: %s is on %s", ErrFiledElsewhere, in.ID, other)
	}

	t := in.Task(dateKey, len(bucket))
	bucket = append(bucket, t)
	return b.with(dateKey, bucket), t, nil
}

// ToggleDone flips the done flag of a task. When the flip completes a
// recurring task, the next occurrence is spawned into its bucket in the same
// update and returned as spawned; newID supplies the spawned task's id.
func ToggleDone(b Buckets, dateKey, id string, newID func() string) (out Buckets, toggled model.Task, spawned *model.Task, err error) {
	task, i, ok := b.Find(dateKey, id)
	if !ok {
		return b, model.Task{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	task.Done = !task.Done
	bucket := copyBucket(b[dateKey])
	bucket[i] = task
	out = b.with(dateKey, bucket)

	if !task.Done || !task.Recurrence.Repeats() {
		return out, task, nil, nil
	}

	next, ok, nerr := calendar.NextOccurrence(dateKey, string(task.Recurrence))
	if nerr != nil || !ok {
		return out, task, nil, nil
	}

	s := task.Clone()
	s.ID = newID()
	s.Date = next
	s.Done = false
	for j := range s.Subtasks {
		s.Subtasks[j].Done = false
	}
	target := copyBucket(out[next])
	s.Position = len(target)
	out[next] = append(target, s)
	return out, task, &s, nil
}

// ToggleSubtask flips one subtask of a task.
func ToggleSubtask(b Buckets, dateKey, id, subtaskID string) (Buckets, model.Task, error) {
	task, i, ok := b.Find(dateKey, id)
	if !ok {
		return b, model.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	task = task.Clone()
	found := false
	for j := range task.Subtasks {
		if task.Subtasks[j].ID == subtaskID {
			task.Subtasks[j].Done = !task.Subtasks[j].Done
			found = true
			break
		}
	}
	if !found {
		return b, model.Task{}, fmt.Errorf("%w: subtask %s", ErrNotFound, subtaskID)
	}
	bucket := copyBucket(b[dateKey])
	bucket[i] = task
	return b.with(dateKey, bucket), task, nil
}

// DeleteTask removes a task and returns it.
func DeleteTask(b Buckets, dateKey, id string) (Buckets, model.Task, error) {
	task, i, ok := b.Find(dateKey, id)
	if !ok {
		return b, model.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	src := b[dateKey]
	bucket := make([]model.Task, 0, len(src)-1)
	bucket = append(bucket, src[:i]...)
	bucket = append(bucket, src[i+1:]...)
	return b.with(dateKey, bucket), task, nil
}

// Restore splices a previously deleted task back into its bucket at its
// stored position and re-sorts the bucket by position.
func Restore(b Buckets, dateKey string, task model.Task) Buckets {
	task.Date = dateKey
	bucket := append(copyBucket(b[dateKey]), task)
	sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].Position < bucket[j].Position })
	return b.with(dateKey, bucket)
}

// Reorder replaces the bucket with ordered, stamping Position = index.
func Reorder(b Buckets, dateKey string, ordered []model.Task) (Buckets, []model.Task) {
	bucket := make([]model.Task, len(ordered))
	for i, t := range ordered {
		t.Position = i
		t.Date = dateKey
		bucket[i] = t
	}
	return b.with(dateKey, bucket), bucket
}

// ReorderByID reorders the bucket to follow ids, which must name every task
// in the bucket exactly once.
func ReorderByID(b Buckets, dateKey string, ids []string) (Buckets, []model.Task, error) {
	current := b[dateKey]
	if len(ids) != len(current) {
		return b, nil, fmt.Errorf("%w: got %d ids for %d tasks", ErrOrderMismatch, len(ids), len(current))
	}
	byID := make(map[string]model.Task, len(current))
	for _, t := range current {
		byID[t.ID] = t
	}
	ordered := make([]model.Task, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return b, nil, fmt.Errorf("%w: unknown or repeated id %s", ErrOrderMismatch, id)
		}
		delete(byID, id)
		ordered = append(ordered, t)
	}
	out, bucket := Reorder(b, dateKey, ordered)
	return out, bucket, nil
}

// MoveTask moves a task to the end of another day's bucket. Moving to the
// same day is a no-op and reports moved == false.
func MoveTask(b Buckets, from, to, id string) (out Buckets, task model.Task, moved bool, err error) {
	if from == to {
		return b, model.Task{}, false, nil
	}
	out, task, err = DeleteTask(b, from, id)
	if err != nil {
		return b, model.Task{}, false, err
	}
	target := copyBucket(out[to])
	task.Date = to
	task.Position = len(target)
	out[to] = append(target, task)
	return out, task, true, nil
}

// Sorted returns a copy of bucket ordered by position. Ties go to tasks with
// a fixed time, earliest first; tasks without a time sort last.
func Sorted(bucket []model.Task) []model.Task {
	out := append([]model.Task(nil), bucket...)
	sort.SliceStable(out, func(i, j int) bool {
		a, c := out[i], out[j]
		if a.Position != c.Position {
			return a.Position < c.Position
		}
		switch {
		case a.Time == c.Time:
			return false
		case a.Time == "":
			return false
		case c.Time == "":
			return true
		}
		return a.Time < c.Time
	})
	return out
}

// Search returns tasks whose text contains query, case-insensitively,
// newest date first, at most limit results.
func Search(b Buckets, query string, limit int) []model.Task {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var matches []model.Task
	for _, bucket := range b {
		for _, t := range bucket {
			if strings.Contains(strings.ToLower(t.Text), q) {
				matches = append(matches, t)
			}
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Date != matches[j].Date {
			return matches[i].Date > matches[j].Date
		}
		return matches[i].Position < matches[j].Position
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

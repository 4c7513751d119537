package state

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planner/internal/model"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
}

func seed(t *testing.T, dateKey string, texts ...string) Buckets {
	t.Helper()
	b := Buckets{}
	for i, text := range texts {
		var err error
		b, _, err = UpsertTask(b, dateKey, model.TaskInput{ID: fmt.Sprintf("t%d", i), Text: text})
		require.NoError(t, err)
	}
	return b
}

func TestUpsertTask_AppendsWithBucketLength(t *testing.T) {
	b := seed(t, "2024-03-04", "one", "two")

	b, task, err := UpsertTask(b, "2024-03-04", model.TaskInput{ID: "new", Text: "three"})
	require.NoError(t, err)

	assert.Equal(t, 2, task.Position)
	assert.Len(t, b["2024-03-04"], 3)
	assert.Equal(t, "2024-03-04", task.Date)
}

func TestUpsertTask_RejectsBlankText(t *testing.T) {
	b := seed(t, "2024-03-04", "one")

	for _, text := range []string{"", "   ", "\t\n"} {
		out, _, err := UpsertTask(b, "2024-03-04", model.TaskInput{ID: "x", Text: text})
		assert.ErrorIs(t, err, ErrEmptyText)
		assert.Equal(t, b, out)
	}

	// replacing an existing task with blank text is rejected too
	out, _, err := UpsertTask(b, "2024-03-04", model.TaskInput{ID: "t0", Text: " "})
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Equal(t, "one", out["2024-03-04"][0].Text)
}

func TestUpsertTask_ReplacesInPlaceKeepingPosition(t *testing.T) {
	b := seed(t, "2024-03-04", "one", "two", "three")

	b, task, err := UpsertTask(b, "2024-03-04", model.TaskInput{ID: "t1", Text: "two edited"})
	require.NoError(t, err)
	assert.Equal(t, 1, task.Position)
	assert.Equal(t, "two edited", b["2024-03-04"][1].Text)
	assert.Len(t, b["2024-03-04"], 3)

	pos := 7
	b, task, err = UpsertTask(b, "2024-03-04", model.TaskInput{ID: "t1", Text: "two", Position: &pos})
	require.NoError(t, err)
	assert.Equal(t, 7, task.Position)
	assert.Equal(t, 7, b["2024-03-04"][1].Position)
}

func TestUpsertTask_RejectsIDFiledUnderAnotherDate(t *testing.T) {
	b := seed(t, "2024-03-04", "one")

	out, _, err := UpsertTask(b, "2024-03-05", model.TaskInput{ID: "t0", Text: "one"})
	require.ErrorIs(t, err, ErrFiledElsewhere)
	assert.Equal(t, b, out)
	assert.Empty(t, out["2024-03-05"])

	dateKey, ok := out.Locate("t0")
	assert.True(t, ok)
	assert.Equal(t, "2024-03-04", dateKey)
}

func TestUpsertTask_Idempotent(t *testing.T) {
	in := model.TaskInput{ID: "a", Text: "Pay rent", Time: "10:00"}

	once, _, err := UpsertTask(Buckets{}, "2024-01-01", in)
	require.NoError(t, err)
	twice, _, err := UpsertTask(once, "2024-01-01", in)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestUpsertTask_DoesNotMutateInput(t *testing.T) {
	before := seed(t, "2024-03-04", "one")
	snapshot := before.Clone()
	snapshot["2024-03-04"] = append([]model.Task(nil), before["2024-03-04"]...)

	_, _, err := UpsertTask(before, "2024-03-04", model.TaskInput{ID: "t0", Text: "changed"})
	require.NoError(t, err)

	assert.Equal(t, snapshot, before)
}

func TestToggleDone_WeeklySpawnsNextOccurrence(t *testing.T) {
	b, _, err := UpsertTask(Buckets{}, "2024-03-04", model.TaskInput{ID: "w", Text: "Team sync", Recurrence: "weekly"})
	require.NoError(t, err)

	b, toggled, spawned, err := ToggleDone(b, "2024-03-04", "w", seqIDs())
	require.NoError(t, err)

	assert.True(t, toggled.Done)
	assert.True(t, b["2024-03-04"][0].Done)
	require.NotNil(t, spawned)
	require.Len(t, b["2024-03-11"], 1)
	next := b["2024-03-11"][0]
	assert.Equal(t, "gen-1", next.ID)
	assert.Equal(t, "Team sync", next.Text)
	assert.False(t, next.Done)
	assert.Equal(t, "2024-03-11", next.Date)
	assert.Equal(t, *spawned, next)

	// toggling back to not done keeps the spawned task
	b, toggled, spawned, err = ToggleDone(b, "2024-03-04", "w", seqIDs())
	require.NoError(t, err)
	assert.False(t, toggled.Done)
	assert.Nil(t, spawned)
	assert.Len(t, b["2024-03-11"], 1)
}

func TestToggleDone_SpawnAppendsToTargetBucket(t *testing.T) {
	b := seed(t, "2024-03-05", "existing", "other")
	b, _, err := UpsertTask(b, "2024-03-04", model.TaskInput{ID: "d", Text: "Stretch", Recurrence: "daily",
		Subtasks: []model.Subtask{{ID: "s1", Text: "legs", Done: true}}})
	require.NoError(t, err)

	b, _, spawned, err := ToggleDone(b, "2024-03-04", "d", seqIDs())
	require.NoError(t, err)
	require.NotNil(t, spawned)

	assert.Equal(t, 2, spawned.Position)
	assert.Len(t, b["2024-03-05"], 3)
	assert.False(t, spawned.Subtasks[0].Done)
	assert.True(t, b["2024-03-04"][0].Subtasks[0].Done)
}

func TestToggleDone_WithoutRecurrenceRoundTrips(t *testing.T) {
	b, _, err := UpsertTask(Buckets{}, "2024-01-01", model.TaskInput{ID: "a", Text: "Pay rent"})
	require.NoError(t, err)

	b, _, spawned, err := ToggleDone(b, "2024-01-01", "a", seqIDs())
	require.NoError(t, err)
	assert.Nil(t, spawned)
	b, task, spawned, err := ToggleDone(b, "2024-01-01", "a", seqIDs())
	require.NoError(t, err)
	assert.Nil(t, spawned)

	assert.False(t, task.Done)
	assert.Equal(t, 1, b.Len())
}

func TestToggleDone_NotFound(t *testing.T) {
	_, _, _, err := ToggleDone(Buckets{}, "2024-01-01", "missing", seqIDs())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleSubtask(t *testing.T) {
	b, _, err := UpsertTask(Buckets{}, "2024-01-01", model.TaskInput{ID: "a", Text: "Workout",
		Subtasks: []model.Subtask{{ID: "s1", Text: "squats"}, {ID: "s2", Text: "rows"}}})
	require.NoError(t, err)

	after, task, err := ToggleSubtask(b, "2024-01-01", "a", "s2")
	require.NoError(t, err)
	assert.True(t, task.Subtasks[1].Done)
	assert.True(t, after["2024-01-01"][0].Subtasks[1].Done)
	assert.False(t, b["2024-01-01"][0].Subtasks[1].Done)

	_, _, err = ToggleSubtask(b, "2024-01-01", "a", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAndRestore(t *testing.T) {
	b := seed(t, "2024-03-04", "one", "two", "three")

	after, removed, err := DeleteTask(b, "2024-03-04", "t1")
	require.NoError(t, err)
	assert.Equal(t, "two", removed.Text)
	assert.Len(t, after["2024-03-04"], 2)

	restored := Restore(after, "2024-03-04", removed)
	require.Len(t, restored["2024-03-04"], 3)
	assert.Equal(t, "t1", restored["2024-03-04"][1].ID)
	assert.Equal(t, 1, restored["2024-03-04"][1].Position)
}

func TestReorder_StampsDensePositions(t *testing.T) {
	b := seed(t, "2024-03-04", "a", "b", "c")
	bucket := b["2024-03-04"]
	ordered := []model.Task{bucket[2], bucket[0], bucket[1]}
	ordered[0].Position = 40

	after, stamped := Reorder(b, "2024-03-04", ordered)

	require.Len(t, after["2024-03-04"], 3)
	for i, task := range after["2024-03-04"] {
		assert.Equal(t, i, task.Position)
	}
	assert.Equal(t, []string{"t2", "t0", "t1"}, ids(stamped))
}

func TestReorderByID(t *testing.T) {
	b := seed(t, "2024-03-04", "a", "b", "c")

	after, bucket, err := ReorderByID(b, "2024-03-04", []string{"t1", "t2", "t0"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t0"}, ids(bucket))
	assert.Equal(t, 2, after["2024-03-04"][2].Position)

	_, _, err = ReorderByID(b, "2024-03-04", []string{"t1", "t1", "t0"})
	assert.ErrorIs(t, err, ErrOrderMismatch)
	_, _, err = ReorderByID(b, "2024-03-04", []string{"t1"})
	assert.ErrorIs(t, err, ErrOrderMismatch)
}

func TestMoveTask(t *testing.T) {
	b := seed(t, "2024-03-04", "a", "b")
	b, _, err := UpsertTask(b, "2024-03-05", model.TaskInput{ID: "x", Text: "x", Time: "08:00"})
	require.NoError(t, err)

	same, _, moved, err := MoveTask(b, "2024-03-04", "2024-03-04", "t0")
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, b, same)

	after, task, moved, err := MoveTask(b, "2024-03-04", "2024-03-05", "t0")
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, "2024-03-05", task.Date)
	assert.Equal(t, 1, task.Position)
	assert.Len(t, after["2024-03-04"], 1)
	assert.Equal(t, "t0", after["2024-03-05"][1].ID)

	_, _, _, err = MoveTask(b, "2024-03-04", "2024-03-05", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSorted(t *testing.T) {
	bucket := []model.Task{
		{ID: "late", Position: 1, Time: "18:00"},
		{ID: "untimed", Position: 0},
		{ID: "early", Position: 0, Time: "07:00"},
	}
	assert.Equal(t, []string{"early", "untimed", "late"}, ids(Sorted(bucket)))
}

func TestSearch(t *testing.T) {
	b := seed(t, "2024-03-04", "Pay rent", "Groceries")
	b, _, err := UpsertTask(b, "2024-04-01", model.TaskInput{ID: "r2", Text: "pay RENT again"})
	require.NoError(t, err)

	got := Search(b, "  rent ", 20)
	assert.Equal(t, []string{"r2", "t0"}, ids(got))
	assert.Len(t, Search(b, "rent", 1), 1)
	assert.Nil(t, Search(b, "   ", 20))
}

func ids(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      TaskInput
		wantErr bool
	}{
		{"minimal", TaskInput{Text: "Pay rent"}, false},
		{"full", TaskInput{Text: "Gym", Time: "07:00", Reminder: 10, Category: CategoryWorkout, Priority: PriorityHigh, Recurrence: "days:1,3,5"}, false},
		{"bad time", TaskInput{Text: "x", Time: "7am"}, true},
		{"negative reminder", TaskInput{Text: "x", Reminder: -5}, true},
		{"unknown category", TaskInput{Text: "x", Category: "gym"}, true},
		{"unknown priority", TaskInput{Text: "x", Priority: "urgent"}, true},
		{"bad recurrence", TaskInput{Text: "x", Recurrence: "yearly"}, true},
		{"blank subtask", TaskInput{Text: "x", Subtasks: []Subtask{{ID: "s1", Text: "  "}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTask)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTaskInput_TaskDropsReminderWithoutTime(t *testing.T) {
	task := TaskInput{ID: "a", Text: "  Call mum  ", Reminder: 30}.Task("2024-03-04", 2)

	assert.Equal(t, "Call mum", task.Text)
	assert.Equal(t, 0, task.Reminder)
	assert.Equal(t, "2024-03-04", task.Date)
	assert.Equal(t, 2, task.Position)
}

func TestInputFrom_RoundTrip(t *testing.T) {
	orig := Task{
		ID: "a", Date: "2024-03-04", Text: "Read", Time: "21:00", Reminder: 5,
		Position: 3, Category: CategoryStudy, Recurrence: "daily", Priority: PriorityLow,
		Subtasks: []Subtask{{ID: "s1", Text: "Chapter 1", Done: true}},
	}

	in := InputFrom(orig)
	require.NotNil(t, in.Position)
	assert.Equal(t, orig, in.Task(orig.Date, *in.Position))
}

func TestSubtaskProgress(t *testing.T) {
	task := Task{Subtasks: []Subtask{{Done: true}, {Done: false}, {Done: true}}}
	done, total := task.SubtaskProgress()
	assert.Equal(t, 2, done)
	assert.Equal(t, 3, total)
}

func TestCategoryColor(t *testing.T) {
	for _, c := range Categories {
		assert.NotEmpty(t, c.Color(), string(c))
	}
	assert.Empty(t, CategoryNone.Color())
}

func TestClone_DoesNotShareSubtasks(t *testing.T) {
	orig := Task{Subtasks: []Subtask{{ID: "s1"}}}
	c := orig.Clone()
	c.Subtasks[0].Done = true
	assert.False(t, orig.Subtasks[0].Done)
}

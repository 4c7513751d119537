package model

import (
	"errors"
	"fmt"
	"strings"

	"planner/internal/calendar"
)

// Category is a cosmetic, filterable tag on a task.
type Category string

const (
	CategoryNone     Category = ""
	CategoryPersonal Category = "personal"
	CategoryWork     Category = "work"
	CategoryHealth   Category = "health"
	CategoryStudy    Category = "study"
	CategoryHome     Category = "home"
	CategoryWorkout  Category = "workout"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryPersonal,
	CategoryWork,
	CategoryHealth,
	CategoryStudy,
	CategoryHome,
	CategoryWorkout,
}

// ValidCategories contains all valid category values.
var ValidCategories = map[Category]bool{
	CategoryPersonal: true,
	CategoryWork:     true,
	CategoryHealth:   true,
	CategoryStudy:    true,
	CategoryHome:     true,
	CategoryWorkout:  true,
}

var categoryColors = map[Category]string{
	CategoryPersonal: "#6366f1",
	CategoryWork:     "#0891b2",
	CategoryHealth:   "#16a34a",
	CategoryStudy:    "#d97706",
	CategoryHome:     "#e05252",
	CategoryWorkout:  "#8b5cf6",
}

// Color returns the stable display color of the category, or "" for none.
func (c Category) Color() string {
	return categoryColors[c]
}

// Priority is a cosmetic importance marker.
type Priority string

const (
	PriorityNone   Priority = ""
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ValidPriorities contains all valid priority values.
var ValidPriorities = map[Priority]bool{
	PriorityHigh:   true,
	PriorityMedium: true,
	PriorityLow:    true,
}

// Color returns the display color of the priority, or "" for none.
func (p Priority) Color() string {
	switch p {
	case PriorityHigh:
		return "#e05252"
	case PriorityMedium:
		return "#f0b429"
	case PriorityLow:
		return "#6366f1"
	}
	return ""
}

// Recurrence is the stored recurrence pattern: "", daily, weekdays, weekly,
// monthly or days:N,N (0=Sunday).
type Recurrence string

// Repeats reports whether the pattern spawns further occurrences.
func (r Recurrence) Repeats() bool {
	return r != ""
}

// Subtask is an independently toggleable step of a task.
type Subtask struct {
	ID   string `json:"id" required:"false" example:"6f1c2a9e-3b0d-4c5e-9a1f-1d2e3f4a5b6c"`
	Text string `json:"text" example:"Warm up"`
	Done bool   `json:"done" required:"false" example:"false"`
}

// Task is the unit of scheduling, filed under a calendar date.
type Task struct {
	ID         string     `json:"id" example:"0b6a2f1e-8f43-4a57-9d2a-5a3f2c1b7e90"`
	Date       string     `json:"date" example:"2024-03-04"`
	Text       string     `json:"text" example:"Pay rent"`
	Time       string     `json:"time" example:"09:30" doc:"HH:MM, empty for no fixed time"`
	Reminder   int        `json:"reminder" example:"15" doc:"Minutes before time, 0 for none"`
	Done       bool       `json:"done" example:"false"`
	Position   int        `json:"position" example:"0"`
	Category   Category   `json:"category" example:"work" enum:"personal,work,health,study,home,workout,"`
	Recurrence Recurrence `json:"recurrence" example:"weekly"`
	Priority   Priority   `json:"priority" example:"high" enum:"high,medium,low,"`
	Notes      string     `json:"notes" example:""`
	Subtasks   []Subtask  `json:"subtasks"`
}

// SubtaskProgress returns how many subtasks are done out of the total.
func (t Task) SubtaskProgress() (done, total int) {
	for _, s := range t.Subtasks {
		if s.Done {
			done++
		}
	}
	return done, len(t.Subtasks)
}

// Clone returns a copy of t that shares no slices with it.
func (t Task) Clone() Task {
	if t.Subtasks != nil {
		t.Subtasks = append([]Subtask(nil), t.Subtasks...)
	}
	return t
}

// TaskInput is the payload for creating or replacing a task. An empty ID
// creates a new task; a nil Position keeps the stored one (or appends).
type TaskInput struct {
	ID         string     `json:"id,omitempty" example:"0b6a2f1e-8f43-4a57-9d2a-5a3f2c1b7e90"`
	Text       string     `json:"text" example:"Pay rent"`
	Time       string     `json:"time,omitempty" example:"09:30"`
	Reminder   int        `json:"reminder,omitempty" example:"15" minimum:"0"`
	Done       bool       `json:"done,omitempty" example:"false"`
	Position   *int       `json:"position,omitempty" example:"0"`
	Category   Category   `json:"category,omitempty" example:"work"`
	Recurrence Recurrence `json:"recurrence,omitempty" example:"weekdays"`
	Priority   Priority   `json:"priority,omitempty" example:"medium"`
	Notes      string     `json:"notes,omitempty" example:"Transfer before noon"`
	Subtasks   []Subtask  `json:"subtasks,omitempty"`
}

// ErrInvalidTask is wrapped by every TaskInput validation failure.
var ErrInvalidTask = errors.New("invalid task")

// Validate checks field formats. Empty text is not checked here: the state
// store treats it as a silent no-op.
func (in TaskInput) Validate() error {
	if in.Time != "" && !calendar.ValidTime(in.Time) {
		return fmt.Errorf("%w: time must be HH:MM", ErrInvalidTask)
	}
	if in.Reminder < 0 {
		return fmt.Errorf("%w: reminder must not be negative", ErrInvalidTask)
	}
	if in.Category != CategoryNone && !ValidCategories[in.Category] {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidTask, in.Category)
	}
	if in.Priority != PriorityNone && !ValidPriorities[in.Priority] {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, in.Priority)
	}
	if _, err := calendar.ParseRecurrence(string(in.Recurrence)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	for _, s := range in.Subtasks {
		if strings.TrimSpace(s.Text) == "" {
			return fmt.Errorf("%w: subtask text is required", ErrInvalidTask)
		}
	}
	return nil
}

// Task builds the task record for dateKey at the given position.
func (in TaskInput) Task(dateKey string, position int) Task {
	t := Task{
		ID:         in.ID,
		Date:       dateKey,
		Text:       strings.TrimSpace(in.Text),
		Time:       in.Time,
		Reminder:   in.Reminder,
		Done:       in.Done,
		Position:   position,
		Category:   in.Category,
		Recurrence: in.Recurrence,
		Priority:   in.Priority,
		Notes:      in.Notes,
		Subtasks:   append([]Subtask(nil), in.Subtasks...),
	}
	if t.Time == "" {
		t.Reminder = 0
	}
	return t
}

// InputFrom returns the input that reproduces t exactly.
func InputFrom(t Task) TaskInput {
	pos := t.Position
	return TaskInput{
		ID:         t.ID,
		Text:       t.Text,
		Time:       t.Time,
		Reminder:   t.Reminder,
		Done:       t.Done,
		Position:   &pos,
		Category:   t.Category,
		Recurrence: t.Recurrence,
		Priority:   t.Priority,
		Notes:      t.Notes,
		Subtasks:   append([]Subtask(nil), t.Subtasks...),
	}
}

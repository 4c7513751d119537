package model

import "time"

// TaskListResponse wraps every bucket of the planner.
type TaskListResponse struct {
	Days  map[string][]Task `json:"days"`
	Count int               `json:"count" example:"12"`
}

// DayResponse is one day's bucket in display order.
type DayResponse struct {
	Date  string `json:"date" example:"2024-03-04"`
	Tasks []Task `json:"tasks"`
	Done  int    `json:"done" example:"2"`
	Total int    `json:"total" example:"5"`
}

// SearchResponse wraps search results, newest date first.
type SearchResponse struct {
	Query string `json:"query" example:"rent"`
	Tasks []Task `json:"tasks"`
}

// ToggleResponse carries the toggled task and, when completing a recurring
// task, its next occurrence.
type ToggleResponse struct {
	Task    Task  `json:"task"`
	Spawned *Task `json:"spawned,omitempty"`
}

// DeleteResponse describes a delete that can be undone until UndoUntil.
type DeleteResponse struct {
	Task      Task      `json:"task"`
	UndoUntil time.Time `json:"undo_until"`
}

// PendingDeleteResponse is the delete that can currently be undone.
type PendingDeleteResponse struct {
	Pending   bool      `json:"pending"`
	Date      string    `json:"date,omitempty" example:"2024-03-04"`
	Task      *Task     `json:"task,omitempty"`
	UndoUntil time.Time `json:"undo_until,omitzero"`
}

// ReorderRequest lists every task id of a day in the new order.
type ReorderRequest struct {
	IDs []string `json:"ids" minItems:"1"`
}

// MoveRequest names the day a task moves to.
type MoveRequest struct {
	To string `json:"to" example:"2024-03-05" pattern:"^[0-9]{4}-[0-9]{2}-[0-9]{2}$"`
}

// MoveResponse reports whether the task changed day.
type MoveResponse struct {
	Task  Task `json:"task"`
	Moved bool `json:"moved"`
}

// WeightRequest is the payload for recording a weight.
type WeightRequest struct {
	WeightKg float64 `json:"weight_kg" example:"72.4" minimum:"20" maximum:"300"`
}

// WeightListResponse wraps the weight log in date order.
type WeightListResponse struct {
	Logs  []WeightLog `json:"logs"`
	Count int         `json:"count" example:"30"`
}

// ConnectivityRequest reports a change in network reachability.
type ConnectivityRequest struct {
	Online bool `json:"online"`
}

// VisibilityRequest reports the client going to the background or back.
type VisibilityRequest struct {
	Hidden bool `json:"hidden"`
}

// VisibilityResponse reports whether a pending delete was finalized.
type VisibilityResponse struct {
	Finalized bool `json:"finalized"`
}

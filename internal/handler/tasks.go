package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"planner/internal/model"
)

// --- Input/Output types for huma ---

type ListTasksOutput struct {
	Body model.TaskListResponse
}

type DayInput struct {
	Date string `path:"date" pattern:"^[0-9]{4}-[0-9]{2}-[0-9]{2}$" doc:"Day key" example:"2024-03-04"`
}

type DayOutput struct {
	Body model.DayResponse
}

type SearchInput struct {
	Query string `query:"q" required:"true" minLength:"1" doc:"Text to look for, case-insensitive" example:"rent"`
}

type SearchOutput struct {
	Body model.SearchResponse
}

type CreateTaskInput struct {
	Date string `path:"date" pattern:"^[0-9]{4}-[0-9]{2}-[0-9]{2}$" example:"2024-03-04"`
	Body model.TaskInput
}

type TaskOutput struct {
	Body model.Task
}

type UpdateTaskInput struct {
	Date string `path:"date" pattern:"^[0-9]{4}-[0-9]{2}-[0-9]{2}$" example:"2024-03-04"`
	ID   string `path:"id" doc:"Task ID"`
	Body model.TaskInput
}

type TaskPathInput struct {
	Date string `path:"date" pattern:"^[0-9]{4}-[0-9]{2}-[0-9]{2}$" example:"2024-03-04"`
	ID   string `path:"id" doc:"Task ID"`
}

type ToggleOutput struct {
	Body model.ToggleResponse
}

type SubtaskPathInput struct {
	Date      string `path:"date" pattern:"^[0-9]{4}-[0-9]{2}-[0-9]{2}$" example:"2024-03-04"`
	ID        string `path:"id" doc:"Task ID"`
	SubtaskID string `path:"subtaskId" doc:"Subtask ID"`
}

type DeleteOutput struct {
	Body model.DeleteResponse
}

type PendingOutput struct {
	Body model.PendingDeleteResponse
}

type ReorderInput struct {
	Date string `path:"date" pattern:"^[0-9]{4}-[0-9]{2}-[0-9]{2}$" example:"2024-03-04"`
	Body model.ReorderRequest
}

type MoveInput struct {
	Date string `path:"date" pattern:"^[0-9]{4}-[0-9]{2}-[0-9]{2}$" example:"2024-03-04"`
	ID   string `path:"id" doc:"Task ID"`
	Body model.MoveRequest
}

type MoveOutput struct {
	Body model.MoveResponse
}

func (h *Handler) registerTasks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/api/v1/tasks",
		Summary:     "List all tasks",
		Description: "Retrieve every task grouped by day.",
		Tags:        []string{"tasks"},
	}, h.ListTasks)

	huma.Register(api, huma.Operation{
		OperationID: "search-tasks",
		Method:      http.MethodGet,
		Path:        "/api/v1/tasks/search",
		Summary:     "Search tasks",
		Description: "Find tasks whose text contains the query, newest day first, at most 20.",
		Tags:        []string{"tasks"},
	}, h.SearchTasks)

	huma.Register(api, huma.Operation{
		OperationID: "reload-tasks",
		Method:      http.MethodPost,
		Path:        "/api/v1/tasks/reload",
		Summary:     "Reload from the remote store",
		Description: "Replace local state with the remote store's. Local state is kept if the fetch fails.",
		Tags:        []string{"tasks"},
	}, h.ReloadTasks)

	huma.Register(api, huma.Operation{
		OperationID: "get-day",
		Method:      http.MethodGet,
		Path:        "/api/v1/days/{date}",
		Summary:     "Get a day",
		Description: "Retrieve one day's tasks in display order.",
		Tags:        []string{"tasks"},
	}, h.GetDay)

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/api/v1/days/{date}/tasks",
		Summary:       "Create a task",
		Description:   "Append a task to a day. A client may supply its own id.",
		Tags:          []string{"tasks"},
		DefaultStatus: http.StatusCreated,
	}, h.CreateTask)

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/api/v1/days/{date}/tasks/{id}",
		Summary:     "Replace a task",
		Description: "Replace a task, keeping its position unless one is given. A task filed under another date is a conflict; use move instead.",
		Tags:        []string{"tasks"},
	}, h.UpdateTask)

	huma.Register(api, huma.Operation{
		OperationID: "toggle-task",
		Method:      http.MethodPost,
		Path:        "/api/v1/days/{date}/tasks/{id}/toggle",
		Summary:     "Toggle a task",
		Description: "Flip a task's done flag. Completing a recurring task spawns its next occurrence.",
		Tags:        []string{"tasks"},
	}, h.ToggleTask)

	huma.Register(api, huma.Operation{
		OperationID: "toggle-subtask",
		Method:      http.MethodPost,
		Path:        "/api/v1/days/{date}/tasks/{id}/subtasks/{subtaskId}/toggle",
		Summary:     "Toggle a subtask",
		Tags:        []string{"tasks"},
	}, h.ToggleSubtask)

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/api/v1/days/{date}/tasks/{id}",
		Summary:     "Delete a task",
		Description: "Remove a task. The delete can be undone until undo_until.",
		Tags:        []string{"tasks"},
	}, h.DeleteTask)

	huma.Register(api, huma.Operation{
		OperationID: "move-task",
		Method:      http.MethodPost,
		Path:        "/api/v1/days/{date}/tasks/{id}/move",
		Summary:     "Move a task to another day",
		Description: "Append the task to the end of the target day. Moving to the same day changes nothing.",
		Tags:        []string{"tasks"},
	}, h.MoveTask)

	huma.Register(api, huma.Operation{
		OperationID: "reorder-day",
		Method:      http.MethodPut,
		Path:        "/api/v1/days/{date}/order",
		Summary:     "Reorder a day",
		Description: "Set the order of a day's tasks. Every task of the day must be listed once.",
		Tags:        []string{"tasks"},
	}, h.ReorderDay)

	huma.Register(api, huma.Operation{
		OperationID: "get-pending-delete",
		Method:      http.MethodGet,
		Path:        "/api/v1/undo",
		Summary:     "Get the undoable delete",
		Tags:        []string{"tasks"},
	}, h.GetPendingDelete)

	huma.Register(api, huma.Operation{
		OperationID: "undo-delete",
		Method:      http.MethodPost,
		Path:        "/api/v1/undo",
		Summary:     "Undo the last delete",
		Description: "Restore the pending delete at its original position.",
		Tags:        []string{"tasks"},
	}, h.UndoDelete)
}

func (h *Handler) ListTasks(ctx context.Context, _ *struct{}) (*ListTasksOutput, error) {
	days := h.planner.Tasks()
	out := make(map[string][]model.Task, len(days))
	for date, bucket := range days {
		if len(bucket) > 0 {
			out[date] = bucket
		}
	}
	return &ListTasksOutput{
		Body: model.TaskListResponse{Days: out, Count: days.Len()},
	}, nil
}

func (h *Handler) SearchTasks(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	tasks := h.planner.Search(input.Query)
	if tasks == nil {
		tasks = []model.Task{}
	}
	return &SearchOutput{Body: model.SearchResponse{Query: input.Query, Tasks: tasks}}, nil
}

func (h *Handler) ReloadTasks(ctx context.Context, _ *struct{}) (*ListTasksOutput, error) {
	if err := h.planner.Load(ctx); err != nil {
		return nil, h.fail(err, "failed to reload tasks")
	}
	return h.ListTasks(ctx, nil)
}

func (h *Handler) GetDay(ctx context.Context, input *DayInput) (*DayOutput, error) {
	tasks := h.planner.Day(input.Date)
	if tasks == nil {
		tasks = []model.Task{}
	}
	done := 0
	for _, t := range tasks {
		if t.Done {
			done++
		}
	}
	return &DayOutput{
		Body: model.DayResponse{Date: input.Date, Tasks: tasks, Done: done, Total: len(tasks)},
	}, nil
}

func (h *Handler) CreateTask(ctx context.Context, input *CreateTaskInput) (*TaskOutput, error) {
	task, err := h.planner.Upsert(ctx, input.Date, input.Body)
	if err != nil {
		return nil, h.fail(err, "failed to create task", slog.String("date", input.Date))
	}
	return &TaskOutput{Body: task}, nil
}

func (h *Handler) UpdateTask(ctx context.Context, input *UpdateTaskInput) (*TaskOutput, error) {
	input.Body.ID = input.ID
	task, err := h.planner.Upsert(ctx, input.Date, input.Body)
	if err != nil {
		return nil, h.fail(err, "failed to update task", slog.String("id", input.ID))
	}
	return &TaskOutput{Body: task}, nil
}

func (h *Handler) ToggleTask(ctx context.Context, input *TaskPathInput) (*ToggleOutput, error) {
	task, spawned, err := h.planner.Toggle(ctx, input.Date, input.ID)
	if err != nil {
		return nil, h.fail(err, "failed to toggle task", slog.String("id", input.ID))
	}
	return &ToggleOutput{Body: model.ToggleResponse{Task: task, Spawned: spawned}}, nil
}

func (h *Handler) ToggleSubtask(ctx context.Context, input *SubtaskPathInput) (*TaskOutput, error) {
	task, err := h.planner.ToggleSubtask(ctx, input.Date, input.ID, input.SubtaskID)
	if err != nil {
		return nil, h.fail(err, "failed to toggle subtask", slog.String("id", input.ID))
	}
	return &TaskOutput{Body: task}, nil
}

func (h *Handler) DeleteTask(ctx context.Context, input *TaskPathInput) (*DeleteOutput, error) {
	task, err := h.planner.Delete(ctx, input.Date, input.ID)
	if err != nil {
		return nil, h.fail(err, "failed to delete task", slog.String("id", input.ID))
	}
	resp := model.DeleteResponse{Task: task}
	if p, ok := h.planner.PendingDelete(); ok && p.Task.ID == task.ID {
		resp.UndoUntil = p.ExpiresAt
	}
	return &DeleteOutput{Body: resp}, nil
}

func (h *Handler) MoveTask(ctx context.Context, input *MoveInput) (*MoveOutput, error) {
	task, moved, err := h.planner.Move(ctx, input.Date, input.Body.To, input.ID)
	if err != nil {
		return nil, h.fail(err, "failed to move task", slog.String("id", input.ID))
	}
	if !moved {
		if t, ok := findTask(h.planner.Day(input.Date), input.ID); ok {
			task = t
		} else {
			return nil, huma.Error404NotFound("task not found: " + input.ID)
		}
	}
	return &MoveOutput{Body: model.MoveResponse{Task: task, Moved: moved}}, nil
}

func (h *Handler) ReorderDay(ctx context.Context, input *ReorderInput) (*DayOutput, error) {
	if _, err := h.planner.Reorder(ctx, input.Date, input.Body.IDs); err != nil {
		return nil, h.fail(err, "failed to reorder day", slog.String("date", input.Date))
	}
	return h.GetDay(ctx, &DayInput{Date: input.Date})
}

func (h *Handler) GetPendingDelete(ctx context.Context, _ *struct{}) (*PendingOutput, error) {
	p, ok := h.planner.PendingDelete()
	if !ok {
		return &PendingOutput{}, nil
	}
	return &PendingOutput{Body: model.PendingDeleteResponse{
		Pending:   true,
		Date:      p.Date,
		Task:      &p.Task,
		UndoUntil: p.ExpiresAt,
	}}, nil
}

func (h *Handler) UndoDelete(ctx context.Context, _ *struct{}) (*TaskOutput, error) {
	task, err := h.planner.Undo(ctx)
	if err != nil {
		return nil, h.fail(err, "failed to undo delete")
	}
	return &TaskOutput{Body: task}, nil
}

func findTask(tasks []model.Task, id string) (model.Task, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"planner/internal/model"
	"planner/internal/stats"
)

type WeightListOutput struct {
	Body model.WeightListResponse
}

type SaveWeightInput struct {
	Date string `path:"date" pattern:"^[0-9]{4}-[0-9]{2}-[0-9]{2}$" example:"2024-03-04"`
	Body model.WeightRequest
}

type WeightOutput struct {
	Body model.WeightLog
}

type WeightGoalOutput struct {
	Body model.WeightGoal
}

type SaveWeightGoalInput struct {
	Body model.WeightGoal
}

type StatsInput struct {
	Today string `query:"today" required:"false" pattern:"^[0-9]{4}-[0-9]{2}-[0-9]{2}$" doc:"Reference day, defaults to the server's today"`
}

type TaskStatsOutput struct {
	Body stats.TaskStats
}

type WeightStatsOutput struct {
	Body stats.WeightStats
}

func (h *Handler) registerWeight(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-weight",
		Method:      http.MethodGet,
		Path:        "/api/v1/weight",
		Summary:     "List weight readings",
		Tags:        []string{"weight"},
	}, h.ListWeight)

	huma.Register(api, huma.Operation{
		OperationID: "get-weight-goal",
		Method:      http.MethodGet,
		Path:        "/api/v1/weight/goal",
		Summary:     "Get the goal weight",
		Tags:        []string{"weight"},
	}, h.GetWeightGoal)

	huma.Register(api, huma.Operation{
		OperationID: "save-weight-goal",
		Method:      http.MethodPut,
		Path:        "/api/v1/weight/goal",
		Summary:     "Set the goal weight",
		Description: "Set the goal weight; null clears it.",
		Tags:        []string{"weight"},
	}, h.SaveWeightGoal)

	huma.Register(api, huma.Operation{
		OperationID: "save-weight",
		Method:      http.MethodPut,
		Path:        "/api/v1/weight/{date}",
		Summary:     "Record a weight",
		Description: "Record the reading for a day, replacing an earlier one. Not queued when the remote store is down.",
		Tags:        []string{"weight"},
	}, h.SaveWeight)

	huma.Register(api, huma.Operation{
		OperationID: "task-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats/tasks",
		Summary:     "Task statistics",
		Tags:        []string{"stats"},
	}, h.TaskStats)

	huma.Register(api, huma.Operation{
		OperationID: "weight-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats/weight",
		Summary:     "Weight statistics",
		Tags:        []string{"stats"},
	}, h.WeightStats)
}

func (h *Handler) ListWeight(ctx context.Context, _ *struct{}) (*WeightListOutput, error) {
	logs := h.planner.WeightLogs()
	return &WeightListOutput{Body: model.WeightListResponse{Logs: logs, Count: len(logs)}}, nil
}

func (h *Handler) SaveWeight(ctx context.Context, input *SaveWeightInput) (*WeightOutput, error) {
	entry, err := h.planner.SaveWeight(ctx, input.Date, input.Body.WeightKg)
	if err != nil {
		return nil, h.fail(err, "failed to save weight", slog.String("date", input.Date))
	}
	return &WeightOutput{Body: entry}, nil
}

func (h *Handler) GetWeightGoal(ctx context.Context, _ *struct{}) (*WeightGoalOutput, error) {
	goal, err := h.planner.WeightGoal(ctx)
	if err != nil {
		return nil, h.fail(err, "failed to get weight goal")
	}
	return &WeightGoalOutput{Body: model.WeightGoal{GoalKg: goal}}, nil
}

func (h *Handler) SaveWeightGoal(ctx context.Context, input *SaveWeightGoalInput) (*WeightGoalOutput, error) {
	if err := h.planner.SaveWeightGoal(ctx, input.Body.GoalKg); err != nil {
		return nil, h.fail(err, "failed to save weight goal")
	}
	return &WeightGoalOutput{Body: input.Body}, nil
}

func (h *Handler) TaskStats(ctx context.Context, input *StatsInput) (*TaskStatsOutput, error) {
	s, err := stats.Tasks(h.planner.Tasks(), h.today(input.Today))
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &TaskStatsOutput{Body: s}, nil
}

func (h *Handler) WeightStats(ctx context.Context, input *StatsInput) (*WeightStatsOutput, error) {
	goal, err := h.planner.WeightGoal(ctx)
	if err != nil {
		return nil, h.fail(err, "failed to get weight goal")
	}
	s, err := stats.Weight(h.planner.WeightLogs(), h.today(input.Today), goal)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &WeightStatsOutput{Body: s}, nil
}

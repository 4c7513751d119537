package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"planner/internal/model"
	"planner/internal/syncer"
)

type SyncStatusOutput struct {
	Body syncer.Status
}

type FlushOutput struct {
	Body syncer.Report
}

type ConnectivityInput struct {
	Body model.ConnectivityRequest
}

type VisibilityInput struct {
	Body model.VisibilityRequest
}

type VisibilityOutput struct {
	Body model.VisibilityResponse
}

func (h *Handler) registerSync(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "sync-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync",
		Summary:     "Sync status",
		Description: "Connectivity, in-flight work and the number of queued writes.",
		Tags:        []string{"sync"},
	}, h.SyncStatus)

	huma.Register(api, huma.Operation{
		OperationID: "flush-queue",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync/flush",
		Summary:     "Replay queued writes",
		Description: "Replay the offline queue now. Returns a skipped report if a flush is already running.",
		Tags:        []string{"sync"},
	}, h.FlushQueue)

	huma.Register(api, huma.Operation{
		OperationID: "set-connectivity",
		Method:      http.MethodPut,
		Path:        "/api/v1/sync/connectivity",
		Summary:     "Report connectivity",
		Description: "Report that the network went down or came back. Coming back online replays the queue.",
		Tags:        []string{"sync"},
	}, h.SetConnectivity)

	huma.Register(api, huma.Operation{
		OperationID: "set-visibility",
		Method:      http.MethodPut,
		Path:        "/api/v1/session/visibility",
		Summary:     "Report session visibility",
		Description: "Going to the background finalizes a pending delete immediately.",
		Tags:        []string{"session"},
	}, h.SetVisibility)
}

func (h *Handler) SyncStatus(ctx context.Context, _ *struct{}) (*SyncStatusOutput, error) {
	st, err := h.planner.Engine().Status(ctx)
	if err != nil {
		return nil, h.fail(err, "failed to read sync status")
	}
	return &SyncStatusOutput{Body: st}, nil
}

// FlushQueue reports replay failures in the body; the request itself
// succeeds. Failing to read the queue is an error.
func (h *Handler) FlushQueue(ctx context.Context, _ *struct{}) (*FlushOutput, error) {
	rep, err := h.planner.Engine().Flush(ctx, h.planner.UserID())
	if errors.Is(err, syncer.ErrQueueUnavailable) {
		return nil, h.fail(err, "failed to read offline queue")
	}
	return &FlushOutput{Body: rep}, nil
}

func (h *Handler) SetConnectivity(ctx context.Context, input *ConnectivityInput) (*SyncStatusOutput, error) {
	h.planner.Engine().SetOnline(ctx, h.planner.UserID(), input.Body.Online)
	return h.SyncStatus(ctx, nil)
}

func (h *Handler) SetVisibility(ctx context.Context, input *VisibilityInput) (*VisibilityOutput, error) {
	var resp model.VisibilityResponse
	if input.Body.Hidden {
		resp.Finalized = h.planner.Hidden(ctx)
	}
	return &VisibilityOutput{Body: resp}, nil
}

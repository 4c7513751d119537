package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"planner/internal/calendar"
	"planner/internal/db"
	"planner/internal/planner"
	"planner/internal/state"
	"planner/internal/syncer"
)

// Handler serves the planner API for one session.
type Handler struct {
	planner *planner.Planner
	loc     *time.Location
	logger  *slog.Logger
}

// NewHandler creates a Handler. loc decides what "today" is.
func NewHandler(p *planner.Planner, loc *time.Location, logger *slog.Logger) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{planner: p, loc: loc, logger: logger}
}

// RegisterRoutes registers every planner route with the huma API.
func (h *Handler) RegisterRoutes(api huma.API) {
	h.registerTasks(api)
	h.registerWeight(api)
	h.registerSync(api)
}

func (h *Handler) today(override string) string {
	if override != "" {
		return override
	}
	return calendar.Today(h.loc)
}

// fail maps err to an API error. Unexpected errors are logged and hidden
// behind msg.
func (h *Handler) fail(err error, msg string, attrs ...any) error {
	switch {
	case errors.Is(err, state.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, planner.ErrNoPendingDelete):
		return huma.Error404NotFound(err.Error())
	case planner.IsValidation(err):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, state.ErrFiledElsewhere):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, db.ErrLoad), errors.Is(err, syncer.ErrQueueUnavailable):
		h.logger.Error(msg, append(attrs, slog.String("error", err.Error()))...)
		return huma.Error503ServiceUnavailable(msg)
	}
	h.logger.Error(msg, append(attrs, slog.String("error", err.Error()))...)
	return huma.Error500InternalServerError(msg)
}

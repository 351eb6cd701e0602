package workflow

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/keystone-erp/keystone-erp/internal/platform/httpx"
	"github.com/keystone-erp/keystone-erp/internal/shared"
)

// Handler exposes approval task decisions over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// Routes mounts the approval endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/approvals/tasks/{id}", h.Show)
	r.Post("/approvals/tasks/{id}/decision", h.Decide)
}

type decisionRequest struct {
	Approved bool   `json:"approved"`
	Note     string `json:"note"`
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid task id")
		return
	}
	task, approvals, err := h.service.Task(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	history := make([]map[string]any, 0, len(approvals))
	for _, a := range approvals {
		history = append(history, map[string]any{
			"step_id":     a.StepID,
			"approver_id": a.ApproverID,
			"approved":    a.Approved,
			"note":        a.Note,
			"at":          a.At,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":         task.ID,
		"journal_id": task.JournalID,
		"status":     string(task.Status),
		"step_index": task.StepIndex,
		"amount":     task.Amount.String(),
		"history":    history,
	})
}

func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid task id")
		return
	}
	var req decisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	task, err := h.service.Decide(r.Context(), actor, id, req.Approved, req.Note)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":         task.ID,
		"status":     string(task.Status),
		"step_index": task.StepIndex,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "task not found")
	case errors.Is(err, shared.ErrCrossTenant):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
	case errors.Is(err, ErrRoleNotAllowed):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrTaskClosed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("approval decision failed", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "decision failed")
	}
}

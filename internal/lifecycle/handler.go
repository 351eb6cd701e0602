package lifecycle

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/keystone-erp/keystone-erp/internal/accounting/journals"
	acctshared "github.com/keystone-erp/keystone-erp/internal/accounting/shared"
	"github.com/keystone-erp/keystone-erp/internal/platform/httpx"
	internalShared "github.com/keystone-erp/keystone-erp/internal/shared"
)

// Handler exposes document status transitions over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// Routes mounts the transition endpoint.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/journals/{id}/transition", h.Transition)
}

type transitionRequest struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid journal id")
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if req.Target == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "target is required")
		return
	}

	journal, err := h.service.Transition(r.Context(), actor, id, journals.Status(req.Target), req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":      journal.ID,
		"number":  journal.Number,
		"status":  string(journal.Status),
		"version": journal.Version,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var transition *TransitionError
	var validation *ValidationError
	switch {
	case errors.As(err, &transition):
		httpx.Problem(w, http.StatusConflict, "Illegal Transition", transition.Error())
	case errors.As(err, &validation):
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"title":      "Validation Failed",
			"status":     http.StatusUnprocessableEntity,
			"violations": validation.Violations,
		})
	case errors.Is(err, internalShared.ErrCrossTenant):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
	case errors.Is(err, acctshared.ErrJournalNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "journal not found")
	case errors.Is(err, acctshared.ErrVersionConflict), errors.Is(err, acctshared.ErrAlreadyPosted):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("transition failed", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "transition failed")
	}
}

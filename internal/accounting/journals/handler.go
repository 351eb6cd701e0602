package journals

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/keystone-erp/keystone-erp/internal/accounting/shared"
	"github.com/keystone-erp/keystone-erp/internal/platform/httpx"
	internalShared "github.com/keystone-erp/keystone-erp/internal/shared"
)

// Handler exposes draft journal CRUD over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// Routes mounts the journal endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/journals", h.List)
	r.Post("/journals", h.Create)
	r.Get("/journals/{id}", h.Show)
	r.Delete("/journals/{id}", h.Delete)
}

type createLineRequest struct {
	AccountID    int64          `json:"account_id" validate:"required"`
	Debit        string         `json:"debit"`
	Credit       string         `json:"credit"`
	DepartmentID *int64         `json:"department_id"`
	ProjectID    *int64         `json:"project_id"`
	CostCenterID *int64         `json:"cost_center_id"`
	TaxCodeID    *int64         `json:"tax_code_id"`
	Attrs        map[string]any `json:"attrs"`
}

type createJournalRequest struct {
	TypeID       int64               `json:"type_id" validate:"required"`
	PeriodID     int64               `json:"period_id" validate:"required"`
	Date         string              `json:"date" validate:"required"`
	Currency     string              `json:"currency" validate:"required,len=3"`
	ExchangeRate string              `json:"exchange_rate"`
	Reference    string              `json:"reference"`
	Memo         string              `json:"memo"`
	Lines        []createLineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	list, err := h.service.List(r.Context(), actor.OrgID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(list))
	for _, j := range list {
		views = append(views, journalView(j))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"journals": views})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
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
	journal, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if journal.OrgID != actor.OrgID {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
		return
	}
	httpx.JSON(w, http.StatusOK, journalView(journal))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req createJournalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.toInput(actor)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	journal, err := h.service.CreateDraft(r.Context(), actor, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, journalView(journal))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteDraft(r.Context(), actor, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrJournalNotFound), errors.Is(err, internalShared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "journal not found")
	case errors.Is(err, internalShared.ErrCrossTenant):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
	case errors.Is(err, shared.ErrJournalLocked):
		httpx.Problem(w, http.StatusConflict, "Conflict", "journal is locked")
	case errors.Is(err, shared.ErrUnbalanced),
		errors.Is(err, shared.ErrTooFewLines),
		errors.Is(err, shared.ErrSingleSided):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("journal request failed", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "journal operation failed")
	}
}

func (req createJournalRequest) toInput(actor internalShared.Actor) (CreateInput, error) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return CreateInput{}, errors.New("date must be YYYY-MM-DD")
	}
	rate := decimal.NewFromInt(1)
	if req.ExchangeRate != "" {
		rate, err = decimal.NewFromString(req.ExchangeRate)
		if err != nil {
			return CreateInput{}, errors.New("exchange_rate must be a decimal string")
		}
	}
	input := CreateInput{
		OrgID:        actor.OrgID,
		TypeID:       req.TypeID,
		PeriodID:     req.PeriodID,
		Date:         date,
		Currency:     req.Currency,
		ExchangeRate: rate,
		Reference:    req.Reference,
		Memo:         req.Memo,
		CreatedBy:    actor.UserID,
	}
	for _, line := range req.Lines {
		debit, err := parseAmount(line.Debit)
		if err != nil {
			return CreateInput{}, errors.New("debit must be a decimal string")
		}
		credit, err := parseAmount(line.Credit)
		if err != nil {
			return CreateInput{}, errors.New("credit must be a decimal string")
		}
		input.Lines = append(input.Lines, LineInput{
			AccountID:    line.AccountID,
			Debit:        debit,
			Credit:       credit,
			DepartmentID: line.DepartmentID,
			ProjectID:    line.ProjectID,
			CostCenterID: line.CostCenterID,
			TaxCodeID:    line.TaxCodeID,
			Attrs:        line.Attrs,
		})
	}
	return input, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func journalView(j Journal) map[string]any {
	view := map[string]any{
		"id":           j.ID,
		"org_id":       j.OrgID,
		"type_id":      j.TypeID,
		"number":       j.Number,
		"period_id":    j.PeriodID,
		"date":         j.Date.Format("2006-01-02"),
		"currency":     j.Currency,
		"status":       string(j.Status),
		"total_debit":  j.TotalDebit.String(),
		"total_credit": j.TotalCredit.String(),
		"version":      j.Version,
		"is_locked":    j.IsLocked,
		"reference":    j.Reference,
		"memo":         j.Memo,
	}
	if j.ReversedByID != nil {
		view["reversed_by_id"] = *j.ReversedByID
	}
	if len(j.Lines) > 0 {
		lines := make([]map[string]any, 0, len(j.Lines))
		for _, line := range j.Lines {
			lines = append(lines, map[string]any{
				"line_no":    line.LineNo,
				"account_id": line.AccountID,
				"debit":      line.Debit.String(),
				"credit":     line.Credit.String(),
			})
		}
		view["lines"] = lines
	}
	return view
}

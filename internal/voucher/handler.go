package voucher

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/keystone-erp/keystone-erp/internal/platform/httpx"
	"github.com/keystone-erp/keystone-erp/internal/shared"
)

// Handler exposes the voucher orchestrator over JSON.
type Handler struct {
	logger       *slog.Logger
	orchestrator *Orchestrator
	validate     *validator.Validate
}

func NewHandler(logger *slog.Logger, orchestrator *Orchestrator) *Handler {
	return &Handler{
		logger:       logger,
		orchestrator: orchestrator,
		validate:     validator.New(),
	}
}

// Routes mounts the voucher endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/vouchers", h.Process)
	r.Get("/vouchers/processes/failed", h.ListFailed)
	r.Get("/vouchers/processes/{id}", h.Status)
}

type headerRequest struct {
	PeriodID     int64          `json:"period_id" validate:"required"`
	Date         string         `json:"date" validate:"required"`
	Currency     string         `json:"currency" validate:"required,len=3"`
	ExchangeRate string         `json:"exchange_rate"`
	Reference    string         `json:"reference"`
	Memo         string         `json:"memo"`
	Attrs        map[string]any `json:"attrs"`
}

type lineRequest struct {
	AccountID    int64          `json:"account_id" validate:"required"`
	Debit        string         `json:"debit"`
	Credit       string         `json:"credit"`
	DepartmentID *int64         `json:"department_id"`
	ProjectID    *int64         `json:"project_id"`
	CostCenterID *int64         `json:"cost_center_id"`
	TaxCodeID    *int64         `json:"tax_code_id"`
	Attrs        map[string]any `json:"attrs"`
}

type movementRequest struct {
	Direction       string `json:"direction" validate:"required,oneof=RECEIPT ISSUE"`
	ProductID       int64  `json:"product_id" validate:"required"`
	WarehouseID     int64  `json:"warehouse_id" validate:"required"`
	Qty             string `json:"qty" validate:"required"`
	UnitCost        string `json:"unit_cost"`
	OffsetAccountID int64  `json:"offset_account_id"`
	Note            string `json:"note"`
}

type voucherRequest struct {
	Area           string            `json:"area" validate:"required"`
	IdempotencyKey string            `json:"idempotency_key" validate:"required"`
	Commit         string            `json:"commit" validate:"required,oneof=save submit post"`
	Header         headerRequest     `json:"header" validate:"required"`
	Lines          []lineRequest     `json:"lines" validate:"dive"`
	Movements      []movementRequest `json:"movements" validate:"dive"`
}

type voucherResponse struct {
	ProcessID     string   `json:"process_id"`
	JournalID     int64    `json:"journal_id"`
	JournalNumber string   `json:"journal_number,omitempty"`
	Status        string   `json:"status"`
	TaskID        int64    `json:"task_id,omitempty"`
	Replayed      bool     `json:"replayed"`
	Warnings      []string `json:"warnings,omitempty"`
}

func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req voucherRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ProblemCode(w, http.StatusBadRequest, string(CodeValidation), "Validation Failed", err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		httpx.ProblemCode(w, http.StatusBadRequest, string(CodeValidation), "Validation Failed", err.Error())
		return
	}

	result, err := h.orchestrator.Process(r.Context(), actor, in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	status := http.StatusOK
	if !result.Replayed {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, voucherResponse{
		ProcessID:     result.ProcessID.String(),
		JournalID:     result.Journal.ID,
		JournalNumber: result.Journal.Number,
		Status:        string(result.Journal.Status),
		TaskID:        result.TaskID,
		Replayed:      result.Replayed,
		Warnings:      result.Warnings,
	})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid process id")
		return
	}
	process, err := h.orchestrator.Status(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, processView(process))
}

func (h *Handler) ListFailed(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	processes, err := h.orchestrator.FailedProcesses(r.Context(), actor, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	views := make([]map[string]any, 0, len(processes))
	for _, p := range processes {
		views = append(views, processView(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"processes": views})
}

func processView(p Process) map[string]any {
	view := map[string]any{
		"id":              p.ID.String(),
		"area":            p.Area,
		"idempotency_key": p.IdempotencyKey,
		"commit":          string(p.Commit),
		"status":          string(p.Status),
		"created_at":      p.CreatedAt,
	}
	if p.JournalID != nil {
		view["journal_id"] = *p.JournalID
	}
	if p.FailureCode != "" {
		view["failure_code"] = string(p.FailureCode)
		view["failure_message"] = p.FailureMessage
	}
	return view
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var coded *Error
	if errors.As(err, &coded) {
		httpx.ProblemCode(w, statusFor(coded.Code), string(coded.Code), titleFor(coded.Code), coded.Message)
		return
	}
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "process not found")
	case errors.Is(err, shared.ErrCrossTenant), errors.Is(err, shared.ErrPermissionDenied):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
	default:
		h.logger.Error("voucher request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "voucher processing failed")
	}
}

func statusFor(code Code) int {
	switch code {
	case CodeValidation, CodeInvalidQuantity, CodeMissingUoM:
		return http.StatusBadRequest
	case CodePermission:
		return http.StatusForbidden
	case CodeConflict, CodeLedgerExists:
		return http.StatusConflict
	case CodeStaleVersion:
		return http.StatusPreconditionFailed
	case CodeInsufficientStock, CodeAccountConfig:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func titleFor(code Code) string {
	switch code {
	case CodeValidation:
		return "Validation Failed"
	case CodePermission:
		return "Forbidden"
	case CodeConflict:
		return "Conflict"
	case CodeStaleVersion:
		return "Stale Version"
	case CodeLedgerExists:
		return "Ledger Entries Exist"
	case CodeInvalidQuantity, CodeInsufficientStock, CodeAccountConfig, CodeMissingUoM:
		return "Inventory Error"
	default:
		return "Internal Server Error"
	}
}

func (req voucherRequest) toInput() (Input, error) {
	date, err := time.Parse("2006-01-02", req.Header.Date)
	if err != nil {
		return Input{}, errors.New("header date must be YYYY-MM-DD")
	}
	rate, err := parseAmount(req.Header.ExchangeRate, "exchange_rate")
	if err != nil {
		return Input{}, err
	}
	in := Input{
		Area:           req.Area,
		IdempotencyKey: req.IdempotencyKey,
		Commit:         CommitType(req.Commit),
		Header: HeaderInput{
			PeriodID:     req.Header.PeriodID,
			Date:         date,
			Currency:     req.Header.Currency,
			ExchangeRate: rate,
			Reference:    req.Header.Reference,
			Memo:         req.Header.Memo,
			Attrs:        req.Header.Attrs,
		},
	}
	for _, line := range req.Lines {
		debit, err := parseAmount(line.Debit, "debit")
		if err != nil {
			return Input{}, err
		}
		credit, err := parseAmount(line.Credit, "credit")
		if err != nil {
			return Input{}, err
		}
		in.Lines = append(in.Lines, LineInput{
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
	for _, mv := range req.Movements {
		qty, err := parseAmount(mv.Qty, "qty")
		if err != nil {
			return Input{}, err
		}
		unitCost, err := parseAmount(mv.UnitCost, "unit_cost")
		if err != nil {
			return Input{}, err
		}
		in.Movements = append(in.Movements, MovementInput{
			Direction:       Direction(mv.Direction),
			ProductID:       mv.ProductID,
			WarehouseID:     mv.WarehouseID,
			Qty:             qty,
			UnitCost:        unitCost,
			OffsetAccountID: mv.OffsetAccountID,
			Note:            mv.Note,
		})
	}
	return in, nil
}

func parseAmount(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, errors.New(field + " must be a decimal string")
	}
	return d, nil
}

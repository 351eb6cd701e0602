package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/keystone-erp/keystone-erp/internal/platform/httpx"
	"github.com/keystone-erp/keystone-erp/internal/shared"
)

// Handler exposes standalone stock movements and balances over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// Routes mounts the inventory endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/inventory/receipts", h.Receipt)
	r.Post("/inventory/issues", h.Issue)
	r.Get("/inventory/items/{productID}/{warehouseID}", h.OnHand)
	r.Get("/inventory/items/{productID}/{warehouseID}/movements", h.Movements)
}

type receiptRequest struct {
	ProductID       int64  `json:"product_id" validate:"required"`
	WarehouseID     int64  `json:"warehouse_id" validate:"required"`
	Qty             string `json:"qty" validate:"required"`
	UnitCost        string `json:"unit_cost"`
	OffsetAccountID int64  `json:"offset_account_id" validate:"required"`
	Note            string `json:"note"`
}

type issueRequest struct {
	ProductID   int64  `json:"product_id" validate:"required"`
	WarehouseID int64  `json:"warehouse_id" validate:"required"`
	Qty         string `json:"qty" validate:"required"`
	Note        string `json:"note"`
}

func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "qty must be a decimal string")
		return
	}
	unitCost := decimal.Zero
	if req.UnitCost != "" {
		unitCost, err = decimal.NewFromString(req.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost must be a decimal string")
			return
		}
	}
	result, err := h.service.RecordReceipt(r.Context(), ReceiptInput{
		OrgID:           actor.OrgID,
		ProductID:       req.ProductID,
		WarehouseID:     req.WarehouseID,
		Qty:             qty,
		UnitCost:        unitCost,
		OffsetAccountID: req.OffsetAccountID,
		RefModule:       "inventory",
		RefID:           uuid.New(),
		Note:            req.Note,
		ActorID:         actor.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, resultView(result))
}

func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req issueRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "qty must be a decimal string")
		return
	}
	result, err := h.service.RecordIssue(r.Context(), IssueInput{
		OrgID:       actor.OrgID,
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		Qty:         qty,
		RefModule:   "inventory",
		RefID:       uuid.New(),
		Note:        req.Note,
		ActorID:     actor.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, resultView(result))
}

func (h *Handler) OnHand(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	productID, warehouseID, err := pathIDs(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	item, err := h.service.OnHand(r.Context(), actor.OrgID, productID, warehouseID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_id":   item.ProductID,
		"warehouse_id": item.WarehouseID,
		"qty":          item.Qty.String(),
		"unit_cost":    item.UnitCost.String(),
		"updated_at":   item.UpdatedAt,
	})
}

func (h *Handler) Movements(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	productID, warehouseID, err := pathIDs(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.Movements(r.Context(), actor.OrgID, productID, warehouseID, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(movements))
	for _, m := range movements {
		views = append(views, map[string]any{
			"id":         m.ID,
			"type":       string(m.Type),
			"qty":        m.Qty.String(),
			"unit_cost":  m.UnitCost.String(),
			"total_cost": m.TotalCost.String(),
			"ref_module": m.RefModule,
			"ref_id":     m.RefID.String(),
			"posted_at":  m.PostedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": views})
}

func pathIDs(r *http.Request) (int64, int64, error) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		return 0, 0, errors.New("invalid product id")
	}
	warehouseID, err := strconv.ParseInt(chi.URLParam(r, "warehouseID"), 10, 64)
	if err != nil {
		return 0, 0, errors.New("invalid warehouse id")
	}
	return productID, warehouseID, nil
}

func resultView(result PostingResult) map[string]any {
	return map[string]any{
		"method":            string(result.Method),
		"qty":               result.Qty.String(),
		"unit_cost":         result.UnitCost.String(),
		"total_cost":        result.TotalCost.String(),
		"debit_account_id":  result.DebitAccountID,
		"credit_account_id": result.CreditAccountID,
		"balance_qty":       result.BalanceQty.String(),
		"balance_cost":      result.BalanceCost.String(),
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrMissingUnitOfMeasure):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrAccountNotConfigured):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		h.logger.Error("inventory request failed", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "inventory operation failed")
	}
}

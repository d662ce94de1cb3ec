package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/auth"
	"github.com/fekuna/omnipos-backoffice/internal/httpx"
	"github.com/fekuna/omnipos-backoffice/internal/inventory"
	"github.com/fekuna/omnipos-backoffice/internal/inventory/dto"
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/product"
	"github.com/fekuna/omnipos-backoffice/pkg/database"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type InventoryHandler struct {
	uc     inventory.UseCase
	logger logger.ZapLogger
}

func NewInventoryHandler(uc inventory.UseCase, log logger.ZapLogger) *InventoryHandler {
	return &InventoryHandler{
		uc:     uc,
		logger: log,
	}
}

// Register mounts the inventory routes on r (expected under /api/inventory).
func (h *InventoryHandler) Register(r chi.Router) {
	r.Get("/variants/{variantId}", h.GetVariantStock)
	r.Get("/low-stock", h.ListLowStock)
	r.Get("/movements", h.ListMovements)
	r.Post("/adjustments", h.AdjustStock)
}

type adjustRequest struct {
	VariantID      string          `json:"variantId"`
	QuantityChange decimal.Decimal `json:"quantityChange"`
	Type           string          `json:"type"`
	Reason         string          `json:"reason"`
	ReferenceID    string          `json:"referenceId"`
}

type pageResponse struct {
	Items    interface{} `json:"items"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

func (h *InventoryHandler) GetVariantStock(w http.ResponseWriter, r *http.Request) {
	vs, err := h.uc.GetVariantStock(r.Context(), chi.URLParam(r, "variantId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, "", vs)
}

func (h *InventoryHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	items, total, err := h.uc.ListLowStock(r.Context(), page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, "", pageResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func (h *InventoryHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := &dto.MovementFilters{
		ProductID:     q.Get("productId"),
		VariantID:     q.Get("variantId"),
		MovementType:  q.Get("type"),
		ReferenceType: q.Get("referenceType"),
		ReferenceID:   q.Get("referenceId"),
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("pageSize"))

	for name, dst := range map[string]**time.Time{"from": &filters.StartDate, "to": &filters.EndDate} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(w, r, httpx.NewError("invalid_request", name+" must be an RFC 3339 timestamp", http.StatusBadRequest))
			return
		}
		*dst = &ts
	}

	items, total, err := h.uc.ListMovements(r.Context(), filters)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, "", pageResponse{Items: items, Total: total, Page: filters.Page, PageSize: filters.PageSize})
}

func (h *InventoryHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, httpx.DecodeError(err, nil))
		return
	}

	m, err := h.uc.AdjustStock(r.Context(), &dto.AdjustStockInput{
		VariantID:      req.VariantID,
		QuantityChange: req.QuantityChange,
		Type:           model.MovementType(req.Type),
		Reason:         req.Reason,
		ReferenceID:    req.ReferenceID,
		UserID:         auth.GetUserID(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusCreated, "stock adjusted", m)
}

func (h *InventoryHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	reason := map[string]interface{}{"reason": err.Error()}
	switch {
	case errors.Is(err, inventory.ErrInvalidInput), errors.Is(err, inventory.ErrInvalidAmount), errors.Is(err, database.ErrConstraint):
		httpx.WriteError(w, r, httpx.NewError("invalid_request", "invalid request", http.StatusBadRequest).WithDetails(reason))
	case errors.Is(err, product.ErrVariantNotFound):
		httpx.WriteError(w, r, httpx.NewError("variant_not_found", "variant not found", http.StatusNotFound))
	case errors.Is(err, inventory.ErrInsufficientStock):
		httpx.WriteError(w, r, httpx.NewError("insufficient_stock", "insufficient stock", http.StatusConflict).
			WithData(map[string]interface{}{"Product": "variant"}).WithDetails(reason))
	case errors.Is(err, inventory.ErrBusy):
		httpx.WriteError(w, r, httpx.NewError("busy", "system busy", http.StatusServiceUnavailable))
	case errors.Is(err, database.ErrConflict):
		httpx.WriteError(w, r, httpx.NewError("conflict", "concurrent modification", http.StatusConflict))
	default:
		h.logger.Error("inventory request failed", zap.String("path", r.URL.Path), zap.Error(err))
		httpx.WriteError(w, r, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

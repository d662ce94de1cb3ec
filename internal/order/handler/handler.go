package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/fekuna/omnipos-backoffice/internal/auth"
	"github.com/fekuna/omnipos-backoffice/internal/httpx"
	"github.com/fekuna/omnipos-backoffice/internal/inventory"
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/order"
	"github.com/fekuna/omnipos-backoffice/internal/order/dto"
	"github.com/fekuna/omnipos-backoffice/internal/product"
	"github.com/fekuna/omnipos-backoffice/pkg/database"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

type OrderHandler struct {
	uc     order.UseCase
	logger logger.ZapLogger
}

func NewOrderHandler(uc order.UseCase, log logger.ZapLogger) *OrderHandler {
	return &OrderHandler{
		uc:     uc,
		logger: log,
	}
}

// Register mounts the order routes on r (expected under /api/orders).
func (h *OrderHandler) Register(r chi.Router) {
	r.Post("/", h.CreateOrder)
	r.Get("/", h.ListOrders)
	r.Get("/{id}", h.GetOrder)
	r.Patch("/{id}/status", h.UpdateStatus)
}

type createOrderRequest struct {
	Customer      *model.Customer `json:"customer"`
	Items         []dto.LineInput `json:"items"`
	Discount      decimal.Decimal `json:"discount"`
	PaymentMethod string          `json:"paymentMethod"`
	Notes         string          `json:"notes"`
}

type updateStatusRequest struct {
	OrderStatus    *string `json:"orderStatus"`
	PaymentStatus  *string `json:"paymentStatus"`
	ReceiptPrinted *bool   `json:"receiptPrinted"`
}

type transitionResponse struct {
	Order               *model.Order             `json:"order"`
	StockRestored       bool                     `json:"stockRestored"`
	RestorationFailures []dto.RestorationFailure `json:"restorationFailures,omitempty"`
	Partial             bool                     `json:"partial"`
}

type listResponse struct {
	Orders   []model.Order `json:"orders"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, httpx.DecodeError(err, nil))
		return
	}

	input := &dto.CreateOrderInput{
		Items:          req.Items,
		Discount:       req.Discount,
		PaymentMethod:  req.PaymentMethod,
		Notes:          req.Notes,
		UserID:         auth.GetUserID(r.Context()),
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
	}
	if req.Customer != nil {
		input.Customer = *req.Customer
	}

	res, err := h.uc.CreateOrder(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res.Replayed {
		w.Header().Set(HeaderReplayed, "true")
		httpx.Success(w, http.StatusOK, "order already created", res.Order)
		return
	}
	httpx.Success(w, http.StatusCreated, "order created", res.Order)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.uc.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, "", o)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := &dto.OrderFilters{
		OrderStatus:   q.Get("orderStatus"),
		PaymentStatus: q.Get("paymentStatus"),
		Search:        q.Get("search"),
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("pageSize"))

	orders, total, err := h.uc.ListOrders(r.Context(), filters)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, "", listResponse{
		Orders:   orders,
		Total:    total,
		Page:     filters.Page,
		PageSize: filters.PageSize,
	})
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, httpx.DecodeError(err, nil))
		return
	}

	res, err := h.uc.TransitionStatus(r.Context(), &dto.TransitionInput{
		OrderID:        chi.URLParam(r, "id"),
		OrderStatus:    req.OrderStatus,
		PaymentStatus:  req.PaymentStatus,
		ReceiptPrinted: req.ReceiptPrinted,
		UserID:         auth.GetUserID(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	msg := "order status updated"
	if res.Partial() {
		msg = "order status updated, some stock could not be restored"
	}
	httpx.Success(w, http.StatusOK, msg, transitionResponse{
		Order:               res.Order,
		StockRestored:       res.StockRestored,
		RestorationFailures: res.RestorationFailures,
		Partial:             res.Partial(),
	})
}

func (h *OrderHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := mapError(err); ok {
		httpx.WriteError(w, r, e)
		return
	}
	h.logger.Error("order request failed", zap.String("path", r.URL.Path), zap.Error(err))
	httpx.WriteError(w, r, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
}

// mapError turns the order error taxonomy into envelopes. Line failures carry
// the offending line in details.
func mapError(err error) (httpx.Error, bool) {
	var details interface{} = map[string]interface{}{"reason": err.Error()}
	subject := "item"

	var lineErr *order.LineError
	if errors.As(err, &lineErr) {
		details = map[string]interface{}{
			"line":    lineErr.Index,
			"product": lineErr.ProductID,
			"variant": lineErr.VariantID,
			"reason":  lineErr.Err.Error(),
		}
		subject = lineErr.ProductName
		if subject == "" {
			subject = lineErr.ProductID
		}
	}

	var e httpx.Error
	switch {
	case errors.Is(err, order.ErrEmptyOrder):
		e = httpx.NewError("empty_order", "order must contain at least one item", http.StatusBadRequest)
	case errors.Is(err, order.ErrInvalidDiscount):
		e = httpx.NewError("invalid_discount", "discount cannot be negative", http.StatusBadRequest)
	case errors.Is(err, order.ErrNoChanges):
		e = httpx.NewError("no_changes", "nothing to update", http.StatusBadRequest)
	case errors.Is(err, model.ErrInvalidOrderStatus), errors.Is(err, model.ErrInvalidPaymentStatus):
		e = httpx.NewError("invalid_status", "unknown order or payment status", http.StatusBadRequest)
	case errors.Is(err, model.ErrInvalidUnit), errors.Is(err, model.ErrInvalidSellMode):
		e = httpx.NewError("invalid_unit", "invalid unit or sell mode", http.StatusBadRequest)
	case errors.Is(err, model.ErrNonPositiveQuantity):
		e = httpx.NewError("invalid_quantity", "quantity must be greater than zero", http.StatusBadRequest)
	case errors.Is(err, product.ErrUnitMismatch):
		e = httpx.NewError("unit_mismatch", "unit does not match the variant's stock unit", http.StatusBadRequest)
	case errors.Is(err, product.ErrSellModeMismatch):
		e = httpx.NewError("sell_mode_mismatch", "sell mode mismatch", http.StatusBadRequest)
	case errors.Is(err, order.ErrInvalidInput), errors.Is(err, product.ErrInvalidID), errors.Is(err, model.ErrInvalidPaymentMethod),
		errors.Is(err, database.ErrConstraint):
		e = httpx.NewError("invalid_request", "invalid request", http.StatusBadRequest)
	case errors.Is(err, product.ErrProductNotFound):
		e = httpx.NewError("product_not_found", "product not found", http.StatusNotFound)
	case errors.Is(err, product.ErrVariantNotFound):
		e = httpx.NewError("variant_not_found", "variant not found", http.StatusNotFound)
	case errors.Is(err, product.ErrProductInactive):
		e = httpx.NewError("product_inactive", "product is not active", http.StatusUnprocessableEntity)
	case errors.Is(err, product.ErrVariantInactive):
		e = httpx.NewError("variant_inactive", "variant is not active", http.StatusUnprocessableEntity)
	case errors.Is(err, inventory.ErrInsufficientStock):
		e = httpx.NewError("insufficient_stock", "insufficient stock", http.StatusConflict).
			WithData(map[string]interface{}{"Product": subject})
	case errors.Is(err, order.ErrOrderNotFound):
		return httpx.NewError("order_not_found", "order not found", http.StatusNotFound), true
	case errors.Is(err, order.ErrIdempotencyInProgress):
		return httpx.NewError("idempotency_in_progress", "request in progress", http.StatusConflict), true
	case errors.Is(err, order.ErrIdempotencyMismatch):
		return httpx.NewError("idempotency_mismatch", "idempotency key reused", http.StatusUnprocessableEntity), true
	case errors.Is(err, database.ErrConflict):
		return httpx.NewError("conflict", "concurrent modification", http.StatusConflict), true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return httpx.NewError("order_interrupted", "request cancelled", http.StatusServiceUnavailable), true
	default:
		return httpx.Error{}, false
	}
	return e.WithDetails(details), true
}

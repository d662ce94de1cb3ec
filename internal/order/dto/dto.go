package dto

import (
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/model"
)

type OrderFilters struct {
	OrderStatus   string
	PaymentStatus string
	Search        string // order number, customer name or phone
	Page          int
	PageSize      int
}

// Normalize clamps paging to sane bounds.
func (f *OrderFilters) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
}

// StatusUpdate is a compare-and-swap on an order's mutable fields. It applies
// only while the stored row still holds the Expect* values.
type StatusUpdate struct {
	ID string

	ExpectOrderStatus   model.OrderStatus
	ExpectPaymentStatus model.PaymentStatus
	ExpectStockRestored bool

	OrderStatus     model.OrderStatus
	PaymentStatus   model.PaymentStatus
	ReceiptPrinted  bool
	StockRestored   bool
	StockRestoredAt *time.Time
	UpdatedAt       time.Time
}

type CreateResult struct {
	Order *model.Order
	// Replayed is set when the order was created by an earlier request with
	// the same idempotency key.
	Replayed bool
}

// RestorationFailure is a line whose stock could not be given back.
type RestorationFailure struct {
	LineNo    int    `json:"lineNo"`
	ProductID string `json:"product"`
	VariantID string `json:"variant"`
	Reason    string `json:"reason"`
}

type TransitionResult struct {
	Order               *model.Order         `json:"order"`
	StockRestored       bool                 `json:"stockRestored"`
	RestorationFailures []RestorationFailure `json:"restorationFailures,omitempty"`
}

// Partial reports a status change that committed while some stock could not be restored.
func (r *TransitionResult) Partial() bool {
	return len(r.RestorationFailures) > 0
}

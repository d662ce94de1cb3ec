package dto

import (
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/shopspring/decimal"
)

type CreateOrderInput struct {
	Customer      model.Customer
	Items         []LineInput
	Discount      decimal.Decimal
	PaymentMethod string
	Notes         string
	UserID        string
	// IdempotencyKey is optional; a retried request carrying the same key gets
	// the order created by the first attempt.
	IdempotencyKey string
}

// LineInput is one requested line as the client sent it. Unit and SellMode are
// parsed by the processor so that a bad value is reported against its line.
type LineInput struct {
	ProductID string          `json:"product"`
	VariantID string          `json:"variant"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      string          `json:"unit"`
	SellMode  string          `json:"sellMode"`
}

// TransitionInput changes any subset of the mutable order fields. Nil means unchanged.
type TransitionInput struct {
	OrderID        string
	OrderStatus    *string
	PaymentStatus  *string
	ReceiptPrinted *bool
	UserID         string
}

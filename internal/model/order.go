package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOrderStatus   = errors.New("model: invalid order status")
	ErrInvalidPaymentStatus = errors.New("model: invalid payment status")
	ErrInvalidPaymentMethod = errors.New("model: invalid payment method")
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrderStatus, s)
	}
	return st, nil
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusReady, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusPartial  PaymentStatus = "partial"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	st := PaymentStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentStatus, s)
	}
	return st, nil
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusPartial, PaymentStatusRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodOnline PaymentMethod = "online"
	PaymentMethodOther  PaymentMethod = "other"
)

// ParsePaymentMethod defaults an empty value to cash.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PaymentMethodCash, nil
	}
	m := PaymentMethod(s)
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodOnline, PaymentMethodOther:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, s)
}

type Customer struct {
	Name  string  `json:"name"`
	Phone string  `json:"phone"`
	Email *string `json:"email,omitempty"`
}

type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	Customer        Customer        `json:"customer"`
	Items           []OrderLineItem `json:"items"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Discount        decimal.Decimal `json:"discount"`
	FinalAmount     decimal.Decimal `json:"finalAmount"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	OrderStatus     OrderStatus     `json:"orderStatus"`
	StockRestored   bool            `json:"stockRestored"`
	StockRestoredAt *time.Time      `json:"stockRestoredAt,omitempty"`
	ReceiptPrinted  bool            `json:"receiptPrinted"`
	HandledBy       *string         `json:"handledBy,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// OrderLineItem is frozen at order time. BaseQuantity is what was debited from stock.
type OrderLineItem struct {
	ID                string          `db:"id" json:"id"`
	OrderID           string          `db:"order_id" json:"-"`
	LineNo            int             `db:"line_no" json:"lineNo"`
	ProductID         string          `db:"product_id" json:"product"`
	VariantID         string          `db:"variant_id" json:"variant"`
	ProductName       string          `db:"product_name" json:"productName"`
	SKU               string          `db:"sku" json:"sku"`
	RequestedQuantity decimal.Decimal `db:"requested_quantity" json:"quantity"`
	RequestedUnit     Unit            `db:"requested_unit" json:"unit"`
	SellMode          SellMode        `db:"sell_mode" json:"sellMode"`
	BaseQuantity      decimal.Decimal `db:"base_quantity" json:"baseQuantity"`
	BaseUnit          BaseUnit        `db:"base_unit" json:"baseUnit"`
	UnitPrice         decimal.Decimal `db:"unit_price" json:"unitPrice"`
	Subtotal          decimal.Decimal `db:"subtotal" json:"subtotal"`
}

// Totals sums line subtotals and applies discount. The final amount is not
// clamped at zero.
func Totals(items []OrderLineItem, discount decimal.Decimal) (total, final decimal.Decimal) {
	total = decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal)
	}
	return total, total.Sub(discount)
}

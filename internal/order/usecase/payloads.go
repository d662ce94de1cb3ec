package usecase

import (
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/order/dto"
	"github.com/shopspring/decimal"
)

type eventItem struct {
	LineNo    int             `json:"line_no"`
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      model.BaseUnit  `json:"unit"`
}

type orderCreatedPayload struct {
	OrderID       string              `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	Discount      decimal.Decimal     `json:"discount"`
	FinalAmount   decimal.Decimal     `json:"final_amount"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	HandledBy     *string             `json:"handled_by,omitempty"`
	Items         []eventItem         `json:"items"`
}

type statusChangedPayload struct {
	OrderID               string              `json:"order_id"`
	OrderNumber           string              `json:"order_number"`
	PreviousOrderStatus   model.OrderStatus   `json:"previous_order_status"`
	OrderStatus           model.OrderStatus   `json:"order_status"`
	PreviousPaymentStatus model.PaymentStatus `json:"previous_payment_status"`
	PaymentStatus         model.PaymentStatus `json:"payment_status"`
	ReceiptPrinted        bool                `json:"receipt_printed"`
	ChangedBy             string              `json:"changed_by,omitempty"`
}

type stockRestoredPayload struct {
	OrderID     string                   `json:"order_id"`
	OrderNumber string                   `json:"order_number"`
	Trigger     string                   `json:"trigger"`
	Items       []eventItem              `json:"items"`
	Failures    []dto.RestorationFailure `json:"failures,omitempty"`
}

func itemsOf(lines []model.OrderLineItem) []eventItem {
	out := make([]eventItem, 0, len(lines))
	for _, l := range lines {
		out = append(out, eventItem{
			LineNo:    l.LineNo,
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.BaseQuantity,
			Unit:      l.BaseUnit,
		})
	}
	return out
}

package dto

import (
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/shopspring/decimal"
)

// AdjustStockInput is a manual or supplier-driven stock change. A positive
// QuantityChange credits, a negative one debits.
type AdjustStockInput struct {
	VariantID      string
	QuantityChange decimal.Decimal
	Type           model.MovementType // restock, adjustment or return; derived from the sign when empty
	Reason         string
	ReferenceType  string
	ReferenceID    string
	UserID         string
}

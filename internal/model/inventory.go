package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementSale       MovementType = "sale"
	MovementReturn     MovementType = "return"
	MovementRestock    MovementType = "restock"
	MovementAdjustment MovementType = "adjustment"
	MovementRollback   MovementType = "rollback"
)

const (
	ReferenceOrder    = "order"
	ReferenceDelivery = "delivery"
	ReferenceManual   = "manual"
)

// StockMovement is one audited change to a variant's stock.
type StockMovement struct {
	ID             string          `db:"id" json:"id"`
	ProductID      string          `db:"product_id" json:"productId"`
	VariantID      string          `db:"variant_id" json:"variantId"`
	MovementType   MovementType    `db:"movement_type" json:"movementType"`
	QuantityChange decimal.Decimal `db:"quantity_change" json:"quantityChange"`
	QuantityBefore decimal.Decimal `db:"quantity_before" json:"quantityBefore"`
	QuantityAfter  decimal.Decimal `db:"quantity_after" json:"quantityAfter"`
	ReferenceType  *string         `db:"reference_type" json:"referenceType,omitempty"`
	ReferenceID    *string         `db:"reference_id" json:"referenceId,omitempty"`
	Notes          string          `db:"notes" json:"notes"`
	CreatedBy      *string         `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

package dto

import (
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/shopspring/decimal"
)

type CreateProductInput struct {
	Name        string
	Description string
	CategoryID  string
	ProductType string
	Variants    []CreateVariantInput
}

type UpdateProductInput struct {
	ID          string
	Name        string
	Description string
	CategoryID  string
	ProductType string
	IsActive    bool
}

type CreateVariantInput struct {
	ProductID    string
	SKU          string
	SellMode     model.SellMode
	BaseUnit     model.BaseUnit
	BuyingPrice  decimal.Decimal
	SellingPrice decimal.Decimal
	Stock        decimal.Decimal // opening balance
	MinThreshold decimal.Decimal
}

// UpdateVariantInput changes commercial fields only. Sell mode and base unit are
// fixed at creation; stock moves through the inventory ledger.
type UpdateVariantInput struct {
	ProductID    string
	VariantID    string
	BuyingPrice  *decimal.Decimal
	SellingPrice *decimal.Decimal
	MinThreshold *decimal.Decimal
	IsActive     *bool
}

package dto

import (
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/shopspring/decimal"
)

type VariantStock struct {
	VariantID    string          `db:"variant_id" json:"variantId"`
	ProductID    string          `db:"product_id" json:"productId"`
	ProductName  string          `db:"product_name" json:"productName"`
	SKU          string          `db:"sku" json:"sku"`
	SellMode     model.SellMode  `db:"sell_mode" json:"sellMode"`
	BaseUnit     model.BaseUnit  `db:"base_unit" json:"unit"`
	Stock        decimal.Decimal `db:"stock" json:"stock"`
	MinThreshold decimal.Decimal `db:"min_threshold" json:"minThreshold"`
	IsActive     bool            `db:"is_active" json:"isActive"`
	LowStock     bool            `db:"-" json:"lowStock"`
}

type MovementFilters struct {
	ProductID     string
	VariantID     string
	MovementType  string
	ReferenceType string
	ReferenceID   string
	StartDate     *time.Time
	EndDate       *time.Time
	Page          int
	PageSize      int
}

func (f *MovementFilters) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 50
	}
	if f.PageSize > 200 {
		f.PageSize = 200
	}
}

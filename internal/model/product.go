package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidProductType = errors.New("model: invalid product type")

type ProductType string

const (
	ProductTypeAnimal    ProductType = "animal"
	ProductTypeFood      ProductType = "food"
	ProductTypeAccessory ProductType = "accessory"
	ProductTypeMedicine  ProductType = "medicine"
	ProductTypeOther     ProductType = "other"
)

func ParseProductType(s string) (ProductType, error) {
	t := ProductType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case ProductTypeAnimal, ProductTypeFood, ProductTypeAccessory, ProductTypeMedicine, ProductTypeOther:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidProductType, s)
}

type Product struct {
	BaseModel
	Name        string      `db:"name" json:"name"`
	Description string      `db:"description" json:"description"`
	CategoryID  *string     `db:"category_id" json:"categoryId,omitempty"`
	ProductType ProductType `db:"product_type" json:"productType"`
	IsActive    bool        `db:"is_active" json:"isActive"`
	Variants    []Variant   `db:"-" json:"variants"`
}

// Variant returns the variant with id, or nil.
func (p *Product) Variant(id string) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i]
		}
	}
	return nil
}

// Variant is one sellable configuration of a product. Stock is kept in BaseUnit.
type Variant struct {
	BaseModel
	ProductID    string          `db:"product_id" json:"productId"`
	SKU          string          `db:"sku" json:"sku"`
	SellMode     SellMode        `db:"sell_mode" json:"sellMode"`
	BaseUnit     BaseUnit        `db:"base_unit" json:"unit"`
	BuyingPrice  decimal.Decimal `db:"buying_price" json:"buyingPrice"`
	SellingPrice decimal.Decimal `db:"selling_price" json:"sellingPrice"`
	Stock        decimal.Decimal `db:"stock" json:"stock"`
	MinThreshold decimal.Decimal `db:"min_threshold" json:"minThreshold"`
	IsActive     bool            `db:"is_active" json:"isActive"`
}

// IsLowStock reports whether stock has fallen to the reorder threshold.
func (v *Variant) IsLowStock() bool {
	return v.Stock.LessThanOrEqual(v.MinThreshold)
}

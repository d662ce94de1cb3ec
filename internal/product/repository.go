package product

import (
	"context"

	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/product/dto"
)

// Repository stores the catalog. Variant stock is written on insert only;
// afterwards it belongs to the inventory ledger.
type Repository interface {
	Create(ctx context.Context, product *model.Product) error
	FindByID(ctx context.Context, id string) (*model.Product, error)
	FindAll(ctx context.Context, filters *dto.ProductFilters) ([]model.Product, int, error)
	Update(ctx context.Context, product *model.Product) error
	Delete(ctx context.Context, id string) error

	CreateVariant(ctx context.Context, variant *model.Variant) error
	UpdateVariant(ctx context.Context, variant *model.Variant) error
	// FindVariant returns the owning product (without variants loaded) and the variant.
	FindVariant(ctx context.Context, productID, variantID string) (*model.Product, *model.Variant, error)

	IsSKUUnique(ctx context.Context, sku, excludeVariantID string) (bool, error)
}

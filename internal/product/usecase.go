package product

import (
	"context"

	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/product/dto"
)

type UseCase interface {
	CreateProduct(ctx context.Context, input *dto.CreateProductInput) (*model.Product, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context, filters *dto.ProductFilters) ([]model.Product, int, error)
	UpdateProduct(ctx context.Context, input *dto.UpdateProductInput) (*model.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// Variant ops
	AddVariant(ctx context.Context, input *dto.CreateVariantInput) (*model.Variant, error)
	UpdateVariant(ctx context.Context, input *dto.UpdateVariantInput) (*model.Variant, error)
}

// VariantResolver finds a sellable variant for order intake.
type VariantResolver interface {
	Resolve(ctx context.Context, productID, variantID string) (*model.Product, *model.Variant, error)
}

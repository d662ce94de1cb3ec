package usecase

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/product"
	"github.com/google/uuid"
)

type Resolver struct {
	repo product.Repository
}

func NewResolver(repo product.Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns a variant that can be sold right now: both it and its product
// must exist and be active.
func (r *Resolver) Resolve(ctx context.Context, productID, variantID string) (*model.Product, *model.Variant, error) {
	if _, err := uuid.Parse(productID); err != nil {
		return nil, nil, fmt.Errorf("%w: product %q", product.ErrInvalidID, productID)
	}
	if _, err := uuid.Parse(variantID); err != nil {
		return nil, nil, fmt.Errorf("%w: variant %q", product.ErrInvalidID, variantID)
	}

	p, v, err := r.repo.FindVariant(ctx, productID, variantID)
	if err != nil {
		return nil, nil, err
	}
	if !p.IsActive {
		return nil, nil, fmt.Errorf("%w: %s", product.ErrProductInactive, p.Name)
	}
	if !v.IsActive {
		return nil, nil, fmt.Errorf("%w: %s", product.ErrVariantInactive, v.SKU)
	}
	return p, v, nil
}

package order

import (
	"context"

	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/order/dto"
)

type Repository interface {
	// Create stores the order and its line items together.
	Create(ctx context.Context, o *model.Order) error
	FindByID(ctx context.Context, id string) (*model.Order, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.Order, error)
	FindAll(ctx context.Context, filters *dto.OrderFilters) ([]model.Order, int, error)
	// UpdateStatus returns database.ErrConflict when the stored fields no longer
	// match the update's expectations.
	UpdateStatus(ctx context.Context, update *dto.StatusUpdate) error
}

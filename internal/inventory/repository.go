package inventory

import (
	"context"

	"github.com/fekuna/omnipos-backoffice/internal/inventory/dto"
	"github.com/fekuna/omnipos-backoffice/internal/model"
)

// Repository is the storage primitive beneath the ledger. Debit and Credit change
// the variant's stock and record m in one atomic step, filling in ProductID,
// QuantityBefore and QuantityAfter.
type Repository interface {
	// Debit subtracts -m.QuantityChange only if enough stock remains, otherwise
	// ErrInsufficientStock.
	Debit(ctx context.Context, m *model.StockMovement) error
	Credit(ctx context.Context, m *model.StockMovement) error

	GetVariantStock(ctx context.Context, variantID string) (*dto.VariantStock, error)
	ListLowStock(ctx context.Context, page, pageSize int) ([]dto.VariantStock, int, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)
}

package inventory

import (
	"context"

	"github.com/fekuna/omnipos-backoffice/internal/inventory/dto"
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/shopspring/decimal"
)

// StockChange describes one debit or credit. Amount is in the variant's base unit.
type StockChange struct {
	VariantID     string
	Amount        decimal.Decimal
	MovementType  model.MovementType
	ReferenceType string
	ReferenceID   string
	Notes         string
	Actor         string
}

// Ledger owns variant stock. A zero amount is a no-op and returns a nil movement.
type Ledger interface {
	TryDebit(ctx context.Context, change StockChange) (*model.StockMovement, error)
	Credit(ctx context.Context, change StockChange) (*model.StockMovement, error)
}

type UseCase interface {
	Ledger

	AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*model.StockMovement, error)
	GetVariantStock(ctx context.Context, variantID string) (*dto.VariantStock, error)
	ListLowStock(ctx context.Context, page, pageSize int) ([]dto.VariantStock, int, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)
}

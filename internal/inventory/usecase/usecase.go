package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/inventory"
	"github.com/fekuna/omnipos-backoffice/internal/inventory/dto"
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/pkg/cache"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	lockTTL      = 5 * time.Second
	lockAttempts = 3
	lockBackoff  = 100 * time.Millisecond
)

type inventoryUseCase struct {
	repo   inventory.Repository
	cache  *cache.RedisClient
	logger logger.ZapLogger
}

// NewInventoryUseCase builds the ledger. cache is optional; without it manual
// adjustments rely on the repository's own atomicity.
func NewInventoryUseCase(repo inventory.Repository, cache *cache.RedisClient, log logger.ZapLogger) inventory.UseCase {
	return &inventoryUseCase{
		repo:   repo,
		cache:  cache,
		logger: log,
	}
}

func (uc *inventoryUseCase) TryDebit(ctx context.Context, change inventory.StockChange) (*model.StockMovement, error) {
	if err := validateAmount(change); err != nil {
		return nil, err
	}
	if change.Amount.IsZero() {
		return nil, nil
	}

	m := newMovement(change)
	m.QuantityChange = change.Amount.Neg()
	if err := uc.repo.Debit(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (uc *inventoryUseCase) Credit(ctx context.Context, change inventory.StockChange) (*model.StockMovement, error) {
	if err := validateAmount(change); err != nil {
		return nil, err
	}
	if change.Amount.IsZero() {
		return nil, nil
	}

	m := newMovement(change)
	m.QuantityChange = change.Amount
	if err := uc.repo.Credit(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (uc *inventoryUseCase) AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*model.StockMovement, error) {
	if _, err := uuid.Parse(input.VariantID); err != nil {
		return nil, fmt.Errorf("%w: variant %q", inventory.ErrInvalidInput, input.VariantID)
	}
	if input.QuantityChange.IsZero() {
		return nil, fmt.Errorf("%w: quantity change must not be zero", inventory.ErrInvalidAmount)
	}

	movementType := input.Type
	switch movementType {
	case "":
		movementType = model.MovementAdjustment
		if input.QuantityChange.IsPositive() {
			movementType = model.MovementRestock
		}
	case model.MovementRestock, model.MovementReturn:
		if input.QuantityChange.IsNegative() {
			return nil, fmt.Errorf("%w: %s must add stock", inventory.ErrInvalidInput, movementType)
		}
	case model.MovementAdjustment:
	default:
		return nil, fmt.Errorf("%w: movement type %q cannot be applied manually", inventory.ErrInvalidInput, movementType)
	}

	referenceType := input.ReferenceType
	if referenceType == "" {
		referenceType = model.ReferenceManual
	}

	release, err := uc.lock(ctx, input.VariantID)
	if err != nil {
		return nil, err
	}
	defer release()

	change := inventory.StockChange{
		VariantID:     input.VariantID,
		Amount:        input.QuantityChange.Abs(),
		MovementType:  movementType,
		ReferenceType: referenceType,
		ReferenceID:   input.ReferenceID,
		Notes:         strings.TrimSpace(input.Reason),
		Actor:         input.UserID,
	}

	var m *model.StockMovement
	if input.QuantityChange.IsPositive() {
		m, err = uc.Credit(ctx, change)
	} else {
		m, err = uc.TryDebit(ctx, change)
	}
	if err != nil {
		return nil, err
	}

	uc.logger.Info("stock adjusted",
		zap.String("variant_id", m.VariantID),
		zap.String("type", string(m.MovementType)),
		zap.String("change", m.QuantityChange.String()),
		zap.String("stock", m.QuantityAfter.String()),
	)
	return m, nil
}

// lock serializes manual adjustments of one variant across instances.
func (uc *inventoryUseCase) lock(ctx context.Context, variantID string) (func(), error) {
	if uc.cache == nil {
		return func() {}, nil
	}

	lockKey := fmt.Sprintf("lock:inventory:%s", variantID)
	lockValue := uuid.New().String()

	acquired := false
	for i := 0; i < lockAttempts; i++ {
		ok, err := uc.cache.AcquireLock(ctx, lockKey, lockValue, lockTTL)
		if err != nil {
			uc.logger.Error("failed to acquire lock redis error", zap.Error(err))
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockBackoff):
		}
	}
	if !acquired {
		return nil, inventory.ErrBusy
	}

	return func() {
		if err := uc.cache.ReleaseLock(context.WithoutCancel(ctx), lockKey, lockValue); err != nil {
			uc.logger.Warn("failed to release inventory lock", zap.String("key", lockKey), zap.Error(err))
		}
	}, nil
}

func (uc *inventoryUseCase) GetVariantStock(ctx context.Context, variantID string) (*dto.VariantStock, error) {
	if _, err := uuid.Parse(variantID); err != nil {
		return nil, fmt.Errorf("%w: variant %q", inventory.ErrInvalidInput, variantID)
	}
	return uc.repo.GetVariantStock(ctx, variantID)
}

func (uc *inventoryUseCase) ListLowStock(ctx context.Context, page, pageSize int) ([]dto.VariantStock, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return uc.repo.ListLowStock(ctx, page, pageSize)
}

func (uc *inventoryUseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error) {
	filters.Normalize()
	return uc.repo.ListMovements(ctx, filters)
}

func validateAmount(change inventory.StockChange) error {
	if change.VariantID == "" {
		return fmt.Errorf("%w: variant id is required", inventory.ErrInvalidInput)
	}
	if change.Amount.IsNegative() {
		return fmt.Errorf("%w: %s is negative", inventory.ErrInvalidAmount, change.Amount)
	}
	if !model.FitsStockScale(change.Amount) {
		return fmt.Errorf("%w: %s has more than %d decimal places", inventory.ErrInvalidAmount, change.Amount, model.StockScale)
	}
	return nil
}

func newMovement(change inventory.StockChange) *model.StockMovement {
	m := &model.StockMovement{
		ID:           uuid.New().String(),
		VariantID:    change.VariantID,
		MovementType: change.MovementType,
		Notes:        change.Notes,
		CreatedAt:    time.Now().UTC(),
	}
	if change.ReferenceType != "" {
		refType := change.ReferenceType
		m.ReferenceType = &refType
	}
	if change.ReferenceID != "" {
		refID := change.ReferenceID
		m.ReferenceID = &refID
	}
	if change.Actor != "" && change.Actor != "unknown" {
		actor := change.Actor
		m.CreatedBy = &actor
	}
	return m
}

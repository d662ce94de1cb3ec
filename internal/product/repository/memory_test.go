package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/product"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, repo *MemoryRepository, stock string) (*model.Product, model.Variant) {
	t.Helper()
	now := time.Now()
	p := &model.Product{
		BaseModel:   model.BaseModel{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now},
		Name:        "Dog Food",
		ProductType: model.ProductTypeFood,
		IsActive:    true,
	}
	v := model.Variant{
		BaseModel:    model.BaseModel{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now},
		ProductID:    p.ID,
		SKU:          "DOG-" + p.ID[:8],
		SellMode:     model.SellModePackaged,
		BaseUnit:     model.BasePiece,
		SellingPrice: decimal.NewFromInt(1000),
		Stock:        decimal.RequireFromString(stock),
		IsActive:     true,
	}
	p.Variants = []model.Variant{v}
	require.NoError(t, repo.Create(context.Background(), p))
	return p, v
}

func TestUpdateVariantStockIsSerialized(t *testing.T) {
	repo := NewMemoryRepository()
	_, v := seed(t, repo, "0")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.UpdateVariantStock(v.ID, func(_ string, cur decimal.Decimal) (decimal.Decimal, error) {
				return cur.Add(decimal.NewFromInt(1)), nil
			})
		}()
	}
	wg.Wait()

	_, got, err := repo.FindVariant(context.Background(), v.ProductID, v.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.Equal(decimal.NewFromInt(50)), got.Stock.String())
}

func TestUpdateVariantStockErrorLeavesStock(t *testing.T) {
	repo := NewMemoryRepository()
	p, v := seed(t, repo, "5")

	boom := errors.New("boom")
	err := repo.UpdateVariantStock(v.ID, func(productID string, cur decimal.Decimal) (decimal.Decimal, error) {
		assert.Equal(t, p.ID, productID)
		return decimal.Zero, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.FindByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, got.Variants[0].Stock.Equal(decimal.NewFromInt(5)))

	err = repo.UpdateVariantStock(uuid.NewString(), func(string, decimal.Decimal) (decimal.Decimal, error) {
		t.Fatal("must not be called")
		return decimal.Zero, nil
	})
	assert.ErrorIs(t, err, product.ErrVariantNotFound)
}

func TestDeleteDropsStockCells(t *testing.T) {
	repo := NewMemoryRepository()
	p, v := seed(t, repo, "5")

	require.NoError(t, repo.Delete(context.Background(), p.ID))
	err := repo.UpdateVariantStock(v.ID, func(_ string, cur decimal.Decimal) (decimal.Decimal, error) { return cur, nil })
	assert.ErrorIs(t, err, product.ErrVariantNotFound)
}

func TestSKUUniqueness(t *testing.T) {
	repo := NewMemoryRepository()
	_, v := seed(t, repo, "1")
	ctx := context.Background()

	unique, err := repo.IsSKUUnique(ctx, v.SKU, "")
	require.NoError(t, err)
	assert.False(t, unique)

	unique, err = repo.IsSKUUnique(ctx, v.SKU, v.ID)
	require.NoError(t, err)
	assert.True(t, unique)
}

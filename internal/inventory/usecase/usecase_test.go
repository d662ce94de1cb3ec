package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/inventory"
	"github.com/fekuna/omnipos-backoffice/internal/inventory/dto"
	invrepo "github.com/fekuna/omnipos-backoffice/internal/inventory/repository"
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/product"
	productrepo "github.com/fekuna/omnipos-backoffice/internal/product/repository"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	uc      inventory.UseCase
	catalog *productrepo.MemoryRepository
}

func newFixture() *fixture {
	catalog := productrepo.NewMemoryRepository()
	return &fixture{
		uc:      NewInventoryUseCase(invrepo.NewMemoryRepository(catalog), nil, logger.NewNop()),
		catalog: catalog,
	}
}

func (f *fixture) addVariant(t testing.TB, mode model.SellMode, base model.BaseUnit, stock, threshold string) model.Variant {
	t.Helper()
	now := time.Now()
	p := &model.Product{
		BaseModel:   model.BaseModel{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now},
		Name:        "Cat Litter",
		ProductType: model.ProductTypeAccessory,
		IsActive:    true,
	}
	v := model.Variant{
		BaseModel:    model.BaseModel{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now},
		ProductID:    p.ID,
		SKU:          "LITTER-" + p.ID[:8],
		SellMode:     mode,
		BaseUnit:     base,
		SellingPrice: dec("1000"),
		Stock:        dec(stock),
		MinThreshold: dec(threshold),
		IsActive:     true,
	}
	p.Variants = []model.Variant{v}
	require.NoError(t, f.catalog.Create(context.Background(), p))
	return v
}

func (f *fixture) stock(t testing.TB, variantID string) decimal.Decimal {
	t.Helper()
	vs, err := f.uc.GetVariantStock(context.Background(), variantID)
	require.NoError(t, err)
	return vs.Stock
}

func TestTryDebit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	v := f.addVariant(t, model.SellModeLoose, model.BaseKilogram, "2.0", "0")

	m, err := f.uc.TryDebit(ctx, inventory.StockChange{
		VariantID:     v.ID,
		Amount:        dec("1.5"),
		MovementType:  model.MovementSale,
		ReferenceType: model.ReferenceOrder,
		ReferenceID:   "order-1",
	})
	require.NoError(t, err)
	assert.True(t, m.QuantityChange.Equal(dec("-1.5")))
	assert.True(t, m.QuantityBefore.Equal(dec("2")))
	assert.True(t, m.QuantityAfter.Equal(dec("0.5")))
	assert.Equal(t, v.ProductID, m.ProductID)

	_, err = f.uc.TryDebit(ctx, inventory.StockChange{VariantID: v.ID, Amount: dec("1.0"), MovementType: model.MovementSale})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.True(t, f.stock(t, v.ID).Equal(dec("0.5")))

	// exactly the remaining stock is allowed
	_, err = f.uc.TryDebit(ctx, inventory.StockChange{VariantID: v.ID, Amount: dec("0.5"), MovementType: model.MovementSale})
	require.NoError(t, err)
	assert.True(t, f.stock(t, v.ID).IsZero())
}

func TestZeroAndNegativeAmounts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	v := f.addVariant(t, model.SellModePackaged, model.BasePiece, "3", "0")

	m, err := f.uc.TryDebit(ctx, inventory.StockChange{VariantID: v.ID, Amount: decimal.Zero})
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = f.uc.Credit(ctx, inventory.StockChange{VariantID: v.ID, Amount: decimal.Zero})
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = f.uc.TryDebit(ctx, inventory.StockChange{VariantID: v.ID, Amount: dec("-1")})
	assert.ErrorIs(t, err, inventory.ErrInvalidAmount)
	_, err = f.uc.Credit(ctx, inventory.StockChange{VariantID: v.ID, Amount: dec("-1")})
	assert.ErrorIs(t, err, inventory.ErrInvalidAmount)

	assert.True(t, f.stock(t, v.ID).Equal(dec("3")))

	_, total, err := f.uc.ListMovements(ctx, &dto.MovementFilters{VariantID: v.ID})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAmountsFinerThanStockPrecision(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	v := f.addVariant(t, model.SellModeLoose, model.BaseLiter, "3", "0")

	_, err := f.uc.TryDebit(ctx, inventory.StockChange{VariantID: v.ID, Amount: dec("0.0000001"), MovementType: model.MovementSale})
	assert.ErrorIs(t, err, inventory.ErrInvalidAmount)
	_, err = f.uc.Credit(ctx, inventory.StockChange{VariantID: v.ID, Amount: dec("1.2345678"), MovementType: model.MovementReturn})
	assert.ErrorIs(t, err, inventory.ErrInvalidAmount)
	_, err = f.uc.AdjustStock(ctx, &dto.AdjustStockInput{VariantID: v.ID, QuantityChange: dec("-0.0000005")})
	assert.ErrorIs(t, err, inventory.ErrInvalidAmount)
	assert.True(t, f.stock(t, v.ID).Equal(dec("3")))

	_, err = f.uc.TryDebit(ctx, inventory.StockChange{VariantID: v.ID, Amount: dec("0.000001"), MovementType: model.MovementSale})
	require.NoError(t, err)
	assert.True(t, f.stock(t, v.ID).Equal(dec("2.999999")))
}

func TestUnknownVariant(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.uc.Credit(ctx, inventory.StockChange{VariantID: uuid.NewString(), Amount: dec("1")})
	assert.ErrorIs(t, err, product.ErrVariantNotFound)

	_, err = f.uc.TryDebit(ctx, inventory.StockChange{VariantID: uuid.NewString(), Amount: dec("1")})
	assert.ErrorIs(t, err, product.ErrVariantNotFound)
}

func TestAdjustStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	v := f.addVariant(t, model.SellModePackaged, model.BasePiece, "5", "2")

	m, err := f.uc.AdjustStock(ctx, &dto.AdjustStockInput{VariantID: v.ID, QuantityChange: dec("10"), UserID: "staff-1"})
	require.NoError(t, err)
	assert.Equal(t, model.MovementRestock, m.MovementType)
	assert.Equal(t, model.ReferenceManual, *m.ReferenceType)
	assert.Equal(t, "staff-1", *m.CreatedBy)
	assert.True(t, f.stock(t, v.ID).Equal(dec("15")))

	m, err = f.uc.AdjustStock(ctx, &dto.AdjustStockInput{VariantID: v.ID, QuantityChange: dec("-14"), Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, model.MovementAdjustment, m.MovementType)
	assert.Nil(t, m.CreatedBy)

	_, err = f.uc.AdjustStock(ctx, &dto.AdjustStockInput{VariantID: v.ID, QuantityChange: dec("-2")})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)

	tests := []struct {
		name  string
		input dto.AdjustStockInput
		want  error
	}{
		{"zero change", dto.AdjustStockInput{VariantID: v.ID}, inventory.ErrInvalidAmount},
		{"bad id", dto.AdjustStockInput{VariantID: "x", QuantityChange: dec("1")}, inventory.ErrInvalidInput},
		{"sale is reserved for orders", dto.AdjustStockInput{VariantID: v.ID, QuantityChange: dec("-1"), Type: model.MovementSale}, inventory.ErrInvalidInput},
		{"negative restock", dto.AdjustStockInput{VariantID: v.ID, QuantityChange: dec("-1"), Type: model.MovementRestock}, inventory.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.uc.AdjustStock(ctx, &tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLowStockAndMovements(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	low := f.addVariant(t, model.SellModePackaged, model.BasePiece, "1", "5")
	ok := f.addVariant(t, model.SellModeLoose, model.BaseLiter, "20", "5")

	items, total, err := f.uc.ListLowStock(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, low.ID, items[0].VariantID)
	assert.True(t, items[0].LowStock)

	_, err = f.uc.TryDebit(ctx, inventory.StockChange{VariantID: ok.ID, Amount: dec("15"), MovementType: model.MovementSale})
	require.NoError(t, err)
	_, total, err = f.uc.ListLowStock(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, err = f.uc.Credit(ctx, inventory.StockChange{VariantID: ok.ID, Amount: dec("2"), MovementType: model.MovementReturn})
	require.NoError(t, err)

	movements, total, err := f.uc.ListMovements(ctx, &dto.MovementFilters{VariantID: ok.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	// newest first
	assert.Equal(t, model.MovementReturn, movements[0].MovementType)
	assert.Equal(t, model.MovementSale, movements[1].MovementType)

	_, total, err = f.uc.ListMovements(ctx, &dto.MovementFilters{MovementType: string(model.MovementSale)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

// N concurrent debits of the full remaining stock: exactly one wins.
func TestConcurrentDebitsNeverOversell(t *testing.T) {
	f := newFixture()
	v := f.addVariant(t, model.SellModeLoose, model.BaseKilogram, "2.0", "0")

	const workers = 32
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		short     atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.uc.TryDebit(context.Background(), inventory.StockChange{
				VariantID: v.ID, Amount: dec("2.0"), MovementType: model.MovementSale,
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case assert.ErrorIs(t, err, inventory.ErrInsufficientStock):
				short.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, succeeded.Load())
	assert.EqualValues(t, workers-1, short.Load())
	assert.True(t, f.stock(t, v.ID).IsZero())
}

func TestDifferentVariantsDoNotShareALock(t *testing.T) {
	f := newFixture()
	a := f.addVariant(t, model.SellModePackaged, model.BasePiece, "100", "0")
	b := f.addVariant(t, model.SellModePackaged, model.BasePiece, "100", "0")

	blocked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.catalog.UpdateVariantStock(a.ID, func(_ string, cur decimal.Decimal) (decimal.Decimal, error) {
			close(blocked)
			<-release
			return cur, nil
		})
	}()
	<-blocked

	// a's lock is held; b must still be debitable
	_, err := f.uc.TryDebit(context.Background(), inventory.StockChange{VariantID: b.ID, Amount: dec("1"), MovementType: model.MovementSale})
	require.NoError(t, err)

	close(release)
	<-done
}

// For any sequence of debits and credits stock stays non-negative, debits only
// succeed when covered, and the final stock matches a sequential model.
func TestLedgerNeverNegative(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture()
		initial := rapid.Int64Range(0, 50).Draw(rt, "initial")
		v := f.addVariant(t, model.SellModeLoose, model.BaseKilogram, decimal.NewFromInt(initial).String(), "0")

		expected := decimal.NewFromInt(initial)
		ops := rapid.IntRange(1, 40).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			amount := decimal.New(rapid.Int64Range(0, 20_000).Draw(rt, "milli"), -3)
			change := inventory.StockChange{VariantID: v.ID, Amount: amount, MovementType: model.MovementAdjustment}

			if rapid.Bool().Draw(rt, "debit") {
				_, err := f.uc.TryDebit(context.Background(), change)
				if amount.GreaterThan(expected) {
					if err == nil {
						rt.Fatalf("debit of %s succeeded with only %s in stock", amount, expected)
					}
					continue
				}
				if err != nil {
					rt.Fatalf("debit of %s failed with %s in stock: %v", amount, expected, err)
				}
				expected = expected.Sub(amount)
			} else {
				if _, err := f.uc.Credit(context.Background(), change); err != nil {
					rt.Fatalf("credit: %v", err)
				}
				expected = expected.Add(amount)
			}

			got := f.stock(t, v.ID)
			if got.IsNegative() {
				rt.Fatalf("stock went negative: %s", got)
			}
			if !got.Equal(expected) {
				rt.Fatalf("stock %s, want %s", got, expected)
			}
		}
	})
}

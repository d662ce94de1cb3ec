package schema_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/inventory"
	invdto "github.com/fekuna/omnipos-backoffice/internal/inventory/dto"
	invrepo "github.com/fekuna/omnipos-backoffice/internal/inventory/repository"
	invusecase "github.com/fekuna/omnipos-backoffice/internal/inventory/usecase"
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/order"
	orderdto "github.com/fekuna/omnipos-backoffice/internal/order/dto"
	"github.com/fekuna/omnipos-backoffice/internal/order/idempotency"
	orderrepo "github.com/fekuna/omnipos-backoffice/internal/order/repository"
	orderusecase "github.com/fekuna/omnipos-backoffice/internal/order/usecase"
	productdto "github.com/fekuna/omnipos-backoffice/internal/product/dto"
	productrepo "github.com/fekuna/omnipos-backoffice/internal/product/repository"
	productusecase "github.com/fekuna/omnipos-backoffice/internal/product/usecase"
	"github.com/fekuna/omnipos-backoffice/internal/schema"
	"github.com/fekuna/omnipos-backoffice/pkg/database/postgres"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container skipped in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "omnipos",
				"POSTGRES_PASSWORD": "omnipos",
				"POSTGRES_DB":       "backoffice",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := postgres.NewPostgres(&postgres.Config{
		Host:         host,
		Port:         port.Port(),
		User:         "omnipos",
		Password:     "omnipos",
		DBName:       "backoffice",
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, schema.Migrate(ctx, db))
	// idempotent
	require.NoError(t, schema.Migrate(ctx, db))
	return db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPostgresOrderLifecycle(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	catalog := productrepo.NewPGRepository(db)
	products := productusecase.NewProductUseCase(catalog, nil, nil, "products", logger.NewNop())
	p, err := products.CreateProduct(ctx, &productdto.CreateProductInput{
		Name:        "Dog Food",
		ProductType: "food",
		CategoryID:  uuid.NewString(),
		Variants: []productdto.CreateVariantInput{{
			SKU:          "dogfood-loose",
			SellMode:     model.SellModeLoose,
			BaseUnit:     model.BaseKilogram,
			SellingPrice: dec("50000"),
			Stock:        dec("2"),
		}},
	})
	require.NoError(t, err)
	variant := p.Variants[0]

	ledger := invusecase.NewInventoryUseCase(invrepo.NewPGRepository(db), nil, logger.NewNop())
	uc, err := orderusecase.NewOrderUseCase(orderusecase.Deps{
		Repo:        orderrepo.NewPGRepository(db),
		Resolver:    productusecase.NewResolver(catalog),
		Ledger:      ledger,
		Tx:          postgres.NewTransactor(db),
		Idempotency: idempotency.NewMemoryStore(),
		Logger:      logger.NewNop(),
	})
	require.NoError(t, err)

	line := func(qty string) orderdto.LineInput {
		return orderdto.LineInput{ProductID: p.ID, VariantID: variant.ID, Quantity: dec(qty), Unit: "g", SellMode: "loose"}
	}
	res, err := uc.CreateOrder(ctx, &orderdto.CreateOrderInput{
		Customer: model.Customer{Name: "Budi", Phone: "0812"},
		Items:    []orderdto.LineInput{line("1500")},
		UserID:   "cashier-1",
	})
	require.NoError(t, err)
	o := res.Order

	stock, err := ledger.GetVariantStock(ctx, variant.ID)
	require.NoError(t, err)
	assert.True(t, stock.Stock.Equal(dec("0.5")))

	// the failing second line rolls back the first inside the transaction
	_, err = uc.CreateOrder(ctx, &orderdto.CreateOrderInput{
		Items:  []orderdto.LineInput{line("300"), line("300")},
		UserID: "cashier-1",
	})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	stock, err = ledger.GetVariantStock(ctx, variant.ID)
	require.NoError(t, err)
	assert.True(t, stock.Stock.Equal(dec("0.5")))

	cancelled := "cancelled"
	tr, err := uc.TransitionStatus(ctx, &orderdto.TransitionInput{OrderID: o.ID, OrderStatus: &cancelled, UserID: "manager-1"})
	require.NoError(t, err)
	assert.True(t, tr.StockRestored)

	refunded := "refunded"
	tr, err = uc.TransitionStatus(ctx, &orderdto.TransitionInput{OrderID: o.ID, PaymentStatus: &refunded, UserID: "manager-1"})
	require.NoError(t, err)
	assert.False(t, tr.StockRestored)

	stock, err = ledger.GetVariantStock(ctx, variant.ID)
	require.NoError(t, err)
	assert.True(t, stock.Stock.Equal(dec("2")))

	got, err := uc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].BaseQuantity.Equal(dec("1.5")))
	assert.True(t, got.StockRestored)

	movements, total, err := ledger.ListMovements(ctx, &invdto.MovementFilters{VariantID: variant.ID})
	require.NoError(t, err)
	// the failed order left no rollback rows behind
	assert.Equal(t, 2, total)
	require.Len(t, movements, 2)
	assert.Equal(t, model.MovementReturn, movements[0].MovementType)
	assert.Equal(t, model.MovementSale, movements[1].MovementType)
}

func TestPostgresConcurrentOrdersForLastStock(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	catalog := productrepo.NewPGRepository(db)
	p, err := productusecase.NewProductUseCase(catalog, nil, nil, "products", logger.NewNop()).
		CreateProduct(ctx, &productdto.CreateProductInput{
			Name:        "Cat Food",
			ProductType: "food",
			Variants: []productdto.CreateVariantInput{
				{SKU: "catfood-can", SellMode: model.SellModePackaged, BaseUnit: model.BasePiece, SellingPrice: dec("12000"), Stock: dec("3")},
				{SKU: "catfood-loose", SellMode: model.SellModeLoose, BaseUnit: model.BaseKilogram, SellingPrice: dec("40000"), Stock: dec("2")},
			},
		})
	require.NoError(t, err)
	cans, loose := p.Variants[0], p.Variants[1]

	ledger := invusecase.NewInventoryUseCase(invrepo.NewPGRepository(db), nil, logger.NewNop())
	uc, err := orderusecase.NewOrderUseCase(orderusecase.Deps{
		Repo:        orderrepo.NewPGRepository(db),
		Resolver:    productusecase.NewResolver(catalog),
		Ledger:      ledger,
		Tx:          postgres.NewTransactor(db),
		Idempotency: idempotency.NewMemoryStore(),
		Logger:      logger.NewNop(),
	})
	require.NoError(t, err)

	const buyers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		sold      int
		others    []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.CreateOrder(ctx, &orderdto.CreateOrderInput{
				Items:  []orderdto.LineInput{{ProductID: p.ID, VariantID: cans.ID, Quantity: dec("3"), Unit: "pcs", SellMode: "packaged"}},
				UserID: "cashier-1",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, inventory.ErrInsufficientStock):
				sold++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, buyers-1, sold)

	stock, err := ledger.GetVariantStock(ctx, cans.ID)
	require.NoError(t, err)
	assert.True(t, stock.Stock.IsZero())
	_, total, err := ledger.ListMovements(ctx, &invdto.MovementFilters{VariantID: cans.ID, MovementType: string(model.MovementSale)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	// 1.0005 g is 0.0010005 kg, one digit finer than the NUMERIC(18,6) column
	_, err = uc.CreateOrder(ctx, &orderdto.CreateOrderInput{
		Items:  []orderdto.LineInput{{ProductID: p.ID, VariantID: loose.ID, Quantity: dec("1.0005"), Unit: "g", SellMode: "loose"}},
		UserID: "cashier-1",
	})
	assert.ErrorIs(t, err, order.ErrInvalidInput)
	stock, err = ledger.GetVariantStock(ctx, loose.ID)
	require.NoError(t, err)
	assert.True(t, stock.Stock.Equal(dec("2")))
}

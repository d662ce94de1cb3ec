package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	invrepo "github.com/fekuna/omnipos-backoffice/internal/inventory/repository"
	invusecase "github.com/fekuna/omnipos-backoffice/internal/inventory/usecase"
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/order"
	"github.com/fekuna/omnipos-backoffice/internal/order/idempotency"
	orderrepo "github.com/fekuna/omnipos-backoffice/internal/order/repository"
	orderusecase "github.com/fekuna/omnipos-backoffice/internal/order/usecase"
	productdto "github.com/fekuna/omnipos-backoffice/internal/product/dto"
	productrepo "github.com/fekuna/omnipos-backoffice/internal/product/repository"
	productusecase "github.com/fekuna/omnipos-backoffice/internal/product/usecase"
	"github.com/fekuna/omnipos-backoffice/pkg/database"
	"github.com/fekuna/omnipos-backoffice/pkg/i18n"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"github.com/fekuna/omnipos-backoffice/pkg/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	router  http.Handler
	product string
	variant string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	i18n.Init()

	catalog := productrepo.NewMemoryRepository()
	products := productusecase.NewProductUseCase(catalog, nil, nil, "products", logger.NewNop())
	p, err := products.CreateProduct(context.Background(), &productdto.CreateProductInput{
		Name:        "Beras",
		ProductType: "food",
		Variants: []productdto.CreateVariantInput{{
			SKU:          "BERAS-LOOSE",
			SellMode:     model.SellModeLoose,
			BaseUnit:     model.BaseKilogram,
			SellingPrice: decimal.NewFromInt(14000),
			Stock:        decimal.RequireFromString("2.0"),
		}},
	})
	require.NoError(t, err)

	uc, err := orderusecase.NewOrderUseCase(orderusecase.Deps{
		Repo:        orderrepo.NewMemoryRepository(),
		Resolver:    productusecase.NewResolver(catalog),
		Ledger:      invusecase.NewInventoryUseCase(invrepo.NewMemoryRepository(catalog), nil, logger.NewNop()),
		Idempotency: idempotency.NewMemoryStore(),
		Logger:      logger.NewNop(),
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(middleware.Actor)
	r.Route("/api/orders", NewOrderHandler(uc, logger.NewNop()).Register)
	return &testAPI{router: r, product: p.ID, variant: p.Variants[0].ID}
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func (a *testAPI) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var res response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	return rec, res
}

func (a *testAPI) orderBody(grams string) string {
	return fmt.Sprintf(`{
		"customer": {"name": "Budi", "phone": "0812", "email": "Budi@Example.com"},
		"items": [{"product": %q, "variant": %q, "quantity": %s, "unit": "g", "sellMode": "loose"}],
		"paymentMethod": "card"
	}`, a.product, a.variant, grams)
}

func TestCreateOrder(t *testing.T) {
	api := newTestAPI(t)

	rec, res := api.do(t, http.MethodPost, "/api/orders", api.orderBody("1500"), "X-User-ID", "cashier-7")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, res.Success)

	var o model.Order
	require.NoError(t, json.Unmarshal(res.Data, &o))
	assert.Equal(t, "budi@example.com", *o.Customer.Email)
	assert.Equal(t, "cashier-7", *o.HandledBy)
	assert.Equal(t, model.PaymentMethodCard, o.PaymentMethod)
	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].BaseQuantity.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, o.FinalAmount.Equal(decimal.NewFromInt(21000)))

	rec, res = api.do(t, http.MethodGet, "/api/orders/"+o.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(res.Data), o.OrderNumber)
}

func TestCreateOrderWithoutCustomer(t *testing.T) {
	api := newTestAPI(t)

	body := fmt.Sprintf(`{"items":[{"product":%q,"variant":%q,"quantity":"250","unit":"g","sellMode":"loose"}]}`, api.product, api.variant)
	rec, _ := api.do(t, http.MethodPost, "/api/orders", body)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	api := newTestAPI(t)

	rec, res := api.do(t, http.MethodPost, "/api/orders", api.orderBody("2500"), "Accept-Language", "id")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, res.Success)
	assert.Equal(t, "insufficient_stock", res.Error)
	assert.Equal(t, "Stok tidak mencukupi untuk Beras.", res.Message)

	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Details, &details))
	assert.Equal(t, float64(0), details["line"])
	assert.Equal(t, api.variant, details["variant"])
}

func TestCreateOrderIdempotencyHeader(t *testing.T) {
	api := newTestAPI(t)

	rec, first := api.do(t, http.MethodPost, "/api/orders", api.orderBody("500"), HeaderIdempotencyKey, "till-3-0001")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderReplayed))

	rec, again := api.do(t, http.MethodPost, "/api/orders", api.orderBody("500"), HeaderIdempotencyKey, "till-3-0001")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(HeaderReplayed))
	assert.JSONEq(t, string(first.Data), string(again.Data))

	rec, res := api.do(t, http.MethodPost, "/api/orders", api.orderBody("700"), HeaderIdempotencyKey, "till-3-0001")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "idempotency_mismatch", res.Error)
}

func TestCreateOrderBadRequests(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"broken json", `{"items": [`, http.StatusBadRequest, "invalid_json"},
		{"no items", `{"items": []}`, http.StatusBadRequest, "empty_order"},
		{"negative discount", strings.Replace(api.orderBody("100"), `"paymentMethod"`, `"discount": -5, "paymentMethod"`, 1), http.StatusBadRequest, "invalid_discount"},
		{"unit mismatch", strings.Replace(api.orderBody("100"), `"unit": "g"`, `"unit": "ml"`, 1), http.StatusBadRequest, "unit_mismatch"},
		{"unknown unit", strings.Replace(api.orderBody("100"), `"unit": "g"`, `"unit": "oz"`, 1), http.StatusBadRequest, "invalid_unit"},
		{"sell mode", strings.Replace(api.orderBody("100"), `"sellMode": "loose"`, `"sellMode": "packaged"`, 1), http.StatusBadRequest, "sell_mode_mismatch"},
		{"zero quantity", api.orderBody("0"), http.StatusBadRequest, "invalid_quantity"},
		{"payment method", strings.Replace(api.orderBody("100"), `"card"`, `"barter"`, 1), http.StatusBadRequest, "invalid_request"},
		{"missing variant", strings.Replace(api.orderBody("100"), api.variant, "9c0e1d52-0f41-4c2b-8d55-1b6f3a2e7c90", 1), http.StatusNotFound, "variant_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, res := api.do(t, http.MethodPost, "/api/orders", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, res.Error)
		})
	}
}

func TestUpdateStatus(t *testing.T) {
	api := newTestAPI(t)
	_, res := api.do(t, http.MethodPost, "/api/orders", api.orderBody("2000"))
	var o model.Order
	require.NoError(t, json.Unmarshal(res.Data, &o))

	rec, res := api.do(t, http.MethodPatch, "/api/orders/"+o.ID+"/status", `{"orderStatus": "cancelled"}`, "X-User-ID", "manager-2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tr struct {
		Order         model.Order `json:"order"`
		StockRestored bool        `json:"stockRestored"`
		Partial       bool        `json:"partial"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &tr))
	assert.True(t, tr.StockRestored)
	assert.False(t, tr.Partial)
	assert.Equal(t, model.OrderStatusCancelled, tr.Order.OrderStatus)

	// the stock is back, so the same weight sells again
	rec, _ = api.do(t, http.MethodPost, "/api/orders", api.orderBody("2000"))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, res = api.do(t, http.MethodPatch, "/api/orders/"+o.ID+"/status", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no_changes", res.Error)

	rec, res = api.do(t, http.MethodPatch, "/api/orders/"+o.ID+"/status", `{"paymentStatus": "lost"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_status", res.Error)
}

func TestGetAndListOrders(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/api/orders", api.orderBody("100"))
	api.do(t, http.MethodPost, "/api/orders", api.orderBody("200"))

	rec, res := api.do(t, http.MethodGet, "/api/orders?pageSize=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Orders   []model.Order `json:"orders"`
		Total    int           `json:"total"`
		PageSize int           `json:"pageSize"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &list))
	assert.Len(t, list.Orders, 1)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 1, list.PageSize)

	rec, res = api.do(t, http.MethodGet, "/api/orders?orderStatus=shipped", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_status", res.Error)

	rec, res = api.do(t, http.MethodGet, "/api/orders/0b8c2a9e-3d1f-4e5a-b6c7-d8e9f0a1b2c3", "", "Accept-Language", "id")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Pesanan tidak ditemukan.", res.Message)

	rec, res = api.do(t, http.MethodGet, "/api/orders/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", res.Error)
}

func TestMapErrorInfrastructure(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("order interrupted before line 2: %w", context.Canceled), http.StatusServiceUnavailable, "order_interrupted"},
		{context.DeadlineExceeded, http.StatusServiceUnavailable, "order_interrupted"},
		{fmt.Errorf("%w: order moved on", database.ErrConflict), http.StatusConflict, "conflict"},
		{order.ErrIdempotencyInProgress, http.StatusConflict, "idempotency_in_progress"},
		{fmt.Errorf("%w: order_items_base_quantity_check", database.ErrConstraint), http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		e, ok := mapError(tt.err)
		require.True(t, ok, tt.err)
		assert.Equal(t, tt.status, e.Status)
		assert.Equal(t, tt.code, e.Code)
	}

	_, ok := mapError(errors.New("disk on fire"))
	assert.False(t, ok)
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fekuna/omnipos-backoffice/internal/auth"
	invrepo "github.com/fekuna/omnipos-backoffice/internal/inventory/repository"
	invusecase "github.com/fekuna/omnipos-backoffice/internal/inventory/usecase"
	"github.com/fekuna/omnipos-backoffice/internal/model"
	productdto "github.com/fekuna/omnipos-backoffice/internal/product/dto"
	productrepo "github.com/fekuna/omnipos-backoffice/internal/product/repository"
	productusecase "github.com/fekuna/omnipos-backoffice/internal/product/usecase"
	"github.com/fekuna/omnipos-backoffice/pkg/i18n"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"github.com/fekuna/omnipos-backoffice/pkg/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type page struct {
	Items json.RawMessage `json:"items"`
	Total int             `json:"total"`
}

func setup(t *testing.T) (http.Handler, string) {
	t.Helper()
	i18n.Init()

	catalog := productrepo.NewMemoryRepository()
	p, err := productusecase.NewProductUseCase(catalog, nil, nil, "products", logger.NewNop()).
		CreateProduct(context.Background(), &productdto.CreateProductInput{
			Name:        "Kitten Milk",
			ProductType: "food",
			Variants: []productdto.CreateVariantInput{{
				SKU:          "KMILK-200",
				SellMode:     model.SellModePackaged,
				BaseUnit:     model.BasePiece,
				SellingPrice: decimal.NewFromInt(45000),
				Stock:        decimal.NewFromInt(5),
				MinThreshold: decimal.NewFromInt(3),
			}},
		})
	require.NoError(t, err)

	uc := invusecase.NewInventoryUseCase(invrepo.NewMemoryRepository(catalog), nil, logger.NewNop())
	r := chi.NewRouter()
	r.Use(middleware.Actor)
	r.Route("/api/inventory", NewInventoryHandler(uc, logger.NewNop()).Register)
	return r, p.Variants[0].ID
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(auth.HeaderUserID, "staff-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var res response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return rec, res
}

func TestAdjustAndReadStock(t *testing.T) {
	h, variantID := setup(t)

	rec, res := do(t, h, http.MethodPost, "/api/inventory/adjustments",
		`{"variantId":"`+variantID+`","quantityChange":"12","reason":"supplier delivery"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var m model.StockMovement
	require.NoError(t, json.Unmarshal(res.Data, &m))
	assert.Equal(t, model.MovementRestock, m.MovementType)
	assert.True(t, m.QuantityAfter.Equal(decimal.NewFromInt(17)))
	require.NotNil(t, m.CreatedBy)
	assert.Equal(t, "staff-7", *m.CreatedBy)

	rec, res = do(t, h, http.MethodGet, "/api/inventory/variants/"+variantID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var vs struct {
		Stock    decimal.Decimal `json:"stock"`
		LowStock bool            `json:"lowStock"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &vs))
	assert.True(t, vs.Stock.Equal(decimal.NewFromInt(17)))
	assert.False(t, vs.LowStock)

	rec, res = do(t, h, http.MethodPost, "/api/inventory/adjustments",
		`{"variantId":"`+variantID+`","quantityChange":"-15","reason":"expired"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, res = do(t, h, http.MethodGet, "/api/inventory/low-stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var low page
	require.NoError(t, json.Unmarshal(res.Data, &low))
	assert.Equal(t, 1, low.Total)

	rec, res = do(t, h, http.MethodGet, "/api/inventory/movements?variantId="+variantID+"&type=adjustment", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var movements page
	require.NoError(t, json.Unmarshal(res.Data, &movements))
	assert.Equal(t, 1, movements.Total)
}

func TestInventoryErrors(t *testing.T) {
	h, variantID := setup(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"overdraw", http.MethodPost, "/api/inventory/adjustments", `{"variantId":"` + variantID + `","quantityChange":"-6"}`, http.StatusConflict, "insufficient_stock"},
		{"zero change", http.MethodPost, "/api/inventory/adjustments", `{"variantId":"` + variantID + `","quantityChange":"0"}`, http.StatusBadRequest, "invalid_request"},
		{"sale type", http.MethodPost, "/api/inventory/adjustments", `{"variantId":"` + variantID + `","quantityChange":"-1","type":"sale"}`, http.StatusBadRequest, "invalid_request"},
		{"unknown variant", http.MethodPost, "/api/inventory/adjustments", `{"variantId":"00000000-0000-0000-0000-000000000000","quantityChange":"1"}`, http.StatusNotFound, "variant_not_found"},
		{"bad json", http.MethodPost, "/api/inventory/adjustments", `[`, http.StatusBadRequest, "invalid_json"},
		{"bad variant id", http.MethodGet, "/api/inventory/variants/nope", "", http.StatusBadRequest, "invalid_request"},
		{"bad from", http.MethodGet, "/api/inventory/movements?from=yesterday", "", http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, res := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, res.Error)
		})
	}
}

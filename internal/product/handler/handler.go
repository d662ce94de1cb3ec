package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/fekuna/omnipos-backoffice/internal/httpx"
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/product"
	"github.com/fekuna/omnipos-backoffice/internal/product/dto"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProductHandler struct {
	uc     product.UseCase
	logger logger.ZapLogger
}

func NewProductHandler(uc product.UseCase, log logger.ZapLogger) *ProductHandler {
	return &ProductHandler{
		uc:     uc,
		logger: log,
	}
}

// Register mounts the catalog routes on r (expected under /api/products).
func (h *ProductHandler) Register(r chi.Router) {
	r.Post("/", h.CreateProduct)
	r.Get("/", h.ListProducts)
	r.Get("/{id}", h.GetProduct)
	r.Put("/{id}", h.UpdateProduct)
	r.Delete("/{id}", h.DeleteProduct)
	r.Post("/{id}/variants", h.AddVariant)
	r.Patch("/{id}/variants/{variantId}", h.UpdateVariant)
}

type variantRequest struct {
	SKU          string          `json:"sku"`
	SellMode     model.SellMode  `json:"sellMode"`
	Unit         model.BaseUnit  `json:"unit"`
	BuyingPrice  decimal.Decimal `json:"buyingPrice"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	Stock        decimal.Decimal `json:"stock"`
	MinThreshold decimal.Decimal `json:"minThreshold"`
}

func (v variantRequest) toInput(productID string) dto.CreateVariantInput {
	return dto.CreateVariantInput{
		ProductID:    productID,
		SKU:          v.SKU,
		SellMode:     v.SellMode,
		BaseUnit:     v.Unit,
		BuyingPrice:  v.BuyingPrice,
		SellingPrice: v.SellingPrice,
		Stock:        v.Stock,
		MinThreshold: v.MinThreshold,
	}
}

type productRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	CategoryID  string           `json:"categoryId"`
	ProductType string           `json:"productType"`
	IsActive    *bool            `json:"isActive"`
	Variants    []variantRequest `json:"variants"`
}

type updateVariantRequest struct {
	BuyingPrice  *decimal.Decimal `json:"buyingPrice"`
	SellingPrice *decimal.Decimal `json:"sellingPrice"`
	MinThreshold *decimal.Decimal `json:"minThreshold"`
	IsActive     *bool            `json:"isActive"`
}

type listResponse struct {
	Items    []model.Product `json:"items"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, httpx.DecodeError(err, mapError))
		return
	}

	input := &dto.CreateProductInput{
		Name:        req.Name,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		ProductType: req.ProductType,
	}
	for _, v := range req.Variants {
		input.Variants = append(input.Variants, v.toInput(""))
	}

	p, err := h.uc.CreateProduct(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusCreated, "product created", p)
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.uc.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, "", p)
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := &dto.ProductFilters{
		ProductType: q.Get("productType"),
		SearchQuery: q.Get("search"),
		SortBy:      q.Get("sortBy"),
		SortOrder:   q.Get("sortOrder"),
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("pageSize"))
	if raw := q.Get("isActive"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(w, r, httpx.NewError("invalid_request", "isActive must be a boolean", http.StatusBadRequest))
			return
		}
		filters.IsActive = &active
	}

	products, total, err := h.uc.ListProducts(r.Context(), filters)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, "", listResponse{
		Items:    products,
		Total:    total,
		Page:     filters.Page,
		PageSize: filters.PageSize,
	})
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, httpx.DecodeError(err, mapError))
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	p, err := h.uc.UpdateProduct(r.Context(), &dto.UpdateProductInput{
		ID:          chi.URLParam(r, "id"),
		Name:        req.Name,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		ProductType: req.ProductType,
		IsActive:    active,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, "product updated", p)
}

func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.uc.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, "product deleted", nil)
}

func (h *ProductHandler) AddVariant(w http.ResponseWriter, r *http.Request) {
	var req variantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, httpx.DecodeError(err, mapError))
		return
	}

	input := req.toInput(chi.URLParam(r, "id"))
	v, err := h.uc.AddVariant(r.Context(), &input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusCreated, "variant created", v)
}

func (h *ProductHandler) UpdateVariant(w http.ResponseWriter, r *http.Request) {
	var req updateVariantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, httpx.DecodeError(err, mapError))
		return
	}

	v, err := h.uc.UpdateVariant(r.Context(), &dto.UpdateVariantInput{
		ProductID:    chi.URLParam(r, "id"),
		VariantID:    chi.URLParam(r, "variantId"),
		BuyingPrice:  req.BuyingPrice,
		SellingPrice: req.SellingPrice,
		MinThreshold: req.MinThreshold,
		IsActive:     req.IsActive,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, "variant updated", v)
}

func (h *ProductHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := mapError(err); ok {
		httpx.WriteError(w, r, e)
		return
	}
	h.logger.Error("catalog request failed", zap.String("path", r.URL.Path), zap.Error(err))
	httpx.WriteError(w, r, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
}

func mapError(err error) (httpx.Error, bool) {
	reason := map[string]interface{}{"reason": err.Error()}
	switch {
	case errors.Is(err, product.ErrInvalidInput),
		errors.Is(err, product.ErrInvalidID),
		errors.Is(err, model.ErrInvalidProductType):
		return httpx.NewError("invalid_request", "invalid request", http.StatusBadRequest).WithDetails(reason), true
	case errors.Is(err, model.ErrInvalidSellMode), errors.Is(err, model.ErrInvalidBaseUnit):
		return httpx.NewError("invalid_unit", "invalid unit or sell mode", http.StatusBadRequest).WithDetails(reason), true
	case errors.Is(err, product.ErrProductNotFound):
		return httpx.NewError("product_not_found", "product not found", http.StatusNotFound), true
	case errors.Is(err, product.ErrVariantNotFound):
		return httpx.NewError("variant_not_found", "variant not found", http.StatusNotFound), true
	case errors.Is(err, product.ErrDuplicateSKU):
		return httpx.NewError("duplicate_sku", "sku already exists", http.StatusConflict).WithDetails(reason), true
	}
	return httpx.Error{}, false
}

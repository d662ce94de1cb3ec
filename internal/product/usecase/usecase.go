package usecase

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/product"
	"github.com/fekuna/omnipos-backoffice/internal/product/dto"
	"github.com/fekuna/omnipos-backoffice/pkg/cache"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"github.com/fekuna/omnipos-backoffice/pkg/search"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	listCachePrefix = "products:list:"
	// Lists carry stock, so they are only cached briefly.
	listCacheTTL = 30 * time.Second
)

const productMapping = `{
	"mappings": {
		"properties": {
			"name": { "type": "text" },
			"description": { "type": "text" },
			"productType": { "type": "keyword" },
			"isActive": { "type": "boolean" },
			"variants": {
				"properties": {
					"sku": { "type": "keyword" },
					"sellMode": { "type": "keyword" }
				}
			},
			"createdAt": { "type": "date" }
		}
	}
}`

type productUseCase struct {
	repo   product.Repository
	cache  *cache.RedisClient
	es     *search.Client
	index  string
	logger logger.ZapLogger
}

// NewProductUseCase wires the catalog. cache and es are optional.
func NewProductUseCase(repo product.Repository, cache *cache.RedisClient, es *search.Client, index string, log logger.ZapLogger) product.UseCase {
	return &productUseCase{
		repo:   repo,
		cache:  cache,
		es:     es,
		index:  index,
		logger: log,
	}
}

func (uc *productUseCase) CreateProduct(ctx context.Context, input *dto.CreateProductInput) (*model.Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", product.ErrInvalidInput)
	}
	productType, err := model.ParseProductType(input.ProductType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", product.ErrInvalidInput, err)
	}
	categoryID, err := optionalID(input.CategoryID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &model.Product{
		BaseModel:   model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		CategoryID:  categoryID,
		ProductType: productType,
		IsActive:    true,
		Variants:    []model.Variant{},
	}

	seen := map[string]bool{}
	for _, in := range input.Variants {
		v, err := buildVariant(p.ID, in, now)
		if err != nil {
			return nil, err
		}
		if seen[v.SKU] {
			return nil, fmt.Errorf("%w: %s", product.ErrDuplicateSKU, v.SKU)
		}
		seen[v.SKU] = true
		if err := uc.ensureSKUUnique(ctx, v.SKU, ""); err != nil {
			return nil, err
		}
		p.Variants = append(p.Variants, v)
	}

	if err := uc.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	uc.afterWrite(p)
	return p, nil
}

func (uc *productUseCase) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", product.ErrInvalidID, id)
	}
	return uc.repo.FindByID(ctx, id)
}

func (uc *productUseCase) ListProducts(ctx context.Context, filters *dto.ProductFilters) ([]model.Product, int, error) {
	filters.Normalize()

	// 1. Cache
	cacheKey, err := uc.generateCacheKey(filters)
	if err == nil && uc.cache != nil {
		val, err := uc.cache.Client.Get(ctx, cacheKey).Result()
		if err == nil {
			var result struct {
				Products []model.Product
				Count    int
			}
			if err := json.Unmarshal([]byte(val), &result); err == nil {
				return result.Products, result.Count, nil
			}
		}
	}

	// 2. Search via Elastic when there is a query
	if filters.SearchQuery != "" && uc.es != nil {
		products, count, err := uc.searchElastic(ctx, filters)
		if err == nil {
			return products, count, nil
		}
		uc.logger.Error("ES search failed, falling back to DB", zap.Error(err))
	}

	// 3. DB
	products, count, err := uc.repo.FindAll(ctx, filters)
	if err != nil {
		return nil, 0, err
	}

	if cacheKey != "" && uc.cache != nil {
		cacheData := struct {
			Products []model.Product
			Count    int
		}{
			Products: products,
			Count:    count,
		}
		if data, err := json.Marshal(cacheData); err == nil {
			uc.cache.Client.Set(ctx, cacheKey, data, listCacheTTL)
		}
	}

	return products, count, nil
}

// searchElastic finds matching ids in the index and loads the products from the
// repository so stock is current.
func (uc *productUseCase) searchElastic(ctx context.Context, filters *dto.ProductFilters) ([]model.Product, int, error) {
	must := []map[string]interface{}{
		{
			"multi_match": map[string]interface{}{
				"query":  filters.SearchQuery,
				"fields": []string{"name^3", "variants.sku", "description"},
				"type":   "bool_prefix",
			},
		},
	}
	if filters.ProductType != "" {
		must = append(must, map[string]interface{}{"term": map[string]interface{}{"productType": filters.ProductType}})
	}
	if filters.IsActive != nil {
		must = append(must, map[string]interface{}{"term": map[string]interface{}{"isActive": *filters.IsActive}})
	}

	q := map[string]interface{}{
		"query":   map[string]interface{}{"bool": map[string]interface{}{"must": must}},
		"from":    (filters.Page - 1) * filters.PageSize,
		"size":    filters.PageSize,
		"_source": false,
	}

	res, err := uc.es.Search(ctx, uc.index, q)
	if err != nil {
		return nil, 0, err
	}

	products := make([]model.Product, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		p, err := uc.repo.FindByID(ctx, hit.ID)
		if errors.Is(err, product.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	return products, res.Hits.Total.Value, nil
}

func (uc *productUseCase) UpdateProduct(ctx context.Context, input *dto.UpdateProductInput) (*model.Product, error) {
	p, err := uc.GetProduct(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", product.ErrInvalidInput)
	}
	productType, err := model.ParseProductType(input.ProductType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", product.ErrInvalidInput, err)
	}
	categoryID, err := optionalID(input.CategoryID)
	if err != nil {
		return nil, err
	}

	p.Name = name
	p.Description = strings.TrimSpace(input.Description)
	p.ProductType = productType
	p.CategoryID = categoryID
	p.IsActive = input.IsActive
	p.UpdatedAt = time.Now().UTC()

	if err := uc.repo.Update(ctx, p); err != nil {
		return nil, err
	}

	uc.afterWrite(p)
	return p, nil
}

func (uc *productUseCase) DeleteProduct(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", product.ErrInvalidID, id)
	}
	if err := uc.repo.Delete(ctx, id); err != nil {
		return err
	}

	if uc.cache != nil {
		go uc.invalidateProductCache(context.Background())
	}
	if uc.es != nil {
		go func() {
			if err := uc.es.Delete(context.Background(), uc.index, id); err != nil {
				uc.logger.Error("failed to delete product from ES", zap.String("product_id", id), zap.Error(err))
			}
		}()
	}
	return nil
}

func (uc *productUseCase) AddVariant(ctx context.Context, input *dto.CreateVariantInput) (*model.Variant, error) {
	p, err := uc.GetProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	v, err := buildVariant(p.ID, *input, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := uc.ensureSKUUnique(ctx, v.SKU, ""); err != nil {
		return nil, err
	}
	if err := uc.repo.CreateVariant(ctx, &v); err != nil {
		return nil, err
	}

	p.Variants = append(p.Variants, v)
	uc.afterWrite(p)
	return &v, nil
}

func (uc *productUseCase) UpdateVariant(ctx context.Context, input *dto.UpdateVariantInput) (*model.Variant, error) {
	if _, err := uuid.Parse(input.ProductID); err != nil {
		return nil, fmt.Errorf("%w: product %q", product.ErrInvalidID, input.ProductID)
	}
	if _, err := uuid.Parse(input.VariantID); err != nil {
		return nil, fmt.Errorf("%w: variant %q", product.ErrInvalidID, input.VariantID)
	}

	_, v, err := uc.repo.FindVariant(ctx, input.ProductID, input.VariantID)
	if err != nil {
		return nil, err
	}

	if input.BuyingPrice != nil {
		v.BuyingPrice = *input.BuyingPrice
	}
	if input.SellingPrice != nil {
		v.SellingPrice = *input.SellingPrice
	}
	if input.MinThreshold != nil {
		v.MinThreshold = *input.MinThreshold
	}
	if input.IsActive != nil {
		v.IsActive = *input.IsActive
	}
	if err := validatePrices(v); err != nil {
		return nil, err
	}
	v.UpdatedAt = time.Now().UTC()

	if err := uc.repo.UpdateVariant(ctx, v); err != nil {
		return nil, err
	}

	if p, err := uc.repo.FindByID(ctx, v.ProductID); err == nil {
		uc.afterWrite(p)
	}
	return v, nil
}

func (uc *productUseCase) ensureSKUUnique(ctx context.Context, sku, excludeVariantID string) error {
	unique, err := uc.repo.IsSKUUnique(ctx, sku, excludeVariantID)
	if err != nil {
		return err
	}
	if !unique {
		return fmt.Errorf("%w: %s", product.ErrDuplicateSKU, sku)
	}
	return nil
}

// afterWrite refreshes the list cache and the search index in the background.
func (uc *productUseCase) afterWrite(p *model.Product) {
	if uc.cache != nil {
		go uc.invalidateProductCache(context.Background())
	}
	if uc.es != nil {
		doc := *p
		go uc.syncToElastic(context.Background(), &doc)
	}
}

func (uc *productUseCase) syncToElastic(ctx context.Context, p *model.Product) {
	if err := uc.es.CreateIndex(ctx, uc.index, productMapping); err != nil {
		uc.logger.Warn("failed to ensure product index", zap.Error(err))
	}
	if err := uc.es.Index(ctx, uc.index, p.ID, p); err != nil {
		uc.logger.Error("failed to index product", zap.String("product_id", p.ID), zap.Error(err))
	}
}

func (uc *productUseCase) generateCacheKey(filters *dto.ProductFilters) (string, error) {
	data, err := json.Marshal(filters)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%x", listCachePrefix, md5.Sum(data)), nil
}

func (uc *productUseCase) invalidateProductCache(ctx context.Context) {
	iter := uc.cache.Client.Scan(ctx, 0, listCachePrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		uc.logger.Warn("failed to scan product cache", zap.Error(err))
		return
	}
	if len(keys) > 0 {
		uc.cache.Client.Del(ctx, keys...)
	}
}

func buildVariant(productID string, in dto.CreateVariantInput, now time.Time) (model.Variant, error) {
	sku := strings.ToUpper(strings.TrimSpace(in.SKU))
	if sku == "" {
		return model.Variant{}, fmt.Errorf("%w: sku is required", product.ErrInvalidInput)
	}

	base := in.BaseUnit
	switch in.SellMode {
	case model.SellModePackaged:
		base = model.BasePiece
	case model.SellModeLoose:
		if !in.SellMode.Allows(base) {
			return model.Variant{}, fmt.Errorf("%w: loose variants are stocked in kg or L, got %s", product.ErrInvalidInput, base)
		}
	default:
		return model.Variant{}, fmt.Errorf("%w: sell mode is required", product.ErrInvalidInput)
	}

	v := model.Variant{
		BaseModel:    model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		ProductID:    productID,
		SKU:          sku,
		SellMode:     in.SellMode,
		BaseUnit:     base,
		BuyingPrice:  in.BuyingPrice,
		SellingPrice: in.SellingPrice,
		Stock:        in.Stock,
		MinThreshold: in.MinThreshold,
		IsActive:     true,
	}
	if v.Stock.IsNegative() {
		return model.Variant{}, fmt.Errorf("%w: stock cannot be negative", product.ErrInvalidInput)
	}
	if !model.FitsStockScale(v.Stock) {
		return model.Variant{}, fmt.Errorf("%w: stock has more than %d decimal places", product.ErrInvalidInput, model.StockScale)
	}
	if err := validatePrices(&v); err != nil {
		return model.Variant{}, err
	}
	return v, nil
}

func validatePrices(v *model.Variant) error {
	switch {
	case !v.SellingPrice.GreaterThan(decimal.Zero):
		return fmt.Errorf("%w: selling price must be greater than zero", product.ErrInvalidInput)
	case v.BuyingPrice.IsNegative():
		return fmt.Errorf("%w: buying price cannot be negative", product.ErrInvalidInput)
	case v.MinThreshold.IsNegative():
		return fmt.Errorf("%w: min threshold cannot be negative", product.ErrInvalidInput)
	case !model.FitsStockScale(v.MinThreshold):
		return fmt.Errorf("%w: min threshold has more than %d decimal places", product.ErrInvalidInput, model.StockScale)
	}
	return nil
}

func optionalID(id string) (*string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: category %q", product.ErrInvalidID, id)
	}
	return &id, nil
}

package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/product"
	"github.com/fekuna/omnipos-backoffice/internal/product/dto"
	"github.com/shopspring/decimal"
)

// stockCell guards one variant's stock. Debits and credits on different
// variants take different locks.
type stockCell struct {
	mu        sync.Mutex
	productID string
	stock     decimal.Decimal
}

// MemoryRepository is an in-process catalog used by tests and when no database
// is configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	products map[string]*model.Product
	cells    map[string]*stockCell
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		products: make(map[string]*model.Product),
		cells:    make(map[string]*stockCell),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[p.ID]; ok {
		return fmt.Errorf("product %s already exists", p.ID)
	}
	for _, v := range p.Variants {
		if !r.skuFreeLocked(v.SKU, "") {
			return fmt.Errorf("%w: %s", product.ErrDuplicateSKU, v.SKU)
		}
	}

	stored := *p
	stored.Variants = nil
	r.products[p.ID] = &stored
	for _, v := range p.Variants {
		r.insertVariantLocked(v)
	}
	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*model.Product, error) {
	r.mu.RLock()
	p, ok := r.products[id]
	if !ok {
		r.mu.RUnlock()
		return nil, product.ErrProductNotFound
	}
	out := r.copyLocked(p)
	r.mu.RUnlock()

	r.fillStock(out.Variants)
	return &out, nil
}

func (r *MemoryRepository) FindAll(ctx context.Context, f *dto.ProductFilters) ([]model.Product, int, error) {
	r.mu.RLock()
	matched := make([]model.Product, 0, len(r.products))
	search := strings.ToLower(f.SearchQuery)
	for _, p := range r.products {
		if f.ProductType != "" && string(p.ProductType) != f.ProductType {
			continue
		}
		if f.IsActive != nil && p.IsActive != *f.IsActive {
			continue
		}
		cp := r.copyLocked(p)
		if search != "" && !matchesSearch(&cp, search) {
			continue
		}
		matched = append(matched, cp)
	}
	r.mu.RUnlock()

	asc := strings.ToLower(f.SortOrder) == "asc"
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if f.SortBy == "name" {
			if asc {
				return a.Name < b.Name
			}
			return a.Name > b.Name
		}
		if f.SortBy == "" || !asc {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	total := len(matched)
	if f.PageSize > 0 {
		start := (f.Page - 1) * f.PageSize
		if start < 0 {
			start = 0
		}
		if start > total {
			start = total
		}
		end := start + f.PageSize
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}

	for i := range matched {
		r.fillStock(matched[i].Variants)
	}
	return matched, total, nil
}

func matchesSearch(p *model.Product, search string) bool {
	if strings.Contains(strings.ToLower(p.Name), search) {
		return true
	}
	for _, v := range p.Variants {
		if strings.Contains(strings.ToLower(v.SKU), search) {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) Update(ctx context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.products[p.ID]
	if !ok {
		return product.ErrProductNotFound
	}
	variants := stored.Variants
	*stored = *p
	stored.Variants = variants
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return product.ErrProductNotFound
	}
	for _, v := range p.Variants {
		delete(r.cells, v.ID)
	}
	delete(r.products, id)
	return nil
}

func (r *MemoryRepository) CreateVariant(ctx context.Context, v *model.Variant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[v.ProductID]; !ok {
		return product.ErrProductNotFound
	}
	if !r.skuFreeLocked(v.SKU, "") {
		return fmt.Errorf("%w: %s", product.ErrDuplicateSKU, v.SKU)
	}
	r.insertVariantLocked(*v)
	return nil
}

func (r *MemoryRepository) UpdateVariant(ctx context.Context, v *model.Variant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[v.ProductID]
	if !ok {
		return product.ErrVariantNotFound
	}
	stored := p.Variant(v.ID)
	if stored == nil {
		return product.ErrVariantNotFound
	}
	stored.BuyingPrice = v.BuyingPrice
	stored.SellingPrice = v.SellingPrice
	stored.MinThreshold = v.MinThreshold
	stored.IsActive = v.IsActive
	stored.UpdatedAt = v.UpdatedAt
	return nil
}

func (r *MemoryRepository) FindVariant(ctx context.Context, productID, variantID string) (*model.Product, *model.Variant, error) {
	r.mu.RLock()
	p, ok := r.products[productID]
	if !ok {
		r.mu.RUnlock()
		return nil, nil, product.ErrProductNotFound
	}
	v := p.Variant(variantID)
	if v == nil {
		r.mu.RUnlock()
		return nil, nil, product.ErrVariantNotFound
	}
	pc := *p
	pc.Variants = nil
	vc := *v
	r.mu.RUnlock()

	vs := []model.Variant{vc}
	r.fillStock(vs)
	return &pc, &vs[0], nil
}

func (r *MemoryRepository) IsSKUUnique(ctx context.Context, sku, excludeVariantID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.skuFreeLocked(sku, excludeVariantID), nil
}

// UpdateVariantStock runs fn while holding the variant's stock lock. fn gets the
// current stock and returns the new value; on error the stock is left untouched.
func (r *MemoryRepository) UpdateVariantStock(variantID string, fn func(productID string, current decimal.Decimal) (decimal.Decimal, error)) error {
	r.mu.RLock()
	cell, ok := r.cells[variantID]
	r.mu.RUnlock()
	if !ok {
		return product.ErrVariantNotFound
	}

	cell.mu.Lock()
	defer cell.mu.Unlock()

	next, err := fn(cell.productID, cell.stock)
	if err != nil {
		return err
	}
	cell.stock = next
	return nil
}

func (r *MemoryRepository) insertVariantLocked(v model.Variant) {
	p := r.products[v.ProductID]
	p.Variants = append(p.Variants, v)
	r.cells[v.ID] = &stockCell{productID: v.ProductID, stock: v.Stock}
}

func (r *MemoryRepository) skuFreeLocked(sku, excludeVariantID string) bool {
	for _, p := range r.products {
		for _, v := range p.Variants {
			if v.ID != excludeVariantID && strings.EqualFold(v.SKU, sku) {
				return false
			}
		}
	}
	return true
}

func (r *MemoryRepository) copyLocked(p *model.Product) model.Product {
	cp := *p
	cp.Variants = append([]model.Variant{}, p.Variants...)
	return cp
}

// fillStock reads stock from the cells; the copies in products are stale.
func (r *MemoryRepository) fillStock(vs []model.Variant) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range vs {
		cell, ok := r.cells[vs[i].ID]
		if !ok {
			continue
		}
		cell.mu.Lock()
		vs[i].Stock = cell.stock
		cell.mu.Unlock()
	}
}

package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fekuna/omnipos-backoffice/internal/inventory"
	"github.com/fekuna/omnipos-backoffice/internal/inventory/dto"
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/product"
	productdto "github.com/fekuna/omnipos-backoffice/internal/product/dto"
	productrepo "github.com/fekuna/omnipos-backoffice/internal/product/repository"
	"github.com/shopspring/decimal"
)

// MemoryRepository keeps stock in the in-memory catalog's per-variant cells and
// the movement log in a slice.
type MemoryRepository struct {
	catalog *productrepo.MemoryRepository

	mu        sync.Mutex
	movements []model.StockMovement
}

func NewMemoryRepository(catalog *productrepo.MemoryRepository) *MemoryRepository {
	return &MemoryRepository{catalog: catalog}
}

func (r *MemoryRepository) Debit(ctx context.Context, m *model.StockMovement) error {
	amount := m.QuantityChange.Neg()
	return r.catalog.UpdateVariantStock(m.VariantID, func(productID string, current decimal.Decimal) (decimal.Decimal, error) {
		if current.LessThan(amount) {
			return current, fmt.Errorf("%w: requested %s, available %s", inventory.ErrInsufficientStock, amount, current)
		}
		next := current.Sub(amount)
		r.record(m, productID, current, next)
		return next, nil
	})
}

func (r *MemoryRepository) Credit(ctx context.Context, m *model.StockMovement) error {
	err := r.catalog.UpdateVariantStock(m.VariantID, func(productID string, current decimal.Decimal) (decimal.Decimal, error) {
		next := current.Add(m.QuantityChange)
		r.record(m, productID, current, next)
		return next, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s", err, m.VariantID)
	}
	return nil
}

// record runs under the variant lock so movements of one variant are logged in
// the order they were applied.
func (r *MemoryRepository) record(m *model.StockMovement, productID string, before, after decimal.Decimal) {
	m.ProductID = productID
	m.QuantityBefore = before
	m.QuantityAfter = after

	r.mu.Lock()
	r.movements = append(r.movements, *m)
	r.mu.Unlock()
}

func (r *MemoryRepository) GetVariantStock(ctx context.Context, variantID string) (*dto.VariantStock, error) {
	all, err := r.allVariants(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].VariantID == variantID {
			return &all[i], nil
		}
	}
	return nil, product.ErrVariantNotFound
}

func (r *MemoryRepository) ListLowStock(ctx context.Context, page, pageSize int) ([]dto.VariantStock, int, error) {
	all, err := r.allVariants(ctx)
	if err != nil {
		return nil, 0, err
	}

	low := []dto.VariantStock{}
	for _, vs := range all {
		if vs.IsActive && vs.LowStock {
			low = append(low, vs)
		}
	}
	sort.Slice(low, func(i, j int) bool {
		di := low[i].Stock.Sub(low[i].MinThreshold)
		dj := low[j].Stock.Sub(low[j].MinThreshold)
		if !di.Equal(dj) {
			return di.LessThan(dj)
		}
		return low[i].SKU < low[j].SKU
	})
	return paginate(low, page, pageSize), len(low), nil
}

func (r *MemoryRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	r.mu.Lock()
	matched := make([]model.StockMovement, 0, len(r.movements))
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		switch {
		case f.ProductID != "" && m.ProductID != f.ProductID,
			f.VariantID != "" && m.VariantID != f.VariantID,
			f.MovementType != "" && string(m.MovementType) != f.MovementType,
			f.ReferenceType != "" && deref(m.ReferenceType) != f.ReferenceType,
			f.ReferenceID != "" && deref(m.ReferenceID) != f.ReferenceID,
			f.StartDate != nil && m.CreatedAt.Before(*f.StartDate),
			f.EndDate != nil && !m.CreatedAt.Before(*f.EndDate):
			continue
		}
		matched = append(matched, m)
	}
	r.mu.Unlock()

	return paginate(matched, f.Page, f.PageSize), len(matched), nil
}

func (r *MemoryRepository) allVariants(ctx context.Context) ([]dto.VariantStock, error) {
	products, _, err := r.catalog.FindAll(ctx, &productdto.ProductFilters{})
	if err != nil {
		return nil, err
	}

	out := []dto.VariantStock{}
	for _, p := range products {
		for _, v := range p.Variants {
			out = append(out, dto.VariantStock{
				VariantID:    v.ID,
				ProductID:    p.ID,
				ProductName:  p.Name,
				SKU:          v.SKU,
				SellMode:     v.SellMode,
				BaseUnit:     v.BaseUnit,
				Stock:        v.Stock,
				MinThreshold: v.MinThreshold,
				IsActive:     v.IsActive && p.IsActive,
				LowStock:     v.IsLowStock(),
			})
		}
	}
	return out, nil
}

func paginate[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

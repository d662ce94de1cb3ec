package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/order"
	"github.com/fekuna/omnipos-backoffice/internal/order/dto"
	"github.com/fekuna/omnipos-backoffice/pkg/database"
)

type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*model.Order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[string]*model.Order)}
}

func (r *MemoryRepository) Create(ctx context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	for _, existing := range r.orders {
		if existing.OrderNumber == o.OrderNumber {
			return fmt.Errorf("order number %s already exists", o.OrderNumber)
		}
	}
	stored := clone(o)
	r.orders[o.ID] = &stored
	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	out := clone(o)
	return &out, nil
}

func (r *MemoryRepository) FindByIDs(ctx context.Context, ids []string) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := r.orders[id]; ok {
			out = append(out, clone(o))
		}
	}
	return out, nil
}

func (r *MemoryRepository) FindAll(ctx context.Context, f *dto.OrderFilters) ([]model.Order, int, error) {
	search := strings.ToLower(f.Search)

	r.mu.RLock()
	matched := make([]model.Order, 0, len(r.orders))
	for _, o := range r.orders {
		switch {
		case f.OrderStatus != "" && string(o.OrderStatus) != f.OrderStatus,
			f.PaymentStatus != "" && string(o.PaymentStatus) != f.PaymentStatus,
			search != "" && !matches(o, search):
			continue
		}
		matched = append(matched, clone(o))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].OrderNumber > matched[j].OrderNumber
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
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
	return matched, total, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, u *dto.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[u.ID]
	if !ok {
		return order.ErrOrderNotFound
	}
	if o.OrderStatus != u.ExpectOrderStatus || o.PaymentStatus != u.ExpectPaymentStatus || o.StockRestored != u.ExpectStockRestored {
		return fmt.Errorf("%w: order %s changed concurrently", database.ErrConflict, u.ID)
	}

	o.OrderStatus = u.OrderStatus
	o.PaymentStatus = u.PaymentStatus
	o.ReceiptPrinted = u.ReceiptPrinted
	o.StockRestored = u.StockRestored
	o.StockRestoredAt = u.StockRestoredAt
	o.UpdatedAt = u.UpdatedAt
	return nil
}

func matches(o *model.Order, search string) bool {
	for _, field := range []string{o.OrderNumber, o.Customer.Name, o.Customer.Phone} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func clone(o *model.Order) model.Order {
	cp := *o
	cp.Items = append([]model.OrderLineItem{}, o.Items...)
	return cp
}

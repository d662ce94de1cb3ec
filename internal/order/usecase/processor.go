package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-backoffice/internal/inventory"
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/order"
	"github.com/fekuna/omnipos-backoffice/internal/order/dto"
	"github.com/fekuna/omnipos-backoffice/internal/product"
	"github.com/fekuna/omnipos-backoffice/pkg/database"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// CreateOrder debits every line and stores the order as one unit: either all
// lines are debited and the order exists, or no stock change survives.
func (uc *orderUseCase) CreateOrder(ctx context.Context, input *dto.CreateOrderInput) (*dto.CreateResult, error) {
	if len(input.Items) == 0 {
		return nil, order.ErrEmptyOrder
	}
	if input.Discount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", order.ErrInvalidDiscount, input.Discount)
	}
	method, err := model.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", order.ErrInvalidInput, err)
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" || uc.idempotency == nil {
		o, err := uc.placeWithRetry(ctx, input, method)
		if err != nil {
			return nil, err
		}
		uc.afterCreate(ctx, o)
		return &dto.CreateResult{Order: o}, nil
	}

	fingerprint, err := fingerprintOf(input)
	if err != nil {
		return nil, err
	}
	res, err := uc.idempotency.Reserve(ctx, key, fingerprint, uc.idempotencyTTL)
	if err != nil {
		return nil, err
	}
	switch res.State {
	case order.ReservationCompleted:
		o, err := uc.repo.FindByID(ctx, res.OrderID)
		if err != nil {
			return nil, err
		}
		return &dto.CreateResult{Order: o, Replayed: true}, nil
	case order.ReservationPending:
		return nil, order.ErrIdempotencyInProgress
	}

	o, err := uc.placeWithRetry(ctx, input, method)
	if err != nil {
		if relErr := uc.idempotency.Release(context.WithoutCancel(ctx), key, fingerprint); relErr != nil {
			uc.logger.Warn("failed to release idempotency key", zap.Error(relErr))
		}
		return nil, err
	}
	if err := uc.idempotency.Complete(context.WithoutCancel(ctx), key, fingerprint, o.ID, uc.idempotencyTTL); err != nil {
		uc.logger.Error("failed to record idempotency key", zap.String("order_id", o.ID), zap.Error(err))
	}
	uc.afterCreate(ctx, o)
	return &dto.CreateResult{Order: o}, nil
}

// placeWithRetry repeats the whole unit of work after a deadlock or
// serialization failure; nothing from the failed attempt survives it.
func (uc *orderUseCase) placeWithRetry(ctx context.Context, input *dto.CreateOrderInput, method model.PaymentMethod) (*model.Order, error) {
	for attempt := 1; ; attempt++ {
		o, err := uc.place(ctx, input, method)
		if err == nil || !errors.Is(err, database.ErrConflict) || attempt == createAttempts {
			return o, err
		}
		uc.logger.Warn("order creation conflicted, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
}

func (uc *orderUseCase) place(ctx context.Context, input *dto.CreateOrderInput, method model.PaymentMethod) (*model.Order, error) {
	now := uc.now().UTC()
	o := &model.Order{
		ID:            uuid.New().String(),
		OrderNumber:   "ORD-" + ulid.Make().String(),
		Customer:      normalizeCustomer(input.Customer),
		Discount:      input.Discount,
		PaymentMethod: method,
		PaymentStatus: model.PaymentStatusPending,
		OrderStatus:   model.OrderStatusPending,
		Notes:         strings.TrimSpace(input.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if actor := strings.TrimSpace(input.UserID); actor != "" {
		o.HandledBy = &actor
	}

	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		debited := make([]model.OrderLineItem, 0, len(input.Items))
		for i, line := range input.Items {
			if err := ctx.Err(); err != nil {
				return uc.abort(ctx, o, debited, fmt.Errorf("order interrupted before line %d: %w", i, err))
			}
			item, err := uc.reserveLine(ctx, o, i, line)
			if err != nil {
				return uc.abort(ctx, o, debited, err)
			}
			debited = append(debited, *item)
		}

		o.Items = debited
		o.TotalAmount, o.FinalAmount = model.Totals(debited, o.Discount)
		if o.FinalAmount.IsNegative() {
			uc.logger.Warn("discount exceeds order total",
				zap.String("order_number", o.OrderNumber),
				zap.String("total", o.TotalAmount.String()),
				zap.String("discount", o.Discount.String()),
			)
		}

		if err := uc.repo.Create(ctx, o); err != nil {
			return uc.abort(ctx, o, debited, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Int("lines", len(o.Items)),
		zap.String("final_amount", o.FinalAmount.String()),
	)
	return o, nil
}

// reserveLine validates one requested line against the catalog and debits its
// base quantity. Failures come back as *order.LineError.
func (uc *orderUseCase) reserveLine(ctx context.Context, o *model.Order, i int, line dto.LineInput) (*model.OrderLineItem, error) {
	lineErr := &order.LineError{Index: i, ProductID: line.ProductID, VariantID: line.VariantID}

	p, v, err := uc.resolver.Resolve(ctx, line.ProductID, line.VariantID)
	if err != nil {
		lineErr.Err = err
		return nil, lineErr
	}
	lineErr.ProductName = p.Name

	item, err := uc.debitLine(ctx, o, i, line, p, v)
	if err != nil {
		lineErr.Err = err
		return nil, lineErr
	}
	return item, nil
}

func (uc *orderUseCase) debitLine(ctx context.Context, o *model.Order, i int, line dto.LineInput, p *model.Product, v *model.Variant) (*model.OrderLineItem, error) {
	claimed, err := model.ParseSellMode(line.SellMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", order.ErrInvalidInput, err)
	}
	if err := product.AssertSellModeMatches(v, claimed); err != nil {
		return nil, err
	}

	unit, err := model.ParseUnit(line.Unit)
	if err != nil {
		return nil, err
	}
	if err := product.AssertUnitMatches(v, unit); err != nil {
		return nil, err
	}
	base, err := model.ToBaseUnit(line.Quantity, unit)
	if err != nil {
		return nil, err
	}
	if v.SellMode == model.SellModePackaged && !base.IsInteger() {
		return nil, fmt.Errorf("%w: packaged goods are sold in whole pieces, got %s", order.ErrInvalidInput, base)
	}
	if !model.FitsStockScale(base) {
		return nil, fmt.Errorf("%w: %s %s is finer than %d decimal places of %s",
			order.ErrInvalidInput, line.Quantity, unit, model.StockScale, v.BaseUnit)
	}

	if _, err := uc.ledger.TryDebit(ctx, inventory.StockChange{
		VariantID:     v.ID,
		Amount:        base,
		MovementType:  model.MovementSale,
		ReferenceType: model.ReferenceOrder,
		ReferenceID:   o.ID,
		Notes:         o.OrderNumber,
		Actor:         deref(o.HandledBy),
	}); err != nil {
		return nil, err
	}

	return &model.OrderLineItem{
		ID:                uuid.New().String(),
		OrderID:           o.ID,
		LineNo:            i + 1,
		ProductID:         p.ID,
		VariantID:         v.ID,
		ProductName:       p.Name,
		SKU:               v.SKU,
		RequestedQuantity: line.Quantity,
		RequestedUnit:     unit,
		SellMode:          v.SellMode,
		BaseQuantity:      base,
		BaseUnit:          v.BaseUnit,
		UnitPrice:         v.SellingPrice,
		Subtotal:          base.Mul(v.SellingPrice),
	}, nil
}

// abort gives back the stock already debited for o and returns cause. Inside a
// database transaction the rollback does that, so no credits are issued.
func (uc *orderUseCase) abort(ctx context.Context, o *model.Order, debited []model.OrderLineItem, cause error) error {
	if len(debited) == 0 {
		return cause
	}
	if database.InUnitOfWork(ctx) {
		uc.logger.Debug("order aborted, transaction rollback returns debited stock",
			zap.String("order_number", o.OrderNumber),
			zap.Int("debited_lines", len(debited)),
		)
		return cause
	}

	// The caller may already be gone; the credits must still happen.
	ctx = context.WithoutCancel(ctx)
	for i := len(debited) - 1; i >= 0; i-- {
		line := debited[i]
		_, err := uc.ledger.Credit(ctx, inventory.StockChange{
			VariantID:     line.VariantID,
			Amount:        line.BaseQuantity,
			MovementType:  model.MovementRollback,
			ReferenceType: model.ReferenceOrder,
			ReferenceID:   o.ID,
			Notes:         "rollback of " + o.OrderNumber,
			Actor:         deref(o.HandledBy),
		})
		if err != nil {
			uc.logger.Error("failed to roll back stock debit",
				zap.String("order_number", o.OrderNumber),
				zap.Int("line", line.LineNo),
				zap.String("variant_id", line.VariantID),
				zap.String("quantity", line.BaseQuantity.String()),
				zap.Error(err),
			)
		}
	}
	uc.logger.Info("order aborted, debited stock returned",
		zap.String("order_number", o.OrderNumber),
		zap.Int("debited_lines", len(debited)),
		zap.NamedError("cause", cause),
	)
	return cause
}

func (uc *orderUseCase) afterCreate(ctx context.Context, o *model.Order) {
	uc.publish(ctx, order.EventOrderCreated, o, orderCreatedPayload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		TotalAmount:   o.TotalAmount,
		Discount:      o.Discount,
		FinalAmount:   o.FinalAmount,
		PaymentMethod: o.PaymentMethod,
		HandledBy:     o.HandledBy,
		Items:         itemsOf(o.Items),
	})
	uc.reindex(ctx, o)
}

func normalizeCustomer(c model.Customer) model.Customer {
	out := model.Customer{
		Name:  strings.TrimSpace(c.Name),
		Phone: strings.TrimSpace(c.Phone),
	}
	if c.Email != nil {
		if email := strings.ToLower(strings.TrimSpace(*c.Email)); email != "" {
			out.Email = &email
		}
	}
	return out
}

// fingerprintOf hashes the parts of the request that decide the order's content.
func fingerprintOf(input *dto.CreateOrderInput) (string, error) {
	raw, err := json.Marshal(struct {
		Customer      model.Customer
		Items         []dto.LineInput
		Discount      string
		PaymentMethod string
		Notes         string
	}{
		Customer:      input.Customer,
		Items:         input.Items,
		Discount:      input.Discount.String(),
		PaymentMethod: input.PaymentMethod,
		Notes:         input.Notes,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

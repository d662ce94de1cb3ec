package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/fekuna/omnipos-backoffice/internal/inventory"
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/order"
	"github.com/fekuna/omnipos-backoffice/internal/order/dto"
	"github.com/fekuna/omnipos-backoffice/internal/product"
	"github.com/fekuna/omnipos-backoffice/pkg/database"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type statusChange struct {
	orderStatus    *model.OrderStatus
	paymentStatus  *model.PaymentStatus
	receiptPrinted *bool
}

// TransitionStatus applies the requested status fields. Entering cancelled or
// refunded for the first time gives every line's stock back, at most once per
// order over its whole life.
func (uc *orderUseCase) TransitionStatus(ctx context.Context, input *dto.TransitionInput) (*dto.TransitionResult, error) {
	if _, err := uuid.Parse(input.OrderID); err != nil {
		return nil, fmt.Errorf("%w: order id %q", order.ErrInvalidInput, input.OrderID)
	}
	change, err := parseChange(input)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		prev, res, err := uc.transitionOnce(ctx, input, change)
		if errors.Is(err, database.ErrConflict) && attempt < uc.transitionRetries {
			uc.logger.Debug("order status changed concurrently, reloading",
				zap.String("order_id", input.OrderID),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		uc.afterTransition(ctx, prev, res, input.UserID)
		return res, nil
	}
}

func parseChange(input *dto.TransitionInput) (statusChange, error) {
	var c statusChange
	if input.OrderStatus == nil && input.PaymentStatus == nil && input.ReceiptPrinted == nil {
		return c, order.ErrNoChanges
	}
	if input.OrderStatus != nil {
		st, err := model.ParseOrderStatus(*input.OrderStatus)
		if err != nil {
			return c, fmt.Errorf("%w: %w", order.ErrInvalidInput, err)
		}
		c.orderStatus = &st
	}
	if input.PaymentStatus != nil {
		st, err := model.ParsePaymentStatus(*input.PaymentStatus)
		if err != nil {
			return c, fmt.Errorf("%w: %w", order.ErrInvalidInput, err)
		}
		c.paymentStatus = &st
	}
	c.receiptPrinted = input.ReceiptPrinted
	return c, nil
}

func (uc *orderUseCase) transitionOnce(ctx context.Context, input *dto.TransitionInput, c statusChange) (*model.Order, *dto.TransitionResult, error) {
	var (
		prev *model.Order
		res  *dto.TransitionResult
	)
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := uc.repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return err
		}

		next := *current
		if c.orderStatus != nil {
			next.OrderStatus = *c.orderStatus
		}
		if c.paymentStatus != nil {
			next.PaymentStatus = *c.paymentStatus
		}
		if c.receiptPrinted != nil {
			next.ReceiptPrinted = *c.receiptPrinted
		}

		trigger := restorationTrigger(current, &next)
		now := uc.now().UTC()
		if trigger != "" {
			next.StockRestored = true
			next.StockRestoredAt = &now
		}
		next.UpdatedAt = now

		// The update only lands if nobody changed the statuses or the restoration
		// flag since the read, so two racing transitions cannot both restore.
		if err := uc.repo.UpdateStatus(ctx, &dto.StatusUpdate{
			ID:                  current.ID,
			ExpectOrderStatus:   current.OrderStatus,
			ExpectPaymentStatus: current.PaymentStatus,
			ExpectStockRestored: current.StockRestored,
			OrderStatus:         next.OrderStatus,
			PaymentStatus:       next.PaymentStatus,
			ReceiptPrinted:      next.ReceiptPrinted,
			StockRestored:       next.StockRestored,
			StockRestoredAt:     next.StockRestoredAt,
			UpdatedAt:           next.UpdatedAt,
		}); err != nil {
			return err
		}

		res = &dto.TransitionResult{Order: &next}
		if trigger != "" {
			failures, err := uc.restoreStock(ctx, &next, trigger, input.UserID)
			if err != nil {
				return err
			}
			res.StockRestored = true
			res.RestorationFailures = failures
		}
		prev = current
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return prev, res, nil
}

// restorationTrigger names the edge that requires stock to be given back, or
// returns "" when none applies.
func restorationTrigger(current, next *model.Order) string {
	if current.StockRestored {
		return ""
	}
	switch {
	case next.OrderStatus == model.OrderStatusCancelled && current.OrderStatus != model.OrderStatusCancelled:
		return string(model.OrderStatusCancelled)
	case next.PaymentStatus == model.PaymentStatusRefunded && current.PaymentStatus != model.PaymentStatusRefunded:
		return string(model.PaymentStatusRefunded)
	}
	return ""
}

// restoreStock credits each line's frozen base quantity. A line whose variant no
// longer exists is reported, not fatal.
func (uc *orderUseCase) restoreStock(ctx context.Context, o *model.Order, trigger, actor string) ([]dto.RestorationFailure, error) {
	var failures []dto.RestorationFailure
	for _, line := range o.Items {
		_, err := uc.ledger.Credit(ctx, inventory.StockChange{
			VariantID:     line.VariantID,
			Amount:        line.BaseQuantity,
			MovementType:  model.MovementReturn,
			ReferenceType: model.ReferenceOrder,
			ReferenceID:   o.ID,
			Notes:         o.OrderNumber + " " + trigger,
			Actor:         actor,
		})
		if errors.Is(err, product.ErrVariantNotFound) {
			uc.logger.Warn("stock restoration skipped, variant no longer exists",
				zap.String("order_id", o.ID),
				zap.Int("line", line.LineNo),
				zap.String("product_id", line.ProductID),
				zap.String("variant_id", line.VariantID),
				zap.String("quantity", line.BaseQuantity.String()),
			)
			failures = append(failures, dto.RestorationFailure{
				LineNo:    line.LineNo,
				ProductID: line.ProductID,
				VariantID: line.VariantID,
				Reason:    "variant not found",
			})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("restore line %d: %w", line.LineNo, err)
		}
	}

	uc.logger.Info("order stock restored",
		zap.String("order_id", o.ID),
		zap.String("trigger", trigger),
		zap.Int("lines", len(o.Items)),
		zap.Int("failed", len(failures)),
	)
	return failures, nil
}

func (uc *orderUseCase) afterTransition(ctx context.Context, prev *model.Order, res *dto.TransitionResult, actor string) {
	next := res.Order
	if prev.OrderStatus != next.OrderStatus || prev.PaymentStatus != next.PaymentStatus || prev.ReceiptPrinted != next.ReceiptPrinted {
		uc.publish(ctx, order.EventOrderStatusChanged, next, statusChangedPayload{
			OrderID:               next.ID,
			OrderNumber:           next.OrderNumber,
			PreviousOrderStatus:   prev.OrderStatus,
			OrderStatus:           next.OrderStatus,
			PreviousPaymentStatus: prev.PaymentStatus,
			PaymentStatus:         next.PaymentStatus,
			ReceiptPrinted:        next.ReceiptPrinted,
			ChangedBy:             actor,
		})
	}

	if res.StockRestored {
		uc.publish(ctx, order.EventStockRestored, next, stockRestoredPayload{
			OrderID:     next.ID,
			OrderNumber: next.OrderNumber,
			Trigger:     restorationTrigger(prev, next),
			Items:       itemsOf(restoredLines(next.Items, res.RestorationFailures)),
			Failures:    res.RestorationFailures,
		})
	}

	uc.reindex(ctx, next)
}

func restoredLines(lines []model.OrderLineItem, failures []dto.RestorationFailure) []model.OrderLineItem {
	failed := make(map[int]bool, len(failures))
	for _, f := range failures {
		failed[f.LineNo] = true
	}
	out := make([]model.OrderLineItem, 0, len(lines))
	for _, l := range lines {
		if !failed[l.LineNo] {
			out = append(out, l)
		}
	}
	return out
}

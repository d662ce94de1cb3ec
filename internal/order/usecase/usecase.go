package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/inventory"
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/order"
	"github.com/fekuna/omnipos-backoffice/internal/order/dto"
	"github.com/fekuna/omnipos-backoffice/internal/order/events"
	"github.com/fekuna/omnipos-backoffice/internal/product"
	"github.com/fekuna/omnipos-backoffice/pkg/database"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultTransitionRetries = 3
	createAttempts           = 3
	sideEffectTimeout        = 5 * time.Second
)

// Deps collects the order usecase collaborators. Repo, Resolver, Ledger and
// Logger are required; the rest fall back to no-op or in-process behaviour.
type Deps struct {
	Repo        order.Repository
	Resolver    product.VariantResolver
	Ledger      inventory.Ledger
	Tx          database.Transactor
	Publisher   order.EventPublisher
	Idempotency order.IdempotencyStore
	Index       order.Indexer
	Logger      logger.ZapLogger

	IdempotencyTTL    time.Duration
	TransitionRetries int
	Clock             func() time.Time
}

type orderUseCase struct {
	repo        order.Repository
	resolver    product.VariantResolver
	ledger      inventory.Ledger
	tx          database.Transactor
	publisher   order.EventPublisher
	idempotency order.IdempotencyStore
	index       order.Indexer
	logger      logger.ZapLogger

	idempotencyTTL    time.Duration
	transitionRetries int
	now               func() time.Time
}

func NewOrderUseCase(deps Deps) (order.UseCase, error) {
	switch {
	case deps.Repo == nil:
		return nil, errors.New("order usecase: repository is required")
	case deps.Resolver == nil:
		return nil, errors.New("order usecase: variant resolver is required")
	case deps.Ledger == nil:
		return nil, errors.New("order usecase: stock ledger is required")
	case deps.Logger == nil:
		return nil, errors.New("order usecase: logger is required")
	}

	uc := &orderUseCase{
		repo:              deps.Repo,
		resolver:          deps.Resolver,
		ledger:            deps.Ledger,
		tx:                deps.Tx,
		publisher:         deps.Publisher,
		idempotency:       deps.Idempotency,
		index:             deps.Index,
		logger:            deps.Logger,
		idempotencyTTL:    deps.IdempotencyTTL,
		transitionRetries: deps.TransitionRetries,
		now:               deps.Clock,
	}
	if uc.tx == nil {
		uc.tx = database.PassThrough{}
	}
	if uc.publisher == nil {
		uc.publisher = events.Nop{}
	}
	if uc.transitionRetries <= 0 {
		uc.transitionRetries = defaultTransitionRetries
	}
	if uc.now == nil {
		uc.now = time.Now
	}
	return uc, nil
}

func (uc *orderUseCase) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: order id %q", order.ErrInvalidInput, id)
	}
	return uc.repo.FindByID(ctx, id)
}

func (uc *orderUseCase) ListOrders(ctx context.Context, filters *dto.OrderFilters) ([]model.Order, int, error) {
	filters.Normalize()
	if filters.OrderStatus != "" {
		st, err := model.ParseOrderStatus(filters.OrderStatus)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", order.ErrInvalidInput, err)
		}
		filters.OrderStatus = string(st)
	}
	if filters.PaymentStatus != "" {
		st, err := model.ParsePaymentStatus(filters.PaymentStatus)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", order.ErrInvalidInput, err)
		}
		filters.PaymentStatus = string(st)
	}

	if filters.Search != "" && uc.index != nil {
		ids, total, err := uc.index.Search(ctx, filters)
		if err == nil {
			orders, err := uc.repo.FindByIDs(ctx, ids)
			if err != nil {
				return nil, 0, err
			}
			return orders, total, nil
		}
		uc.logger.Error("ES order search failed, falling back to DB", zap.Error(err))
	}

	return uc.repo.FindAll(ctx, filters)
}

func (uc *orderUseCase) publish(ctx context.Context, eventType string, o *model.Order, payload interface{}) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	err := uc.publisher.Publish(ctx, order.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Key:       o.ID,
		Payload:   payload,
		Timestamp: uc.now().UTC(),
	})
	if err != nil {
		uc.logger.Error("failed to publish order event",
			zap.String("event_type", eventType),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

// reindex refreshes the search copy in the background.
func (uc *orderUseCase) reindex(ctx context.Context, o *model.Order) {
	if uc.index == nil {
		return
	}
	snapshot := *o
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
		defer cancel()
		if err := uc.index.Index(ctx, &snapshot); err != nil {
			uc.logger.Error("failed to index order", zap.String("order_id", snapshot.ID), zap.Error(err))
		}
	}()
}

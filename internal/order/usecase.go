package order

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/order/dto"
)

type UseCase interface {
	CreateOrder(ctx context.Context, input *dto.CreateOrderInput) (*dto.CreateResult, error)
	TransitionStatus(ctx context.Context, input *dto.TransitionInput) (*dto.TransitionResult, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListOrders(ctx context.Context, filters *dto.OrderFilters) ([]model.Order, int, error)
}

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventStockRestored      = "StockRestored"
)

// Event is published after the change it describes has committed. Key groups
// events of one order on one partition.
type Event struct {
	ID        string
	Type      string
	Key       string
	Payload   interface{}
	Timestamp time.Time
}

//go:generate mockgen -destination=mock/publisher_mock.go -package=mock github.com/fekuna/omnipos-backoffice/internal/order EventPublisher
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Indexer keeps a search copy of orders. Search returns matching order ids in
// rank order plus the total hit count.
type Indexer interface {
	Index(ctx context.Context, o *model.Order) error
	Search(ctx context.Context, filters *dto.OrderFilters) ([]string, int, error)
}

type ReservationState int

const (
	ReservationNew ReservationState = iota
	ReservationPending
	ReservationCompleted
)

type Reservation struct {
	State   ReservationState
	OrderID string
}

// IdempotencyStore remembers which order a client key produced. Reserve claims a
// fresh key; Complete records the order; Release frees the key after a failure.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (Reservation, error)
	Complete(ctx context.Context, key, fingerprint, orderID string, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
}

package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/inventory"
	"github.com/fekuna/omnipos-backoffice/internal/inventory/dto"
	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/pkg/broker"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const EventStockReceived = "StockReceived"

type InventoryListener struct {
	consumer broker.Reader
	uc       inventory.UseCase
	logger   logger.ZapLogger
	backoff  time.Duration
}

func NewInventoryListener(consumer broker.Reader, uc inventory.UseCase, logger logger.ZapLogger) *InventoryListener {
	return &InventoryListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
		backoff:  time.Second,
	}
}

// Start consumes supplier deliveries until ctx is cancelled.
func (l *InventoryListener) Start(ctx context.Context) {
	l.logger.Info("Starting Inventory Kafka Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Inventory Kafka Listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(l.backoff):
				}
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type StockReceivedEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   DeliveryPayload `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

type DeliveryPayload struct {
	DeliveryID string                `json:"delivery_id"`
	ReceivedBy string                `json:"received_by"`
	Items      []DeliveryItemPayload `json:"items"`
}

// DeliveryItemPayload quantities are in the variant's base unit.
type DeliveryItemPayload struct {
	VariantID string          `json:"variant_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Notes     string          `json:"notes"`
}

func (l *InventoryListener) processMessage(ctx context.Context, value []byte) {
	var event StockReceivedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	if event.EventType != EventStockReceived {
		return
	}

	deliveryID := event.Payload.DeliveryID
	if deliveryID == "" {
		deliveryID = event.EventID
	}
	actor := event.Payload.ReceivedBy
	if actor == "" {
		actor = "system"
	}

	l.logger.Info("Processing StockReceived event", zap.String("delivery_id", deliveryID))

	for _, item := range event.Payload.Items {
		if !item.Quantity.IsPositive() {
			l.logger.Warn("Skipping delivery item without positive quantity",
				zap.String("delivery_id", deliveryID),
				zap.String("variant_id", item.VariantID),
			)
			continue
		}

		// Redelivered messages must not restock twice.
		_, applied, err := l.uc.ListMovements(ctx, &dto.MovementFilters{
			VariantID:     item.VariantID,
			ReferenceType: model.ReferenceDelivery,
			ReferenceID:   deliveryID,
			PageSize:      1,
		})
		if err != nil {
			l.logger.Error("Failed to check delivery movements", zap.String("delivery_id", deliveryID), zap.Error(err))
			continue
		}
		if applied > 0 {
			l.logger.Debug("Delivery item already applied",
				zap.String("delivery_id", deliveryID),
				zap.String("variant_id", item.VariantID),
			)
			continue
		}

		_, err = l.uc.AdjustStock(ctx, &dto.AdjustStockInput{
			VariantID:      item.VariantID,
			QuantityChange: item.Quantity,
			Type:           model.MovementRestock,
			Reason:         item.Notes,
			ReferenceType:  model.ReferenceDelivery,
			ReferenceID:    deliveryID,
			UserID:         actor,
		})
		if err != nil {
			l.logger.Error("Failed to restock delivery item",
				zap.String("delivery_id", deliveryID),
				zap.String("variant_id", item.VariantID),
				zap.Error(err),
			)
		}
	}
}

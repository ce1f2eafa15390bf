package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

// LogPublisher is used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.Event) error {
	p.logger.Info("domain event",
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID),
		zap.Any("payload", event.Payload))
	return nil
}

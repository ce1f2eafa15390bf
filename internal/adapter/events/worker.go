package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/port"
)

const publishTimeout = 5 * time.Second

// StartWorkers drains queue with n workers until it is closed. Wait on the
// returned group after closing the queue.
func StartWorkers(n int, queue <-chan domain.Event, publisher port.EventPublisher, logger *zap.Logger) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, queue, publisher, logger)
		}(i)
	}
	logger.Info("started event workers", zap.Int("count", n))
	return &wg
}

func workerLoop(id int, queue <-chan domain.Event, publisher port.EventPublisher, logger *zap.Logger) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := publisher.Publish(ctx, event); err != nil {
			// events are notifications; the order itself is already committed
			logger.Error("failed to publish event",
				zap.Int("worker", id),
				zap.String("event_id", event.ID),
				zap.String("type", event.Type),
				zap.String("order_id", event.OrderID),
				zap.Error(err))
		} else {
			logger.Debug("published event",
				zap.Int("worker", id),
				zap.String("event_id", event.ID),
				zap.String("type", event.Type))
		}

		cancel()
	}
}

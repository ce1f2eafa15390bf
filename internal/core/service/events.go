package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

// EventQueue buffers domain events for the publishing workers. Enqueue never
// blocks a request: when the buffer is full the event is dropped and logged.
type EventQueue struct {
	mu     sync.RWMutex
	ch     chan domain.Event
	closed bool
	logger *zap.Logger
}

func NewEventQueue(size int, logger *zap.Logger) *EventQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventQueue{
		ch:     make(chan domain.Event, size),
		logger: logger,
	}
}

func (q *EventQueue) Enqueue(eventType, orderID string, payload map[string]any) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return
	}

	event := domain.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OrderID:    orderID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}

	select {
	case q.ch <- event:
	default:
		q.logger.Warn("event queue full, dropping event",
			zap.String("type", eventType),
			zap.String("order_id", orderID))
	}
}

func (q *EventQueue) Events() <-chan domain.Event {
	return q.ch
}

func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

package service

import (
	"testing"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

func TestEventQueue_DropsWhenFull(t *testing.T) {
	q := NewEventQueue(1, nil)
	defer q.Close()

	q.Enqueue(domain.EventOrderPlaced, "order-1", nil)
	q.Enqueue(domain.EventOrderPlaced, "order-2", nil)

	event := <-q.Events()
	if event.OrderID != "order-1" || event.ID == "" {
		t.Errorf("unexpected event: %+v", event)
	}

	select {
	case extra := <-q.Events():
		t.Errorf("expected overflow to be dropped, got %+v", extra)
	default:
	}
}

func TestEventQueue_CloseIsIdempotent(t *testing.T) {
	q := NewEventQueue(4, nil)
	q.Close()
	q.Close()

	// must not panic after close
	q.Enqueue(domain.EventOrderPlaced, "order-1", nil)

	if _, ok := <-q.Events(); ok {
		t.Error("expected closed channel")
	}
}

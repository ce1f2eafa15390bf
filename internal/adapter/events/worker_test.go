package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	fail   bool
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.events = append(p.events, event)
	return nil
}

func TestWorkers_DrainQueue(t *testing.T) {
	queue := make(chan domain.Event, 10)
	pub := &recordingPublisher{}

	wg := StartWorkers(3, queue, pub, zap.NewNop())
	for i := 0; i < 10; i++ {
		queue <- domain.Event{ID: string(rune('a' + i)), Type: domain.EventOrderPlaced}
	}
	close(queue)
	wg.Wait()

	assert.Len(t, pub.events, 10)
}

func TestWorkers_PublishFailureDoesNotStop(t *testing.T) {
	queue := make(chan domain.Event, 2)
	pub := &recordingPublisher{fail: true}

	wg := StartWorkers(1, queue, pub, zap.NewNop())
	queue <- domain.Event{ID: "1"}
	queue <- domain.Event{ID: "2"}
	close(queue)
	wg.Wait()

	assert.Empty(t, pub.events)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, ParseBrokers(" k1:9092, ,k2:9092 "))
	assert.Empty(t, ParseBrokers(""))

	_, err := NewKafkaPublisher("", "orders")
	assert.Error(t, err)
}

func TestEncodeMessage(t *testing.T) {
	event := domain.Event{ID: "evt-1", Type: domain.EventPaymentStatusChanged, OrderID: "ord-1",
		Payload: map[string]any{"to": "PAID"}}

	msg, err := encodeMessage(event)
	require.NoError(t, err)

	assert.Equal(t, "ord-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, domain.EventPaymentStatusChanged, string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "payment.status_changed", decoded["type"])
	assert.Equal(t, "PAID", decoded["payload"].(map[string]any)["to"])
}

func TestStartWorkers_LogsStartupOnce(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	queue := make(chan domain.Event)

	wg := StartWorkers(4, queue, &recordingPublisher{}, zap.New(core))
	close(queue)
	wg.Wait()

	started := logs.FilterMessage("started event workers").All()
	require.Len(t, started, 1)
	assert.Equal(t, int64(4), started[0].ContextMap()["count"])
}

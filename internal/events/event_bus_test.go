package events_test

import (
	"sync"
	"testing"
	"time"

	"github.com/benedict-anokye-davies/brain/internal/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestPublishSyncDeliversToMatchingSubscriber(t *testing.T) {
	bus := events.NewEventBus(zap.NewNop(), events.DefaultConfig())
	defer bus.Stop()

	var got events.Event
	var mu sync.Mutex
	bus.Subscribe(events.EventTypeDecisionPersisted, func(e events.Event) error {
		mu.Lock()
		got = e
		mu.Unlock()
		return nil
	})

	evt := events.NewDecisionPersistedEvent("sig-1", "P1", true, decimal.NewFromInt(100), "OK")
	bus.PublishSync(evt)

	mu.Lock()
	defer mu.Unlock()
	if got == nil {
		t.Fatalf("expected subscriber to receive event")
	}
	if got.GetType() != events.EventTypeDecisionPersisted {
		t.Fatalf("expected decision_persisted event, got %s", got.GetType())
	}
}

func TestSubscribeAllReceivesEveryType(t *testing.T) {
	bus := events.NewEventBus(zap.NewNop(), events.DefaultConfig())
	defer bus.Stop()

	var count int
	var mu sync.Mutex
	bus.SubscribeAll(func(e events.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	bus.PublishSync(events.NewSignalReceivedEvent("sig-1", "P1", "BTC-USD"))
	bus.PublishSync(events.NewBreakerTransitionEvent("hard", "DAILY_DD"))

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Fatalf("expected 2 events delivered to catch-all subscriber, got %d", count)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := events.NewEventBus(zap.NewNop(), events.DefaultConfig())
	defer bus.Stop()

	var count int
	var mu sync.Mutex
	sub := bus.Subscribe(events.EventTypeSweepExecuted, func(e events.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	bus.PublishSync(events.NewSweepExecutedEvent("sweep-1", decimal.NewFromInt(500)))
	bus.Unsubscribe(sub)
	bus.PublishSync(events.NewSweepExecutedEvent("sweep-2", decimal.NewFromInt(500)))

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly 1 delivery before unsubscribe, got %d", count)
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	bus := events.NewEventBus(zap.NewNop(), events.Config{NumWorkers: 0, BufferSize: 1})
	defer bus.Stop()

	// NumWorkers<=0 is normalized to 8 internally; fill the buffer with a
	// burst that outruns the workers to exercise the drop-not-block path.
	for i := 0; i < 50; i++ {
		bus.Publish(events.NewRiskSnapshotEvent(decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero))
	}
	time.Sleep(50 * time.Millisecond)

	stats := bus.Stats()
	if stats.EventsPublished+stats.EventsDropped != 50 {
		t.Fatalf("expected published+dropped to account for all attempts")
	}
}

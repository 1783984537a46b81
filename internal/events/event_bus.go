// Package events provides the Brain's internal pub/sub backbone: the
// Arbiter publishes signal, decision, fill, breaker, sweep and risk-snapshot
// events on it, and observers such as the WebSocket hub subscribe to them
// without being called from the decision pipeline. Fills themselves reach
// the Arbiter through its RecordFill method, not through the bus.
package events

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventType categorises events flowing through the bus.
type EventType string

const (
	EventTypeSignalReceived    EventType = "signal_received"
	EventTypeDecisionPersisted EventType = "decision_persisted"
	EventTypeFillRecorded      EventType = "fill_recorded"
	EventTypeBreakerTransition EventType = "breaker_transition"
	EventTypeSweepExecuted     EventType = "sweep_executed"
	EventTypeRiskSnapshot      EventType = "risk_snapshot"
)

// Event is the common interface implemented by every concrete event type.
type Event interface {
	GetType() EventType
	GetTimestamp() time.Time
	GetID() string
}

// BaseEvent carries the fields every event shares.
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) GetType() EventType      { return e.Type }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetID() string           { return e.ID }

var eventCounter atomic.Int64

func generateEventID(prefix string) string {
	id := eventCounter.Add(1)
	return prefix + "_" + time.Now().UTC().Format("20060102150405.000000") + "_" + itoa(id)
}

func itoa(i int64) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// SignalReceivedEvent fires the moment a signal clears ingress validation,
// before it enters the priority queue.
type SignalReceivedEvent struct {
	BaseEvent
	SignalID string `json:"signal_id"`
	PhaseID  string `json:"phase_id"`
	Symbol   string `json:"symbol"`
}

// NewSignalReceivedEvent constructs a SignalReceivedEvent.
func NewSignalReceivedEvent(signalID, phaseID, symbol string) *SignalReceivedEvent {
	return &SignalReceivedEvent{
		BaseEvent: BaseEvent{ID: generateEventID("evt"), Type: EventTypeSignalReceived, Timestamp: time.Now()},
		SignalID:  signalID,
		PhaseID:   phaseID,
		Symbol:    symbol,
	}
}

// DecisionPersistedEvent fires after the Arbiter has durably persisted a
// BrainDecision, immediately before any externally observable side effect.
type DecisionPersistedEvent struct {
	BaseEvent
	SignalID           string          `json:"signal_id"`
	PhaseID            string          `json:"phase_id"`
	Approved           bool            `json:"approved"`
	AuthorisedNotional decimal.Decimal `json:"authorised_notional"`
	Reason             string          `json:"reason"`
}

// NewDecisionPersistedEvent constructs a DecisionPersistedEvent.
func NewDecisionPersistedEvent(signalID, phaseID string, approved bool, authorised decimal.Decimal, reason string) *DecisionPersistedEvent {
	return &DecisionPersistedEvent{
		BaseEvent:          BaseEvent{ID: generateEventID("evt"), Type: EventTypeDecisionPersisted, Timestamp: time.Now()},
		SignalID:           signalID,
		PhaseID:            phaseID,
		Approved:           approved,
		AuthorisedNotional: authorised,
		Reason:             reason,
	}
}

// FillRecordedEvent is published once an execution report for phase arrives;
// it drives Performance Tracker, equity, watermark, and Capital Flow
// re-evaluation. Fills don't carry the originating signal_id back from the
// execution engine, so Symbol identifies the instrument instead.
type FillRecordedEvent struct {
	BaseEvent
	Symbol  string          `json:"symbol"`
	PhaseID string          `json:"phase_id"`
	PnL     decimal.Decimal `json:"pnl"`
	Equity  decimal.Decimal `json:"equity"`
}

// NewFillRecordedEvent constructs a FillRecordedEvent.
func NewFillRecordedEvent(symbol, phaseID string, pnl, equity decimal.Decimal) *FillRecordedEvent {
	return &FillRecordedEvent{
		BaseEvent: BaseEvent{ID: generateEventID("evt"), Type: EventTypeFillRecorded, Timestamp: time.Now()},
		Symbol:    symbol,
		PhaseID:   phaseID,
		PnL:       pnl,
		Equity:    equity,
	}
}

// BreakerTransitionEvent fires on every state-changing breaker transition.
type BreakerTransitionEvent struct {
	BaseEvent
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// NewBreakerTransitionEvent constructs a BreakerTransitionEvent.
func NewBreakerTransitionEvent(kind, reason string) *BreakerTransitionEvent {
	return &BreakerTransitionEvent{
		BaseEvent: BaseEvent{ID: generateEventID("evt"), Type: EventTypeBreakerTransition, Timestamp: time.Now()},
		Kind:      kind,
		Reason:    reason,
	}
}

// SweepExecutedEvent fires when Capital Flow completes a risky->safe transfer.
type SweepExecutedEvent struct {
	BaseEvent
	SweepID string          `json:"sweep_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// NewSweepExecutedEvent constructs a SweepExecutedEvent.
func NewSweepExecutedEvent(sweepID string, amount decimal.Decimal) *SweepExecutedEvent {
	return &SweepExecutedEvent{
		BaseEvent: BaseEvent{ID: generateEventID("evt"), Type: EventTypeSweepExecuted, Timestamp: time.Now()},
		SweepID:   sweepID,
		Amount:    amount,
	}
}

// RiskSnapshotEvent fires on every periodic portfolio risk measurement,
// independent of any single intent decision.
type RiskSnapshotEvent struct {
	BaseEvent
	Leverage         decimal.Decimal `json:"leverage"`
	NetDelta         decimal.Decimal `json:"net_delta"`
	CorrelationScore decimal.Decimal `json:"correlation_score"`
	PortfolioBeta    decimal.Decimal `json:"portfolio_beta"`
	VaR95            decimal.Decimal `json:"var_95"`
}

// NewRiskSnapshotEvent constructs a RiskSnapshotEvent.
func NewRiskSnapshotEvent(leverage, netDelta, correlation, beta, var95 decimal.Decimal) *RiskSnapshotEvent {
	return &RiskSnapshotEvent{
		BaseEvent:        BaseEvent{ID: generateEventID("evt"), Type: EventTypeRiskSnapshot, Timestamp: time.Now()},
		Leverage:         leverage,
		NetDelta:         netDelta,
		CorrelationScore: correlation,
		PortfolioBeta:    beta,
		VaR95:            var95,
	}
}

// EventHandler processes a single event; a non-nil error is logged, never
// silently dropped.
type EventHandler func(event Event) error

// EventFilter selectively admits events to a subscription.
type EventFilter func(event Event) bool

// SubscriptionOptions configures how a subscription's handler runs.
type SubscriptionOptions struct {
	Filter EventFilter
	Async  bool
}

// Subscription is a live registration returned by Subscribe.
type Subscription struct {
	ID        string
	EventType EventType
	Handler   EventHandler
	Options   SubscriptionOptions
	active    atomic.Bool
}

// IsActive reports whether the subscription still receives events.
func (s *Subscription) IsActive() bool { return s.active.Load() }

// Stats is a snapshot of EventBus throughput and latency.
type Stats struct {
	EventsPublished   int64
	EventsProcessed   int64
	EventsDropped     int64
	ProcessingErrors  int64
	P99Latency        time.Duration
	ActiveSubscribers int64
}

// Config configures worker count and buffering.
type Config struct {
	NumWorkers int
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{NumWorkers: 8, BufferSize: 8192}
}

// EventBus is the Brain's internal publish/subscribe router: a fixed pool
// of workers drains a buffered channel and fans events out to subscribers.
type EventBus struct {
	mu             sync.RWMutex
	subscribers    map[EventType][]*Subscription
	allSubscribers []*Subscription

	eventChan   chan Event
	workerCount int

	eventsPublished   atomic.Int64
	eventsProcessed   atomic.Int64
	eventsDropped     atomic.Int64
	processingErrors  atomic.Int64
	activeSubscribers atomic.Int64

	latencies []int64
	latencyMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewEventBus constructs and starts an EventBus.
func NewEventBus(logger *zap.Logger, cfg Config) *EventBus {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 8
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 8192
	}
	ctx, cancel := context.WithCancel(context.Background())
	eb := &EventBus{
		subscribers: make(map[EventType][]*Subscription),
		eventChan:   make(chan Event, cfg.BufferSize),
		workerCount: cfg.NumWorkers,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		latencies:   make([]int64, 0, 1024),
	}
	for i := 0; i < cfg.NumWorkers; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}
	eb.logger.Info("event bus started", zap.Int("workers", cfg.NumWorkers), zap.Int("buffer_size", cfg.BufferSize))
	return eb
}

func (eb *EventBus) worker() {
	defer eb.wg.Done()
	for {
		select {
		case <-eb.ctx.Done():
			return
		case event := <-eb.eventChan:
			start := time.Now()
			eb.dispatch(event)
			eb.trackLatency(time.Since(start).Nanoseconds())
		}
	}
}

func (eb *EventBus) dispatch(event Event) {
	eb.mu.RLock()
	subs := eb.subscribers[event.GetType()]
	allSubs := eb.allSubscribers
	eb.mu.RUnlock()

	run := func(sub *Subscription) {
		if !sub.IsActive() {
			return
		}
		if sub.Options.Filter != nil && !sub.Options.Filter(event) {
			return
		}
		if sub.Options.Async {
			go eb.invoke(sub, event)
		} else {
			eb.invoke(sub, event)
		}
	}
	for _, sub := range subs {
		run(sub)
	}
	for _, sub := range allSubs {
		run(sub)
	}
	eb.eventsProcessed.Add(1)
}

func (eb *EventBus) invoke(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.processingErrors.Add(1)
			eb.logger.Error("event handler panic",
				zap.String("subscription_id", sub.ID),
				zap.String("event_type", string(event.GetType())),
				zap.Any("panic", r))
		}
	}()
	if err := sub.Handler(event); err != nil {
		eb.processingErrors.Add(1)
		eb.logger.Warn("event handler error",
			zap.String("subscription_id", sub.ID),
			zap.String("event_type", string(event.GetType())),
			zap.Error(err))
	}
}

func (eb *EventBus) trackLatency(ns int64) {
	eb.latencyMu.Lock()
	defer eb.latencyMu.Unlock()
	eb.latencies = append(eb.latencies, ns)
	if len(eb.latencies) > 10000 {
		eb.latencies = eb.latencies[5000:]
	}
}

// Subscribe registers handler for eventType. Handlers run asynchronously by
// default, matching the worker-pool fan-out model.
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler, opts ...SubscriptionOptions) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	options := SubscriptionOptions{Async: true}
	if len(opts) > 0 {
		options = opts[0]
	}
	sub := &Subscription{ID: generateEventID("sub"), EventType: eventType, Handler: handler, Options: options}
	sub.active.Store(true)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], sub)
	eb.activeSubscribers.Add(1)
	return sub
}

// SubscribeAll registers handler for every event type.
func (eb *EventBus) SubscribeAll(handler EventHandler, opts ...SubscriptionOptions) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	options := SubscriptionOptions{Async: true}
	if len(opts) > 0 {
		options = opts[0]
	}
	sub := &Subscription{ID: generateEventID("sub"), EventType: "*", Handler: handler, Options: options}
	sub.active.Store(true)
	eb.allSubscribers = append(eb.allSubscribers, sub)
	eb.activeSubscribers.Add(1)
	return sub
}

// Unsubscribe deactivates sub; in-flight dispatches still complete.
func (eb *EventBus) Unsubscribe(sub *Subscription) {
	sub.active.Store(false)
	eb.activeSubscribers.Add(-1)
}

// Publish enqueues event for asynchronous processing. If the buffer is
// full the event is dropped and counted, never blocking the caller — the
// Arbiter's pipeline stage that calls Publish must never stall on a slow
// subscriber.
func (eb *EventBus) Publish(event Event) {
	select {
	case eb.eventChan <- event:
		eb.eventsPublished.Add(1)
	default:
		eb.eventsDropped.Add(1)
		eb.logger.Warn("event dropped, buffer full", zap.String("event_type", string(event.GetType())))
	}
}

// PublishSync dispatches event to subscribers synchronously, for tests and
// for the few call sites that need dispatch-before-return ordering.
func (eb *EventBus) PublishSync(event Event) {
	eb.eventsPublished.Add(1)
	eb.dispatch(event)
}

// Stats returns a snapshot of bus throughput.
func (eb *EventBus) Stats() Stats {
	return Stats{
		EventsPublished:   eb.eventsPublished.Load(),
		EventsProcessed:   eb.eventsProcessed.Load(),
		EventsDropped:     eb.eventsDropped.Load(),
		ProcessingErrors:  eb.processingErrors.Load(),
		P99Latency:        eb.P99Latency(),
		ActiveSubscribers: eb.activeSubscribers.Load(),
	}
}

// P99Latency returns the 99th-percentile dispatch latency over the last
// (up to) 10000 samples.
func (eb *EventBus) P99Latency() time.Duration {
	eb.latencyMu.Lock()
	defer eb.latencyMu.Unlock()
	if len(eb.latencies) == 0 {
		return 0
	}
	sorted := make([]int64, len(eb.latencies))
	copy(sorted, eb.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return time.Duration(sorted[idx])
}

// Stop cancels workers and waits for them to drain, up to 5s.
func (eb *EventBus) Stop() {
	eb.logger.Info("stopping event bus")
	eb.cancel()
	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		eb.logger.Info("event bus stopped",
			zap.Int64("events_processed", eb.eventsProcessed.Load()),
			zap.Int64("events_dropped", eb.eventsDropped.Load()))
	case <-time.After(5 * time.Second):
		eb.logger.Warn("event bus stop timed out")
	}
}

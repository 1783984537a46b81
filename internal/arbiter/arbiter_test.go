package arbiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/benedict-anokye-davies/brain/internal/allocation"
	"github.com/benedict-anokye-davies/brain/internal/arbiter"
	"github.com/benedict-anokye-davies/brain/internal/breaker"
	"github.com/benedict-anokye-davies/brain/internal/egress"
	"github.com/benedict-anokye-davies/brain/internal/events"
	"github.com/benedict-anokye-davies/brain/internal/metrics"
	"github.com/benedict-anokye-davies/brain/internal/performance"
	"github.com/benedict-anokye-davies/brain/internal/positions"
	"github.com/benedict-anokye-davies/brain/internal/risk"
	"github.com/benedict-anokye-davies/brain/internal/store"
	"github.com/benedict-anokye-davies/brain/internal/treasury"
	"github.com/benedict-anokye-davies/brain/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestArbiter(t *testing.T) *arbiter.Arbiter {
	t.Helper()
	logger := zap.NewNop()

	st, err := store.OpenInMemory(logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	egressClient := egress.NewClient(logger, "http://127.0.0.1:1", []byte("secret"), 50*time.Millisecond)
	corr := risk.NewCorrelationEngine(logger, time.Hour, 5*time.Minute, 5*time.Minute)

	arb := arbiter.NewArbiter(logger, types.DefaultArbiterConfig(), types.DefaultRiskConfig(), arbiter.Deps{
		Allocation:  allocation.NewEngine(logger, types.DefaultAllocationConfig()),
		Performance: performance.NewTracker(logger, types.DefaultPerformanceConfig()),
		Guardian:    risk.NewGuardian(logger, types.DefaultRiskConfig(), corr),
		Correlation: corr,
		Treasury:    treasury.NewManager(logger, types.DefaultTreasuryConfig(), egressClient, types.TreasuryState{}),
		Breaker:     breaker.NewBreaker(logger, types.DefaultBreakerConfig(), egressClient, types.BreakerState{Kind: types.BreakerNormal, Since: time.Now()}),
		Positions:   positions.NewStore(logger),
		Egress:      egressClient,
		Store:       st,
		Metrics:     metrics.New(prometheus.NewRegistry()),
		Bus:         events.NewEventBus(logger, events.DefaultConfig()),
	})
	if err := arb.Start(context.Background()); err != nil {
		t.Fatalf("start arbiter: %v", err)
	}
	t.Cleanup(func() { arb.Stop() })
	return arb
}

func awaitDecision(t *testing.T, arb *arbiter.Arbiter, signalID string) store.DecisionRow {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		row, found, err := arb.Decision(signalID)
		if err != nil {
			t.Fatalf("decision lookup: %v", err)
		}
		if found {
			return row
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("decision for %s never persisted", signalID)
	return store.DecisionRow{}
}

func TestSubmitProducesDecision(t *testing.T) {
	arb := newTestArbiter(t)

	signal := types.IntentSignal{
		SignalID:          "sig-1",
		PhaseID:           types.PhaseP1,
		Symbol:            "BTC-USD",
		Side:              types.SideBuy,
		RequestedNotional: decimal.NewFromInt(10),
		TimestampMs:       time.Now().UnixMilli(),
		Nonce:             "nonce-1",
	}
	if err := arb.Submit(signal); err != nil {
		t.Fatalf("submit: %v", err)
	}

	row := awaitDecision(t, arb, "sig-1")
	if row.PhaseID != "P1" {
		t.Fatalf("expected phase P1, got %s", row.PhaseID)
	}
}

func TestDuplicateSignalReplaysPersistedDecision(t *testing.T) {
	arb := newTestArbiter(t)

	signal := types.IntentSignal{
		SignalID:          "sig-dup",
		PhaseID:           types.PhaseP1,
		Symbol:            "BTC-USD",
		Side:              types.SideBuy,
		RequestedNotional: decimal.NewFromInt(10),
		TimestampMs:       time.Now().UnixMilli(),
		Nonce:             "nonce-dup-1",
	}
	if err := arb.Submit(signal); err != nil {
		t.Fatalf("submit: %v", err)
	}
	first := awaitDecision(t, arb, "sig-dup")

	signal.Nonce = "nonce-dup-2"
	if err := arb.Submit(signal); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	second := awaitDecision(t, arb, "sig-dup")

	if !first.Authorised.Equal(second.Authorised) || first.Reason != second.Reason {
		t.Fatalf("expected replayed decision to match original: first=%+v second=%+v", first, second)
	}
}

func TestCheckNonceRejectsReplay(t *testing.T) {
	arb := newTestArbiter(t)

	fresh, err := arb.CheckNonce("P1", "once")
	if err != nil {
		t.Fatalf("check nonce: %v", err)
	}
	if !fresh {
		t.Fatalf("expected first use fresh")
	}

	fresh, err = arb.CheckNonce("P1", "once")
	if err != nil {
		t.Fatalf("check nonce replay: %v", err)
	}
	if fresh {
		t.Fatalf("expected replay to be rejected")
	}
}

func TestResetBreakerRequiresOperatorAndDecisionCarriesReason(t *testing.T) {
	arb := newTestArbiter(t)

	if err := arb.ResetBreaker(""); err == nil {
		t.Fatalf("expected ResetBreaker to require an operator id")
	}

	signal := types.IntentSignal{
		SignalID:          "sig-breaker",
		PhaseID:           types.PhaseP2,
		Symbol:            "ETH-USD",
		Side:              types.SideBuy,
		RequestedNotional: decimal.NewFromInt(5),
		TimestampMs:       time.Now().UnixMilli(),
		Nonce:             "nonce-breaker",
	}
	if err := arb.Submit(signal); err != nil {
		t.Fatalf("submit: %v", err)
	}
	row := awaitDecision(t, arb, "sig-breaker")
	if row.Reason == "" {
		t.Fatalf("expected a reason code on the persisted decision")
	}
}

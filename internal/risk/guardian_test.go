package risk

import (
	"testing"
	"time"

	"github.com/benedict-anokye-davies/brain/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestGuardian(t *testing.T) *Guardian {
	t.Helper()
	cfg := types.DefaultRiskConfig()
	corr := NewCorrelationEngine(zap.NewNop(), cfg.CorrelationWindow, cfg.CorrelationRecompute, cfg.CorrelationStaleAfter)
	g := NewGuardian(zap.NewNop(), cfg, corr)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }
	// seed a fresh correlation matrix so IsStale is false by default
	corr.RecordPrice("BTC/USD", decimal.NewFromInt(50000), fixed.Add(-time.Minute))
	corr.Recompute(fixed)
	return g
}

// scenario S4 from the spec's end-to-end examples: a candidate order that
// would push projected leverage above the tier cap is vetoed.
func TestCheckIntent_LeverageCapVeto(t *testing.T) {
	g := newTestGuardian(t)
	equity := decimal.NewFromInt(2000)
	positions := []types.Position{
		{Symbol: "ETH/USD", Side: types.SideBuy, Notional: decimal.NewFromInt(15000)},
	}
	signal := types.IntentSignal{
		SignalID:          "sig-1",
		PhaseID:           types.PhaseP1,
		Symbol:            "ETH/USD",
		Side:              types.SideBuy,
		RequestedNotional: decimal.NewFromInt(10000),
	}
	decision := g.CheckIntent(signal, positions, equity, decimal.NewFromInt(10))
	if decision.Approved {
		t.Fatalf("expected leverage cap veto, got approved authorised=%s", decision.AuthorisedNotional)
	}
	if decision.Reason != types.ReasonLeverageCap {
		t.Fatalf("expected ReasonLeverageCap, got %s", decision.Reason)
	}
}

// scenario S5: a P3 hedge that reduces |net delta| bypasses every other
// check and is approved at full requested notional.
func TestCheckIntent_HedgeFastPath(t *testing.T) {
	g := newTestGuardian(t)
	positions := []types.Position{
		{Symbol: "BTC/USD", Side: types.SideBuy, Notional: decimal.NewFromInt(5000)},
	}
	signal := types.IntentSignal{
		SignalID:          "sig-2",
		PhaseID:           types.PhaseP3,
		Symbol:            "BTC/USD",
		Side:              types.SideSell,
		RequestedNotional: decimal.NewFromInt(5000),
		Hedge:             true,
	}
	decision := g.CheckIntent(signal, positions, decimal.NewFromInt(1000), decimal.NewFromInt(2))
	if !decision.Approved {
		t.Fatalf("expected hedge auto-approve, got rejection reason=%s", decision.Reason)
	}
	if decision.Reason != types.ReasonHedgeAutoApprove {
		t.Fatalf("expected ReasonHedgeAutoApprove, got %s", decision.Reason)
	}
	if !decision.AuthorisedNotional.Equal(signal.RequestedNotional) {
		t.Fatalf("expected full notional authorised, got %s", decision.AuthorisedNotional)
	}
}

func TestCheckIntent_NetDeltaVeto(t *testing.T) {
	g := newTestGuardian(t)
	equity := decimal.NewFromInt(1000)
	positions := []types.Position{
		{Symbol: "BTC/USD", Side: types.SideBuy, Notional: decimal.NewFromInt(900)},
	}
	signal := types.IntentSignal{
		SignalID:          "sig-3",
		PhaseID:           types.PhaseP1,
		Symbol:            "BTC/USD",
		Side:              types.SideBuy,
		RequestedNotional: decimal.NewFromInt(500),
	}
	decision := g.CheckIntent(signal, positions, equity, decimal.NewFromInt(20))
	if decision.Approved {
		t.Fatalf("expected net delta veto, got approved")
	}
	if decision.Reason != types.ReasonNetDelta {
		t.Fatalf("expected ReasonNetDelta, got %s", decision.Reason)
	}
}

func TestCheckIntent_StaleDataVeto(t *testing.T) {
	g := newTestGuardian(t)
	g.now = func() time.Time { return time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC) } // 1h after the seeded recompute
	signal := types.IntentSignal{
		SignalID:          "sig-4",
		PhaseID:           types.PhaseP1,
		Symbol:            "ETH/USD",
		Side:              types.SideBuy,
		RequestedNotional: decimal.NewFromInt(100),
	}
	decision := g.CheckIntent(signal, nil, decimal.NewFromInt(1000), decimal.NewFromInt(10))
	if decision.Approved {
		t.Fatalf("expected stale data veto, got approved")
	}
	if decision.Reason != types.ReasonStaleRiskData {
		t.Fatalf("expected ReasonStaleRiskData, got %s", decision.Reason)
	}
}

// scenario S3: correlation above the 0.8 threshold halves authorised notional.
func TestCheckIntent_CorrelationHaircut(t *testing.T) {
	cfg := types.DefaultRiskConfig()
	corr := NewCorrelationEngine(zap.NewNop(), cfg.CorrelationWindow, cfg.CorrelationRecompute, cfg.CorrelationStaleAfter)
	g := NewGuardian(zap.NewNop(), cfg, corr)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	base := fixed.Add(-60 * time.Minute)
	for i := 0; i < 60; i++ {
		t := base.Add(time.Duration(i) * time.Minute)
		corr.RecordPrice("BTC/USD", decimal.NewFromInt(int64(50000+i*10)), t)
		corr.RecordPrice("ETH/USD", decimal.NewFromInt(int64(3000+i*1)), t)
	}
	corr.Recompute(fixed)

	positions := []types.Position{
		{Symbol: "BTC/USD", Side: types.SideBuy, Notional: decimal.NewFromInt(1000)},
	}
	signal := types.IntentSignal{
		SignalID:          "sig-5",
		PhaseID:           types.PhaseP1,
		Symbol:            "ETH/USD",
		Side:              types.SideBuy,
		RequestedNotional: decimal.NewFromInt(4000),
	}
	decision := g.CheckIntent(signal, positions, decimal.NewFromInt(100000), decimal.NewFromInt(20))
	if !decision.Approved {
		t.Fatalf("expected haircut approval, got rejection reason=%s", decision.Reason)
	}
	if decision.Reason != types.ReasonHighCorrelation {
		t.Fatalf("expected ReasonHighCorrelation, got %s", decision.Reason)
	}
	want := decimal.NewFromInt(2000)
	if !decision.AuthorisedNotional.Equal(want) {
		t.Fatalf("expected authorised=%s, got %s", want, decision.AuthorisedNotional)
	}
}

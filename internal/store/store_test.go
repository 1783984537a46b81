package store_test

import (
	"testing"

	"github.com/benedict-anokye-davies/brain/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenInMemory(zap.NewNop())
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertDecisionIdempotent(t *testing.T) {
	s := newTestStore(t)

	row := store.DecisionRow{
		SignalID:     "sig-1",
		PhaseID:      "P1",
		Approved:     true,
		Requested:    decimal.NewFromInt(100),
		Authorised:   decimal.NewFromInt(100),
		Reason:       "OK",
		SnapshotJSON: "{}",
	}
	if err := s.UpsertDecision(row); err != nil {
		t.Fatalf("upsert decision: %v", err)
	}

	row.Authorised = decimal.NewFromInt(999)
	row.Reason = "SHOULD_NOT_OVERWRITE"
	if err := s.UpsertDecision(row); err != nil {
		t.Fatalf("second upsert decision: %v", err)
	}

	got, found, err := s.GetDecision("sig-1")
	if err != nil {
		t.Fatalf("get decision: %v", err)
	}
	if !found {
		t.Fatalf("expected decision to be found")
	}
	if !got.Authorised.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected idempotent upsert to preserve original authorised, got %s", got.Authorised)
	}
	if got.Reason != "OK" {
		t.Fatalf("expected reason OK, got %s", got.Reason)
	}
}

func TestGetDecisionNotFound(t *testing.T) {
	s := newTestStore(t)
	_, found, err := s.GetDecision("missing")
	if err != nil {
		t.Fatalf("get decision: %v", err)
	}
	if found {
		t.Fatalf("expected not found")
	}
}

func TestSeenNonceRejectsReplay(t *testing.T) {
	s := newTestStore(t)

	fresh, err := s.SeenNonce("P1", "nonce-a")
	if err != nil {
		t.Fatalf("seen nonce: %v", err)
	}
	if !fresh {
		t.Fatalf("expected first use to be fresh")
	}

	fresh, err = s.SeenNonce("P1", "nonce-a")
	if err != nil {
		t.Fatalf("seen nonce replay: %v", err)
	}
	if fresh {
		t.Fatalf("expected replay to be rejected as not fresh")
	}
}

func TestSeenNonceScopedPerPhase(t *testing.T) {
	s := newTestStore(t)

	if fresh, err := s.SeenNonce("P1", "shared-nonce"); err != nil || !fresh {
		t.Fatalf("expected P1 nonce fresh, fresh=%v err=%v", fresh, err)
	}
	if fresh, err := s.SeenNonce("P2", "shared-nonce"); err != nil || !fresh {
		t.Fatalf("expected P2 nonce fresh despite reuse across phases, fresh=%v err=%v", fresh, err)
	}
}

func TestTreasurySnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, found, err := s.LoadTreasury()
	if err != nil {
		t.Fatalf("load empty treasury: %v", err)
	}
	if found {
		t.Fatalf("expected no treasury row on first boot")
	}

	snap := store.TreasurySnapshot{
		RiskyBalance:  decimal.NewFromInt(8000),
		SafeBalance:   decimal.NewFromInt(2000),
		TotalSwept:    decimal.NewFromInt(500),
		HighWatermark: decimal.NewFromInt(9000),
		ReserveFloor:  decimal.NewFromInt(200),
	}
	if err := s.SaveTreasury(snap); err != nil {
		t.Fatalf("save treasury: %v", err)
	}

	got, found, err := s.LoadTreasury()
	if err != nil {
		t.Fatalf("load treasury: %v", err)
	}
	if !found {
		t.Fatalf("expected treasury row to be found")
	}
	if !got.RiskyBalance.Equal(snap.RiskyBalance) || !got.SafeBalance.Equal(snap.SafeBalance) {
		t.Fatalf("round-tripped treasury snapshot mismatch: got %+v", got)
	}
}

func TestBreakerSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)

	snap := store.BreakerSnapshot{Kind: "hard", Reason: "DAILY_DD", Since: "2026-01-01T00:00:00Z", Until: ""}
	if err := s.SaveBreaker(snap); err != nil {
		t.Fatalf("save breaker: %v", err)
	}

	got, found, err := s.LoadBreaker()
	if err != nil {
		t.Fatalf("load breaker: %v", err)
	}
	if !found {
		t.Fatalf("expected breaker row to be found")
	}
	if got.Kind != "hard" || got.Reason != "DAILY_DD" {
		t.Fatalf("round-tripped breaker snapshot mismatch: got %+v", got)
	}
}

func TestRecordAllocationAndPhaseTrades(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordAllocation(decimal.NewFromInt(5000), decimal.NewFromFloat(0.5), decimal.NewFromFloat(0.4), decimal.NewFromFloat(0.1), "medium"); err != nil {
		t.Fatalf("record allocation: %v", err)
	}
	if err := s.RecordPhaseTrade("P1", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("record phase trade: %v", err)
	}
	if err := s.RecordPhaseTrade("P1", decimal.NewFromInt(-5)); err != nil {
		t.Fatalf("record second phase trade: %v", err)
	}

	trades, err := s.ListPhaseTrades("P1")
	if err != nil {
		t.Fatalf("list phase trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
}

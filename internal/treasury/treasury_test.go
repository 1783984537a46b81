package treasury

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benedict-anokye-davies/brain/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeWallet struct {
	failures int
	calls    []struct{ from, to string }
}

func (w *fakeWallet) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	w.calls = append(w.calls, struct{ from, to string }{from, to})
	if w.failures > 0 {
		w.failures--
		return errors.New("transient wallet error")
	}
	return nil
}

func newTestManager(t *testing.T, wallet Wallet) *Manager {
	t.Helper()
	cfg := types.DefaultTreasuryConfig()
	cfg.RetryBackoffBase = time.Millisecond // keep tests fast
	initial := types.TreasuryState{RiskyBalance: decimal.NewFromInt(15000)}
	m := NewManager(zap.NewNop(), cfg, wallet, initial)
	m.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return m
}

// scenario S7: risky balance 15000 against target 10000 triggers at
// 1.2*10000 = 12000, and the sweep amount equals risky - threshold, i.e.
// 15000 - 12000 = 3000.
func TestCheckSweepTrigger_AboveThreshold(t *testing.T) {
	m := newTestManager(t, &fakeWallet{})
	amount, trigger := m.CheckSweepTrigger()
	if !trigger {
		t.Fatal("expected sweep to trigger at 15000 risky vs 12000 threshold")
	}
	want := decimal.NewFromInt(3000)
	if !amount.Equal(want) {
		t.Fatalf("expected sweep amount %s, got %s", want, amount)
	}
}

func TestCheckSweepTrigger_BelowThreshold(t *testing.T) {
	cfg := types.DefaultTreasuryConfig()
	m := NewManager(zap.NewNop(), cfg, &fakeWallet{}, types.TreasuryState{RiskyBalance: decimal.NewFromInt(5000)})
	_, trigger := m.CheckSweepTrigger()
	if trigger {
		t.Fatal("expected no sweep trigger below threshold")
	}
}

func TestExecuteSweep_IdempotentBySweepID(t *testing.T) {
	wallet := &fakeWallet{}
	m := newTestManager(t, wallet)

	seen := map[string]bool{}
	exists := func(id string) (bool, error) { return seen[id], nil }

	if err := m.ExecuteSweep(context.Background(), "sweep-1", decimal.NewFromInt(5000), exists); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen["sweep-1"] = true

	if err := m.ExecuteSweep(context.Background(), "sweep-1", decimal.NewFromInt(5000), exists); err != nil {
		t.Fatalf("unexpected error on idempotent replay: %v", err)
	}
	if len(wallet.calls) != 1 {
		t.Fatalf("expected exactly one wallet transfer call, got %d", len(wallet.calls))
	}

	state := m.State()
	want := decimal.NewFromInt(10000)
	if !state.RiskyBalance.Equal(want) {
		t.Fatalf("expected risky balance %s after single sweep, got %s", want, state.RiskyBalance)
	}
}

func TestExecuteSweep_RetriesTransientFailures(t *testing.T) {
	wallet := &fakeWallet{failures: 2}
	m := newTestManager(t, wallet)
	exists := func(string) (bool, error) { return false, nil }

	if err := m.ExecuteSweep(context.Background(), "sweep-2", decimal.NewFromInt(1000), exists); err != nil {
		t.Fatalf("expected sweep to succeed after retries, got %v", err)
	}
	if len(wallet.calls) != 3 {
		t.Fatalf("expected 3 attempts (2 failures + 1 success), got %d", len(wallet.calls))
	}
}

func TestManualTransfer_SafeToRiskyForbidden(t *testing.T) {
	m := newTestManager(t, &fakeWallet{})
	err := m.ManualTransfer(context.Background(), "safe", "risky", decimal.NewFromInt(100))
	if err == nil {
		t.Fatal("expected safe-to-risky transfer to be rejected")
	}
}

func TestUpdateWatermark_IsMonotone(t *testing.T) {
	m := newTestManager(t, &fakeWallet{})
	m.UpdateWatermark(decimal.NewFromInt(20000))
	m.UpdateWatermark(decimal.NewFromInt(15000)) // should not decrease

	if !m.State().HighWatermark.Equal(decimal.NewFromInt(20000)) {
		t.Fatalf("expected watermark to stay at 20000, got %s", m.State().HighWatermark)
	}
}

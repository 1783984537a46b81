package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestCorrelationEngine_PerfectlyCorrelatedSeries(t *testing.T) {
	c := NewCorrelationEngine(zap.NewNop(), 60*time.Minute, 5*time.Minute, 5*time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		c.RecordPrice("A", decimal.NewFromInt(int64(100+i)), ts)
		c.RecordPrice("B", decimal.NewFromInt(int64(200+2*i)), ts)
	}
	c.Recompute(base.Add(29 * time.Minute))

	corr, ok := c.CorrelationWith("A", []string{"B"})
	if !ok {
		t.Fatal("expected a correlation comparison to be available")
	}
	if corr.LessThan(decimal.NewFromFloat(0.99)) {
		t.Fatalf("expected near-perfect correlation, got %s", corr)
	}
}

func TestCorrelationEngine_StaleBeforeFirstRecompute(t *testing.T) {
	c := NewCorrelationEngine(zap.NewNop(), 60*time.Minute, 5*time.Minute, 5*time.Minute)
	if !c.IsStale(time.Now()) {
		t.Fatal("expected engine with no recompute history to report stale")
	}
}

func TestCorrelationEngine_StaleAfterWindow(t *testing.T) {
	c := NewCorrelationEngine(zap.NewNop(), 60*time.Minute, 5*time.Minute, 5*time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.RecordPrice("A", decimal.NewFromInt(100), now)
	c.Recompute(now)

	if c.IsStale(now.Add(4 * time.Minute)) {
		t.Fatal("expected fresh matrix within the staleness window")
	}
	if !c.IsStale(now.Add(6 * time.Minute)) {
		t.Fatal("expected matrix older than the staleness window to be stale")
	}
}

func TestCorrelationEngine_TrimsOutsideWindow(t *testing.T) {
	c := NewCorrelationEngine(zap.NewNop(), 10*time.Minute, time.Minute, time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.RecordPrice("A", decimal.NewFromInt(100), base)
	c.RecordPrice("A", decimal.NewFromInt(101), base.Add(20*time.Minute))

	c.mu.RLock()
	n := len(c.series["A"])
	c.mu.RUnlock()
	if n != 1 {
		t.Fatalf("expected stale price point trimmed, got %d entries", n)
	}
}

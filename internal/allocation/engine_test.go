package allocation

import (
	"testing"
	"time"

	"github.com/benedict-anokye-davies/brain/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(zap.NewNop(), types.DefaultAllocationConfig())
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }
	return e
}

func sumWeights(v types.AllocationVector) decimal.Decimal {
	return v.W1.Add(v.W2).Add(v.W3)
}

// scenario S1: equity=800 is Micro tier and should weight almost entirely
// to w1, leverage cap 20x.
func TestCompute_MicroTierWeightsDominatedByW1(t *testing.T) {
	e := newTestEngine(t)
	vec := e.Compute(decimal.NewFromInt(800))
	if vec.Tier != types.TierMicro {
		t.Fatalf("expected Micro tier, got %s", vec.Tier)
	}
	if vec.W1.LessThan(decimal.NewFromFloat(0.9)) {
		t.Fatalf("expected w1 to dominate at micro equity, got %s", vec.W1)
	}
	if e.LeverageCap(vec.Tier).Cmp(decimal.NewFromInt(20)) != 0 {
		t.Fatalf("expected leverage cap 20, got %s", e.LeverageCap(vec.Tier))
	}
}

func TestCompute_MediumTierIsPinned(t *testing.T) {
	e := newTestEngine(t)
	vec := e.Compute(decimal.NewFromInt(10000))
	if vec.Tier != types.TierMedium {
		t.Fatalf("expected Medium tier, got %s", vec.Tier)
	}
	if !vec.W1.Equal(decimal.NewFromFloat(0.2)) || !vec.W2.Equal(decimal.NewFromFloat(0.8)) || !vec.W3.IsZero() {
		t.Fatalf("expected pinned (0.2, 0.8, 0), got (%s, %s, %s)", vec.W1, vec.W2, vec.W3)
	}
}

func TestCompute_InstitutionalClampsW3(t *testing.T) {
	e := newTestEngine(t)
	vec := e.Compute(decimal.NewFromInt(200000))
	if vec.Tier != types.TierInstitutional {
		t.Fatalf("expected Institutional tier, got %s", vec.Tier)
	}
	if vec.W3.GreaterThan(decimal.NewFromFloat(0.8)) {
		t.Fatalf("expected w3 clamped to 0.8, got %s", vec.W3)
	}
	if !sumWeights(vec).Round(8).Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected weights to sum to 1, got %s", sumWeights(vec))
	}
}

func TestCompute_WeightsAlwaysSumToOne(t *testing.T) {
	e := newTestEngine(t)
	equities := []int64{0, 500, 1500, 3250, 5000, 10000, 25000, 37500, 50000, 100000, 1000000}
	for _, eq := range equities {
		vec := e.Compute(decimal.NewFromInt(eq))
		sum := sumWeights(vec).Round(8)
		if !sum.Equal(decimal.NewFromInt(1)) {
			t.Fatalf("equity=%d: expected weights summing to 1, got %s", eq, sum)
		}
	}
}

func TestCompute_CachesWithinTTL(t *testing.T) {
	e := newTestEngine(t)
	base := e.now()
	first := e.Compute(decimal.NewFromInt(5000))

	e.now = func() time.Time { return base.Add(30 * time.Second) }
	second := e.Compute(decimal.NewFromInt(5000)) // same equity within TTL, should hit cache
	if !second.ComputedAt.Equal(first.ComputedAt) {
		t.Fatalf("expected cached vector within TTL, got recompute at %s", second.ComputedAt)
	}

	e.now = func() time.Time { return base.Add(61 * time.Second) }
	third := e.Compute(decimal.NewFromInt(5000))
	if third.ComputedAt.Equal(first.ComputedAt) {
		t.Fatalf("expected cache to expire after TTL")
	}
}

func TestTier_BoundaryEdges(t *testing.T) {
	e := newTestEngine(t)
	cases := []struct {
		equity int64
		want   types.EquityTier
	}{
		{0, types.TierMicro},
		{1499, types.TierMicro},
		{1500, types.TierSmall},
		{4999, types.TierSmall},
		{5000, types.TierMedium},
		{24999, types.TierMedium},
		{25000, types.TierLarge},
		{49999, types.TierLarge},
		{50000, types.TierInstitutional},
	}
	for _, c := range cases {
		got := e.Tier(decimal.NewFromInt(c.equity))
		if got != c.want {
			t.Errorf("equity=%d: expected tier %s, got %s", c.equity, c.want, got)
		}
	}
}

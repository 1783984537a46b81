// Package allocation implements the Allocation Engine (component A): the
// equity-tier sigmoid ramp that derives the phase weight vector (w1, w2,
// w3) and the leverage cap, cached for the configured TTL. Grounded on the
// caching/config-holding shape of internal/sizing/position_sizer.go's
// PositionSizer, generalised from Kelly/risk-budget sizing to the tiered
// sigmoid ramp of §4.1.
package allocation

import (
	"math"
	"sync"
	"time"

	"github.com/benedict-anokye-davies/brain/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine computes and caches the allocation vector for the current equity.
type Engine struct {
	logger *zap.Logger
	cfg    types.AllocationConfig

	mu       sync.RWMutex
	cached   types.AllocationVector
	cachedAt time.Time
	now      func() time.Time
}

// NewEngine constructs an Engine using cfg's ramp constants and tier table.
func NewEngine(logger *zap.Logger, cfg types.AllocationConfig) *Engine {
	return &Engine{
		logger: logger.Named("allocation"),
		cfg:    cfg,
		now:    time.Now,
	}
}

// Compute returns the allocation vector for equity, serving a cached value
// if it was computed for the same equity within the last CacheTTL; a
// different equity is always recomputed.
func (e *Engine) Compute(equity decimal.Decimal) types.AllocationVector {
	now := e.now()

	e.mu.RLock()
	if !e.cachedAt.IsZero() && now.Sub(e.cachedAt) < e.cfg.CacheTTL && e.cached.Equity.Equal(equity) {
		cached := e.cached
		e.mu.RUnlock()
		return cached
	}
	e.mu.RUnlock()

	vec := e.compute(equity, now)

	e.mu.Lock()
	e.cached = vec
	e.cachedAt = now
	e.mu.Unlock()

	return vec
}

// Invalidate clears the cache, forcing the next Compute call to recompute
// regardless of TTL, even for an unchanged equity. The Arbiter calls it
// after every fill.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.cachedAt = time.Time{}
	e.mu.Unlock()
}

func (e *Engine) compute(equity decimal.Decimal, now time.Time) types.AllocationVector {
	tier := e.Tier(equity)

	if tier == types.TierMedium {
		return types.AllocationVector{
			W1:         e.cfg.MediumW1,
			W2:         e.cfg.MediumW2,
			W3:         decimal.Zero,
			Tier:       tier,
			Equity:     equity,
			ComputedAt: now,
		}
	}

	t12 := sigmoid(equity, e.cfg.P2RampCentre, e.cfg.P2RampWidth)
	t23 := sigmoid(equity, e.cfg.P3RampCentre, e.cfg.P3RampWidth)

	w1 := decimal.NewFromInt(1).Sub(t12)
	w2 := t12.Mul(decimal.NewFromInt(1).Sub(t23))
	w3 := t12.Mul(t23)

	if tier == types.TierInstitutional && w3.GreaterThan(e.cfg.P3LargeCap) {
		excess := w3.Sub(e.cfg.P3LargeCap)
		w3 = e.cfg.P3LargeCap
		base := w1.Add(w2)
		if base.GreaterThan(decimal.Zero) {
			w1 = w1.Add(excess.Mul(w1).Div(base))
			w2 = w2.Add(excess.Mul(w2).Div(base))
		} else {
			w1 = w1.Add(excess)
		}
	}

	return types.AllocationVector{
		W1:         w1,
		W2:         w2,
		W3:         w3,
		Tier:       tier,
		Equity:     equity,
		ComputedAt: now,
	}
}

// Tier returns the equity tier for equity, per the §3 boundary table. Tiers
// are lower-bound inclusive, walking the table from the highest edge down.
func (e *Engine) Tier(equity decimal.Decimal) types.EquityTier {
	tier := types.TierMicro
	for _, tb := range e.cfg.Tiers {
		if equity.GreaterThanOrEqual(tb.LowerEdge) {
			tier = tb.Tier
		}
	}
	return tier
}

// LeverageCap returns the maximum leverage multiple for the given tier.
func (e *Engine) LeverageCap(tier types.EquityTier) decimal.Decimal {
	for _, tb := range e.cfg.Tiers {
		if tb.Tier == tier {
			return tb.MaxLeverage
		}
	}
	return decimal.NewFromInt(1)
}

// sigmoid computes σ((x-centre) * 4/width), per §4.1's s(e, centre, width).
func sigmoid(x, centre, width decimal.Decimal) decimal.Decimal {
	if width.IsZero() {
		if x.GreaterThanOrEqual(centre) {
			return decimal.NewFromInt(1)
		}
		return decimal.Zero
	}
	z := x.Sub(centre).Mul(decimal.NewFromInt(4)).Div(width).InexactFloat64()
	return decimal.NewFromFloat(1 / (1 + math.Exp(-z)))
}

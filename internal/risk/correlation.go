package risk

import (
	"sync"
	"time"

	"github.com/benedict-anokye-davies/brain/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const btcSymbol = "BTC/USD"

// pricePoint is a single timestamped mark used to build the 1-minute
// log-return series the correlation guard operates on.
type pricePoint struct {
	at    time.Time
	price decimal.Decimal
}

// CorrelationEngine maintains a rolling window of per-symbol prices and the
// pairwise correlation matrix derived from their log returns, per the
// correlation guard in §4.3. Recompute is decoupled from RecordPrice so the
// matrix age can be measured independently of ingestion liveness.
type CorrelationEngine struct {
	logger *zap.Logger

	mu            sync.RWMutex
	window        time.Duration
	recomputeEvery time.Duration
	staleAfter    time.Duration

	series        map[string][]pricePoint
	matrix        map[string]map[string]decimal.Decimal
	beta          map[string]decimal.Decimal
	lastRecompute time.Time
	lastUpdate    time.Time
}

// NewCorrelationEngine constructs an engine using the given window/recompute
// cadence (60m window, 5m recompute per default config).
func NewCorrelationEngine(logger *zap.Logger, window, recomputeEvery, staleAfter time.Duration) *CorrelationEngine {
	return &CorrelationEngine{
		logger:         logger.Named("correlation"),
		window:         window,
		recomputeEvery: recomputeEvery,
		staleAfter:     staleAfter,
		series:         make(map[string][]pricePoint),
		matrix:         make(map[string]map[string]decimal.Decimal),
		beta:           make(map[string]decimal.Decimal),
	}
}

// RecordPrice appends a price mark for symbol, trimming marks older than the
// rolling window.
func (c *CorrelationEngine) RecordPrice(symbol string, price decimal.Decimal, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pts := append(c.series[symbol], pricePoint{at: at, price: price})
	cutoff := at.Add(-c.window)
	trimmed := pts[:0]
	for _, p := range pts {
		if p.at.After(cutoff) {
			trimmed = append(trimmed, p)
		}
	}
	c.series[symbol] = trimmed
	c.lastUpdate = at
}

// Recompute rebuilds the pairwise correlation matrix and BTC beta from the
// current price series. Called by the Arbiter on its correlation-recompute
// ticker and once at the end of startup recovery.
func (c *CorrelationEngine) Recompute(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	returns := make(map[string][]decimal.Decimal, len(c.series))
	for sym, pts := range c.series {
		prices := make([]decimal.Decimal, len(pts))
		for i, p := range pts {
			prices[i] = p.price
		}
		returns[sym] = utils.LogReturns(prices)
	}

	matrix := make(map[string]map[string]decimal.Decimal, len(returns))
	for symA, retA := range returns {
		matrix[symA] = make(map[string]decimal.Decimal, len(returns))
		for symB, retB := range returns {
			if symA == symB {
				matrix[symA][symB] = decimal.NewFromInt(1)
				continue
			}
			matrix[symA][symB] = utils.PearsonCorrelation(alignTail(retA, retB), alignTail(retB, retA))
		}
	}
	c.matrix = matrix

	btcReturns, hasBTC := returns[btcSymbol]
	beta := make(map[string]decimal.Decimal, len(returns))
	if hasBTC {
		for sym, ret := range returns {
			if sym == btcSymbol {
				beta[sym] = decimal.NewFromInt(1)
				continue
			}
			beta[sym] = betaAgainst(alignTail(ret, btcReturns), alignTail(btcReturns, ret))
		}
	}
	c.beta = beta
	c.lastRecompute = now
}

// alignTail truncates a to the length of the shorter of a and b, keeping the
// most recent entries, so two return series of slightly different length
// (new symbol joining mid-window) can still be compared pairwise.
func alignTail(a, b []decimal.Decimal) []decimal.Decimal {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == len(a) {
		return a
	}
	return a[len(a)-n:]
}

// betaAgainst computes cov(asset, market) / var(market) from two aligned
// return series.
func betaAgainst(asset, market []decimal.Decimal) decimal.Decimal {
	n := len(asset)
	if n == 0 || n != len(market) {
		return decimal.Zero
	}
	meanA := utils.CalculateMean(asset)
	meanM := utils.CalculateMean(market)

	var covar, varM decimal.Decimal
	for i := 0; i < n; i++ {
		da := asset[i].Sub(meanA)
		dm := market[i].Sub(meanM)
		covar = covar.Add(da.Mul(dm))
		varM = varM.Add(dm.Mul(dm))
	}
	if varM.IsZero() {
		return decimal.Zero
	}
	return covar.Div(varM)
}

// CorrelationWith returns the maximum absolute correlation between symbol
// and any symbol already present in openSymbols, and whether any comparison
// was possible at all.
func (c *CorrelationEngine) CorrelationWith(symbol string, openSymbols []string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	row, ok := c.matrix[symbol]
	if !ok {
		return decimal.Zero, false
	}
	found := false
	max := decimal.Zero
	for _, other := range openSymbols {
		if other == symbol {
			continue
		}
		corr, ok := row[other]
		if !ok {
			continue
		}
		found = true
		if corr.Abs().GreaterThan(max) {
			max = corr.Abs()
		}
	}
	return max, found
}

// Beta returns the estimated beta of symbol against BTC.
func (c *CorrelationEngine) Beta(symbol string) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.beta[symbol]
}

// Age returns the time since the matrix was last successfully recomputed.
// A zero lastRecompute (never computed) reports a very large age so callers
// treat it as stale.
func (c *CorrelationEngine) Age(now time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastRecompute.IsZero() {
		return time.Duration(1<<62 - 1)
	}
	return now.Sub(c.lastRecompute)
}

// IsStale reports whether the matrix age exceeds the configured staleness
// bound, triggering the Guardian's fail-safe veto.
func (c *CorrelationEngine) IsStale(now time.Time) bool {
	return c.Age(now) > c.staleAfter
}

// Package performance implements the Performance Tracker (component B):
// the per-phase rolling Sharpe ratio and the performance modifier applied
// to each phase's allocation weight. Grounded on the trade-history/stats
// shape of internal/sizing/position_sizer.go's PositionSizer
// (AddTradeResult/GetTradeStatistics), generalised to the phase-keyed
// modifier schedule of §4.2.
package performance

import (
	"sync"
	"time"

	"github.com/benedict-anokye-davies/brain/pkg/types"
	"github.com/benedict-anokye-davies/brain/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// trade is an in-memory record within the rolling window.
type trade struct {
	pnl decimal.Decimal
	at  time.Time
}

// Tracker maintains a rolling per-phase trade window and derives the
// performance modifier fed into the Allocation Engine's effective weight.
type Tracker struct {
	logger *zap.Logger
	cfg    types.PerformanceConfig

	mu     sync.RWMutex
	trades map[types.PhaseID][]trade
	now    func() time.Time
}

// NewTracker constructs a Tracker using cfg's window/threshold constants.
func NewTracker(logger *zap.Logger, cfg types.PerformanceConfig) *Tracker {
	return &Tracker{
		logger: logger.Named("performance"),
		cfg:    cfg,
		trades: make(map[types.PhaseID][]trade),
		now:    time.Now,
	}
}

// RecordTrade appends a realised PnL event for phase and trims trades
// outside the rolling window.
func (t *Tracker) RecordTrade(phase types.PhaseID, pnl decimal.Decimal) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	t.trades[phase] = append(t.trades[phase], trade{pnl: pnl, at: now})
	t.trim(phase, now)
}

func (t *Tracker) trim(phase types.PhaseID, now time.Time) {
	cutoff := now.Add(-time.Duration(t.cfg.WindowDays) * 24 * time.Hour)
	trades := t.trades[phase]
	kept := trades[:0]
	for _, tr := range trades {
		if tr.at.After(cutoff) {
			kept = append(kept, tr)
		}
	}
	t.trades[phase] = kept
}

// Snapshot computes the current Sharpe ratio and modifier for phase over
// its rolling window. A phase with fewer than MinTradeCount trades in the
// window gets a neutral 1.0 modifier, per §4.2.
func (t *Tracker) Snapshot(phase types.PhaseID) types.PhasePerformanceSnapshot {
	now := t.now()
	t.mu.RLock()
	trades := append([]trade(nil), t.trades[phase]...)
	t.mu.RUnlock()

	cutoff := now.Add(-time.Duration(t.cfg.WindowDays) * 24 * time.Hour)
	pnls := make([]decimal.Decimal, 0, len(trades))
	for _, tr := range trades {
		if tr.at.After(cutoff) {
			pnls = append(pnls, tr.pnl)
		}
	}

	snap := types.PhasePerformanceSnapshot{
		PhaseID:     phase,
		WindowCount: len(pnls),
		ComputedAt:  now,
	}

	if len(pnls) < t.cfg.MinTradeCount {
		snap.Modifier = decimal.NewFromInt(1)
		return snap
	}

	snap.Mean = utils.CalculateMean(pnls)
	snap.StdDev = utils.CalculateStdDev(pnls)
	snap.Sharpe = utils.CalculateSharpeRatio(pnls, decimal.Zero, len(pnls))
	snap.Modifier = t.modifierFor(snap.Sharpe)
	return snap
}

// modifierFor maps a Sharpe ratio to a modifier per §4.2: below zero floors
// at ModifierFloor, above SharpeHighMark saturates at ModifierCeiling, and
// in between it interpolates linearly from ModifierNeutral (at Sharpe = 0)
// to ModifierCeiling (at Sharpe = SharpeHighMark).
func (t *Tracker) modifierFor(sharpe decimal.Decimal) decimal.Decimal {
	if sharpe.LessThan(decimal.Zero) {
		return t.cfg.ModifierFloor
	}
	if sharpe.GreaterThan(t.cfg.SharpeHighMark) {
		return t.cfg.ModifierCeiling
	}
	span := t.cfg.ModifierCeiling.Sub(t.cfg.ModifierNeutral)
	frac := sharpe.Div(t.cfg.SharpeHighMark)
	return t.cfg.ModifierNeutral.Add(span.Mul(frac))
}

// ShouldPersist reports whether at least RecomputeEvery has elapsed since
// lastPersisted, gating the 24h persistence-only recompute schedule; the
// modifier itself is always computed live from the in-memory window.
func (t *Tracker) ShouldPersist(lastPersisted time.Time) bool {
	return t.now().Sub(lastPersisted) >= t.cfg.RecomputeEvery
}

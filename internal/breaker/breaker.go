// Package breaker implements the Circuit Breaker (component E): the
// daily-drawdown, minimum-equity and consecutive-loss trip conditions that
// halt new signal approval and, for a hard trip, flatten all open
// positions. Grounded on the kill-switch state machine in
// internal/execution/risk_manager.go (isDisabled/disabledUntil/
// triggerKillSwitch), generalised to the Normal/SoftCooldown/Hard variant
// set of §3/§4.5.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benedict-anokye-davies/brain/pkg/types"
	"github.com/benedict-anokye-davies/brain/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Flattener closes every open position, per the Hard-trip directive in §4.5.
type Flattener interface {
	Flatten(ctx context.Context) error
}

// Breaker owns the breaker state machine and the consecutive-loss window.
type Breaker struct {
	logger    *zap.Logger
	cfg       types.BreakerConfig
	flattener Flattener

	mu     sync.RWMutex
	state  types.BreakerState
	losses []time.Time
	now    func() time.Time
}

// NewBreaker constructs a Breaker seeded with the persisted (or zero-value,
// meaning Normal) state.
func NewBreaker(logger *zap.Logger, cfg types.BreakerConfig, flattener Flattener, initial types.BreakerState) *Breaker {
	if initial.Kind == "" {
		initial.Kind = types.BreakerNormal
	}
	return &Breaker{
		logger:    logger.Named("breaker"),
		cfg:       cfg,
		flattener: flattener,
		state:     initial,
		now:       time.Now,
	}
}

// State returns the current breaker state, resolving an expired
// SoftCooldown back to Normal.
func (b *Breaker) State() types.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireCooldownLocked()
	return b.state
}

func (b *Breaker) expireCooldownLocked() {
	if b.state.Kind == types.BreakerSoftCooldown && !b.now().Before(b.state.Until) {
		b.state = types.BreakerState{Kind: types.BreakerNormal, Since: b.now()}
	}
}

// IsTripped reports whether new signals should currently be blocked.
func (b *Breaker) IsTripped() bool {
	s := b.State()
	return s.Kind != types.BreakerNormal
}

// CheckEquity evaluates the hard-trip drawdown and minimum-equity
// conditions. dailyStartEquity is the equity recorded at the most recent
// daily reset.
func (b *Breaker) CheckEquity(ctx context.Context, equity, dailyStartEquity decimal.Decimal) {
	if equity.LessThan(b.cfg.MinEquityFloor) {
		b.triggerHard(ctx, "MIN_EQUITY")
		return
	}
	if dailyStartEquity.IsZero() {
		return
	}
	drawdown := equity.Sub(dailyStartEquity).Div(dailyStartEquity)
	if drawdown.LessThanOrEqual(b.cfg.DailyDrawdownLimit) {
		b.triggerHard(ctx, "DAILY_DD")
	}
}

// RecordLoss registers a losing trade; three consecutive losses within the
// soft-cooldown window trip a SoftCooldown, per §4.5.
func (b *Breaker) RecordLoss(ctx context.Context) {
	now := b.now()
	b.mu.Lock()
	b.losses = append(b.losses, now)
	cutoff := now.Add(-b.cfg.SoftCooldownWindow)
	kept := b.losses[:0]
	for _, at := range b.losses {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	b.losses = kept
	trip := len(b.losses) >= b.cfg.SoftCooldownLosses
	b.mu.Unlock()

	if trip {
		b.triggerSoft(now)
	}
}

// RecordWin resets the consecutive-loss window.
func (b *Breaker) RecordWin() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.losses = nil
}

// triggerSoft trips a SoftCooldown unless the breaker is already Hard (a
// Hard trip is never downgraded) or already in an active SoftCooldown
// (idempotent).
func (b *Breaker) triggerSoft(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireCooldownLocked()
	if b.state.Kind != types.BreakerNormal {
		return
	}
	b.state = types.BreakerState{
		Kind:   types.BreakerSoftCooldown,
		Reason: "CONSECUTIVE_LOSSES",
		Since:  now,
		Until:  now.Add(b.cfg.SoftCooldownDuration),
	}
	b.logger.Warn("soft cooldown tripped", zap.Time("until", b.state.Until))
}

// triggerHard trips a Hard breaker (idempotent if already Hard) and
// attempts to flatten every open position, retrying with exponential
// backoff before paging the operator on persistent failure.
func (b *Breaker) triggerHard(ctx context.Context, reason string) {
	b.mu.Lock()
	if b.state.Kind == types.BreakerHard {
		b.mu.Unlock()
		return
	}
	b.state = types.BreakerState{Kind: types.BreakerHard, Reason: reason, Since: b.now()}
	b.mu.Unlock()

	b.logger.Error("hard breaker tripped", zap.String("reason", reason))

	retryCfg := utils.DefaultRetryConfig()
	_, err := utils.Retry(retryCfg, func() (struct{}, error) {
		return struct{}{}, b.flattener.Flatten(ctx)
	})
	if err != nil {
		b.logger.Error("flatten failed after retries, paging operator",
			zap.String("reason", reason), zap.Error(err))
	}
}

// Reset clears a tripped breaker back to Normal. Only an operator action
// (§6.5 breaker.reset) may do this; operatorID must be non-empty. Reset
// while already Normal is a no-op: no transition, no event, per §4.5.
func (b *Breaker) Reset(operatorID string) error {
	if operatorID == "" {
		return fmt.Errorf("breaker reset requires an operator id")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireCooldownLocked()
	if b.state.Kind == types.BreakerNormal {
		return nil
	}
	b.state = types.BreakerState{Kind: types.BreakerNormal, Since: b.now()}
	b.losses = nil
	b.logger.Info("breaker reset by operator", zap.String("operator_id", operatorID))
	return nil
}

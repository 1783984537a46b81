// Package treasury implements the Capital Flow Manager (component D): the
// ratcheted high-watermark sweep from the risky balance into the safe
// balance. Grounded on the mutex-guarded state/config shape of
// internal/execution/risk_manager.go's RiskManager, generalised from the
// kill-switch's disabled/cooldown state to the monotone watermark and
// idempotent-sweep state machine of §4.4.
package treasury

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

// Wallet is the external transfer surface, per §6.3: idempotent transfer
// between the risky and safe balances.
type Wallet interface {
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error
}

// Manager owns the treasury state and the sweep schedule.
type Manager struct {
	logger *zap.Logger
	cfg    types.TreasuryConfig
	wallet Wallet

	mu                sync.RWMutex
	state             types.TreasuryState
	lastScheduledDate string // "2006-01-02" UTC, guards the daily 00:00 check
	lastEquitySeen    decimal.Decimal
	now               func() time.Time
}

// NewManager constructs a Manager seeded with the persisted (or zero-value)
// treasury state.
func NewManager(logger *zap.Logger, cfg types.TreasuryConfig, wallet Wallet, initial types.TreasuryState) *Manager {
	if initial.ReserveFloor.IsZero() {
		initial.ReserveFloor = cfg.ReserveFloor
	}
	return &Manager{
		logger: logger.Named("treasury"),
		cfg:    cfg,
		wallet: wallet,
		state:  initial,
		now:    time.Now,
	}
}

// State returns a copy of the current treasury state.
func (m *Manager) State() types.TreasuryState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// UpdateWatermark ratchets the high watermark up to equity; it never
// decreases, per the monotone invariant in §3.
func (m *Manager) UpdateWatermark(equity decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if equity.GreaterThan(m.state.HighWatermark) {
		m.state.HighWatermark = equity
	}
}

// CheckSweepTrigger reports whether the risky balance has reached the sweep
// threshold (target * SweepMultiple) and, if so, the amount to sweep down to
// that same threshold, per §4.4/§7 scenario S7. The amount is further
// clamped so the post-sweep risky balance never drops below ReserveFloor.
func (m *Manager) CheckSweepTrigger() (amount decimal.Decimal, trigger bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	threshold := m.cfg.TargetAllocation.Mul(m.cfg.SweepMultiple)
	if m.state.RiskyBalance.LessThan(threshold) {
		return decimal.Zero, false
	}
	amount = m.state.RiskyBalance.Sub(threshold)
	if maxAmount := m.state.RiskyBalance.Sub(m.state.ReserveFloor); amount.GreaterThan(maxAmount) {
		amount = maxAmount
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	return amount, true
}

// ShouldRunScheduledCheck reports whether the daily 00:00 UTC boundary has
// been crossed since the last check, or equity has jumped more than
// EquityJumpTrigger since it was last observed, per §4.4's schedule.
func (m *Manager) ShouldRunScheduledCheck(equity decimal.Decimal) bool {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	today := now.UTC().Format("2006-01-02")
	dailyDue := today != m.lastScheduledDate

	jumpDue := false
	if !m.lastEquitySeen.IsZero() {
		change := equity.Sub(m.lastEquitySeen).Div(m.lastEquitySeen).Abs()
		jumpDue = change.GreaterThan(m.cfg.EquityJumpTrigger)
	}

	if dailyDue || jumpDue {
		m.lastScheduledDate = today
		m.lastEquitySeen = equity
		return true
	}
	return false
}

// ExecuteSweep moves amount from the risky balance to the safe balance,
// identified by sweepID for idempotency: exists reports whether sweepID has
// already been recorded (e.g. via the store's treasury_ops ledger), in
// which case ExecuteSweep is a no-op. The wallet transfer is retried up to
// MaxRetries times with exponential backoff starting at RetryBackoffBase.
func (m *Manager) ExecuteSweep(ctx context.Context, sweepID string, amount decimal.Decimal, exists func(string) (bool, error)) error {
	already, err := exists(sweepID)
	if err != nil {
		return fmt.Errorf("check sweep idempotency: %w", err)
	}
	if already {
		return nil
	}

	retryCfg := utils.RetryConfig{
		MaxAttempts:  m.cfg.MaxRetries + 1,
		InitialDelay: m.cfg.RetryBackoffBase,
		MaxDelay:     m.cfg.RetryBackoffBase * time.Duration(1<<uint(m.cfg.MaxRetries)),
		Multiplier:   2.0,
	}
	_, err = utils.Retry(retryCfg, func() (struct{}, error) {
		return struct{}{}, m.wallet.Transfer(ctx, "risky", "safe", amount)
	})
	if err != nil {
		return fmt.Errorf("execute sweep %s: %w", sweepID, err)
	}

	m.mu.Lock()
	m.state.RiskyBalance = m.state.RiskyBalance.Sub(amount)
	m.state.SafeBalance = m.state.SafeBalance.Add(amount)
	m.state.TotalSwept = m.state.TotalSwept.Add(amount)
	m.mu.Unlock()

	m.logger.Info("sweep executed", zap.String("sweep_id", sweepID), zap.String("amount", amount.String()))
	return nil
}

// ManualTransfer services the operator surface's treasury.manual_transfer
// command, per §6.5: a safe-to-risky transfer is always rejected regardless
// of operator intent.
func (m *Manager) ManualTransfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	if from == "safe" && to == "risky" {
		return fmt.Errorf("safe to risky transfer is forbidden")
	}
	if err := m.wallet.Transfer(ctx, from, to, amount); err != nil {
		return fmt.Errorf("manual transfer: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case from == "risky" && to == "safe":
		m.state.RiskyBalance = m.state.RiskyBalance.Sub(amount)
		m.state.SafeBalance = m.state.SafeBalance.Add(amount)
	}
	return nil
}

// ApplyRiskyDelta adjusts the risky balance to reflect a fill's realised
// PnL, feeding the Arbiter's post-fill equity bookkeeping.
func (m *Manager) ApplyRiskyDelta(pnl decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.RiskyBalance = m.state.RiskyBalance.Add(pnl)
}

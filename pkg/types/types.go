// Package types provides shared domain types for the Brain.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an intent signal or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign returns +1 for Buy and -1 for Sell, for signed-notional arithmetic.
func (s Side) Sign() int64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// PhaseID identifies one of the three upstream strategy generators.
type PhaseID string

const (
	PhaseP1 PhaseID = "P1"
	PhaseP2 PhaseID = "P2"
	PhaseP3 PhaseID = "P3"
)

// Priority returns the strict dispatch priority for a phase; higher drains first.
func (p PhaseID) Priority() int {
	switch p {
	case PhaseP3:
		return 3
	case PhaseP2:
		return 2
	case PhaseP1:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is one of the three recognised phases.
func (p PhaseID) Valid() bool {
	return p == PhaseP1 || p == PhaseP2 || p == PhaseP3
}

// EquityTier is a coarse bucket of account equity governing leverage and allocation.
type EquityTier string

const (
	TierMicro         EquityTier = "micro"
	TierSmall         EquityTier = "small"
	TierMedium        EquityTier = "medium"
	TierLarge         EquityTier = "large"
	TierInstitutional EquityTier = "institutional"
)

// IntentSignal is an immutable request from a phase producer to trade.
type IntentSignal struct {
	SignalID          string          `json:"signal_id"`
	PhaseID           PhaseID         `json:"phase_id"`
	Symbol            string          `json:"symbol"`
	Side              Side            `json:"side"`
	RequestedNotional decimal.Decimal `json:"requested_notional"`
	Hedge             bool            `json:"hedge,omitempty"`
	TimestampMs       int64           `json:"timestamp_ms"`
	Nonce             string          `json:"nonce"`
	Signature         string          `json:"signature"`
}

// Position is a single open position, owned by the execution engine; the
// Brain only ever holds a read-synchronised snapshot of these.
type Position struct {
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Notional decimal.Decimal `json:"notional"`
	Entry    decimal.Decimal `json:"entry_price"`
	OpenedAt time.Time       `json:"opened_at"`
}

// SignedNotional returns the position's notional signed by side, for delta math.
func (p Position) SignedNotional() decimal.Decimal {
	if p.Side == SideSell {
		return p.Notional.Neg()
	}
	return p.Notional
}

// AllocationVector is the weight triple produced by the Allocation Engine.
type AllocationVector struct {
	W1, W2, W3 decimal.Decimal
	Tier       EquityTier
	Equity     decimal.Decimal
	ComputedAt time.Time
}

// Weight returns the weight assigned to the given phase.
func (a AllocationVector) Weight(phase PhaseID) decimal.Decimal {
	switch phase {
	case PhaseP1:
		return a.W1
	case PhaseP2:
		return a.W2
	case PhaseP3:
		return a.W3
	default:
		return decimal.Zero
	}
}

// TradeRecord is a single realised PnL event attributed to a phase.
type TradeRecord struct {
	PhaseID   PhaseID
	PnL       decimal.Decimal
	Timestamp time.Time
}

// PhasePerformanceSnapshot is the derived performance state for one phase.
type PhasePerformanceSnapshot struct {
	PhaseID      PhaseID
	WindowCount  int
	Mean         decimal.Decimal
	StdDev       decimal.Decimal
	Sharpe       decimal.Decimal
	Modifier     decimal.Decimal
	ComputedAt   time.Time
}

// BreakerStateKind enumerates the circuit breaker's variant.
type BreakerStateKind string

const (
	BreakerNormal       BreakerStateKind = "normal"
	BreakerSoftCooldown BreakerStateKind = "soft_cooldown"
	BreakerHard         BreakerStateKind = "hard"
)

// BreakerState is the circuit breaker's current variant and context.
type BreakerState struct {
	Kind    BreakerStateKind
	Reason  string
	Since   time.Time
	Until   time.Time // meaningful only for SoftCooldown
}

// TreasuryState tracks the ratcheted risky/safe balance split.
type TreasuryState struct {
	RiskyBalance   decimal.Decimal
	SafeBalance    decimal.Decimal
	TotalSwept     decimal.Decimal
	HighWatermark  decimal.Decimal
	ReserveFloor   decimal.Decimal
}

// RiskCheckReason enumerates the stable reason codes the Guardian and
// Breaker attach to every decision, per the error-handling policy.
type RiskCheckReason string

const (
	ReasonOK                 RiskCheckReason = "OK"
	ReasonHedgeAutoApprove   RiskCheckReason = "HEDGE_AUTO_APPROVE"
	ReasonLeverageCap        RiskCheckReason = "LEVERAGE_CAP"
	ReasonNetDelta           RiskCheckReason = "NET_DELTA"
	ReasonHighCorrelation    RiskCheckReason = "HIGH_CORRELATION"
	ReasonStaleRiskData      RiskCheckReason = "STALE_RISK_DATA"
	ReasonBreakerDailyDD     RiskCheckReason = "BREAKER_DAILY_DD"
	ReasonBreakerMinEquity   RiskCheckReason = "BREAKER_MIN_EQUITY"
	ReasonCooldown           RiskCheckReason = "COOLDOWN"
	ReasonMalformedSignal    RiskCheckReason = "MALFORMED_SIGNAL"
	ReasonAuthFailure        RiskCheckReason = "AUTH_FAILURE"
	ReasonUnknownPhase       RiskCheckReason = "UNKNOWN_PHASE"
	ReasonDuplicateSignal    RiskCheckReason = "DUPLICATE_SIGNAL"
)

// GuardianDecision is the Risk Guardian's verdict on a candidate signal.
type GuardianDecision struct {
	Approved          bool
	AuthorisedNotional decimal.Decimal
	Reason            RiskCheckReason
}

// RiskSnapshot is a point-in-time portfolio risk measurement, persisted to
// risk_snapshots.
type RiskSnapshot struct {
	Timestamp         time.Time
	Leverage          decimal.Decimal
	NetDelta          decimal.Decimal
	CorrelationScore  decimal.Decimal
	PortfolioBeta     decimal.Decimal
	VaR95             decimal.Decimal
}

// BrainDecision is the Arbiter's at-most-once verdict for a signal_id.
type BrainDecision struct {
	SignalID             string
	PhaseID              PhaseID
	Approved             bool
	AuthorisedNotional   decimal.Decimal
	Reason               string
	AllocationSnapshot   AllocationVector
	RiskSnapshot         RiskSnapshot
	PerformanceModifier  decimal.Decimal
	Timestamp            time.Time
}

// Package types provides configuration types shared across Brain components.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TierBounds is the lower-inclusive equity boundary for a tier and its
// leverage cap.
type TierBounds struct {
	Tier      EquityTier
	LowerEdge decimal.Decimal
	MaxLeverage decimal.Decimal
}

// AllocationConfig parameterises the Allocation Engine's sigmoid ramps.
type AllocationConfig struct {
	P2RampCentre   decimal.Decimal
	P2RampWidth    decimal.Decimal
	P3RampCentre   decimal.Decimal
	P3RampWidth    decimal.Decimal
	P3LargeCap     decimal.Decimal // 0.8 cap on w3, applied in the Institutional tier only
	MediumW1       decimal.Decimal // pinned 0.2
	MediumW2       decimal.Decimal // pinned 0.8
	CacheTTL       time.Duration
	Tiers          []TierBounds
}

// DefaultAllocationConfig returns the tier table and ramp constants from §3/§4.1.
func DefaultAllocationConfig() AllocationConfig {
	return AllocationConfig{
		P2RampCentre: decimal.NewFromInt(3250),
		P2RampWidth:  decimal.NewFromInt(3500),
		P3RampCentre: decimal.NewFromInt(37500),
		P3RampWidth:  decimal.NewFromInt(25000),
		P3LargeCap:   decimal.NewFromFloat(0.8),
		MediumW1:     decimal.NewFromFloat(0.2),
		MediumW2:     decimal.NewFromFloat(0.8),
		CacheTTL:     60 * time.Second,
		Tiers: []TierBounds{
			{Tier: TierMicro, LowerEdge: decimal.NewFromInt(0), MaxLeverage: decimal.NewFromInt(20)},
			{Tier: TierSmall, LowerEdge: decimal.NewFromInt(1500), MaxLeverage: decimal.NewFromInt(10)},
			{Tier: TierMedium, LowerEdge: decimal.NewFromInt(5000), MaxLeverage: decimal.NewFromInt(5)},
			{Tier: TierLarge, LowerEdge: decimal.NewFromInt(25000), MaxLeverage: decimal.NewFromInt(3)},
			{Tier: TierInstitutional, LowerEdge: decimal.NewFromInt(50000), MaxLeverage: decimal.NewFromInt(2)},
		},
	}
}

// PerformanceConfig parameterises the rolling Sharpe/modifier computation.
type PerformanceConfig struct {
	WindowDays       int
	MinTradeCount    int
	ModifierFloor    decimal.Decimal
	ModifierNeutral  decimal.Decimal // interpolation base at Sharpe = 0
	ModifierCeiling  decimal.Decimal
	SharpeHighMark   decimal.Decimal // 2.0: modifier saturates at ModifierCeiling
	RecomputeEvery   time.Duration
}

// DefaultPerformanceConfig returns the §4.2 constants.
func DefaultPerformanceConfig() PerformanceConfig {
	return PerformanceConfig{
		WindowDays:      7,
		MinTradeCount:   10,
		ModifierFloor:   decimal.NewFromFloat(0.5),
		ModifierNeutral: decimal.NewFromFloat(1.0),
		ModifierCeiling: decimal.NewFromFloat(1.2),
		SharpeHighMark:  decimal.NewFromFloat(2.0),
		RecomputeEvery:  24 * time.Hour,
	}
}

// RiskConfig parameterises the Risk Guardian.
type RiskConfig struct {
	CorrelationThreshold     decimal.Decimal // 0.8
	CorrelationHaircut       decimal.Decimal // 0.5
	CorrelationWindow        time.Duration   // 60m
	CorrelationRecompute     time.Duration   // 5m
	CorrelationStaleAfter    time.Duration   // 5m, same as recompute period
	NetDeltaBound            decimal.Decimal // 1.0x equity
}

// DefaultRiskConfig returns the §4.3/§5 constants.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		CorrelationThreshold:  decimal.NewFromFloat(0.8),
		CorrelationHaircut:    decimal.NewFromFloat(0.5),
		CorrelationWindow:     60 * time.Minute,
		CorrelationRecompute:  5 * time.Minute,
		CorrelationStaleAfter: 5 * time.Minute,
		NetDeltaBound:         decimal.NewFromFloat(1.0),
	}
}

// TreasuryConfig parameterises the Capital Flow Manager.
type TreasuryConfig struct {
	TargetAllocation decimal.Decimal // single configured constant, the same for every tier
	SweepMultiple    decimal.Decimal // 1.2
	ReserveFloor     decimal.Decimal // 200
	MaxRetries       int
	RetryBackoffBase time.Duration
	EquityJumpTrigger decimal.Decimal // 0.10 — re-evaluate sweep after >10% equity jump
}

// DefaultTreasuryConfig returns the §4.4 constants.
func DefaultTreasuryConfig() TreasuryConfig {
	return TreasuryConfig{
		TargetAllocation:  decimal.NewFromInt(10000),
		SweepMultiple:     decimal.NewFromFloat(1.2),
		ReserveFloor:      decimal.NewFromInt(200),
		MaxRetries:        3,
		RetryBackoffBase:  time.Second,
		EquityJumpTrigger: decimal.NewFromFloat(0.10),
	}
}

// BreakerConfig parameterises the Circuit Breaker.
type BreakerConfig struct {
	DailyDrawdownLimit   decimal.Decimal // -0.15
	MinEquityFloor       decimal.Decimal // 150
	SoftCooldownLosses   int             // 3 consecutive losses
	SoftCooldownWindow   time.Duration   // 60m
	SoftCooldownDuration time.Duration   // 30m
}

// DefaultBreakerConfig returns the §4.5 constants.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		DailyDrawdownLimit:   decimal.NewFromFloat(-0.15),
		MinEquityFloor:       decimal.NewFromInt(150),
		SoftCooldownLosses:   3,
		SoftCooldownWindow:   60 * time.Minute,
		SoftCooldownDuration: 30 * time.Minute,
	}
}

// ArbiterConfig parameterises the Arbiter's pipeline and scheduler.
type ArbiterConfig struct {
	QueueCapacityPerPhase int
	MetricRefreshInterval time.Duration
	LatencyBudget         time.Duration // 100ms p99 target, excludes egress RPC
	EgressTimeout         time.Duration // 500ms
	SweepTimeout          time.Duration // 5s
	NonceReplayWindow     time.Duration // 5m
	SignatureTolerance    time.Duration // 300s
}

// DefaultArbiterConfig returns the §4.6/§5/§6.1 constants.
func DefaultArbiterConfig() ArbiterConfig {
	return ArbiterConfig{
		QueueCapacityPerPhase: 4096,
		MetricRefreshInterval: 60 * time.Second,
		LatencyBudget:         100 * time.Millisecond,
		EgressTimeout:         500 * time.Millisecond,
		SweepTimeout:          5 * time.Second,
		NonceReplayWindow:     5 * time.Minute,
		SignatureTolerance:    300 * time.Second,
	}
}

// ServerConfig configures the ingress/operator HTTP+WS surface.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Package risk implements the Risk Guardian (component C): the veto layer
// that authorises or rejects a weighted intent before it reaches the
// Arbiter's decision. Grounded on the teacher's RiskManager in
// internal/execution/risk_manager.go, generalised from position/exposure
// limits to the leverage, net-delta and correlation checks of §4.3.
package risk

import (
	"sync"
	"time"

	"github.com/benedict-anokye-davies/brain/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Guardian evaluates candidate signals against leverage, delta and
// correlation bounds, vetoing or haircutting authorised notional.
type Guardian struct {
	logger *zap.Logger
	cfg    types.RiskConfig
	corr   *CorrelationEngine

	mu   sync.RWMutex
	now  func() time.Time
}

// NewGuardian constructs a Guardian backed by corr for correlation/beta
// lookups.
func NewGuardian(logger *zap.Logger, cfg types.RiskConfig, corr *CorrelationEngine) *Guardian {
	return &Guardian{
		logger: logger.Named("risk-guardian"),
		cfg:    cfg,
		corr:   corr,
		now:    time.Now,
	}
}

// CheckIntent evaluates signal against the current open positions and
// equity/leverage-cap context, returning the authorised notional (possibly
// haircut) and the reason code for the decision.
//
// The hedge fast path is evaluated first: a PhaseP3 signal that reduces
// the absolute net delta is auto-approved at its full requested notional
// without consulting correlation or leverage, per §4.3.
func (g *Guardian) CheckIntent(signal types.IntentSignal, positions []types.Position, equity decimal.Decimal, leverageCap decimal.Decimal) types.GuardianDecision {
	g.mu.RLock()
	defer g.mu.RUnlock()

	netDeltaBefore := netDelta(positions)
	candidateDelta := signal.Side.Sign()
	signedRequest := decimal.NewFromInt(candidateDelta).Mul(signal.RequestedNotional)
	netDeltaAfter := netDeltaBefore.Add(signedRequest)

	if signal.PhaseID == types.PhaseP3 && netDeltaAfter.Abs().LessThan(netDeltaBefore.Abs()) {
		return types.GuardianDecision{
			Approved:           true,
			AuthorisedNotional: signal.RequestedNotional,
			Reason:             types.ReasonHedgeAutoApprove,
		}
	}

	now := g.now()
	if g.corr.IsStale(now) {
		return types.GuardianDecision{
			Approved:           false,
			AuthorisedNotional: decimal.Zero,
			Reason:             types.ReasonStaleRiskData,
		}
	}

	projectedGross := grossExposure(positions).Add(signal.RequestedNotional)
	if !equity.IsZero() {
		projectedLeverage := projectedGross.Div(equity)
		if projectedLeverage.GreaterThan(leverageCap) {
			return types.GuardianDecision{
				Approved:           false,
				AuthorisedNotional: decimal.Zero,
				Reason:             types.ReasonLeverageCap,
			}
		}
	}

	if !equity.IsZero() {
		bound := equity.Mul(g.cfg.NetDeltaBound)
		if netDeltaAfter.Abs().GreaterThan(bound) {
			return types.GuardianDecision{
				Approved:           false,
				AuthorisedNotional: decimal.Zero,
				Reason:             types.ReasonNetDelta,
			}
		}
	}

	sameSideSymbols := make([]string, 0, len(positions))
	for _, p := range positions {
		if p.Side == signal.Side {
			sameSideSymbols = append(sameSideSymbols, p.Symbol)
		}
	}
	if corr, ok := g.corr.CorrelationWith(signal.Symbol, sameSideSymbols); ok && corr.GreaterThan(g.cfg.CorrelationThreshold) {
		authorised := signal.RequestedNotional.Mul(g.cfg.CorrelationHaircut)
		g.logger.Info("correlation haircut applied",
			zap.String("symbol", signal.Symbol),
			zap.String("correlation", corr.String()))
		return types.GuardianDecision{
			Approved:           true,
			AuthorisedNotional: authorised,
			Reason:             types.ReasonHighCorrelation,
		}
	}

	return types.GuardianDecision{
		Approved:           true,
		AuthorisedNotional: signal.RequestedNotional,
		Reason:             types.ReasonOK,
	}
}

// Snapshot produces a point-in-time risk measurement for persistence to
// risk_snapshots, independent of any single intent check.
func (g *Guardian) Snapshot(positions []types.Position, equity decimal.Decimal) types.RiskSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	now := g.now()
	leverage := decimal.Zero
	if !equity.IsZero() {
		leverage = grossExposure(positions).Div(equity)
	}

	var betaSum decimal.Decimal
	n := 0
	for _, p := range positions {
		betaSum = betaSum.Add(g.corr.Beta(p.Symbol).Mul(p.SignedNotional()))
		n++
	}
	portfolioBeta := decimal.Zero
	if !equity.IsZero() && n > 0 {
		portfolioBeta = betaSum.Div(equity)
	}

	maxCorr := decimal.Zero
	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	for _, p := range positions {
		if corr, ok := g.corr.CorrelationWith(p.Symbol, symbols); ok && corr.GreaterThan(maxCorr) {
			maxCorr = corr
		}
	}

	return types.RiskSnapshot{
		Timestamp:        now,
		Leverage:         leverage,
		NetDelta:         netDelta(positions),
		CorrelationScore: maxCorr,
		PortfolioBeta:    portfolioBeta,
		VaR95:            decimal.Zero, // no market-data feed available to the Brain; left at zero, see Non-goals
	}
}

func netDelta(positions []types.Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.SignedNotional())
	}
	return total
}

func grossExposure(positions []types.Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.Notional)
	}
	return total
}

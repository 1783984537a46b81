// Package arbiter implements the Arbiter (component F): the Brain's single
// decision pipeline. Grounded on the Start/Stop lifecycle and background
// loop shape of internal/orchestrator/orchestrator.go's TradingOrchestrator,
// generalised from strategy-detection dispatch to the strict-priority
// intake queues and seven-step decision pipeline of §4.6. Egress RPCs are
// dispatched onto internal/workers.Pool so the persisted-decision latency
// tracked against the §5 100ms budget never includes the execution
// engine's round trip.
package arbiter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/benedict-anokye-davies/brain/internal/allocation"
	"github.com/benedict-anokye-davies/brain/internal/breaker"
	"github.com/benedict-anokye-davies/brain/internal/egress"
	"github.com/benedict-anokye-davies/brain/internal/events"
	"github.com/benedict-anokye-davies/brain/internal/metrics"
	"github.com/benedict-anokye-davies/brain/internal/performance"
	"github.com/benedict-anokye-davies/brain/internal/positions"
	"github.com/benedict-anokye-davies/brain/internal/risk"
	"github.com/benedict-anokye-davies/brain/internal/store"
	"github.com/benedict-anokye-davies/brain/internal/treasury"
	"github.com/benedict-anokye-davies/brain/internal/workers"
	"github.com/benedict-anokye-davies/brain/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Arbiter owns the three per-phase priority queues and the decision
// pipeline that turns an IntentSignal into an at-most-once BrainDecision.
type Arbiter struct {
	logger *zap.Logger
	cfg    types.ArbiterConfig
	corrCfg types.RiskConfig

	allocation  *allocation.Engine
	performance *performance.Tracker
	guardian    *risk.Guardian
	corr        *risk.CorrelationEngine
	treasuryMgr *treasury.Manager
	breaker     *breaker.Breaker
	positions   *positions.Store
	egress      *egress.Client
	store       *store.Store
	metrics     *metrics.Registry
	bus         *events.EventBus

	dispatchPool *workers.Pool
	queues       map[types.PhaseID]chan types.IntentSignal

	mu               sync.RWMutex
	equity           decimal.Decimal
	dailyStartEquity decimal.Decimal
	lastDailyDate    string
	lastBreakerKind  types.BreakerStateKind

	now func() time.Time

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Deps bundles the component instances the Arbiter orchestrates, wired
// together by cmd/server/main.go at startup.
type Deps struct {
	Allocation  *allocation.Engine
	Performance *performance.Tracker
	Guardian    *risk.Guardian
	Correlation *risk.CorrelationEngine
	Treasury    *treasury.Manager
	Breaker     *breaker.Breaker
	Positions   *positions.Store
	Egress      *egress.Client
	Store       *store.Store
	Metrics     *metrics.Registry
	Bus         *events.EventBus
}

// NewArbiter constructs an Arbiter. corrCfg supplies the correlation
// recompute cadence (§4.3); every other schedule comes from cfg.
func NewArbiter(logger *zap.Logger, cfg types.ArbiterConfig, corrCfg types.RiskConfig, deps Deps) *Arbiter {
	queues := make(map[types.PhaseID]chan types.IntentSignal, 3)
	for _, p := range []types.PhaseID{types.PhaseP1, types.PhaseP2, types.PhaseP3} {
		queues[p] = make(chan types.IntentSignal, cfg.QueueCapacityPerPhase)
	}

	poolCfg := workers.DefaultPoolConfig("arbiter-dispatch")
	poolCfg.TaskTimeout = cfg.EgressTimeout

	return &Arbiter{
		logger:      logger.Named("arbiter"),
		cfg:         cfg,
		corrCfg:     corrCfg,
		allocation:  deps.Allocation,
		performance: deps.Performance,
		guardian:    deps.Guardian,
		corr:        deps.Correlation,
		treasuryMgr: deps.Treasury,
		breaker:     deps.Breaker,
		positions:   deps.Positions,
		egress:      deps.Egress,
		store:       deps.Store,
		metrics:     deps.Metrics,
		bus:         deps.Bus,
		dispatchPool: workers.NewPool(logger.Named("arbiter-dispatch"), poolCfg),
		queues:       queues,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the priority-drain loop and the periodic metric/schedule
// refresh loop. It is idempotent: calling Start on an already-running
// Arbiter is a no-op.
func (a *Arbiter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.stopCh = make(chan struct{})

	a.dispatchPool.Start()

	a.wg.Add(2)
	go a.run(ctx)
	go a.refreshLoop(ctx)

	a.logger.Info("arbiter started")
	return nil
}

// Stop signals both background loops to exit, waits for them, and drains
// the dispatch pool.
func (a *Arbiter) Stop() error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	close(a.stopCh)
	a.wg.Wait()

	err := a.dispatchPool.Stop()
	a.logger.Info("arbiter stopped")
	return err
}

// Equity returns the Arbiter's current notional equity estimate.
func (a *Arbiter) Equity() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.equity
}

func (a *Arbiter) addEquity(delta decimal.Decimal) decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.equity = a.equity.Add(delta)
	return a.equity
}

func (a *Arbiter) dailyEquityFloor() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dailyStartEquity
}

// RecordPrice feeds a market mark into the correlation engine, for any
// ingress price feed the deployment wires up.
func (a *Arbiter) RecordPrice(symbol string, price decimal.Decimal, at time.Time) {
	a.corr.RecordPrice(symbol, price, at)
}

// CheckNonce reports whether nonce is fresh for phaseID, recording it if
// so. Used by the ingress signature-validation layer.
func (a *Arbiter) CheckNonce(phaseID, nonce string) (bool, error) {
	return a.store.SeenNonce(phaseID, nonce)
}

// Decision returns the persisted decision for signalID, if one has been
// reached yet. The ingress handler polls this after Submit to answer the
// synchronous §6.1 reply within the pipeline's latency budget.
func (a *Arbiter) Decision(signalID string) (store.DecisionRow, bool, error) {
	return a.store.GetDecision(signalID)
}

// BreakerState returns the circuit breaker's current variant, for the
// ingress 503-on-trip behaviour and the operator/observability surface.
func (a *Arbiter) BreakerState() types.BreakerState {
	return a.breaker.State()
}

// TreasuryState returns the current treasury balances, for the operator
// and observability surface.
func (a *Arbiter) TreasuryState() types.TreasuryState {
	return a.treasuryMgr.State()
}

// Recover replays startup recovery (§4.6): query the execution engine for
// current positions and balances, seed the position snapshot and equity
// estimate from them, and prune nonce records outside the replay window.
// Breaker and treasury state are expected to already have been loaded from
// the store by the caller before constructing the Breaker/Manager.
func (a *Arbiter) Recover(ctx context.Context) error {
	openPositions, err := a.egress.QueryPositions(ctx)
	if err != nil {
		return fmt.Errorf("recover positions: %w", err)
	}
	a.positions.ApplySnapshot(openPositions, a.now())
	for _, p := range openPositions {
		if !p.Entry.IsZero() {
			a.corr.RecordPrice(p.Symbol, p.Entry, p.OpenedAt)
		}
	}

	risky, safe, err := a.egress.QueryBalances(ctx)
	if err != nil {
		return fmt.Errorf("recover balances: %w", err)
	}
	equity := risky.Add(safe)

	today := a.now().UTC().Format("2006-01-02")
	a.mu.Lock()
	a.equity = equity
	a.dailyStartEquity = equity
	a.lastDailyDate = today
	a.lastBreakerKind = a.breaker.State().Kind
	a.mu.Unlock()
	a.treasuryMgr.UpdateWatermark(equity)

	cutoff := a.now().Add(-a.cfg.NonceReplayWindow).UTC().Format(time.RFC3339Nano)
	if err := a.store.PruneNoncesBefore(cutoff); err != nil {
		return fmt.Errorf("prune nonces: %w", err)
	}

	// §4.6: recompute correlation before accepting new signals, so the
	// Guardian doesn't fail-safe-veto every signal between boot and the
	// first refreshLoop tick.
	a.corr.Recompute(a.now())

	a.logger.Info("recovery complete",
		zap.String("equity", equity.String()),
		zap.Int("open_positions", len(openPositions)))
	return nil
}

// Submit admits signal to its phase's intake queue. A full queue is
// reported back to the ingress caller rather than blocking it.
func (a *Arbiter) Submit(signal types.IntentSignal) error {
	if !signal.PhaseID.Valid() {
		return fmt.Errorf("unknown phase %q", signal.PhaseID)
	}
	q, ok := a.queues[signal.PhaseID]
	if !ok {
		return fmt.Errorf("no intake queue for phase %q", signal.PhaseID)
	}

	a.bus.Publish(events.NewSignalReceivedEvent(signal.SignalID, string(signal.PhaseID), signal.Symbol))

	select {
	case q <- signal:
		return nil
	default:
		return fmt.Errorf("arbiter queue full for phase %s", signal.PhaseID)
	}
}

// run drains the priority queues (P3 over P2 over P1, FIFO within each)
// and processes one signal at a time.
func (a *Arbiter) run(ctx context.Context) {
	defer a.wg.Done()
	for {
		signal, ok := a.dequeue()
		if !ok {
			select {
			case signal = <-a.queues[types.PhaseP3]:
			case signal = <-a.queues[types.PhaseP2]:
			case signal = <-a.queues[types.PhaseP1]:
			case <-a.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
		a.processSignal(ctx, signal)
	}
}

// dequeue performs a single non-blocking priority scan, so a backlog of P3
// signals never has to wait behind P2 or P1.
func (a *Arbiter) dequeue() (types.IntentSignal, bool) {
	select {
	case s := <-a.queues[types.PhaseP3]:
		return s, true
	default:
	}
	select {
	case s := <-a.queues[types.PhaseP2]:
		return s, true
	default:
	}
	select {
	case s := <-a.queues[types.PhaseP1]:
		return s, true
	default:
	}
	return types.IntentSignal{}, false
}

// decisionSnapshot is the persisted context attached to every BrainDecision.
type decisionSnapshot struct {
	Allocation          types.AllocationVector `json:"allocation"`
	Risk                types.RiskSnapshot     `json:"risk"`
	PerformanceModifier decimal.Decimal        `json:"performance_modifier"`
}

// processSignal runs the seven-step pipeline: dedup, breaker gate,
// allocation snapshot, effective weight, budget cap, Guardian check, and
// persist-before-emit.
func (a *Arbiter) processSignal(ctx context.Context, signal types.IntentSignal) {
	start := a.now()

	if existing, found, err := a.store.GetDecision(signal.SignalID); err != nil {
		a.logger.Error("lookup existing decision", zap.String("signal_id", signal.SignalID), zap.Error(err))
	} else if found {
		a.logger.Info("replaying persisted decision", zap.String("signal_id", signal.SignalID))
		a.bus.Publish(events.NewDecisionPersistedEvent(existing.SignalID, existing.PhaseID, existing.Approved, existing.Authorised, existing.Reason))
		if existing.Approved && existing.Authorised.GreaterThan(decimal.Zero) {
			a.dispatchSubmit(signal, existing.Authorised)
		}
		return
	}

	breakerState := a.breaker.State()
	if breakerState.Kind != types.BreakerNormal {
		decision := types.GuardianDecision{
			Approved:           false,
			AuthorisedNotional: decimal.Zero,
			Reason:             breakerReason(breakerState),
		}
		a.emitDecision(signal, decision, types.AllocationVector{}, types.RiskSnapshot{}, decimal.Zero, start)
		return
	}

	equity := a.Equity()
	openPositions := a.positions.Positions()

	vec := a.allocation.Compute(equity)
	leverageCap := a.allocation.LeverageCap(vec.Tier)
	perfSnap := a.performance.Snapshot(signal.PhaseID)
	effectiveWeight := clampUnit(vec.Weight(signal.PhaseID).Mul(perfSnap.Modifier))
	budgetCap := effectiveWeight.Mul(equity)

	bounded := signal
	switch {
	case budgetCap.LessThanOrEqual(decimal.Zero):
		bounded.RequestedNotional = decimal.Zero
	case signal.RequestedNotional.GreaterThan(budgetCap):
		bounded.RequestedNotional = budgetCap
	}

	decision := a.guardian.CheckIntent(bounded, openPositions, equity, leverageCap)
	riskSnap := a.guardian.Snapshot(openPositions, equity)

	a.emitDecision(signal, decision, vec, riskSnap, perfSnap.Modifier, start)
}

// emitDecision persists the decision before any externally observable side
// effect (the event publish and the egress dispatch), per §4.6.
func (a *Arbiter) emitDecision(signal types.IntentSignal, decision types.GuardianDecision, vec types.AllocationVector, riskSnap types.RiskSnapshot, modifier decimal.Decimal, start time.Time) {
	blob, err := json.Marshal(decisionSnapshot{Allocation: vec, Risk: riskSnap, PerformanceModifier: modifier})
	if err != nil {
		a.logger.Error("marshal decision snapshot", zap.Error(err))
		blob = []byte("{}")
	}

	row := store.DecisionRow{
		SignalID:     signal.SignalID,
		PhaseID:      string(signal.PhaseID),
		Approved:     decision.Approved,
		Requested:    signal.RequestedNotional,
		Authorised:   decision.AuthorisedNotional,
		Reason:       string(decision.Reason),
		SnapshotJSON: string(blob),
	}
	if err := a.store.UpsertDecision(row); err != nil {
		a.logger.Error("persist decision", zap.String("signal_id", signal.SignalID), zap.Error(err))
		return
	}

	a.bus.Publish(events.NewDecisionPersistedEvent(signal.SignalID, string(signal.PhaseID), decision.Approved, decision.AuthorisedNotional, string(decision.Reason)))

	elapsed := a.now().Sub(start)
	approvedLabel := "false"
	if decision.Approved {
		approvedLabel = "true"
	}
	a.metrics.DecisionsTotal.WithLabelValues(string(signal.PhaseID), approvedLabel).Inc()
	a.metrics.SignalLatency.WithLabelValues(string(signal.PhaseID)).Observe(elapsed.Seconds())
	if elapsed > a.cfg.LatencyBudget {
		a.logger.Warn("decision pipeline exceeded latency budget",
			zap.Duration("elapsed", elapsed), zap.Duration("budget", a.cfg.LatencyBudget))
	}

	if decision.Approved && decision.AuthorisedNotional.GreaterThan(decimal.Zero) {
		a.dispatchSubmit(signal, decision.AuthorisedNotional)
	}
}

// dispatchSubmit hands the approved order off to the execution engine on
// the worker pool, outside the measured decision latency.
func (a *Arbiter) dispatchSubmit(signal types.IntentSignal, authorised decimal.Decimal) {
	err := a.dispatchPool.SubmitFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.EgressTimeout)
		defer cancel()
		if err := a.egress.SubmitOrder(ctx, signal, authorised); err != nil {
			a.logger.Error("submit order to execution engine", zap.String("signal_id", signal.SignalID), zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		a.logger.Error("dispatch submit order", zap.String("signal_id", signal.SignalID), zap.Error(err))
	}
}

// RecordFill applies an execution report fed back from the execution
// engine: it updates the position snapshot, the phase's performance
// window, the treasury's risky balance and watermark, and re-evaluates the
// breaker and sweep trigger.
func (a *Arbiter) RecordFill(ctx context.Context, phase types.PhaseID, fill positions.Fill) {
	a.positions.ApplyFill(fill)
	a.performance.RecordTrade(phase, fill.PnL)
	a.treasuryMgr.ApplyRiskyDelta(fill.PnL)

	equity := a.addEquity(fill.PnL)
	a.treasuryMgr.UpdateWatermark(equity)
	a.allocation.Invalidate()

	if err := a.store.RecordPhaseTrade(string(phase), fill.PnL); err != nil {
		a.logger.Warn("record phase trade", zap.Error(err))
	}

	switch {
	case fill.PnL.IsNegative():
		a.breaker.RecordLoss(ctx)
	case fill.PnL.IsPositive():
		a.breaker.RecordWin()
	}
	a.breaker.CheckEquity(ctx, equity, a.dailyEquityFloor())
	a.persistBreakerState()
	a.persistTreasuryState()

	a.bus.Publish(events.NewFillRecordedEvent(fill.Symbol, string(phase), fill.PnL, equity))

	if amount, trigger := a.treasuryMgr.CheckSweepTrigger(); trigger {
		a.dispatchSweep(ctx, amount)
	}
}

// dispatchSweep runs a capital-flow sweep on the worker pool, outside the
// fill-handling call path.
func (a *Arbiter) dispatchSweep(ctx context.Context, amount decimal.Decimal) {
	err := a.dispatchPool.SubmitFunc(func() error {
		sweepID := "sweep_" + uuid.NewString()
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.SweepTimeout)
		defer cancel()

		if err := a.treasuryMgr.ExecuteSweep(sctx, sweepID, amount, a.store.TreasuryOpExists); err != nil {
			a.logger.Error("sweep execution failed", zap.Error(err))
			return err
		}

		state := a.treasuryMgr.State()
		if err := a.store.RecordTreasuryOp("sweep", amount, state.RiskyBalance, state.SafeBalance, state.HighWatermark, sweepID); err != nil {
			a.logger.Warn("record treasury op", zap.Error(err))
		}
		a.persistTreasuryState()
		a.bus.Publish(events.NewSweepExecutedEvent(sweepID, amount))
		return nil
	})
	if err != nil {
		a.logger.Error("dispatch sweep", zap.Error(err))
	}
}

// ManualTransfer services the operator surface's treasury.manual_transfer
// command (§6.5), persisting the resulting state and an audit row.
func (a *Arbiter) ManualTransfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	if err := a.treasuryMgr.ManualTransfer(ctx, from, to, amount); err != nil {
		return err
	}
	state := a.treasuryMgr.State()
	reason := "manual_" + uuid.NewString()
	if err := a.store.RecordTreasuryOp("manual_transfer", amount, state.RiskyBalance, state.SafeBalance, state.HighWatermark, reason); err != nil {
		a.logger.Warn("record manual transfer", zap.Error(err))
	}
	a.persistTreasuryState()
	return nil
}

// ResetBreaker services the operator surface's breaker.reset command.
func (a *Arbiter) ResetBreaker(operatorID string) error {
	if err := a.breaker.Reset(operatorID); err != nil {
		return err
	}
	a.persistBreakerState()
	if err := a.store.RecordBreakerEvent(string(types.BreakerNormal), "OPERATOR_RESET", a.Equity().String(), operatorID, "{}"); err != nil {
		a.logger.Warn("record breaker reset", zap.Error(err))
	}
	return nil
}

func (a *Arbiter) persistTreasuryState() {
	st := a.treasuryMgr.State()
	snap := store.TreasurySnapshot{
		RiskyBalance:  st.RiskyBalance,
		SafeBalance:   st.SafeBalance,
		TotalSwept:    st.TotalSwept,
		HighWatermark: st.HighWatermark,
		ReserveFloor:  st.ReserveFloor,
	}
	if err := a.store.SaveTreasury(snap); err != nil {
		a.logger.Warn("persist treasury state", zap.Error(err))
	}
}

func (a *Arbiter) persistBreakerState() {
	st := a.breaker.State()

	a.mu.Lock()
	changed := st.Kind != a.lastBreakerKind
	a.lastBreakerKind = st.Kind
	a.mu.Unlock()

	snap := store.BreakerSnapshot{
		Kind:   string(st.Kind),
		Reason: st.Reason,
		Since:  formatTimeOrEmpty(st.Since),
		Until:  formatTimeOrEmpty(st.Until),
	}
	if err := a.store.SaveBreaker(snap); err != nil {
		a.logger.Warn("persist breaker state", zap.Error(err))
	}

	if changed {
		a.bus.Publish(events.NewBreakerTransitionEvent(string(st.Kind), st.Reason))
		if err := a.store.RecordBreakerEvent(string(st.Kind), st.Reason, a.Equity().String(), "", "{}"); err != nil {
			a.logger.Warn("record breaker event", zap.Error(err))
		}
		a.logger.Info("breaker transition", zap.String("kind", string(st.Kind)), zap.String("reason", st.Reason))
	}
}

func formatTimeOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// clampUnit bounds x to [0, 1], per §4.6 step 3's effective-weight clamp.
func clampUnit(x decimal.Decimal) decimal.Decimal {
	if x.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if x.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return x
}

// breakerReason maps the circuit breaker's current state to the decision
// reason code attached to every signal rejected by the breaker gate.
func breakerReason(state types.BreakerState) types.RiskCheckReason {
	switch state.Kind {
	case types.BreakerHard:
		if state.Reason == "DAILY_DD" {
			return types.ReasonBreakerDailyDD
		}
		return types.ReasonBreakerMinEquity
	case types.BreakerSoftCooldown:
		return types.ReasonCooldown
	default:
		return types.ReasonOK
	}
}

// refreshLoop runs the periodic risk-snapshot, metrics, scheduled-sweep,
// and correlation-recompute cadence, per §4.6/§6.6's 60s refresh and
// §4.3's correlation recompute interval.
func (a *Arbiter) refreshLoop(ctx context.Context) {
	defer a.wg.Done()

	metricTicker := time.NewTicker(a.cfg.MetricRefreshInterval)
	defer metricTicker.Stop()

	corrInterval := a.corrCfg.CorrelationRecompute
	if corrInterval <= 0 {
		corrInterval = a.cfg.MetricRefreshInterval
	}
	corrTicker := time.NewTicker(corrInterval)
	defer corrTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-metricTicker.C:
			a.refreshOnce()
		case <-corrTicker.C:
			a.corr.Recompute(a.now())
		}
	}
}

func (a *Arbiter) refreshOnce() {
	now := a.now()
	today := now.UTC().Format("2006-01-02")

	a.mu.Lock()
	if today != a.lastDailyDate {
		a.lastDailyDate = today
		a.dailyStartEquity = a.equity
	}
	equity := a.equity
	a.mu.Unlock()

	openPositions := a.positions.Positions()

	riskSnap := a.guardian.Snapshot(openPositions, equity)
	if err := a.store.RecordRiskSnapshot(riskSnap.Leverage, riskSnap.NetDelta, riskSnap.CorrelationScore, riskSnap.PortfolioBeta, riskSnap.VaR95); err != nil {
		a.logger.Warn("record risk snapshot", zap.Error(err))
	}
	a.bus.Publish(events.NewRiskSnapshotEvent(riskSnap.Leverage, riskSnap.NetDelta, riskSnap.CorrelationScore, riskSnap.PortfolioBeta, riskSnap.VaR95))

	vec := a.allocation.Compute(equity)
	if err := a.store.RecordAllocation(equity, vec.W1, vec.W2, vec.W3, string(vec.Tier)); err != nil {
		a.logger.Warn("record allocation", zap.Error(err))
	}

	for _, phase := range []types.PhaseID{types.PhaseP1, types.PhaseP2, types.PhaseP3} {
		perfSnap := a.performance.Snapshot(phase)
		a.metrics.PhaseModifier.WithLabelValues(string(phase)).Set(perfSnap.Modifier.InexactFloat64())
		a.metrics.QueueDepth.WithLabelValues(string(phase)).Set(float64(len(a.queues[phase])))
	}
	a.metrics.CorrelationAgeSecs.Set(a.corr.Age(now).Seconds())
	a.metrics.ActivePositions.Set(float64(a.positions.Count()))

	treasuryState := a.treasuryMgr.State()
	a.metrics.TreasuryRisky.Set(treasuryState.RiskyBalance.InexactFloat64())
	a.metrics.TreasurySafe.Set(treasuryState.SafeBalance.InexactFloat64())
	a.metrics.TreasuryTotalSwept.Set(treasuryState.TotalSwept.InexactFloat64())

	breakerState := a.breaker.State()
	a.metrics.BreakerState.Set(metrics.BreakerStateValue(string(breakerState.Kind)))

	a.persistTreasuryState()
	a.persistBreakerState()

	if a.treasuryMgr.ShouldRunScheduledCheck(equity) {
		if amount, trigger := a.treasuryMgr.CheckSweepTrigger(); trigger {
			a.dispatchSweep(context.Background(), amount)
		}
	}
}

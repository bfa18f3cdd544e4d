package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/dhkwon/talos/internal/contracts"
	"github.com/dhkwon/talos/internal/perf"
	"github.com/dhkwon/talos/internal/reentry"
	"github.com/dhkwon/talos/internal/risk"
	"github.com/dhkwon/talos/internal/sizing"
	"github.com/dhkwon/talos/pkg/logger"
)

const defaultScoreWorkers = 8

// tradingDaysPerYear annualizes daily returns in the analyzer.
const tradingDaysPerYear = 252

// Deps are the external collaborators of a run. The engine treats them
// as strict boundaries and never inspects their internals.
type Deps struct {
	Prices contracts.PriceSource
	Scorer contracts.Scorer

	// Regimes is required only when Config.AdaptiveWeights is set.
	Regimes contracts.RegimeSource

	// SourceName identifies the data source in result provenance.
	SourceName string
}

// Engine is the chronological backtest driver. The simulation is
// inherently sequential: each rebalance depends on the ledger state
// produced by all prior events, so reordering across dates is forbidden.
// Only the per-date scoring fan-out runs concurrently.
type Engine struct {
	config  Config
	prices  contracts.PriceSource
	scorer  contracts.Scorer
	regimes contracts.RegimeSource

	sourceName string

	riskMgr  *risk.Manager
	tracker  *reentry.Tracker
	sizer    *sizing.Sizer
	analyzer *perf.Analyzer
	limiter  *rate.Limiter
	exempt   map[string]bool

	logger *logger.Logger
}

// NewEngine validates the configuration and wires the components.
// Configuration errors are fatal: the simulation never starts.
func NewEngine(config Config, deps Deps, log *logger.Logger) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if deps.Prices == nil {
		return nil, ConfigError{"deps", "price source is required"}
	}
	if deps.Scorer == nil {
		return nil, ConfigError{"deps", "scorer is required"}
	}
	if config.AdaptiveWeights && deps.Regimes == nil {
		return nil, ConfigError{"deps", "regime source is required when adaptive weights are enabled"}
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Engine{
		config:     config,
		prices:     deps.Prices,
		scorer:     deps.Scorer,
		regimes:    deps.Regimes,
		sourceName: deps.SourceName,
		riskMgr:    risk.NewManager(config.Risk),
		tracker:    reentry.NewTracker(config.ReentryThreshold, config.ReentryLookbackDays),
		sizer:      sizing.NewSizer(config.Sizing),
		analyzer:   perf.NewAnalyzer(config.RiskFreeRate, tradingDaysPerYear),
		limiter:    newScoreLimiter(config.ScoreRateLimit),
		exempt:     config.exemptSet(),
		logger:     log,
	}, nil
}

// runState carries the mutable bookkeeping of a single run.
type runState struct {
	ledger      *Ledger
	rebalances  []contracts.RebalanceRecord
	caveats     []string
	truncated   bool
	tradingDays int

	peakValue   float64
	deRiskArmed bool

	skippedData     int
	scoringFailures int
}

// Run executes the backtest and assembles the result. Recoverable
// conditions degrade gracefully and surface in logs and provenance; a
// cancelled context yields a truncated partial result, not an error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	startTime := time.Now()

	e.logger.WithFields(map[string]interface{}{
		"start_date":      e.config.StartDate.Format("2006-01-02"),
		"end_date":        e.config.EndDate.Format("2006-01-02"),
		"universe":        len(e.config.Universe),
		"top_n":           e.config.TopN,
		"cadence":         e.config.Cadence,
		"initial_capital": e.config.InitialCapital,
	}).Info("Starting backtest")

	state := &runState{
		ledger:      NewLedger(e.config.InitialCapital, e.config.TransactionCostRate),
		peakValue:   e.config.InitialCapital,
		deRiskArmed: true,
	}

	var prevDay time.Time
	for day := e.config.StartDate; !day.After(e.config.EndDate); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if ctx.Err() != nil {
			state.truncated = true
			state.caveats = append(state.caveats, fmt.Sprintf(
				"run cancelled at %s; result covers the completed prefix only", day.Format("2006-01-02")))
			break
		}
		state.tradingDays++

		e.markAndCheckStops(ctx, state, day)
		e.checkPortfolioDrawdown(state, day)

		if e.config.shouldRebalance(prevDay, day) {
			e.rebalance(ctx, state, day)
		}
		prevDay = day

		state.ledger.RecordValue(day)
	}

	return e.assembleResult(ctx, state, startTime), nil
}

// markAndCheckStops advances each open position through the day's
// price: peak update first, then the stop rules. A triggered stop sells
// immediately and registers a StopRecord for the re-entry filter.
func (e *Engine) markAndCheckStops(ctx context.Context, state *runState, day time.Time) {
	for _, symbol := range state.ledger.HeldSymbols() {
		price, err := e.prices.PriceAt(ctx, symbol, day)
		if err != nil {
			if !errors.Is(err, contracts.ErrDataUnavailable) {
				e.logger.WithError(err).WithField("symbol", symbol).Warn("Price lookup failed")
			}
			continue
		}
		state.ledger.MarkPrice(symbol, price)

		pos, _ := state.ledger.Position(symbol)
		reason := e.riskMgr.Evaluate(pos, price)
		if reason == nil {
			continue
		}

		trade, err := state.ledger.Sell(day, symbol, price, *reason)
		if err != nil {
			e.logger.WithError(err).WithField("symbol", symbol).Error("Stop sell failed")
			continue
		}

		// Fundamentals at stop time gate re-entry; an unavailable score
		// leaves the symbol ineligible until it proves itself.
		fundamentals := 0.0
		if scores, err := e.scoreSymbol(ctx, symbol, day); err == nil {
			fundamentals = scores.Fundamentals
		}
		e.tracker.RecordStop(symbol, day, fundamentals, *reason)

		e.logger.WithFields(map[string]interface{}{
			"symbol":  symbol,
			"reason":  string(*reason),
			"price":   price,
			"pnl_pct": trade.PnLPercent,
		}).Info("Stop triggered")
	}
}

// checkPortfolioDrawdown evaluates the aggregate drawdown from the
// running peak and liquidates a configured fraction of every position
// when the limit is breached. The trigger re-arms only after the
// drawdown recovers above the limit, so a single deep decline cannot
// cascade into repeated liquidations.
func (e *Engine) checkPortfolioDrawdown(state *runState, day time.Time) {
	value := state.ledger.Value()
	if value > state.peakValue {
		state.peakValue = value
	}
	if state.peakValue <= 0 {
		return
	}

	drawdown := (state.peakValue - value) / state.peakValue
	if drawdown <= e.config.MaxDrawdownPct {
		state.deRiskArmed = true
		return
	}
	if !state.deRiskArmed {
		return
	}
	state.deRiskArmed = false

	e.logger.WithFields(map[string]interface{}{
		"date":     day.Format("2006-01-02"),
		"drawdown": drawdown,
		"limit":    e.config.MaxDrawdownPct,
		"fraction": e.config.DeRiskFraction,
	}).Warn("Portfolio drawdown limit breached, de-risking")

	for _, symbol := range state.ledger.HeldSymbols() {
		price, ok := state.ledger.LastPrice(symbol)
		if !ok {
			continue
		}
		if _, err := state.ledger.SellFraction(day, symbol, price, e.config.DeRiskFraction, contracts.ExitRegimeReduction); err != nil {
			e.logger.WithError(err).WithField("symbol", symbol).Error("De-risk sell failed")
		}
	}
}

// rebalance runs one full selection cycle for the date.
func (e *Engine) rebalance(ctx context.Context, state *runState, day time.Time) {
	weights, regimeLabel := e.weightsFor(ctx, state, day)

	board := e.scoreUniverse(ctx, day, weights)
	state.skippedData += len(board.skipped)
	state.scoringFailures += len(board.failures)
	for _, symbol := range board.failures {
		e.logger.WithFields(map[string]interface{}{
			"symbol": symbol,
			"date":   day.Format("2006-01-02"),
		}).Warn("Scoring failed, symbol skipped for cycle")
	}

	e.tracker.Prune(day)

	// Momentum veto and re-entry filters.
	candidates := make([]scoredSymbol, 0, len(board.scored))
	for _, s := range board.scored {
		if e.config.Veto.Excludes(s.Symbol, s.Scores.Momentum, s.Scores.Fundamentals, e.exempt) {
			continue
		}
		if !e.tracker.CanRebuy(s.Symbol, s.Scores.Fundamentals, day) {
			continue
		}
		candidates = append(candidates, s)
	}

	ranked := rankByComposite(candidates)
	if len(ranked) > e.config.TopN {
		ranked = ranked[:e.config.TopN]
	}

	targets := make(map[string]bool, len(ranked))
	sizerInput := make([]sizing.Candidate, 0, len(ranked))
	selected := make([]string, 0, len(ranked))
	scoreSum := 0.0
	for _, s := range ranked {
		targets[s.Symbol] = true
		selected = append(selected, s.Symbol)
		scoreSum += s.Composite
		sizerInput = append(sizerInput, sizing.Candidate{
			Symbol:    s.Symbol,
			Composite: s.Composite,
			Quality:   s.Scores.Quality,
		})
	}
	targetWeights := e.sizer.WeightsFor(sizerInput)

	// Sells first: holdings outside the target set free cash for buys.
	for _, symbol := range state.ledger.HeldSymbols() {
		if targets[symbol] {
			continue
		}
		price, ok := e.exitPrice(ctx, symbol, day, state)
		if !ok {
			continue
		}
		if _, err := state.ledger.Sell(day, symbol, price, contracts.ExitRebalance); err != nil {
			e.logger.WithError(err).WithField("symbol", symbol).Error("Rebalance sell failed")
		}
	}

	// Buys in rank order. Positions that survive selection are left at
	// their current size; only new names are opened.
	value := state.ledger.Value()
	reserve := value * e.config.CashBufferPct
	for i, s := range ranked {
		if _, held := state.ledger.Position(s.Symbol); held {
			continue
		}
		price, err := e.prices.PriceAt(ctx, s.Symbol, day)
		if err != nil {
			state.skippedData++
			e.logger.WithField("symbol", s.Symbol).Debug("No price for buy, skipped for cycle")
			continue
		}
		target := value * targetWeights[s.Symbol]
		if _, err := state.ledger.Buy(day, s.Symbol, price, target, reserve, s.Composite, s.Scores.Quality, i+1); err != nil {
			e.logger.WithError(err).WithField("symbol", s.Symbol).Error("Buy failed")
		}
	}

	avgScore := 0.0
	if len(selected) > 0 {
		avgScore = scoreSum / float64(len(selected))
	}
	state.rebalances = append(state.rebalances, contracts.RebalanceRecord{
		Date:         day,
		Selected:     selected,
		AverageScore: avgScore,
		Regime:       regimeLabel,
	})

	e.logger.WithFields(map[string]interface{}{
		"date":      day.Format("2006-01-02"),
		"selected":  len(selected),
		"avg_score": avgScore,
		"regime":    regimeLabel,
		"value":     state.ledger.Value(),
	}).Info("Rebalance completed")
}

// weightsFor resolves the factor weights for the date: regime-adaptive
// when configured, static otherwise. A regime lookup failure falls back
// to the static weights and is noted in provenance.
func (e *Engine) weightsFor(ctx context.Context, state *runState, day time.Time) (contracts.FactorWeights, string) {
	if !e.config.AdaptiveWeights {
		return e.config.Weights, ""
	}

	regime, err := e.regimes.RegimeAt(ctx, day)
	if err != nil {
		e.logger.WithError(err).Warn("Regime lookup failed, using static weights")
		state.caveats = append(state.caveats, fmt.Sprintf(
			"regime unavailable at %s; static weights used", day.Format("2006-01-02")))
		return e.config.Weights, ""
	}
	if regime.Weights == nil || regime.Weights.Validate() != nil {
		return e.config.Weights, regime.Label
	}
	return *regime.Weights, regime.Label
}

// exitPrice resolves a sell price for the day, falling back to the last
// known print when the symbol has no data today.
func (e *Engine) exitPrice(ctx context.Context, symbol string, day time.Time, state *runState) (float64, bool) {
	price, err := e.prices.PriceAt(ctx, symbol, day)
	if err == nil {
		return price, true
	}
	if last, ok := state.ledger.LastPrice(symbol); ok {
		return last, true
	}
	e.logger.WithField("symbol", symbol).Warn("No price available for exit, holding")
	return 0, false
}

// assembleResult finalizes metrics on whatever prefix completed.
func (e *Engine) assembleResult(ctx context.Context, state *runState, startTime time.Time) *Result {
	curve := state.ledger.History()

	if state.skippedData > 0 {
		state.caveats = append(state.caveats, fmt.Sprintf(
			"%d symbol-dates had no price or score and were skipped for their cycle", state.skippedData))
	}
	if state.scoringFailures > 0 {
		state.caveats = append(state.caveats, fmt.Sprintf(
			"%d oracle calls failed; affected symbols were excluded rather than scored neutrally", state.scoringFailures))
	}
	state.caveats = append(state.caveats,
		"factor scores are consumed as reported by the scoring source; point-in-time filtering is delegated upstream and restatement bias may remain")

	benchmark := e.buyAndHoldCurve(ctx, e.config.BenchmarkSymbol, curve)
	index := e.buyAndHoldCurve(ctx, e.config.IndexSymbol, curve)

	var metrics *perf.Metrics
	if len(curve) >= 2 {
		m, err := e.analyzer.Analyze(curve, state.ledger.ClosedTrades(), benchmark, index)
		if err != nil {
			e.logger.WithError(err).Warn("Metric calculation failed")
			state.caveats = append(state.caveats, fmt.Sprintf("metrics unavailable: %v", err))
		} else {
			metrics = m
		}
	}

	open := make([]contracts.Position, 0)
	for _, symbol := range state.ledger.HeldSymbols() {
		pos, _ := state.ledger.Position(symbol)
		open = append(open, *pos)
	}

	result := &Result{
		Config:         e.config,
		EquityCurve:    curve,
		TradeLog:       state.ledger.TradeLog(),
		ClosedTrades:   state.ledger.ClosedTrades(),
		Rebalances:     state.rebalances,
		OpenPositions:  open,
		Metrics:        metrics,
		InitialCapital: e.config.InitialCapital,
		FinalValue:     state.ledger.Value(),
		TradingDays:    state.tradingDays,
		RebalanceCount: len(state.rebalances),
		Duration:       time.Since(startTime),
		Provenance: Provenance{
			DataSource:  e.sourceName,
			ConfigHash:  hashConfig(&e.config),
			GeneratedAt: time.Now(),
			Caveats:     state.caveats,
			Truncated:   state.truncated,
		},
	}

	e.logger.WithFields(map[string]interface{}{
		"trading_days": result.TradingDays,
		"rebalances":   result.RebalanceCount,
		"trades":       len(result.TradeLog),
		"final_value":  result.FinalValue,
		"truncated":    result.Provenance.Truncated,
		"duration_ms":  result.Duration.Milliseconds(),
	}).Info("Backtest completed")

	return result
}

// buyAndHoldCurve builds a benchmark series aligned to the equity
// curve's dates. Missing prints are skipped; an empty symbol or a
// symbol with no data yields nil and the comparison block is omitted.
func (e *Engine) buyAndHoldCurve(ctx context.Context, symbol string, curve []contracts.EquityPoint) []contracts.EquityPoint {
	if symbol == "" {
		return nil
	}
	out := make([]contracts.EquityPoint, 0, len(curve))
	for _, point := range curve {
		price, err := e.prices.PriceAt(ctx, symbol, point.Date)
		if err != nil {
			continue
		}
		out = append(out, contracts.EquityPoint{Date: point.Date, Value: price})
	}
	if len(out) < 2 {
		return nil
	}
	return out
}

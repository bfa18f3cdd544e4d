package backtest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhkwon/talos/internal/contracts"
	"github.com/dhkwon/talos/internal/marketdata"
	"github.com/dhkwon/talos/pkg/logger"
)

// monday is the first trading day of the test calendar.
var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, cfg Config, store *marketdata.MemoryStore) *Engine {
	t.Helper()
	engine, err := NewEngine(cfg, Deps{
		Prices:     store,
		Scorer:     store,
		SourceName: "memory",
	}, logger.NewNop())
	require.NoError(t, err)
	return engine
}

// flatWeeks fills price 100 for every weekday across n weeks.
func flatWeeks(store *marketdata.MemoryStore, symbol string, price float64, weeks int) {
	closes := make([]float64, weeks*5)
	for i := range closes {
		closes[i] = price
	}
	store.SetPriceSeries(symbol, monday, closes)
}

func scores(f, m, q, s float64) contracts.FactorScores {
	return contracts.FactorScores{Fundamentals: f, Momentum: m, Quality: q, Sentiment: s}
}

func selectionConfig(universe []string, topN int) Config {
	cfg := validConfig()
	cfg.StartDate = monday
	cfg.EndDate = monday.AddDate(0, 0, 11) // two trading weeks
	cfg.Universe = universe
	cfg.Cadence = CadenceWeekly
	cfg.TopN = topN
	cfg.TransactionCostRate = 0
	cfg.Weights = contracts.FactorWeights{Fundamentals: 0.5, Momentum: 0.5}
	return cfg
}

func TestRun_SelectsTopNByComposite(t *testing.T) {
	store := marketdata.NewMemoryStore()
	for _, sym := range []string{"AAA", "BBB", "CCC", "DDD"} {
		flatWeeks(store, sym, 100, 3)
	}
	store.SetConstantScores("AAA", scores(90, 90, 50, 50)) // composite 90
	store.SetConstantScores("BBB", scores(70, 70, 50, 50)) // 70
	store.SetConstantScores("CCC", scores(60, 60, 50, 50)) // 60
	store.SetConstantScores("DDD", scores(50, 50, 50, 50)) // 50

	cfg := selectionConfig([]string{"AAA", "BBB", "CCC", "DDD"}, 2)
	engine := newTestEngine(t, cfg, store)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Rebalances, 2, "weekly cadence over two weeks")
	assert.Equal(t, []string{"AAA", "BBB"}, result.Rebalances[0].Selected)
	assert.InDelta(t, 80.0, result.Rebalances[0].AverageScore, 1e-9)

	// Flat prices and surviving selection: no exits, two open positions.
	assert.Empty(t, result.ClosedTrades)
	assert.Len(t, result.OpenPositions, 2)
	assert.False(t, result.Provenance.Truncated)
	assert.Equal(t, 10, result.TradingDays)
}

func TestRun_Deterministic(t *testing.T) {
	build := func() *Result {
		store := marketdata.NewMemoryStore()
		universe := []string{"AAA", "BBB", "CCC", "DDD"}
		for i, sym := range universe {
			flatWeeks(store, sym, 100+float64(i), 3)
			store.SetConstantScores(sym, scores(80, 60, 50, 50))
		}

		cfg := selectionConfig(universe, 2)
		cfg.ScoreWorkers = 4
		engine := newTestEngine(t, cfg, store)
		result, err := engine.Run(context.Background())
		require.NoError(t, err)
		return result
	}

	first := build()
	second := build()

	// Identical composites: symbol order breaks the tie, every time.
	assert.Equal(t, []string{"AAA", "BBB"}, first.Rebalances[0].Selected)
	assert.Equal(t, first.Rebalances, second.Rebalances)
	assert.Equal(t, first.TradeLog, second.TradeLog)
	assert.Equal(t, first.EquityCurve, second.EquityCurve)
	assert.Equal(t, first.Provenance.ConfigHash, second.Provenance.ConfigHash)
}

func TestRun_MomentumVetoAndExemption(t *testing.T) {
	store := marketdata.NewMemoryStore()
	for _, sym := range []string{"VET", "EXE", "OKC"} {
		flatWeeks(store, sym, 100, 3)
	}
	store.SetConstantScores("VET", scores(90, 5, 50, 50))  // collapsed momentum, vetoed
	store.SetConstantScores("EXE", scores(88, 5, 50, 50))  // same collapse, but exempt
	store.SetConstantScores("OKC", scores(60, 60, 50, 50))

	cfg := selectionConfig([]string{"VET", "EXE", "OKC"}, 2)
	cfg.Veto.Exempt = []string{"EXE"}
	engine := newTestEngine(t, cfg, store)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, result.Rebalances)
	assert.Equal(t, []string{"OKC", "EXE"}, result.Rebalances[0].Selected,
		"OKC composite 60 outranks exempt EXE at 46.5; VET never appears")
	for _, rec := range result.Rebalances {
		assert.NotContains(t, rec.Selected, "VET")
	}
}

func TestRun_StaticStopBlocksReentry(t *testing.T) {
	store := marketdata.NewMemoryStore()

	// SSS craters past the 15% default stop on day two; FFF is flat.
	store.SetPriceSeries("SSS", monday, []float64{100, 84, 84, 84, 84, 84, 84, 84, 84, 84})
	flatWeeks(store, "FFF", 50, 3)
	store.SetConstantScores("SSS", scores(50, 95, 0, 0)) // composite 72.5, fundamentals below re-entry bar
	store.SetConstantScores("FFF", scores(60, 60, 0, 0)) // composite 60

	cfg := selectionConfig([]string{"SSS", "FFF"}, 1)
	engine := newTestEngine(t, cfg, store)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, result.ClosedTrades)
	stop := result.ClosedTrades[0]
	assert.Equal(t, "SSS", stop.Symbol)
	assert.Equal(t, contracts.ExitStopLoss, stop.Reason)
	assert.Equal(t, 84.0, stop.ExitPrice)

	// Week two: SSS still has the top composite but its stop record is
	// live with fundamentals 50 < 65, so FFF takes the slot.
	require.Len(t, result.Rebalances, 2)
	assert.Equal(t, []string{"FFF"}, result.Rebalances[1].Selected)
}

func TestRun_TrailingStopFromPeak(t *testing.T) {
	store := marketdata.NewMemoryStore()

	// Entry 100, rally to 140, fade to 110: 21.4% off the peak trips
	// the trailing stop while still up 10% on entry.
	store.SetPriceSeries("TRL", monday, []float64{100, 140, 110, 110, 110, 110, 110, 110, 110, 110})
	store.SetConstantScores("TRL", scores(80, 80, 0, 0))

	cfg := selectionConfig([]string{"TRL"}, 1)
	engine := newTestEngine(t, cfg, store)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, result.ClosedTrades)
	trade := result.ClosedTrades[0]
	assert.Equal(t, contracts.ExitTrailingStop, trade.Reason)
	assert.Equal(t, 110.0, trade.ExitPrice)
	assert.Greater(t, trade.PnL, 0.0, "trailing stop locked in a gain")
}

func TestRun_PortfolioDrawdownDeRisk(t *testing.T) {
	store := marketdata.NewMemoryStore()

	// Slow 25% slide. Stops are set wide so only the portfolio-level
	// trigger can fire.
	store.SetPriceSeries("DDN", monday, []float64{100, 90, 82, 75, 75, 75, 75, 75, 75, 75})
	store.SetConstantScores("DDN", scores(80, 80, 0, 0))

	cfg := selectionConfig([]string{"DDN"}, 1)
	cfg.Risk.StaticStops = nil
	cfg.Risk.DefaultStopPct = 0.50
	cfg.Risk.TrailingStopPct = 0.40
	cfg.MaxDrawdownPct = 0.20
	cfg.DeRiskFraction = 0.50
	engine := newTestEngine(t, cfg, store)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	var deRisks []contracts.TradeLogEntry
	for _, entry := range result.TradeLog {
		if entry.Reason == contracts.ExitRegimeReduction {
			deRisks = append(deRisks, entry)
		}
	}
	require.Len(t, deRisks, 1, "trigger disarms after firing; flat prices never re-arm it")
	assert.Equal(t, "DDN", deRisks[0].Symbol)

	// Half the position survives the reduction.
	require.Len(t, result.OpenPositions, 1)
	assert.InDelta(t, deRisks[0].Shares, result.OpenPositions[0].Shares, 1e-9)

	// De-risking is not a stop: no re-entry record blocks the symbol,
	// so the next rebalance keeps selecting it.
	assert.Equal(t, []string{"DDN"}, result.Rebalances[1].Selected)
}

func TestRun_CancelledContextTruncates(t *testing.T) {
	store := marketdata.NewMemoryStore()
	flatWeeks(store, "AAA", 100, 3)
	store.SetConstantScores("AAA", scores(80, 80, 0, 0))

	cfg := selectionConfig([]string{"AAA"}, 1)
	engine := newTestEngine(t, cfg, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.Run(ctx)
	require.NoError(t, err, "cancellation yields a partial result, not an error")
	assert.True(t, result.Provenance.Truncated)
	assert.Zero(t, result.TradingDays)
	assert.Empty(t, result.TradeLog)
}

func TestRun_MissingScoresSkipSymbolForCycle(t *testing.T) {
	store := marketdata.NewMemoryStore()
	flatWeeks(store, "HAS", 100, 3)
	flatWeeks(store, "NOS", 100, 3)
	store.SetConstantScores("HAS", scores(60, 60, 0, 0))
	// NOS has prices but no scores at all.

	cfg := selectionConfig([]string{"HAS", "NOS"}, 2)
	engine := newTestEngine(t, cfg, store)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"HAS"}, result.Rebalances[0].Selected)

	found := false
	for _, caveat := range result.Provenance.Caveats {
		if strings.Contains(caveat, "skipped") {
			found = true
		}
	}
	assert.True(t, found, "skipped symbol-dates surface in provenance")
}

func TestRun_EquityCurveMatchesLedgerIdentity(t *testing.T) {
	store := marketdata.NewMemoryStore()

	// UPP rallies, DWN craters past its stop: the run mixes buys, a
	// stop sale, and a re-entry, all at moving prices.
	store.SetPriceSeries("UPP", monday, []float64{100, 104, 108, 112, 116, 120, 124, 128, 132, 136})
	store.SetPriceSeries("DWN", monday, []float64{100, 96, 92, 84, 84, 84, 84, 84, 84, 84})
	store.SetConstantScores("UPP", scores(80, 80, 0, 0))
	store.SetConstantScores("DWN", scores(70, 70, 0, 0))

	cfg := selectionConfig([]string{"UPP", "DWN"}, 2)
	cfg.TransactionCostRate = 0.001
	engine := newTestEngine(t, cfg, store)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.TradeLog)

	// Replay the trade log against the price series: at every recorded
	// date, cash plus marked holdings must equal the curve value.
	ctx := context.Background()
	cash := cfg.InitialCapital
	shares := map[string]float64{}
	next := 0
	for _, point := range result.EquityCurve {
		for next < len(result.TradeLog) && !result.TradeLog[next].Date.After(point.Date) {
			entry := result.TradeLog[next]
			switch entry.Action {
			case contracts.ActionBuy:
				cash -= entry.Notional + entry.Cost
				shares[entry.Symbol] += entry.Shares
			case contracts.ActionSell:
				cash += entry.Notional - entry.Cost
				shares[entry.Symbol] -= entry.Shares
			}
			next++
		}
		assert.GreaterOrEqual(t, cash, 0.0)

		expected := cash
		for sym, qty := range shares {
			if qty == 0 {
				continue
			}
			price, err := store.PriceAt(ctx, sym, point.Date)
			require.NoError(t, err)
			expected += qty * price
		}
		assert.InDelta(t, expected, point.Value, 1e-6,
			"ledger identity broken at %s", point.Date.Format("2006-01-02"))
	}
	assert.Equal(t, len(result.TradeLog), next, "every execution replayed")
}

func TestRun_CashNeverNegative(t *testing.T) {
	store := marketdata.NewMemoryStore()
	universe := []string{"AAA", "BBB", "CCC", "DDD"}
	for _, sym := range universe {
		flatWeeks(store, sym, 333, 3)
		store.SetConstantScores(sym, scores(90, 90, 90, 90))
	}

	cfg := selectionConfig(universe, 4)
	cfg.InitialCapital = 10_000
	cfg.TransactionCostRate = 0.002
	cfg.CashBufferPct = 0.05
	// Tier weights deliberately oversubscribe relative to free cash.
	cfg.Sizing.DefaultWeight = 0.30
	cfg.Sizing.InvestedFraction = 1.0
	engine := newTestEngine(t, cfg, store)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	invested := 0.0
	for _, pos := range result.OpenPositions {
		invested += pos.Shares * pos.EntryPrice
	}
	assert.LessOrEqual(t, invested, cfg.InitialCapital, "no margin exists")
	assert.GreaterOrEqual(t, result.FinalValue, 0.0)
}

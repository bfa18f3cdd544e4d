package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhkwon/talos/internal/contracts"
)

func tradeDay(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestLedgerBuy_FullFunding(t *testing.T) {
	l := NewLedger(10_000, 0.001)

	entry, err := l.Buy(tradeDay(2), "AAA", 100, 5_000, 0, 85, 70, 1)
	require.NoError(t, err)
	require.NotNil(t, entry)

	// shares * price * (1 + cost) == target
	assert.InDelta(t, 5_000, entry.Notional*(1.001), 1e-6)
	assert.InDelta(t, 5_000, l.Cash(), 1e-6)

	pos, ok := l.Position("AAA")
	require.True(t, ok)
	assert.Equal(t, 100.0, pos.EntryPrice)
	assert.Equal(t, 100.0, pos.HighestPrice)
	assert.Equal(t, 85.0, pos.EntryComposite)
	assert.Equal(t, 70.0, pos.EntryQuality)
}

func TestLedgerBuy_ScalesDownToReserve(t *testing.T) {
	l := NewLedger(1_000, 0.001)

	// Target exceeds available cash after the reserve: the buy scales
	// down so cash lands exactly on the reserve, never below.
	entry, err := l.Buy(tradeDay(2), "AAA", 10, 2_000, 100, 0, 0, 1)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.InDelta(t, 100, l.Cash(), 1e-6)
	assert.GreaterOrEqual(t, l.Cash(), 100.0-1e-9)
}

func TestLedgerBuy_NothingFundable(t *testing.T) {
	l := NewLedger(100, 0.001)

	entry, err := l.Buy(tradeDay(2), "AAA", 10, 500, 100, 0, 0, 1)
	require.NoError(t, err)
	assert.Nil(t, entry, "reserve consumes all cash, no shares bought")
	_, ok := l.Position("AAA")
	assert.False(t, ok)
}

func TestLedgerBuy_RejectsDuplicatePosition(t *testing.T) {
	l := NewLedger(10_000, 0)
	_, err := l.Buy(tradeDay(2), "AAA", 100, 1_000, 0, 0, 0, 1)
	require.NoError(t, err)

	_, err = l.Buy(tradeDay(3), "AAA", 100, 1_000, 0, 0, 0, 1)
	assert.Error(t, err, "one open position per symbol")
}

func TestLedgerSell_RoundTripAccounting(t *testing.T) {
	l := NewLedger(10_000, 0.001)
	_, err := l.Buy(tradeDay(2), "AAA", 100, 5_000, 0, 85, 70, 1)
	require.NoError(t, err)

	trade, err := l.Sell(tradeDay(10), "AAA", 110, contracts.ExitRebalance)
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, contracts.ExitRebalance, trade.Reason)
	assert.Equal(t, 8, trade.HoldingDays)
	assert.InDelta(t, 0.10, trade.PnLPercent, 1e-9)
	assert.Greater(t, trade.PnL, 0.0)

	_, ok := l.Position("AAA")
	assert.False(t, ok)

	// Cash conservation: initial + realized pnl from both legs.
	log := l.TradeLog()
	require.Len(t, log, 2)
	buyLeg, sellLeg := log[0], log[1]
	expectedCash := 10_000 - buyLeg.Notional - buyLeg.Cost + sellLeg.Notional - sellLeg.Cost
	assert.InDelta(t, expectedCash, l.Cash(), 1e-6)
	assert.InDelta(t, buyLeg.Cost+sellLeg.Cost, l.TotalCosts(), 1e-9)
}

func TestLedgerSellFraction_KeepsRemainder(t *testing.T) {
	l := NewLedger(10_000, 0)
	_, err := l.Buy(tradeDay(2), "AAA", 100, 4_000, 0, 0, 0, 1)
	require.NoError(t, err)

	trade, err := l.SellFraction(tradeDay(5), "AAA", 100, 0.5, contracts.ExitRegimeReduction)
	require.NoError(t, err)
	assert.Equal(t, contracts.ExitRegimeReduction, trade.Reason)
	assert.InDelta(t, 20.0, trade.Shares, 1e-9)

	pos, ok := l.Position("AAA")
	require.True(t, ok)
	assert.InDelta(t, 20.0, pos.Shares, 1e-9)
	assert.Equal(t, 100.0, pos.EntryPrice, "entry context survives partial sells")
}

func TestLedgerSell_NoPosition(t *testing.T) {
	l := NewLedger(1_000, 0)
	_, err := l.Sell(tradeDay(2), "NONE", 100, contracts.ExitStopLoss)
	assert.Error(t, err)
}

func TestLedgerValue_MarksToLatestPrice(t *testing.T) {
	l := NewLedger(10_000, 0)
	_, err := l.Buy(tradeDay(2), "AAA", 100, 5_000, 0, 0, 0, 1)
	require.NoError(t, err)

	assert.InDelta(t, 10_000, l.Value(), 1e-6, "valuation unchanged at entry price")

	l.MarkPrice("AAA", 120)
	assert.InDelta(t, 11_000, l.Value(), 1e-6)

	pos, _ := l.Position("AAA")
	assert.Equal(t, 120.0, pos.HighestPrice, "marking folds into the peak")

	l.MarkPrice("AAA", 90)
	assert.Equal(t, 120.0, pos.HighestPrice, "peak is monotone")
	assert.InDelta(t, 9_500, l.Value(), 1e-6)
}

func TestLedgerRecordValue_BuildsEquityCurve(t *testing.T) {
	l := NewLedger(1_000, 0)
	l.RecordValue(tradeDay(2))
	l.RecordValue(tradeDay(3))

	history := l.History()
	require.Len(t, history, 2)
	assert.Equal(t, 1_000.0, history[0].Value)
	assert.True(t, history[0].Date.Before(history[1].Date))
}

func TestLedgerHeldSymbols_Sorted(t *testing.T) {
	l := NewLedger(100_000, 0)
	for _, sym := range []string{"ZZZ", "AAA", "MMM"} {
		_, err := l.Buy(tradeDay(2), sym, 10, 1_000, 0, 0, 0, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"AAA", "MMM", "ZZZ"}, l.HeldSymbols())
}

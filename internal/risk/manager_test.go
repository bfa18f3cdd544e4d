package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhkwon/talos/internal/contracts"
)

func testLimits() Limits {
	return Limits{
		StaticStops: []StopTier{
			{MinQuality: 80, StopPct: 0.30},
			{MinQuality: 60, StopPct: 0.22},
		},
		DefaultStopPct:  0.15,
		TrailingStopPct: 0.20,
	}
}

func position(entry float64, quality float64) *contracts.Position {
	return &contracts.Position{
		Symbol:       "TEST",
		Shares:       10,
		EntryPrice:   entry,
		EntryDate:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		EntryQuality: quality,
		HighestPrice: entry,
	}
}

func TestStaticStopPct_TierSelection(t *testing.T) {
	m := NewManager(testLimits())

	tests := []struct {
		name    string
		quality float64
		want    float64
	}{
		{"top tier", 85, 0.30},
		{"exact top boundary", 80, 0.30},
		{"mid tier", 70, 0.22},
		{"below all tiers", 40, 0.15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.StaticStopPct(tt.quality))
		})
	}
}

func TestNewManager_SortsUnorderedTiers(t *testing.T) {
	m := NewManager(Limits{
		StaticStops: []StopTier{
			{MinQuality: 60, StopPct: 0.22},
			{MinQuality: 80, StopPct: 0.30},
		},
		DefaultStopPct:  0.15,
		TrailingStopPct: 0.20,
	})

	// Quality 85 must hit the 80 tier even though it was listed second.
	assert.Equal(t, 0.30, m.StaticStopPct(85))
}

func TestEvaluate_StaticStop(t *testing.T) {
	m := NewManager(testLimits())
	pos := position(100, 40) // default tier, stop at -15%

	assert.Nil(t, m.Evaluate(pos, 86))

	reason := m.Evaluate(pos, 85)
	require.NotNil(t, reason)
	assert.Equal(t, contracts.ExitStopLoss, *reason)
}

func TestEvaluate_TrailingSupersedesStatic(t *testing.T) {
	m := NewManager(testLimits())
	pos := position(100, 40)

	// Rally to 140, then fall to 110: 21.4% off the peak trips the
	// trailing stop while the position is still +10% from entry.
	pos.MarkPrice(140)
	require.Equal(t, 140.0, pos.HighestPrice)

	assert.Nil(t, m.Evaluate(pos, 115)) // -17.9% from peak, held

	reason := m.Evaluate(pos, 110)
	require.NotNil(t, reason)
	assert.Equal(t, contracts.ExitTrailingStop, *reason)
}

func TestEvaluate_TrailingCheckedFirstWhenBothBreach(t *testing.T) {
	m := NewManager(testLimits())
	pos := position(100, 40)
	pos.MarkPrice(120)

	// 70 breaches both rules; the trailing stop wins.
	reason := m.Evaluate(pos, 70)
	require.NotNil(t, reason)
	assert.Equal(t, contracts.ExitTrailingStop, *reason)
}

func TestEvaluate_PeakNeverTriggersOnTheWayUp(t *testing.T) {
	m := NewManager(testLimits())
	pos := position(100, 85)

	for _, price := range []float64{105, 112, 120, 135, 150} {
		pos.MarkPrice(price)
		assert.Nil(t, m.Evaluate(pos, price), "price %.0f", price)
	}
}

func TestTriggerPrices(t *testing.T) {
	m := NewManager(testLimits())
	pos := position(100, 85)
	pos.MarkPrice(140)

	assert.InDelta(t, 112.0, m.TrailingTriggerPrice(pos), 1e-9) // 140 * 0.80
	assert.InDelta(t, 70.0, m.StaticTriggerPrice(pos), 1e-9)    // 100 * 0.70
}

func TestLimitsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Limits)
		ok     bool
	}{
		{"valid", func(l *Limits) {}, true},
		{"zero trailing", func(l *Limits) { l.TrailingStopPct = 0 }, false},
		{"trailing over 1", func(l *Limits) { l.TrailingStopPct = 1.5 }, false},
		{"zero default stop", func(l *Limits) { l.DefaultStopPct = 0 }, false},
		{"tier stop out of range", func(l *Limits) { l.StaticStops[0].StopPct = 1.2 }, false},
		{"tier quality out of range", func(l *Limits) { l.StaticStops[0].MinQuality = 120 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := testLimits()
			tt.mutate(&limits)
			err := limits.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhkwon/talos/internal/contracts"
)

func TestMemoryStore_PriceAt(t *testing.T) {
	store := NewMemoryStore()
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	store.SetPrice("AAA", day, 101.5)

	price, err := store.PriceAt(context.Background(), "AAA", day)
	require.NoError(t, err)
	assert.Equal(t, 101.5, price)

	_, err = store.PriceAt(context.Background(), "AAA", day.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, contracts.ErrDataUnavailable)

	_, err = store.PriceAt(context.Background(), "BBB", day)
	assert.ErrorIs(t, err, contracts.ErrDataUnavailable)
}

func TestMemoryStore_SetPriceSeriesSkipsWeekends(t *testing.T) {
	store := NewMemoryStore()
	friday := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	store.SetPriceSeries("AAA", friday, []float64{100, 101, 102})

	ctx := context.Background()

	price, err := store.PriceAt(ctx, "AAA", friday)
	require.NoError(t, err)
	assert.Equal(t, 100.0, price)

	// Saturday and Sunday have no prints.
	for d := 1; d <= 2; d++ {
		_, err := store.PriceAt(ctx, "AAA", friday.AddDate(0, 0, d))
		assert.ErrorIs(t, err, contracts.ErrDataUnavailable)
	}

	monday := friday.AddDate(0, 0, 3)
	price, err = store.PriceAt(ctx, "AAA", monday)
	require.NoError(t, err)
	assert.Equal(t, 101.0, price)
}

func TestMemoryStore_Score(t *testing.T) {
	store := NewMemoryStore()
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	constant := contracts.FactorScores{Fundamentals: 70, Momentum: 60, Quality: 50, Sentiment: 40}
	dated := contracts.FactorScores{Fundamentals: 90, Momentum: 90, Quality: 90, Sentiment: 90}

	store.SetConstantScores("AAA", constant)
	store.SetScores("AAA", day, dated)

	ctx := context.Background()

	got, err := store.Score(ctx, "AAA", day)
	require.NoError(t, err)
	assert.Equal(t, dated, got, "a dated entry wins over the constant fallback")

	got, err = store.Score(ctx, "AAA", day.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, constant, got)

	_, err = store.Score(ctx, "BBB", day)
	assert.ErrorIs(t, err, contracts.ErrDataUnavailable)
}

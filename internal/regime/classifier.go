package regime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dhkwon/talos/internal/contracts"
)

// Classification windows and thresholds, in trading days and annualized
// terms. Tuned on index history; coarse on purpose, since the presets
// only need three buckets.
const (
	trendWindowDays = 63 // ~one quarter
	volWindowDays   = 21 // ~one month

	bullReturnMin  = 0.05
	highVolMin     = 0.30
	annualizeDays  = 252
	maxCalendarFan = 2 // calendar days scanned per trading day wanted
)

// TrendVolClassifier builds a Classifier from an index price series:
// trailing quarter return sets the trend, trailing month realized
// volatility sets the volatility bucket. Missing prints inside the
// window are skipped; too few prints is a classification error and the
// engine falls back to static weights.
func TrendVolClassifier(prices contracts.PriceSource, indexSymbol string) Classifier {
	return func(ctx context.Context, date time.Time) (string, string, error) {
		closes, err := trailingCloses(ctx, prices, indexSymbol, date, trendWindowDays)
		if err != nil {
			return "", "", err
		}

		oldest := closes[len(closes)-1]
		latest := closes[0]
		if oldest <= 0 {
			return "", "", fmt.Errorf("non-positive index close for %s", indexSymbol)
		}
		trendReturn := latest/oldest - 1

		trend := "sideways"
		switch {
		case trendReturn >= bullReturnMin:
			trend = "bull"
		case trendReturn <= -bullReturnMin:
			trend = "bear"
		}

		volatility := "normal"
		if vol := realizedVol(closes, volWindowDays); vol >= highVolMin {
			volatility = "high"
		}

		return trend, volatility, nil
	}
}

// trailingCloses collects up to n trading-day closes ending at date,
// newest first. Holidays and halts are skipped.
func trailingCloses(ctx context.Context, prices contracts.PriceSource, symbol string, date time.Time, n int) ([]float64, error) {
	closes := make([]float64, 0, n)
	day := date
	for i := 0; i < n*maxCalendarFan && len(closes) < n; i++ {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			price, err := prices.PriceAt(ctx, symbol, day)
			switch {
			case err == nil:
				closes = append(closes, price)
			case errors.Is(err, contracts.ErrDataUnavailable):
				// holiday or halt, keep scanning
			default:
				return nil, err
			}
		}
		day = day.AddDate(0, 0, -1)
	}
	if len(closes) < n/2 {
		return nil, fmt.Errorf("only %d of %d index closes available for %s as of %s: %w",
			len(closes), n, symbol, date.Format("2006-01-02"), contracts.ErrDataUnavailable)
	}
	return closes, nil
}

// realizedVol is the annualized stdev of daily returns over the most
// recent window prints.
func realizedVol(closes []float64, window int) float64 {
	if window+1 > len(closes) {
		window = len(closes) - 1
	}
	if window < 2 {
		return 0
	}

	returns := make([]float64, 0, window)
	for i := 0; i < window; i++ {
		prev := closes[i+1]
		if prev <= 0 {
			continue
		}
		returns = append(returns, closes[i]/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	m := 0.0
	for _, r := range returns {
		m += r
	}
	m /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - m
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance) * math.Sqrt(annualizeDays)
}

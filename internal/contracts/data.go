package contracts

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDataUnavailable signals that a collaborator has no value for a
// symbol/date pair. It is recoverable: the caller skips the symbol for
// that cycle and the run continues.
var ErrDataUnavailable = errors.New("data unavailable")

// FactorScores are the four point-in-time sub-scores for a symbol,
// each in [0, 100].
type FactorScores struct {
	Fundamentals float64 `json:"fundamentals"`
	Momentum     float64 `json:"momentum"`
	Quality      float64 `json:"quality"`
	Sentiment    float64 `json:"sentiment"`
}

// FactorWeights weight the four sub-scores into a composite.
// Weights must be non-negative and sum to 1.0.
type FactorWeights struct {
	Fundamentals float64 `yaml:"fundamentals" json:"fundamentals"`
	Momentum     float64 `yaml:"momentum" json:"momentum"`
	Quality      float64 `yaml:"quality" json:"quality"`
	Sentiment    float64 `yaml:"sentiment" json:"sentiment"`
}

// Sum returns the sum of all weights.
func (w FactorWeights) Sum() float64 {
	return w.Fundamentals + w.Momentum + w.Quality + w.Sentiment
}

// Composite combines sub-scores into a single weighted score.
func (w FactorWeights) Composite(s FactorScores) float64 {
	return s.Fundamentals*w.Fundamentals +
		s.Momentum*w.Momentum +
		s.Quality*w.Quality +
		s.Sentiment*w.Sentiment
}

// Validate checks non-negativity and that weights sum to 1.0.
func (w FactorWeights) Validate() error {
	for name, v := range map[string]float64{
		"fundamentals": w.Fundamentals,
		"momentum":     w.Momentum,
		"quality":      w.Quality,
		"sentiment":    w.Sentiment,
	} {
		if v < 0 {
			return fmt.Errorf("factor weight %s must be >= 0, got %.4f", name, v)
		}
	}
	if sum := w.Sum(); sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("factor weights must sum to 1.0, got %.4f", sum)
	}
	return nil
}

// PriceSource provides strictly historical prices. Implementations must
// return only what was knowable as of the given date.
type PriceSource interface {
	// PriceAt returns the closing price for symbol on date, or
	// ErrDataUnavailable when no print exists (holiday, halted, unlisted).
	PriceAt(ctx context.Context, symbol string, date time.Time) (float64, error)
}

// Scorer is the factor-scoring oracle. The backtest core treats it as a
// pure function of (symbol, date) and never inspects its internals.
type Scorer interface {
	// Score returns the four sub-scores for symbol as of date, or
	// ErrDataUnavailable. Absence is explicit; implementations must not
	// substitute a synthetic neutral score.
	Score(ctx context.Context, symbol string, date time.Time) (FactorScores, error)
}

// RegimeState describes the prevailing market regime on a date. Weights
// is optional; when present it replaces the static factor weights.
type RegimeState struct {
	Trend      string         `json:"trend"`      // "bull", "bear", "sideways"
	Volatility string         `json:"volatility"` // "low", "normal", "high"
	Label      string         `json:"label"`
	Weights    *FactorWeights `json:"weights,omitempty"`
}

// RegimeSource classifies the market regime. Consulted only when
// adaptive weighting is enabled.
type RegimeSource interface {
	RegimeAt(ctx context.Context, date time.Time) (RegimeState, error)
}

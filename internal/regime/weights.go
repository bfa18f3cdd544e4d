package regime

import (
	"context"
	"fmt"
	"time"

	"github.com/dhkwon/talos/internal/contracts"
)

// Presets are the per-regime factor weight vectors used when adaptive
// weighting is enabled. The orchestrator only sees the RegimeSource
// interface; classification internals stay swappable behind it.
type Presets struct {
	Bull     contracts.FactorWeights `yaml:"bull" json:"bull"`
	Sideways contracts.FactorWeights `yaml:"sideways" json:"sideways"`
	HighVol  contracts.FactorWeights `yaml:"high_vol" json:"high_vol"`
}

// DefaultPresets returns the regime weight tables.
// Bull leans on momentum; high volatility shifts toward fundamentals
// and quality, where selection holds up better when momentum is noise.
func DefaultPresets() Presets {
	return Presets{
		Bull: contracts.FactorWeights{
			Momentum:     0.40,
			Fundamentals: 0.25,
			Quality:      0.20,
			Sentiment:    0.15,
		},
		Sideways: contracts.FactorWeights{
			Momentum:     0.25,
			Fundamentals: 0.35,
			Quality:      0.25,
			Sentiment:    0.15,
		},
		HighVol: contracts.FactorWeights{
			Momentum:     0.15,
			Fundamentals: 0.40,
			Quality:      0.35,
			Sentiment:    0.10,
		},
	}
}

// Validate checks every preset sums to 1.0.
func (p Presets) Validate() error {
	for name, w := range map[string]contracts.FactorWeights{
		"bull":     p.Bull,
		"sideways": p.Sideways,
		"high_vol": p.HighVol,
	} {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("regime preset %s: %w", name, err)
		}
	}
	return nil
}

// For maps a (trend, volatility) classification to a weight vector and
// a regime label. High volatility dominates trend.
func (p Presets) For(trend, volatility string) (contracts.FactorWeights, string) {
	if volatility == "high" {
		return p.HighVol, "high_vol"
	}
	switch trend {
	case "bull":
		return p.Bull, "bull"
	default:
		return p.Sideways, "sideways"
	}
}

// Classifier labels a date with (trend, volatility). Implementations
// are external collaborators; the backtest core never inspects them.
type Classifier func(ctx context.Context, date time.Time) (trend, volatility string, err error)

// PresetSource is the default RegimeSource: a classifier picks the
// regime, the presets supply the weight vector.
type PresetSource struct {
	presets  Presets
	classify Classifier
}

// NewPresetSource wires a classifier to the preset tables.
func NewPresetSource(presets Presets, classify Classifier) (*PresetSource, error) {
	if err := presets.Validate(); err != nil {
		return nil, err
	}
	if classify == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	return &PresetSource{presets: presets, classify: classify}, nil
}

// RegimeAt implements contracts.RegimeSource.
func (s *PresetSource) RegimeAt(ctx context.Context, date time.Time) (contracts.RegimeState, error) {
	trend, volatility, err := s.classify(ctx, date)
	if err != nil {
		return contracts.RegimeState{}, fmt.Errorf("classify regime at %s: %w", date.Format("2006-01-02"), err)
	}

	weights, label := s.presets.For(trend, volatility)
	return contracts.RegimeState{
		Trend:      trend,
		Volatility: volatility,
		Label:      label,
		Weights:    &weights,
	}, nil
}

// Static returns a RegimeSource that always reports the same state.
// Useful for experiments that pin the regime.
func Static(state contracts.RegimeState) contracts.RegimeSource {
	return staticSource{state: state}
}

type staticSource struct {
	state contracts.RegimeState
}

func (s staticSource) RegimeAt(ctx context.Context, date time.Time) (contracts.RegimeState, error) {
	return s.state, nil
}

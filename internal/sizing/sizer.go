package sizing

import (
	"fmt"
	"sort"
)

// Tier buckets a selected symbol by conviction. A symbol falls into the
// first tier whose composite and quality floors it clears; BaseWeight is
// the pre-normalization target weight for that bucket.
type Tier struct {
	Name         string  `yaml:"name" json:"name"`
	MinComposite float64 `yaml:"min_composite" json:"min_composite"`
	MinQuality   float64 `yaml:"min_quality" json:"min_quality"`
	BaseWeight   float64 `yaml:"base_weight" json:"base_weight"`
}

// Config holds conviction-tier thresholds and the invested fraction.
// Thresholds are configuration, not constants: tier cut-offs were tuned
// empirically and must be swappable between runs.
type Config struct {
	Tiers []Tier `yaml:"tiers" json:"tiers"`

	// DefaultWeight applies when a symbol clears no tier.
	DefaultWeight float64 `yaml:"default_weight" json:"default_weight"`

	// InvestedFraction is what the normalized weights sum to.
	// 1.0 means fully invested; 1 - cash_buffer otherwise.
	InvestedFraction float64 `yaml:"invested_fraction" json:"invested_fraction"`
}

// Validate checks tier configuration.
func (c Config) Validate() error {
	if c.InvestedFraction <= 0 || c.InvestedFraction > 1 {
		return fmt.Errorf("invested_fraction must be in (0, 1], got %.4f", c.InvestedFraction)
	}
	if c.DefaultWeight < 0 {
		return fmt.Errorf("default_weight must be >= 0, got %.4f", c.DefaultWeight)
	}
	for i, t := range c.Tiers {
		if t.BaseWeight <= 0 {
			return fmt.Errorf("tiers[%d].base_weight must be > 0, got %.4f", i, t.BaseWeight)
		}
		if t.Name == "" {
			return fmt.Errorf("tiers[%d].name is required", i)
		}
	}
	return nil
}

// Candidate is a selected symbol with its scores at selection time.
type Candidate struct {
	Symbol    string
	Composite float64
	Quality   float64
}

// Sizer maps selected symbols to target weights via conviction tiers.
type Sizer struct {
	config Config
}

// NewSizer creates a Sizer. Tiers are kept sorted by composite floor
// descending so the most demanding tier is tried first.
func NewSizer(config Config) *Sizer {
	tiers := make([]Tier, len(config.Tiers))
	copy(tiers, config.Tiers)
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].MinComposite > tiers[j].MinComposite
	})
	config.Tiers = tiers
	return &Sizer{config: config}
}

// TierFor returns the conviction tier for a candidate, or nil when it
// clears no tier.
func (s *Sizer) TierFor(c Candidate) *Tier {
	for i := range s.config.Tiers {
		t := &s.config.Tiers[i]
		if c.Composite >= t.MinComposite && c.Quality >= t.MinQuality {
			return t
		}
	}
	return nil
}

// WeightsFor assigns each selected symbol its tier base weight, then
// normalizes the set to sum to the invested fraction. An empty
// selection returns an empty map.
func (s *Sizer) WeightsFor(selected []Candidate) map[string]float64 {
	weights := make(map[string]float64, len(selected))
	if len(selected) == 0 {
		return weights
	}

	total := 0.0
	for _, c := range selected {
		w := s.config.DefaultWeight
		if t := s.TierFor(c); t != nil {
			w = t.BaseWeight
		}
		weights[c.Symbol] = w
		total += w
	}

	if total == 0 {
		// All candidates landed on a zero default: fall back to equal weight.
		equal := s.config.InvestedFraction / float64(len(selected))
		for sym := range weights {
			weights[sym] = equal
		}
		return weights
	}

	factor := s.config.InvestedFraction / total
	for sym, w := range weights {
		weights[sym] = w * factor
	}
	return weights
}

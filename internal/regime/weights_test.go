package regime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhkwon/talos/internal/contracts"
)

func TestDefaultPresets_Valid(t *testing.T) {
	assert.NoError(t, DefaultPresets().Validate())
}

func TestPresetsFor(t *testing.T) {
	p := DefaultPresets()

	tests := []struct {
		trend      string
		volatility string
		wantLabel  string
	}{
		{"bull", "normal", "bull"},
		{"bull", "high", "high_vol"}, // high vol dominates trend
		{"bear", "high", "high_vol"},
		{"bear", "normal", "sideways"},
		{"sideways", "low", "sideways"},
	}

	for _, tt := range tests {
		t.Run(tt.trend+"/"+tt.volatility, func(t *testing.T) {
			weights, label := p.For(tt.trend, tt.volatility)
			assert.Equal(t, tt.wantLabel, label)
			assert.NoError(t, weights.Validate())
		})
	}
}

func TestPresetsValidate_RejectsBadSum(t *testing.T) {
	p := DefaultPresets()
	p.Bull.Momentum = 0.90
	assert.Error(t, p.Validate())
}

func TestNewPresetSource_RequiresClassifier(t *testing.T) {
	_, err := NewPresetSource(DefaultPresets(), nil)
	assert.Error(t, err)
}

func TestPresetSource_RegimeAt(t *testing.T) {
	classify := func(ctx context.Context, date time.Time) (string, string, error) {
		return "bull", "normal", nil
	}
	source, err := NewPresetSource(DefaultPresets(), classify)
	require.NoError(t, err)

	state, err := source.RegimeAt(context.Background(), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "bull", state.Label)
	require.NotNil(t, state.Weights)
	assert.Equal(t, DefaultPresets().Bull, *state.Weights)
}

func TestStatic(t *testing.T) {
	want := contracts.RegimeState{Trend: "bull", Volatility: "low", Label: "bull"}
	source := Static(want)

	got, err := source.RegimeAt(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

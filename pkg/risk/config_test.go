package risk

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis_router/pkg/incident"
)

const day = 24 * time.Hour

func TestDecayFactorLinear(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		age  time.Duration
		want float64
	}{
		{-time.Hour, 1},
		{0, 1},
		{15 * day, 0.5},
		{30 * day, 0},
		{31 * day, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, cfg.DecayFactor(tt.age), 1e-12, "age %v", tt.age)
	}
}

func TestDecayFactorExponential(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Decay = DecayExponential
	cfg.HalfLife = 7 * day

	assert.Equal(t, 1.0, cfg.DecayFactor(0))
	assert.InDelta(t, 0.5, cfg.DecayFactor(7*day), 1e-12)
	assert.InDelta(t, 0.25, cfg.DecayFactor(14*day), 1e-12)
	assert.Zero(t, cfg.DecayFactor(30*day+time.Second))

	// Never increases with age.
	prev := math.Inf(1)
	for age := time.Duration(0); age <= 32*day; age += 12 * time.Hour {
		f := cfg.DecayFactor(age)
		assert.LessOrEqual(t, f, prev, "age %v", age)
		prev = f
	}
}

func TestWeight(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1.0, cfg.Weight(incident.SeverityLow))
	assert.Equal(t, 3.0, cfg.Weight(incident.SeverityMedium))
	assert.Equal(t, 8.0, cfg.Weight(incident.SeverityHigh))
	assert.Zero(t, cfg.Weight(0))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero radius", func(c *Config) { c.Radius = 0 }},
		{"NaN radius", func(c *Config) { c.Radius = math.NaN() }},
		{"zero retention", func(c *Config) { c.Retention = 0 }},
		{"zero weight", func(c *Config) { c.Weights[0] = 0 }},
		{"decreasing weights", func(c *Config) { c.Weights = [3]float64{3, 2, 8} }},
		{"infinite weight", func(c *Config) { c.Weights[2] = math.Inf(1) }},
		{"unknown decay", func(c *Config) { c.Decay = "cubic" }},
		{"exponential without half-life", func(c *Config) { c.Decay = DecayExponential; c.HalfLife = 0 }},
		{"unknown proximity", func(c *Config) { c.Proximity = "centroid" }},
		{"inverted thresholds", func(c *Config) { c.Point = Thresholds{Medium: 5, High: 1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestThresholdsClassify(t *testing.T) {
	th := Thresholds{Medium: 2, High: 6}
	assert.Equal(t, LevelLow, th.Classify(0))
	assert.Equal(t, LevelLow, th.Classify(1.99))
	assert.Equal(t, LevelMedium, th.Classify(2))
	assert.Equal(t, LevelMedium, th.Classify(5.9))
	assert.Equal(t, LevelHigh, th.Classify(6))
	assert.Equal(t, "medium", LevelMedium.String())

	var l Level
	require.NoError(t, l.UnmarshalText([]byte("High")))
	assert.Equal(t, LevelHigh, l)
	assert.Error(t, l.UnmarshalText([]byte("severe")))
}

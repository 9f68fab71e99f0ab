// Package risk turns active incidents into per-edge risk costs and publishes
// them to the graph store.
package risk

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"aegis_router/pkg/incident"
)

var (
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid risk config")
	// ErrDataQuality marks a computed risk value that was NaN, infinite or
	// negative. Such values are clamped to zero and logged.
	ErrDataQuality = errors.New("risk data quality")
)

// Decay selects how an incident's influence fades with age.
type Decay string

const (
	DecayLinear      Decay = "linear"
	DecayExponential Decay = "exponential"
)

// Proximity selects which part of an edge is measured against the
// influence radius.
type Proximity string

const (
	ProximityMidpoint Proximity = "midpoint"
	ProximityEndpoint Proximity = "endpoint"
	ProximitySegment  Proximity = "segment"
)

// Level is a coarse risk classification.
type Level uint8

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	}
	return "Level(" + strconv.Itoa(int(l)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "low":
		*l = LevelLow
	case "medium":
		*l = LevelMedium
	case "high":
		*l = LevelHigh
	default:
		return fmt.Errorf("unknown risk level %q", b)
	}
	return nil
}

// Thresholds classify a risk score: below Medium is low, below High is
// medium, anything else is high.
type Thresholds struct {
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

// Classify returns the level for score.
func (t Thresholds) Classify(score float64) Level {
	switch {
	case score < t.Medium:
		return LevelLow
	case score < t.High:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// Validate checks 0 < Medium <= High.
func (t Thresholds) Validate() error {
	if !(t.Medium > 0) || t.High < t.Medium || math.IsInf(t.High, 0) {
		return fmt.Errorf("%w: thresholds must satisfy 0 < medium <= high, got %v/%v", ErrInvalidConfig, t.Medium, t.High)
	}
	return nil
}

// Config holds the risk model parameters.
type Config struct {
	// Radius is the influence radius of an incident in meters.
	Radius float64
	// Retention is the age after which an incident contributes nothing.
	Retention time.Duration
	// Weights are the low, medium and high severity weights.
	Weights [3]float64
	Decay   Decay
	// HalfLife applies to exponential decay.
	HalfLife  time.Duration
	Proximity Proximity
	// Point classifies PointRisk scores.
	Point Thresholds
}

// DefaultConfig returns the stock model: 200 m radius around the whole
// segment, 30 day linear decay and weights 1, 3 and 8.
func DefaultConfig() Config {
	return Config{
		Radius:    200,
		Retention: 30 * 24 * time.Hour,
		Weights:   [3]float64{1, 3, 8},
		Decay:     DecayLinear,
		HalfLife:  7 * 24 * time.Hour,
		Proximity: ProximitySegment,
		Point:     Thresholds{Medium: 2, High: 6},
	}
}

// Validate reports every invalid parameter.
func (c Config) Validate() error {
	var errs []string
	if !(c.Radius > 0) || math.IsInf(c.Radius, 0) {
		errs = append(errs, fmt.Sprintf("radius must be positive, got %v", c.Radius))
	}
	if c.Retention <= 0 {
		errs = append(errs, fmt.Sprintf("retention must be positive, got %v", c.Retention))
	}
	prev := 0.0
	for _, w := range c.Weights {
		if !(w > 0) || math.IsInf(w, 0) || w < prev {
			errs = append(errs, fmt.Sprintf("severity weights must be positive and non-decreasing, got %v", c.Weights))
			break
		}
		prev = w
	}
	switch c.Decay {
	case DecayLinear:
	case DecayExponential:
		if c.HalfLife <= 0 {
			errs = append(errs, "exponential decay requires a positive half-life")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown decay %q", c.Decay))
	}
	switch c.Proximity {
	case ProximityMidpoint, ProximityEndpoint, ProximitySegment:
	default:
		errs = append(errs, fmt.Sprintf("unknown proximity %q", c.Proximity))
	}
	if err := c.Point.Validate(); err != nil {
		errs = append(errs, "point "+err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// Weight returns the configured weight for sev, or zero for an invalid
// severity.
func (c Config) Weight(sev incident.Severity) float64 {
	if !sev.Valid() {
		return 0
	}
	return c.Weights[sev-incident.SeverityLow]
}

// DecayFactor returns the influence multiplier for an incident of the given
// age. It starts at 1 and never increases; beyond retention it is 0.
func (c Config) DecayFactor(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	if age > c.Retention {
		return 0
	}
	if c.Decay == DecayExponential {
		return math.Pow(0.5, float64(age)/float64(c.HalfLife))
	}
	return 1 - float64(age)/float64(c.Retention)
}

// Contribution is one incident's share of risk at asOf.
func (c Config) Contribution(inc incident.Incident, asOf time.Time) float64 {
	return c.Weight(inc.Severity) * c.DecayFactor(inc.Age(asOf))
}

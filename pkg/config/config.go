// Package config loads the server configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"aegis_router/pkg/engine"
	"aegis_router/pkg/geo"
	"aegis_router/pkg/risk"
	"aegis_router/pkg/routing"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full server configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Graph     Graph     `yaml:"graph"`
	Incidents Incidents `yaml:"incidents"`
	Risk      Risk      `yaml:"risk"`
	Routing   Routing   `yaml:"routing"`
	Geocoder  Geocoder  `yaml:"geocoder"`
	Notifier  Notifier  `yaml:"notifier"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Log       Log       `yaml:"log"`
}

type Server struct {
	Addr           string   `yaml:"addr"`
	ReadTimeout    Duration `yaml:"read_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout"`
	RequestTimeout Duration `yaml:"request_timeout"`
	MaxConcurrent  int      `yaml:"max_concurrent"`
	CORSOrigin     string   `yaml:"cors_origin"`
}

type Graph struct {
	// Path is a .bin, .osm.pbf, .yaml or .geojson network file.
	Path string `yaml:"path"`
}

type Incidents struct {
	// Backend is "memory" or "badger".
	Backend         string   `yaml:"backend"`
	Dir             string   `yaml:"dir"`
	Retention       Duration `yaml:"retention"`
	PurgeInterval   Duration `yaml:"purge_interval"`
	RefreshInterval Duration `yaml:"refresh_interval"`
}

type Weights struct {
	Low    float64 `yaml:"low"`
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

type Risk struct {
	Radius     float64         `yaml:"radius"`
	Weights    Weights         `yaml:"weights"`
	Decay      risk.Decay      `yaml:"decay"`
	HalfLife   Duration        `yaml:"half_life"`
	Proximity  risk.Proximity  `yaml:"proximity"`
	Thresholds risk.Thresholds `yaml:"thresholds"`
}

type Routing struct {
	MaxSnapDistance    float64           `yaml:"max_snap_distance"`
	Timeout            Duration          `yaml:"timeout"`
	Weighting          routing.Weighting `yaml:"weighting"`
	Thresholds         risk.Thresholds   `yaml:"thresholds"`
	AlternativePenalty float64           `yaml:"alternative_penalty"`
	MaxAlternatives    int               `yaml:"max_alternatives"`
}

type Landmark struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lng  float64 `yaml:"lng"`
}

type Geocoder struct {
	// NominatimURL enables remote lookups when set.
	NominatimURL string     `yaml:"nominatim_url"`
	UserAgent    string     `yaml:"user_agent"`
	Suffix       string     `yaml:"suffix"`
	Timeout      Duration   `yaml:"timeout"`
	CacheTTL     Duration   `yaml:"cache_ttl"`
	CacheSize    int        `yaml:"cache_size"`
	Landmarks    []Landmark `yaml:"landmarks"`
}

type Notifier struct {
	// WebhookURL receives SOS alerts. Empty logs them locally.
	WebhookURL string   `yaml:"webhook_url"`
	Timeout    Duration `yaml:"timeout"`
}

type RateLimit struct {
	// PerMinute is the sustained incident report rate per client. Zero
	// disables limiting.
	PerMinute float64 `yaml:"per_minute"`
	Burst     int     `yaml:"burst"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	rc := risk.DefaultConfig()
	pc := routing.DefaultConfig()
	return Config{
		Server: Server{
			Addr:           ":8080",
			ReadTimeout:    Duration(5 * time.Second),
			WriteTimeout:   Duration(10 * time.Second),
			RequestTimeout: Duration(5 * time.Second),
			MaxConcurrent:  runtime.NumCPU() * 2,
		},
		Graph: Graph{Path: "data/graph.bin"},
		Incidents: Incidents{
			Backend:         "memory",
			Dir:             "data/incidents",
			Retention:       Duration(rc.Retention),
			PurgeInterval:   Duration(time.Hour),
			RefreshInterval: Duration(10 * time.Minute),
		},
		Risk: Risk{
			Radius:     rc.Radius,
			Weights:    Weights{Low: rc.Weights[0], Medium: rc.Weights[1], High: rc.Weights[2]},
			Decay:      rc.Decay,
			HalfLife:   Duration(rc.HalfLife),
			Proximity:  rc.Proximity,
			Thresholds: rc.Point,
		},
		Routing: Routing{
			MaxSnapDistance:    pc.MaxSnapDistance,
			Timeout:            Duration(pc.Timeout),
			Weighting:          pc.Weighting,
			Thresholds:         pc.Thresholds,
			AlternativePenalty: pc.AlternativePenalty,
			MaxAlternatives:    pc.MaxAlternatives,
		},
		Geocoder: Geocoder{
			UserAgent: "aegis-router/1.0",
			Timeout:   Duration(8 * time.Second),
			CacheTTL:  Duration(24 * time.Hour),
			CacheSize: 10000,
		},
		Notifier:  Notifier{Timeout: Duration(10 * time.Second)},
		RateLimit: RateLimit{PerMinute: 6, Burst: 3},
		Log:       Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and applies AEGIS_* environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up with
// lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = Duration(d)
		}
	}

	str("AEGIS_ADDR", &c.Server.Addr)
	str("AEGIS_CORS_ORIGIN", &c.Server.CORSOrigin)
	integer("AEGIS_MAX_CONCURRENT", &c.Server.MaxConcurrent)
	str("AEGIS_GRAPH", &c.Graph.Path)
	str("AEGIS_INCIDENT_BACKEND", &c.Incidents.Backend)
	str("AEGIS_INCIDENT_DIR", &c.Incidents.Dir)
	dur("AEGIS_RETENTION", &c.Incidents.Retention)
	num("AEGIS_RISK_RADIUS", &c.Risk.Radius)
	num("AEGIS_ALPHA", &c.Routing.Weighting.Alpha)
	num("AEGIS_BETA", &c.Routing.Weighting.Beta)
	dur("AEGIS_ROUTE_TIMEOUT", &c.Routing.Timeout)
	str("AEGIS_NOMINATIM_URL", &c.Geocoder.NominatimURL)
	str("AEGIS_SOS_WEBHOOK", &c.Notifier.WebhookURL)
	num("AEGIS_RATE_PER_MINUTE", &c.RateLimit.PerMinute)
	str("AEGIS_LOG_LEVEL", &c.Log.Level)
	str("AEGIS_LOG_FORMAT", &c.Log.Format)
	if v, ok := lookup("AEGIS_DECAY"); ok && v != "" {
		c.Risk.Decay = risk.Decay(v)
	}
	if v, ok := lookup("AEGIS_PROXIMITY"); ok && v != "" {
		c.Risk.Proximity = risk.Proximity(v)
	}
	return errors.Join(errs...)
}

// RiskConfig returns the risk model settings.
func (c Config) RiskConfig() risk.Config {
	return risk.Config{
		Radius:    c.Risk.Radius,
		Retention: c.Incidents.Retention.Std(),
		Weights:   [3]float64{c.Risk.Weights.Low, c.Risk.Weights.Medium, c.Risk.Weights.High},
		Decay:     c.Risk.Decay,
		HalfLife:  c.Risk.HalfLife.Std(),
		Proximity: c.Risk.Proximity,
		Point:     c.Risk.Thresholds,
	}
}

// RoutingConfig returns the planner settings.
func (c Config) RoutingConfig() routing.Config {
	return routing.Config{
		MaxSnapDistance:    c.Routing.MaxSnapDistance,
		Timeout:            c.Routing.Timeout.Std(),
		Thresholds:         c.Routing.Thresholds,
		Weighting:          c.Routing.Weighting,
		AlternativePenalty: c.Routing.AlternativePenalty,
		MaxAlternatives:    c.Routing.MaxAlternatives,
	}
}

// EngineConfig returns the settings of every engine component.
func (c Config) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Risk = c.RiskConfig()
	cfg.Routing = c.RoutingConfig()
	cfg.Pipeline.RefreshInterval = c.Incidents.RefreshInterval.Std()
	cfg.Pipeline.PurgeInterval = c.Incidents.PurgeInterval.Std()
	return cfg
}

// LandmarkCoords returns the configured landmarks keyed by name.
func (c Config) LandmarkCoords() map[string]geo.Coordinate {
	out := make(map[string]geo.Coordinate, len(c.Geocoder.Landmarks))
	for _, l := range c.Geocoder.Landmarks {
		out[l.Name] = geo.Coordinate{Lat: l.Lat, Lng: l.Lng}
	}
	return out
}

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}
	if c.Server.Addr == "" {
		bad("server.addr is empty")
	}
	if c.Server.MaxConcurrent <= 0 {
		bad("server.max_concurrent must be positive, got %d", c.Server.MaxConcurrent)
	}
	if c.Server.RequestTimeout <= 0 {
		bad("server.request_timeout must be positive")
	}
	if c.Graph.Path == "" {
		bad("graph.path is empty")
	}
	switch c.Incidents.Backend {
	case "memory":
	case "badger":
		if c.Incidents.Dir == "" {
			bad("incidents.dir is required for the badger backend")
		}
	default:
		bad("incidents.backend must be memory or badger, got %q", c.Incidents.Backend)
	}
	if err := c.RiskConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	rc := c.RoutingConfig()
	if err := rc.Weighting.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := rc.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !(rc.MaxSnapDistance > 0) {
		bad("routing.max_snap_distance must be positive")
	}
	if c.Geocoder.CacheSize < 0 {
		bad("geocoder.cache_size must not be negative, got %d", c.Geocoder.CacheSize)
	}
	for i, l := range c.Geocoder.Landmarks {
		if l.Name == "" {
			bad("geocoder.landmarks[%d] has no name", i)
		}
		if err := (geo.Coordinate{Lat: l.Lat, Lng: l.Lng}).Validate(); err != nil {
			bad("geocoder.landmarks[%d]: %v", i, err)
		}
	}
	if c.RateLimit.PerMinute < 0 || c.RateLimit.Burst < 0 {
		bad("rate_limit values must not be negative")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		bad("log.format must be text or json, got %q", f)
	}
	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalid, s)
	}
	return l, nil
}

// NewLogger builds the process logger writing to w.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Package engine composes the graph store, incident store, risk pipeline,
// route planner and the geocoding and notification collaborators into the
// operations served over HTTP.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"aegis_router/pkg/geo"
	"aegis_router/pkg/geocode"
	"aegis_router/pkg/graph"
	"aegis_router/pkg/incident"
	"aegis_router/pkg/metrics"
	"aegis_router/pkg/notify"
	"aegis_router/pkg/risk"
	"aegis_router/pkg/routing"
)

// ErrInvalidLocation is returned for a location with neither a name nor a
// valid coordinate.
var ErrInvalidLocation = errors.New("invalid location")

// Location is a place given either by name or by coordinate.
type Location struct {
	Name  string
	Coord geo.Coordinate
	// ByCoord is set when Coord was given explicitly.
	ByCoord bool
}

// Named returns a location to be resolved by name.
func Named(name string) Location { return Location{Name: name} }

// At returns a location at c.
func At(c geo.Coordinate) Location { return Location{Coord: c, ByCoord: true} }

func (l Location) String() string {
	if l.ByCoord {
		return l.Coord.String()
	}
	return fmt.Sprintf("%q", l.Name)
}

// RouteQuery asks for a route between two locations. A nil Weighting uses the
// planner default.
type RouteQuery struct {
	Start     Location
	End       Location
	Weighting *routing.Weighting
}

// Config holds the tunables of every engine component.
type Config struct {
	Risk     risk.Config
	Routing  routing.Config
	Pipeline risk.PipelineOptions
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Risk:    risk.DefaultConfig(),
		Routing: routing.DefaultConfig(),
		Pipeline: risk.PipelineOptions{
			RefreshInterval: 10 * time.Minute,
			PurgeInterval:   time.Hour,
		},
	}
}

// Engine is the safety-aware routing service.
type Engine struct {
	graphs    *graph.Store
	incidents *incident.Store
	agg       *risk.Aggregator
	pipeline  *risk.Pipeline
	planner   *routing.Planner
	geocoder  geocode.Geocoder
	notifier  notify.Notifier
	clock     func() time.Time
	logger    *slog.Logger
	started   time.Time
}

// New wires an engine. The incident store is both the risk source and the
// purger. geocoder and notifier may be nil; names then resolve against graph
// nodes only and SOS alerts go to the log.
func New(graphs *graph.Store, incidents *incident.Store, geocoder geocode.Geocoder, notifier notify.Notifier, cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Risk.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Routing.Weighting.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if geocoder == nil {
		geocoder = geocode.NewGazetteer(graphs, nil)
	}
	if notifier == nil {
		notifier = notify.NewLog(logger, 0)
	}
	clock := cfg.Pipeline.Clock
	if clock == nil {
		clock = time.Now
	}

	agg := risk.NewAggregator(graphs, incidents, cfg.Risk, logger)
	popts := cfg.Pipeline
	popts.Clock = clock
	popts.Logger = logger
	if popts.PurgeInterval > 0 {
		popts.Purger = incidents
	}
	return &Engine{
		graphs:    graphs,
		incidents: incidents,
		agg:       agg,
		pipeline:  risk.NewPipeline(agg, popts),
		planner:   routing.NewPlanner(graphs, cfg.Routing),
		geocoder:  geocoder,
		notifier:  notifier,
		clock:     clock,
		logger:    logger,
		started:   clock(),
	}, nil
}

// Prime computes the full risk table for the loaded graph. Call it before
// serving routes so the first queries already see every stored incident.
func (e *Engine) Prime(ctx context.Context) error {
	return e.agg.RecomputeAll(ctx, e.clock())
}

// Run drives risk recomputation until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	return e.pipeline.Run(ctx)
}

// Sync waits until every incident reported so far is reflected in the
// risk table.
func (e *Engine) Sync(ctx context.Context) error {
	return e.pipeline.Sync(ctx)
}

// Close releases the incident log.
func (e *Engine) Close() error {
	return e.incidents.Close()
}

// Resolve turns a location into a coordinate. Graph node names are matched
// first so named waypoints never reach a remote geocoder.
func (e *Engine) Resolve(ctx context.Context, loc Location) (geo.Coordinate, error) {
	if loc.ByCoord {
		if err := loc.Coord.Validate(); err != nil {
			return geo.Coordinate{}, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
		}
		return loc.Coord, nil
	}
	if loc.Name == "" {
		return geo.Coordinate{}, fmt.Errorf("%w: empty name", ErrInvalidLocation)
	}
	g := e.graphs.Graph()
	if id, ok := g.NodeByName(loc.Name); ok {
		return g.Coord(id), nil
	}
	return e.geocoder.Resolve(ctx, loc.Name)
}

func (e *Engine) resolvePair(ctx context.Context, start, end Location) (geo.Coordinate, geo.Coordinate, error) {
	var s, t geo.Coordinate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := e.Resolve(gctx, start)
		if err != nil {
			return fmt.Errorf("start %s: %w", start, err)
		}
		s = c
		return nil
	})
	g.Go(func() error {
		c, err := e.Resolve(gctx, end)
		if err != nil {
			return fmt.Errorf("end %s: %w", end, err)
		}
		t = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return s, t, err
	}
	return s, t, nil
}

func (e *Engine) weighting(w *routing.Weighting) routing.Weighting {
	if w == nil {
		return e.planner.Config().Weighting
	}
	return *w
}

// Route plans the safest route for q. Names are resolved before any
// planning starts.
func (e *Engine) Route(ctx context.Context, q RouteQuery) (*routing.Route, error) {
	start := time.Now()
	route, err := e.route(ctx, q)
	observe("route", start, err)
	if err == nil {
		e.logger.Debug("route planned",
			"start", q.Start.String(), "end", q.End.String(),
			"meters", route.BaseCost, "risk", route.RiskCost, "level", route.Risk.String())
	}
	return route, err
}

func (e *Engine) route(ctx context.Context, q RouteQuery) (*routing.Route, error) {
	w := e.weighting(q.Weighting)
	if err := w.Validate(); err != nil {
		return nil, err
	}
	s, t, err := e.resolvePair(ctx, q.Start, q.End)
	if err != nil {
		return nil, err
	}
	return e.planner.Plan(ctx, s, t, w)
}

// Alternatives returns up to k distinct routes for q, safest first.
func (e *Engine) Alternatives(ctx context.Context, q RouteQuery, k int) ([]*routing.Route, error) {
	start := time.Now()
	routes, err := e.alternatives(ctx, q, k)
	observe("alternatives", start, err)
	return routes, err
}

func (e *Engine) alternatives(ctx context.Context, q RouteQuery, k int) ([]*routing.Route, error) {
	w := e.weighting(q.Weighting)
	if err := w.Validate(); err != nil {
		return nil, err
	}
	s, t, err := e.resolvePair(ctx, q.Start, q.End)
	if err != nil {
		return nil, err
	}
	return e.planner.Alternatives(ctx, s, t, w, k)
}

func observe(kind string, start time.Time, err error) {
	metrics.RouteDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	metrics.RouteQueries.WithLabelValues(kind, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, geocode.ErrNotFound):
		return "not_found"
	case errors.Is(err, routing.ErrUnreachable):
		return "unreachable"
	case errors.Is(err, routing.ErrNoPath):
		return "no_path"
	case errors.Is(err, routing.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

// ReportIncident records an incident and schedules the risk update of the
// edges around it. The incident is durable when this returns; routes planned
// after the pipeline catches up see its risk.
func (e *Engine) ReportIncident(ctx context.Context, c geo.Coordinate, sev incident.Severity, description string) (incident.Incident, error) {
	inc, err := e.incidents.Report(ctx, c, sev, description)
	if err != nil {
		return incident.Incident{}, err
	}
	metrics.IncidentsReported.WithLabelValues(sev.String()).Inc()
	e.pipeline.Notify(inc)
	e.logger.Info("incident reported", "id", inc.ID, "severity", sev.String(), "lat", c.Lat, "lng", c.Lng)
	return inc, nil
}

// Incidents returns every active incident in report order.
func (e *Engine) Incidents(ctx context.Context) ([]incident.Incident, error) {
	var out []incident.Incident
	for inc, err := range e.incidents.ListActive(ctx, e.clock()) {
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, nil
}

// AllIncidents returns every stored incident, expired ones included, in
// report order.
func (e *Engine) AllIncidents() []incident.Incident {
	return e.incidents.All()
}

// IncidentsNear returns active incidents within radius meters of c.
func (e *Engine) IncidentsNear(ctx context.Context, c geo.Coordinate, radius float64) ([]incident.Incident, error) {
	return e.incidents.Near(ctx, c, radius, e.clock())
}

// Incident looks up one incident by ID.
func (e *Engine) Incident(id string) (incident.Incident, error) {
	return e.incidents.Get(id)
}

// Safety scores the risk at c from the incidents within the influence
// radius.
func (e *Engine) Safety(ctx context.Context, c geo.Coordinate) (risk.PointScore, error) {
	return e.agg.PointRisk(ctx, c, e.clock())
}

// SOS validates an alert and forwards it to the notifier. A zero timestamp
// is replaced by the current time.
func (e *Engine) SOS(ctx context.Context, sos notify.SOS) error {
	if err := sos.Coord.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	if sos.Timestamp.IsZero() {
		sos.Timestamp = e.clock()
	}
	if err := e.notifier.Notify(ctx, sos); err != nil {
		metrics.SOSDispatched.WithLabelValues("error").Inc()
		e.logger.Error("SOS dispatch failed", "err", err)
		return err
	}
	metrics.SOSDispatched.WithLabelValues("ok").Inc()
	return nil
}

// Stats describes the loaded graph and incident state.
type Stats struct {
	Nodes           uint32
	Edges           uint32
	Named           int
	GraphVersion    uint64
	RiskVersion     uint64
	Incidents       int
	ActiveIncidents int
	RiskyEdges      int
	MaxEdgeRisk     float64
	Uptime          time.Duration
}

// Stats reports the current state.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	snap := e.graphs.Snapshot()
	st := Stats{
		Nodes:        snap.Graph.NumNodes,
		Edges:        snap.Graph.NumEdges,
		Named:        len(snap.Graph.Names()),
		GraphVersion: snap.Generation,
		RiskVersion:  snap.Version,
		Incidents:    e.incidents.Len(),
		Uptime:       e.clock().Sub(e.started),
	}
	for id := range snap.Graph.NumEdges {
		if r := snap.Risk(id); r > 0 {
			st.RiskyEdges++
			st.MaxEdgeRisk = max(st.MaxEdgeRisk, r)
		}
	}
	for _, err := range e.incidents.ListActive(ctx, e.clock()) {
		if err != nil {
			return Stats{}, err
		}
		st.ActiveIncidents++
	}
	return st, nil
}

// ReloadGraph replaces the network with the graph at path. The new graph is
// published together with its risk table.
func (e *Engine) ReloadGraph(ctx context.Context, path string) error {
	g, err := graph.LoadFile(ctx, path)
	if err != nil {
		return err
	}
	if err := e.agg.Load(ctx, g, e.clock()); err != nil {
		return fmt.Errorf("reload %s: %w", path, err)
	}
	e.logger.Info("graph reloaded", "path", path, "nodes", g.NumNodes, "edges", g.NumEdges)
	return nil
}

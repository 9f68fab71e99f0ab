package risk

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"aegis_router/pkg/geo"
	"aegis_router/pkg/graph"
	"aegis_router/pkg/incident"
	"aegis_router/pkg/metrics"
)

// Source lists the active incidents as of a point in time, in ReportedAt
// order. *incident.Store satisfies it.
type Source interface {
	ListActive(ctx context.Context, asOf time.Time) iter.Seq2[incident.Incident, error]
}

// Aggregator computes edge risk from the incident source and publishes it to
// the graph store. All recomputations are serialized: each one takes its
// incident snapshot while holding the lock, so the last publish always
// reflects every incident reported before it started.
type Aggregator struct {
	cfg    Config
	graphs *graph.Store
	src    Source
	logger *slog.Logger

	mu sync.Mutex
}

// NewAggregator creates an aggregator. cfg is expected to have passed
// Validate.
func NewAggregator(graphs *graph.Store, src Source, cfg Config, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{cfg: cfg, graphs: graphs, src: src, logger: logger}
}

// Config returns the model parameters.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// OnIncidentReported recomputes every edge within the influence radius of
// inc and publishes the new values in one atomic step. It returns the number
// of edges updated. On error no risk value changes.
func (a *Aggregator) OnIncidentReported(ctx context.Context, inc incident.Incident, asOf time.Time) (int, error) {
	start := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	g := a.graphs.Graph()
	var affected []uint32
	for _, e := range g.EdgesNear(inc.Coord, a.cfg.Radius*boxMargin) {
		if a.distance(g, e, inc.Coord) <= a.cfg.Radius {
			affected = append(affected, e)
		}
	}
	if len(affected) == 0 {
		return 0, nil
	}

	active, err := a.snapshot(ctx, asOf)
	if err != nil {
		return 0, err
	}
	idx := newIncidentIndex(active)
	updates := make(map[uint32]float64, len(affected))
	var buf []int
	for _, e := range affected {
		updates[e], buf = a.edgeRisk(g, e, idx, asOf, buf)
	}
	if err := a.graphs.UpdateRisks(g, updates); err != nil {
		return 0, fmt.Errorf("publish risk for incident %s: %w", inc.ID, err)
	}

	metrics.RiskRecompute.WithLabelValues("incident").Observe(time.Since(start).Seconds())
	metrics.RiskEdgesUpdated.Add(float64(len(updates)))
	a.logger.Debug("risk updated for incident", "incident", inc.ID, "edges", len(updates))
	return len(updates), nil
}

// RecomputeAll rebuilds the full risk table from the active incidents at
// asOf. Used at startup and to refresh decay.
func (a *Aggregator) RecomputeAll(ctx context.Context, asOf time.Time) error {
	start := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	g := a.graphs.Graph()
	active, err := a.snapshot(ctx, asOf)
	if err != nil {
		return err
	}
	values, err := a.compute(ctx, g, active, asOf)
	if err != nil {
		return err
	}
	if err := a.graphs.ReplaceRisk(g, values); err != nil {
		return fmt.Errorf("publish risk table: %w", err)
	}

	elapsed := time.Since(start)
	metrics.RiskRecompute.WithLabelValues("full").Observe(elapsed.Seconds())
	metrics.RiskEdgesUpdated.Add(float64(len(values)))
	a.logger.Info("risk table recomputed", "edges", len(values), "incidents", len(active), "elapsed", elapsed)
	return nil
}

// Load computes the risk of every edge of g from the active incidents at asOf
// and then installs g together with that table, so no route is ever planned
// on g without its risk. On error the current graph stays in place.
func (a *Aggregator) Load(ctx context.Context, g *graph.Graph, asOf time.Time) error {
	start := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	active, err := a.snapshot(ctx, asOf)
	if err != nil {
		return err
	}
	values, err := a.compute(ctx, g, active, asOf)
	if err != nil {
		return err
	}
	if err := a.graphs.LoadWithRisk(g, values); err != nil {
		return fmt.Errorf("publish graph: %w", err)
	}

	metrics.RiskRecompute.WithLabelValues("load").Observe(time.Since(start).Seconds())
	metrics.RiskEdgesUpdated.Add(float64(len(values)))
	return nil
}

func (a *Aggregator) compute(ctx context.Context, g *graph.Graph, active []incident.Incident, asOf time.Time) ([]float64, error) {
	values := make([]float64, g.NumEdges)
	if len(active) == 0 {
		return values, nil
	}
	idx := newIncidentIndex(active)
	var buf []int
	for e := uint32(0); e < g.NumEdges; e++ {
		if e%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		values[e], buf = a.edgeRisk(g, e, idx, asOf, buf)
	}
	return values, nil
}

// PointScore is the risk observed at a single coordinate.
type PointScore struct {
	Risk      float64
	Level     Level
	Incidents int
}

// PointRisk sums the contributions of active incidents within the influence
// radius of c.
func (a *Aggregator) PointRisk(ctx context.Context, c geo.Coordinate, asOf time.Time) (PointScore, error) {
	if err := c.Validate(); err != nil {
		return PointScore{}, err
	}
	var total float64
	var n int
	for inc, err := range a.src.ListActive(ctx, asOf) {
		if err != nil {
			return PointScore{}, fmt.Errorf("list incidents: %w", err)
		}
		if c.DistanceTo(inc.Coord) > a.cfg.Radius {
			continue
		}
		total += a.cfg.Contribution(inc, asOf)
		n++
	}
	if !valid(total) {
		total = a.reject(total, "point", c.String())
	}
	return PointScore{Risk: total, Level: a.cfg.Point.Classify(total), Incidents: n}, nil
}

func (a *Aggregator) snapshot(ctx context.Context, asOf time.Time) ([]incident.Incident, error) {
	var active []incident.Incident
	for inc, err := range a.src.ListActive(ctx, asOf) {
		if err != nil {
			return nil, fmt.Errorf("list incidents: %w", err)
		}
		active = append(active, inc)
	}
	return active, nil
}

// edgeRisk sums, in ReportedAt order, the contributions of indexed incidents
// that affect edge e.
func (a *Aggregator) edgeRisk(g *graph.Graph, e uint32, idx *incidentIndex, asOf time.Time, buf []int) (float64, []int) {
	buf = idx.nearEdge(g, e, a.cfg.Radius, buf)
	var total float64
	for _, i := range buf {
		inc := idx.active[i]
		if a.distance(g, e, inc.Coord) <= a.cfg.Radius {
			total += a.cfg.Contribution(inc, asOf)
		}
	}
	if !valid(total) {
		total = a.reject(total, "edge", e)
	}
	return total, buf
}

// distance measures c against edge e according to the proximity mode.
func (a *Aggregator) distance(g *graph.Graph, e uint32, c geo.Coordinate) float64 {
	if a.cfg.Proximity == ProximityMidpoint {
		return c.DistanceTo(g.EdgeMidpoint(e))
	}
	u, v := g.Coord(g.Tail[e]), g.Coord(g.Head[e])
	if a.cfg.Proximity == ProximityEndpoint {
		return math.Min(c.DistanceTo(u), c.DistanceTo(v))
	}
	d, _ := geo.PointToSegmentDist(c.Lat, c.Lng, u.Lat, u.Lng, v.Lat, v.Lng)
	return d
}

func valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// reject records an invalid value and returns the clamped replacement.
func (a *Aggregator) reject(v float64, args ...any) float64 {
	metrics.DataQualityErrors.Inc()
	a.logger.Warn("risk value clamped to zero", append([]any{"err", ErrDataQuality, "value", strconv.FormatFloat(v, 'g', -1, 64)}, args...)...)
	return 0
}

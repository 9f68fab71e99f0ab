package risk

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis_router/pkg/geo"
	"aegis_router/pkg/graph"
	"aegis_router/pkg/incident"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// lineGraph is A - B - C along a parallel, about 540 m per segment.
func lineGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.Build(&graph.Network{
		Nodes: []graph.NetworkNode{
			{Key: "A", Name: "A", Coord: geo.Coordinate{Lat: 12.97, Lng: 77.600}},
			{Key: "B", Name: "B", Coord: geo.Coordinate{Lat: 12.97, Lng: 77.605}},
			{Key: "C", Name: "C", Coord: geo.Coordinate{Lat: 12.97, Lng: 77.610}},
		},
		Segments: []graph.Segment{
			{From: "A", To: "B"},
			{From: "B", To: "C"},
		},
	})
	require.NoError(t, err)
	return g
}

type fixture struct {
	graphs    *graph.Store
	incidents *incident.Store
	clock     *testClock
	agg       *Aggregator
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clock := &testClock{now: t0}
	incs, err := incident.Open(context.Background(), incident.NewMemoryLog(), incident.Options{
		Retention: cfg.Retention,
		Clock:     clock.Now,
		Logger:    discardLogger(),
	})
	require.NoError(t, err)
	graphs := graph.NewStore(lineGraph(t))
	return &fixture{
		graphs:    graphs,
		incidents: incs,
		clock:     clock,
		agg:       NewAggregator(graphs, incs, cfg, discardLogger()),
	}
}

func (f *fixture) report(t *testing.T, c geo.Coordinate, sev incident.Severity) incident.Incident {
	t.Helper()
	inc, err := f.incidents.Report(context.Background(), c, sev, "")
	require.NoError(t, err)
	return inc
}

func (f *fixture) edge(from, to uint32) uint32 {
	return f.graphs.Graph().FindEdge(from, to)
}

var (
	midAB = geo.Coordinate{Lat: 12.97, Lng: 77.6025}
	midBC = geo.Coordinate{Lat: 12.97, Lng: 77.6075}
)

func TestOnIncidentReportedIsLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())

	inc := f.report(t, midAB, incident.SeverityHigh)
	n, err := f.agg.OnIncidentReported(ctx, inc, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n, "both directions of A-B")

	snap := f.graphs.Snapshot()
	assert.Equal(t, 8.0, snap.Risk(f.edge(0, 1)))
	assert.Equal(t, 8.0, snap.Risk(f.edge(1, 0)))
	assert.Zero(t, snap.Risk(f.edge(1, 2)))
	assert.Zero(t, snap.Risk(f.edge(2, 1)))

	// Far away: nothing to update, nothing published.
	v := snap.Version
	far := f.report(t, geo.Coordinate{Lat: 13.1, Lng: 77.7}, incident.SeverityHigh)
	n, err = f.agg.OnIncidentReported(ctx, far, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, v, f.graphs.Snapshot().Version)
}

func TestOnIncidentReportedAccumulates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())

	for _, sev := range []incident.Severity{incident.SeverityLow, incident.SeverityMedium} {
		inc := f.report(t, midBC, sev)
		_, err := f.agg.OnIncidentReported(ctx, inc, f.clock.Now())
		require.NoError(t, err)
	}
	assert.Equal(t, 4.0, f.graphs.Snapshot().Risk(f.edge(1, 2)))
}

func TestRecomputeAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())

	coords := []geo.Coordinate{midAB, midBC, {Lat: 12.9701, Lng: 77.6026}, {Lat: 12.9699, Lng: 77.6074}}
	sevs := []incident.Severity{incident.SeverityHigh, incident.SeverityLow, incident.SeverityMedium, incident.SeverityHigh}
	for i, c := range coords {
		f.clock.Set(t0.Add(time.Duration(i) * 37 * time.Hour))
		inc := f.report(t, c, sevs[i])
		_, err := f.agg.OnIncidentReported(ctx, inc, t0.Add(5*day))
		require.NoError(t, err)
	}
	incremental := f.graphs.Snapshot().RiskValues()

	asOf := t0.Add(5 * day)
	require.NoError(t, f.agg.RecomputeAll(ctx, asOf))
	first := f.graphs.Snapshot().RiskValues()
	require.NoError(t, f.agg.RecomputeAll(ctx, asOf))
	second := f.graphs.Snapshot().RiskValues()

	assert.Equal(t, first, second)
	assert.Equal(t, first, incremental, "incremental and full recompute agree")
	for e, v := range first {
		assert.Greater(t, v, 0.0, "edge %d", e)
	}
}

func TestRecomputeAllExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	f.report(t, midAB, incident.SeverityHigh)

	require.NoError(t, f.agg.RecomputeAll(ctx, t0.Add(15*day)))
	assert.InDelta(t, 4.0, f.graphs.Snapshot().Risk(f.edge(0, 1)), 1e-9)

	require.NoError(t, f.agg.RecomputeAll(ctx, t0.Add(31*day)))
	for e, v := range f.graphs.Snapshot().RiskValues() {
		assert.Zero(t, v, "edge %d", e)
	}
}

func TestProximityModes(t *testing.T) {
	ctx := context.Background()
	// 150 m north of B: outside 100 m of any midpoint, within 150 m of B.
	dLat, _ := geo.MetersToDegrees(12.97, 150)
	nearB := geo.Coordinate{Lat: 12.97 + dLat, Lng: 77.605}

	tests := []struct {
		mode     Proximity
		radius   float64
		affected bool
	}{
		{ProximityMidpoint, 200, false},
		{ProximityEndpoint, 200, true},
		{ProximitySegment, 200, true},
		{ProximitySegment, 100, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Proximity = tt.mode
			cfg.Radius = tt.radius
			f := newFixture(t, cfg)
			inc := f.report(t, nearB, incident.SeverityLow)
			n, err := f.agg.OnIncidentReported(ctx, inc, f.clock.Now())
			require.NoError(t, err)
			if tt.affected {
				assert.Equal(t, 4, n)
			} else {
				assert.Zero(t, n)
			}
		})
	}
}

type failingSource struct{}

func (failingSource) ListActive(context.Context, time.Time) iter.Seq2[incident.Incident, error] {
	return func(yield func(incident.Incident, error) bool) {
		yield(incident.Incident{}, errors.New("log unavailable"))
	}
}

func TestListingErrorLeavesRiskUntouched(t *testing.T) {
	ctx := context.Background()
	graphs := graph.NewStore(lineGraph(t))
	require.NoError(t, graphs.UpdateRisk(0, 3))
	before := graphs.Snapshot()

	agg := NewAggregator(graphs, failingSource{}, DefaultConfig(), discardLogger())
	require.Error(t, agg.RecomputeAll(ctx, t0))
	_, err := agg.OnIncidentReported(ctx, incident.Incident{ID: "x", Coord: midAB, Severity: incident.SeverityHigh, ReportedAt: t0}, t0)
	require.Error(t, err)
	_, err = agg.PointRisk(ctx, midAB, t0)
	require.Error(t, err)

	assert.Same(t, before, graphs.Snapshot())
}

func TestInvalidValuesAreClamped(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Weights = [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	f := newFixture(t, cfg)
	inc := f.report(t, midAB, incident.SeverityLow)

	n, err := f.agg.OnIncidentReported(ctx, inc, f.clock.Now())
	require.NoError(t, err, "data quality problems are not surfaced")
	assert.Equal(t, 2, n)
	assert.Zero(t, f.graphs.Snapshot().Risk(f.edge(0, 1)))

	score, err := f.agg.PointRisk(ctx, midAB, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, score.Risk)
}

func TestPointRisk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())

	score, err := f.agg.PointRisk(ctx, midAB, t0)
	require.NoError(t, err)
	assert.Equal(t, PointScore{Risk: 0, Level: LevelLow}, score)

	f.report(t, midAB, incident.SeverityHigh)
	f.report(t, midBC, incident.SeverityHigh)
	score, err = f.agg.PointRisk(ctx, midAB, t0)
	require.NoError(t, err)
	assert.Equal(t, PointScore{Risk: 8, Level: LevelHigh, Incidents: 1}, score)

	_, err = f.agg.PointRisk(ctx, geo.Coordinate{Lat: 100}, t0)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)
}

func TestStaleGraphRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	g := f.graphs.Graph()
	values := f.graphs.Snapshot().RiskValues()

	f.graphs.Load(lineGraph(t))
	assert.ErrorIs(t, f.graphs.ReplaceRisk(g, values), graph.ErrStaleGraph)
	require.NoError(t, f.agg.RecomputeAll(ctx, t0), "recompute uses the current graph")
}

func TestLoadPublishesGraphWithRisk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	f.report(t, midAB, incident.SeverityHigh)

	g := lineGraph(t)
	require.NoError(t, f.agg.Load(ctx, g, t0))
	snap := f.graphs.Snapshot()
	require.Same(t, g, snap.Graph)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, 8.0, snap.Risk(g.FindEdge(0, 1)), "incident applies to the new graph before it is served")
	assert.Equal(t, 0.0, snap.Risk(g.FindEdge(1, 2)))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	next := lineGraph(t)
	assert.ErrorIs(t, f.agg.Load(cctx, next, t0), context.Canceled)
	assert.Same(t, g, f.graphs.Graph(), "failed load keeps the current graph")
}

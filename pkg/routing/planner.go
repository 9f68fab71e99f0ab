package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"aegis_router/pkg/geo"
	"aegis_router/pkg/graph"
	"aegis_router/pkg/metrics"
	"aegis_router/pkg/risk"
)

var (
	// ErrNoPath is returned when no path connects the snapped nodes.
	ErrNoPath = errors.New("no path between locations")
	// ErrUnreachable is returned when a location is too far from the network.
	ErrUnreachable = errors.New("location unreachable")
	// ErrTimeout is returned when a search exceeds its time budget.
	ErrTimeout = errors.New("route search timed out")
	// ErrInvalidWeighting is returned for negative or non-finite weights.
	ErrInvalidWeighting = errors.New("invalid weighting")
)

// Weighting blends distance and risk: cost(e) = Alpha*base(e) + Beta*risk(e).
// Beta = 0 is a pure shortest-distance search.
type Weighting struct {
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
}

// Validate rejects negative or non-finite weights and the all-zero weighting.
func (w Weighting) Validate() error {
	for _, v := range [2]float64{w.Alpha, w.Beta} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: alpha=%v beta=%v", ErrInvalidWeighting, w.Alpha, w.Beta)
		}
	}
	if w.Alpha == 0 && w.Beta == 0 {
		return fmt.Errorf("%w: alpha and beta are both zero", ErrInvalidWeighting)
	}
	return nil
}

// Config holds planner settings.
type Config struct {
	// MaxSnapDistance is how far, in meters, a query point may be from the
	// nearest node.
	MaxSnapDistance float64
	// Timeout bounds a single search. Zero means no limit beyond the
	// caller's context.
	Timeout time.Duration
	// Thresholds classify a route's total risk cost.
	Thresholds risk.Thresholds
	// Weighting is used when a request does not specify one.
	Weighting Weighting
	// AlternativePenalty is the factor by which edges of earlier routes
	// become more expensive when searching for alternatives.
	AlternativePenalty float64
	// MaxAlternatives caps the number of routes Alternatives returns.
	MaxAlternatives int
}

// DefaultConfig returns the stock planner settings. One unit of risk costs
// as much as a 250 m detour.
func DefaultConfig() Config {
	return Config{
		MaxSnapDistance:    500,
		Timeout:            2 * time.Second,
		Thresholds:         risk.Thresholds{Medium: 3, High: 10},
		Weighting:          Weighting{Alpha: 1, Beta: 250},
		AlternativePenalty: 2,
		MaxAlternatives:    5,
	}
}

// Route is a planned walk through one graph snapshot.
type Route struct {
	Path     []geo.Coordinate
	Nodes    []uint32
	Edges    []uint32
	BaseCost float64 // meters
	RiskCost float64
	Cost     float64 // blended search cost
	Risk     risk.Level
	// Version is the snapshot version the route was planned against.
	Version uint64
}

// Planner answers route queries against the current graph snapshot.
type Planner struct {
	graphs *graph.Store
	cfg    Config
	states sync.Pool
}

// NewPlanner creates a planner reading from graphs.
func NewPlanner(graphs *graph.Store, cfg Config) *Planner {
	return &Planner{graphs: graphs, cfg: cfg}
}

// Config returns the planner settings.
func (p *Planner) Config() Config {
	return p.cfg
}

// Plan snaps start and end to the network and returns the cheapest route
// under w.
func (p *Planner) Plan(ctx context.Context, start, end geo.Coordinate, w Weighting) (*Route, error) {
	snap := p.graphs.Snapshot()
	src, dst, err := p.snapBoth(snap.Graph, start, end)
	if err != nil {
		return nil, err
	}
	return p.plan(ctx, snap, src, dst, w)
}

// PlanNodes plans between two node IDs of the current graph.
func (p *Planner) PlanNodes(ctx context.Context, src, dst uint32, w Weighting) (*Route, error) {
	snap := p.graphs.Snapshot()
	for _, n := range [2]uint32{src, dst} {
		if n >= snap.Graph.NumNodes {
			return nil, fmt.Errorf("%w: %d", graph.ErrUnknownNode, n)
		}
	}
	return p.plan(ctx, snap, src, dst, w)
}

func (p *Planner) snapBoth(g *graph.Graph, start, end geo.Coordinate) (uint32, uint32, error) {
	s, err := snap(g, start, p.cfg.MaxSnapDistance)
	if err != nil {
		return 0, 0, fmt.Errorf("start: %w", err)
	}
	e, err := snap(g, end, p.cfg.MaxSnapDistance)
	if err != nil {
		return 0, 0, fmt.Errorf("end: %w", err)
	}
	return s.Node, e.Node, nil
}

func (p *Planner) plan(ctx context.Context, snap *graph.Snapshot, src, dst uint32, w Weighting) (*Route, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if src == dst {
		return p.buildRoute(snap, src, nil, w), nil
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	res, err := p.search(ctx, snap, src, dst, blended(snap, w, nil, 0))
	if err != nil {
		return nil, err
	}
	if !res.Found {
		return nil, fmt.Errorf("%w: node %d to node %d", ErrNoPath, src, dst)
	}
	return p.buildRoute(snap, src, res.Edges, w), nil
}

func (p *Planner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, p.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// search runs one Dijkstra with pooled state and maps context errors.
func (p *Planner) search(ctx context.Context, snap *graph.Snapshot, src, dst uint32, cost costFunc) (searchResult, error) {
	qs := p.state(snap.Graph.NumNodes)
	defer func() {
		qs.Reset()
		p.states.Put(qs)
	}()

	res, err := shortestPath(ctx, qs, snap.Graph, src, dst, cost)
	metrics.RouteSettled.Observe(float64(res.Settled))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return res, fmt.Errorf("%w after %d settled nodes", ErrTimeout, res.Settled)
		}
		return res, err
	}
	return res, nil
}

func (p *Planner) state(n uint32) *QueryState {
	if qs, ok := p.states.Get().(*QueryState); ok && uint32(len(qs.Dist)) == n {
		return qs
	}
	return NewQueryState(n)
}

// blended returns the search cost under w. Edges in penalized cost factor
// times more.
func blended(snap *graph.Snapshot, w Weighting, penalized map[uint32]int, factor float64) costFunc {
	g := snap.Graph
	return func(e uint32) float64 {
		c := w.Alpha*g.BaseCost[e] + w.Beta*snap.Risk(e)
		if n := penalized[e]; n > 0 {
			c *= math.Pow(factor, float64(n))
		}
		return c
	}
}

// buildRoute assembles the route for the edge walk starting at src, using
// unpenalized costs.
func (p *Planner) buildRoute(snap *graph.Snapshot, src uint32, edges []uint32, w Weighting) *Route {
	g := snap.Graph
	r := &Route{
		Path:    make([]geo.Coordinate, 0, len(edges)+1),
		Nodes:   make([]uint32, 0, len(edges)+1),
		Edges:   edges,
		Version: snap.Version,
	}
	r.Nodes = append(r.Nodes, src)
	r.Path = append(r.Path, g.Coord(src))
	for _, e := range edges {
		v := g.Head[e]
		r.Nodes = append(r.Nodes, v)
		r.Path = append(r.Path, g.Coord(v))
		r.BaseCost += g.BaseCost[e]
		r.RiskCost += snap.Risk(e)
	}
	r.Cost = w.Alpha*r.BaseCost + w.Beta*r.RiskCost
	r.Risk = p.cfg.Thresholds.Classify(r.RiskCost)
	return r
}

// String summarizes r for logs.
func (r *Route) String() string {
	return fmt.Sprintf("route{nodes=%d base=%.1fm risk=%.2f level=%s}", len(r.Nodes), r.BaseCost, r.RiskCost, r.Risk)
}

package graph

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

var (
	// ErrInvalidRisk is returned when a risk value is negative or not finite.
	ErrInvalidRisk = errors.New("invalid risk value")
	// ErrStaleGraph is returned when a risk update was computed against a
	// graph that has since been replaced.
	ErrStaleGraph = errors.New("graph was reloaded")
)

// Snapshot is an immutable view of the graph and its risk costs. A route
// search that holds one Snapshot sees the same costs for every edge.
type Snapshot struct {
	Graph *Graph
	// Generation counts graph loads. The first graph is generation 0.
	Generation uint64
	// Version advances on every publish, graph loads included.
	Version uint64
	risk    []float64
}

// Risk returns the risk cost of edge e.
func (s *Snapshot) Risk(e uint32) float64 {
	return s.risk[e]
}

// RiskValues returns a copy of every edge's risk cost.
func (s *Snapshot) RiskValues() []float64 {
	out := make([]float64, len(s.risk))
	copy(out, s.risk)
	return out
}

// Edge returns the read view of edge e.
func (s *Snapshot) Edge(e uint32) Edge {
	g := s.Graph
	return Edge{ID: e, From: g.Tail[e], To: g.Head[e], BaseCost: g.BaseCost[e], Risk: s.risk[e]}
}

// Store holds the current graph and publishes risk updates by copy-on-write.
// Readers are lock-free; writers are serialized and replace the whole risk
// table atomically, so no reader ever sees a partial update.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[Snapshot]
}

// NewStore creates a store serving g with zero risk on every edge.
func NewStore(g *Graph) *Store {
	s := &Store{}
	s.Load(g)
	return s
}

// Load replaces the graph with zero risk on every edge.
func (s *Store) Load(g *Graph) {
	s.publishGraph(g, make([]float64, g.NumEdges))
}

// LoadWithRisk replaces the graph and its risk table in one step. Nothing
// changes if values does not cover every edge of g or holds an invalid value.
func (s *Store) LoadWithRisk(g *Graph, values []float64) error {
	risk, err := checkTable(g, values)
	if err != nil {
		return err
	}
	s.publishGraph(g, risk)
	return nil
}

func (s *Store) publishGraph(g *Graph, risk []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := &Snapshot{Graph: g, risk: risk}
	if old := s.cur.Load(); old != nil {
		next.Generation = old.Generation + 1
		next.Version = old.Version + 1
	}
	s.cur.Store(next)
}

// Snapshot returns the current immutable view.
func (s *Store) Snapshot() *Snapshot {
	return s.cur.Load()
}

// Graph returns the current graph.
func (s *Store) Graph() *Graph {
	return s.cur.Load().Graph
}

// Edges returns the outgoing edges of node with their current risk.
func (s *Store) Edges(node uint32) ([]Edge, error) {
	snap := s.cur.Load()
	if node >= snap.Graph.NumNodes {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, node)
	}
	start, end := snap.Graph.EdgesFrom(node)
	edges := make([]Edge, 0, end-start)
	for e := start; e < end; e++ {
		edges = append(edges, snap.Edge(e))
	}
	return edges, nil
}

// UpdateRisk sets the risk cost of a single edge of the current graph.
func (s *Store) UpdateRisk(edge uint32, value float64) error {
	return s.UpdateRisks(s.Graph(), map[uint32]float64{edge: value})
}

// UpdateRisks publishes new risk values for the given edges of g in one
// atomic step. Nothing is written if any value is invalid or g is no longer
// the current graph.
func (s *Store) UpdateRisks(g *Graph, updates map[uint32]float64) error {
	for e, v := range updates {
		if e >= g.NumEdges {
			return fmt.Errorf("%w: %d", ErrUnknownEdge, e)
		}
		if err := checkRisk(v); err != nil {
			return fmt.Errorf("edge %d: %w", e, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cur.Load()
	if old.Graph != g {
		return ErrStaleGraph
	}
	risk := make([]float64, len(old.risk))
	copy(risk, old.risk)
	for e, v := range updates {
		risk[e] = v
	}
	s.cur.Store(&Snapshot{Graph: g, Generation: old.Generation, Version: old.Version + 1, risk: risk})
	return nil
}

// ReplaceRisk publishes a complete risk table for g.
func (s *Store) ReplaceRisk(g *Graph, values []float64) error {
	risk, err := checkTable(g, values)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cur.Load()
	if old.Graph != g {
		return ErrStaleGraph
	}
	s.cur.Store(&Snapshot{Graph: g, Generation: old.Generation, Version: old.Version + 1, risk: risk})
	return nil
}

// checkTable validates a full risk table for g and returns a private copy.
func checkTable(g *Graph, values []float64) ([]float64, error) {
	if uint32(len(values)) != g.NumEdges {
		return nil, fmt.Errorf("%w: got %d values for %d edges", ErrInvalidRisk, len(values), g.NumEdges)
	}
	for e, v := range values {
		if err := checkRisk(v); err != nil {
			return nil, fmt.Errorf("edge %d: %w", e, err)
		}
	}
	risk := make([]float64, len(values))
	copy(risk, values)
	return risk, nil
}

func checkRisk(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRisk, v)
	}
	return nil
}

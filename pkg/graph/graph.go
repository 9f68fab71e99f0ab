package graph

import (
	"errors"

	"github.com/tidwall/rtree"

	"aegis_router/pkg/geo"
)

// NoNode is the sentinel for "no node" in NodeID-typed fields.
const NoNode = ^uint32(0)

var (
	// ErrMalformedGraph is returned when a network description cannot be
	// turned into a consistent graph.
	ErrMalformedGraph = errors.New("malformed graph")
	// ErrUnknownNode is returned for node IDs outside the loaded graph.
	ErrUnknownNode = errors.New("unknown node")
	// ErrUnknownEdge is returned for edge IDs outside the loaded graph.
	ErrUnknownEdge = errors.New("unknown edge")
)

// Graph is an immutable directed graph in CSR (Compressed Sparse Row) format.
// Node and edge IDs are dense indices into the arrays below.
type Graph struct {
	NumNodes uint32
	NumEdges uint32
	FirstOut []uint32  // len: NumNodes + 1; FirstOut[i]..FirstOut[i+1] are edges from node i
	Head     []uint32  // len: NumEdges; target node for each edge
	Tail     []uint32  // len: NumEdges; source node for each edge
	BaseCost []float64 // len: NumEdges; length in meters
	NodeLat  []float64 // len: NumNodes
	NodeLon  []float64 // len: NumNodes
	NodeName []string  // len: NumNodes; empty for unnamed intersections

	nodeIndex rtree.RTreeG[uint32]
	edgeIndex rtree.RTreeG[uint32]
	names     map[string]uint32
}

// Edge is a read view of a single directed edge.
type Edge struct {
	ID       uint32
	From     uint32
	To       uint32
	BaseCost float64
	Risk     float64
}

// EdgesFrom returns the range of edge indices for edges originating from node u.
func (g *Graph) EdgesFrom(u uint32) (start, end uint32) {
	return g.FirstOut[u], g.FirstOut[u+1]
}

// Coord returns the coordinate of node u.
func (g *Graph) Coord(u uint32) geo.Coordinate {
	return geo.Coordinate{Lat: g.NodeLat[u], Lng: g.NodeLon[u]}
}

// EdgeMidpoint returns the midpoint of edge e.
func (g *Graph) EdgeMidpoint(e uint32) geo.Coordinate {
	return geo.Midpoint(g.Coord(g.Tail[e]), g.Coord(g.Head[e]))
}

// FindEdge returns the cheapest edge from source to target, or NoNode.
func (g *Graph) FindEdge(source, target uint32) uint32 {
	best := NoNode
	start, end := g.EdgesFrom(source)
	for e := start; e < end; e++ {
		if g.Head[e] != target {
			continue
		}
		if best == NoNode || g.BaseCost[e] < g.BaseCost[best] {
			best = e
		}
	}
	return best
}

// NodeByName looks up a named node. Matching ignores case and surrounding
// whitespace.
func (g *Graph) NodeByName(name string) (uint32, bool) {
	id, ok := g.names[normalizeName(name)]
	return id, ok
}

// Names returns every named node keyed by its display name.
func (g *Graph) Names() map[string]uint32 {
	out := make(map[string]uint32, len(g.names))
	for i, n := range g.NodeName {
		if n != "" {
			out[n] = uint32(i)
		}
	}
	return out
}

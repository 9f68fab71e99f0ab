package graph

import (
	"fmt"
	"math"
	"sort"

	"aegis_router/pkg/geo"
)

// Network is a source-agnostic description of a path network, as read from a
// waypoint file, GeoJSON or OpenStreetMap data.
type Network struct {
	Nodes    []NetworkNode
	Segments []Segment
}

// NetworkNode is a waypoint or intersection. Key must be unique within the
// network; Name is optional and used for location lookup.
type NetworkNode struct {
	Key   string
	Name  string
	Coord geo.Coordinate
}

// Segment joins two nodes by key. A zero Cost is replaced by the great-circle
// length. Two-way segments produce one directed edge per direction.
type Segment struct {
	From   string
	To     string
	Cost   float64
	OneWay bool
}

// MaxNameLen is the longest node name, in bytes, a graph may carry.
const MaxNameLen = 1 << 12

// Build validates a Network and creates the CSR graph with its indexes.
func Build(n *Network) (*Graph, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil network", ErrMalformedGraph)
	}

	// Step 1: Assign dense node indices in declaration order.
	nodeSet := make(map[string]uint32, len(n.Nodes))
	for i, node := range n.Nodes {
		if node.Key == "" {
			return nil, fmt.Errorf("%w: node %d has empty key", ErrMalformedGraph, i)
		}
		if _, dup := nodeSet[node.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate node key %q", ErrMalformedGraph, node.Key)
		}
		if err := node.Coord.Validate(); err != nil {
			return nil, fmt.Errorf("%w: node %q: %v", ErrMalformedGraph, node.Key, err)
		}
		if len(node.Name) > MaxNameLen {
			return nil, fmt.Errorf("%w: node %q name is %d bytes, limit %d", ErrMalformedGraph, node.Key, len(node.Name), MaxNameLen)
		}
		nodeSet[node.Key] = uint32(i)
	}
	numNodes := uint32(len(n.Nodes))

	// Step 2: Resolve segments into directed edges.
	type compactEdge struct {
		from, to uint32
		cost     float64
	}
	compact := make([]compactEdge, 0, 2*len(n.Segments))
	for i, s := range n.Segments {
		from, ok := nodeSet[s.From]
		if !ok {
			return nil, fmt.Errorf("%w: segment %d references unknown node %q", ErrMalformedGraph, i, s.From)
		}
		to, ok := nodeSet[s.To]
		if !ok {
			return nil, fmt.Errorf("%w: segment %d references unknown node %q", ErrMalformedGraph, i, s.To)
		}
		cost := s.Cost
		if !validCost(cost) {
			return nil, fmt.Errorf("%w: segment %d has invalid cost %v", ErrMalformedGraph, i, s.Cost)
		}
		if cost == 0 {
			cost = n.Nodes[from].Coord.DistanceTo(n.Nodes[to].Coord)
		}
		compact = append(compact, compactEdge{from: from, to: to, cost: cost})
		if !s.OneWay {
			compact = append(compact, compactEdge{from: to, to: from, cost: cost})
		}
	}

	// Step 3: Sort edges by source node, then target, for stable edge IDs.
	sort.SliceStable(compact, func(i, j int) bool {
		if compact[i].from != compact[j].from {
			return compact[i].from < compact[j].from
		}
		return compact[i].to < compact[j].to
	})

	// Step 4: Build CSR arrays.
	numEdges := uint32(len(compact))
	g := &Graph{
		NumNodes: numNodes,
		NumEdges: numEdges,
		FirstOut: make([]uint32, numNodes+1),
		Head:     make([]uint32, numEdges),
		Tail:     make([]uint32, numEdges),
		BaseCost: make([]float64, numEdges),
		NodeLat:  make([]float64, numNodes),
		NodeLon:  make([]float64, numNodes),
		NodeName: make([]string, numNodes),
	}
	for i, e := range compact {
		g.Head[i] = e.to
		g.Tail[i] = e.from
		g.BaseCost[i] = e.cost
		g.FirstOut[e.from+1]++
	}
	for i := uint32(1); i <= numNodes; i++ {
		g.FirstOut[i] += g.FirstOut[i-1]
	}

	// Step 5: Populate node data.
	for i, node := range n.Nodes {
		g.NodeLat[i] = node.Coord.Lat
		g.NodeLon[i] = node.Coord.Lng
		g.NodeName[i] = node.Name
	}

	g.buildIndexes()
	return g, nil
}

// validCost reports whether c is a usable edge cost: finite and not negative.
func validCost(c float64) bool {
	return !math.IsNaN(c) && !math.IsInf(c, 0) && c >= 0
}

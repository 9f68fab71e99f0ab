package routing

import (
	"fmt"

	"aegis_router/pkg/geo"
	"aegis_router/pkg/graph"
)

// SnapResult is a query point matched to a graph node.
type SnapResult struct {
	Node uint32
	Dist float64 // meters from the query point to the node
}

// snap finds the node nearest to c within maxDist meters.
func snap(g *graph.Graph, c geo.Coordinate, maxDist float64) (SnapResult, error) {
	if err := c.Validate(); err != nil {
		return SnapResult{}, err
	}
	node, dist, ok := g.Nearest(c, maxDist)
	if !ok {
		return SnapResult{}, fmt.Errorf("%w: no node within %.0f m of %s", ErrUnreachable, maxDist, c)
	}
	return SnapResult{Node: node, Dist: dist}, nil
}

package graph

import (
	"math"
	"slices"
	"strings"

	"aegis_router/pkg/geo"
)

// buildIndexes populates the spatial indexes and the name table. Called once
// by every constructor before the graph is shared.
func (g *Graph) buildIndexes() {
	g.names = make(map[string]uint32)
	for u := uint32(0); u < g.NumNodes; u++ {
		pt := [2]float64{g.NodeLat[u], g.NodeLon[u]}
		g.nodeIndex.Insert(pt, pt, u)
		if name := normalizeName(g.NodeName[u]); name != "" {
			if _, dup := g.names[name]; !dup {
				g.names[name] = u
			}
		}
	}
	for e := uint32(0); e < g.NumEdges; e++ {
		u, v := g.Tail[e], g.Head[e]
		minPt := [2]float64{math.Min(g.NodeLat[u], g.NodeLat[v]), math.Min(g.NodeLon[u], g.NodeLon[v])}
		maxPt := [2]float64{math.Max(g.NodeLat[u], g.NodeLat[v]), math.Max(g.NodeLon[u], g.NodeLon[v])}
		g.edgeIndex.Insert(minPt, maxPt, e)
	}
}

// Nearest returns the node closest to c within maxDist meters. Ties are
// broken by the lower node ID.
func (g *Graph) Nearest(c geo.Coordinate, maxDist float64) (node uint32, dist float64, ok bool) {
	minPt, maxPt := c.Box(maxDist)
	node, dist = NoNode, math.Inf(1)
	g.nodeIndex.Search(minPt, maxPt, func(_, _ [2]float64, u uint32) bool {
		d := geo.Haversine(c.Lat, c.Lng, g.NodeLat[u], g.NodeLon[u])
		if d < dist || (d == dist && u < node) {
			node, dist = u, d
		}
		return true
	})
	if node == NoNode || dist > maxDist {
		return NoNode, math.Inf(1), false
	}
	return node, dist, true
}

// EdgesNear returns, in ascending order, the edges whose bounding box comes
// within radius meters of c. Callers apply their own exact distance test.
func (g *Graph) EdgesNear(c geo.Coordinate, radius float64) []uint32 {
	minPt, maxPt := c.Box(radius)
	var out []uint32
	g.edgeIndex.Search(minPt, maxPt, func(_, _ [2]float64, e uint32) bool {
		out = append(out, e)
		return true
	})
	slices.Sort(out)
	return out
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

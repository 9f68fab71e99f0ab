package risk

import (
	"math"
	"slices"

	"github.com/tidwall/rtree"

	"aegis_router/pkg/geo"
	"aegis_router/pkg/graph"
	"aegis_router/pkg/incident"
)

// boxMargin widens search boxes so that the equirectangular box never cuts
// off a point the exact distance test would accept.
const boxMargin = 1.05

// incidentIndex is a point index over one active-incident snapshot. Search
// results are positions in the snapshot, so sorting them restores
// ReportedAt order.
type incidentIndex struct {
	active []incident.Incident
	tr     rtree.RTreeG[int]
}

func newIncidentIndex(active []incident.Incident) *incidentIndex {
	x := &incidentIndex{active: active}
	for i, inc := range active {
		pt := [2]float64{inc.Coord.Lat, inc.Coord.Lng}
		x.tr.Insert(pt, pt, i)
	}
	return x
}

// nearEdge returns the snapshot positions of incidents whose point falls
// inside the bounding box of edge e grown by radius.
func (x *incidentIndex) nearEdge(g *graph.Graph, e uint32, radius float64, buf []int) []int {
	a, b := g.Coord(g.Tail[e]), g.Coord(g.Head[e])
	lat := math.Max(math.Abs(a.Lat), math.Abs(b.Lat))
	dLat, dLng := geo.MetersToDegrees(lat, radius*boxMargin)
	minPt := [2]float64{math.Min(a.Lat, b.Lat) - dLat, math.Min(a.Lng, b.Lng) - dLng}
	maxPt := [2]float64{math.Max(a.Lat, b.Lat) + dLat, math.Max(a.Lng, b.Lng) + dLng}

	buf = buf[:0]
	x.tr.Search(minPt, maxPt, func(_, _ [2]float64, i int) bool {
		buf = append(buf, i)
		return true
	})
	slices.Sort(buf)
	return buf
}

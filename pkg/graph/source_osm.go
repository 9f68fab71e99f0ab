package graph

import (
	"slices"
	"strconv"

	"github.com/paulmach/osm"

	"aegis_router/pkg/geo"
	osmparser "aegis_router/pkg/osm"
)

// FromOSM converts parsed OpenStreetMap ways into a Network. Nodes are keyed
// by their OSM ID and declared in ascending ID order so that repeated
// conversions of the same extract yield the same node indices.
func FromOSM(res *osmparser.ParseResult) *Network {
	seen := make(map[osm.NodeID]struct{}, 2*len(res.Edges))
	var ids []osm.NodeID
	for _, e := range res.Edges {
		for _, id := range [2]osm.NodeID{e.FromNodeID, e.ToNodeID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	slices.Sort(ids)

	n := &Network{
		Nodes:    make([]NetworkNode, 0, len(ids)),
		Segments: make([]Segment, 0, len(res.Edges)),
	}
	for _, id := range ids {
		n.Nodes = append(n.Nodes, NetworkNode{
			Key:   osmKey(id),
			Name:  res.NodeName[id],
			Coord: geo.Coordinate{Lat: res.NodeLat[id], Lng: res.NodeLon[id]},
		})
	}
	for _, e := range res.Edges {
		if e.FromNodeID == e.ToNodeID {
			continue
		}
		n.Segments = append(n.Segments, Segment{
			From:   osmKey(e.FromNodeID),
			To:     osmKey(e.ToNodeID),
			Cost:   e.Meters,
			OneWay: e.OneWay,
		})
	}
	return n
}

func osmKey(id osm.NodeID) string {
	return strconv.FormatInt(int64(id), 10)
}

package graph

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"aegis_router/pkg/geo"
)

// ParseGeoJSON converts a FeatureCollection of LineStrings (and
// MultiLineStrings) into a Network. Every vertex becomes a node; vertices
// with identical coordinates are merged, which is how lines are joined into
// intersections. Point features with a "name" property label the vertex at
// the same position. A truthy "oneway" property makes a line one-way.
func ParseGeoJSON(data []byte) (*Network, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse geojson: %v", ErrMalformedGraph, err)
	}

	n := &Network{}
	keys := make(map[orb.Point]string)
	vertex := func(p orb.Point) string {
		if k, ok := keys[p]; ok {
			return k
		}
		k := strconv.Itoa(len(n.Nodes))
		keys[p] = k
		n.Nodes = append(n.Nodes, NetworkNode{Key: k, Coord: geo.Coordinate{Lat: p.Lat(), Lng: p.Lon()}})
		return k
	}
	addLine := func(ls orb.LineString, oneway bool) {
		for i := 0; i+1 < len(ls); i++ {
			from, to := vertex(ls[i]), vertex(ls[i+1])
			if from == to {
				continue
			}
			n.Segments = append(n.Segments, Segment{From: from, To: to, OneWay: oneway})
		}
	}

	var labels []*geojson.Feature
	for _, f := range fc.Features {
		oneway := isTruthy(f.Properties["oneway"])
		switch geom := f.Geometry.(type) {
		case orb.LineString:
			addLine(geom, oneway)
		case orb.MultiLineString:
			for _, ls := range geom {
				addLine(ls, oneway)
			}
		case orb.Point:
			labels = append(labels, f)
		}
	}

	for _, f := range labels {
		name, _ := f.Properties["name"].(string)
		if name == "" {
			continue
		}
		if k, ok := keys[f.Geometry.(orb.Point)]; ok {
			idx, _ := strconv.Atoi(k)
			n.Nodes[idx].Name = name
		}
	}
	return n, nil
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "yes" || t == "true" || t == "1"
	case float64:
		return t != 0
	}
	return false
}

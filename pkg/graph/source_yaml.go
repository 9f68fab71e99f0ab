package graph

import (
	"fmt"

	"github.com/goccy/go-yaml"

	"aegis_router/pkg/geo"
)

// waypointFile is the on-disk layout of a named waypoint network:
//
//	nodes:
//	  - {id: A, name: MG Road, lat: 12.9756, lng: 77.6050}
//	segments:
//	  - {from: A, to: B, cost: 950, oneway: false}
type waypointFile struct {
	Nodes []struct {
		ID   string  `yaml:"id"`
		Name string  `yaml:"name"`
		Lat  float64 `yaml:"lat"`
		Lng  float64 `yaml:"lng"`
	} `yaml:"nodes"`
	Segments []struct {
		From   string  `yaml:"from"`
		To     string  `yaml:"to"`
		Cost   float64 `yaml:"cost"`
		OneWay bool    `yaml:"oneway"`
	} `yaml:"segments"`
}

// ParseWaypoints decodes a YAML waypoint network.
func ParseWaypoints(data []byte) (*Network, error) {
	var f waypointFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse waypoints: %v", ErrMalformedGraph, err)
	}
	n := &Network{
		Nodes:    make([]NetworkNode, 0, len(f.Nodes)),
		Segments: make([]Segment, 0, len(f.Segments)),
	}
	for _, node := range f.Nodes {
		n.Nodes = append(n.Nodes, NetworkNode{
			Key:   node.ID,
			Name:  node.Name,
			Coord: geo.Coordinate{Lat: node.Lat, Lng: node.Lng},
		})
	}
	for _, s := range f.Segments {
		n.Segments = append(n.Segments, Segment{From: s.From, To: s.To, Cost: s.Cost, OneWay: s.OneWay})
	}
	return n, nil
}

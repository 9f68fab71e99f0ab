package graph

import (
	"slices"
	"testing"

	"aegis_router/pkg/geo"
)

func TestNearest(t *testing.T) {
	g, err := Build(squareNetwork())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Just south-east of MG Road.
	node, dist, ok := g.Nearest(geo.Coordinate{Lat: 12.9755, Lng: 77.6051}, 500)
	if !ok || node != 0 {
		t.Fatalf("Nearest = (%d, %v), want node 0", node, ok)
	}
	if dist <= 0 || dist > 20 {
		t.Errorf("dist = %v, want a few meters", dist)
	}

	// Block center is ~780 m from every corner.
	center := geo.Coordinate{Lat: 12.9706, Lng: 77.6100}
	if _, _, ok := g.Nearest(center, 100); ok {
		t.Error("Nearest should fail when nothing is within maxDist")
	}
	// Equidistant corners resolve to the lowest ID.
	node, _, ok = g.Nearest(center, 2000)
	if !ok || node != 0 {
		t.Errorf("tie-break Nearest = (%d, %v), want node 0", node, ok)
	}
}

func TestEdgesNear(t *testing.T) {
	g, err := Build(squareNetwork())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Midpoint of the A-B street sits inside only the A-B bounding boxes.
	ab := geo.Midpoint(g.Coord(0), g.Coord(1))
	got := g.EdgesNear(ab, 50)
	want := []uint32{g.FindEdge(0, 1), g.FindEdge(1, 0)}
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Errorf("EdgesNear(A-B midpoint) = %v, want %v", got, want)
	}

	if got := g.EdgesNear(geo.Coordinate{Lat: 13.2, Lng: 77.7}, 100); len(got) != 0 {
		t.Errorf("EdgesNear far away = %v, want none", got)
	}
	if got := g.EdgesNear(geo.Coordinate{Lat: 12.9706, Lng: 77.6100}, 2000); len(got) != int(g.NumEdges) {
		t.Errorf("EdgesNear with large radius = %d edges, want %d", len(got), g.NumEdges)
	}
}

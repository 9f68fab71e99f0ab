package graph

import (
	"errors"
	"math"
	"strings"
	"testing"

	"aegis_router/pkg/geo"
)

// squareNetwork is a four-node loop around a block in central Bangalore:
//
//	A ---- B
//	|      |
//	D ---- C
func squareNetwork() *Network {
	return &Network{
		Nodes: []NetworkNode{
			{Key: "A", Name: "MG Road", Coord: geo.Coordinate{Lat: 12.9756, Lng: 77.6050}},
			{Key: "B", Name: "Trinity Circle", Coord: geo.Coordinate{Lat: 12.9756, Lng: 77.6150}},
			{Key: "C", Name: "Ulsoor", Coord: geo.Coordinate{Lat: 12.9656, Lng: 77.6150}},
			{Key: "D", Coord: geo.Coordinate{Lat: 12.9656, Lng: 77.6050}},
		},
		Segments: []Segment{
			{From: "A", To: "B", Cost: 1000},
			{From: "B", To: "C", Cost: 1000},
			{From: "C", To: "D", Cost: 1000},
			{From: "D", To: "A"},
		},
	}
}

func checkCSR(t *testing.T, g *Graph) {
	t.Helper()
	if uint32(len(g.FirstOut)) != g.NumNodes+1 {
		t.Fatalf("len(FirstOut) = %d, want %d", len(g.FirstOut), g.NumNodes+1)
	}
	for i := uint32(1); i <= g.NumNodes; i++ {
		if g.FirstOut[i] < g.FirstOut[i-1] {
			t.Errorf("FirstOut not monotonic at %d", i)
		}
	}
	if g.FirstOut[g.NumNodes] != g.NumEdges {
		t.Errorf("FirstOut[NumNodes] = %d, want %d", g.FirstOut[g.NumNodes], g.NumEdges)
	}
	for u := uint32(0); u < g.NumNodes; u++ {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			if g.Tail[e] != u {
				t.Errorf("Tail[%d] = %d, want %d", e, g.Tail[e], u)
			}
			if g.Head[e] >= g.NumNodes {
				t.Errorf("Head[%d] = %d out of range", e, g.Head[e])
			}
		}
	}
}

func TestBuild(t *testing.T) {
	g, err := Build(squareNetwork())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.NumNodes != 4 {
		t.Errorf("NumNodes = %d, want 4", g.NumNodes)
	}
	if g.NumEdges != 8 {
		t.Errorf("NumEdges = %d, want 8", g.NumEdges)
	}
	checkCSR(t, g)

	// Every two-way segment yields a reverse edge with the same cost.
	for e := uint32(0); e < g.NumEdges; e++ {
		rev := g.FindEdge(g.Head[e], g.Tail[e])
		if rev == NoNode {
			t.Fatalf("edge %d has no reverse", e)
		}
		if g.BaseCost[rev] != g.BaseCost[e] {
			t.Errorf("reverse of edge %d costs %v, want %v", e, g.BaseCost[rev], g.BaseCost[e])
		}
	}

	// D-A had no explicit cost and falls back to the great-circle length.
	da := g.FindEdge(3, 0)
	want := geo.Haversine(12.9656, 77.6050, 12.9756, 77.6050)
	if math.Abs(g.BaseCost[da]-want) > 1e-9 {
		t.Errorf("D-A cost = %v, want %v", g.BaseCost[da], want)
	}
}

func TestBuildOneWay(t *testing.T) {
	n := squareNetwork()
	n.Segments[0].OneWay = true
	g, err := Build(n)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.NumEdges != 7 {
		t.Errorf("NumEdges = %d, want 7", g.NumEdges)
	}
	if g.FindEdge(0, 1) == NoNode {
		t.Error("A->B should exist")
	}
	if g.FindEdge(1, 0) != NoNode {
		t.Error("B->A should not exist on a one-way segment")
	}
}

func TestBuildMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(n *Network)
	}{
		{"empty key", func(n *Network) { n.Nodes[0].Key = "" }},
		{"duplicate key", func(n *Network) { n.Nodes[1].Key = "A" }},
		{"latitude out of range", func(n *Network) { n.Nodes[2].Coord.Lat = 91 }},
		{"NaN longitude", func(n *Network) { n.Nodes[2].Coord.Lng = math.NaN() }},
		{"unknown from", func(n *Network) { n.Segments[0].From = "Z" }},
		{"unknown to", func(n *Network) { n.Segments[1].To = "Z" }},
		{"negative cost", func(n *Network) { n.Segments[2].Cost = -1 }},
		{"infinite cost", func(n *Network) { n.Segments[2].Cost = math.Inf(1) }},
		{"name too long", func(n *Network) { n.Nodes[0].Name = strings.Repeat("é", MaxNameLen/2+1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := squareNetwork()
			tt.mutate(n)
			_, err := Build(n)
			if !errors.Is(err, ErrMalformedGraph) {
				t.Errorf("Build error = %v, want ErrMalformedGraph", err)
			}
		})
	}

	if _, err := Build(nil); !errors.Is(err, ErrMalformedGraph) {
		t.Errorf("Build(nil) error = %v, want ErrMalformedGraph", err)
	}
}

func TestNodeByName(t *testing.T) {
	g, err := Build(squareNetwork())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tests := []struct {
		name string
		want uint32
		ok   bool
	}{
		{"MG Road", 0, true},
		{"  mg   road ", 0, true},
		{"TRINITY CIRCLE", 1, true},
		{"Indiranagar", NoNode, false},
		{"", NoNode, false},
	}
	for _, tt := range tests {
		got, ok := g.NodeByName(tt.name)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("NodeByName(%q) = (%d, %v), want (%d, %v)", tt.name, got, ok, tt.want, tt.ok)
		}
	}
	if names := g.Names(); len(names) != 3 {
		t.Errorf("Names() has %d entries, want 3", len(names))
	}
}

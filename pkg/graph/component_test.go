package graph

import (
	"testing"

	"github.com/paulmach/osm"

	osmparser "aegis_router/pkg/osm"
)

func TestUnionFind(t *testing.T) {
	uf := NewUnionFind(5)

	// Initially all separate.
	for i := range uint32(5) {
		if uf.Find(i) != i {
			t.Errorf("Find(%d) = %d, want %d", i, uf.Find(i), i)
		}
	}

	uf.Union(0, 1)
	if uf.Find(0) != uf.Find(1) {
		t.Error("0 and 1 should be in same set")
	}
	uf.Union(2, 3)
	if uf.Find(0) == uf.Find(2) {
		t.Error("0 and 2 should be in different sets")
	}
	uf.Union(1, 3)
	if uf.Find(0) != uf.Find(3) {
		t.Error("0 and 3 should now be in same set")
	}
}

// twoComponentOSM has a walkable triangle (10, 20, 30) and a separate pair
// (40, 50).
func twoComponentOSM() *osmparser.ParseResult {
	return &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 10, ToNodeID: 20, Meters: 100},
			{FromNodeID: 20, ToNodeID: 30, Meters: 200},
			{FromNodeID: 30, ToNodeID: 10, Meters: 300, OneWay: true},
			{FromNodeID: 40, ToNodeID: 50, Meters: 400},
		},
		NodeLat:  map[osm.NodeID]float64{10: 12.97, 20: 12.971, 30: 12.972, 40: 13.0, 50: 13.001},
		NodeLon:  map[osm.NodeID]float64{10: 77.59, 20: 77.591, 30: 77.592, 40: 77.6, 50: 77.601},
		NodeName: map[osm.NodeID]string{20: "Church Street"},
	}
}

func TestLargestComponent(t *testing.T) {
	g, err := Build(FromOSM(twoComponentOSM()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := CountComponents(g); got != 2 {
		t.Errorf("CountComponents = %d, want 2", got)
	}
	nodes := LargestComponent(g)
	if len(nodes) != 3 {
		t.Fatalf("LargestComponent has %d nodes, want 3", len(nodes))
	}
}

func TestFilterToComponent(t *testing.T) {
	g, err := Build(FromOSM(twoComponentOSM()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	filtered, err := FilterToComponent(g, LargestComponent(g))
	if err != nil {
		t.Fatalf("FilterToComponent: %v", err)
	}

	if filtered.NumNodes != 3 {
		t.Fatalf("filtered NumNodes = %d, want 3", filtered.NumNodes)
	}
	// Two two-way segments plus one one-way segment.
	if filtered.NumEdges != 5 {
		t.Fatalf("filtered NumEdges = %d, want 5", filtered.NumEdges)
	}
	checkCSR(t, filtered)

	var total float64
	for _, w := range filtered.BaseCost {
		total += w
	}
	if total != 900 {
		t.Errorf("total base cost = %v, want 900", total)
	}
	if _, ok := filtered.NodeByName("church street"); !ok {
		t.Error("node names should survive filtering")
	}
}

func TestFilterToComponentEmptyGraph(t *testing.T) {
	g, err := Build(&Network{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if nodes := LargestComponent(g); nodes != nil {
		t.Errorf("expected nil for empty graph, got %v", nodes)
	}
	filtered, err := FilterToComponent(g, nil)
	if err != nil {
		t.Fatalf("FilterToComponent: %v", err)
	}
	if filtered.NumNodes != 0 || filtered.NumEdges != 0 {
		t.Errorf("expected empty graph, got %d nodes, %d edges", filtered.NumNodes, filtered.NumEdges)
	}
}

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"aegis_router/pkg/graph"
)

func TestParseBBox(t *testing.T) {
	tests := []struct {
		name    string
		opts    options
		wantErr bool
		zero    bool
	}{
		{"none", options{}, false, true},
		{"shortcut", options{bangalore: true}, false, false},
		{"explicit", options{bbox: "12.9,77.5,13.0,77.7"}, false, false},
		{"garbage", options{bbox: "north"}, true, false},
		{"inverted", options{bbox: "13.0,77.5,12.9,77.7"}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := parseBBox(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && b.IsZero() != tt.zero {
				t.Errorf("IsZero = %v, want %v", b.IsZero(), tt.zero)
			}
		})
	}
}

const twoIslands = `
nodes:
  - {id: A, name: MG Road, lat: 12.9756, lng: 77.6050}
  - {id: B, lat: 12.9716, lng: 77.6070}
  - {id: C, lat: 12.9750, lng: 77.6030}
  - {id: X, lat: 13.0500, lng: 77.7000}
  - {id: Y, lat: 13.0510, lng: 77.7010}
segments:
  - {from: A, to: B}
  - {from: B, to: C}
  - {from: X, to: Y}
`

func TestRunKeepsLargestComponent(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "city.yaml")
	out := filepath.Join(dir, "city.bin")
	if err := os.WriteFile(in, []byte(twoIslands), 0o644); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := run(context.Background(), options{input: in, output: out}, logger); err != nil {
		t.Fatalf("run: %v", err)
	}

	g, err := graph.ReadBinary(out)
	if err != nil {
		t.Fatalf("ReadBinary: %v", err)
	}
	if g.NumNodes != 3 || g.NumEdges != 4 {
		t.Errorf("graph = (%d nodes, %d edges), want (3, 4)", g.NumNodes, g.NumEdges)
	}
	if _, ok := g.NodeByName("mg road"); !ok {
		t.Error("node name lost")
	}

	if err := run(context.Background(), options{input: in, output: out, keepAll: true}, logger); err != nil {
		t.Fatalf("run keep-all: %v", err)
	}
	g, err = graph.ReadBinary(out)
	if err != nil {
		t.Fatal(err)
	}
	if g.NumNodes != 5 {
		t.Errorf("keep-all nodes = %d, want 5", g.NumNodes)
	}
}

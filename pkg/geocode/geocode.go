// Package geocode resolves place names to coordinates.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aegis_router/pkg/geo"
	"aegis_router/pkg/graph"
	"aegis_router/pkg/metrics"
)

var (
	// ErrNotFound is returned when no source knows the name.
	ErrNotFound = errors.New("location not found")
	// ErrUnavailable is returned when a remote source cannot be reached or
	// answers with an error.
	ErrUnavailable = errors.New("geocoder unavailable")
)

// Geocoder resolves a place name.
type Geocoder interface {
	Resolve(ctx context.Context, name string) (geo.Coordinate, error)
}

// Gazetteer resolves the names of graph nodes and a fixed set of landmarks.
// Matching ignores case and repeated whitespace. Node names are looked up in
// the current graph on every call, so reloads are picked up.
type Gazetteer struct {
	graphs    *graph.Store
	landmarks map[string]geo.Coordinate
}

// NewGazetteer creates a gazetteer. graphs may be nil for a landmark-only
// gazetteer.
func NewGazetteer(graphs *graph.Store, landmarks map[string]geo.Coordinate) *Gazetteer {
	lm := make(map[string]geo.Coordinate, len(landmarks))
	for name, c := range landmarks {
		lm[normalize(name)] = c
	}
	return &Gazetteer{graphs: graphs, landmarks: lm}
}

func (z *Gazetteer) Resolve(_ context.Context, name string) (geo.Coordinate, error) {
	if z.graphs != nil {
		g := z.graphs.Graph()
		if id, ok := g.NodeByName(name); ok {
			metrics.GeocodeLookups.WithLabelValues("gazetteer", "hit").Inc()
			return g.Coord(id), nil
		}
	}
	if c, ok := z.landmarks[normalize(name)]; ok {
		metrics.GeocodeLookups.WithLabelValues("gazetteer", "hit").Inc()
		return c, nil
	}
	metrics.GeocodeLookups.WithLabelValues("gazetteer", "miss").Inc()
	return geo.Coordinate{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Chain asks each geocoder in turn and returns the first answer. If every
// geocoder fails, the first error other than ErrNotFound is returned, so an
// outage is not reported as an unknown name.
type Chain []Geocoder

func (c Chain) Resolve(ctx context.Context, name string) (geo.Coordinate, error) {
	var firstErr error
	for _, g := range c {
		coord, err := g.Resolve(ctx, name)
		if err == nil {
			return coord, nil
		}
		if ctx.Err() != nil {
			return geo.Coordinate{}, err
		}
		if firstErr == nil && !errors.Is(err, ErrNotFound) {
			firstErr = err
		}
	}
	if firstErr != nil {
		return geo.Coordinate{}, firstErr
	}
	return geo.Coordinate{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

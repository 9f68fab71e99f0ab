package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	osmparser "aegis_router/pkg/osm"
)

// LoadFile reads a network from path, choosing the decoder by extension:
// .yaml/.yml waypoints, .geojson/.json line features, .osm.pbf extracts and
// .bin files produced by the preprocessor.
func LoadFile(ctx context.Context, path string) (*Graph, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".bin"):
		return ReadBinary(path)
	case strings.HasSuffix(lower, ".osm.pbf"):
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		res, err := osmparser.Parse(ctx, f, osmparser.ParseOptions{})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedGraph, err)
		}
		return Build(FromOSM(res))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var n *Network
	switch filepath.Ext(lower) {
	case ".yaml", ".yml":
		n, err = ParseWaypoints(data)
	case ".geojson", ".json":
		n, err = ParseGeoJSON(data)
	default:
		return nil, fmt.Errorf("%w: unsupported graph file %q", ErrMalformedGraph, filepath.Base(path))
	}
	if err != nil {
		return nil, err
	}
	return Build(n)
}

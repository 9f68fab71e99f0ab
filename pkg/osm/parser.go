package osm

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"aegis_router/pkg/geo"
)

// RawEdge is one walkable segment between two consecutive way nodes.
type RawEdge struct {
	FromNodeID osm.NodeID
	ToNodeID   osm.NodeID
	Meters     float64
	OneWay     bool
}

// ParseResult holds the output of parsing an OSM PBF file.
type ParseResult struct {
	Edges    []RawEdge
	NodeLat  map[osm.NodeID]float64
	NodeLon  map[osm.NodeID]float64
	NodeName map[osm.NodeID]string
}

// footHighways lists highway tag values a pedestrian can use.
var footHighways = map[string]bool{
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
	"pedestrian":     true,
	"footway":        true,
	"path":           true,
	"steps":          true,
	"track":          true,
	"cycleway":       true,
}

// isWalkable returns true if the way can be used on foot.
func isWalkable(tags osm.Tags) bool {
	hw := tags.Find("highway")
	if !footHighways[hw] {
		return false
	}

	switch tags.Find("foot") {
	case "no", "private":
		return false
	case "yes", "designated", "permissive":
		return true
	}

	access := tags.Find("access")
	if access == "no" || access == "private" {
		return false
	}
	// Cycleways are walkable only where foot access is explicit.
	if hw == "cycleway" {
		return false
	}
	return true
}

// isFootOneWay reports whether pedestrians are restricted to the way's
// direction. Vehicle oneway tags do not apply on foot.
func isFootOneWay(tags osm.Tags) bool {
	switch tags.Find("oneway:foot") {
	case "yes", "true", "1":
		return true
	}
	return false
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only edges with both endpoints inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLng == 0 && b.MaxLng == 0
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	BBox   BBox
	Logger *slog.Logger
}

// Parse reads an OSM PBF file and returns walkable edges. The reader is
// consumed twice (ways, then nodes), so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opt ParseOptions) (*ParseResult, error) {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	useBBox := !opt.BBox.IsZero()

	// Pass 1: collect walkable ways and the node IDs they reference.
	type wayInfo struct {
		nodeIDs []osm.NodeID
		oneway  bool
	}
	referenced := make(map[osm.NodeID]struct{})
	var ways []wayInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true
	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok || len(w.Nodes) < 2 || !isWalkable(w.Tags) {
			continue
		}
		ids := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			ids[i] = wn.ID
			referenced[wn.ID] = struct{}{}
		}
		ways = append(ways, wayInfo{nodeIDs: ids, oneway: isFootOneWay(w.Tags)})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()
	logger.Info("osm pass 1 complete", "ways", len(ways), "referenced_nodes", len(referenced))

	// Pass 2: coordinates and names of referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}
	res := &ParseResult{
		NodeLat:  make(map[osm.NodeID]float64, len(referenced)),
		NodeLon:  make(map[osm.NodeID]float64, len(referenced)),
		NodeName: make(map[osm.NodeID]string),
	}
	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true
	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referenced[n.ID]; !needed {
			continue
		}
		res.NodeLat[n.ID] = n.Lat
		res.NodeLon[n.ID] = n.Lon
		if name := n.Tags.Find("name"); name != "" {
			res.NodeName[n.ID] = name
		}
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()
	logger.Info("osm pass 2 complete", "coordinates", len(res.NodeLat), "named_nodes", len(res.NodeName))

	var skipped, filtered int
	for _, w := range ways {
		for i := 0; i+1 < len(w.nodeIDs); i++ {
			from, to := w.nodeIDs[i], w.nodeIDs[i+1]
			fromLat, fromOk := res.NodeLat[from]
			toLat, toOk := res.NodeLat[to]
			if !fromOk || !toOk {
				skipped++
				continue
			}
			fromLon, toLon := res.NodeLon[from], res.NodeLon[to]
			if useBBox && (!opt.BBox.Contains(fromLat, fromLon) || !opt.BBox.Contains(toLat, toLon)) {
				filtered++
				continue
			}
			res.Edges = append(res.Edges, RawEdge{
				FromNodeID: from,
				ToNodeID:   to,
				Meters:     geo.Haversine(fromLat, fromLon, toLat, toLon),
				OneWay:     w.oneway,
			})
		}
	}
	if skipped > 0 {
		logger.Warn("skipped edges with missing node coordinates", "count", skipped)
	}
	if filtered > 0 {
		logger.Info("filtered edges outside bounding box", "count", filtered)
	}
	logger.Info("osm edges built", "edges", len(res.Edges))
	return res, nil
}

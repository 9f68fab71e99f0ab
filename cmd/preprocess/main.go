package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aegis_router/pkg/graph"
	osmparser "aegis_router/pkg/osm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type options struct {
	input     string
	output    string
	bbox      string
	bangalore bool
	keepAll   bool
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "preprocess --input <file> [--output graph.bin]",
		Short: "Convert a walking network to the binary graph format",
		Long: `Reads an .osm.pbf extract (walkable ways only), a YAML waypoint file or a
GeoJSON file, keeps the largest connected component and writes a .bin graph
that the server loads directly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.input == "" {
				return fmt.Errorf("--input is required")
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			return run(cmd.Context(), opts, logger)
		},
	}
	cmd.Flags().StringVar(&opts.input, "input", "", "Path to .osm.pbf, .yaml or .geojson network")
	cmd.Flags().StringVar(&opts.output, "output", "graph.bin", "Output binary graph file path")
	cmd.Flags().StringVar(&opts.bbox, "bbox", "", "Bounding box filter for OSM input: minLat,minLng,maxLat,maxLng")
	cmd.Flags().BoolVar(&opts.bangalore, "bangalore", false, "Shortcut for --bbox 12.83,77.46,13.14,77.78 (Bengaluru)")
	cmd.Flags().BoolVar(&opts.keepAll, "keep-all", false, "Keep every connected component")
	return cmd
}

func parseBBox(opts options) (osmparser.BBox, error) {
	if opts.bangalore {
		return osmparser.BBox{MinLat: 12.83, MaxLat: 13.14, MinLng: 77.46, MaxLng: 77.78}, nil
	}
	if opts.bbox == "" {
		return osmparser.BBox{}, nil
	}
	var minLat, minLng, maxLat, maxLng float64
	if _, err := fmt.Sscanf(opts.bbox, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng); err != nil {
		return osmparser.BBox{}, fmt.Errorf("invalid bbox (expected minLat,minLng,maxLat,maxLng): %w", err)
	}
	if minLat >= maxLat || minLng >= maxLng {
		return osmparser.BBox{}, fmt.Errorf("invalid bbox %q: min must be below max", opts.bbox)
	}
	return osmparser.BBox{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}, nil
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	bbox, err := parseBBox(opts)
	if err != nil {
		return err
	}
	start := time.Now()

	// Step 1: Load the network.
	var g *graph.Graph
	if strings.HasSuffix(strings.ToLower(opts.input), ".osm.pbf") {
		g, err = loadOSM(ctx, opts.input, bbox, logger)
	} else {
		if !bbox.IsZero() {
			logger.Warn("bbox applies to OSM input only; ignoring")
		}
		g, err = graph.LoadFile(ctx, opts.input)
	}
	if err != nil {
		return err
	}
	logger.Info("graph built", "nodes", g.NumNodes, "edges", g.NumEdges)

	// Step 2: Extract largest connected component.
	if !opts.keepAll && g.NumNodes > 0 {
		nodes := graph.LargestComponent(g)
		logger.Info("largest component",
			"nodes", len(nodes),
			"share", fmt.Sprintf("%.1f%%", float64(len(nodes))/float64(g.NumNodes)*100))
		g, err = graph.FilterToComponent(g, nodes)
		if err != nil {
			return fmt.Errorf("filter component: %w", err)
		}
		logger.Info("filtered graph", "nodes", g.NumNodes, "edges", g.NumEdges)
	}

	// Step 3: Serialize to binary.
	logger.Info("writing binary", "path", opts.output)
	if err := graph.WriteBinary(opts.output, g); err != nil {
		return fmt.Errorf("write binary: %w", err)
	}

	info, err := os.Stat(opts.output)
	if err != nil {
		return err
	}
	logger.Info("done",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"output", opts.output,
		"size", fmt.Sprintf("%.1f MB", float64(info.Size())/(1024*1024)))
	return nil
}

func loadOSM(ctx context.Context, path string, bbox osmparser.BBox, logger *slog.Logger) (*graph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	logger.Info("parsing OSM data", "path", path)
	res, err := osmparser.Parse(ctx, f, osmparser.ParseOptions{BBox: bbox, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("parse OSM data: %w", err)
	}
	logger.Info("parsed", "edges", len(res.Edges), "nodes", len(res.NodeLat), "named", len(res.NodeName))
	return graph.Build(graph.FromOSM(res))
}

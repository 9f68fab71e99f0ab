package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"aegis_router/pkg/api"
	"aegis_router/pkg/config"
	"aegis_router/pkg/engine"
	"aegis_router/pkg/geocode"
	"aegis_router/pkg/graph"
	"aegis_router/pkg/incident"
	"aegis_router/pkg/notify"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		graphPath  string
		port       int
		corsOrigin string
	)
	cmd := &cobra.Command{
		Use:           "aegis-server",
		Short:         "Serve safety-aware walking routes over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("graph") {
				cfg.Graph.Path = graphPath
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Addr = ":" + strconv.Itoa(port)
			}
			if cmd.Flags().Changed("cors-origin") {
				cfg.Server.CORSOrigin = corsOrigin
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()
			return serve(ctx, cfg, cfg.NewLogger(os.Stderr))
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.Flags().StringVar(&graphPath, "graph", "", "Path to graph file (.bin, .osm.pbf, .yaml, .geojson)")
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port")
	cmd.Flags().StringVar(&corsOrigin, "cors-origin", "", "CORS allowed origin (empty = same-origin)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	start := time.Now()

	// Load graph.
	logger.Info("loading graph", "path", cfg.Graph.Path)
	g, err := graph.LoadFile(ctx, cfg.Graph.Path)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}
	logger.Info("graph loaded", "nodes", g.NumNodes, "edges", g.NumEdges, "components", graph.CountComponents(g))
	graphs := graph.NewStore(g)

	// Open incident log.
	ilog, err := openLog(cfg, logger)
	if err != nil {
		return err
	}
	incidents, err := incident.Open(ctx, ilog, incident.Options{
		Retention: cfg.Incidents.Retention.Std(),
		Logger:    logger,
	})
	if err != nil {
		ilog.Close()
		return fmt.Errorf("open incidents: %w", err)
	}
	logger.Info("incidents loaded", "backend", cfg.Incidents.Backend, "count", incidents.Len())

	eng, err := engine.New(graphs, incidents, newGeocoder(cfg, graphs), newNotifier(cfg, logger), cfg.EngineConfig(), logger)
	if err != nil {
		incidents.Close()
		return err
	}
	defer eng.Close()

	// Price stored incidents before the first request is accepted.
	if err := eng.Prime(ctx); err != nil {
		return fmt.Errorf("initial risk computation: %w", err)
	}

	// Setup HTTP server.
	srvCfg := api.ServerConfig{
		Addr:           cfg.Server.Addr,
		ReadTimeout:    cfg.Server.ReadTimeout.Std(),
		WriteTimeout:   cfg.Server.WriteTimeout.Std(),
		RequestTimeout: cfg.Server.RequestTimeout.Std(),
		MaxConcurrent:  cfg.Server.MaxConcurrent,
		CORSOrigin:     cfg.Server.CORSOrigin,
	}
	limiter := api.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	handlers := api.NewHandlers(eng, cfg.RoutingConfig().Weighting, limiter, logger)
	srv := api.NewServer(srvCfg, handlers, logger)

	logger.Info("ready", "elapsed", time.Since(start).Round(time.Millisecond))

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return eng.Run(gctx)
	})
	grp.Go(func() error {
		return api.ListenAndServe(gctx, srv, logger)
	})
	// SIGHUP reloads the graph from the same path.
	grp.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := eng.ReloadGraph(gctx, cfg.Graph.Path); err != nil {
					logger.Error("graph reload failed", "err", err)
				}
			}
		}
	})

	err = grp.Wait()
	if err == nil || errors.Is(err, context.Canceled) {
		logger.Info("server stopped")
		return nil
	}
	return err
}

func openLog(cfg config.Config, logger *slog.Logger) (incident.Log, error) {
	switch cfg.Incidents.Backend {
	case "badger":
		b, err := incident.OpenBadger(incident.BadgerOptions{Dir: cfg.Incidents.Dir, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("open incident store %s: %w", cfg.Incidents.Dir, err)
		}
		return b, nil
	default:
		logger.Warn("incidents are kept in memory and lost on restart")
		return incident.NewMemoryLog(), nil
	}
}

func newGeocoder(cfg config.Config, graphs *graph.Store) geocode.Geocoder {
	chain := geocode.Chain{geocode.NewGazetteer(graphs, cfg.LandmarkCoords())}
	if gc := cfg.Geocoder; gc.NominatimURL != "" {
		remote := geocode.NewNominatim(geocode.NominatimOptions{
			BaseURL:   gc.NominatimURL,
			UserAgent: gc.UserAgent,
			Suffix:    gc.Suffix,
			Timeout:   gc.Timeout.Std(),
		})
		chain = append(chain, geocode.NewCached(remote, gc.CacheTTL.Std(), gc.CacheSize))
	}
	return chain
}

func newNotifier(cfg config.Config, logger *slog.Logger) notify.Notifier {
	if cfg.Notifier.WebhookURL == "" {
		return notify.NewLog(logger, 100)
	}
	return notify.NewWebhook(cfg.Notifier.WebhookURL, &http.Client{Timeout: cfg.Notifier.Timeout.Std()})
}

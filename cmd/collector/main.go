package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/capture"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/config"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/dispatch"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/httpserver"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/news"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/outbound"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/reconcile"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/source"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/spool"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/transport"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/visibility"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	filter := news.NewFilter()
	if cfg.NewsDomainsPath != "" {
		if err := filter.LoadFile(cfg.NewsDomainsPath); err != nil {
			return fmt.Errorf("load news domains: %w", err)
		}
	}

	repo, err := spool.NewRepository(cfg.SpoolPath)
	if err != nil {
		return fmt.Errorf("create spool repository: %w", err)
	}
	defer repo.Close()
	logger.Info("spool opened", "path", cfg.SpoolPath)

	backend := transport.NewClient(cfg.BackendURL, cfg.BackendAPIKey)
	queue := outbound.NewQueue(outbound.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, backend, repo, logger)

	var explainer domain.ExplanationFetcher
	if cfg.ExplanationURL != "" {
		explainer = transport.NewExplanationClient(cfg.ExplanationURL)
	}

	// The tracker's callbacks close over the dispatcher and registry, which
	// in turn need the tracker; the closures break the cycle.
	var (
		registry   *reconcile.Reconciler
		dispatcher *dispatch.Dispatcher
	)
	trackerCfg := visibility.DefaultConfig()
	trackerCfg.PollInterval = cfg.PollInterval
	trackerCfg.SeenThreshold = cfg.SeenThreshold
	tracker := visibility.NewTracker(trackerCfg,
		func(ctx context.Context, id domain.Identity) { dispatcher.HandleSeen(ctx, id) },
		func(ev domain.VisibilityWindowEvent) {
			registry.AppendVisibleWindow(ev.PostID, domain.VisibleWindow{StartedTS: ev.StartedTS, EndTS: ev.EndTS})
			queue.EnqueueWindow(ev)
		},
		logger,
	)
	registry = reconcile.New(tracker, logger)
	dispatcher = dispatch.New(registry, queue, filter, explainer, logger)

	router := capture.NewRouter(
		source.NewNetwork(registry, logger),
		source.NewBootstrap(registry, logger),
		source.NewDom(registry, logger),
		tracker,
		logger,
	)
	subscriber := capture.NewSubscriber(cfg.BridgeURL, router, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := httpserver.NewServer(cfg.Port, func() httpserver.Stats {
		return httpserver.Stats{
			Reconcile:  registry.Stats(),
			Visibility: tracker.Stats(),
			Routing:    router.Stats(),
			Outbound:   queue.Stats(),
		}
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return subscriber.Start(gctx) })
	g.Go(func() error { return tracker.Run(gctx) })
	g.Go(func() error { return queue.Run(gctx) })
	g.Go(func() error {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return server.Shutdown(context.Background())
	})

	logger.Info("collector started", "port", cfg.Port, "bridge", cfg.BridgeURL)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("collector stopped")
	return nil
}

// Command replay runs a recorded capture session through the full pipeline
// offline. It reads bridge events from a JSONL file, polls the visibility
// tracker after every geometry event, and prints the batches that would have
// been sent.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/capture"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/dispatch"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/news"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/outbound"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/reconcile"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/source"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/visibility"
)

// stdoutTransport prints every batch instead of posting it.
type stdoutTransport struct{}

func (stdoutTransport) Send(_ context.Context, batch domain.Batch) error {
	return json.NewEncoder(os.Stdout).Encode(batch)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		inputPath   = flag.String("input", "", "JSONL file of recorded bridge events (required)")
		domainsPath = flag.String("news-domains", "", "optional YAML news domain table")
		verbose     = flag.Bool("v", false, "log at debug level")
	)
	flag.Parse()

	if *inputPath == "" {
		flag.Usage()
		return fmt.Errorf("-input is required")
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	filter := news.NewFilter()
	if *domainsPath != "" {
		if err := filter.LoadFile(*domainsPath); err != nil {
			return fmt.Errorf("load news domains: %w", err)
		}
	}

	queue := outbound.NewQueue(outbound.DefaultConfig(), stdoutTransport{}, nil, logger)

	var (
		registry   *reconcile.Reconciler
		dispatcher *dispatch.Dispatcher
	)
	tracker := visibility.NewTracker(visibility.DefaultConfig(),
		func(ctx context.Context, id domain.Identity) { dispatcher.HandleSeen(ctx, id) },
		func(ev domain.VisibilityWindowEvent) {
			registry.AppendVisibleWindow(ev.PostID, domain.VisibleWindow{StartedTS: ev.StartedTS, EndTS: ev.EndTS})
			queue.EnqueueWindow(ev)
		},
		logger,
	)
	registry = reconcile.New(tracker, logger)
	dispatcher = dispatch.New(registry, queue, filter, nil, logger)

	router := capture.NewRouter(
		source.NewNetwork(registry, logger),
		source.NewBootstrap(registry, logger),
		source.NewDom(registry, logger),
		tracker,
		logger,
	)

	file, err := os.Open(*inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	ctx := context.Background()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	var lines int
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		lines++
		kind, err := router.Route(line)
		if err != nil {
			logger.Warn("event skipped", "line", lines, "kind", kind, "error", err)
			continue
		}
		// There is no wall clock driving the tracker offline; evaluate
		// after every geometry update instead.
		if kind == capture.KindGeometry || kind == capture.KindRemove {
			tracker.Poll(ctx)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	tracker.CloseOpenWindows()
	queue.Flush(ctx)

	stats := registry.Stats()
	fmt.Fprintf(os.Stderr, "replayed %d events: %d records (%d in dom, %d dispatched), %d unmatchable\n",
		lines, stats.Records, stats.InDom, stats.Dispatched, stats.Unmatchable)
	return nil
}

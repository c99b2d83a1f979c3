// Package config loads collector configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the collector.
type Config struct {
	// BridgeURL is the capture bridge WebSocket endpoint.
	BridgeURL string

	// BackendURL is the research backend base URL batches are posted to.
	BackendURL string

	// BackendAPIKey authorizes batch uploads; may be empty.
	BackendAPIKey string

	// ExplanationURL is the platform's ad-explanation endpoint; empty
	// disables explanation fetching.
	ExplanationURL string

	// Port is the HTTP server port for health and stats.
	Port int

	// SpoolPath is the SQLite file holding unsent batches.
	SpoolPath string

	// NewsDomainsPath optionally points to a YAML file overriding the
	// built-in news domain table.
	NewsDomainsPath string

	// BatchSize and FlushInterval tune the outbound queue.
	BatchSize     int
	FlushInterval time.Duration

	// PollInterval and SeenThreshold tune the visibility tracker.
	PollInterval  time.Duration
	SeenThreshold time.Duration
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	bridgeURL := os.Getenv("COLLECTOR_BRIDGE_URL")
	if bridgeURL == "" {
		bridgeURL = "ws://localhost:8787/events"
	}

	backendURL := os.Getenv("COLLECTOR_BACKEND_URL")
	if backendURL == "" {
		return nil, fmt.Errorf("COLLECTOR_BACKEND_URL is required")
	}

	spoolPath := os.Getenv("COLLECTOR_SPOOL_PATH")
	if spoolPath == "" {
		spoolPath = "collector-spool.db"
	}

	port, err := intEnv("PORT", 3000)
	if err != nil {
		return nil, err
	}
	batchSize, err := intEnv("COLLECTOR_BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}
	flushInterval, err := durationEnv("COLLECTOR_FLUSH_INTERVAL", 60*time.Second)
	if err != nil {
		return nil, err
	}
	pollInterval, err := durationEnv("COLLECTOR_POLL_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	seenThreshold, err := durationEnv("COLLECTOR_SEEN_THRESHOLD", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}

	return &Config{
		BridgeURL:       bridgeURL,
		BackendURL:      backendURL,
		BackendAPIKey:   os.Getenv("COLLECTOR_BACKEND_API_KEY"),
		ExplanationURL:  os.Getenv("COLLECTOR_EXPLANATION_URL"),
		Port:            port,
		SpoolPath:       spoolPath,
		NewsDomainsPath: os.Getenv("COLLECTOR_NEWS_DOMAINS"),
		BatchSize:       batchSize,
		FlushInterval:   flushInterval,
		PollInterval:    pollInterval,
		SeenThreshold:   seenThreshold,
	}, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	reconnectDelay    = 5 * time.Second
	statsLogInterval  = 30 * time.Second
	readDeadlineSlack = 90 * time.Second
)

// Subscriber connects to the capture bridge websocket and feeds every
// message through the router.
type Subscriber struct {
	url    string
	router *Router
	logger *slog.Logger
}

// NewSubscriber creates a bridge subscriber.
func NewSubscriber(bridgeURL string, router *Router, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		url:    bridgeURL,
		router: router,
		logger: logger,
	}
}

// Start connects to the bridge and processes events until the context is
// cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				s.logger.Error("bridge connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(reconnectDelay):
					// backoff before reconnecting
				}
			}
		}
	}
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	s.logger.Info("connecting to capture bridge", "url", s.url)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial bridge: %w", err)
	}
	defer conn.Close()

	// A stalled bridge should surface as a read error, not a silent hang.
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadlineSlack))
	})
	if err := conn.SetReadDeadline(time.Now().Add(readDeadlineSlack)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}

	s.logger.Info("connected to capture bridge")

	var eventsReceived, eventsFailed int64
	lastStatsLog := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		if err := conn.SetReadDeadline(time.Now().Add(readDeadlineSlack)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		eventsReceived++
		if kind, err := s.router.Route(message); err != nil {
			eventsFailed++
			s.logger.Error("failed to route event", "kind", kind, "error", err)
		}

		if time.Since(lastStatsLog) >= statsLogInterval {
			stats := s.router.Stats()
			s.logger.Info("bridge stats",
				"events_received", eventsReceived,
				"events_failed", eventsFailed,
				"network", stats.Network,
				"dom", stats.Dom,
				"geometry", stats.Geometry,
			)
			lastStatsLog = time.Now()
		}
	}
}

package capture

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/source"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/visibility"
)

// RouterStats is a snapshot of per-kind routing counters.
type RouterStats struct {
	Network   int `json:"network"`
	Bootstrap int `json:"bootstrap"`
	Dom       int `json:"dom"`
	Geometry  int `json:"geometry"`
	Remove    int `json:"remove"`
	Errors    int `json:"errors"`
}

// Router dispatches bridge events by kind.
type Router struct {
	network   *source.Network
	bootstrap *source.Bootstrap
	dom       *source.Dom
	tracker   *visibility.Tracker
	logger    *slog.Logger

	mu    sync.Mutex
	stats RouterStats
}

// NewRouter creates a router over the three source adapters and the tracker.
func NewRouter(network *source.Network, bootstrap *source.Bootstrap, dom *source.Dom, tracker *visibility.Tracker, logger *slog.Logger) *Router {
	return &Router{
		network:   network,
		bootstrap: bootstrap,
		dom:       dom,
		tracker:   tracker,
		logger:    logger,
	}
}

// Route decodes one bridge message and hands it to the right consumer. It
// returns the event kind for logging; a routing error affects only the one
// event.
func (r *Router) Route(data []byte) (string, error) {
	env, err := parseEnvelope(data)
	if err != nil {
		r.countError()
		return "", err
	}

	switch env.Kind {
	case KindNetwork:
		r.count(func(s *RouterStats) { s.Network++ })
		r.network.HandlePayload(env.Payload)

	case KindBootstrap:
		r.count(func(s *RouterStats) { s.Bootstrap++ })
		if err := r.bootstrap.HandleBlob(env.Payload); err != nil {
			r.countError()
			return env.Kind, err
		}

	case KindDom:
		r.count(func(s *RouterStats) { s.Dom++ })
		var sighting source.DomSighting
		if err := json.Unmarshal(env.Payload, &sighting); err != nil {
			r.countError()
			return env.Kind, fmt.Errorf("unmarshal dom sighting: %w", err)
		}
		r.dom.HandleSighting(sighting)

	case KindGeometry:
		r.count(func(s *RouterStats) { s.Geometry++ })
		var g geometryEvent
		if err := json.Unmarshal(env.Payload, &g); err != nil {
			r.countError()
			return env.Kind, fmt.Errorf("unmarshal geometry: %w", err)
		}
		r.tracker.UpdateGeometry(g.ElementID, visibility.Geometry{
			Top:            g.Top,
			Bottom:         g.Bottom,
			TotalHeight:    g.TotalHeight,
			ViewportHeight: g.ViewportHeight,
		})

	case KindRemove:
		r.count(func(s *RouterStats) { s.Remove++ })
		var rm removeEvent
		if err := json.Unmarshal(env.Payload, &rm); err != nil {
			r.countError()
			return env.Kind, fmt.Errorf("unmarshal remove: %w", err)
		}
		r.tracker.RemoveElement(rm.ElementID)

	default:
		r.countError()
		return env.Kind, fmt.Errorf("unknown event kind %q", env.Kind)
	}

	return env.Kind, nil
}

// Stats returns a snapshot of routing counters.
func (r *Router) Stats() RouterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Router) count(fn func(*RouterStats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

func (r *Router) countError() {
	r.count(func(s *RouterStats) { s.Errors++ })
}

// Package visibility tracks how long post elements stay on screen. It polls
// the latest known geometry of every tracked element on a fixed interval,
// accumulates visible duration across intermittent enter/leave flaps, fires
// a one-shot "seen" event once cumulative exposure crosses a threshold, and
// emits a window event for every closed exposure, threshold reached or not.
package visibility

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
)

// Config holds the tracking thresholds. All of them are tunable heuristics.
type Config struct {
	// PollInterval is how often tracked elements are evaluated. Polling
	// bounds cost; per-mutation evaluation is deliberately avoided.
	PollInterval time.Duration

	// FractionThreshold counts an element visible when at least this share
	// of it is inside the viewport.
	FractionThreshold float64

	// MinHeightPx counts an element visible when at least this many pixels
	// of it are inside the viewport, regardless of fraction. Accommodates
	// very tall posts that never reach the fraction threshold.
	MinHeightPx float64

	// SeenThreshold is the cumulative visible duration after which the
	// seen event fires.
	SeenThreshold time.Duration
}

// DefaultConfig mirrors the thresholds the capture side was tuned with.
func DefaultConfig() Config {
	return Config{
		PollInterval:      500 * time.Millisecond,
		FractionThreshold: 0.3,
		MinHeightPx:       350,
		SeenThreshold:     500 * time.Millisecond,
	}
}

// Geometry is the latest reported position of an element relative to the
// viewport, in CSS pixels. Top and Bottom may extend outside [0, ViewportHeight].
type Geometry struct {
	Top            float64 `json:"top"`
	Bottom         float64 `json:"bottom"`
	TotalHeight    float64 `json:"total_height"`
	ViewportHeight float64 `json:"viewport_height"`
}

// visibleHeight returns the on-screen portion of the element in pixels.
func (g Geometry) visibleHeight() float64 {
	if g.Bottom <= 0 || g.Top >= g.ViewportHeight {
		return 0
	}
	top := g.Top
	if top < 0 {
		top = 0
	}
	bottom := g.Bottom
	if bottom > g.ViewportHeight {
		bottom = g.ViewportHeight
	}
	if bottom <= top {
		return 0
	}
	return bottom - top
}

// SeenFunc is invoked once per identity when cumulative visible time first
// crosses the seen threshold.
type SeenFunc func(ctx context.Context, id domain.Identity)

// WindowFunc is invoked every time a visible window closes.
type WindowFunc func(ev domain.VisibilityWindowEvent)

// entry is the tracking state for one element. The element reference is a
// plain id string, so tracking never keeps anything else alive.
type entry struct {
	elementID    string
	totalVisible time.Duration
	visibleSince time.Time // zero while no window is open
	windowStart  time.Time
	seenFired    bool
}

// Stats is a snapshot of tracker counters.
type Stats struct {
	Tracked   int `json:"tracked"`
	Visible   int `json:"visible"`
	SeenFired int `json:"seen_fired"`
}

// Tracker evaluates tracked elements against their latest geometry.
type Tracker struct {
	mu       sync.Mutex
	entries  map[domain.Identity]*entry
	geometry map[string]Geometry

	cfg      Config
	onSeen   SeenFunc
	onWindow WindowFunc
	logger   *slog.Logger
	now      func() time.Time
}

// NewTracker creates a tracker. onSeen and onWindow may be nil.
func NewTracker(cfg Config, onSeen SeenFunc, onWindow WindowFunc, logger *slog.Logger) *Tracker {
	return &Tracker{
		entries:  make(map[domain.Identity]*entry),
		geometry: make(map[string]Geometry),
		cfg:      cfg,
		onSeen:   onSeen,
		onWindow: onWindow,
		logger:   logger,
		now:      time.Now,
	}
}

// Track registers an element for an identity. Re-tracking an already known
// identity with a new element only refreshes the element reference; the
// platform recycles DOM nodes and accumulated state must survive that.
func (t *Tracker) Track(id domain.Identity, elementID string) {
	if id == "" || elementID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		e.elementID = elementID
		return
	}
	t.entries[id] = &entry{elementID: elementID}
}

// Remap moves tracking state from one identity to another, used when a
// surrogate record is claimed by a strong identity. If the new identity is
// already tracked, the old state is dropped in its favor.
func (t *Tracker) Remap(oldID, newID domain.Identity) {
	if oldID == "" || newID == "" || oldID == newID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[oldID]
	if !ok {
		return
	}
	delete(t.entries, oldID)
	if _, taken := t.entries[newID]; taken {
		return
	}
	t.entries[newID] = e
}

// Untrack stops tracking an identity without emitting a close event.
func (t *Tracker) Untrack(id domain.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// UpdateGeometry stores the latest reported geometry for an element.
func (t *Tracker) UpdateGeometry(elementID string, g Geometry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.geometry[elementID] = g
}

// RemoveElement forgets an element's geometry, e.g. when it left the DOM.
// Its open window, if any, closes on the next poll.
func (t *Tracker) RemoveElement(elementID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.geometry, elementID)
}

// Run polls until the context is cancelled. On cancellation every open
// window is closed with a synthesized end so none is left dangling.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.CloseOpenWindows()
			return ctx.Err()
		case <-ticker.C:
			t.Poll(ctx)
		}
	}
}

// Poll evaluates all tracked elements once. Exposed so the replay tool can
// drive the tracker without the ticker.
func (t *Tracker) Poll(ctx context.Context) {
	now := t.now()

	var seen []domain.Identity
	var windows []domain.VisibilityWindowEvent

	t.mu.Lock()
	for id, e := range t.entries {
		g, ok := t.geometry[e.elementID]
		if !ok || !t.isVisibleEnough(g) {
			ev, closed, seenNow := t.closeWindow(id, e, now)
			if closed {
				windows = append(windows, ev)
			}
			if seenNow {
				seen = append(seen, id)
			}
			continue
		}

		if e.visibleSince.IsZero() {
			e.visibleSince = now
			e.windowStart = now
		}
		cumulative := e.totalVisible + now.Sub(e.visibleSince)
		if !e.seenFired && cumulative >= t.cfg.SeenThreshold {
			e.seenFired = true
			seen = append(seen, id)
		}
	}
	t.mu.Unlock()

	// Callbacks run outside the lock; they are expected to call back into
	// the reconciler and outbound queue.
	t.emit(ctx, seen, windows)
}

// CloseOpenWindows synthesizes a close for every open window. Called on
// shutdown so partial exposures are still reported.
func (t *Tracker) CloseOpenWindows() {
	now := t.now()
	var seen []domain.Identity
	var windows []domain.VisibilityWindowEvent

	t.mu.Lock()
	for id, e := range t.entries {
		ev, closed, seenNow := t.closeWindow(id, e, now)
		if closed {
			windows = append(windows, ev)
		}
		if seenNow {
			seen = append(seen, id)
		}
	}
	t.mu.Unlock()

	t.emit(context.Background(), seen, windows)
}

// Stats returns a snapshot of tracker counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{Tracked: len(t.entries)}
	for _, e := range t.entries {
		if !e.visibleSince.IsZero() {
			s.Visible++
		}
		if e.seenFired {
			s.SeenFired++
		}
	}
	return s
}

func (t *Tracker) isVisibleEnough(g Geometry) bool {
	vh := g.visibleHeight()
	if vh <= 0 {
		return false
	}
	if vh >= t.cfg.MinHeightPx {
		return true
	}
	if g.TotalHeight <= 0 {
		return false
	}
	return vh/g.TotalHeight >= t.cfg.FractionThreshold
}

// closeWindow must be called with the lock held. It folds the open streak
// into the cumulative total, checks the seen threshold one last time (the
// threshold may have been crossed between polls), and returns the window
// event to emit.
func (t *Tracker) closeWindow(id domain.Identity, e *entry, now time.Time) (ev domain.VisibilityWindowEvent, closed, seenNow bool) {
	if e.visibleSince.IsZero() {
		return domain.VisibilityWindowEvent{}, false, false
	}
	streak := now.Sub(e.visibleSince)
	if streak < 0 {
		streak = 0
	}
	e.totalVisible += streak
	if !e.seenFired && e.totalVisible >= t.cfg.SeenThreshold {
		e.seenFired = true
		seenNow = true
	}

	ev = domain.VisibilityWindowEvent{
		PostID:    id,
		StartedTS: e.windowStart.UnixMilli(),
		EndTS:     now.UnixMilli(),
	}
	e.visibleSince = time.Time{}
	e.windowStart = time.Time{}
	return ev, true, seenNow
}

func (t *Tracker) emit(ctx context.Context, seen []domain.Identity, windows []domain.VisibilityWindowEvent) {
	if t.onWindow != nil {
		for _, ev := range windows {
			t.onWindow(ev)
		}
	}
	if t.onSeen != nil {
		for _, id := range seen {
			t.onSeen(ctx, id)
		}
	}
}

// Package dispatch handles the one-time processing of a post once its
// cumulative visibility crosses the seen threshold: classification,
// ad-explanation fetch for sponsored posts, and handoff to the outbound
// queue.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/news"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/reconcile"
)

// Dispatcher reacts to first-seen events from the visibility tracker.
type Dispatcher struct {
	registry *reconcile.Reconciler
	queue    domain.OutboundQueue
	news     *news.Filter
	explain  domain.ExplanationFetcher
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a dispatcher. explain may be nil when explanation fetching is
// not wired (offline replay).
func New(registry *reconcile.Reconciler, queue domain.OutboundQueue, filter *news.Filter, explain domain.ExplanationFetcher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		queue:    queue,
		news:     filter,
		explain:  explain,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleSeen processes one seen event. The callback may fire more than once
// for an identity across batches; the record is processed exactly once.
func (d *Dispatcher) HandleSeen(ctx context.Context, id domain.Identity) {
	rec, first := d.registry.MarkSeen(id, d.now())
	if !first {
		return
	}

	// Strict privacy boundary: posts not shared publicly are never
	// dispatched, regardless of visibility.
	if !rec.Privacy.IsPublic() {
		d.logger.Debug("non-public post dropped from dispatch", "identity", id, "privacy", rec.Privacy)
		return
	}

	cls, category := d.classify(rec)
	d.registry.SetClassification(id, cls, category)

	if cls == domain.ClassSponsored {
		d.fetchExplanation(ctx, rec)
	}

	// The explanation fetch awaited; re-validate before queuing.
	final, ok := d.registry.MarkDispatched(id)
	if !ok {
		return
	}
	d.queue.Enqueue(&final)

	d.logger.Info("post dispatched",
		"identity", id,
		"classification", cls,
		"source", final.Source,
		"sponsored", final.IsSponsored,
	)
}

func (d *Dispatcher) classify(rec domain.PostRecord) (domain.Classification, string) {
	if rec.IsSponsored || rec.AdID != "" {
		return domain.ClassSponsored, ""
	}
	if dom := news.DomainOf(rec.ExternalURL); dom != "" && d.news.IsNewsDomain(dom) {
		return domain.ClassNews, d.news.Category(dom)
	}
	return domain.ClassPublic, ""
}

// fetchExplanation triggers the external ad-explanation capability at most
// once per record. Failures are non-fatal and never retried from here.
func (d *Dispatcher) fetchExplanation(ctx context.Context, rec domain.PostRecord) {
	if d.explain == nil {
		return
	}
	if !d.registry.MarkExplanationTriggered(rec.Identity, d.now()) {
		return
	}

	data, err := d.explain.Fetch(ctx, string(rec.Identity), rec.AdID, rec.ClientToken)
	if err != nil {
		d.logger.Warn("explanation fetch failed", "identity", rec.Identity, "ad_id", rec.AdID, "error", err)
		return
	}
	if data == nil {
		d.logger.Debug("no explanation available", "identity", rec.Identity, "ad_id", rec.AdID)
		return
	}
	d.registry.SetExplanation(rec.Identity, data)
}

// Package reconcile owns the canonical post registry. It merges candidates
// arriving asynchronously and out of order from the network, bootstrap, and
// DOM adapters into one record per post, joining DOM sightings to records
// from stronger sources by id and then by text fingerprint.
package reconcile

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/fingerprint"
)

// looseMatchTokens is how many leading tokens the loose containment match
// compares when the exact fingerprint lookup fails. Tunable, like the
// fingerprint truncation length.
const looseMatchTokens = 3

// ElementTracker is the visibility tracker surface the reconciler drives
// when a DOM element is linked to a record.
type ElementTracker interface {
	// Track starts (or refreshes) visibility tracking of an element for an
	// identity. Re-tracking an identity with a new element keeps
	// accumulated visibility state.
	Track(id domain.Identity, elementID string)

	// Remap moves accumulated visibility state from a surrogate identity
	// to the identity that claimed it.
	Remap(oldID, newID domain.Identity)
}

// Stats is a snapshot of registry counters.
type Stats struct {
	Records      int                   `json:"records"`
	InDom        int                   `json:"in_dom"`
	Dispatched   int                   `json:"dispatched"`
	PendingDom   int                   `json:"pending_dom"`
	Fingerprints int                   `json:"fingerprints"`
	BySource     map[domain.Source]int `json:"by_source"`
	Unmatchable  int                   `json:"unmatchable"`
}

// Reconciler maps canonical post identity to PostRecord. It is safe for use
// from the subscriber and poller goroutines; all record mutation goes
// through its methods so callers never hold a record across an await.
type Reconciler struct {
	mu      sync.Mutex
	records map[domain.Identity]*domain.PostRecord
	index   *fingerprint.Index

	// pending buffers DOM sightings (as surrogate records) that matched
	// nothing yet, keyed by fingerprint, so a future non-DOM arrival can
	// claim them immediately on creation.
	pending map[string][]domain.Identity

	// aliases maps retired surrogate identities to the record that claimed
	// them, so callbacks still holding the old identity across an await
	// reach the merged record.
	aliases map[domain.Identity]domain.Identity

	tracker     ElementTracker
	logger      *slog.Logger
	now         func() time.Time
	unmatchable int
}

// New creates an empty reconciler. tracker may be nil when visibility
// tracking is not wired (e.g. offline replay without geometry).
func New(tracker ElementTracker, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		records: make(map[domain.Identity]*domain.PostRecord),
		index:   fingerprint.NewIndex(),
		pending: make(map[string][]domain.Identity),
		aliases: make(map[domain.Identity]domain.Identity),
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit merges a candidate from an adapter into the registry and returns
// the identity of the record it ended up in.
func (r *Reconciler) Submit(c domain.Candidate, src domain.Source) domain.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if c.StrongID != "" {
		id := domain.Identity(c.StrongID)
		rec, ok := r.records[id]
		if ok {
			r.merge(rec, c, now)
		} else {
			rec = r.create(id, c, src, now)
			r.claimPending(rec)
		}
		r.register(rec)
		return rec.Identity
	}

	if fp, ok := fingerprint.Build(c.AuthorName, c.GroupName, c.Message); ok {
		if rec := r.matchExisting(fp, c); rec != nil {
			r.merge(rec, c, now)
			r.register(rec)
			return rec.Identity
		}
	}

	// No identity and no match: the sighting stands alone under a
	// surrogate identity. When it has a fingerprint it is also buffered so
	// a later non-DOM arrival claims it without a second DOM mutation.
	rec := r.create(domain.NewSurrogateIdentity(), c, src, now)
	if rec.MatchFingerprint != "" {
		r.pending[rec.MatchFingerprint] = append(r.pending[rec.MatchFingerprint], rec.Identity)
		r.register(rec)
	} else {
		r.unmatchable++
		r.logger.Debug("unmatchable sighting", "identity", rec.Identity, "source", src)
	}
	return rec.Identity
}

// matchExisting resolves a candidate without a strong identity against the
// registry: exact fingerprint lookup first, then the loose token-prefix
// match. Both favor recall; a collision between genuinely distinct posts is
// an accepted tradeoff.
func (r *Reconciler) matchExisting(fp string, c domain.Candidate) *domain.PostRecord {
	if rec := r.pickCandidate(r.index.Candidates(fp), c); rec != nil {
		return rec
	}

	if !fingerprint.IsMessageBased(fp) {
		return nil
	}
	tokens := fingerprint.PrefixTokens(fp, looseMatchTokens)
	if len(tokens) < looseMatchTokens {
		return nil
	}
	prefix := strings.Join(tokens, " ")

	var ids []domain.Identity
	for id, rec := range r.records {
		if !fingerprint.IsMessageBased(rec.MatchFingerprint) {
			continue
		}
		// Message text can be truncated inconsistently between sources, so
		// compare leading tokens in both directions.
		recTokens := fingerprint.PrefixTokens(rec.MatchFingerprint, looseMatchTokens)
		if len(recTokens) < looseMatchTokens {
			continue
		}
		if prefix != strings.Join(recTokens, " ") {
			continue
		}
		if !consistentField(c.AuthorName, rec.AuthorName) || !consistentField(c.GroupName, rec.GroupName) {
			continue
		}
		ids = append(ids, id)
	}
	return r.pickCandidate(ids, c)
}

// pickCandidate chooses the match target among candidate identities. A DOM
// sighting prefers a record lacking a DOM link; a record that already has
// one is only reused as a re-sighting of the same post (the platform
// recycles nodes). Earliest-detected wins so matching is deterministic.
func (r *Reconciler) pickCandidate(ids []domain.Identity, c domain.Candidate) *domain.PostRecord {
	var unlinked, linked *domain.PostRecord
	for _, id := range ids {
		rec, ok := r.records[id]
		if !ok {
			continue
		}
		if c.ElementID != "" && rec.InDom {
			if linked == nil || earlier(rec, linked) {
				linked = rec
			}
			continue
		}
		if unlinked == nil || earlier(rec, unlinked) {
			unlinked = rec
		}
	}
	if unlinked != nil {
		return unlinked
	}
	return linked
}

func earlier(a, b *domain.PostRecord) bool {
	if !a.DetectedAt.Equal(b.DetectedAt) {
		return a.DetectedAt.Before(b.DetectedAt)
	}
	return a.Identity < b.Identity
}

func consistentField(a, b string) bool {
	na, nb := fingerprint.Normalize(a), fingerprint.Normalize(b)
	if na == "" || nb == "" {
		return true
	}
	return na == nb
}

// merge fills a record's empty fields from a candidate. Existing non-empty
// fields win. A candidate carrying an element reference links the record
// into the DOM.
func (r *Reconciler) merge(rec *domain.PostRecord, c domain.Candidate, now time.Time) {
	if rec.Message == "" {
		rec.Message = c.Message
	}
	if rec.AuthorName == "" {
		rec.AuthorName = c.AuthorName
	}
	if rec.GroupName == "" {
		rec.GroupName = c.GroupName
	}
	if rec.ExternalURL == "" {
		rec.ExternalURL = c.ExternalURL
	}
	if rec.Privacy == "" {
		rec.Privacy = c.Privacy
	}
	if c.AdID != "" && rec.AdID == "" {
		rec.AdID = c.AdID
		rec.ClientToken = c.ClientToken
	}
	if c.IsSponsored || rec.AdID != "" {
		rec.IsSponsored = true
	}
	r.refreshFingerprint(rec)
	if c.ElementID != "" {
		r.linkDom(rec, c.ElementID, now)
	}
}

// refreshFingerprint recomputes a record's fingerprint after a merge filled
// text fields in. The old index entry is dropped so it cannot steer future
// matches to a key the record no longer carries.
func (r *Reconciler) refreshFingerprint(rec *domain.PostRecord) {
	fp, ok := fingerprint.Build(rec.AuthorName, rec.GroupName, rec.Message)
	if !ok || fp == rec.MatchFingerprint {
		return
	}
	r.index.Remove(rec.MatchFingerprint, rec.Identity)
	rec.MatchFingerprint = fp
}

func (r *Reconciler) linkDom(rec *domain.PostRecord, elementID string, now time.Time) {
	if !rec.InDom {
		rec.InDom = true
		rec.DomFoundAt = now
	}
	rec.ElementID = elementID
	if r.tracker != nil {
		r.tracker.Track(rec.Identity, elementID)
	}
}

// claimPending is the symmetric half of the pending-match step: a freshly
// created non-DOM record checks the buffer for a sighting that arrived
// first. The surrogate record is folded into the new one and retired; its
// identity stays resolvable as an alias.
func (r *Reconciler) claimPending(rec *domain.PostRecord) {
	if rec.InDom || rec.MatchFingerprint == "" {
		return
	}
	ids := r.pending[rec.MatchFingerprint]
	if len(ids) == 0 {
		return
	}
	sid := ids[0]
	if len(ids) == 1 {
		delete(r.pending, rec.MatchFingerprint)
	} else {
		r.pending[rec.MatchFingerprint] = ids[1:]
	}

	sur, ok := r.records[sid]
	if !ok {
		return
	}

	if rec.Message == "" {
		rec.Message = sur.Message
	}
	if rec.AuthorName == "" {
		rec.AuthorName = sur.AuthorName
	}
	if rec.GroupName == "" {
		rec.GroupName = sur.GroupName
	}
	if rec.ExternalURL == "" {
		rec.ExternalURL = sur.ExternalURL
	}
	if rec.Privacy == "" {
		rec.Privacy = sur.Privacy
	}
	// A buffered surrogate is not necessarily a DOM sighting: network or
	// bootstrap nodes without an id land in the buffer too. Only a surrogate
	// that actually carried an element links the merged record into the DOM.
	if sur.InDom {
		rec.InDom = true
		rec.DomFoundAt = sur.DomFoundAt
		rec.ElementID = sur.ElementID
	}
	rec.VisibleWindows = append(rec.VisibleWindows, sur.VisibleWindows...)
	if rec.VisibleAt.IsZero() {
		rec.VisibleAt = sur.VisibleAt
		rec.SeenAt = sur.SeenAt
	}
	if rec.Classification == "" {
		rec.Classification = sur.Classification
		rec.NewsCategory = sur.NewsCategory
	}
	if rec.ExplanationTriggeredAt.IsZero() {
		rec.ExplanationTriggeredAt = sur.ExplanationTriggeredAt
	}
	if rec.Explanation == nil {
		rec.Explanation = sur.Explanation
	}
	// If the sighting was already dispatched as a standalone record, the
	// merged record must not be queued a second time.
	if sur.Dispatched {
		rec.Dispatched = true
	}
	r.refreshFingerprint(rec)

	r.index.Remove(sur.MatchFingerprint, sid)
	delete(r.records, sid)
	r.aliases[sid] = rec.Identity

	if r.tracker != nil {
		r.tracker.Remap(sid, rec.Identity)
		if rec.ElementID != "" {
			r.tracker.Track(rec.Identity, rec.ElementID)
		}
	}

	r.logger.Debug("claimed pending sighting",
		"identity", rec.Identity,
		"surrogate", sid,
		"fingerprint", rec.MatchFingerprint,
	)
}

func (r *Reconciler) create(id domain.Identity, c domain.Candidate, src domain.Source, now time.Time) *domain.PostRecord {
	rec := &domain.PostRecord{
		Identity:    id,
		Message:     c.Message,
		AuthorName:  c.AuthorName,
		GroupName:   c.GroupName,
		ExternalURL: c.ExternalURL,
		Privacy:     c.Privacy,
		AdID:        c.AdID,
		ClientToken: c.ClientToken,
		IsSponsored: c.IsSponsored || c.AdID != "",
		Source:      src,
		DetectedAt:  now,
	}
	if fp, ok := fingerprint.Build(rec.AuthorName, rec.GroupName, rec.Message); ok {
		rec.MatchFingerprint = fp
	}
	if c.ElementID != "" {
		r.linkDom(rec, c.ElementID, now)
	}
	r.records[id] = rec
	return rec
}

func (r *Reconciler) register(rec *domain.PostRecord) {
	r.index.Add(rec.MatchFingerprint, rec.Identity)
}

package reconcile

import (
	"time"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
)

// resolve follows surrogate claims, with the lock held. A seen callback or
// an in-flight dispatch can hold a surrogate identity that was retired while
// it awaited; the alias chain leads to the record that absorbed it.
func (r *Reconciler) resolve(id domain.Identity) domain.Identity {
	for {
		next, ok := r.aliases[id]
		if !ok {
			return id
		}
		id = next
	}
}

// Get returns a copy of the record for an identity. Callers never receive a
// pointer into the registry; any multi-step logic that awaits in between
// must re-validate through MarkDispatched and friends.
func (r *Reconciler) Get(id domain.Identity) (domain.PostRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[r.resolve(id)]
	if !ok {
		return domain.PostRecord{}, false
	}
	return *rec, true
}

// MarkSeen records the first-threshold-crossing timestamps. The second
// return is false when the record was already seen, which makes the seen
// callback idempotent per identity.
func (r *Reconciler) MarkSeen(id domain.Identity, at time.Time) (domain.PostRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[r.resolve(id)]
	if !ok {
		return domain.PostRecord{}, false
	}
	if !rec.VisibleAt.IsZero() {
		return *rec, false
	}
	rec.VisibleAt = at
	rec.SeenAt = at
	return *rec, true
}

// SetClassification stores the dispatch category decided for a seen record.
func (r *Reconciler) SetClassification(id domain.Identity, cls domain.Classification, newsCategory string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[r.resolve(id)]; ok {
		rec.Classification = cls
		rec.NewsCategory = newsCategory
	}
}

// MarkExplanationTriggered latches the explanation-fetch trigger. It
// returns true only the first time, so the fetch is never retried from the
// dispatch layer.
func (r *Reconciler) MarkExplanationTriggered(id domain.Identity, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[r.resolve(id)]
	if !ok || !rec.ExplanationTriggeredAt.IsZero() {
		return false
	}
	rec.ExplanationTriggeredAt = at
	return true
}

// SetExplanation attaches fetched explanation data to a record.
func (r *Reconciler) SetExplanation(id domain.Identity, data *domain.ExplanationData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[r.resolve(id)]; ok {
		rec.Explanation = data
	}
}

// MarkDispatched flips the dispatched flag false to true exactly once and
// returns a copy of the record to hand to the outbound queue. The second
// return is false when the record was already dispatched (or unknown).
func (r *Reconciler) MarkDispatched(id domain.Identity) (domain.PostRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[r.resolve(id)]
	if !ok || rec.Dispatched {
		return domain.PostRecord{}, false
	}
	rec.Dispatched = true
	return *rec, true
}

// AppendVisibleWindow adds a closed exposure to the record's window list.
func (r *Reconciler) AppendVisibleWindow(id domain.Identity, w domain.VisibleWindow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[r.resolve(id)]; ok {
		rec.VisibleWindows = append(rec.VisibleWindows, w)
	}
}

// Stats returns a snapshot of registry counters.
func (r *Reconciler) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		Records:      len(r.records),
		Fingerprints: r.index.Len(),
		Unmatchable:  r.unmatchable,
		BySource:     make(map[domain.Source]int, 3),
	}
	for _, ids := range r.pending {
		s.PendingDom += len(ids)
	}
	for _, rec := range r.records {
		if rec.InDom {
			s.InDom++
		}
		if rec.Dispatched {
			s.Dispatched++
		}
		s.BySource[rec.Source]++
	}
	return s
}

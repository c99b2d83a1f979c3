package reconcile

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
)

type fakeTracker struct {
	tracked map[domain.Identity]string
	remaps  [][2]domain.Identity
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{tracked: make(map[domain.Identity]string)}
}

func (f *fakeTracker) Track(id domain.Identity, elementID string) {
	f.tracked[id] = elementID
}

func (f *fakeTracker) Remap(oldID, newID domain.Identity) {
	f.remaps = append(f.remaps, [2]domain.Identity{oldID, newID})
	if el, ok := f.tracked[oldID]; ok {
		delete(f.tracked, oldID)
		f.tracked[newID] = el
	}
}

func newTestReconciler(t *testing.T) (*Reconciler, *fakeTracker) {
	t.Helper()
	tracker := newFakeTracker()
	r := New(tracker, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return r, tracker
}

func TestSubmitMergesByStrongIdentity(t *testing.T) {
	r, _ := newTestReconciler(t)

	id := r.Submit(domain.Candidate{
		StrongID:    "123",
		Message:     "Breaking: markets rally today as tech stocks surge",
		AdID:        "A1",
		ClientToken: "tok",
	}, domain.SourceNetwork)
	require.Equal(t, domain.Identity("123"), id)

	// Same post from the bootstrap blob, with fields the network payload
	// lacked.
	id2 := r.Submit(domain.Candidate{
		StrongID:    "123",
		AuthorName:  "Daily Times",
		ExternalURL: "https://www.nytimes.com/article",
	}, domain.SourceBootstrap)
	assert.Equal(t, id, id2)

	rec, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Daily Times", rec.AuthorName)
	assert.Equal(t, "https://www.nytimes.com/article", rec.ExternalURL)
	assert.Equal(t, "A1", rec.AdID)
	assert.True(t, rec.IsSponsored)
	assert.Equal(t, domain.SourceNetwork, rec.Source, "source records the first adapter")
	assert.Equal(t, 1, r.Stats().Records, "exactly one record for one strong identity")
}

func TestSubmitExistingFieldsWin(t *testing.T) {
	r, _ := newTestReconciler(t)

	r.Submit(domain.Candidate{StrongID: "9", AuthorName: "Original"}, domain.SourceNetwork)
	r.Submit(domain.Candidate{StrongID: "9", AuthorName: "Other"}, domain.SourceBootstrap)

	rec, _ := r.Get("9")
	assert.Equal(t, "Original", rec.AuthorName)
}

func TestDomSightingLinksByFingerprint(t *testing.T) {
	r, tracker := newTestReconciler(t)

	r.Submit(domain.Candidate{
		StrongID: "123",
		Message:  "Breaking: markets rally today as tech stocks surge",
		AdID:     "A1",
	}, domain.SourceNetwork)

	id := r.Submit(domain.Candidate{
		Message:   "Breaking: markets rally today as tech stocks surge",
		ElementID: "el-1",
	}, domain.SourceDom)

	assert.Equal(t, domain.Identity("123"), id)
	rec, _ := r.Get("123")
	assert.True(t, rec.InDom)
	assert.False(t, rec.DomFoundAt.IsZero())
	assert.Equal(t, "el-1", rec.ElementID)
	assert.True(t, rec.IsSponsored, "classification stays sponsored after the link")
	assert.Equal(t, "el-1", tracker.tracked["123"])
	assert.Equal(t, 1, r.Stats().Records)
}

func TestLooseMatchOnTruncatedMessage(t *testing.T) {
	r, _ := newTestReconciler(t)

	r.Submit(domain.Candidate{
		StrongID:   "55",
		AuthorName: "Wire Desk",
		Message:    "Breaking markets rally after surprise central bank move shakes traders",
	}, domain.SourceNetwork)

	// DOM copy is truncated differently, so the 48-rune fingerprints
	// differ, but the first three tokens agree.
	id := r.Submit(domain.Candidate{
		AuthorName: "Wire Desk",
		Message:    "Breaking markets rally after surprise…",
		ElementID:  "el-9",
	}, domain.SourceDom)

	assert.Equal(t, domain.Identity("55"), id)
	rec, _ := r.Get("55")
	assert.True(t, rec.InDom)
}

func TestLooseMatchRejectsInconsistentAuthor(t *testing.T) {
	r, _ := newTestReconciler(t)

	r.Submit(domain.Candidate{
		StrongID:   "55",
		AuthorName: "Wire Desk",
		Message:    "Breaking markets rally after surprise central bank move",
	}, domain.SourceNetwork)

	id := r.Submit(domain.Candidate{
		AuthorName: "Somebody Else",
		Message:    "Breaking markets rally but a different story entirely here",
		ElementID:  "el-2",
	}, domain.SourceDom)

	assert.NotEqual(t, domain.Identity("55"), id)
	assert.True(t, id.IsSurrogate())
}

func TestPendingDomSightingClaimedByLaterArrival(t *testing.T) {
	r, tracker := newTestReconciler(t)

	// DOM first: no identity anywhere yet, so the sighting is buffered
	// under a surrogate.
	sid := r.Submit(domain.Candidate{
		Message:   "City council approves the new transit plan",
		ElementID: "el-7",
	}, domain.SourceDom)
	require.True(t, sid.IsSurrogate())
	assert.Equal(t, 1, r.Stats().PendingDom)

	// The network record arrives afterwards and must claim the sighting
	// without a second DOM mutation.
	id := r.Submit(domain.Candidate{
		StrongID:    "777",
		Message:     "City council approves the new transit plan",
		ExternalURL: "https://apnews.com/article",
	}, domain.SourceNetwork)

	rec, ok := r.Get(id)
	require.True(t, ok)
	assert.True(t, rec.InDom)
	assert.Equal(t, "el-7", rec.ElementID)
	assert.Equal(t, 0, r.Stats().PendingDom)

	// The surrogate identity stays reachable as an alias, so a callback
	// still holding it lands on the merged record.
	aliased, ok := r.Get(sid)
	require.True(t, ok)
	assert.Equal(t, domain.Identity("777"), aliased.Identity)

	require.Len(t, tracker.remaps, 1)
	assert.Equal(t, [2]domain.Identity{sid, "777"}, tracker.remaps[0])
	assert.Equal(t, "el-7", tracker.tracked["777"])
}

func TestClaimedNonDomSurrogateDoesNotLinkDom(t *testing.T) {
	r, tracker := newTestReconciler(t)

	// A network node without an extractable id is buffered just like a DOM
	// sighting, but it never saw an element.
	sid := r.Submit(domain.Candidate{
		Message: "Quarterly results beat every analyst estimate",
	}, domain.SourceNetwork)
	require.True(t, sid.IsSurrogate())

	id := r.Submit(domain.Candidate{
		StrongID: "900",
		Message:  "Quarterly results beat every analyst estimate",
	}, domain.SourceBootstrap)

	rec, ok := r.Get(id)
	require.True(t, ok)
	assert.False(t, rec.InDom, "no DOM sighting was ever linked")
	assert.Empty(t, rec.ElementID)
	assert.True(t, rec.DomFoundAt.IsZero())
	assert.Empty(t, tracker.tracked)
}

func TestDispatchFollowsClaimAcrossInterleave(t *testing.T) {
	r, _ := newTestReconciler(t)

	sid := r.Submit(domain.Candidate{
		Message:   "Flash sale ends tonight at midnight sharp",
		ElementID: "el-5",
	}, domain.SourceDom)

	// The seen callback read the surrogate; a strong-id arrival claims it
	// before the dispatcher gets to the dispatched flag.
	_, first := r.MarkSeen(sid, time.Now())
	require.True(t, first)

	r.Submit(domain.Candidate{
		StrongID: "888",
		Message:  "Flash sale ends tonight at midnight sharp",
		AdID:     "A5",
	}, domain.SourceNetwork)

	rec, ok := r.MarkDispatched(sid)
	require.True(t, ok, "the retired identity must still reach the merged record")
	assert.Equal(t, domain.Identity("888"), rec.Identity)
	assert.Equal(t, "A5", rec.AdID)
	assert.True(t, rec.InDom)

	_, again := r.MarkDispatched("888")
	assert.False(t, again, "the claim must not reopen the dispatch guard")
}

func TestMergeReindexesChangedFingerprint(t *testing.T) {
	r, _ := newTestReconciler(t)

	// Author-only fingerprint first; a later payload fills the message in
	// and the record's join key becomes message-based.
	r.Submit(domain.Candidate{StrongID: "1", AuthorName: "Alice"}, domain.SourceNetwork)
	r.Submit(domain.Candidate{
		StrongID:   "1",
		AuthorName: "Alice",
		Message:    "A long update about the garden this spring",
	}, domain.SourceBootstrap)

	// A different author-only post from Alice must not be steered into
	// record 1 by the stale author fingerprint.
	id := r.Submit(domain.Candidate{AuthorName: "Alice", ElementID: "el-a"}, domain.SourceDom)
	assert.True(t, id.IsSurrogate())

	rec, _ := r.Get("1")
	assert.False(t, rec.InDom)
}

func TestPendingClaimInheritsDispatchGuard(t *testing.T) {
	r, _ := newTestReconciler(t)

	sid := r.Submit(domain.Candidate{
		Message:   "Standalone story that got dispatched early",
		ElementID: "el-3",
	}, domain.SourceDom)
	_, first := r.MarkDispatched(sid)
	require.True(t, first)

	id := r.Submit(domain.Candidate{
		StrongID: "42",
		Message:  "Standalone story that got dispatched early",
	}, domain.SourceNetwork)

	rec, _ := r.Get(id)
	assert.True(t, rec.Dispatched, "already-sent content must not be queued twice")
}

func TestUnmatchableSightingStandsAlone(t *testing.T) {
	r, _ := newTestReconciler(t)

	id := r.Submit(domain.Candidate{ElementID: "el-0"}, domain.SourceDom)
	require.True(t, id.IsSurrogate())

	s := r.Stats()
	assert.Equal(t, 1, s.Records)
	assert.Equal(t, 0, s.PendingDom)
	assert.Equal(t, 1, s.Unmatchable)
}

func TestResightingRefreshesElementPointer(t *testing.T) {
	r, tracker := newTestReconciler(t)

	r.Submit(domain.Candidate{StrongID: "5", Message: "A story about something quite specific"}, domain.SourceNetwork)
	r.Submit(domain.Candidate{Message: "A story about something quite specific", ElementID: "el-a"}, domain.SourceDom)

	// The platform recycled the node; the same post shows up under a new
	// element id.
	id := r.Submit(domain.Candidate{Message: "A story about something quite specific", ElementID: "el-b"}, domain.SourceDom)

	assert.Equal(t, domain.Identity("5"), id)
	rec, _ := r.Get("5")
	assert.Equal(t, "el-b", rec.ElementID)
	assert.Equal(t, "el-b", tracker.tracked["5"])
	assert.Equal(t, 1, r.Stats().Records)
}

func TestFingerprintCollisionMergesByDesign(t *testing.T) {
	r, _ := newTestReconciler(t)

	// Two genuinely distinct posts with identical fingerprints merge; the
	// recall-favoring policy accepts this.
	r.Submit(domain.Candidate{StrongID: "1", Message: "Good morning"}, domain.SourceNetwork)
	id := r.Submit(domain.Candidate{Message: "Good morning", ElementID: "el-x"}, domain.SourceDom)

	assert.Equal(t, domain.Identity("1"), id)
}

func TestMarkSeenIdempotent(t *testing.T) {
	r, _ := newTestReconciler(t)
	r.Submit(domain.Candidate{StrongID: "8", Message: "hello world"}, domain.SourceNetwork)

	at := time.Now()
	rec, first := r.MarkSeen("8", at)
	require.True(t, first)
	assert.Equal(t, at, rec.VisibleAt)

	_, again := r.MarkSeen("8", at.Add(time.Second))
	assert.False(t, again)

	rec, _ = r.Get("8")
	assert.Equal(t, at, rec.VisibleAt, "first timestamp is kept")
}

func TestMarkDispatchedOnce(t *testing.T) {
	r, _ := newTestReconciler(t)
	r.Submit(domain.Candidate{StrongID: "8", Message: "hello world"}, domain.SourceNetwork)

	_, ok := r.MarkDispatched("8")
	require.True(t, ok)
	_, ok = r.MarkDispatched("8")
	assert.False(t, ok)
	_, ok = r.MarkDispatched("unknown")
	assert.False(t, ok)
}

func TestMarkExplanationTriggeredOnce(t *testing.T) {
	r, _ := newTestReconciler(t)
	r.Submit(domain.Candidate{StrongID: "8", AdID: "A1"}, domain.SourceNetwork)

	assert.True(t, r.MarkExplanationTriggered("8", time.Now()))
	assert.False(t, r.MarkExplanationTriggered("8", time.Now()))
}

func TestAppendVisibleWindow(t *testing.T) {
	r, _ := newTestReconciler(t)
	r.Submit(domain.Candidate{StrongID: "8", Message: "hello world"}, domain.SourceNetwork)

	r.AppendVisibleWindow("8", domain.VisibleWindow{StartedTS: 100, EndTS: 300})
	r.AppendVisibleWindow("8", domain.VisibleWindow{StartedTS: 500, EndTS: 600})

	rec, _ := r.Get("8")
	require.Len(t, rec.VisibleWindows, 2)
	assert.Less(t, rec.VisibleWindows[0].EndTS, rec.VisibleWindows[1].StartedTS)
}

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source identifies which adapter first created a record. It is kept for
// stats only and never blocks merging.
type Source string

const (
	SourceNetwork   Source = "network"
	SourceBootstrap Source = "bootstrap"
	SourceDom       Source = "dom"
)

// Identity is the canonical key of a reconciled post. Platform-assigned
// numeric ids are used verbatim when known; records that have only ever been
// sighted in the DOM carry a surrogate id until a stronger source claims them.
type Identity string

const surrogatePrefix = "surrogate:"

// NewSurrogateIdentity mints an identity for a record that has no
// platform-assigned id.
func NewSurrogateIdentity() Identity {
	return Identity(surrogatePrefix + uuid.NewString())
}

// IsSurrogate reports whether the identity was minted locally rather than
// assigned by the platform.
func (id Identity) IsSurrogate() bool {
	return strings.HasPrefix(string(id), surrogatePrefix)
}

// PrivacyScope is the audience description scraped from a post
// (e.g. "Public", "Shared with Public", "Friends", "Only me").
type PrivacyScope string

// IsPublic reports whether the post is shared with a public audience.
// An unknown scope counts as public; sponsored content is almost always
// public and dropping on uncertainty would lose it.
func (p PrivacyScope) IsPublic() bool {
	if p == "" {
		return true
	}
	return strings.Contains(strings.ToLower(string(p)), "public")
}

// Classification is the dispatch category of a seen post.
type Classification string

const (
	ClassSponsored Classification = "sponsored"
	ClassNews      Classification = "news"
	ClassPublic    Classification = "public"
)

// VisibleWindow is one closed on-screen exposure, in unix milliseconds.
type VisibleWindow struct {
	StartedTS int64 `json:"started_ts"`
	EndTS     int64 `json:"end_ts"`
}

// VisibilityWindowEvent is emitted every time a visible window closes,
// including exposures that never reached the seen threshold.
type VisibilityWindowEvent struct {
	PostID    Identity `json:"post_id"`
	StartedTS int64    `json:"started_ts"`
	EndTS     int64    `json:"end_ts"`
}

// ExplanationData is the result of an ad-explanation fetch.
type ExplanationData struct {
	Text        string   `json:"text"`
	Reasons     []string `json:"reasons"`
	Advertisers []string `json:"advertisers"`
}

// PostRecord is the canonical reconciled representation of one feed item.
// It is created on the first sighting from any adapter and mutated as more
// sources report; it is never deleted for the lifetime of a page session.
type PostRecord struct {
	Identity Identity `json:"identity"`

	Message     string `json:"message,omitempty"`
	AuthorName  string `json:"author_name,omitempty"`
	GroupName   string `json:"group_name,omitempty"`
	ExternalURL string `json:"external_url,omitempty"`

	Privacy PrivacyScope `json:"privacy,omitempty"`

	// IsSponsored is true iff an ad identifier is present.
	IsSponsored bool   `json:"is_sponsored"`
	AdID        string `json:"ad_id,omitempty"`
	ClientToken string `json:"client_token,omitempty"`

	// Source is the first adapter that created this entry.
	Source     Source    `json:"source"`
	DetectedAt time.Time `json:"detected_at"`

	// InDom is set once a DOM sighting has been linked to this record.
	InDom      bool      `json:"in_dom"`
	DomFoundAt time.Time `json:"dom_found_at,omitzero"`
	ElementID  string    `json:"element_id,omitempty"`

	// VisibleAt and SeenAt are set the first time cumulative visible time
	// crosses the seen threshold.
	VisibleAt time.Time `json:"visible_at,omitzero"`
	SeenAt    time.Time `json:"seen_at,omitzero"`

	// VisibleWindows are closed exposures, chronologically ordered and
	// non-overlapping. The currently open window, if any, lives in the
	// visibility tracker until it closes.
	VisibleWindows []VisibleWindow `json:"visible_windows,omitempty"`

	Classification Classification `json:"classification,omitempty"`
	NewsCategory   string         `json:"news_category,omitempty"`

	// Dispatched transitions false to true exactly once, when the record
	// is handed to the outbound queue.
	Dispatched bool `json:"dispatched"`

	ExplanationTriggeredAt time.Time        `json:"explanation_triggered_at,omitzero"`
	Explanation            *ExplanationData `json:"explanation,omitempty"`

	// MatchFingerprint is the normalized text key used to join this record
	// across sources when no shared numeric id exists.
	MatchFingerprint string `json:"match_fingerprint,omitempty"`
}

// Candidate is the normalized shape every source adapter emits to the
// reconciler. Raw payload dialects never leak past the adapter boundary.
type Candidate struct {
	// StrongID is the platform-assigned post id, empty when the source
	// could not extract one (typical for DOM sightings).
	StrongID string

	Message     string
	AuthorName  string
	GroupName   string
	ExternalURL string

	Privacy PrivacyScope

	IsSponsored bool
	AdID        string
	ClientToken string

	// ElementID references the observed DOM element; set only by the DOM
	// adapter.
	ElementID string
}

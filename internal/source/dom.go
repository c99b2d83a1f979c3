package source

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
)

// DomSighting is one scraped feed element, as reported by the capture side.
// DOM sightings rarely carry a platform id; they are joined to the other
// sources by text fingerprint.
type DomSighting struct {
	ElementID string `json:"element_id"`
	StrongID  string `json:"post_id,omitempty"`

	Message    string `json:"message"`
	AuthorName string `json:"author_name"`
	GroupName  string `json:"group_name"`
	URL        string `json:"url"`
	Privacy    string `json:"privacy"`

	// HasToolbar marks the like/comment/share row, the most reliable
	// structural signal that an element is a real post and not chrome.
	HasToolbar bool `json:"has_toolbar"`

	// SponsoredLabel is the scraped "Sponsored" marker text, when present.
	SponsoredLabel string `json:"sponsored_label,omitempty"`
}

// looksLikePost filters feed chrome and fragments: a real post has an
// author or group attribution plus either body text or the action toolbar.
func (s DomSighting) looksLikePost() bool {
	attributed := strings.TrimSpace(s.AuthorName) != "" || strings.TrimSpace(s.GroupName) != ""
	return attributed && (strings.TrimSpace(s.Message) != "" || s.HasToolbar)
}

// DomStats is a snapshot of DOM adapter counters.
type DomStats struct {
	Sightings int `json:"sightings"`
	Submitted int `json:"submitted"`
	Rejected  int `json:"rejected"`
	Repeats   int `json:"repeats"`
}

// Dom normalizes scraped feed elements. The same element is re-reported on
// every mutation pass; element ids dedup that while still refreshing the
// element pointer in the reconciler.
type Dom struct {
	mu        sync.Mutex
	seen      map[string]struct{}
	submitter Submitter
	logger    *slog.Logger
	stats     DomStats
}

// NewDom creates the DOM adapter.
func NewDom(submitter Submitter, logger *slog.Logger) *Dom {
	return &Dom{
		seen:      make(map[string]struct{}),
		submitter: submitter,
		logger:    logger,
	}
}

// HandleSighting submits one scraped element. Repeats of a known element
// are still submitted (the reconciler refreshes the element pointer) but
// counted separately.
func (d *Dom) HandleSighting(s DomSighting) domain.Identity {
	d.mu.Lock()
	d.stats.Sightings++
	if s.ElementID == "" || !s.looksLikePost() {
		d.stats.Rejected++
		d.mu.Unlock()
		d.logger.Debug("dom sighting rejected", "element", s.ElementID)
		return ""
	}
	if _, repeat := d.seen[s.ElementID]; repeat {
		d.stats.Repeats++
	} else {
		d.seen[s.ElementID] = struct{}{}
		d.stats.Submitted++
	}
	d.mu.Unlock()

	return d.submitter.Submit(domain.Candidate{
		StrongID:    s.StrongID,
		Message:     strings.TrimSpace(s.Message),
		AuthorName:  strings.TrimSpace(s.AuthorName),
		GroupName:   strings.TrimSpace(s.GroupName),
		ExternalURL: s.URL,
		Privacy:     domain.PrivacyScope(s.Privacy),
		IsSponsored: s.SponsoredLabel != "",
		ElementID:   s.ElementID,
	}, domain.SourceDom)
}

// Stats returns a snapshot of adapter counters.
func (d *Dom) Stats() DomStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

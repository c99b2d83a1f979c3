// Package source normalizes the three capture payload dialects (network
// interception, bootstrap blob, DOM scrape) into candidates for the
// reconciler. Raw shapes never leak past this package.
package source

import (
	"strings"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
)

// Submitter is the reconciler surface the adapters feed into.
type Submitter interface {
	Submit(c domain.Candidate, src domain.Source) domain.Identity
}

// storyNode is the raw post shape shared by the network and bootstrap
// dialects. Field availability varies wildly between payloads; everything
// here is best-effort.
type storyNode struct {
	ID      string `json:"id"`
	PostID  string `json:"post_id"`
	Message string `json:"message"`
	Author  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"author"`
	Group struct {
		Name string `json:"name"`
	} `json:"group"`
	URL     string `json:"url"`
	Privacy string `json:"privacy"`
	Ad      struct {
		AdID        string `json:"ad_id"`
		ClientToken string `json:"client_token"`
	} `json:"ad"`
}

// strongID prefers the feed-level post id over the node id.
func (n storyNode) strongID() string {
	if n.PostID != "" {
		return n.PostID
	}
	return n.ID
}

// candidate converts the raw node to the reconciler's normalized shape.
func (n storyNode) candidate() domain.Candidate {
	return domain.Candidate{
		StrongID:    n.strongID(),
		Message:     strings.TrimSpace(n.Message),
		AuthorName:  strings.TrimSpace(n.Author.Name),
		GroupName:   strings.TrimSpace(n.Group.Name),
		ExternalURL: n.URL,
		Privacy:     domain.PrivacyScope(n.Privacy),
		IsSponsored: n.Ad.AdID != "",
		AdID:        n.Ad.AdID,
		ClientToken: n.Ad.ClientToken,
	}
}

// usable reports whether the node carries enough to be worth reconciling.
// A node with neither an id nor any text is noise.
func (n storyNode) usable() bool {
	return n.strongID() != "" ||
		strings.TrimSpace(n.Message) != "" ||
		strings.TrimSpace(n.Author.Name) != "" ||
		strings.TrimSpace(n.Group.Name) != ""
}

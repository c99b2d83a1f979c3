// Package news decides whether a post links out to a known news organization
// and assigns a coarse category used in outbound records.
package news

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Domain is one entry of the news-domain table.
type Domain struct {
	Domain   string `yaml:"domain"`
	Category string `yaml:"category"`
}

type tableFile struct {
	Domains []Domain `yaml:"domains"`
}

// Filter matches external link domains against the news-domain table.
type Filter struct {
	categories map[string]string // normalized domain -> category
}

// NewFilter returns a filter seeded with the built-in domain table.
func NewFilter() *Filter {
	f := &Filter{categories: make(map[string]string, len(defaultDomains))}
	for _, d := range defaultDomains {
		f.Add(d.Domain, d.Category)
	}
	return f
}

// LoadFile merges a YAML domain table into the filter. Entries for a domain
// already present override the built-in category.
func (f *Filter) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read news domains: %w", err)
	}
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("parse news domains: %w", err)
	}
	for _, d := range tf.Domains {
		f.Add(d.Domain, d.Category)
	}
	return nil
}

// Add registers a domain. An empty category falls back to "other".
func (f *Filter) Add(domain, category string) {
	norm := normalizeDomain(domain)
	if norm == "" {
		return
	}
	if category == "" {
		category = "other"
	}
	f.categories[norm] = category
}

// IsNewsDomain reports whether the domain, or a parent domain, is in the
// table. Subdomains of a listed domain match (edition.cnn.com counts as
// cnn.com).
func (f *Filter) IsNewsDomain(domain string) bool {
	_, ok := f.lookup(domain)
	return ok
}

// Category returns the category for a news domain, or "" when the domain is
// not in the table.
func (f *Filter) Category(domain string) string {
	cat, _ := f.lookup(domain)
	return cat
}

// IsNewsURL reports whether a raw URL points at a known news domain.
func (f *Filter) IsNewsURL(rawURL string) bool {
	return f.IsNewsDomain(DomainOf(rawURL))
}

// Len returns the number of domains in the table.
func (f *Filter) Len() int {
	return len(f.categories)
}

func (f *Filter) lookup(domain string) (string, bool) {
	norm := normalizeDomain(domain)
	for norm != "" {
		if cat, ok := f.categories[norm]; ok {
			return cat, true
		}
		i := strings.Index(norm, ".")
		if i < 0 {
			break
		}
		norm = norm[i+1:]
	}
	return "", false
}

// DomainOf extracts the normalized hostname from a raw URL, or "" if the
// URL is empty or unparseable.
func DomainOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return normalizeDomain(u.Hostname())
}

func normalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "www.")
	return strings.TrimSuffix(d, ".")
}

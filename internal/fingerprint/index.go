package fingerprint

import "github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"

// Index maps fingerprints to the set of identities sharing them. A
// fingerprint may be shared by a small number of records; collisions are
// possible and accepted.
type Index struct {
	entries map[string]map[domain.Identity]struct{}
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]map[domain.Identity]struct{})}
}

// Add registers an identity under a fingerprint. Adding the same pair twice
// is a no-op, so the reconciler can refresh entries on every merge.
func (ix *Index) Add(fp string, id domain.Identity) {
	if fp == "" || id == "" {
		return
	}
	set, ok := ix.entries[fp]
	if !ok {
		set = make(map[domain.Identity]struct{}, 1)
		ix.entries[fp] = set
	}
	set[id] = struct{}{}
}

// Remove drops an identity from a fingerprint's candidate set. Used when a
// surrogate record is claimed by a stronger identity.
func (ix *Index) Remove(fp string, id domain.Identity) {
	set, ok := ix.entries[fp]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(ix.entries, fp)
	}
}

// Candidates returns the identities registered under a fingerprint.
func (ix *Index) Candidates(fp string) []domain.Identity {
	set, ok := ix.entries[fp]
	if !ok {
		return nil
	}
	ids := make([]domain.Identity, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of distinct fingerprints in the index.
func (ix *Index) Len() int {
	return len(ix.entries)
}

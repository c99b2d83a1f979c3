// Package fingerprint builds the normalized text keys used to join post
// records across sources when no shared numeric id exists, and maintains the
// fingerprint-to-identity index the reconciler queries.
package fingerprint

import (
	"strings"
	"unicode"
)

// MaxLength is the rune length a message fingerprint is truncated to. It is
// a tunable recall/precision knob, not a load-bearing invariant: distinct
// posts with identical prefixes may collide, and that is accepted.
const MaxLength = 48

const (
	authorPrefix = "author:"
	groupPrefix  = "group:"
)

// Build returns the fingerprint for a post. Normalized message text is
// preferred; an empty message falls back to the author name, then the group
// name. The second return is false when all three fields normalize to
// nothing, in which case the record is unmatchable and stands alone.
func Build(authorName, groupName, message string) (string, bool) {
	if msg := Normalize(message); msg != "" {
		return truncate(msg, MaxLength), true
	}
	if author := Normalize(authorName); author != "" {
		return authorPrefix + author, true
	}
	if group := Normalize(groupName); group != "" {
		return groupPrefix + group, true
	}
	return "", false
}

// Normalize lowercases text, strips combining marks and zero-width
// characters, drops punctuation, and collapses runs of whitespace to a
// single space.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(unicode.ToLower(r))
		default:
			// combining marks, zero-width runes, punctuation
		}
	}
	return b.String()
}

// PrefixTokens returns up to n leading whitespace-separated tokens of a
// fingerprint, used by the loose containment match.
func PrefixTokens(fp string, n int) []string {
	fields := strings.Fields(fp)
	if len(fields) > n {
		fields = fields[:n]
	}
	return fields
}

// IsMessageBased reports whether the fingerprint was derived from message
// text rather than an author or group fallback.
func IsMessageBased(fp string) bool {
	return fp != "" &&
		!strings.HasPrefix(fp, authorPrefix) &&
		!strings.HasPrefix(fp, groupPrefix)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
)

func TestBuild(t *testing.T) {
	t.Run("prefers message text", func(t *testing.T) {
		fp, ok := Build("Jane Doe", "Some Group", "Breaking: Markets Rally Today!")
		require.True(t, ok)
		assert.Equal(t, "breaking markets rally today", fp)
	})

	t.Run("falls back to author then group", func(t *testing.T) {
		fp, ok := Build("Jane Doe", "Some Group", "")
		require.True(t, ok)
		assert.Equal(t, "author:jane doe", fp)

		fp, ok = Build("", "Some Group", "")
		require.True(t, ok)
		assert.Equal(t, "group:some group", fp)
	})

	t.Run("all empty is unmatchable", func(t *testing.T) {
		_, ok := Build("", "", "   ")
		assert.False(t, ok)
	})

	t.Run("punctuation-only message falls through to author", func(t *testing.T) {
		fp, ok := Build("Jane", "", "!!! ...")
		require.True(t, ok)
		assert.Equal(t, "author:jane", fp)
	})

	t.Run("truncates long messages to 48 runes", func(t *testing.T) {
		long := strings.Repeat("abcde ", 20)
		fp, ok := Build("", "", long)
		require.True(t, ok)
		assert.Len(t, []rune(fp), MaxLength)
	})

	t.Run("identical prefixes collide by design", func(t *testing.T) {
		long := strings.Repeat("x", 60)
		a, _ := Build("", "", long+" first")
		b, _ := Build("", "", long+" second")
		assert.Equal(t, a, b)
	})
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "cafe story", Normalize("Café  Story")) // combining acute stripped
	assert.Equal(t, "ab", Normalize("a​b"))                  // zero-width space
	assert.Equal(t, "hello world 42", Normalize("  Hello,   WORLD... 42! "))
	assert.Equal(t, "", Normalize("—!?"))
}

func TestPrefixTokens(t *testing.T) {
	assert.Equal(t, []string{"breaking", "markets", "rally"}, PrefixTokens("breaking markets rally today", 3))
	assert.Equal(t, []string{"one"}, PrefixTokens("one", 3))
	assert.Empty(t, PrefixTokens("", 3))
}

func TestIsMessageBased(t *testing.T) {
	assert.True(t, IsMessageBased("breaking markets"))
	assert.False(t, IsMessageBased("author:jane doe"))
	assert.False(t, IsMessageBased("group:some group"))
	assert.False(t, IsMessageBased(""))
}

func TestIndex(t *testing.T) {
	ix := NewIndex()

	ix.Add("breaking markets", domain.Identity("123"))
	ix.Add("breaking markets", domain.Identity("456"))
	ix.Add("breaking markets", domain.Identity("123")) // refresh is a no-op
	ix.Add("other", domain.Identity("789"))

	assert.ElementsMatch(t,
		[]domain.Identity{"123", "456"},
		ix.Candidates("breaking markets"),
	)
	assert.Equal(t, 2, ix.Len())

	ix.Remove("breaking markets", domain.Identity("123"))
	assert.ElementsMatch(t, []domain.Identity{"456"}, ix.Candidates("breaking markets"))

	ix.Remove("breaking markets", domain.Identity("456"))
	assert.Nil(t, ix.Candidates("breaking markets"))
	assert.Equal(t, 1, ix.Len())

	t.Run("empty keys are ignored", func(t *testing.T) {
		ix.Add("", domain.Identity("1"))
		ix.Add("fp", domain.Identity(""))
		assert.Nil(t, ix.Candidates("fp"))
	})
}

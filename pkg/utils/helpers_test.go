package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindRegexMatch(t *testing.T) {
	t.Run("returns submatches", func(t *testing.T) {
		matches := FindRegexMatch(`data-sitekey="abc123"`, `data-sitekey="([^"]+)"`)
		assert.Equal(t, []string{`data-sitekey="abc123"`, "abc123"}, matches)
	})

	t.Run("no match returns nil", func(t *testing.T) {
		assert.Nil(t, FindRegexMatch("plain text", `data-sitekey="([^"]+)"`))
	})

	t.Run("invalid pattern returns nil", func(t *testing.T) {
		assert.Nil(t, FindRegexMatch("anything", `([`))
	})

	t.Run("cached pattern still matches", func(t *testing.T) {
		pattern := `jk=([a-z0-9]+)`
		first := FindRegexMatch("jk=abc1", pattern)
		second := FindRegexMatch("jk=def2", pattern)

		assert.Equal(t, "abc1", first[1])
		assert.Equal(t, "def2", second[1])
	})
}

func TestContains(t *testing.T) {
	assert.True(t, Contains([]string{"a", "b"}, "b"))
	assert.False(t, Contains([]string{"a", "b"}, "c"))
	assert.False(t, Contains(nil, "a"))

	assert.True(t, ContainsInt([]int{1, 3, 7}, 7))
	assert.False(t, ContainsInt([]int{1, 3, 7}, 5))
}

func TestGetStringOrDefault(t *testing.T) {
	assert.Equal(t, "value", GetStringOrDefault("value", "fallback"))
	assert.Equal(t, "fallback", GetStringOrDefault("", "fallback"))
}

func TestGenerateRequestID(t *testing.T) {
	a := GenerateRequestID()
	b := GenerateRequestID()

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

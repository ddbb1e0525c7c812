package scan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseradb/tessera/models"
	"github.com/tesseradb/tessera/scan"
)

func TestLiteralOr_Match(t *testing.T) {
	f := &scan.LiteralOr{Key: "host", Values: []string{"web01", "web02"}}

	tags := models.NewTags(map[string]string{"host": "web01", "dc": "lga"})
	assert.True(t, f.Match(tags))
	assert.False(t, f.Match(models.NewTags(map[string]string{"host": "web03"})))
	assert.False(t, f.Match(models.NewTags(map[string]string{"dc": "lga"})), "missing key never matches")

	// Exact, case-sensitive.
	assert.False(t, f.Match(models.NewTags(map[string]string{"host": "WEB01"})))
}

func TestWildcard_Match(t *testing.T) {
	cases := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"*", "anything", true},
		{"web*", "web01", true},
		{"web*", "db01", false},
		{"*01", "web01", true},
		{"*01", "web02", false},
		{"w*1", "web01", true},
		{"w*1", "web02", false},
		{"web01", "web01", true},
		{"web01", "web011", false},
		{"web", "web01", false},
	}
	for _, tc := range cases {
		f := scan.NewWildcard("host", tc.pattern)
		got := f.Match(models.NewTags(map[string]string{"host": tc.value}))
		assert.Equal(t, tc.want, got, "pattern %q value %q", tc.pattern, tc.value)
	}

	assert.True(t, scan.NewWildcard("host", "*").MatchesAll())
	assert.True(t, scan.NewWildcard("host", "**").MatchesAll())
	assert.False(t, scan.NewWildcard("host", "web*").MatchesAll())
}

func TestRegex_Match(t *testing.T) {
	f, err := scan.NewRegex("host", "web0[12]")
	require.NoError(t, err)

	assert.True(t, f.Match(models.NewTags(map[string]string{"host": "web01"})))
	assert.False(t, f.Match(models.NewTags(map[string]string{"host": "web03"})))
	// Anchored: a substring hit is not a match.
	assert.False(t, f.Match(models.NewTags(map[string]string{"host": "xweb01x"})))

	_, err = scan.NewRegex("host", "web0[")
	require.ErrorContains(t, err, "bad regex filter")

	all, err := scan.NewRegex("host", ".*")
	require.NoError(t, err)
	assert.True(t, all.MatchesAll())
}

func TestNotAndChain_Match(t *testing.T) {
	not := &scan.Not{Filter: &scan.LiteralOr{Key: "dc", Values: []string{"lga"}}}
	assert.False(t, not.Match(models.NewTags(map[string]string{"dc": "lga"})))
	assert.True(t, not.Match(models.NewTags(map[string]string{"dc": "sjc"})))
	assert.True(t, not.Match(models.NewTags(map[string]string{"host": "web01"})), "absent tag is not the excluded value")

	chain := &scan.Chain{Filters: []scan.Filter{
		&scan.LiteralOr{Key: "host", Values: []string{"web01", "web02"}},
		not,
	}}
	assert.True(t, chain.Match(models.NewTags(map[string]string{"host": "web02", "dc": "sjc"})))
	assert.False(t, chain.Match(models.NewTags(map[string]string{"host": "web01", "dc": "lga"})))
	assert.False(t, chain.Match(models.NewTags(map[string]string{"host": "db01", "dc": "sjc"})))
}

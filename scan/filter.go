package scan

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/tesseradb/tessera/models"
)

// Filter is a node in a tag filter tree. Filters are evaluated against the
// string tag set of a decoded series; the planner additionally tries to push
// parts of the tree down to the storage layer (see plan.go).
type Filter interface {
	// Match evaluates the filter against a resolved tag set.
	Match(tags models.Tags) bool

	// TagKey returns the tag key a leaf constrains, or "" for branch nodes.
	TagKey() string
}

// LiteralOr matches when the tag's value is one of an explicit list.
// Case-sensitive, exact matches.
type LiteralOr struct {
	Key    string
	Values []string
}

func (f *LiteralOr) TagKey() string { return f.Key }

func (f *LiteralOr) Match(tags models.Tags) bool {
	v, ok := tags.Get(f.Key)
	if !ok {
		return false
	}
	for _, want := range f.Values {
		if v == want {
			return true
		}
	}
	return false
}

// Wildcard matches glob-style patterns with '*' as the only metacharacter.
// A pattern of "*" matches any value; such filters constrain nothing and are
// no-ops for storage pre-filtering.
type Wildcard struct {
	Key     string
	Pattern string
	re      *regexp.Regexp
}

// NewWildcard builds a wildcard filter.
func NewWildcard(key, pattern string) *Wildcard {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return &Wildcard{
		Key:     key,
		Pattern: pattern,
		re:      regexp.MustCompile("^" + strings.Join(parts, ".*") + "$"),
	}
}

func (f *Wildcard) TagKey() string { return f.Key }

// MatchesAll reports whether the pattern accepts every value.
func (f *Wildcard) MatchesAll() bool {
	return strings.Trim(f.Pattern, "*") == ""
}

func (f *Wildcard) Match(tags models.Tags) bool {
	v, ok := tags.Get(f.Key)
	if !ok {
		return false
	}
	return f.re.MatchString(v)
}

// Regex matches the tag value against an anchored regular expression.
type Regex struct {
	Key string
	re  *regexp.Regexp
}

// NewRegex compiles an anchored regex filter.
func NewRegex(key, pattern string) (*Regex, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, errors.Wrapf(err, "scan: bad regex filter on %q", key)
	}
	return &Regex{Key: key, re: re}, nil
}

func (f *Regex) TagKey() string { return f.Key }

// MatchesAll reports patterns that accept everything, e.g. ".*".
func (f *Regex) MatchesAll() bool {
	p := f.re.String()
	return p == "^(?:.*)$" || p == "^(?:.+)$" || p == "^(?:.*?)$"
}

func (f *Regex) Match(tags models.Tags) bool {
	v, ok := tags.Get(f.Key)
	if !ok {
		return false
	}
	return f.re.MatchString(v)
}

// Not inverts a filter. Anything under a NOT is never pushed into the
// storage-level filter; it is always re-checked after fetch.
type Not struct {
	Filter Filter
}

func (f *Not) TagKey() string { return "" }

func (f *Not) Match(tags models.Tags) bool { return !f.Filter.Match(tags) }

// Chain matches when every child matches.
type Chain struct {
	Filters []Filter
}

func (f *Chain) TagKey() string { return "" }

func (f *Chain) Match(tags models.Tags) bool {
	for _, c := range f.Filters {
		if !c.Match(tags) {
			return false
		}
	}
	return true
}

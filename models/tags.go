package models

import (
	"bytes"
	"sort"
)

// Tag is a key/value pair of strings naming one dimension of a series.
type Tag struct {
	Key   string
	Value string
}

// Tags represents a sorted list of tags.
type Tags []Tag

// NewTags returns a sorted Tags from a map.
func NewTags(m map[string]string) Tags {
	if len(m) == 0 {
		return nil
	}
	a := make(Tags, 0, len(m))
	for k, v := range m {
		a = append(a, Tag{Key: k, Value: v})
	}
	sort.Sort(a)
	return a
}

func (a Tags) Len() int           { return len(a) }
func (a Tags) Less(i, j int) bool { return a[i].Key < a[j].Key }
func (a Tags) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }

// Get returns the value for a key, and whether the key was present.
func (a Tags) Get(key string) (string, bool) {
	for _, t := range a {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Clone returns a copy of the tag slice.
func (a Tags) Clone() Tags {
	if len(a) == 0 {
		return nil
	}
	other := make(Tags, len(a))
	copy(other, a)
	return other
}

// Map returns the tags as a map. Mostly useful for tests and diagnostics.
func (a Tags) Map() map[string]string {
	m := make(map[string]string, len(a))
	for _, t := range a {
		m[t.Key] = t.Value
	}
	return m
}

// Equal returns true if a and other contain the same keys and values in the
// same order.
func (a Tags) Equal(other Tags) bool {
	if len(a) != len(other) {
		return false
	}
	for i := range a {
		if a[i] != other[i] {
			return false
		}
	}
	return true
}

// AppendString appends a canonical k=v,k=v rendering of the tags to dst.
func (a Tags) AppendString(dst []byte) []byte {
	for i, t := range a {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, t.Key...)
		dst = append(dst, '=')
		dst = append(dst, t.Value...)
	}
	return dst
}

func (a Tags) String() string {
	var buf bytes.Buffer
	buf.Write(a.AppendString(nil))
	return buf.String()
}

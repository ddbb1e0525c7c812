// Package bytesutil provides small helpers for slices of byte slices, used by
// the scan layer to manage sorted sets of fixed-width UID values.
package bytesutil

import (
	"bytes"
	"sort"
)

// Sort sorts a slice of byte slices in place.
func Sort(a [][]byte) {
	sort.Slice(a, func(i, j int) bool { return bytes.Compare(a[i], a[j]) < 0 })
}

// IsSorted reports whether a is sorted ascending.
func IsSorted(a [][]byte) bool {
	return sort.SliceIsSorted(a, func(i, j int) bool { return bytes.Compare(a[i], a[j]) < 0 })
}

// SortDedup sorts a and removes adjacent duplicates, returning the shortened
// slice. The backing array is reused.
func SortDedup(a [][]byte) [][]byte {
	if len(a) <= 1 {
		return a
	}
	Sort(a)
	j := 0
	for i := 1; i < len(a); i++ {
		if !bytes.Equal(a[j], a[i]) {
			j++
			a[j] = a[i]
		}
	}
	return a[:j+1]
}

// SearchBytes returns the smallest index i such that a[i] >= x, or len(a).
// a must be sorted.
func SearchBytes(a [][]byte, x []byte) int {
	return sort.Search(len(a), func(i int) bool { return bytes.Compare(a[i], x) >= 0 })
}

// Contains reports whether sorted a contains x.
func Contains(a [][]byte, x []byte) bool {
	i := SearchBytes(a, x)
	return i < len(a) && bytes.Equal(a[i], x)
}

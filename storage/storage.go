// Package storage defines the contract the schema layer requires from a
// wide-column store (HBase, Bigtable). The real client lives elsewhere; this
// package only fixes the operations the schema and scan layers consume, plus
// an in-memory implementation under memstore for tests and tooling.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("storage: store closed")

	// ErrNoSuchTable is returned when an operation names an unknown table.
	ErrNoSuchTable = errors.New("storage: no such table")
)

// Cell is one column within a row: a qualifier and its value.
type Cell struct {
	Qualifier []byte
	Value     []byte
}

// Row is a row key plus the cells read from one column family.
type Row struct {
	Key   []byte
	Cells []Cell
}

// ScanSpec bounds a ranged scan. Start is inclusive, Stop exclusive. KeyRegexp,
// when non-empty, is applied server-side against the row key decoded as
// ISO-8859-1, one character per byte. HBase's RegexStringComparator works the
// same way; anything rune-oriented would miscount keys whose bytes happen to
// form multi-byte UTF-8 sequences.
type ScanSpec struct {
	Table     string
	Family    []byte
	Start     []byte
	Stop      []byte
	KeyRegexp string
	Reverse   bool

	// RowsPerPage caps how many rows a single Next call returns. Zero means
	// the implementation's default.
	RowsPerPage int
}

// Scanner pages through a ranged scan. Next returns nil rows once the range is
// exhausted. Scanners are not safe for concurrent use.
type Scanner interface {
	Next(ctx context.Context) ([]Row, error)
	Close() error
}

// Store is the wide-column store collaborator. Every call is a suspension
// point: implementations perform I/O and must honor ctx cancellation.
type Store interface {
	// Get returns the value of one cell, or nil with no error when the cell
	// does not exist.
	Get(ctx context.Context, table string, key, family, qualifier []byte) ([]byte, error)

	// Put writes one cell unconditionally.
	Put(ctx context.Context, table string, key, family, qualifier, value []byte) error

	// Increment atomically adds amount to a counter cell, creating it at zero
	// first if absent, and returns the post-increment value.
	Increment(ctx context.Context, table string, key, family, qualifier []byte, amount int64) (int64, error)

	// CompareAndSet writes value only if the cell currently holds expected.
	// A nil expected means "only if absent". Returns whether the write won.
	CompareAndSet(ctx context.Context, table string, key, family, qualifier, value, expected []byte) (bool, error)

	// Scan opens a ranged scan described by spec.
	Scan(ctx context.Context, spec ScanSpec) (Scanner, error)
}

// Package memstore implements storage.Store entirely in memory. It exists for
// unit tests and the tessera CLI; it is not a database.
package memstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"regexp"
	"sync"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/tesseradb/tessera/storage"
)

const defaultRowsPerPage = 128

type row struct {
	key []byte
	// family -> qualifier -> value
	families map[string]map[string][]byte
}

type table struct {
	rows *btree.BTreeG[*row]
}

func newTable() *table {
	return &table{
		rows: btree.NewG(16, func(a, b *row) bool { return bytes.Compare(a.key, b.key) < 0 }),
	}
}

// Store is an in-memory wide-column store.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	closed bool
}

// New returns an empty store with the given tables created.
func New(tables ...string) *Store {
	s := &Store{tables: make(map[string]*table)}
	for _, name := range tables {
		s.tables[name] = newTable()
	}
	return s
}

// CreateTable creates a table if it does not already exist.
func (s *Store) CreateTable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; !ok {
		s.tables[name] = newTable()
	}
}

// Close marks the store closed. Subsequent operations fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) table(name string) (*table, error) {
	if s.closed {
		return nil, storage.ErrStoreClosed
	}
	t, ok := s.tables[name]
	if !ok {
		return nil, errors.Wrap(storage.ErrNoSuchTable, name)
	}
	return t, nil
}

func (t *table) getRow(key []byte) *row {
	r, _ := t.rows.Get(&row{key: key})
	return r
}

func (t *table) getOrCreateRow(key []byte) *row {
	if r := t.getRow(key); r != nil {
		return r
	}
	r := &row{key: append([]byte(nil), key...), families: make(map[string]map[string][]byte)}
	t.rows.ReplaceOrInsert(r)
	return r
}

func (r *row) cell(family, qualifier []byte) ([]byte, bool) {
	f, ok := r.families[string(family)]
	if !ok {
		return nil, false
	}
	v, ok := f[string(qualifier)]
	return v, ok
}

func (r *row) setCell(family, qualifier, value []byte) {
	f, ok := r.families[string(family)]
	if !ok {
		f = make(map[string][]byte)
		r.families[string(family)] = f
	}
	f[string(qualifier)] = append([]byte(nil), value...)
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, table string, key, family, qualifier []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	r := t.getRow(key)
	if r == nil {
		return nil, nil
	}
	v, ok := r.cell(family, qualifier)
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Put implements storage.Store.
func (s *Store) Put(ctx context.Context, table string, key, family, qualifier, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return err
	}
	t.getOrCreateRow(key).setCell(family, qualifier, value)
	return nil
}

// Increment implements storage.Store. Counter cells hold an 8-byte big-endian
// signed value, matching the HBase counter representation.
func (s *Store) Increment(ctx context.Context, table string, key, family, qualifier []byte, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return 0, err
	}
	r := t.getOrCreateRow(key)

	var cur int64
	if v, ok := r.cell(family, qualifier); ok {
		if len(v) != 8 {
			return 0, errors.Errorf("memstore: counter cell holds %d bytes, want 8", len(v))
		}
		cur = int64(binary.BigEndian.Uint64(v))
	}
	cur += amount

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(cur))
	r.setCell(family, qualifier, buf[:])
	return cur, nil
}

// CompareAndSet implements storage.Store. A nil expected matches only an
// absent cell.
func (s *Store) CompareAndSet(ctx context.Context, table string, key, family, qualifier, value, expected []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return false, err
	}
	r := t.getOrCreateRow(key)

	cur, ok := r.cell(family, qualifier)
	if expected == nil {
		if ok {
			return false, nil
		}
	} else if !ok || !bytes.Equal(cur, expected) {
		return false, nil
	}

	r.setCell(family, qualifier, value)
	return true, nil
}

// Scan implements storage.Store. The matching rows are snapshotted at call
// time; concurrent writes do not show up in an open scanner.
func (s *Store) Scan(ctx context.Context, spec storage.ScanSpec) (storage.Scanner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keyRe *regexp.Regexp
	if spec.KeyRegexp != "" {
		var err error
		if keyRe, err = regexp.Compile(spec.KeyRegexp); err != nil {
			return nil, errors.Wrap(err, "memstore: bad key regexp")
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.table(spec.Table)
	if err != nil {
		return nil, err
	}

	var rows []storage.Row
	iter := func(r *row) bool {
		if keyRe != nil && !keyRe.MatchString(latin1(r.key)) {
			return true
		}
		f, ok := r.families[string(spec.Family)]
		if !ok {
			return true
		}
		out := storage.Row{Key: append([]byte(nil), r.key...)}
		for q, v := range f {
			out.Cells = append(out.Cells, storage.Cell{
				Qualifier: []byte(q),
				Value:     append([]byte(nil), v...),
			})
		}
		sortCells(out.Cells)
		rows = append(rows, out)
		return true
	}

	switch {
	case spec.Start == nil && spec.Stop == nil:
		t.rows.Ascend(iter)
	case spec.Stop == nil:
		t.rows.AscendGreaterOrEqual(&row{key: spec.Start}, iter)
	default:
		start := spec.Start
		if start == nil {
			start = []byte{}
		}
		t.rows.AscendRange(&row{key: start}, &row{key: spec.Stop}, iter)
	}

	if spec.Reverse {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}

	page := spec.RowsPerPage
	if page <= 0 {
		page = defaultRowsPerPage
	}
	return &scanner{rows: rows, page: page}, nil
}

// latin1 decodes a key as ISO-8859-1, one rune per byte, which is how
// ScanSpec.KeyRegexp is defined to match. Feeding the raw bytes to the regexp
// engine instead would merge multi-byte UTF-8 sequences into single runes.
func latin1(b []byte) string {
	rs := make([]rune, len(b))
	for i, c := range b {
		rs[i] = rune(c)
	}
	return string(rs)
}

func sortCells(cells []storage.Cell) {
	for i := 1; i < len(cells); i++ {
		for j := i; j > 0 && bytes.Compare(cells[j-1].Qualifier, cells[j].Qualifier) > 0; j-- {
			cells[j-1], cells[j] = cells[j], cells[j-1]
		}
	}
}

type scanner struct {
	rows   []storage.Row
	page   int
	closed bool
}

func (sc *scanner) Next(ctx context.Context) ([]storage.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sc.closed || len(sc.rows) == 0 {
		return nil, nil
	}
	n := sc.page
	if n > len(sc.rows) {
		n = len(sc.rows)
	}
	out := sc.rows[:n]
	sc.rows = sc.rows[n:]
	return out, nil
}

func (sc *scanner) Close() error {
	sc.closed = true
	sc.rows = nil
	return nil
}

package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tesseradb/tessera/storage"
	"github.com/tesseradb/tessera/storage/memstore"
)

var fam = []byte("id")

func TestStore_GetPut(t *testing.T) {
	s := memstore.New("tsdb-uid")
	ctx := context.Background()

	v, err := s.Get(ctx, "tsdb-uid", []byte("k"), fam, []byte("q"))
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, s.Put(ctx, "tsdb-uid", []byte("k"), fam, []byte("q"), []byte("v")))

	v, err = s.Get(ctx, "tsdb-uid", []byte("k"), fam, []byte("q"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)

	_, err = s.Get(ctx, "nope", []byte("k"), fam, []byte("q"))
	require.ErrorIs(t, err, storage.ErrNoSuchTable)
}

func TestStore_Increment(t *testing.T) {
	s := memstore.New("tsdb-uid")
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.Increment(ctx, "tsdb-uid", []byte("\x00"), fam, []byte("metrics"), 1)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestStore_CompareAndSet(t *testing.T) {
	s := memstore.New("t")
	ctx := context.Background()

	// nil expected only writes when the cell is absent.
	ok, err := s.CompareAndSet(ctx, "t", []byte("k"), fam, []byte("q"), []byte("a"), nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.CompareAndSet(ctx, "t", []byte("k"), fam, []byte("q"), []byte("b"), nil)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.CompareAndSet(ctx, "t", []byte("k"), fam, []byte("q"), []byte("b"), []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)

	v, err := s.Get(ctx, "t", []byte("k"), fam, []byte("q"))
	require.NoError(t, err)
	require.Equal(t, []byte("b"), v)
}

func TestStore_ScanRange(t *testing.T) {
	s := memstore.New("data")
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Put(ctx, "data", []byte(k), fam, []byte("q"), []byte(k)))
	}

	sc, err := s.Scan(ctx, storage.ScanSpec{
		Table:  "data",
		Family: fam,
		Start:  []byte("b"),
		Stop:   []byte("d"),
	})
	require.NoError(t, err)
	defer sc.Close()

	rows, err := sc.Next(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []byte("b"), rows[0].Key)
	require.Equal(t, []byte("c"), rows[1].Key)

	rows, err = sc.Next(ctx)
	require.NoError(t, err)
	require.Nil(t, rows)
}

func TestStore_ScanReverseAndPaging(t *testing.T) {
	s := memstore.New("data")
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put(ctx, "data", []byte(k), fam, []byte("q"), nil))
	}

	sc, err := s.Scan(ctx, storage.ScanSpec{
		Table:       "data",
		Family:      fam,
		Reverse:     true,
		RowsPerPage: 2,
	})
	require.NoError(t, err)
	defer sc.Close()

	rows, err := sc.Next(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []byte("c"), rows[0].Key)
	require.Equal(t, []byte("b"), rows[1].Key)

	rows, err = sc.Next(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, []byte("a"), rows[0].Key)
}

func TestStore_ScanKeyRegexp(t *testing.T) {
	s := memstore.New("data")
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "data", []byte("ax1"), fam, []byte("q"), nil))
	require.NoError(t, s.Put(ctx, "data", []byte("ay2"), fam, []byte("q"), nil))

	sc, err := s.Scan(ctx, storage.ScanSpec{
		Table:     "data",
		Family:    fam,
		KeyRegexp: `^a[x]`,
	})
	require.NoError(t, err)
	defer sc.Close()

	rows, err := sc.Next(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, []byte("ax1"), rows[0].Key)
}

// KeyRegexp is matched one character per key byte. 0xC3 0x80 is a valid
// two-byte UTF-8 sequence; a rune-oriented match would count it as a single
// character and reject the key.
func TestStore_ScanKeyRegexpCountsBytes(t *testing.T) {
	s := memstore.New("data")
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "data", []byte{0xC3, 0x80, 'z'}, fam, []byte("q"), nil))

	sc, err := s.Scan(ctx, storage.ScanSpec{
		Table:     "data",
		Family:    fam,
		KeyRegexp: `(?s)^.{2}z$`,
	})
	require.NoError(t, err)
	defer sc.Close()

	rows, err := sc.Next(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, []byte{0xC3, 0x80, 'z'}, rows[0].Key)
}

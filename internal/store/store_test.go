package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	_, err := s.Load(ctx, "visitors", "hll")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "visitors", "hll", []byte{1, 2, 3}))
	got, err := s.Load(ctx, "visitors", "hll")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got)

	// same name, other kind is a separate key
	_, err = s.Load(ctx, "visitors", "cpc")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "visitors", "hll", []byte{4, 5}))
	got, err = s.Load(ctx, "visitors", "hll")
	require.NoError(t, err)
	require.Equal(t, []byte{4, 5}, got)
}

func TestNamesAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	for _, name := range []string{"b", "a", "c"} {
		require.NoError(t, s.Save(ctx, name, "cpc", []byte(name)))
	}
	require.NoError(t, s.Save(ctx, "z", "hll", []byte("z")))

	names, err := s.Names(ctx, "cpc")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, names)

	require.NoError(t, s.Delete(ctx, "b", "cpc"))
	require.NoError(t, s.Delete(ctx, "missing", "cpc"))
	names, err = s.Names(ctx, "cpc")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, names)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sketches.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "daily", "hll", []byte("image")))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, "daily", "hll")
	require.NoError(t, err)
	require.Equal(t, []byte("image"), got)
}

package peerbolt

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func TestStore_PutLoadReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "peers.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put("N:b", "127.0.0.1:20112"))
	require.NoError(t, s.Put("N:a", "127.0.0.1:20111"))
	require.NoError(t, s.Put("N:b", "127.0.0.1:20113"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	type entry struct{ name, addr string }
	var got []entry
	require.NoError(t, s.LoadAll(func(name, addr string) error {
		got = append(got, entry{name, addr})
		return nil
	}))
	assert.Equal(t, []entry{{"N:a", "127.0.0.1:20111"}, {"N:b", "127.0.0.1:20113"}}, got)

	rec, ok, err := s.Get("N:b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:20113", rec.Addr)
	assert.False(t, rec.LastSeen.IsZero())

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_DeleteAndErrors(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "peers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	assert.ErrorIs(t, s.Put("", "x:1"), ErrEmptyName)

	require.NoError(t, s.Put("N:a", "127.0.0.1:1"))
	require.NoError(t, s.Delete("N:a"))
	_, ok, err := s.Get("N:a")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Open("")
	assert.Error(t, err)
}

func TestStore_LoadAllSkipsCorruptAndStopsOnError(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "peers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Put("N:a", "127.0.0.1:1"))
	require.NoError(t, s.Put("N:c", "127.0.0.1:3"))
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bPeers)).Put([]byte("N:b"), []byte{0xc1})
	}))

	seen := 0
	require.NoError(t, s.LoadAll(func(name, addr string) error {
		seen++
		return nil
	}))
	assert.Equal(t, 2, seen)

	stop := errors.New("stop")
	err = s.LoadAll(func(name, addr string) error { return stop })
	assert.ErrorIs(t, err, stop)
}

package addressbook

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lastcanal/libbitcoin-network/p2perr"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	addrs []Address
}

func (m *memStore) Load() ([]Address, error)        { return m.addrs, nil }
func (m *memStore) Save(addrs []Address) error       { m.addrs = addrs; return nil }

func addr(host string, port uint16) Address {
	return Address{Host: host, Port: port, Services: 1, Timestamp: time.Unix(1700000000, 0)}
}

func TestBookStoreDeduplicatesByHostPort(t *testing.T) {
	b := New(&memStore{})
	require.NoError(t, b.Store(addr("203.0.113.1", 8333)))
	require.NoError(t, b.Store(addr("203.0.113.1", 8333)))
	require.Equal(t, 1, b.Count())
}

func TestBookStoreRejectsUnroutable(t *testing.T) {
	b := New(&memStore{})
	err := b.Store(addr("127.0.0.1", 8333))
	require.True(t, p2perr.Is(err, p2perr.OperationFailed))
	require.Equal(t, 0, b.Count())
}

func TestBookFetchEmptyIsNotFound(t *testing.T) {
	b := New(&memStore{})
	_, err := b.Fetch()
	require.True(t, p2perr.Is(err, p2perr.NotFound))
}

func TestBookFetchReturnsStoredAddress(t *testing.T) {
	b := New(&memStore{})
	require.NoError(t, b.Store(addr("203.0.113.1", 8333)))
	got, err := b.Fetch()
	require.NoError(t, err)
	require.Equal(t, "203.0.113.1", got.Host)
}

func TestBookRemoveIsNoOpIfAbsent(t *testing.T) {
	b := New(&memStore{})
	b.Remove(addr("203.0.113.1", 8333))
	require.Equal(t, 0, b.Count())
}

func TestBookStoreManyAggregatesErrors(t *testing.T) {
	b := New(&memStore{})
	var aggregate error
	b.StoreMany([]Address{
		addr("203.0.113.1", 8333),
		addr("127.0.0.1", 8333),
		addr("203.0.113.2", 8333),
	}, func(err error) { aggregate = err })

	require.Error(t, aggregate)
	require.Equal(t, 2, b.Count())
}

func TestBookLoadSaveRoundTripsThroughMemStore(t *testing.T) {
	store := &memStore{}
	b := New(store)
	require.NoError(t, b.Store(addr("203.0.113.1", 8333)))
	require.NoError(t, b.Save())
	require.Len(t, store.addrs, 1)

	b2 := New(store)
	require.NoError(t, b2.Load())
	require.Equal(t, 1, b2.Count())
}

func TestFlatFileStoreLoadMissingFileIsEmpty(t *testing.T) {
	s := NewFlatFileStore(filepath.Join(t.TempDir(), "hosts"))
	addrs, err := s.Load()
	require.NoError(t, err)
	require.Nil(t, addrs)
}

func TestFlatFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	s := NewFlatFileStore(path)
	want := []Address{addr("203.0.113.1", 8333), addr("203.0.113.2", 18333)}
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	require.ElementsMatch(t, want, got)
}

package p2p

import (
	"net"
	"testing"

	"github.com/lastcanal/libbitcoin-network/channel"
	"github.com/lastcanal/libbitcoin-network/p2perr"
	"github.com/stretchr/testify/require"
)

func newTestChannel(t *testing.T) *channel.Channel {
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { _ = clientConn.Close() })
	return channel.New(serverConn, 0xd9b4bef9, nil, nil)
}

func TestRegistryStoreRejectsDuplicateAuthority(t *testing.T) {
	r := NewRegistry()
	chA := newTestChannel(t)
	chB := newTestChannel(t)

	require.NoError(t, r.Store(chA))
	require.True(t, r.Exists(chA.Authority()))

	// net.Pipe's RemoteAddr is the constant "pipe" for every conn, so
	// chA and chB always collide on authority here.
	err := r.Store(chB)
	require.True(t, p2perr.Is(err, p2perr.AddressInUse))
	require.Equal(t, 1, r.Count())
}

func TestRegistryRemoveIsNoOpWhenAbsent(t *testing.T) {
	r := NewRegistry()
	ch := newTestChannel(t)
	r.Remove(ch) // must not panic
	require.Equal(t, 0, r.Count())
}

func TestRegistryStoreRemoveCycleTracksCount(t *testing.T) {
	r := NewRegistry()
	ch := newTestChannel(t)

	require.NoError(t, r.Store(ch))
	require.Equal(t, 1, r.Count())
	require.True(t, r.Exists(ch.Authority()))

	r.Remove(ch)
	require.Equal(t, 0, r.Count())
	require.False(t, r.Exists(ch.Authority()))
}

func TestRegistryStopAllClearsRegistryAndStopsChannels(t *testing.T) {
	r := NewRegistry()
	ch := newTestChannel(t)
	ch.Start(func(error) {})
	require.NoError(t, r.Store(ch))

	r.StopAll(p2perr.New(p2perr.ServiceStopped, "stop"))

	require.Equal(t, 0, r.Count())
	require.True(t, ch.IsStopped())
}

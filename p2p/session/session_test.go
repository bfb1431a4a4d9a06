package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/lastcanal/libbitcoin-network/addressbook"
	"github.com/lastcanal/libbitcoin-network/channel"
	"github.com/lastcanal/libbitcoin-network/protocol"
	"github.com/stretchr/testify/require"
)

const testMagic = 0xd9b4bef9

type memStore struct{ addrs []addressbook.Address }

func (m *memStore) Load() ([]addressbook.Address, error) { return m.addrs, nil }
func (m *memStore) Save(addrs []addressbook.Address) error {
	m.addrs = addrs
	return nil
}

type fakeCoordinator struct {
	book *addressbook.Book

	mu       sync.Mutex
	admitted []*channel.Channel
	admitErr error
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{book: addressbook.New(&memStore{})}
}

func (f *fakeCoordinator) Admit(ch *channel.Channel, handler func(error)) {
	f.mu.Lock()
	f.admitted = append(f.admitted, ch)
	err := f.admitErr
	f.mu.Unlock()
	handler(err)
}

func (f *fakeCoordinator) Magic() uint32                          { return testMagic }
func (f *fakeCoordinator) Decoders() map[string]channel.DecodeFunc { return protocol.Decoders() }
func (f *fakeCoordinator) AddressBook() *addressbook.Book          { return f.book }
func (f *fakeCoordinator) Spawn(name string, fn func())            { go fn() }
func (f *fakeCoordinator) ByteCounters() channel.ByteCounters      { return nil }

func (f *fakeCoordinator) admittedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.admitted)
}

func testHandshaker() *protocol.Handshaker {
	return &protocol.Handshaker{ProtocolVersion: 1, UserAgent: "test", HeightFunc: func() uint32 { return 0 }}
}

// drivePeerHandshake wraps conn as a channel and runs a handshake over
// it, standing in for whatever is on the other end of a dial or
// accept under test.
func drivePeerHandshake(t *testing.T, conn net.Conn) {
	peer := channel.New(conn, testMagic, protocol.Decoders(), nil)
	peer.Start(func(error) {})
	t.Cleanup(func() { peer.Stop(nil) })
	testHandshaker().Run(peer, func(error, protocol.VersionMessage) {})
}

// pairedDial returns a Dialer whose single call returns the client end
// of a net.Pipe, while driving the server end through a handshake that
// completes immediately — standing in for a real peer.
func pairedDial(t *testing.T) Dialer {
	return func(network, addr string) (net.Conn, error) {
		server, client := net.Pipe()
		drivePeerHandshake(t, server)
		return client, nil
	}
}

func TestManualConnectAdmitsOnSuccessfulHandshake(t *testing.T) {
	coord := newFakeCoordinator()
	m := NewManual(coord, pairedDial(t), testHandshaker(), 1, 50*time.Millisecond)
	m.Start(func(error) {})
	t.Cleanup(m.Stop)

	m.Connect("203.0.113.1", 8333)

	require.Eventually(t, func() bool { return coord.admittedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestManualDisconnectCancelsRetryLoop(t *testing.T) {
	coord := newFakeCoordinator()
	failingDial := func(network, addr string) (net.Conn, error) {
		return nil, net.ErrClosed
	}
	mclock := clock.NewMock()
	m := NewManual(coord, failingDial, testHandshaker(), 0, time.Minute)
	m.clock = mclock
	m.Start(func(error) {})
	t.Cleanup(m.Stop)

	m.Connect("203.0.113.2", 8333)
	require.Eventually(t, func() bool {
		m.mu.Lock()
		_, exists := m.requests["203.0.113.2:8333"]
		m.mu.Unlock()
		return exists
	}, time.Second, 5*time.Millisecond)

	m.Disconnect("203.0.113.2", 8333)

	m.mu.Lock()
	_, exists := m.requests["203.0.113.2:8333"]
	m.mu.Unlock()
	require.False(t, exists)
	require.Equal(t, 0, coord.admittedCount())
}

func TestOutboundFillsSlotsFromAddressBook(t *testing.T) {
	coord := newFakeCoordinator()
	require.NoError(t, coord.book.Store(addressbook.Address{Host: "203.0.113.3", Port: 8333}))

	o := NewOutbound(coord, 1, pairedDial(t), testHandshaker(), time.Hour)
	o.Start(func(error) {})
	t.Cleanup(o.Stop)

	require.Eventually(t, func() bool { return coord.admittedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestOutboundStopIsIdempotent(t *testing.T) {
	coord := newFakeCoordinator()
	o := NewOutbound(coord, 0, pairedDial(t), testHandshaker(), time.Hour)
	o.Start(func(error) {})
	o.Stop()
	o.Stop() // must not panic on a double close
}

func TestSeedResolvesAndStoresAddresses(t *testing.T) {
	coord := newFakeCoordinator()
	resolver := func(hostname string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("203.0.113.4")}, nil
	}

	s := NewSeed(coord, []string{"seed.example.com"}, resolver, pairedDial(t), testHandshaker(), 0, time.Second)

	done := make(chan error, 1)
	s.Start(func(err error) { done <- err })
	require.NoError(t, <-done)

	require.Equal(t, 1, coord.book.Count())
}

func TestSeedLookupFailureIsNotFatal(t *testing.T) {
	coord := newFakeCoordinator()
	resolver := func(hostname string) ([]net.IP, error) {
		return nil, net.ErrClosed
	}

	s := NewSeed(coord, []string{"unreachable.example.com"}, resolver, pairedDial(t), testHandshaker(), 0, time.Second)

	done := make(chan error, 1)
	s.Start(func(err error) { done <- err })
	require.NoError(t, <-done)
	require.Equal(t, 0, coord.book.Count())
}

func TestInboundRejectsBeyondMaxConnections(t *testing.T) {
	coord := newFakeCoordinator()
	in := NewInbound(coord, 0, 1, testHandshaker())

	started := make(chan error, 1)
	in.Start(func(err error) { started <- err })
	require.NoError(t, <-started)
	t.Cleanup(in.Stop)

	in.mu.Lock()
	addr := in.listener.Addr().String()
	in.mu.Unlock()

	// Two near-simultaneous dials against a cap of one connection: only
	// one can win the slot, the other is closed by the accept loop
	// before any handshake runs.
	conn1, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn1.Close() })
	conn2, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn2.Close() })

	drivePeerHandshake(t, conn1)
	drivePeerHandshake(t, conn2)

	require.Eventually(t, func() bool { return coord.admittedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Never(t, func() bool { return coord.admittedCount() > 1 }, 200*time.Millisecond, 20*time.Millisecond)
}

package p2p

import (
	"testing"

	"github.com/lastcanal/libbitcoin-network/addressbook"
	"github.com/lastcanal/libbitcoin-network/channel"
	"github.com/lastcanal/libbitcoin-network/config"
	"github.com/lastcanal/libbitcoin-network/p2perr"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	addrs []addressbook.Address
}

func (m *memStore) Load() ([]addressbook.Address, error) { return m.addrs, nil }
func (m *memStore) Save(addrs []addressbook.Address) error {
	m.addrs = addrs
	return nil
}

func newTestCoordinator(t *testing.T) *P2P {
	cfg, err := config.ApplyDefaults(config.Config{Threads: 1})
	require.NoError(t, err)
	node := New(cfg, &memStore{})
	t.Cleanup(func() {
		stopped := make(chan error, 1)
		node.Stop(func(err error) { stopped <- err })
		<-stopped
	})
	return node
}

// TestStartTwiceSecondCallFails exercises spec.md's S5 scenario: the
// first Start succeeds, a concurrent or subsequent Start fails with
// operation_failed without disturbing the first.
func TestStartTwiceSecondCallFails(t *testing.T) {
	node := newTestCoordinator(t)

	var first, second error
	started := make(chan struct{})
	node.Start(func(err error) {
		first = err
		close(started)
	})
	<-started

	done := make(chan struct{})
	node.Start(func(err error) {
		second = err
		close(done)
	})
	<-done

	require.NoError(t, first)
	require.True(t, p2perr.Is(second, p2perr.OperationFailed))
}

// TestStopTwiceBothSucceed exercises spec.md's S5 stop half: calling
// Stop twice yields success both times.
func TestStopTwiceBothSucceed(t *testing.T) {
	node := newTestCoordinator(t)

	startDone := make(chan error, 1)
	node.Start(func(err error) { startDone <- err })
	require.NoError(t, <-startDone)

	var first, second error
	stop1 := make(chan struct{})
	node.Stop(func(err error) { first = err; close(stop1) })
	<-stop1

	stop2 := make(chan struct{})
	node.Stop(func(err error) { second = err; close(stop2) })
	<-stop2

	require.NoError(t, first)
	require.NoError(t, second)
	require.True(t, node.IsStopped())
}

// TestAdmitDuplicateAuthorityFailsAndDoesNotRelay exercises spec.md's
// S4 scenario: a duplicate authority is rejected and never reaches the
// connection subscriber.
func TestAdmitDuplicateAuthorityFailsAndDoesNotRelay(t *testing.T) {
	node := newTestCoordinator(t)
	startDone := make(chan error, 1)
	node.Start(func(err error) { startDone <- err })
	require.NoError(t, <-startDone)

	var notifications []*channel.Channel
	require.NoError(t, node.SubscribeConnections(func(err error, ch *channel.Channel) {
		if err == nil {
			notifications = append(notifications, ch)
		}
	}))

	chA := newTestChannel(t)
	chB := newTestChannel(t) // net.Pipe gives both the same "pipe" authority
	chA.Start(func(error) {})
	chB.Start(func(error) {})

	var admitA, admitB error
	node.Admit(chA, func(err error) { admitA = err })
	node.Admit(chB, func(err error) { admitB = err })

	require.NoError(t, admitA)
	require.True(t, p2perr.Is(admitB, p2perr.AddressInUse))
	require.Equal(t, []*channel.Channel{chA}, notifications)
	require.Equal(t, 1, node.Registry().Count())
}

func TestSubscribeConnectionsRelaysStopToEveryHandler(t *testing.T) {
	node := newTestCoordinator(t)
	startDone := make(chan error, 1)
	node.Start(func(err error) { startDone <- err })
	require.NoError(t, <-startDone)

	var got error
	require.NoError(t, node.SubscribeConnections(func(err error, ch *channel.Channel) {
		got = err
		require.Nil(t, ch)
	}))

	stopDone := make(chan error, 1)
	node.Stop(func(err error) { stopDone <- err })
	require.NoError(t, <-stopDone)

	require.True(t, p2perr.Is(got, p2perr.ServiceStopped))
}

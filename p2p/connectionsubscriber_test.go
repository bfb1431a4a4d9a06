package p2p

import (
	"testing"

	"github.com/lastcanal/libbitcoin-network/channel"
	"github.com/lastcanal/libbitcoin-network/p2perr"
	"github.com/stretchr/testify/require"
)

func TestConnectionSubscriberSubscribeFailsAfterStop(t *testing.T) {
	s := NewConnectionSubscriber()
	s.Start()
	s.Stop()

	err := s.Subscribe(func(error, *channel.Channel) {})
	require.True(t, p2perr.Is(err, p2perr.ServiceStopped))
}

func TestConnectionSubscriberNotifyFansOutToEveryHandler(t *testing.T) {
	s := NewConnectionSubscriber()
	s.Start()

	var got1, got2 *channel.Channel
	require.NoError(t, s.Subscribe(func(err error, ch *channel.Channel) {
		require.NoError(t, err)
		got1 = ch
	}))
	require.NoError(t, s.Subscribe(func(err error, ch *channel.Channel) {
		require.NoError(t, err)
		got2 = ch
	}))

	ch := newTestChannel(t)
	s.Notify(ch)

	require.Same(t, ch, got1)
	require.Same(t, ch, got2)
}

func TestConnectionSubscriberRelayStopFiresExactlyOnce(t *testing.T) {
	s := NewConnectionSubscriber()
	s.Start()

	calls := 0
	var gotErr error
	require.NoError(t, s.Subscribe(func(err error, ch *channel.Channel) {
		calls++
		gotErr = err
		require.Nil(t, ch)
	}))

	s.Stop()
	s.RelayStop()
	s.RelayStop() // second call must not re-notify; handlers were cleared

	require.Equal(t, 1, calls)
	require.True(t, p2perr.Is(gotErr, p2perr.ServiceStopped))
}

package channel

import (
	"testing"

	"github.com/lastcanal/libbitcoin-network/p2perr"
	"github.com/stretchr/testify/require"
)

func TestStopSubscriberRelayFiresQueuedHandlersOnce(t *testing.T) {
	s := NewStopSubscriber()
	s.Start()

	var got error
	calls := 0
	s.Subscribe(func(err error) {
		calls++
		got = err
	}, p2perr.New(p2perr.ChannelStopped, "default"))

	want := p2perr.New(p2perr.BadStream, "boom")
	s.Relay(want)
	require.Equal(t, 1, calls)
	require.Equal(t, want, got)

	// Relay again has nothing queued to fire.
	s.Relay(p2perr.New(p2perr.BadStream, "again"))
	require.Equal(t, 1, calls)
}

func TestStopSubscriberSubscribeAfterRelayFiresImmediatelyWithDefault(t *testing.T) {
	s := NewStopSubscriber()
	s.Start()
	s.Relay(p2perr.New(p2perr.BadStream, "already stopped"))

	var got error
	def := p2perr.New(p2perr.ChannelStopped, "default")
	s.Subscribe(func(err error) { got = err }, def)
	require.Equal(t, def, got)
}

func TestStopSubscriberStopWithoutRelayNeverFiresQueuedHandlers(t *testing.T) {
	s := NewStopSubscriber()
	s.Start()

	fired := false
	s.Subscribe(func(error) { fired = true }, p2perr.New(p2perr.ChannelStopped, "default"))
	s.Stop()
	require.False(t, fired)

	def := p2perr.New(p2perr.ChannelStopped, "default")
	var got error
	s.Subscribe(func(err error) { got = err }, def)
	require.Equal(t, def, got)
}

package channel

import (
	"bytes"
	"testing"

	"github.com/lastcanal/libbitcoin-network/p2perr"
	"github.com/stretchr/testify/require"
)

type pingMsg struct{ nonce uint64 }

func decodePing(r *bytes.Reader) (interface{}, error) {
	if r.Len() < 8 {
		return nil, p2perr.New(p2perr.BadStream, "short ping")
	}
	var buf [8]byte
	if _, err := r.Read(buf[:]); err != nil {
		return nil, err
	}
	var n uint64
	for i := 7; i >= 0; i-- {
		n = n<<8 | uint64(buf[i])
	}
	return pingMsg{nonce: n}, nil
}

func newTestSubscriber() *MessageSubscriber {
	s := NewMessageSubscriber(map[string]DecodeFunc{"ping": decodePing})
	s.Start()
	return s
}

func TestMessageSubscriberDeliversToAllHandlers(t *testing.T) {
	s := newTestSubscriber()
	var got1, got2 pingMsg
	require.NoError(t, Subscribe(s, "ping", func(err error, m pingMsg) {
		require.NoError(t, err)
		got1 = m
	}))
	require.NoError(t, Subscribe(s, "ping", func(err error, m pingMsg) {
		require.NoError(t, err)
		got2 = m
	}))

	payload := []byte{9, 0, 0, 0, 0, 0, 0, 0}
	unconsumed, err := s.Load("ping", bytes.NewReader(payload))
	require.NoError(t, err)
	require.False(t, unconsumed)
	require.Equal(t, uint64(9), got1.nonce)
	require.Equal(t, uint64(9), got2.nonce)
}

func TestMessageSubscriberReportsUnconsumedBytes(t *testing.T) {
	s := newTestSubscriber()
	require.NoError(t, Subscribe(s, "ping", func(error, pingMsg) {}))

	payload := []byte{1, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}
	unconsumed, err := s.Load("ping", bytes.NewReader(payload))
	require.NoError(t, err)
	require.True(t, unconsumed)
}

func TestMessageSubscriberUnknownTagIsIgnored(t *testing.T) {
	s := newTestSubscriber()
	unconsumed, err := s.Load("unknown", bytes.NewReader(nil))
	require.NoError(t, err)
	require.False(t, unconsumed)
}

func TestMessageSubscriberSubscribeAfterStopFails(t *testing.T) {
	s := newTestSubscriber()
	s.Stop()
	err := Subscribe(s, "ping", func(error, pingMsg) {})
	require.True(t, p2perr.Is(err, p2perr.SubscriberStopped))
}

func TestMessageSubscriberBroadcastNotifiesAndClears(t *testing.T) {
	s := newTestSubscriber()
	calls := 0
	require.NoError(t, Subscribe(s, "ping", func(err error, _ pingMsg) {
		calls++
		require.True(t, p2perr.Is(err, p2perr.ChannelStopped))
	}))

	s.Broadcast(p2perr.ChannelStopped)
	require.Equal(t, 1, calls)

	// A delivery after broadcast reaches nobody: the handler list was cleared.
	s.Start()
	unconsumed, err := s.Load("ping", bytes.NewReader([]byte{2, 0, 0, 0, 0, 0, 0, 0}))
	require.NoError(t, err)
	require.False(t, unconsumed)
	require.Equal(t, 1, calls)
}

func TestMessageSubscriberResubscribeDuringDeliveryExcludedFromCurrentLoad(t *testing.T) {
	s := newTestSubscriber()
	var secondCalls int
	first := func(err error, m pingMsg) {
		require.NoError(t, Subscribe(s, "ping", func(error, pingMsg) { secondCalls++ }))
	}
	require.NoError(t, Subscribe(s, "ping", first))

	_, err := s.Load("ping", bytes.NewReader([]byte{1, 0, 0, 0, 0, 0, 0, 0}))
	require.NoError(t, err)
	require.Equal(t, 0, secondCalls)

	_, err = s.Load("ping", bytes.NewReader([]byte{2, 0, 0, 0, 0, 0, 0, 0}))
	require.NoError(t, err)
	require.Equal(t, 1, secondCalls)
}

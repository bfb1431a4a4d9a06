package p2p

import (
	"sync"

	"github.com/lastcanal/libbitcoin-network/channel"
	"github.com/lastcanal/libbitcoin-network/p2perr"
)

// ConnectHandler is notified once per successfully admitted channel,
// and exactly once more, with (service_stopped, nil), when the
// coordinator stops.
type ConnectHandler func(error, *channel.Channel)

// ConnectionSubscriber is the coordinator's connection-event fan-out
// (spec.md section 4.6's subscribe_connections): every handler fires
// once per admitted channel for as long as the subscriber is running,
// then fires exactly once more at Stop with a terminal error.
type ConnectionSubscriber struct {
	mu       sync.Mutex
	stopped  bool
	handlers []ConnectHandler
}

// NewConnectionSubscriber returns a subscriber ready to Start.
func NewConnectionSubscriber() *ConnectionSubscriber {
	return &ConnectionSubscriber{stopped: true}
}

// Start begins accepting subscriptions. Idempotent.
func (s *ConnectionSubscriber) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = false
}

// Stop stops accepting new subscriptions, without itself notifying
// anyone; RelayStop does that. Idempotent.
func (s *ConnectionSubscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// Subscribe registers handler to receive every future admitted
// channel. It fails with p2perr.ServiceStopped if the subscriber has
// already stopped.
func (s *ConnectionSubscriber) Subscribe(handler ConnectHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return p2perr.New(p2perr.ServiceStopped, "connection subscriber stopped")
	}
	s.handlers = append(s.handlers, handler)
	return nil
}

// Notify fires every currently subscribed handler with (nil, ch). It
// does not remove any handler — called once per successful admission.
func (s *ConnectionSubscriber) Notify(ch *channel.Channel) {
	s.mu.Lock()
	handlers := append([]ConnectHandler(nil), s.handlers...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(nil, ch)
	}
}

// RelayStop fires every currently subscribed handler exactly once with
// (service_stopped, nil), then clears the subscriber.
func (s *ConnectionSubscriber) RelayStop() {
	s.mu.Lock()
	handlers := s.handlers
	s.handlers = nil
	s.mu.Unlock()

	err := p2perr.New(p2perr.ServiceStopped, "p2p stopped")
	for _, h := range handlers {
		h(err, nil)
	}
}

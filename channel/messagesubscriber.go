package channel

import (
	"bytes"
	"sync"

	"github.com/lastcanal/libbitcoin-network/p2perr"
)

// DecodeFunc parses a message body of one command tag from its payload
// bytes. It is registered once per tag, independent of how many
// handlers ever subscribe to that tag — mirroring the fixed, compiled
// set of Bitcoin commands a node understands.
type DecodeFunc func(r *bytes.Reader) (interface{}, error)

type rawMessageHandler struct {
	deliver func(interface{})
	stop    func(error)
}

type messageTag struct {
	decode   DecodeFunc
	handlers []*rawMessageHandler
}

// MessageSubscriber is the network core's typed publish/subscribe
// dispatcher (spec component C2): it fans a decoded message of a given
// command tag out to every handler currently subscribed to that tag.
// Decoders are fixed at construction time, one per known command;
// subscriptions come and go for the life of a channel.
type MessageSubscriber struct {
	mu      sync.Mutex
	tags    map[string]*messageTag
	stopped bool
}

// NewMessageSubscriber builds a subscriber that knows how to decode
// exactly the command tags named in decoders.
func NewMessageSubscriber(decoders map[string]DecodeFunc) *MessageSubscriber {
	tags := make(map[string]*messageTag, len(decoders))
	for tag, decode := range decoders {
		tags[tag] = &messageTag{decode: decode}
	}
	return &MessageSubscriber{tags: tags, stopped: true}
}

// Start begins accepting subscriptions again. Idempotent.
func (s *MessageSubscriber) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = false
}

// Stop stops accepting new subscriptions. It does not itself notify
// anyone; Broadcast does that. Idempotent.
func (s *MessageSubscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *MessageSubscriber) subscribe(tag string, h *rawMessageHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return p2perr.New(p2perr.SubscriberStopped, "message subscriber stopped")
	}
	t, ok := s.tags[tag]
	if !ok {
		return p2perr.Errorf(p2perr.OperationFailed, "no decoder registered for tag %q", tag)
	}
	t.handlers = append(t.handlers, h)
	return nil
}

// Subscribe registers handler to receive every future message of tag,
// decoded as a T, until the subscriber is stopped or broadcasts.
// Subscribe is itself safe to call from inside a handler invoked by
// Load: the new subscription will not receive the delivery in progress,
// only the next one.
func Subscribe[T any](s *MessageSubscriber, tag string, handler func(error, T)) error {
	return s.subscribe(tag, &rawMessageHandler{
		deliver: func(v interface{}) { handler(nil, v.(T)) },
		stop: func(err error) {
			var zero T
			handler(err, zero)
		},
	})
}

// Load parses the payload for tag exactly once and delivers the result
// to a snapshot of the handlers currently subscribed to tag — handlers
// added while Load is running are excluded from this delivery. It
// reports unconsumed=true if the decoder left bytes unread in r, and
// returns a non-nil error only when decoding itself failed.
func (s *MessageSubscriber) Load(tag string, r *bytes.Reader) (unconsumed bool, err error) {
	s.mu.Lock()
	t, ok := s.tags[tag]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	handlers := append([]*rawMessageHandler(nil), t.handlers...)
	decode := t.decode
	s.mu.Unlock()

	value, err := decode(r)
	if err != nil {
		return false, err
	}
	for _, h := range handlers {
		h.deliver(value)
	}
	return r.Len() > 0, nil
}

// Broadcast notifies every handler currently subscribed to any tag that
// the subscriber has terminated with code, then clears all handler
// lists. Registered decoders are left in place.
func (s *MessageSubscriber) Broadcast(code p2perr.Code) {
	s.mu.Lock()
	var handlers []*rawMessageHandler
	for _, t := range s.tags {
		handlers = append(handlers, t.handlers...)
		t.handlers = nil
	}
	s.mu.Unlock()

	err := p2perr.New(code, code.String())
	for _, h := range handlers {
		h.stop(err)
	}
}

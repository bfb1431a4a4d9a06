package channel

import "sync"

// StopHandler is notified exactly once with the reason a channel
// stopped.
type StopHandler func(error)

// StopSubscriber is the network core's one-shot broadcast primitive
// (spec component C3). Every handler registered with Subscribe fires
// exactly once: with the code passed to Relay, or immediately with
// onStopped if the subscriber has already terminated (via Stop or an
// earlier Relay) by the time Subscribe is called.
type StopSubscriber struct {
	mu       sync.Mutex
	stopped  bool
	handlers []StopHandler
}

// NewStopSubscriber returns a subscriber ready to Start.
func NewStopSubscriber() *StopSubscriber {
	return &StopSubscriber{stopped: true}
}

// Start resets the subscriber for a fresh channel lifecycle.
func (s *StopSubscriber) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = false
}

// Stop marks the subscriber terminal without notifying anyone queued.
// Any handler already registered by the time Stop runs will never fire
// unless Relay is also called — matching the channel's normal sequence
// of calling Stop immediately followed by Relay. Idempotent.
func (s *StopSubscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// Subscribe enqueues handler to be invoked exactly once. If the
// subscriber is already terminal, handler fires immediately with
// onStopped instead of being queued.
func (s *StopSubscriber) Subscribe(handler StopHandler, onStopped error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		handler(onStopped)
		return
	}
	s.handlers = append(s.handlers, handler)
	s.mu.Unlock()
}

// Relay fires every currently queued handler with code exactly once,
// marks the subscriber terminal (so any later Subscribe fires
// immediately rather than queuing), and clears the queue. Calling Relay
// again before any new subscription is a harmless no-op.
func (s *StopSubscriber) Relay(code error) {
	s.mu.Lock()
	s.stopped = true
	handlers := s.handlers
	s.handlers = nil
	s.mu.Unlock()

	for _, h := range handlers {
		h(code)
	}
}

package p2p

import (
	"sync"

	"github.com/lastcanal/libbitcoin-network/channel"
	"github.com/lastcanal/libbitcoin-network/p2perr"
)

// Registry is the coordinator's set of live channels keyed by remote
// authority, enforcing at most one channel per authority — grounded on
// the teacher's connmgr request bookkeeping, simplified to exactly the
// operations spec.md names: exists, store, remove, count, stop-all.
type Registry struct {
	mu       sync.Mutex
	channels map[string]*channel.Channel
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*channel.Channel)}
}

// Exists reports whether a channel for authority is currently
// registered.
func (r *Registry) Exists(authority string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.channels[authority]
	return ok
}

// Store registers ch under its authority. It fails with
// p2perr.AddressInUse if a channel for that authority is already
// registered.
func (r *Registry) Store(ch *channel.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	authority := ch.Authority()
	if _, exists := r.channels[authority]; exists {
		return p2perr.New(p2perr.AddressInUse, "address already in use: "+authority)
	}
	r.channels[authority] = ch
	return nil
}

// Get returns the channel registered under authority, if any.
func (r *Registry) Get(authority string) (*channel.Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[authority]
	return ch, ok
}

// Remove unregisters ch, a no-op if it is not currently registered.
func (r *Registry) Remove(ch *channel.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, ch.Authority())
}

// Count returns the number of registered channels.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// StopAll stops every registered channel with err and clears the
// registry.
func (r *Registry) StopAll(err error) {
	r.mu.Lock()
	channels := make([]*channel.Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	r.channels = make(map[string]*channel.Channel)
	r.mu.Unlock()

	for _, ch := range channels {
		ch.Stop(err)
	}
}

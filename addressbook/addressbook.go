// Package addressbook implements the network core's hosts book (spec
// component C5): an in-memory set of peer addresses, keyed by
// (host, port), with an external backing store for load/save, a
// random-pick fetch policy, and a per-host block list fed by the
// coordinator's ban-score threshold — grounded on the teacher's
// infrastructure/network/addressmanager package, simplified to the
// spec's narrower contract (no local-address selection, no
// connection-failure bookkeeping).
package addressbook

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/lastcanal/libbitcoin-network/p2perr"
	"go.uber.org/multierr"
)

// Address is one entry in the hosts book: a host/port pair the node
// can dial, the services bitmask it last announced, and when it was
// last seen.
type Address struct {
	Host      string
	Port      uint16
	Services  uint64
	Timestamp time.Time
}

type addressKey struct {
	host string
	port uint16
}

func keyOf(a Address) addressKey {
	return addressKey{host: a.Host, port: a.Port}
}

// Book is a concurrency-safe set of Address, collapsing duplicates by
// (host, port) the way the teacher's addressKey/addressStore pair does
// for (ipv6, port).
type Book struct {
	mu      sync.Mutex
	store   Store
	addrs   map[addressKey]Address
	blocked map[string]struct{}
	rand    *rand.Rand
}

// New returns an empty Book backed by store. Call Load to populate it.
func New(store Store) *Book {
	return &Book{
		store:   store,
		addrs:   make(map[addressKey]Address),
		blocked: make(map[string]struct{}),
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Load populates the book from its backing store, replacing any
// in-memory entries already present. An absent store (Load returns a
// nil slice and a nil error) leaves the book empty, not an error.
func (b *Book) Load() error {
	loaded, err := b.store.Load()
	if err != nil {
		return p2perr.Wrap(err, p2perr.FileSystem, "load address book")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.addrs = make(map[addressKey]Address, len(loaded))
	for _, a := range loaded {
		b.addrs[keyOf(a)] = a
	}
	log.Debugf("loaded %d addresses", len(b.addrs))
	return nil
}

// Save persists the current address set. Per the coordinator's stop
// sequence, a second Save after the book has already been saved once
// is harmless but still writes the current set — callers decide
// whether to skip a redundant save.
func (b *Book) Save() error {
	snapshot := b.all()
	if err := b.store.Save(snapshot); err != nil {
		return p2perr.Wrap(err, p2perr.FileSystem, "save address book")
	}
	log.Debugf("saved %d addresses", len(snapshot))
	return nil
}

func (b *Book) all() []Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Address, 0, len(b.addrs))
	for _, a := range b.addrs {
		out = append(out, a)
	}
	return out
}

// Fetch picks one address using a uniform-random policy. It fails with
// p2perr.NotFound if the book is empty.
func (b *Book) Fetch() (Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.addrs) == 0 {
		return Address{}, p2perr.New(p2perr.NotFound, "address book is empty")
	}
	keys := make([]addressKey, 0, len(b.addrs))
	for k := range b.addrs {
		keys = append(keys, k)
	}
	pick := keys[b.rand.Intn(len(keys))]
	return b.addrs[pick], nil
}

// Store inserts a into the set; a no-op if the (host, port) is already
// present. An address whose host is not routable is rejected with
// OperationFailed; an address whose host has been Block-ed (ban score
// threshold crossed) is rejected with AddressBlocked.
func (b *Book) Store(a Address) error {
	if !isRoutable(a.Host) {
		return p2perr.Errorf(p2perr.OperationFailed, "address %s:%d is not routable", a.Host, a.Port)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, blocked := b.blocked[a.Host]; blocked {
		return p2perr.Errorf(p2perr.AddressBlocked, "address %s:%d is blocked", a.Host, a.Port)
	}
	key := keyOf(a)
	if _, exists := b.addrs[key]; !exists {
		b.addrs[key] = a
	}
	return nil
}

// Block bans host: it is dropped from the set and every future Store
// for that host fails with AddressBlocked, the address-book half of
// the coordinator's ban-score threshold (see p2p.AddBanScore) —
// grounded on the teacher's server.BanPeer, which the connection
// manager calls once a peer's dynamic ban score crosses the
// configured threshold.
func (b *Book) Block(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocked[host] = struct{}{}
	for key := range b.addrs {
		if key.host == host {
			delete(b.addrs, key)
		}
	}
}

// IsBlocked reports whether host has been Block-ed.
func (b *Book) IsBlocked(host string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, blocked := b.blocked[host]
	return blocked
}

// StoreMany batch-inserts addresses and fires handler exactly once with
// the aggregate of every per-address error (nil if all succeeded).
func (b *Book) StoreMany(addresses []Address, handler func(error)) {
	var aggregate error
	for _, a := range addresses {
		if err := b.Store(a); err != nil {
			aggregate = multierr.Append(aggregate, err)
		}
	}
	handler(aggregate)
}

// Remove deletes a from the set; a no-op if absent.
func (b *Book) Remove(a Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.addrs, keyOf(a))
}

// Count returns the number of addresses currently held.
func (b *Book) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.addrs)
}

// isRoutable rejects IP addresses that can never be meaningfully
// dialed: loopback, link-local, and unspecified addresses. A host that
// does not parse as an IP is accepted as a DNS name.
// Grounded on the routability filtering every btcsuite-lineage address
// manager applies before admitting a gossiped address.
func isRoutable(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		// A DNS name (e.g. a configured seed) is accepted; it is resolved
		// at dial time, not at address-book admission time.
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return false
	}
	return true
}

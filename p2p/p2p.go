// Package p2p implements the network core's coordinator (spec
// component C6): it owns the channel registry and the address book,
// drives the start/run/stop sequences, and fans new channels out to
// connection subscribers — grounded on the teacher's server.go
// (newServer/Start/Stop) and connmgr.ConnManager lifecycle.
package p2p

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/go-socks/socks"
	"github.com/lastcanal/libbitcoin-network/addressbook"
	"github.com/lastcanal/libbitcoin-network/channel"
	"github.com/lastcanal/libbitcoin-network/config"
	"github.com/lastcanal/libbitcoin-network/p2p/session"
	"github.com/lastcanal/libbitcoin-network/p2perr"
	"github.com/lastcanal/libbitcoin-network/protocol"
	"golang.org/x/sync/errgroup"
)

// P2P is the network core's coordinator: the top-level object an
// embedder constructs, starts, runs, and stops. It satisfies
// session.Coordinator so the inbound/outbound/manual/seed sessions it
// attaches can admit channels and reach shared resources without
// holding the whole of P2P's API.
type P2P struct {
	cfg config.Config

	stopped atomic.Bool
	height  atomic.Uint32

	pool        *Pool
	registry    *Registry
	addressBook *addressbook.Book
	connSub     *ConnectionSubscriber
	handshaker  *protocol.Handshaker
	decoders    map[string]channel.DecodeFunc
	dial        session.Dialer
	metrics     *Metrics

	manual atomic.Pointer[session.Manual]

	mu       sync.Mutex
	inbound  *session.Inbound
	outbound *session.Outbound
	seed     *session.Seed

	saveOnce sync.Once
	saveErr  error

	banMu     sync.Mutex
	banScores map[string]uint32
}

// New builds a P2P coordinator from cfg (already defaulted via
// config.ApplyDefaults) and store, the address book's backing store.
// The coordinator starts stopped; call Start then Run.
func New(cfg config.Config, store addressbook.Store) *P2P {
	p := &P2P{
		cfg:         cfg,
		pool:        NewPool(),
		registry:    NewRegistry(),
		addressBook: addressbook.New(store),
		connSub:     NewConnectionSubscriber(),
		decoders:    protocol.Decoders(),
		dial:        (&net.Dialer{Timeout: time.Duration(cfg.ConnectTimeoutSeconds) * time.Second}).Dial,
		banScores:   make(map[string]uint32),
	}
	p.stopped.Store(true)

	p.handshaker = &protocol.Handshaker{
		ProtocolVersion: 70016,
		Services:        0,
		UserAgent:       "/libbitcoin-network-go:1.0/",
		HeightFunc:      p.Height,
	}
	p.metrics = NewMetrics(p.registry)

	if cfg.ProxyAddr != "" {
		proxy := &socks.Proxy{
			Addr:     cfg.ProxyAddr,
			Username: cfg.ProxyUsername,
			Password: cfg.ProxyPassword,
		}
		timeout := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
		p.dial = func(network, addr string) (net.Conn, error) {
			return proxy.DialTimeout(network, addr, timeout)
		}
	}
	return p
}

// Metrics returns the coordinator's Prometheus collectors.
func (p *P2P) Metrics() *Metrics { return p.metrics }

// Magic implements session.Coordinator.
func (p *P2P) Magic() uint32 { return p.cfg.Magic }

// Decoders implements session.Coordinator.
func (p *P2P) Decoders() map[string]channel.DecodeFunc { return p.decoders }

// AddressBook implements session.Coordinator.
func (p *P2P) AddressBook() *addressbook.Book { return p.addressBook }

// ByteCounters implements session.Coordinator: every session attaches
// this to each channel it builds, before Start, so the coordinator's
// p2p_bytes_sent_total/p2p_bytes_received_total counters cover every
// channel's traffic from its first byte.
func (p *P2P) ByteCounters() channel.ByteCounters { return p.metrics }

// Spawn implements session.Coordinator: every session submits its
// long-running loops and per-channel admission work through the shared
// pool rather than calling go directly.
func (p *P2P) Spawn(name string, f func()) { p.pool.Spawn(name, f) }

// SetHeight updates the blockchain height the version handshake
// advertises. Safe to call concurrently with Height.
func (p *P2P) SetHeight(h uint32) { p.height.Store(h) }

// Height returns the last height set by SetHeight (0 before the first
// call), read by the handshake's HeightFunc.
func (p *P2P) Height() uint32 { return p.height.Load() }

// Registry returns the coordinator's live-channel registry.
func (p *P2P) Registry() *Registry { return p.registry }

// ManualSession returns the currently attached manual session, or nil
// if the coordinator has not started. Use it to drive user-requested
// Connect/Disconnect calls.
func (p *P2P) ManualSession() *session.Manual { return p.manual.Load() }

// Admit implements session.Coordinator: it inserts ch into the
// registry and, if admission succeeds and ch should be announced,
// relays it to the connection subscriber exactly once. A duplicate
// authority fails with p2perr.AddressInUse and is never relayed,
// matching spec.md 4.6 and its S4 scenario.
func (p *P2P) Admit(ch *channel.Channel, handler func(error)) {
	if err := p.registry.Store(ch); err != nil {
		handler(err)
		return
	}
	p.metrics.ConnectedChannels.Inc()
	ch.SubscribeStop(func(error) {
		p.registry.Remove(ch)
		p.metrics.ConnectedChannels.Dec()
	})
	if ch.Notify() {
		p.connSub.Notify(ch)
	}
	handler(nil)
}

// AddBanScore adds score to authority's cumulative misbehavior score
// for reason and reports it at warn level past half of cfg.BanThreshold
// — grounded on the teacher's addBanScore (server/p2p/p2p.go). Once the
// cumulative score exceeds the threshold, the authority's host is
// Block-ed in the address book and its live channel, if any, is
// stopped with p2perr.AddressBlocked; AddBanScore itself returns that
// same error so the caller (a protocol handler reacting to a malformed
// or duplicate message) knows the peer is gone.
func (p *P2P) AddBanScore(authority string, score uint32, reason string) error {
	threshold := p.cfg.BanThreshold

	p.banMu.Lock()
	total := p.banScores[authority] + score
	p.banScores[authority] = total
	p.banMu.Unlock()

	if total <= threshold/2 {
		return nil
	}
	log.Warnf("misbehaving peer %s: %s -- ban score is %d", authority, reason, total)
	if total <= threshold {
		return nil
	}

	log.Warnf("banning and disconnecting %s", authority)
	host, _, err := net.SplitHostPort(authority)
	if err != nil {
		host = authority
	}
	p.addressBook.Block(host)

	banErr := p2perr.New(p2perr.AddressBlocked, "authority "+authority+" banned: "+reason)
	if ch, ok := p.registry.Get(authority); ok {
		ch.Stop(banErr)
	}

	p.banMu.Lock()
	delete(p.banScores, authority)
	p.banMu.Unlock()

	return banErr
}

// SubscribeConnections implements spec.md 4.6's subscribe_connections:
// handler fires once per successfully admitted channel, and exactly
// once more with (service_stopped, nil) when the coordinator stops.
func (p *P2P) SubscribeConnections(handler func(error, *channel.Channel)) error {
	return p.connSub.Subscribe(handler)
}

// Start implements spec.md 4.6's start sequence: refuse if already
// running, flip stopped, start the connection subscriber and worker
// pool, attach the manual and seed sessions, and load the address
// book. Any stage failure surfaces to handler without tearing the
// coordinator down — the caller decides whether to call Stop.
func (p *P2P) Start(handler func(error)) {
	if !p.stopped.CompareAndSwap(true, false) {
		handler(p2perr.New(p2perr.OperationFailed, "p2p already started"))
		return
	}

	p.connSub.Start()
	p.metrics.Starts.Inc()

	p.pool.Start(p.cfg.Threads)

	manual := session.NewManual(p, p.dial, p.handshaker, uint32(p.cfg.ManualAttemptLimit), 10*time.Second)
	manual.Start(func(error) {})
	p.manual.Store(manual)

	if err := p.addressBook.Load(); err != nil {
		handler(err)
		return
	}

	p.mu.Lock()
	p.seed = session.NewSeed(p, p.cfg.Seeds, nil, p.dial, p.handshaker, p.cfg.OutboundConnections, 5*time.Second)
	seed := p.seed
	p.mu.Unlock()

	seed.Start(func(err error) {
		handler(err)
	})
}

// Run implements spec.md 4.6's run sequence: attach and start the
// inbound and outbound sessions. The two have no ordering dependency
// on each other, so they are started concurrently and their results
// aggregated with errgroup, the way the domain stack note prescribes.
func (p *P2P) Run(handler func(error)) {
	p.mu.Lock()
	p.inbound = session.NewInbound(p, p.cfg.InboundPort, p.cfg.InboundConnections, p.handshaker)
	p.outbound = session.NewOutbound(p, p.cfg.OutboundConnections, p.dial, p.handshaker, 30*time.Second)
	inbound, outbound := p.inbound, p.outbound
	p.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		errCh := make(chan error, 1)
		inbound.Start(func(err error) { errCh <- err })
		return <-errCh
	})
	g.Go(func() error {
		errCh := make(chan error, 1)
		outbound.Start(func(err error) { errCh <- err })
		return <-errCh
	})
	handler(g.Wait())
}

// Stop implements spec.md 4.6's stop sequence. It is idempotent and
// thread-safe: a second call always succeeds to its caller exactly as
// the first did; it finds every component already stopped, does not
// save the address book again, and does not count as another stop. The
// error handler always receives nil for the act of stopping itself;
// any address-book save failure is delivered as the handler's error,
// matching spec.md section 7's "stop itself always succeeds... but its
// delivered code carries the save result."
func (p *P2P) Stop(handler func(error)) {
	p.connSub.Stop()
	p.connSub.RelayStop()

	p.registry.StopAll(p2perr.New(p2perr.ServiceStopped, "p2p stopped"))

	if manual := p.manual.Swap(nil); manual != nil {
		manual.Stop()
	}

	p.mu.Lock()
	inbound, outbound, seed := p.inbound, p.outbound, p.seed
	p.mu.Unlock()
	if inbound != nil {
		inbound.Stop()
	}
	if outbound != nil {
		outbound.Stop()
	}
	if seed != nil {
		seed.Stop()
	}

	p.saveOnce.Do(func() {
		p.saveErr = p.addressBook.Save()
	})

	wasRunning := !p.stopped.Swap(true)
	p.pool.Stop()
	if wasRunning {
		p.metrics.Stops.Inc()
	}

	handler(p.saveErr)
}

// IsStopped reports whether the coordinator is currently stopped.
func (p *P2P) IsStopped() bool { return p.stopped.Load() }

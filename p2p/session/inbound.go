package session

import (
	"fmt"
	"net"
	"sync"

	"github.com/lastcanal/libbitcoin-network/channel"
	"github.com/lastcanal/libbitcoin-network/p2perr"
	"github.com/lastcanal/libbitcoin-network/protocol"
)

// Inbound listens for incoming connections and admits each one that
// completes the handshake, up to MaxConnections concurrently —
// grounded on the teacher's connmgr.listenHandler accept loop.
type Inbound struct {
	coord          Coordinator
	port           uint16
	maxConnections int
	handshaker     *protocol.Handshaker

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
}

// NewInbound returns an inbound session bound to port, admitting at
// most maxConnections channels concurrently.
func NewInbound(coord Coordinator, port uint16, maxConnections int, handshaker *protocol.Handshaker) *Inbound {
	return &Inbound{coord: coord, port: port, maxConnections: maxConnections, handshaker: handshaker, stopped: true}
}

// Start implements Session: it binds the listener, reports success (or
// failure) to handler, and spawns the accept loop.
func (s *Inbound) Start(handler func(error)) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		handler(p2perr.Wrap(err, p2perr.NetworkUnreachable, "inbound listen failed"))
		return
	}

	s.mu.Lock()
	s.listener = ln
	s.stopped = false
	s.mu.Unlock()

	handler(nil)
	s.coord.Spawn("session.inbound.accept", s.acceptLoop)
}

func (s *Inbound) acceptLoop() {
	slots := make(chan struct{}, s.maxConnections)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isStopped() {
				return
			}
			log.Warnf("inbound accept failed: %v", err)
			return
		}

		select {
		case slots <- struct{}{}:
		default:
			log.Debugf("rejecting %s: inbound connection cap reached", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}

		s.coord.Spawn("session.inbound.channel", func() {
			s.admit(conn, func() { <-slots })
		})
	}
}

// admit starts a channel on conn and calls release once that channel
// stops, freeing its connection slot.
func (s *Inbound) admit(conn net.Conn, release func()) {
	ch := channel.New(conn, s.coord.Magic(), s.coord.Decoders(), s.coord.Spawn)
	ch.SetByteCounters(s.coord.ByteCounters())
	ch.Start(func(err error) {
		if err != nil {
			log.Warnf("inbound channel start failed: %v", err)
		}
	})
	ch.SubscribeStop(func(error) { release() })

	s.handshaker.Run(ch, func(err error, _ protocol.VersionMessage) {
		if err != nil {
			log.Debugf("inbound handshake with %s failed: %v", ch.Authority(), err)
			ch.Stop(err)
			return
		}
		wireProtocols(ch, s.coord)
		s.coord.Admit(ch, func(err error) {
			if err != nil {
				log.Debugf("inbound admission of %s failed: %v", ch.Authority(), err)
				ch.Stop(err)
			}
		})
	})
}

func (s *Inbound) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Stop implements Session: it closes the listener, which unblocks the
// accept loop.
func (s *Inbound) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
}

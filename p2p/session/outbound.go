package session

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/lastcanal/libbitcoin-network/channel"
	"github.com/lastcanal/libbitcoin-network/p2perr"
	"github.com/lastcanal/libbitcoin-network/protocol"
)

// Outbound maintains Target concurrently connected channels by
// repeatedly fetching candidate addresses from the address book and
// dialing them, grounded on the teacher's connmgr target-outbound-peer
// maintenance loop (connectionsLoop/handleFailedConn).
type Outbound struct {
	coord      Coordinator
	target     int
	dial       Dialer
	handshaker *protocol.Handshaker
	retryEvery time.Duration
	clock      clock.Clock

	mu      sync.Mutex
	stopped bool
	active  int
	stopCh  chan struct{}
}

// NewOutbound returns an outbound session that maintains target
// concurrent connections, dialing with dial (net.Dial if nil) and
// completing the handshake with handshaker.
func NewOutbound(coord Coordinator, target int, dial Dialer, handshaker *protocol.Handshaker, retryEvery time.Duration) *Outbound {
	if dial == nil {
		dial = net.Dial
	}
	return &Outbound{
		coord:      coord,
		target:     target,
		dial:       dial,
		handshaker: handshaker,
		retryEvery: retryEvery,
		clock:      clock.New(),
		stopped:    true,
	}
}

// Start implements Session: it reports success immediately and spawns
// the maintenance loop.
func (s *Outbound) Start(handler func(error)) {
	s.mu.Lock()
	s.stopped = false
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	handler(nil)
	s.coord.Spawn("session.outbound.maintain", s.maintainLoop)
}

func (s *Outbound) maintainLoop() {
	ticker := s.clock.Ticker(s.retryEvery)
	defer ticker.Stop()

	s.fillSlots()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.fillSlots()
		}
	}
}

func (s *Outbound) fillSlots() {
	for s.needMore() {
		addr, err := s.coord.AddressBook().Fetch()
		if err != nil {
			log.Debugf("outbound address book empty: %v", err)
			return
		}
		s.dialOne(addr.Host, addr.Port)
	}
}

func (s *Outbound) needMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && s.active < s.target
}

func (s *Outbound) dialOne(host string, port uint16) {
	s.mu.Lock()
	s.active++
	s.mu.Unlock()

	conn, err := s.dial("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		log.Debugf("outbound dial to %s:%d failed: %v", host, port, err)
		s.connectionEnded()
		return
	}

	ch := channel.New(conn, s.coord.Magic(), s.coord.Decoders(), s.coord.Spawn)
	ch.SetByteCounters(s.coord.ByteCounters())
	ch.Start(func(err error) {
		if err != nil {
			log.Warnf("outbound channel start failed: %v", err)
		}
	})
	ch.SubscribeStop(func(error) { s.connectionEnded() })

	s.handshaker.Run(ch, func(err error, _ protocol.VersionMessage) {
		if err != nil {
			ch.Stop(err)
			return
		}
		wireProtocols(ch, s.coord)
		s.coord.Admit(ch, func(err error) {
			if err != nil {
				if p2perr.Is(err, p2perr.AddressInUse) {
					log.Debugf("outbound %s already connected", ch.Authority())
				}
				ch.Stop(err)
			}
		})
	})
}

func (s *Outbound) connectionEnded() {
	s.mu.Lock()
	if s.active > 0 {
		s.active--
	}
	s.mu.Unlock()
}

// Stop implements Session.
func (s *Outbound) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	stopCh := s.stopCh
	s.mu.Unlock()
	close(stopCh)
}

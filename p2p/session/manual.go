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

// manualRequest is one user-requested peer, grounded on the teacher's
// connmgr.ConnReq (Addr/Permanent/retryCount): a failed dial is retried
// at a fixed interval until AttemptLimit dials have failed (0 means
// retry forever, the same default the teacher gives TargetOutbound-
// independent permanent peers).
type manualRequest struct {
	host string
	port uint16

	mu         sync.Mutex
	retryCount uint32
	cancel     chan struct{}
}

// Manual dials specific host:port peers added at runtime via Connect,
// independent of the address book the Outbound session draws from —
// the network core's equivalent of the teacher's --addpeer permanent
// connections.
type Manual struct {
	coord        Coordinator
	dial         Dialer
	handshaker   *protocol.Handshaker
	attemptLimit uint32
	retryEvery   time.Duration
	clock        clock.Clock

	mu       sync.Mutex
	stopped  bool
	requests map[string]*manualRequest
}

// NewManual returns a manual session that dials each requested peer
// up to attemptLimit times (0 = unlimited), spaced retryEvery apart.
func NewManual(coord Coordinator, dial Dialer, handshaker *protocol.Handshaker, attemptLimit uint32, retryEvery time.Duration) *Manual {
	if dial == nil {
		dial = net.Dial
	}
	return &Manual{
		coord:        coord,
		dial:         dial,
		handshaker:   handshaker,
		attemptLimit: attemptLimit,
		retryEvery:   retryEvery,
		clock:        clock.New(),
		stopped:      true,
		requests:     make(map[string]*manualRequest),
	}
}

// Start implements Session: the manual session has nothing to do until
// Connect is called, so it reports success immediately.
func (s *Manual) Start(handler func(error)) {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()
	handler(nil)
}

// Connect adds host:port to the set of manually dialed peers and
// begins attempting it. Connect is idempotent for a given authority:
// calling it again while a request is outstanding has no effect.
func (s *Manual) Connect(host string, port uint16) {
	authority := net.JoinHostPort(host, strconv.Itoa(int(port)))

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if _, exists := s.requests[authority]; exists {
		s.mu.Unlock()
		return
	}
	req := &manualRequest{host: host, port: port, cancel: make(chan struct{})}
	s.requests[authority] = req
	s.mu.Unlock()

	s.coord.Spawn("session.manual."+authority, func() { s.attempt(authority, req) })
}

// Disconnect stops retrying host:port, if it was being retried at all.
func (s *Manual) Disconnect(host string, port uint16) {
	authority := net.JoinHostPort(host, strconv.Itoa(int(port)))
	s.mu.Lock()
	req, exists := s.requests[authority]
	if exists {
		delete(s.requests, authority)
	}
	s.mu.Unlock()
	if exists {
		close(req.cancel)
	}
}

func (s *Manual) attempt(authority string, req *manualRequest) {
	for {
		req.mu.Lock()
		attempts := req.retryCount
		req.mu.Unlock()
		if s.attemptLimit > 0 && attempts >= s.attemptLimit {
			log.Debugf("manual peer %s exhausted its %d retries", authority, s.attemptLimit)
			s.forget(authority)
			return
		}

		conn, err := s.dial("tcp", authority)
		if err != nil {
			log.Debugf("manual dial to %s failed: %v", authority, err)
			req.mu.Lock()
			req.retryCount++
			req.mu.Unlock()
			if !s.sleepOrCancel(req) {
				return
			}
			continue
		}

		done := make(chan struct{})
		ch := channel.New(conn, s.coord.Magic(), s.coord.Decoders(), s.coord.Spawn)
		ch.SetNotify(true)
		ch.SetByteCounters(s.coord.ByteCounters())
		ch.Start(func(err error) {
			if err != nil {
				log.Warnf("manual channel start failed: %v", err)
			}
		})
		s.handshaker.Run(ch, func(err error, _ protocol.VersionMessage) {
			defer close(done)
			if err != nil {
				ch.Stop(err)
				return
			}
			wireProtocols(ch, s.coord)
			s.coord.Admit(ch, func(err error) {
				if err != nil && !p2perr.Is(err, p2perr.AddressInUse) {
					ch.Stop(err)
				}
			})
		})
		<-done

		// A successful dial ends this request, whether or not the
		// handshake and admission succeed; only dial failures are
		// retried. A later Connect call starts the peer afresh.
		s.forget(authority)
		return
	}
}

// sleepOrCancel waits retryEvery, returning false if the request was
// cancelled (Disconnect or session Stop) in the meantime.
func (s *Manual) sleepOrCancel(req *manualRequest) bool {
	timer := s.clock.Timer(s.retryEvery)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-req.cancel:
		return false
	}
}

func (s *Manual) forget(authority string) {
	s.mu.Lock()
	delete(s.requests, authority)
	s.mu.Unlock()
}

// Stop implements Session: it cancels every outstanding manual
// request. In-flight dials unwind on their next backoff check.
func (s *Manual) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	requests := s.requests
	s.requests = make(map[string]*manualRequest)
	s.mu.Unlock()

	for _, req := range requests {
		close(req.cancel)
	}
}

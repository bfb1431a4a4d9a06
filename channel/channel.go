// Package channel implements the network core's per-connection
// primitives (spec components C2, C3, C4): a typed message subscriber,
// a one-shot stop subscriber, and the Channel itself — the "proxy" that
// owns one socket, runs its read pump, and serializes writes.
package channel

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	"github.com/lastcanal/libbitcoin-network/p2perr"
	"github.com/lastcanal/libbitcoin-network/wire"
)

// knownLimit bounds the per-channel de-dup cache of recently seen
// addr/inventory identifiers (see btcsuite-btcd__peer.go's
// knownAddresses/knownInventory).
const knownLimit = 1000

// ResultHandler receives the outcome of an asynchronous channel
// operation: nil on success, a *p2perr.Error otherwise.
type ResultHandler func(error)

// ByteCounters receives per-channel byte totals, letting a coordinator
// fold every channel's traffic into its own observability counters
// without this package depending on any particular metrics library.
type ByteCounters interface {
	AddBytesSent(n int)
	AddBytesReceived(n int)
}

// Channel owns one network connection: it runs a single read-pump
// goroutine implementing the heading/payload state machine from
// spec.md section 4.4, and serializes writes issued by Send. It is the
// Go analogue of libbitcoin's proxy — this core's socket ownership
// boundary.
type Channel struct {
	id        uuid.UUID
	authority string
	magic     uint32

	mu        sync.Mutex // guards conn, stopped, and notify
	conn      net.Conn
	stopped   bool
	notify    bool
	headingBuf [wire.HeadingSize]byte

	writeMu sync.Mutex

	msgSub  *MessageSubscriber
	stopSub *StopSubscriber

	known *lru.Cache[string, struct{}]

	counters ByteCounters

	// OnActivity fires after every heading and after every payload is
	// read successfully, the idiomatic substitute for proxy::
	// handle_activity() — typically wired to reset a heartbeat timer.
	OnActivity func()

	// OnStopping fires once, from Stop, before the socket is closed —
	// the substitute for proxy::handle_stopping().
	OnStopping func()

	spawn func(name string, f func())
}

// New wraps conn as a stopped Channel ready for Start. decoders fixes
// the set of command tags this channel's message subscriber can parse.
func New(conn net.Conn, magic uint32, decoders map[string]DecodeFunc, spawn func(string, func())) *Channel {
	authority := ""
	if conn != nil {
		authority = conn.RemoteAddr().String()
	}
	known, _ := lru.New[string, struct{}](knownLimit)
	return &Channel{
		id:        uuid.New(),
		authority: authority,
		magic:     magic,
		conn:      conn,
		stopped:   true,
		notify:    true,
		msgSub:    NewMessageSubscriber(decoders),
		stopSub:   NewStopSubscriber(),
		known:     known,
		spawn:     spawn,
	}
}

// ID returns the channel's process-local correlation id.
func (c *Channel) ID() uuid.UUID { return c.id }

// Authority returns the cached "host:port" of the remote peer.
func (c *Channel) Authority() string { return c.authority }

// Notify reports whether a session should announce this channel (a
// seed session, for example, sets this false).
func (c *Channel) Notify() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notify
}

// SetNotify controls the value Notify reports.
func (c *Channel) SetNotify(v bool) {
	c.mu.Lock()
	c.notify = v
	c.mu.Unlock()
}

// SetByteCounters attaches counters to receive this channel's sent and
// received byte totals. A session calls this once, right after New,
// before Start — a nil counters is fine and simply disables counting.
func (c *Channel) SetByteCounters(counters ByteCounters) {
	c.mu.Lock()
	c.counters = counters
	c.mu.Unlock()
}

func (c *Channel) byteCounters() ByteCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

// MarkSeen records identifier as seen in the channel's known-inventory
// cache and reports whether it was new. Used by protocol handlers to
// avoid re-relaying gossip the peer already announced.
func (c *Channel) MarkSeen(identifier string) bool {
	if c.known.Contains(identifier) {
		return false
	}
	c.known.Add(identifier, struct{}{})
	return true
}

// MessageSubscriber returns the channel's typed pub/sub dispatcher, so
// callers outside this package (the protocol package's handshake and
// ping/pong wiring) can Subscribe to specific command tags.
func (c *Channel) MessageSubscriber() *MessageSubscriber { return c.msgSub }

// IsStopped reports whether the channel has stopped.
func (c *Channel) IsStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// SubscribeStop registers handler to be notified exactly once when the
// channel stops, with the code the channel stopped for. If the channel
// is not running (before Start, or after Stop), handler fires
// immediately with a channel_stopped error instead.
func (c *Channel) SubscribeStop(handler StopHandler) {
	c.stopSub.Subscribe(handler, p2perr.New(p2perr.ChannelStopped, "channel stopped"))
}

// Start transitions the channel from stopped to running: it resets the
// message and stop subscribers, invokes handler with nil before issuing
// any read (so a caller's own subscriptions are guaranteed to be in
// place before the first byte can arrive), and launches the read pump.
// Start fails with p2perr.OperationFailed if the channel is already
// running.
func (c *Channel) Start(handler ResultHandler) {
	c.mu.Lock()
	if !c.stopped {
		c.mu.Unlock()
		handler(p2perr.New(p2perr.OperationFailed, "channel already started"))
		return
	}
	c.stopped = false
	c.mu.Unlock()

	c.stopSub.Start()
	c.msgSub.Start()

	handler(nil)

	c.spawnReadPump()
}

func (c *Channel) spawnReadPump() {
	if c.spawn != nil {
		c.spawn("channel.readPump", c.readPump)
		return
	}
	go c.readPump()
}

// Stop idempotently tears the channel down: it stops accepting new
// message subscriptions and broadcasts channel_stopped to every
// existing one, stops and relays err to every stop subscriber, invokes
// OnStopping, then cancels any in-flight I/O and closes the socket —
// the same order proxy::stop() follows.
func (c *Channel) Stop(err error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	c.msgSub.Stop()
	c.msgSub.Broadcast(p2perr.ChannelStopped)

	c.stopSub.Stop()
	c.stopSub.Relay(err)

	if c.OnStopping != nil {
		c.OnStopping()
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.SetDeadline(time.Now())
		_ = conn.Close()
	}
}

// Send encodes command/payload under the channel's network magic and
// writes it to the socket. Concurrent Send calls are serialized by a
// write lock: sends from one goroutine reach the wire in call order,
// while sends from different goroutines go in the order they acquire
// the lock.
func (c *Channel) Send(command string, payload []byte, handler ResultHandler) {
	if c.IsStopped() {
		handler(p2perr.New(p2perr.ChannelStopped, "channel stopped"))
		return
	}
	msg, err := wire.EncodeMessage(c.magic, command, payload)
	if err != nil {
		handler(err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.IsStopped() {
		handler(p2perr.New(p2perr.ChannelStopped, "channel stopped"))
		return
	}
	if _, err := c.conn.Write(msg); err != nil {
		handler(p2perr.Wrap(err, p2perr.NetworkUnreachable, "write failed"))
		return
	}
	if counters := c.byteCounters(); counters != nil {
		counters.AddBytesSent(len(msg))
	}
	handler(nil)
}

// readPump implements the heading/payload state machine: READ_HEADING,
// VALIDATE_HEADING, READ_PAYLOAD, VALIDATE_PAYLOAD, then loop. Any
// failure at any stage stops the channel with a code describing why;
// the policy on a payload read error is to skip payload validation
// entirely rather than validate a partially filled buffer.
func (c *Channel) readPump() {
	for {
		if c.IsStopped() {
			return
		}

		if _, err := io.ReadFull(c.conn, c.headingBuf[:]); err != nil {
			c.stopOnReadError("heading", err)
			return
		}
		if counters := c.byteCounters(); counters != nil {
			counters.AddBytesReceived(wire.HeadingSize)
		}

		heading, err := wire.DecodeHeading(c.headingBuf[:])
		if err != nil {
			log.Warnf("invalid heading from %s: %v", c.authority, err)
			c.Stop(p2perr.Wrap(err, p2perr.BadStream, "invalid heading"))
			return
		}
		if heading.Magic != c.magic {
			log.Warnf("wrong magic from %s", c.authority)
			c.Stop(p2perr.New(p2perr.BadStream, "wrong network magic"))
			return
		}
		if heading.PayloadSize > wire.MaxPayloadSize {
			log.Warnf("oversized %s payload (%d bytes) from %s", heading.Command, heading.PayloadSize, c.authority)
			c.Stop(p2perr.New(p2perr.BadStream, "oversized payload"))
			return
		}

		c.fireActivity()

		payload := make([]byte, heading.PayloadSize)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			c.stopOnReadError("payload", err)
			return
		}
		if counters := c.byteCounters(); counters != nil {
			counters.AddBytesReceived(len(payload))
		}

		if wire.Checksum(payload) != heading.Checksum {
			log.Warnf("checksum mismatch on %s from %s", heading.Command, c.authority)
			c.Stop(p2perr.New(p2perr.BadStream, "checksum mismatch"))
			return
		}

		// the state machine's parse_err transition; p2perr has no distinct
		// code for it, so it stops the channel as BadStream like any other
		// malformed-wire condition.
		unconsumed, err := c.msgSub.Load(heading.Command, bytes.NewReader(payload))
		if err != nil {
			log.Warnf("failed to parse %s from %s: %v", heading.Command, c.authority, err)
			c.Stop(p2perr.Wrap(err, p2perr.BadStream, "payload parse failed"))
			return
		}
		if unconsumed {
			log.Warnf("valid %s payload from %s left unused bytes", heading.Command, c.authority)
		}

		c.fireActivity()
	}
}

func (c *Channel) stopOnReadError(stage string, err error) {
	if c.IsStopped() {
		return
	}
	log.Debugf("%s read failed from %s: %v", stage, c.authority, err)
	c.Stop(p2perr.Wrap(err, p2perr.NetworkUnreachable, stage+" read failed"))
}

func (c *Channel) fireActivity() {
	if c.OnActivity != nil {
		c.OnActivity()
	}
}

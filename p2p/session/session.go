// Package session implements the network core's external
// collaborators: inbound, outbound, manual, and seed sessions.
// spec.md treats sessions as black boxes the coordinator attaches and
// starts; this core builds minimal-but-real versions of all four so
// the coordinator has a working runtime to drive, grounded on the
// teacher's connmgr (listenHandler/connHandler) and peer.go
// (dial/accept, proxy dialing) patterns.
package session

import (
	"net"

	"github.com/lastcanal/libbitcoin-network/addressbook"
	"github.com/lastcanal/libbitcoin-network/channel"
	"github.com/lastcanal/libbitcoin-network/protocol"
)

// Coordinator is the narrow surface a session needs from the P2P
// instance that owns it — channel admission and the shared resources
// every session needs to build and start a channel, without giving a
// session the coordinator's full API.
type Coordinator interface {
	// Admit inserts ch into the registry and, on success, relays it to
	// the connection subscriber if ch.Notify() holds.
	Admit(ch *channel.Channel, handler func(error))
	Magic() uint32
	Decoders() map[string]channel.DecodeFunc
	AddressBook() *addressbook.Book
	Spawn(name string, f func())
	ByteCounters() channel.ByteCounters
}

// Session is a start/stop collaborator the coordinator attaches during
// its start or run sequence.
type Session interface {
	Start(handler func(error))
	Stop()
}

// wireProtocols attaches the integration-contract-level protocol
// handlers every admitted channel needs regardless of which session
// built it: automatic ping/pong and addr-message relay into the shared
// address book. Every session (inbound, outbound, manual, seed) calls
// this once the handshake completes and before the channel is handed
// to Admit, so a channel is never observed by the registry without
// these wired.
func wireProtocols(ch *channel.Channel, coord Coordinator) {
	_ = protocol.SubscribePingPong(ch)
	_ = protocol.SubscribeAddr(ch, coord.AddressBook())
}

// Dialer abstracts net.Dial so outbound/manual/seed sessions can be
// pointed through a SOCKS5 proxy (github.com/btcsuite/go-socks) the
// same way every btcsuite-lineage peer.go has always supported: both
// net.Dial and (*socks.Proxy).Dial satisfy this signature directly.
type Dialer func(network, address string) (net.Conn, error)

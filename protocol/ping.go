package protocol

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"

	"github.com/lastcanal/libbitcoin-network/channel"
)

// PingMessage carries a nonce a peer is expected to echo back in a
// PongMessage, the channel-level substitute for the OnActivity/idle
// timeout collaborator described in spec.md section 4.4.
type PingMessage struct {
	Nonce uint64
}

// PongMessage echoes the nonce from the PingMessage it answers.
type PongMessage struct {
	Nonce uint64
}

// NewPing returns a ping carrying a random nonce.
func NewPing() PingMessage {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return PingMessage{Nonce: binary.LittleEndian.Uint64(buf[:])}
}

func (m PingMessage) Encode() []byte {
	var buf bytes.Buffer
	putUint64(&buf, m.Nonce)
	return buf.Bytes()
}

func (m PongMessage) Encode() []byte {
	var buf bytes.Buffer
	putUint64(&buf, m.Nonce)
	return buf.Bytes()
}

func decodePing(r *bytes.Reader) (interface{}, error) {
	nonce, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	return PingMessage{Nonce: nonce}, nil
}

func decodePong(r *bytes.Reader) (interface{}, error) {
	nonce, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	return PongMessage{Nonce: nonce}, nil
}

// SendPing writes m to ch.
func SendPing(ch *channel.Channel, m PingMessage, handler channel.ResultHandler) {
	ch.Send(CmdPing, m.Encode(), handler)
}

// SendPong writes m to ch.
func SendPong(ch *channel.Channel, m PongMessage, handler channel.ResultHandler) {
	ch.Send(CmdPong, m.Encode(), handler)
}

// SubscribePingPong wires a channel to automatically answer every ping
// with a pong carrying the same nonce, grounded on peer.go's
// pingHandler in the teacher's btcd-lineage code.
func SubscribePingPong(ch *channel.Channel) error {
	return channel.Subscribe(ch.MessageSubscriber(), CmdPing, func(err error, m PingMessage) {
		if err != nil {
			return
		}
		SendPong(ch, PongMessage{Nonce: m.Nonce}, func(error) {})
	})
}

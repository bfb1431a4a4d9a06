package protocol

import (
	"bytes"

	"github.com/lastcanal/libbitcoin-network/channel"
)

// VersionMessage is exchanged at the start of every channel's life to
// negotiate the protocol level and advertise chain height.
type VersionMessage struct {
	ProtocolVersion uint32
	Services        uint64
	Timestamp       int64
	UserAgent       string
	StartHeight     uint32
}

// Encode serializes m to its wire payload.
func (m VersionMessage) Encode() []byte {
	var buf bytes.Buffer
	putUint32(&buf, m.ProtocolVersion)
	putUint64(&buf, m.Services)
	putUint64(&buf, uint64(m.Timestamp))
	putString(&buf, m.UserAgent)
	putUint32(&buf, m.StartHeight)
	return buf.Bytes()
}

func decodeVersion(r *bytes.Reader) (interface{}, error) {
	var m VersionMessage
	var err error
	if m.ProtocolVersion, err = readUint32(r); err != nil {
		return nil, err
	}
	if m.Services, err = readUint64(r); err != nil {
		return nil, err
	}
	if m.Timestamp, err = readInt64(r); err != nil {
		return nil, err
	}
	if m.UserAgent, err = readString(r); err != nil {
		return nil, err
	}
	if m.StartHeight, err = readUint32(r); err != nil {
		return nil, err
	}
	return m, nil
}

// VerAckMessage has no payload; its presence on the wire is the signal.
type VerAckMessage struct{}

func decodeVerAck(r *bytes.Reader) (interface{}, error) { return VerAckMessage{}, nil }

// SendVersion writes a version message to ch.
func SendVersion(ch *channel.Channel, m VersionMessage, handler channel.ResultHandler) {
	ch.Send(CmdVersion, m.Encode(), handler)
}

// SendVerAck writes the empty verack acknowledgement to ch.
func SendVerAck(ch *channel.Channel, handler channel.ResultHandler) {
	ch.Send(CmdVerAck, nil, handler)
}

// Package protocol implements the minimal message bodies and handshake
// sequencing that exercise the network core's channel and coordinator
// machinery: version/verack, ping/pong, addr, and reject. Deep protocol
// logic — script interpretation, consensus validation, relay policy —
// is explicitly out of scope; these are integration-contract-level
// implementations, grounded in the teacher's btcd-lineage wire encoding
// conventions (fixed-width fields, length-prefixed strings) rather than
// the full Bitcoin VarInt/VarStr wire types, since the bit-exact wire
// format spec.md mandates is the 24-byte heading (package wire), not
// these payload bodies.
package protocol

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"

	"github.com/lastcanal/libbitcoin-network/channel"
	"github.com/lastcanal/libbitcoin-network/p2perr"
)

// Command tags, one per decoder registered with a channel's message
// subscriber.
const (
	CmdVersion = "version"
	CmdVerAck  = "verack"
	CmdPing    = "ping"
	CmdPong    = "pong"
	CmdAddr    = "addr"
	CmdReject  = "reject"
)

// Decoders returns the fixed set of command-tag decoders every channel
// in this core is constructed with.
func Decoders() map[string]channel.DecodeFunc {
	return map[string]channel.DecodeFunc{
		CmdVersion: decodeVersion,
		CmdVerAck:  decodeVerAck,
		CmdPing:    decodePing,
		CmdPong:    decodePong,
		CmdAddr:    decodeAddr,
		CmdReject:  decodeReject,
	}
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := r.Read(buf[:]); err != nil {
		return 0, p2perr.Wrap(err, p2perr.BadStream, "read uint32")
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := r.Read(buf[:]); err != nil {
		return 0, p2perr.Wrap(err, p2perr.BadStream, "read uint64")
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}

func readString(r *bytes.Reader) (string, error) {
	length, err := r.ReadByte()
	if err != nil {
		return "", p2perr.Wrap(err, p2perr.BadStream, "read string length")
	}
	buf := make([]byte, length)
	if length > 0 {
		if _, err := r.Read(buf); err != nil {
			return "", p2perr.Wrap(err, p2perr.BadStream, "read string")
		}
	}
	return string(buf), nil
}

func putUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func putUint64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func putString(buf *bytes.Buffer, s string) {
	if len(s) > 255 {
		s = s[:255]
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
}

// Handshaker runs the version/verack exchange every channel must
// complete before it is admitted into the registry — the external
// collaborator spec.md refers to when it says height() is "read by the
// version-handshake external collaborator."
type Handshaker struct {
	ProtocolVersion uint32
	Services        uint64
	UserAgent       string
	HeightFunc      func() uint32
}

// Run sends our version message and completes handler exactly once:
// with the peer's version once both sides have exchanged version and
// verack, or with the first error encountered.
func (h *Handshaker) Run(ch *channel.Channel, handler func(error, VersionMessage)) {
	var mu sync.Mutex
	var peerVersion VersionMessage
	var gotVersion, gotVerAck, done bool

	complete := func(err error) {
		mu.Lock()
		if done {
			mu.Unlock()
			return
		}
		done = true
		v := peerVersion
		mu.Unlock()
		handler(err, v)
	}

	_ = channel.Subscribe(ch.MessageSubscriber(), CmdVersion, func(err error, v VersionMessage) {
		if err != nil {
			complete(err)
			return
		}
		mu.Lock()
		peerVersion = v
		gotVersion = true
		ready := gotVerAck
		mu.Unlock()
		SendVerAck(ch, func(err error) {
			if err != nil {
				complete(err)
			}
		})
		if ready {
			complete(nil)
		}
	})
	_ = channel.Subscribe(ch.MessageSubscriber(), CmdVerAck, func(err error, _ VerAckMessage) {
		if err != nil {
			complete(err)
			return
		}
		mu.Lock()
		gotVerAck = true
		ready := gotVersion
		mu.Unlock()
		if ready {
			complete(nil)
		}
	})

	height := uint32(0)
	if h.HeightFunc != nil {
		height = h.HeightFunc()
	}
	SendVersion(ch, VersionMessage{
		ProtocolVersion: h.ProtocolVersion,
		Services:        h.Services,
		Timestamp:       time.Now().Unix(),
		UserAgent:       h.UserAgent,
		StartHeight:     height,
	}, func(err error) {
		if err != nil {
			complete(err)
		}
	})
}

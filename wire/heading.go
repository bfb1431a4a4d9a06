// Package wire implements the Bitcoin P2P wire format: the 24-byte
// message heading and its payload checksum. It is the network core's
// codec layer (spec component C1) — stateless, pure, and free of any
// I/O, the same separation of concerns the teacher's btcd-lineage
// `wire` package draws between `wire.Message` encoding and `peer.go`'s
// socket handling.
package wire

import (
	"encoding/binary"

	"github.com/lastcanal/libbitcoin-network/p2perr"
)

const (
	// HeadingSize is the fixed on-wire size of a message heading.
	HeadingSize = 24

	// commandSize is the fixed width of the NUL-padded command field.
	commandSize = 12

	// MaxPayloadSize is the largest payload this core will accept
	// before a heading is rejected as bad_stream, per spec section 6.
	MaxPayloadSize = 10 * 1024 * 1024

	// EmptyPayloadChecksum is the well-known checksum of a zero-length
	// payload: the first four bytes of SHA256(SHA256("")), 5d f6 e0 e2
	// on the wire, read as a little-endian uint32.
	EmptyPayloadChecksum uint32 = 0xe2e0f65d
)

// Heading is the fixed 24-byte record that precedes every message
// payload on the wire.
type Heading struct {
	Magic       uint32
	Command     string
	PayloadSize uint32
	Checksum    uint32
}

// Encode writes h to its 24-byte wire representation.
func (h Heading) Encode() ([]byte, error) {
	cmd, err := encodeCommand(h.Command)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, HeadingSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	copy(buf[4:16], cmd)
	binary.LittleEndian.PutUint32(buf[16:20], h.PayloadSize)
	binary.LittleEndian.PutUint32(buf[20:24], h.Checksum)
	return buf, nil
}

// DecodeHeading parses the fixed 24-byte heading buffer. It fails with
// p2perr.BadStream if fewer than 24 bytes are supplied or the command
// field contains non-printable or improperly NUL-padded bytes.
func DecodeHeading(b []byte) (Heading, error) {
	if len(b) < HeadingSize {
		return Heading{}, p2perr.Errorf(p2perr.BadStream,
			"heading requires %d bytes, got %d", HeadingSize, len(b))
	}
	cmd, err := decodeCommand(b[4:16])
	if err != nil {
		return Heading{}, err
	}
	return Heading{
		Magic:       binary.LittleEndian.Uint32(b[0:4]),
		Command:     cmd,
		PayloadSize: binary.LittleEndian.Uint32(b[16:20]),
		Checksum:    binary.LittleEndian.Uint32(b[20:24]),
	}, nil
}

func encodeCommand(command string) ([]byte, error) {
	if len(command) > commandSize {
		return nil, p2perr.Errorf(p2perr.BadStream,
			"command %q exceeds %d bytes", command, commandSize)
	}
	buf := make([]byte, commandSize)
	copy(buf, command)
	return buf, nil
}

func decodeCommand(b []byte) (string, error) {
	end := commandSize
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
		if c < 0x20 || c > 0x7e {
			return "", p2perr.Errorf(p2perr.BadStream,
				"non-printable byte 0x%02x in command", c)
		}
	}
	for _, c := range b[end:] {
		if c != 0 {
			return "", p2perr.New(p2perr.BadStream,
				"embedded NUL inside command text")
		}
	}
	return string(b[:end]), nil
}

package protocol

import (
	"bytes"

	"github.com/lastcanal/libbitcoin-network/channel"
)

// RejectMessage notifies a peer that one of its messages was refused.
type RejectMessage struct {
	Command string
	Code    uint8
	Reason  string
}

func (m RejectMessage) Encode() []byte {
	var buf bytes.Buffer
	putString(&buf, m.Command)
	buf.WriteByte(m.Code)
	putString(&buf, m.Reason)
	return buf.Bytes()
}

func decodeReject(r *bytes.Reader) (interface{}, error) {
	var m RejectMessage
	var err error
	if m.Command, err = readString(r); err != nil {
		return nil, err
	}
	if m.Code, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if m.Reason, err = readString(r); err != nil {
		return nil, err
	}
	return m, nil
}

// SendReject writes m to ch.
func SendReject(ch *channel.Channel, m RejectMessage, handler channel.ResultHandler) {
	ch.Send(CmdReject, m.Encode(), handler)
}

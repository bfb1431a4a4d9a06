package protocol

import (
	"bytes"
	"strconv"

	"github.com/lastcanal/libbitcoin-network/addressbook"
	"github.com/lastcanal/libbitcoin-network/channel"
	"github.com/lastcanal/libbitcoin-network/p2perr"
)

// maxAddressesPerMessage bounds a single addr payload, the same kind of
// guard every Bitcoin-family node applies before trusting a gossip
// batch from one peer.
const maxAddressesPerMessage = 1000

// NetAddress is one peer address as carried on the wire within an addr
// message.
type NetAddress struct {
	Host      string
	Port      uint16
	Services  uint64
	Timestamp int64
}

// AddressMessage relays a batch of peer addresses.
type AddressMessage struct {
	Addresses []NetAddress
}

func (m AddressMessage) Encode() []byte {
	var buf bytes.Buffer
	putUint32(&buf, uint32(len(m.Addresses)))
	for _, a := range m.Addresses {
		putString(&buf, a.Host)
		var port [2]byte
		port[0] = byte(a.Port)
		port[1] = byte(a.Port >> 8)
		buf.Write(port[:])
		putUint64(&buf, a.Services)
		putUint64(&buf, uint64(a.Timestamp))
	}
	return buf.Bytes()
}

func decodeAddr(r *bytes.Reader) (interface{}, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if count > maxAddressesPerMessage {
		return nil, p2perr.Errorf(p2perr.BadStream, "addr message claims %d entries, max %d", count, maxAddressesPerMessage)
	}
	out := make([]NetAddress, 0, count)
	for i := uint32(0); i < count; i++ {
		host, err := readString(r)
		if err != nil {
			return nil, err
		}
		var portBuf [2]byte
		if _, err := r.Read(portBuf[:]); err != nil {
			return nil, p2perr.Wrap(err, p2perr.BadStream, "read addr port")
		}
		port := uint16(portBuf[0]) | uint16(portBuf[1])<<8
		services, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		timestamp, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		out = append(out, NetAddress{Host: host, Port: port, Services: services, Timestamp: timestamp})
	}
	return AddressMessage{Addresses: out}, nil
}

// SendAddr writes m to ch.
func SendAddr(ch *channel.Channel, m AddressMessage, handler channel.ResultHandler) {
	ch.Send(CmdAddr, m.Encode(), handler)
}

// SubscribeAddr wires a channel so that every addr message it receives
// is stored into book, de-duplicated per-channel via the channel's
// known-inventory cache before being handed to the book so a single
// gossip batch retransmitted twice is not re-processed.
func SubscribeAddr(ch *channel.Channel, book *addressbook.Book) error {
	return channel.Subscribe(ch.MessageSubscriber(), CmdAddr, func(err error, m AddressMessage) {
		if err != nil {
			return
		}
		for _, a := range m.Addresses {
			if !ch.MarkSeen(a.Host + ":" + strconv.Itoa(int(a.Port))) {
				continue
			}
			_ = book.Store(addressbook.Address{
				Host:     a.Host,
				Port:     a.Port,
				Services: a.Services,
			})
		}
	})
}

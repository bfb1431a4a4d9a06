package session

import (
	"net"
	"strconv"
	"time"

	"github.com/lastcanal/libbitcoin-network/addressbook"
	"github.com/lastcanal/libbitcoin-network/channel"
	"github.com/lastcanal/libbitcoin-network/protocol"
	"github.com/miekg/dns"
)

// defaultSeedPort is the port assumed for addresses discovered through
// a DNS seed when the seed itself does not encode one — the standard
// Bitcoin mainnet port, matching every btcsuite-lineage seeder.
const defaultSeedPort = 8333

// Seed populates the address book from a configured list of DNS seed
// hostnames at startup, then — mirroring the teacher's dnsseeder
// package, which exists purely to bootstrap addrmgr before the
// outbound loop can run — optionally opens a handful of channels to
// seed peers directly
// so the node has somewhere to dial even before an address book save
// from a previous run exists.
type Seed struct {
	coord      Coordinator
	hostnames  []string
	resolver   func(hostname string) ([]net.IP, error)
	dial       Dialer
	handshaker *protocol.Handshaker
	bootstrap  int
	timeout    time.Duration
}

// NewSeed returns a seed session that resolves hostnames (the
// config.Config.Seeds list) via DNS, storing every resolved address
// and dialing up to bootstrap of them directly (channels from this session are
// marked non-notify, matching spec.md 4.6's "seed-only channels are
// not announced"). A nil resolver uses github.com/miekg/dns against the
// system resolver.
func NewSeed(coord Coordinator, hostnames []string, resolver func(string) ([]net.IP, error), dial Dialer, handshaker *protocol.Handshaker, bootstrap int, timeout time.Duration) *Seed {
	if resolver == nil {
		resolver = func(hostname string) ([]net.IP, error) { return lookupA(hostname, timeout) }
	}
	if dial == nil {
		dial = net.Dial
	}
	return &Seed{
		coord:      coord,
		hostnames:  hostnames,
		resolver:   resolver,
		dial:       dial,
		handshaker: handshaker,
		bootstrap:  bootstrap,
		timeout:    timeout,
	}
}

// Start implements Session: it resolves every configured seed
// synchronously (the coordinator's start sequence waits on this stage
// before moving on), storing every address found, then reports success
// regardless of whether any seed actually resolved — an unreachable
// DNS seed is not a startup failure, matching the teacher's dnsseeder,
// which logs and continues on a per-seed lookup error.
func (s *Seed) Start(handler func(error)) {
	var found []addressbook.Address
	for _, hostname := range s.hostnames {
		ips, err := s.resolver(hostname)
		if err != nil {
			log.Warnf("dns seed %s lookup failed: %v", hostname, err)
			continue
		}
		for _, ip := range ips {
			found = append(found, addressbook.Address{
				Host:      ip.String(),
				Port:      defaultSeedPort,
				Timestamp: time.Now(),
			})
		}
		log.Debugf("dns seed %s resolved %d addresses", hostname, len(ips))
	}

	s.coord.AddressBook().StoreMany(found, func(err error) {
		if err != nil {
			log.Warnf("storing seed addresses: %v", err)
		}
	})

	handler(nil)

	if s.bootstrap > 0 && len(found) > 0 {
		s.coord.Spawn("session.seed.bootstrap", func() { s.bootstrapDial(found) })
	}
}

func (s *Seed) bootstrapDial(found []addressbook.Address) {
	n := s.bootstrap
	if n > len(found) {
		n = len(found)
	}
	for _, addr := range found[:n] {
		s.dialOne(addr)
	}
}

func (s *Seed) dialOne(addr addressbook.Address) {
	authority := net.JoinHostPort(addr.Host, strconv.Itoa(int(addr.Port)))
	conn, err := s.dial("tcp", authority)
	if err != nil {
		log.Debugf("seed dial to %s failed: %v", authority, err)
		return
	}

	ch := channel.New(conn, s.coord.Magic(), s.coord.Decoders(), s.coord.Spawn)
	ch.SetNotify(false)
	ch.SetByteCounters(s.coord.ByteCounters())
	ch.Start(func(err error) {
		if err != nil {
			log.Warnf("seed channel start failed: %v", err)
		}
	})
	s.handshaker.Run(ch, func(err error, _ protocol.VersionMessage) {
		if err != nil {
			ch.Stop(err)
			return
		}
		wireProtocols(ch, s.coord)
		s.coord.Admit(ch, func(err error) {
			if err != nil {
				ch.Stop(err)
			}
		})
	})
}

// Stop implements Session: the seed session does nothing after start
// besides the bootstrap dials it already issued, so Stop is a no-op —
// any bootstrap channels it opened are registered in, and torn down by,
// the coordinator's registry like every other channel.
func (s *Seed) Stop() {}

// lookupA resolves hostname's A records using github.com/miekg/dns
// against the first resolver in /etc/resolv.conf, the same low-level
// DNS client the teacher's discovery bootstrapper uses for its SRV
// fallback query.
func lookupA(hostname string, timeout time.Duration) ([]net.IP, error) {
	config, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(config.Servers) == 0 {
		return net.LookupIP(hostname)
	}

	client := &dns.Client{Timeout: timeout}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(hostname), dns.TypeA)

	server := net.JoinHostPort(config.Servers[0], config.Port)
	resp, _, err := client.Exchange(msg, server)
	if err != nil {
		return net.LookupIP(hostname)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, nil
	}

	var ips []net.IP
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A)
		}
	}
	return ips, nil
}

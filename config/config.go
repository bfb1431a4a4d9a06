// Package config defines the network core's configuration surface,
// spec.md section 6's option table. Loading it from a CLI flag set or
// a file is out of scope for this core (spec.md section 1); Config is
// built directly by the embedder, or by cmd/p2pnode's minimal flag
// parsing.
package config

import "github.com/imdario/mergo"

// Config carries every option spec.md section 6 names.
type Config struct {
	Threads int

	Magic uint32

	InboundPort        uint16
	InboundConnections int
	OutboundConnections int

	ManualAttemptLimit int

	ConnectTimeoutSeconds     int
	ChannelHandshakeSeconds   int
	ChannelHeartbeatMinutes   int
	ChannelInactivityMinutes  int
	ChannelExpirationMinutes int

	HostsFile string
	Seeds     []string
	Self      string

	// ProxyAddr, if set, routes every outbound/manual/seed dial through
	// a SOCKS5 proxy (github.com/btcsuite/go-socks) instead of dialing
	// directly — the historical Tor-friendly dialing every btcsuite-
	// lineage node supports.
	ProxyAddr     string
	ProxyUsername string
	ProxyPassword string

	// BanThreshold is the cumulative AddBanScore score, past which an
	// authority is blocked in the address book and disconnected —
	// mirrors the teacher's config.BanThreshold (server/p2p/p2p.go's
	// addBanScore).
	BanThreshold uint32
}

// MainnetMagic is the well-known Bitcoin mainnet network identifier,
// the same constant spec.md section 6 cites as an example.
const MainnetMagic uint32 = 0xd9b4bef9

// DefaultConfig returns a Config with conservative defaults, mirroring
// the shape (if not the scale) of the teacher's own settings defaults.
func DefaultConfig() Config {
	return Config{
		Threads:                   4,
		Magic:                     MainnetMagic,
		InboundPort:               8333,
		InboundConnections:        125,
		OutboundConnections:       8,
		ManualAttemptLimit:        0, // 0 means unlimited
		ConnectTimeoutSeconds:     5,
		ChannelHandshakeSeconds:   10,
		ChannelHeartbeatMinutes:   2,
		ChannelInactivityMinutes:  10,
		ChannelExpirationMinutes: 60,
		HostsFile:                 "hosts.dat",
		BanThreshold:              100,
	}
}

// ApplyDefaults fills zero-valued fields of cfg from DefaultConfig,
// using github.com/imdario/mergo the way most Go services merge a
// partial user config against baked-in defaults — the ecosystem's
// common substitute for the teacher's own hand-rolled default-filling
// in its much larger flag-derived config.
func ApplyDefaults(cfg Config) (Config, error) {
	defaults := DefaultConfig()
	if err := mergo.Merge(&cfg, defaults); err != nil {
		return cfg, err
	}
	return cfg, nil
}

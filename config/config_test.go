package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsFillsZeroFields(t *testing.T) {
	cfg := Config{OutboundConnections: 3}
	merged, err := ApplyDefaults(cfg)
	require.NoError(t, err)
	require.Equal(t, 3, merged.OutboundConnections)
	require.Equal(t, DefaultConfig().InboundPort, merged.InboundPort)
	require.Equal(t, DefaultConfig().Magic, merged.Magic)
}

func TestApplyDefaultsPreservesExplicitZeroIsOverwritten(t *testing.T) {
	// mergo.Merge treats zero values as "unset"; callers who want an
	// explicit ManualAttemptLimit of 0 (unlimited) get the default's 0
	// either way, so this is a no-op in practice but documents the
	// behavior rather than leaving it implicit.
	cfg := Config{}
	merged, err := ApplyDefaults(cfg)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), merged)
}

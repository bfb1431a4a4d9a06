package p2p

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the coordinator's Prometheus collectors: connected
// channel count, registry size, bytes transferred, and start/stop
// counters. Wiring prometheus is ambient observability the teacher
// always adds to its services layer (see lnd's exportPrometheusStats)
// even though spec.md scopes metrics as "not specified."
type Metrics struct {
	ConnectedChannels prometheus.Gauge
	RegistrySize      prometheus.GaugeFunc
	BytesSent         prometheus.Counter
	BytesReceived     prometheus.Counter
	Starts            prometheus.Counter
	Stops             prometheus.Counter
}

// NewMetrics builds a Metrics whose RegistrySize gauge reads from
// registry on every scrape.
func NewMetrics(registry *Registry) *Metrics {
	return &Metrics{
		ConnectedChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "p2p_connected_channels",
			Help: "Number of channels currently admitted into the registry.",
		}),
		RegistrySize: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "p2p_registry_size",
			Help: "Current size of the channel registry.",
		}, func() float64 { return float64(registry.Count()) }),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "p2p_bytes_sent_total",
			Help: "Total bytes written across all channels.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "p2p_bytes_received_total",
			Help: "Total bytes read across all channels.",
		}),
		Starts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "p2p_starts_total",
			Help: "Number of times the coordinator has started.",
		}),
		Stops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "p2p_stops_total",
			Help: "Number of times the coordinator has stopped.",
		}),
	}
}

// AddBytesSent implements channel.ByteCounters: every channel the
// coordinator admits folds its written bytes into this one counter.
func (m *Metrics) AddBytesSent(n int) { m.BytesSent.Add(float64(n)) }

// AddBytesReceived implements channel.ByteCounters.
func (m *Metrics) AddBytesReceived(n int) { m.BytesReceived.Add(float64(n)) }

// Register registers every collector with reg.
func (m *Metrics) Register(reg *prometheus.Registry) error {
	for _, c := range []prometheus.Collector{
		m.ConnectedChannels, m.RegistrySize, m.BytesSent, m.BytesReceived, m.Starts, m.Stops,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

package dht

import "github.com/prometheus/client_golang/prometheus"

// Metrics collects the counters and gauges the node's RPC traffic and
// routing table expose to Prometheus. A nil-safe zero value is never used
// directly; NewMetrics always returns a ready collector set.
type Metrics struct {
	sent            *prometheus.CounterVec
	received        *prometheus.CounterVec
	peerUnreachable prometheus.Counter
	routingTableSz  prometheus.Gauge
	lookupDuration  prometheus.Histogram
}

// NewMetrics registers a fresh set of collectors against the default
// registry. Callers that need isolation (tests, multiple nodes in one
// process) should use NewMetricsWithRegisterer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer registers collectors against a caller-supplied
// registerer, letting simnet tests run several nodes without colliding on
// the default registry.
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kadpeer",
			Name:      "rpc_sent_total",
			Help:      "DHT RPCs sent, by message kind.",
		}, []string{"kind"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kadpeer",
			Name:      "rpc_received_total",
			Help:      "DHT RPCs received, by message kind.",
		}, []string{"kind"}),
		peerUnreachable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kadpeer",
			Name:      "peer_unreachable_total",
			Help:      "Outbound RPCs that failed to send or timed out waiting for a response.",
		}),
		routingTableSz: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kadpeer",
			Name:      "routing_table_size",
			Help:      "Number of contacts currently held across all buckets.",
		}),
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kadpeer",
			Name:      "lookup_duration_seconds",
			Help:      "Wall-clock duration of iterative lookups.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		// Register errors (most commonly AlreadyRegisteredError, when a
		// second node shares this process's default registry) are ignored:
		// callers that need isolation across nodes should pass their own
		// registerer, as NewMetricsWithRegisterer's doc comment says.
		for _, c := range []prometheus.Collector{m.sent, m.received, m.peerUnreachable, m.routingTableSz, m.lookupDuration} {
			_ = reg.Register(c)
		}
	}
	return m
}

func (m *Metrics) IncSent(k Kind)     { m.sent.WithLabelValues(string(k)).Inc() }
func (m *Metrics) IncReceived(k Kind) { m.received.WithLabelValues(string(k)).Inc() }
func (m *Metrics) IncPeerUnreachable() { m.peerUnreachable.Inc() }
func (m *Metrics) SetRoutingTableSize(n int) { m.routingTableSz.Set(float64(n)) }
func (m *Metrics) ObserveLookup(seconds float64) { m.lookupDuration.Observe(seconds) }

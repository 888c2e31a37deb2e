package distributed

import "github.com/prometheus/client_golang/prometheus"

// metrics are the counters/histograms this repository's predecessor
// pulled in prometheus/client_golang for transitively (via pebble and
// gopsutil) but never itself registered or incremented.
type metrics struct {
	mergeTotal  prometheus.Counter
	rpcDuration prometheus.Histogram
	rpcFailures *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		mergeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_merge_total",
			Help: "Content entries merged into the local tracker.",
		}),
		rpcDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_rpc_duration_seconds",
			Help:    "Latency of a single remote hop attempt.",
			Buckets: prometheus.DefBuckets,
		}),
		rpcFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_rpc_failures_total",
			Help: "Remote hop attempts that failed, by error kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.mergeTotal, m.rpcDuration, m.rpcFailures)
	}
	return m
}

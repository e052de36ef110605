// Package metrics instruments the cache cluster with Prometheus collectors,
// the teacher's observability library of choice (see go.mod). Every counter
// here tracks an outcome named in spec §4/§7 -- cache hits/misses/evictions
// (C5), dispatcher wins/losses (C8), multiplexer timeouts (C2), and ring
// size (C6) -- so operators can see the same state the protocol exposes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachecluster_cache_hits_total",
		Help: "Number of cache GETs that found a live value.",
	})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachecluster_cache_misses_total",
		Help: "Number of cache GETs that found nothing or an expired entry.",
	})
	CacheEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cachecluster_cache_evictions_total",
		Help: "Number of entries removed from the cache, by reason.",
	}, []string{"reason"}) // "ttl", "lru", "invalidate"

	DispatchWins = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachecluster_dispatch_wins_total",
		Help: "Number of fan-out dispatches that returned a winning response.",
	})
	DispatchLosses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachecluster_dispatch_losses_total",
		Help: "Number of fan-out dispatches where every replica failed.",
	})

	MultiplexerTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachecluster_multiplexer_timeouts_total",
		Help: "Number of in-flight requests that hit their max_duration.",
	})

	RingSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cachecluster_ring_size_nodes",
		Help: "Number of real nodes currently present on the consistent-hash ring.",
	})
)

// Register wires every collector above into reg. Call once per process.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(CacheHits, CacheMisses, CacheEvictions, DispatchWins, DispatchLosses, MultiplexerTimeouts, RingSize)
}

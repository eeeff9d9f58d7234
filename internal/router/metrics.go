package router

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks per-tier routing outcomes and latencies.
type Metrics struct {
	TierDispatches *prometheus.CounterVec
	TierLatency    *prometheus.HistogramVec
	LLMCalls       prometheus.Counter
	ExternalCalls  prometheus.Counter
	CacheHits      prometheus.Counter
	DiscoveryReuse prometheus.Counter
}

// MustNewMetrics registers router metrics on the given registerer, panicking
// on duplicate registration.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TierDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "otto",
			Subsystem: "router",
			Name:      "tier_dispatches_total",
			Help:      "Requests dispatched per cascade tier.",
		}, []string{"tier"}),
		TierLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "otto",
			Subsystem: "router",
			Name:      "tier_latency_seconds",
			Help:      "End-to-end latency per cascade tier.",
			Buckets:   []float64{.005, .05, .25, 1, 2.5, 5, 15, 30, 60},
		}, []string{"tier"}),
		LLMCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "otto",
			Subsystem: "router",
			Name:      "llm_calls_total",
			Help:      "Completions issued across all tiers.",
		}),
		ExternalCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "otto",
			Subsystem: "router",
			Name:      "external_calls_total",
			Help:      "External tool-server invocations.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "otto",
			Subsystem: "router",
			Name:      "knowledge_cache_hits_total",
			Help:      "Discovery requests served from the knowledge cache.",
		}),
		DiscoveryReuse: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "otto",
			Subsystem: "router",
			Name:      "discovery_reuse_total",
			Help:      "Discovery requests served by replaying a recorded solution.",
		}),
	}
	reg.MustRegister(m.TierDispatches, m.TierLatency, m.LLMCalls,
		m.ExternalCalls, m.CacheHits, m.DiscoveryReuse)
	return m
}

// NopMetrics returns metrics bound to a throwaway registry, for tests.
func NopMetrics() *Metrics {
	return MustNewMetrics(prometheus.NewRegistry())
}

package crawler

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the crawl counters exported at /metrics.
type Metrics struct {
	RequestsAdmitted prometheus.Counter
	RateDenied       prometheus.Counter
	ArtistsUpserted  prometheus.Counter
	Completions      prometheus.Counter
	Retries          prometheus.Counter
	WorkerFailures   prometheus.Counter
}

// NewMetrics creates and registers the crawl counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artistcrawl_requests_admitted_total",
			Help: "Upstream search requests admitted through the shared window.",
		}),
		RateDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artistcrawl_rate_denied_total",
			Help: "Admission attempts denied by the shared window.",
		}),
		ArtistsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artistcrawl_artists_upserted_total",
			Help: "Artist rows written (including conflict no-ops).",
		}),
		Completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artistcrawl_completions_total",
			Help: "Prefixes recorded as fully walked.",
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artistcrawl_retries_total",
			Help: "Worker retries scheduled after upstream 429s.",
		}),
		WorkerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artistcrawl_worker_failures_total",
			Help: "Workers that surfaced an error after cleanup.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.RequestsAdmitted,
			m.RateDenied,
			m.ArtistsUpserted,
			m.Completions,
			m.Retries,
			m.WorkerFailures,
		)
	}
	return m
}

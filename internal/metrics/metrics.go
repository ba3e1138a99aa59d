package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quizgen"

var (
	providerReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total provider requests by provider, model and result",
		},
		[]string{"provider", "model", "result"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of provider requests by provider and model",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		},
		[]string{"provider", "model"},
	)

	retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retries by provider and error kind",
		},
		[]string{"provider", "kind"},
	)

	governorWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "governor_wait_seconds",
			Help:      "Time spent waiting for rate governor admission",
			Buckets:   []float64{0, 0.5, 1, 3, 6, 10, 30, 60},
		},
		[]string{"provider"},
	)

	strategyOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_outcomes_total",
			Help:      "Generation strategy attempts by strategy and result (success, failed, skipped)",
		},
		[]string{"strategy", "result"},
	)

	results = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Generation results by status (ok, fallback, error)",
		},
		[]string{"status"},
	)

	chunksUsed = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunks_used",
			Help:      "Chunks kept per optimized document",
			Buckets:   prometheus.LinearBuckets(1, 2, 8),
		},
	)

	breakerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_events_total",
			Help:      "Circuit breaker events by provider, model and action",
		},
		[]string{"provider", "model", "action"},
	)
)

var once sync.Once

// Init registers collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(providerReqs, providerLatency, retries, governorWait, strategyOutcomes, results, chunksUsed, breakerEvents)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveProvider(provider, model, result string, dur time.Duration) {
	providerReqs.WithLabelValues(provider, model, result).Inc()
	providerLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}

func IncRetry(provider, kind string) { retries.WithLabelValues(provider, kind).Inc() }

func ObserveGovernorWait(provider string, d time.Duration) {
	governorWait.WithLabelValues(provider).Observe(d.Seconds())
}

func IncStrategy(strategy, result string) { strategyOutcomes.WithLabelValues(strategy, result).Inc() }
func IncResult(status string)             { results.WithLabelValues(status).Inc() }
func ObserveChunks(n int)                 { chunksUsed.Observe(float64(n)) }

func BreakerOpened(provider, model string) {
	breakerEvents.WithLabelValues(provider, model, "opened").Inc()
}
func BreakerClosed(provider, model string) {
	breakerEvents.WithLabelValues(provider, model, "closed").Inc()
}
func BreakerSkipped(provider, model string) {
	breakerEvents.WithLabelValues(provider, model, "skipped").Inc()
}

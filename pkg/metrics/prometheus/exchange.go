package prometheus

import (
	"sync"
	"time"

	"github.com/marmos91/saslgate/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// exchangeMetrics is the Prometheus implementation of metrics.ExchangeMetrics.
type exchangeMetrics struct {
	handlesCreated  *prometheus.CounterVec
	unsupported     *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	completions     *prometheus.CounterVec
	lookups         *prometheus.CounterVec
	lookupDurations *prometheus.HistogramVec
}

var (
	cacheMu sync.Mutex
	cache   = map[*prometheus.Registry]*exchangeMetrics{}
)

// NewExchangeMetrics returns the exchange collectors registered on the
// metrics registry. Repeated calls share one instance per registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewExchangeMetrics() *exchangeMetrics {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if m, ok := cache[reg]; ok {
		return m
	}
	m := newExchangeMetrics(reg)
	cache[reg] = m
	return m
}

func newExchangeMetrics(reg prometheus.Registerer) *exchangeMetrics {
	f := promauto.With(reg)
	return &exchangeMetrics{
		handlesCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saslgate_handles_created_total",
				Help: "Mechanism handles created by mechanism and side",
			},
			[]string{"mechanism", "side"},
		),
		unsupported: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saslgate_unsupported_mechanism_total",
				Help: "Handle creations rejected because no candidate mechanism was supported",
			},
			[]string{"side"},
		),
		stepDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "saslgate_step_duration_seconds",
				Help:    "Duration of exchange steps",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"mechanism", "side", "step"},
		),
		completions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saslgate_exchanges_completed_total",
				Help: "Handles reaching a terminal state by outcome",
			},
			[]string{"mechanism", "side", "outcome"},
		),
		lookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saslgate_credential_lookups_total",
				Help: "Credential lookups by realm and result",
			},
			[]string{"realm", "result"},
		),
		lookupDurations: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "saslgate_credential_lookup_duration_seconds",
				Help:    "Duration of credential lookups by realm",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"realm"},
		),
	}
}

func (m *exchangeMetrics) RecordHandleCreated(mechanism, side string) {
	if m == nil {
		return
	}
	m.handlesCreated.WithLabelValues(mechanism, side).Inc()
}

func (m *exchangeMetrics) RecordUnsupported(side string) {
	if m == nil {
		return
	}
	m.unsupported.WithLabelValues(side).Inc()
}

func (m *exchangeMetrics) RecordStep(mechanism, side, step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(mechanism, side, step).Observe(duration.Seconds())
}

func (m *exchangeMetrics) RecordCompletion(mechanism, side, outcome string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(mechanism, side, outcome).Inc()
}

func (m *exchangeMetrics) RecordDirectoryLookup(realm, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(realm, result).Inc()
	m.lookupDurations.WithLabelValues(realm).Observe(duration.Seconds())
}

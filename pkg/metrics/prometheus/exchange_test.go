package prometheus

import (
	"testing"
	"time"

	"github.com/marmos91/saslgate/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExchangeMetrics_DisabledReturnsNil(t *testing.T) {
	metrics.Reset()
	m := NewExchangeMetrics()
	assert.Nil(t, m)

	// nil receivers are no-ops
	m.RecordHandleCreated("PLAIN", "server")
	m.RecordCompletion("PLAIN", "server", metrics.OutcomeSuccess)
	m.RecordDirectoryLookup("ldap", metrics.LookupFound, time.Millisecond)

	var iface metrics.ExchangeMetrics = m
	iface.RecordStep("PLAIN", "server", "evaluate-response", time.Millisecond)
}

func TestExchangeMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.UseRegistry(reg)
	t.Cleanup(metrics.Reset)

	m := NewExchangeMetrics()
	require.NotNil(t, m)
	assert.Same(t, m, NewExchangeMetrics(), "one instance per registry")

	m.RecordHandleCreated("PLAIN", "server")
	m.RecordHandleCreated("PLAIN", "server")
	m.RecordHandleCreated("LOGIN", "client")
	m.RecordUnsupported("server")
	m.RecordCompletion("PLAIN", "server", metrics.OutcomeFailure)
	m.RecordDirectoryLookup("ldap", metrics.LookupNotFound, 2*time.Millisecond)
	m.RecordStep("PLAIN", "server", "evaluate-response", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.handlesCreated.WithLabelValues("PLAIN", "server")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handlesCreated.WithLabelValues("LOGIN", "client")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unsupported.WithLabelValues("server")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues("PLAIN", "server", metrics.OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("ldap", metrics.LookupNotFound)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stepDuration))
}

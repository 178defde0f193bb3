package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordIndexerCall(t *testing.T) {
	t.Parallel()
	m := New()

	m.RecordIndexerCall("get_balance", 10*time.Millisecond, nil)
	m.RecordIndexerCall("get_balance", 20*time.Millisecond, errors.New("timeout"))
	m.RecordIndexerCall("get_history", 5*time.Millisecond, nil)

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.indexerCalls.WithLabelValues("get_balance")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.indexerErrors.WithLabelValues("get_balance")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.indexerCalls.WithLabelValues("get_history")), 0.001)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.indexerErrors.WithLabelValues("get_history")), 0.001)
}

func TestMetrics_Outcomes(t *testing.T) {
	t.Parallel()
	m := New()

	m.RecordConnect(nil)
	m.RecordConnect(errors.New("refused"))
	m.RecordConnect(errors.New("refused"))
	m.RecordDiscoveryRun(OutcomeSuccess)
	m.RecordSweep(OutcomeSkipped)
	m.AddAddressesScanned(120)
	m.AddAddressesScanned(-3)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.connects.WithLabelValues(OutcomeSuccess)), 0.001)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.connects.WithLabelValues(OutcomeFailure)), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.discoveryRuns.WithLabelValues(OutcomeSuccess)), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.sweeps.WithLabelValues(OutcomeSkipped)), 0.001)
	assert.InDelta(t, 120.0, testutil.ToFloat64(m.addressesScanned), 0.001)
}

func TestMetrics_IsolatedInstances(t *testing.T) {
	t.Parallel()
	a := New()
	b := New()

	a.RecordDiscoveryRun(OutcomeFailure)

	assert.InDelta(t, 1.0, testutil.ToFloat64(a.discoveryRuns.WithLabelValues(OutcomeFailure)), 0.001)
	assert.InDelta(t, 0.0, testutil.ToFloat64(b.discoveryRuns.WithLabelValues(OutcomeFailure)), 0.001)
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()
	m := New()
	m.RecordHTTPRequest("/api/v1/scan", http.StatusOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `hdscan_http_requests_total{code="200",path="/api/v1/scan"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

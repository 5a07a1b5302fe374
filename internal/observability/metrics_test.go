package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() *Metrics {
	return NewMetrics("test", prometheus.NewRegistry())
}

func TestRecordRunAndStep(t *testing.T) {
	m := newTestMetrics()

	m.RecordRun("passed", 3*time.Second)
	m.RecordRun("failed", time.Second)
	m.RecordStep("click", "passed")
	m.RecordStep("assert", "failed")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepsTotal.WithLabelValues("click", "passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepsTotal.WithLabelValues("assert", "failed")))
}

func TestRecordCompileObservesAttemptsOnSuccessOnly(t *testing.T) {
	m := newTestMetrics()

	m.RecordCompile("success", 2)
	m.RecordCompile("exhausted", 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompilesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompilesTotal.WithLabelValues("exhausted")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CompileAttempts))
}

func TestRecordLLMRequest(t *testing.T) {
	m := newTestMetrics()

	m.RecordLLMRequest("gpt-test", "success", 2*time.Second, 120, 40)
	m.RecordLLMCacheHit()
	m.RecordLLMCacheMiss()
	m.RecordLLMCacheMiss()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("gpt-test", "success")))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("gpt-test", "input")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("gpt-test", "output")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMCacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LLMCacheMisses))
}

func TestHTTPMiddlewareCapturesStatus(t *testing.T) {
	m := newTestMetrics()

	handler := m.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/sessions", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsActive))
}

func TestSessionsActiveGauge(t *testing.T) {
	m := newTestMetrics()
	m.SessionsActive.Set(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsActive))
}

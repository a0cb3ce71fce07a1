package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	reg, m := NewRegistry()

	m.Ask(OutcomeCacheHit)
	m.Ask(OutcomeCacheHit)
	m.Ask(OutcomeFallback)
	m.IngestedChunks(4)
	m.CacheError("get")
	m.DegradedRead()
	m.Coalesced()
	m.ObserveStage("generate", time.Now().Add(-50*time.Millisecond))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.asks.WithLabelValues(OutcomeCacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.asks.WithLabelValues(OutcomeFallback)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ingestedChunks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheErrors.WithLabelValues("get")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `docqa_asks_total{outcome="cache_hit"} 2`))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var m *RAG
	assert.NotPanics(t, func() {
		m.Ask(OutcomeGenerated)
		m.IngestedChunks(1)
		m.CacheError("set")
		m.DegradedRead()
		m.Coalesced()
		m.ObserveStage("embed", time.Now())
	})
}

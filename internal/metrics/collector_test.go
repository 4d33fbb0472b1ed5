package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector("ragflow", zap.NewNop())
	b := NewCollector("ragflow", zap.NewNop())

	a.RecordCacheHit("web_search")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.cacheHits.WithLabelValues("web_search")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.cacheHits.WithLabelValues("web_search")))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := NewCollector("test", nil)

	c.RecordHTTPRequest("POST", "/v1/ask", 200, 100*time.Millisecond)
	c.RecordHTTPRequest("POST", "/v1/ask", 201, 50*time.Millisecond)
	c.RecordHTTPRequest("POST", "/v1/ask", 502, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/v1/ask", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/v1/ask", "5xx")))
}

func TestCollector_CompletionObserver(t *testing.T) {
	c := NewCollector("test", nil)
	observe := c.CompletionObserver()

	observe("router", 20*time.Millisecond, nil)
	observe("router", 30*time.Millisecond, nil)
	observe("generator", time.Second, errors.New("timeout"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("router", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("generator", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.llmRequestDuration))
}

func TestCollector_RecordRun(t *testing.T) {
	c := NewCollector("test", nil)

	c.RecordRun("vectorstore", 2*time.Second, 1, nil)
	c.RecordRun("", time.Second, 0, errors.New("route invalid"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("vectorstore", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("none", "error")))

	expected := `
# HELP test_pipeline_query_rewrites Query rewrites per run
# TYPE test_pipeline_query_rewrites histogram
test_pipeline_query_rewrites_bucket{le="0"} 0
test_pipeline_query_rewrites_bucket{le="1"} 1
test_pipeline_query_rewrites_bucket{le="2"} 1
test_pipeline_query_rewrites_bucket{le="3"} 1
test_pipeline_query_rewrites_bucket{le="5"} 1
test_pipeline_query_rewrites_bucket{le="8"} 1
test_pipeline_query_rewrites_bucket{le="+Inf"} 1
test_pipeline_query_rewrites_sum 1
test_pipeline_query_rewrites_count 1
`
	require.NoError(t, testutil.CollectAndCompare(c.queryRewrites, strings.NewReader(expected)))
}

func TestCollector_NodeObserver(t *testing.T) {
	c := NewCollector("test", nil)
	obs := c.NodeObserver()
	ctx := context.Background()

	obs.OnNodeStart(ctx, "retrieve", 1)
	obs.OnNodeEnd(ctx, "retrieve", 1, 10*time.Millisecond, nil)
	obs.OnNodeEnd(ctx, "grade_documents", 2, 5*time.Millisecond, errors.New("malformed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.nodeTotal.WithLabelValues("retrieve", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.nodeTotal.WithLabelValues("grade_documents", "error")))
}

func TestCollector_CacheLookupObserver(t *testing.T) {
	c := NewCollector("test", nil)
	lookup := c.CacheLookupObserver("web_search")

	lookup(false)
	lookup(true)
	lookup(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("web_search")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses.WithLabelValues("web_search")))
}

func TestCollector_RecordDBConnections(t *testing.T) {
	c := NewCollector("test", nil)
	c.RecordDBConnections("checkpoints", 4, 2)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("checkpoints")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("checkpoints")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("ragflow", nil)
	c.RecordRun("direct", time.Second, 0, nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `ragflow_pipeline_runs_total{route="direct",status="success"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestStatusCode(t *testing.T) {
	tests := map[int]string{200: "2xx", 204: "2xx", 301: "3xx", 404: "4xx", 500: "5xx", 503: "5xx", 100: "unknown"}
	for code, want := range tests {
		assert.Equal(t, want, statusCode(code), "%d", code)
	}
}

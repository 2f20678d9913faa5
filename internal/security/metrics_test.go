package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestParseMetricsLabels(t *testing.T) {
	t.Setenv("POD", "pod-1")

	labels, err := ParseMetricsLabels("service=memory-service,pod=${POD}")
	require.NoError(t, err)
	require.Equal(t, prometheus.Labels{"service": "memory-service", "pod": "pod-1"}, labels)

	labels, err = ParseMetricsLabels("")
	require.NoError(t, err)
	require.Nil(t, labels)

	_, err = ParseMetricsLabels("novalue")
	require.Error(t, err)
	_, err = ParseMetricsLabels("1bad=x")
	require.Error(t, err)
}

func TestMetricsRecorders(t *testing.T) {
	InitMetrics(prometheus.Labels{"service": "memory-service-test"})

	before := testutil.ToFloat64(ProviderCallsTotal.WithLabelValues("openai", "embed", "degraded"))
	CountProviderCall("openai", "embed", "degraded")
	require.Equal(t, before+1, testutil.ToFloat64(ProviderCallsTotal.WithLabelValues("openai", "embed", "degraded")))

	hits := testutil.ToFloat64(CacheHitsTotal)
	CountCache(true)
	require.Equal(t, hits+1, testutil.ToFloat64(CacheHitsTotal))

	stored := testutil.ToFloat64(ExtractionCandidatesTotal.WithLabelValues("stored"))
	CountExtraction("stored", 3)
	CountExtraction("stored", 0)
	require.Equal(t, stored+3, testutil.ToFloat64(ExtractionCandidatesTotal.WithLabelValues("stored")))

	ObserveStore("create", time.Millisecond)
	CountIndexed(2)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/api/memory/:user_id", func(c *gin.Context) { c.Status(http.StatusOK) })

	route := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/memory/:user_id", "200")
	reqs := testutil.ToFloat64(route)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/memory/abc", nil))
	require.Equal(t, reqs+1, testutil.ToFloat64(route))
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/result/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/result/"+id, nil))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "/result/:id", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.requestInFlight))
}

func TestRecorderCounters(t *testing.T) {
	m := New()
	m.ObserveClassification("remote", "ai", 120*time.Millisecond)
	m.ObserveClassification("remote", "error", time.Second)
	m.ObserveClassification("local", "", time.Millisecond)
	m.ObserveCacheLookup(true)
	m.ObserveCacheLookup(false)
	m.ObserveCacheLookup(false)
	m.ObserveUpstreamAttempt(503)
	m.ObserveUpstreamAttempt(200)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.classificationsTotal.WithLabelValues("remote", "ai")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.classificationsTotal.WithLabelValues("local", "unknown")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookupsTotal.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamAttemptsTotal.WithLabelValues("503")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.classificationDuration))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveCacheLookup(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `aidetect_cache_lookups_total{result="hit"} 1`))
}

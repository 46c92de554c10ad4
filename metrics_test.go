package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cache-apdex-tester/internal/apdex"
)

func TestMetrics_Observe(t *testing.T) {
	agg, err := apdex.NewAggregator(apdex.DefaultThresholds)
	require.NoError(t, err)
	m := NewMetrics(agg)

	m.ObserveRequest(RequestResult{Probe: ProbeCache, StatusCode: http.StatusOK})
	m.ObserveRequest(RequestResult{Probe: ProbeCache, StatusCode: http.StatusBadGateway})
	m.ObserveOutcome(apdex.Hit)
	m.ObserveRecord(apdex.CacheHit, apdex.Satisfied, 42)
	m.vuStarted()
	m.vuStarted()
	m.vuStopped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("Cache", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("Cache", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("HIT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.zones.WithLabelValues("cache_hit", "satisfied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeVUs))
}

func TestMetrics_Router(t *testing.T) {
	agg, err := apdex.NewAggregator(apdex.DefaultThresholds)
	require.NoError(t, err)
	m := NewMetrics(agg)

	agg.Record(apdex.CacheHit, 100)
	agg.Record(apdex.CacheHit, 1000)

	srv := httptest.NewServer(m.Router(agg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/summary")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var summary apdex.RunSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, uint64(2), summary.CacheHit.TotalRequests)
	assert.InDelta(t, 0.75, summary.CacheHit.ApdexScore, 1e-9)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `cache_apdex_score{category="cache_hit"} 0.75`)
	assert.Contains(t, text, `cache_apdex_score{category="no_cache"} 0`)
	assert.True(t, strings.Contains(text, "cache_apdex_active_vus"))

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

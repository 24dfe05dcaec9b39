package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("quote_map_export").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("quote_map_export").End(boom), boom)

	body := scrape(t, reg)
	require.Contains(t, body, `procura_jobs_total{job="quote_map_export",status="success"} 1`)
	require.Contains(t, body, `procura_jobs_total{job="quote_map_export",status="failure"} 1`)
	require.Contains(t, body, `procura_jobs_failures_total{job="quote_map_export"} 1`)
	require.Contains(t, body, `procura_job_duration_seconds_count{job="quote_map_export"} 2`)
}

func TestAddDocuments(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.AddDocuments("pdf", 1)
	m.AddDocuments("pdf", 0)
	m.AddDocuments("xlsx", 2)

	body := scrape(t, reg)
	require.Contains(t, body, `procura_export_documents_total{format="pdf"} 1`)
	require.Contains(t, body, `procura_export_documents_total{format="xlsx"} 2`)

	var nilMetrics *Metrics
	nilMetrics.AddDocuments("pdf", 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}

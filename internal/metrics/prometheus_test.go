package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (*mux.Router, *PrometheusMiddleware, *prometheus.Registry) {
	t.Helper()
	// Use a fresh registry for each test to avoid "duplicate registration" panic
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMiddleware(reg)
	require.NoError(t, err)

	r := mux.NewRouter()
	r.Use(m.Handler)
	r.HandleFunc("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET", "DELETE")
	r.HandleFunc("/error", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}).Methods("GET")
	r.HandleFunc("/api/invoice/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
	r.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r, m, reg
}

func TestPrometheusMiddleware(t *testing.T) {
	r, m, _ := newRouter(t)

	tests := []struct {
		method string
		path   string
		label  string
		status string
	}{
		{"GET", "/test", "/test", "200"},
		{"DELETE", "/test", "/test", "200"},
		{"GET", "/error", "/error", "400"},
		{"GET", "/api/invoice/42", "/api/invoice/{id}", "200"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			count := testutil.ToFloat64(m.requestCount.WithLabelValues(tt.method, tt.label, tt.status))
			assert.Equal(t, float64(1), count)
		})
	}
	assert.Positive(t, testutil.CollectAndCount(m.requestDuration))
}

func TestPrometheusMiddleware_ExcludeMetrics(t *testing.T) {
	r, _, reg := newRouter(t)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/metrics", nil))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "http_requests_total" {
			assert.Empty(t, mf.GetMetric())
		}
	}
}

func TestPipeline(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPipeline(reg)
	require.NoError(t, err)

	p.ObserveStage("parse", 2*time.Second)
	p.Document(OutcomeSuccess)
	p.Document(OutcomeFailure)
	p.Document(OutcomeFailure)
	p.Fallbacks(3)
	p.Fallbacks(0)
	p.Tier("tesseract", TierOK)

	assert.Equal(t, float64(1), testutil.ToFloat64(p.documents.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, float64(2), testutil.ToFloat64(p.documents.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, float64(3), testutil.ToFloat64(p.fallbacks))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.ocrTier.WithLabelValues("tesseract", TierOK)))
	assert.Equal(t, 1, testutil.CollectAndCount(p.stageDuration))

	_, err = NewPipeline(reg)
	assert.Error(t, err, "second registration on the same registry fails")
}

func TestPipeline_Nil(t *testing.T) {
	var p *Pipeline
	assert.NotPanics(t, func() {
		p.ObserveStage("parse", time.Second)
		p.Document(OutcomeSuccess)
		p.Fallbacks(1)
		p.Tier("gemini", TierFailed)
	})
}

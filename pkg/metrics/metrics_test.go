package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Upload("accepted")
	m.Upload("accepted")
	m.IndexOp("primary", "upsert", errors.New("down"), 0.2)
	m.Compensation(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexOpsTotal.WithLabelValues("primary", "upsert", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompensationsTotal.WithLabelValues("ok")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Upload("accepted")
		m.PipelineRun("ready")
		m.Stage("extract", 1)
		m.Chunks(3)
		m.ChunkerFallback()
		m.IndexOp("x", "delete", nil, 0)
		m.Compensation(nil)
		m.BreakerState("x", 1)
	})
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.PipelineRun("ready")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ingest_pipeline_runs_total{status="ready"} 1`)
}

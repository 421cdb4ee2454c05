package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Histogram != nil:
		return float64(m.Histogram.GetSampleCount())
	}
	t.Fatalf("unsupported metric %v", &m)
	return 0
}

func TestRecorderCountsEvents(t *testing.T) {
	r := NewRecorder("test-counts")
	r.Covered(2)
	r.Covered(1)
	r.GeneticAlgorithm()
	r.Subsumed(4)
	r.Deleted(false)
	r.Deleted(true)
	r.Deleted(true)
	r.Stepped(true, 40, 12, 3.5)
	r.Stepped(false, 42, 13, 1.5)
	r.Problem("learning", 7)

	assert.Equal(t, 3.0, value(t, covered.WithLabelValues("test-counts")))
	assert.Equal(t, 1.0, value(t, geneticAlgorithm.WithLabelValues("test-counts")))
	assert.Equal(t, 4.0, value(t, subsumed.WithLabelValues("test-counts")))
	assert.Equal(t, 1.0, value(t, deleted.WithLabelValues("test-counts", "micro")))
	assert.Equal(t, 2.0, value(t, deleted.WithLabelValues("test-counts", "macro")))
	assert.Equal(t, 1.0, value(t, steps.WithLabelValues("test-counts", "explore")))
	assert.Equal(t, 1.0, value(t, steps.WithLabelValues("test-counts", "exploit")))
	assert.Equal(t, 42.0, value(t, populationSize.WithLabelValues("test-counts")))
	assert.Equal(t, 13.0, value(t, macroSize.WithLabelValues("test-counts")))
	assert.Equal(t, 1.5, value(t, systemError.WithLabelValues("test-counts")))
	assert.Equal(t, 1.0, value(t, problems.WithLabelValues("test-counts", "learning")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRecorder("test-handler")
	r.Stepped(true, 10, 5, 0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `xcs_engine_population_size{run="test-handler"} 10`))

	r.Forget()
	rec = httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err = io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(body), `xcs_engine_population_size{run="test-handler"}`))
}

func TestServerServesMetrics(t *testing.T) {
	r := NewRecorder("test-server")
	defer r.Forget()
	r.Stepped(false, 3, 2, 0)

	srv := NewServer("127.0.0.1:0", nil)
	assert.Equal(t, "metrics", srv.Name())
	require.NoError(t, srv.Start(context.Background()))
	defer func() { require.NoError(t, srv.Stop(context.Background())) }()

	resp, err := http.Get("http://" + srv.ListenAddr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `xcs_engine_macro_size{run="test-server"} 2`)
}

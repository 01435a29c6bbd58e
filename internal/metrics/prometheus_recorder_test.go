package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveCompileDuration(150 * time.Millisecond)
	pr.IncCompileOutcome(OutcomeSuccess)
	pr.IncCompileOutcome(OutcomeFailed)
	pr.IncCompileOutcome(OutcomeSuccess)
	pr.IncCoalescedInvalidation()
	pr.IncRequest(http.StatusOK)
	pr.ObserveRequestWait(10 * time.Millisecond)
	pr.SetHotClients(3)
	pr.IncBroadcast("update")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 7)

	assert.InDelta(t, 2, testutil.ToFloat64(pr.compileOutcome.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.compileOutcome.WithLabelValues("failed")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(pr.hotClients), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.requests.WithLabelValues("200")), 0)
}

func TestPrometheusRecorder_NilReceiver(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.IncCompileOutcome(OutcomeSuccess)
		pr.SetHotClients(1)
	})
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncBroadcast("reload")

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bundledev_hot_broadcasts_total{kind="reload"} 1`)
}

var _ Recorder = NoopRecorder{}
var _ Recorder = (*PrometheusRecorder)(nil)

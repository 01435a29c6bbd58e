package metrics

import (
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "bundledev"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	compileDuration prom.Histogram
	compileOutcome  *prom.CounterVec
	coalesced       prom.Counter
	requests        *prom.CounterVec
	requestWait     prom.Histogram
	hotClients      prom.Gauge
	broadcasts      *prom.CounterVec
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil registry gets a fresh one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		compileDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "compile_duration_seconds",
			Help:      "Duration of compile cycles",
			Buckets:   prom.DefBuckets,
		}),
		compileOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "compile_outcomes_total",
			Help:      "Compile cycles by outcome",
		}, []string{"outcome"}),
		coalesced: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "coalesced_invalidations_total",
			Help:      "Invalidations folded into a pending follow-up compile",
		}),
		requests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_requests_total",
			Help:      "Artifact requests answered by the serving middleware",
		}, []string{"status"}),
		requestWait: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_request_wait_seconds",
			Help:      "Time artifact requests were held while a compile was running",
			Buckets:   prom.DefBuckets,
		}),
		hotClients: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "hot_clients",
			Help:      "Connected hot update clients",
		}),
		broadcasts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "hot_broadcasts_total",
			Help:      "Hot update notifications broadcast by kind",
		}, []string{"kind"}),
	}
	reg.MustRegister(pr.compileDuration, pr.compileOutcome, pr.coalesced, pr.requests, pr.requestWait, pr.hotClients, pr.broadcasts)
	return pr
}

func (p *PrometheusRecorder) ObserveCompileDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.compileDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCompileOutcome(outcome OutcomeLabel) {
	if p == nil {
		return
	}
	p.compileOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncCoalescedInvalidation() {
	if p == nil {
		return
	}
	p.coalesced.Inc()
}

func (p *PrometheusRecorder) IncRequest(status int) {
	if p == nil {
		return
	}
	p.requests.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (p *PrometheusRecorder) ObserveRequestWait(d time.Duration) {
	if p == nil {
		return
	}
	p.requestWait.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetHotClients(n int) {
	if p == nil {
		return
	}
	p.hotClients.Set(float64(n))
}

func (p *PrometheusRecorder) IncBroadcast(kind string) {
	if p == nil {
		return
	}
	p.broadcasts.WithLabelValues(kind).Inc()
}

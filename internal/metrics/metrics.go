// Package metrics exposes the scheduler's pool status and scaling activity
// to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spicaengine/fnscheduler/internal/models"
)

const namespace = "fnscheduler"

// StatusSource is anything that can report a pool snapshot.
type StatusSource interface {
	GetStatus() models.Status
}

// StatusCollector turns every scrape into one GetStatus call.
type StatusCollector struct {
	source StatusSource

	workers      *prometheus.Desc
	workersTotal *prometheus.Desc
	activated    *prometheus.Desc
	queueSize    *prometheus.Desc
	responseTime *prometheus.Desc
}

func NewStatusCollector(source StatusSource) *StatusCollector {
	return &StatusCollector{
		source: source,
		workers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "workers"),
			"Live workers by state.",
			[]string{"state"}, nil,
		),
		workersTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "workers_total"),
			"All workers known to the scheduler, including starting and dying ones.",
			nil, nil,
		),
		activated: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "workers_activated"),
			"Workers that reported ready and are still alive.",
			nil, nil,
		),
		queueSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "queue_size"),
			"Events waiting for a worker.",
			nil, nil,
		),
		responseTime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "response_time_seconds"),
			"Rolling average time from enqueue to dispatch.",
			nil, nil,
		),
	}
}

func (c *StatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.workers
	ch <- c.workersTotal
	ch <- c.activated
	ch <- c.queueSize
	ch <- c.responseTime
}

func (c *StatusCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.source.GetStatus()

	ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(st.Fresh), "fresh")
	ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(st.Busy), "busy")
	ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(st.Targeted), "targeted")
	ch <- prometheus.MustNewConstMetric(c.workersTotal, prometheus.GaugeValue, float64(st.Total))
	ch <- prometheus.MustNewConstMetric(c.activated, prometheus.GaugeValue, float64(st.Activated))
	ch <- prometheus.MustNewConstMetric(c.queueSize, prometheus.GaugeValue, float64(st.QueueSize))
	ch <- prometheus.MustNewConstMetric(c.responseTime, prometheus.GaugeValue, st.AverageResponseTime/float64(time.Second/time.Millisecond))
}

// Recorder matches scheduler.Recorder.
type Recorder interface {
	Record(ctx context.Context, action models.ScaleAction) error
}

// CountingRecorder counts scaling actions and forwards them to next, if any.
type CountingRecorder struct {
	next    Recorder
	actions *prometheus.CounterVec
}

func NewCountingRecorder(next Recorder) *CountingRecorder {
	return &CountingRecorder{
		next: next,
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scale_actions_total",
				Help:      "Auto-scaling actions by direction and reason.",
			},
			[]string{"direction", "reason"},
		),
	}
}

func (r *CountingRecorder) Record(ctx context.Context, a models.ScaleAction) error {
	r.actions.WithLabelValues(string(a.Direction), string(a.Reason)).Inc()
	if r.next == nil {
		return nil
	}
	return r.next.Record(ctx, a)
}

func (r *CountingRecorder) Collector() prometheus.Collector {
	return r.actions
}

// NewRegistry builds a registry with the process collectors and the given ones.
func NewRegistry(cs ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(cs...)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

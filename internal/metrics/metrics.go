// Package metrics exposes run and task outcomes as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/simple-grayscaler/pkg/schema"
)

// Recorder implements observe.Observer on top of Prometheus collectors.
type Recorder struct {
	TasksTotal    *prometheus.CounterVec
	TaskDuration  *prometheus.HistogramVec
	RunsTotal     *prometheus.CounterVec
	RunDuration   prometheus.Gauge
	RunUnfinished prometheus.Gauge
}

// NewRecorder registers the collectors with reg under namespace.
func NewRecorder(reg prometheus.Registerer, namespace string) *Recorder {
	if namespace == "" {
		namespace = "grayscaler"
	}
	factory := promauto.With(reg)

	return &Recorder{
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Tasks that reached a terminal status, by status and failure kind.",
		}, []string{"status", "kind"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Per-task processing time.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"status"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by terminal state.",
		}, []string{"state", "strategy"}),
		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall-clock duration of the most recent run.",
		}),
		RunUnfinished: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_unfinished_tasks",
			Help:      "Tasks left without a terminal status by the most recent run.",
		}),
	}
}

func (r *Recorder) TaskFinished(ev schema.TaskEvent) {
	r.TasksTotal.WithLabelValues(string(ev.Status), ev.FailureKind).Inc()
	r.TaskDuration.WithLabelValues(string(ev.Status)).Observe((time.Duration(ev.ElapsedMs) * time.Millisecond).Seconds())
}

func (r *Recorder) RunFinished(sum schema.RunSummary) {
	r.RunsTotal.WithLabelValues(string(sum.State), sum.Strategy).Inc()
	r.RunDuration.Set((time.Duration(sum.ElapsedMs) * time.Millisecond).Seconds())
	r.RunUnfinished.Set(float64(sum.Unfinished))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

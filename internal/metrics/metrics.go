// Package metrics counts supervisor outcomes for Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mvp-joe/xvfb-supervisor/internal/xvfb"
)

// Start and stop results.
const (
	ResultOK        = "ok"
	ResultAttached  = "attached"
	ResultCollision = "collision"
	ResultTimeout   = "timeout"
	ResultError     = "error"
)

// Recorder holds xvfbctl's metrics in its own registry.
type Recorder struct {
	registry *prometheus.Registry

	starts        *prometheus.CounterVec
	stops         *prometheus.CounterVec
	startDuration prometheus.Histogram
	stopDuration  prometheus.Histogram
	up            *prometheus.GaugeVec
}

// NewRecorder creates a recorder with its collectors registered.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,

		// starts tracks Start calls by result
		starts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xvfbctl_starts_total",
				Help: "Display server starts by result",
			},
			[]string{"result"},
		),

		// stops tracks Stop calls by result
		stops: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xvfbctl_stops_total",
				Help: "Display server stops by result",
			},
			[]string{"result"},
		),

		startDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "xvfbctl_start_duration_seconds",
			Help:    "Time from launch until the lock file appeared",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),

		stopDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "xvfbctl_stop_duration_seconds",
			Help:    "Time from kill until the lock file disappeared",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),

		// up is 1 while a display supervised by this process is running
		up: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "xvfbctl_display_up",
				Help: "Whether the supervised display is running",
			},
			[]string{"display"},
		),
	}
}

// Start records the outcome of a Start on display d.
func (r *Recorder) Start(d string, attached bool, took time.Duration, err error) {
	result := StartResult(attached, err)
	r.starts.WithLabelValues(result).Inc()
	if err == nil {
		r.up.WithLabelValues(d).Set(1)
		if !attached {
			r.startDuration.Observe(took.Seconds())
		}
	}
}

// Stop records the outcome of a Stop on display d.
func (r *Recorder) Stop(d string, took time.Duration, err error) {
	result := ResultOK
	switch {
	case errors.Is(err, xvfb.ErrStopTimeout):
		result = ResultTimeout
	case err != nil:
		result = ResultError
	default:
		r.stopDuration.Observe(took.Seconds())
	}
	r.stops.WithLabelValues(result).Inc()
	r.up.WithLabelValues(d).Set(0)
}

// Handler serves the recorder's metrics in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and embedding.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// StartResult classifies a Start outcome.
func StartResult(attached bool, err error) string {
	switch {
	case err == nil && attached:
		return ResultAttached
	case err == nil:
		return ResultOK
	case errors.Is(err, xvfb.ErrCollision):
		return ResultCollision
	case errors.Is(err, xvfb.ErrStartTimeout):
		return ResultTimeout
	default:
		return ResultError
	}
}

// Package metrics exports thumbnail pipeline telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "thumbnailer"

// Collector records derivative and deletion outcomes. A nil *Collector is a
// valid no-op.
type Collector struct {
	derivatives      *prometheus.CounterVec
	derivativeTime   *prometheus.HistogramVec
	originalFailures prometheus.Counter
	deletes          *prometheus.CounterVec
}

func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		derivatives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "derivatives_total",
			Help:      "Derivatives attempted, by size, format and result.",
		}, []string{"size", "format", "result"}),
		derivativeTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "derivative_duration_seconds",
			Help:      "Transform plus upload latency of a single derivative.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"format"}),
		originalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "original_fetch_failures_total",
			Help:      "Generation requests that failed to fetch the original.",
		}),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletes_total",
			Help:      "Delete operations, by phase and result.",
		}, []string{"phase", "result"}),
	}

	collectors := []prometheus.Collector{c.derivatives, c.derivativeTime, c.originalFailures, c.deletes}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("metrics.New: %w", err)
		}
	}
	return c, nil
}

func (c *Collector) RecordDerivative(size, format string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.derivatives.WithLabelValues(size, format, result(err)).Inc()
	c.derivativeTime.WithLabelValues(format).Observe(d.Seconds())
}

func (c *Collector) RecordOriginalFailure() {
	if c == nil {
		return
	}
	c.originalFailures.Inc()
}

// RecordDelete counts one delete in phase "derived", "original" or "record".
func (c *Collector) RecordDelete(phase string, err error) {
	if c == nil {
		return
	}
	c.deletes.WithLabelValues(phase, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

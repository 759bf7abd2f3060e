// Package metrics counts what an initialization run did. The tool exits
// when it is done, so values are pushed to a Pushgateway rather than scraped.
package metrics

import (
	"context"
	"fmt"

	"mongoinit/pkg/report"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the collectors for one run.
type Metrics struct {
	registry *prometheus.Registry

	StepsTotal       *prometheus.CounterVec
	RunDuration      prometheus.Gauge
	RunSuccess       prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
}

// New registers the run collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mongoinit_steps_total",
			Help: "Setup steps applied to the database, by kind and outcome",
		}, []string{"kind", "outcome"}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mongoinit_run_duration_seconds",
			Help: "Wall time of the last initialization run",
		}),
		RunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mongoinit_run_success",
			Help: "1 if the last initialization run completed, 0 otherwise",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mongoinit_last_run_timestamp_seconds",
			Help: "Unix time the last initialization run finished",
		}),
	}
	m.registry.MustRegister(m.StepsTotal, m.RunDuration, m.RunSuccess, m.LastRunTimestamp)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records a finished run.
func (m *Metrics) Observe(r *report.RunReport) {
	for _, s := range r.Steps {
		m.StepsTotal.WithLabelValues(s.Kind, string(s.Outcome)).Inc()
	}
	m.RunDuration.Set(r.Duration().Seconds())
	if r.Completed {
		m.RunSuccess.Set(1)
	} else {
		m.RunSuccess.Set(0)
	}
	if !r.FinishedAt.IsZero() {
		m.LastRunTimestamp.Set(float64(r.FinishedAt.Unix()))
	}
}

// Push sends every collector to the Pushgateway under the given job,
// grouped by database. Collectors must not carry a "database" label
// themselves or the gateway rejects the push.
func (m *Metrics) Push(ctx context.Context, url, job, database string) error {
	err := push.New(url, job).
		Gatherer(m.registry).
		Grouping("database", database).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

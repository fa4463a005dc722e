// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the common pipeline labels (job, step, status) onto Prometheus
//     labels.
//   - Pushing collected metrics to a Prometheus Pushgateway instance instead of
//     exposing an HTTP scrape endpoint; export-processing runs are batch jobs
//     and are usually gone before a scraper would find them.
//
// The package intentionally contains all Prometheus-specific dependencies so
// that the rest of the project remains decoupled from Prometheus and can swap
// to alternative backends (e.g. Datadog, StatsD) without changes to the core
// pipeline.
package prompush

import (
	"fmt"

	"ehi/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	// Step-level metrics
	stepCounter  *prometheus.CounterVec // "ehi_step_total"
	stepDuration *prometheus.SummaryVec // "ehi_step_duration_seconds"

	// Row-level metrics
	rowCounter     *prometheus.CounterVec // "ehi_rows_total"
	patientCounter prometheus.Counter     // "ehi_patients_total"
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (often the export identifier).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "ehi"
	}

	reg := prometheus.NewRegistry()

	// job is carried as the Pushgateway grouping key; step and status stay
	// dynamic labels.
	stepCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ehi_step_total",
			Help: "Total number of pipeline step executions, partitioned by step and status.",
		},
		[]string{"step", "status"},
	)
	stepDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "ehi_step_duration_seconds",
			Help:       "Duration of pipeline steps in seconds, partitioned by step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"step", "status"},
	)

	// ROW metrics: kind (staged, merged, attached, skipped, violations).
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ehi_rows_total",
			Help: "Row-level counts per kind (staged, merged, attached, skipped, violations).",
		},
		[]string{"kind"},
	)

	// PATIENT metrics: simple counter per job (job is a grouping label via Pushgateway).
	patientCounter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ehi_patients_total",
			Help: "Total number of patient graphs built for this run.",
		},
	)

	if err := reg.Register(stepCounter); err != nil {
		return nil, fmt.Errorf("prompush: register step counter: %w", err)
	}
	if err := reg.Register(stepDuration); err != nil {
		return nil, fmt.Errorf("prompush: register step summary: %w", err)
	}
	if err := reg.Register(rowCounter); err != nil {
		return nil, fmt.Errorf("prompush: register row counter: %w", err)
	}
	if err := reg.Register(patientCounter); err != nil {
		return nil, fmt.Errorf("prompush: register patient counter: %w", err)
	}

	return &Backend{
		gatewayURL:     gatewayURL,
		jobName:        jobName,
		reg:            reg,
		stepCounter:    stepCounter,
		stepDuration:   stepDuration,
		rowCounter:     rowCounter,
		patientCounter: patientCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "ehi_step_total":
		if b.stepCounter == nil {
			return
		}
		step := labels["step"]
		status := labels["status"]
		b.stepCounter.WithLabelValues(step, status).Add(delta)

	case "ehi_rows_total":
		if b.rowCounter == nil {
			return
		}
		kind := labels["kind"]
		b.rowCounter.WithLabelValues(kind).Add(delta)

	case "ehi_patients_total":
		if b.patientCounter == nil {
			return
		}
		b.patientCounter.Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "ehi_step_duration_seconds" || b.stepDuration == nil {
		return
	}
	step := labels["step"]
	status := labels["status"]
	b.stepDuration.WithLabelValues(step, status).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}

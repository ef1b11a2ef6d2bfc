package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "metricboard"

// Metrics holds all MetricBoard metric instruments.
type Metrics struct {
	OpsApplied     metric.Int64Counter
	ApplyConflicts metric.Int64Counter
	ApplyDuration  metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.OpsApplied, err = meter.Int64Counter("metricboard.ops.applied",
		metric.WithDescription("Number of table mutations applied"))
	if err != nil {
		return nil, err
	}

	m.ApplyConflicts, err = meter.Int64Counter("metricboard.ops.conflicts",
		metric.WithDescription("Number of optimistic-locking conflicts during apply"))
	if err != nil {
		return nil, err
	}

	m.ApplyDuration, err = meter.Float64Histogram("metricboard.ops.apply_duration_seconds",
		metric.WithDescription("End-to-end apply duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

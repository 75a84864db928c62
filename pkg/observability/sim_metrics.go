package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SimMetrics holds the simulation instruments.
type SimMetrics struct {
	decisions   metric.Int64Counter
	events      metric.Int64Counter
	coherence   metric.Float64Histogram
	steps       metric.Int64Counter
	instability metric.Int64Counter
}

// NewSimMetrics registers the simulation instruments on the provider's meter.
func NewSimMetrics(p *Provider) (*SimMetrics, error) {
	meter := p.Meter()
	m := &SimMetrics{}
	var err error

	m.decisions, err = meter.Int64Counter("domovoi.decisions.total",
		metric.WithDescription("Policy decisions by verdict"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	m.events, err = meter.Int64Counter("domovoi.events.total",
		metric.WithDescription("Logged events by severity"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	m.coherence, err = meter.Float64Histogram("domovoi.step.coherence",
		metric.WithDescription("Mean population coherence per step"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0),
	)
	if err != nil {
		return nil, err
	}

	m.steps, err = meter.Int64Counter("domovoi.steps.total",
		metric.WithDescription("Completed simulation steps"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}

	m.instability, err = meter.Int64Counter("domovoi.instability.total",
		metric.WithDescription("Runs aborted by entropic instability"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordDecision counts one policy verdict.
func (m *SimMetrics) RecordDecision(ctx context.Context, verdict string) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}

// RecordEvent counts one logged event.
func (m *SimMetrics) RecordEvent(ctx context.Context, severity string) {
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("severity", severity)))
}

// RecordStep counts a completed step and its mean coherence.
func (m *SimMetrics) RecordStep(ctx context.Context, meanCoherence float64) {
	m.steps.Add(ctx, 1)
	m.coherence.Record(ctx, meanCoherence)
}

// RecordInstability counts a fatal instability.
func (m *SimMetrics) RecordInstability(ctx context.Context) {
	m.instability.Add(ctx, 1)
}

package lgptune

import (
	"context"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/thalesfsp/lgptune"

// sessionMetrics counts trials and evaluator runs. Instruments are no-ops
// unless the host installs a MeterProvider.
type sessionMetrics struct {
	trials      metric.Int64Counter
	pruned      metric.Int64Counter
	evaluations metric.Int64Counter
	score       metric.Float64Histogram
}

func newSessionMetrics(meter metric.Meter) (*sessionMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	var (
		m   sessionMetrics
		err error
	)

	if m.trials, err = meter.Int64Counter("lgptune_trials_total",
		metric.WithDescription("Trials finished, pruned or not.")); err != nil {
		return nil, err
	}

	if m.pruned, err = meter.Int64Counter("lgptune_trials_pruned_total",
		metric.WithDescription("Trials discarded by the pruning policy.")); err != nil {
		return nil, err
	}

	if m.evaluations, err = meter.Int64Counter("lgptune_evaluations_total",
		metric.WithDescription("Successful evaluator runs.")); err != nil {
		return nil, err
	}

	if m.score, err = meter.Float64Histogram("lgptune_trial_score",
		metric.WithDescription("Aggregated trial scores.")); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *sessionMetrics) recordEvaluation(ctx context.Context, env string) {
	m.evaluations.Add(ctx, 1, metric.WithAttributes(attribute.String("environment", env)))
}

func (m *sessionMetrics) recordTrial(ctx context.Context, env string, outcome TrialOutcome) {
	attrs := metric.WithAttributes(attribute.String("environment", env))

	m.trials.Add(ctx, 1, attrs)

	if outcome.Pruned {
		m.pruned.Add(ctx, 1, attrs)
	}

	if !math.IsNaN(outcome.Score) && !math.IsInf(outcome.Score, 0) {
		m.score.Record(ctx, outcome.Score, attrs)
	}
}

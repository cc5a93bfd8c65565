package application

import (
	"context"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/experiment/domain"
)

// ActiveExperimentLister lists active experiments, implemented by
// infrastructure/repository.ExperimentRepository.
type ActiveExperimentLister interface {
	ListActiveExperiments(ctx context.Context) ([]domain.Experiment, error)
}

// TelemetryCounter reads aggregated impression/click counts for one
// experiment/variant/day, implemented by
// infrastructure/repository.TelemetryRepository.
type TelemetryCounter interface {
	CountImpressions(ctx context.Context, experimentKey, variant, datePartition string) (int64, error)
	CountClicks(ctx context.Context, experimentKey, variant, datePartition string) (int64, error)
	SumDwellTimeMs(ctx context.Context, experimentKey, variant, datePartition string) (int64, error)
	AveragePairwiseSimilarity(ctx context.Context, experimentKey, variant, datePartition string) (float64, error)
}

// CompositeMetricsSource satisfies MetricsSource by combining the
// experiment repository (which knows which experiments are active)
// with the telemetry repository (which knows the event counts),
// since those live on two different tables/repositories.
type CompositeMetricsSource struct {
	experiments ActiveExperimentLister
	telemetry   TelemetryCounter
}

// NewCompositeMetricsSource builds a CompositeMetricsSource.
func NewCompositeMetricsSource(experiments ActiveExperimentLister, telemetry TelemetryCounter) *CompositeMetricsSource {
	return &CompositeMetricsSource{experiments: experiments, telemetry: telemetry}
}

func (c *CompositeMetricsSource) ListActiveExperiments(ctx context.Context) ([]domain.Experiment, error) {
	return c.experiments.ListActiveExperiments(ctx)
}

func (c *CompositeMetricsSource) CountImpressions(ctx context.Context, experimentKey, variant, datePartition string) (int64, error) {
	return c.telemetry.CountImpressions(ctx, experimentKey, variant, datePartition)
}

func (c *CompositeMetricsSource) CountClicks(ctx context.Context, experimentKey, variant, datePartition string) (int64, error) {
	return c.telemetry.CountClicks(ctx, experimentKey, variant, datePartition)
}

func (c *CompositeMetricsSource) SumDwellTimeMs(ctx context.Context, experimentKey, variant, datePartition string) (int64, error) {
	return c.telemetry.SumDwellTimeMs(ctx, experimentKey, variant, datePartition)
}

func (c *CompositeMetricsSource) AveragePairwiseSimilarity(ctx context.Context, experimentKey, variant, datePartition string) (float64, error) {
	return c.telemetry.AveragePairwiseSimilarity(ctx, experimentKey, variant, datePartition)
}

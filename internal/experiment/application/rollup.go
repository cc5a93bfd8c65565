package application

import (
	"context"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/experiment/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

// MetricsSource is the raw telemetry the nightly rollup reads from.
type MetricsSource interface {
	CountImpressions(ctx context.Context, experimentKey, variant, datePartition string) (int64, error)
	CountClicks(ctx context.Context, experimentKey, variant, datePartition string) (int64, error)
	SumDwellTimeMs(ctx context.Context, experimentKey, variant, datePartition string) (int64, error)
	AveragePairwiseSimilarity(ctx context.Context, experimentKey, variant, datePartition string) (float64, error)
	ListActiveExperiments(ctx context.Context) ([]domain.Experiment, error)
}

// MetricsWriter persists the computed daily rollup row.
type MetricsWriter interface {
	SaveMetricsDaily(ctx context.Context, m domain.ExperimentMetricsDaily) error
}

// Rollup computes ExperimentMetricsDaily for every active experiment
// variant from the prior day's impression/click logs.
type Rollup struct {
	source MetricsSource
	writer MetricsWriter
	log    *logger.Logger
}

// NewRollup builds a Rollup.
func NewRollup(source MetricsSource, writer MetricsWriter, log *logger.Logger) *Rollup {
	return &Rollup{source: source, writer: writer, log: log}
}

// Run aggregates datePartition (YYYY-MM-DD) across every active
// experiment's variants.
func (r *Rollup) Run(ctx context.Context, datePartition string) error {
	experiments, err := r.source.ListActiveExperiments(ctx)
	if err != nil {
		return err
	}

	for _, exp := range experiments {
		for _, variant := range exp.Variants {
			m, err := r.computeOne(ctx, exp.ExperimentKey, variant, datePartition)
			if err != nil {
				r.log.WithError(err).Error("rollup: compute %s/%s/%s failed", exp.ExperimentKey, variant, datePartition)
				continue
			}
			if err := r.writer.SaveMetricsDaily(ctx, m); err != nil {
				r.log.WithError(err).Error("rollup: save %s/%s/%s failed", exp.ExperimentKey, variant, datePartition)
			}
		}
	}
	return nil
}

func (r *Rollup) computeOne(ctx context.Context, experimentKey, variant, datePartition string) (domain.ExperimentMetricsDaily, error) {
	impressions, err := r.source.CountImpressions(ctx, experimentKey, variant, datePartition)
	if err != nil {
		return domain.ExperimentMetricsDaily{}, err
	}
	clicks, err := r.source.CountClicks(ctx, experimentKey, variant, datePartition)
	if err != nil {
		return domain.ExperimentMetricsDaily{}, err
	}
	dwellSum, err := r.source.SumDwellTimeMs(ctx, experimentKey, variant, datePartition)
	if err != nil {
		return domain.ExperimentMetricsDaily{}, err
	}
	avgPairwiseSim, err := r.source.AveragePairwiseSimilarity(ctx, experimentKey, variant, datePartition)
	if err != nil {
		return domain.ExperimentMetricsDaily{}, err
	}

	avgDwellMs := 0.0
	if clicks > 0 {
		avgDwellMs = float64(dwellSum) / float64(clicks)
	}

	return domain.ExperimentMetricsDaily{
		ExperimentKey:  experimentKey,
		Variant:        variant,
		DatePartition:  datePartition,
		Impressions:    impressions,
		Clicks:         clicks,
		CTR:            domain.ComputeCTR(clicks, impressions),
		AvgDwellMs:     avgDwellMs,
		DiversityScore: 1 - avgPairwiseSim,
	}, nil
}

// DatePartition formats t as the YYYY-MM-DD key ClickLog/ImpressionLog
// partition on.
func DatePartition(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/experiment/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

type fakeMetricsSource struct {
	experiments []domain.Experiment
	impressions int64
	clicks      int64
	dwellSum    int64
	avgSim      float64
}

func (f *fakeMetricsSource) ListActiveExperiments(ctx context.Context) ([]domain.Experiment, error) {
	return f.experiments, nil
}

func (f *fakeMetricsSource) CountImpressions(ctx context.Context, experimentKey, variant, datePartition string) (int64, error) {
	return f.impressions, nil
}

func (f *fakeMetricsSource) CountClicks(ctx context.Context, experimentKey, variant, datePartition string) (int64, error) {
	return f.clicks, nil
}

func (f *fakeMetricsSource) SumDwellTimeMs(ctx context.Context, experimentKey, variant, datePartition string) (int64, error) {
	return f.dwellSum, nil
}

func (f *fakeMetricsSource) AveragePairwiseSimilarity(ctx context.Context, experimentKey, variant, datePartition string) (float64, error) {
	return f.avgSim, nil
}

type fakeMetricsWriter struct {
	saved []domain.ExperimentMetricsDaily
}

func (f *fakeMetricsWriter) SaveMetricsDaily(ctx context.Context, m domain.ExperimentMetricsDaily) error {
	f.saved = append(f.saved, m)
	return nil
}

func TestRollup_ComputesCTRAndDiversityScorePerVariant(t *testing.T) {
	source := &fakeMetricsSource{
		experiments: []domain.Experiment{{ExperimentKey: "exp-1", Variants: []string{"control", "treatment"}}},
		impressions: 200,
		clicks:      20,
		dwellSum:    4000,
		avgSim:      0.3,
	}
	writer := &fakeMetricsWriter{}
	rollup := NewRollup(source, writer, logger.New("test"))

	err := rollup.Run(context.Background(), "2026-07-30")
	require.NoError(t, err)
	require.Len(t, writer.saved, 2)
	for _, m := range writer.saved {
		assert.InDelta(t, 0.1, m.CTR, 0.0001)
		assert.InDelta(t, 200, m.AvgDwellMs, 0.001)
		assert.InDelta(t, 0.7, m.DiversityScore, 0.0001)
	}
}

func TestRollup_HandlesZeroClicksWithoutDivideByZero(t *testing.T) {
	source := &fakeMetricsSource{
		experiments: []domain.Experiment{{ExperimentKey: "exp-2", Variants: []string{"control"}}},
		impressions: 50,
		clicks:      0,
	}
	writer := &fakeMetricsWriter{}
	rollup := NewRollup(source, writer, logger.New("test"))

	err := rollup.Run(context.Background(), "2026-07-30")
	require.NoError(t, err)
	require.Len(t, writer.saved, 1)
	assert.Equal(t, 0.0, writer.saved[0].AvgDwellMs)
	assert.Equal(t, 0.0, writer.saved[0].CTR)
}

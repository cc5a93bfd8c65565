package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/experiment/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

type fakeMetricsReader struct {
	experiments []domain.Experiment
	dailyByKey  map[string][]domain.ExperimentMetricsDaily
}

func (f *fakeMetricsReader) ListActiveExperiments(ctx context.Context) ([]domain.Experiment, error) {
	return f.experiments, nil
}

func (f *fakeMetricsReader) ListMetricsDaily(ctx context.Context, experimentKey string, since time.Time) ([]domain.ExperimentMetricsDaily, error) {
	return f.dailyByKey[experimentKey], nil
}

type fakeFlagWriter struct {
	flags []domain.FeatureFlag
}

func (f *fakeFlagWriter) SetFlag(ctx context.Context, flag domain.FeatureFlag) error {
	f.flags = append(f.flags, flag)
	return nil
}

type fakeEventEmitter struct {
	warnings []string
}

func (f *fakeEventEmitter) EmitWarning(ctx context.Context, message string) error {
	f.warnings = append(f.warnings, message)
	return nil
}

func TestAutoStopMonitor_TripsWhenCTRDeltaCrossesThreshold(t *testing.T) {
	exp := domain.Experiment{
		ExperimentKey:     "exp-1",
		IsActive:          true,
		AutoStopEnabled:   true,
		AutoStopThreshold: 0.05,
		MinimumSampleSize: 100,
	}
	metrics := &fakeMetricsReader{
		experiments: []domain.Experiment{exp},
		dailyByKey: map[string][]domain.ExperimentMetricsDaily{
			"exp-1": {
				{ExperimentKey: "exp-1", Variant: "control", DatePartition: "2026-07-30", Impressions: 1000, Clicks: 100, CTR: 0.10},
				{ExperimentKey: "exp-1", Variant: "treatment", DatePartition: "2026-07-30", Impressions: 1000, Clicks: 40, CTR: 0.04},
			},
		},
	}
	flags := &fakeFlagWriter{}
	events := &fakeEventEmitter{}
	monitor := NewAutoStopMonitor(metrics, flags, events, logger.New("test"))

	err := monitor.Run(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, flags.flags, 1)
	assert.Equal(t, "experiment.exp-1.enabled", flags.flags[0].FlagKey)
	assert.False(t, flags.flags[0].IsEnabled)
	assert.Len(t, events.warnings, 1)
}

func TestAutoStopMonitor_DoesNotTripBelowMinimumSampleSize(t *testing.T) {
	exp := domain.Experiment{
		ExperimentKey:     "exp-2",
		IsActive:          true,
		AutoStopEnabled:   true,
		AutoStopThreshold: 0.05,
		MinimumSampleSize: 10000,
	}
	metrics := &fakeMetricsReader{
		experiments: []domain.Experiment{exp},
		dailyByKey: map[string][]domain.ExperimentMetricsDaily{
			"exp-2": {
				{ExperimentKey: "exp-2", Variant: "control", DatePartition: "2026-07-30", Impressions: 100, Clicks: 10, CTR: 0.10},
				{ExperimentKey: "exp-2", Variant: "treatment", DatePartition: "2026-07-30", Impressions: 100, Clicks: 4, CTR: 0.04},
			},
		},
	}
	flags := &fakeFlagWriter{}
	monitor := NewAutoStopMonitor(metrics, flags, nil, logger.New("test"))

	err := monitor.Run(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, flags.flags)
}

func TestAutoStopMonitor_SkipsExperimentsWithAutoStopDisabled(t *testing.T) {
	exp := domain.Experiment{
		ExperimentKey:     "exp-3",
		IsActive:          true,
		AutoStopEnabled:   false,
		MinimumSampleSize: 1,
	}
	metrics := &fakeMetricsReader{experiments: []domain.Experiment{exp}}
	flags := &fakeFlagWriter{}
	monitor := NewAutoStopMonitor(metrics, flags, nil, logger.New("test"))

	err := monitor.Run(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, flags.flags)
}

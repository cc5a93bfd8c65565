package application

import (
	"context"
	"fmt"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/experiment/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

// autoStopThresholdPP is the default CTR-degradation trigger when an
// experiment doesn't override it: 5 percentage points.
const autoStopThresholdPP = 0.05

// AutoStopLookback is the trailing window the monitor inspects for a
// qualifying day, over the last 3 days.
const AutoStopLookback = 3 * 24 * time.Hour

// MetricsReader loads the daily rollups the monitor evaluates.
type MetricsReader interface {
	ListActiveExperiments(ctx context.Context) ([]domain.Experiment, error)
	ListMetricsDaily(ctx context.Context, experimentKey string, since time.Time) ([]domain.ExperimentMetricsDaily, error)
}

// FlagWriter disables an experiment by writing its feature flag.
type FlagWriter interface {
	SetFlag(ctx context.Context, flag domain.FeatureFlag) error
}

// EventEmitter emits the warning event an auto-stop trip raises.
type EventEmitter interface {
	EmitWarning(ctx context.Context, message string) error
}

// AutoStopMonitor disables an experiment whose treatment CTR has
// degraded against control by a meaningful margin with sufficient
// sample size.
type AutoStopMonitor struct {
	metrics MetricsReader
	flags   FlagWriter
	events  EventEmitter
	log     *logger.Logger
}

// NewAutoStopMonitor builds a monitor.
func NewAutoStopMonitor(metrics MetricsReader, flags FlagWriter, events EventEmitter, log *logger.Logger) *AutoStopMonitor {
	return &AutoStopMonitor{metrics: metrics, flags: flags, events: events, log: log}
}

// Run evaluates every active, auto-stop-enabled experiment and
// disables any whose control-minus-treatment CTR delta crossed the
// threshold on at least one day within the lookback window, with
// both variants individually clearing MinimumSampleSize impressions
// that day.
func (m *AutoStopMonitor) Run(ctx context.Context, now time.Time) error {
	experiments, err := m.metrics.ListActiveExperiments(ctx)
	if err != nil {
		return err
	}

	for _, exp := range experiments {
		if !exp.AutoStopEnabled {
			continue
		}
		tripped, reason, err := m.evaluate(ctx, exp, now)
		if err != nil {
			m.log.WithError(err).Error("autostop: evaluate %s failed", exp.ExperimentKey)
			continue
		}
		if !tripped {
			continue
		}
		if err := m.disable(ctx, exp, reason); err != nil {
			m.log.WithError(err).Error("autostop: disable %s failed", exp.ExperimentKey)
		}
	}
	return nil
}

func (m *AutoStopMonitor) evaluate(ctx context.Context, exp domain.Experiment, now time.Time) (bool, string, error) {
	since := now.Add(-AutoStopLookback)
	rows, err := m.metrics.ListMetricsDaily(ctx, exp.ExperimentKey, since)
	if err != nil {
		return false, "", err
	}

	threshold := exp.AutoStopThreshold
	if threshold == 0 {
		threshold = autoStopThresholdPP
	}
	if threshold < 0 {
		threshold = -threshold
	}

	byDate := make(map[string]map[string]domain.ExperimentMetricsDaily)
	for _, row := range rows {
		if byDate[row.DatePartition] == nil {
			byDate[row.DatePartition] = make(map[string]domain.ExperimentMetricsDaily)
		}
		byDate[row.DatePartition][row.Variant] = row
	}

	for date, variants := range byDate {
		control, hasControl := variants[domain.ControlVariant]
		if !hasControl {
			continue
		}
		for variant, treatment := range variants {
			if variant == domain.ControlVariant {
				continue
			}
			if control.Impressions < int64(exp.MinimumSampleSize) || treatment.Impressions < int64(exp.MinimumSampleSize) {
				continue
			}
			delta := control.CTR - treatment.CTR
			if delta >= threshold {
				reason := fmt.Sprintf("experiment %s variant %s degraded %.4f CTR vs control on %s", exp.ExperimentKey, variant, delta, date)
				return true, reason, nil
			}
		}
	}
	return false, "", nil
}

func (m *AutoStopMonitor) disable(ctx context.Context, exp domain.Experiment, reason string) error {
	flag := domain.FeatureFlag{
		FlagKey:     fmt.Sprintf("experiment.%s.enabled", exp.ExperimentKey),
		ValueType:   domain.ValueTypeBoolean,
		FlagValue:   "false",
		IsEnabled:   false,
		Environment: "production",
	}
	if err := m.flags.SetFlag(ctx, flag); err != nil {
		return err
	}
	if m.events != nil {
		if err := m.events.EmitWarning(ctx, reason); err != nil {
			return err
		}
	}
	return nil
}

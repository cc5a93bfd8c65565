// Package domain holds the A/B experiment, feature-flag, and daily
// metric rollup entities the Bucketer, Telemetry Sink, and Auto-Stop
// Monitor operate on.
package domain

import "time"

// Experiment is a named A/B test with a percentage allocation across
// variants, stable for an anonId's lifetime once bucketed.
type Experiment struct {
	ExperimentKey     string             `json:"experimentKey" db:"experiment_key"`
	Variants          []string           `json:"variants" db:"variants"`
	Allocation        map[string]float64 `json:"allocation" db:"allocation"` // variant -> percent
	StartDate         time.Time          `json:"startDate" db:"start_date"`
	EndDate           *time.Time         `json:"endDate,omitempty" db:"end_date"`
	IsActive          bool               `json:"isActive" db:"is_active"`
	AutoStopEnabled   bool               `json:"autoStopEnabled" db:"auto_stop_enabled"`
	AutoStopThreshold float64            `json:"autoStopThreshold" db:"auto_stop_threshold"` // e.g. -0.05
	MinimumSampleSize int                `json:"minimumSampleSize" db:"minimum_sample_size"`
}

// ControlVariant is returned for an inactive/missing experiment, per
// an inactive or missing experiment always resolves to variant=control
// with no experiment metadata logged.
const ControlVariant = "control"

// ExperimentMetricsDaily is the nightly telemetry rollup keyed by
// (experimentKey, variant, datePartition).
type ExperimentMetricsDaily struct {
	ExperimentKey string  `json:"experimentKey" db:"experiment_key"`
	Variant       string  `json:"variant" db:"variant"`
	DatePartition string  `json:"datePartition" db:"date_partition"`
	Impressions   int64   `json:"impressions" db:"impressions"`
	Clicks        int64   `json:"clicks" db:"clicks"`
	CTR           float64 `json:"ctr" db:"ctr"`
	AvgDwellMs    float64 `json:"avgDwellMs" db:"avg_dwell_ms"`
	DiversityScore float64 `json:"diversityScore" db:"diversity_score"`
}

// ComputeCTR computes clicks / max(1, impressions).
func ComputeCTR(clicks, impressions int64) float64 {
	denom := impressions
	if denom < 1 {
		denom = 1
	}
	return float64(clicks) / float64(denom)
}

// ValueType constrains a FeatureFlag's stored value.
type ValueType string

const (
	ValueTypeBoolean ValueType = "boolean"
	ValueTypeDouble  ValueType = "double"
	ValueTypeString  ValueType = "string"
)

// FeatureFlag is a process-wide toggle; the Auto-Stop Monitor writes
// `experiment.<key>.enabled` flags of this shape to disable a
// degrading experiment without a deploy.
type FeatureFlag struct {
	FlagKey     string    `json:"flagKey" db:"flag_key"`
	ValueType   ValueType `json:"valueType" db:"value_type"`
	FlagValue   string    `json:"flagValue" db:"flag_value"`
	IsEnabled   bool      `json:"isEnabled" db:"is_enabled"`
	Environment string    `json:"environment" db:"environment"`
}

// Package repository persists experiments, their nightly metric
// rollups, and feature flags to Postgres.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/experiment/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/database"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

// ExperimentRepository is the Postgres-backed store for experiment
// configuration, daily metric rollups, and feature flags.
type ExperimentRepository struct {
	db  *database.Database
	log *logger.Logger
}

// NewExperimentRepository builds a Postgres-backed ExperimentRepository.
func NewExperimentRepository(db *database.Database, log *logger.Logger) *ExperimentRepository {
	return &ExperimentRepository{db: db, log: log}
}

type experimentRow struct {
	ExperimentKey     string    `db:"experiment_key"`
	Variants          []byte    `db:"variants"`
	Allocation        []byte    `db:"allocation"`
	StartDate         time.Time `db:"start_date"`
	EndDate           *time.Time `db:"end_date"`
	IsActive          bool      `db:"is_active"`
	AutoStopEnabled   bool      `db:"auto_stop_enabled"`
	AutoStopThreshold float64   `db:"auto_stop_threshold"`
	MinimumSampleSize int       `db:"minimum_sample_size"`
}

func (r experimentRow) toDomain() (domain.Experiment, error) {
	var variants []string
	if err := json.Unmarshal(r.Variants, &variants); err != nil {
		return domain.Experiment{}, fmt.Errorf("repository: unmarshal variants: %w", err)
	}
	var allocation map[string]float64
	if err := json.Unmarshal(r.Allocation, &allocation); err != nil {
		return domain.Experiment{}, fmt.Errorf("repository: unmarshal allocation: %w", err)
	}
	return domain.Experiment{
		ExperimentKey:     r.ExperimentKey,
		Variants:          variants,
		Allocation:        allocation,
		StartDate:         r.StartDate,
		EndDate:           r.EndDate,
		IsActive:          r.IsActive,
		AutoStopEnabled:   r.AutoStopEnabled,
		AutoStopThreshold: r.AutoStopThreshold,
		MinimumSampleSize: r.MinimumSampleSize,
	}, nil
}

// GetActive returns the experiment row for experimentKey, or nil if
// it doesn't exist, implementing application.ExperimentRepository.
func (r *ExperimentRepository) GetActive(ctx context.Context, experimentKey string) (*domain.Experiment, error) {
	var row experimentRow
	err := r.db.DB.GetContext(ctx, &row, `
		SELECT experiment_key, variants, allocation, start_date, end_date,
			is_active, auto_stop_enabled, auto_stop_threshold, minimum_sample_size
		FROM experiment WHERE experiment_key = $1`, experimentKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: get experiment: %w", err)
	}
	exp, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

// ListActiveExperiments returns every currently-active experiment,
// used by the nightly rollup and the auto-stop monitor.
func (r *ExperimentRepository) ListActiveExperiments(ctx context.Context) ([]domain.Experiment, error) {
	var rows []experimentRow
	if err := r.db.DB.SelectContext(ctx, &rows, `
		SELECT experiment_key, variants, allocation, start_date, end_date,
			is_active, auto_stop_enabled, auto_stop_threshold, minimum_sample_size
		FROM experiment WHERE is_active = true`); err != nil {
		return nil, fmt.Errorf("repository: list active experiments: %w", err)
	}
	out := make([]domain.Experiment, 0, len(rows))
	for _, row := range rows {
		exp, err := row.toDomain()
		if err != nil {
			continue
		}
		out = append(out, exp)
	}
	return out, nil
}

// SaveExperiment upserts exp's configuration.
func (r *ExperimentRepository) SaveExperiment(ctx context.Context, exp domain.Experiment) error {
	variants, err := json.Marshal(exp.Variants)
	if err != nil {
		return fmt.Errorf("repository: marshal variants: %w", err)
	}
	allocation, err := json.Marshal(exp.Allocation)
	if err != nil {
		return fmt.Errorf("repository: marshal allocation: %w", err)
	}
	_, err = r.db.DB.ExecContext(ctx, `
		INSERT INTO experiment (experiment_key, variants, allocation, start_date, end_date,
			is_active, auto_stop_enabled, auto_stop_threshold, minimum_sample_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (experiment_key) DO UPDATE SET
			variants = EXCLUDED.variants, allocation = EXCLUDED.allocation,
			start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
			is_active = EXCLUDED.is_active, auto_stop_enabled = EXCLUDED.auto_stop_enabled,
			auto_stop_threshold = EXCLUDED.auto_stop_threshold, minimum_sample_size = EXCLUDED.minimum_sample_size`,
		exp.ExperimentKey, variants, allocation, exp.StartDate, exp.EndDate,
		exp.IsActive, exp.AutoStopEnabled, exp.AutoStopThreshold, exp.MinimumSampleSize)
	if err != nil {
		return fmt.Errorf("repository: save experiment: %w", err)
	}
	return nil
}

// SaveMetricsDaily upserts one ExperimentMetricsDaily row.
func (r *ExperimentRepository) SaveMetricsDaily(ctx context.Context, m domain.ExperimentMetricsDaily) error {
	_, err := r.db.DB.ExecContext(ctx, `
		INSERT INTO experiment_metrics_daily (experiment_key, variant, date_partition,
			impressions, clicks, ctr, avg_dwell_ms, diversity_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (experiment_key, variant, date_partition) DO UPDATE SET
			impressions = EXCLUDED.impressions, clicks = EXCLUDED.clicks, ctr = EXCLUDED.ctr,
			avg_dwell_ms = EXCLUDED.avg_dwell_ms, diversity_score = EXCLUDED.diversity_score`,
		m.ExperimentKey, m.Variant, m.DatePartition, m.Impressions, m.Clicks, m.CTR, m.AvgDwellMs, m.DiversityScore)
	if err != nil {
		return fmt.Errorf("repository: save metrics daily: %w", err)
	}
	return nil
}

// ListMetricsDaily returns every daily rollup row for experimentKey
// with datePartition on or after since.
func (r *ExperimentRepository) ListMetricsDaily(ctx context.Context, experimentKey string, since time.Time) ([]domain.ExperimentMetricsDaily, error) {
	var rows []domain.ExperimentMetricsDaily
	if err := r.db.DB.SelectContext(ctx, &rows, `
		SELECT experiment_key, variant, date_partition, impressions, clicks, ctr, avg_dwell_ms, diversity_score
		FROM experiment_metrics_daily
		WHERE experiment_key = $1 AND date_partition >= $2`, experimentKey, since.UTC().Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("repository: list metrics daily: %w", err)
	}
	return rows, nil
}

// SetFlag upserts a FeatureFlag row.
func (r *ExperimentRepository) SetFlag(ctx context.Context, flag domain.FeatureFlag) error {
	_, err := r.db.DB.ExecContext(ctx, `
		INSERT INTO feature_flag (flag_key, environment, value_type, flag_value, is_enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (flag_key, environment) DO UPDATE SET
			value_type = EXCLUDED.value_type, flag_value = EXCLUDED.flag_value, is_enabled = EXCLUDED.is_enabled`,
		flag.FlagKey, flag.Environment, flag.ValueType, flag.FlagValue, flag.IsEnabled)
	if err != nil {
		return fmt.Errorf("repository: set flag: %w", err)
	}
	return nil
}

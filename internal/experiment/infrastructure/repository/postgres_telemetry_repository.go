package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	newsdomain "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/database"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

// TelemetryRepository batches impression/click logs into Postgres and
// answers the nightly rollup's per-variant aggregate queries,
// implementing application.TelemetryWriter and application.TelemetryCounter.
type TelemetryRepository struct {
	db  *database.Database
	log *logger.Logger
}

// NewTelemetryRepository builds a Postgres-backed TelemetryRepository.
func NewTelemetryRepository(db *database.Database, log *logger.Logger) *TelemetryRepository {
	return &TelemetryRepository{db: db, log: log}
}

// SaveImpressions batch-inserts a flushed buffer of impressions in
// one transaction.
func (r *TelemetryRepository) SaveImpressions(ctx context.Context, impressions []newsdomain.ImpressionLog) error {
	if len(impressions) == 0 {
		return nil
	}
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, imp := range impressions {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO impression_log (anon_id, user_id, news_id, shown_at, experiment_key, variant,
					date_partition, position, importance, rank_score, personalized, diversity_applied)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				imp.AnonID, imp.UserID, imp.NewsID, imp.ShownAt, imp.ExperimentKey, imp.Variant,
				imp.DatePartition, imp.Position, imp.Importance, imp.RankScore, imp.Personalized, imp.DiversityApplied)
			if err != nil {
				return fmt.Errorf("repository: insert impression for news %d: %w", imp.NewsID, err)
			}
		}
		return nil
	})
}

// SaveClicks batch-inserts a flushed buffer of clicks in one transaction.
func (r *TelemetryRepository) SaveClicks(ctx context.Context, clicks []newsdomain.ClickLog) error {
	if len(clicks) == 0 {
		return nil
	}
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, click := range clicks {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO click_log (anon_id, user_id, news_id, clicked_at, dwell_time_ms, experiment_key, variant, date_partition)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				click.AnonID, click.UserID, click.NewsID, click.ClickedAt, click.DwellTimeMs,
				click.ExperimentKey, click.Variant, click.DatePartition)
			if err != nil {
				return fmt.Errorf("repository: insert click for news %d: %w", click.NewsID, err)
			}
		}
		return nil
	})
}

// CountImpressions counts impression_log rows for (experimentKey, variant, datePartition).
func (r *TelemetryRepository) CountImpressions(ctx context.Context, experimentKey, variant, datePartition string) (int64, error) {
	var count int64
	err := r.db.DB.GetContext(ctx, &count, `
		SELECT count(*) FROM impression_log WHERE experiment_key = $1 AND variant = $2 AND date_partition = $3`,
		experimentKey, variant, datePartition)
	if err != nil {
		return 0, fmt.Errorf("repository: count impressions: %w", err)
	}
	return count, nil
}

// CountClicks counts click_log rows for (experimentKey, variant, datePartition).
func (r *TelemetryRepository) CountClicks(ctx context.Context, experimentKey, variant, datePartition string) (int64, error) {
	var count int64
	err := r.db.DB.GetContext(ctx, &count, `
		SELECT count(*) FROM click_log WHERE experiment_key = $1 AND variant = $2 AND date_partition = $3`,
		experimentKey, variant, datePartition)
	if err != nil {
		return 0, fmt.Errorf("repository: count clicks: %w", err)
	}
	return count, nil
}

// SumDwellTimeMs sums dwell_time_ms over the variant's clicks that day.
func (r *TelemetryRepository) SumDwellTimeMs(ctx context.Context, experimentKey, variant, datePartition string) (int64, error) {
	var sum sql.NullInt64
	err := r.db.DB.GetContext(ctx, &sum, `
		SELECT coalesce(sum(dwell_time_ms), 0) FROM click_log
		WHERE experiment_key = $1 AND variant = $2 AND date_partition = $3`,
		experimentKey, variant, datePartition)
	if err != nil {
		return 0, fmt.Errorf("repository: sum dwell time: %w", err)
	}
	return sum.Int64, nil
}

// AveragePairwiseSimilarity is a placeholder pending an embedding-join
// query; the facade doesn't yet log per-impression embeddings, so the
// diversity score defaults to 0 similarity (maximally diverse) until
// that join is added.
func (r *TelemetryRepository) AveragePairwiseSimilarity(ctx context.Context, experimentKey, variant, datePartition string) (float64, error) {
	return 0, nil
}

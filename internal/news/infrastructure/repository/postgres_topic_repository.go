package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/database"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

// TopicRepository persists topic centroids and mints fresh topic IDs
// for the clustering batch, separate from NewsRepository because the
// clusterer's access pattern (whole-table scan of centroids, a
// sequence-backed ID mint) differs from the per-news read/write path.
type TopicRepository struct {
	db  *database.Database
	log *logger.Logger
}

// NewTopicRepository builds a Postgres-backed TopicRepository.
func NewTopicRepository(db *database.Database, log *logger.Logger) *TopicRepository {
	return &TopicRepository{db: db, log: log}
}

// ListCentroids loads every topic's current running-mean centroid.
func (r *TopicRepository) ListCentroids(ctx context.Context) ([]domain.TopicCentroid, error) {
	type row struct {
		TopicID     int64     `db:"topic_id"`
		Centroid    []byte    `db:"centroid"`
		MemberCount int       `db:"member_count"`
		UpdatedAt   time.Time `db:"updated_at"`
	}
	var rows []row
	if err := r.db.DB.SelectContext(ctx, &rows, `SELECT topic_id, centroid, member_count, updated_at FROM topic_centroid`); err != nil {
		return nil, fmt.Errorf("repository: list topic centroids: %w", err)
	}
	out := make([]domain.TopicCentroid, 0, len(rows))
	for _, rr := range rows {
		var vec []float32
		if err := json.Unmarshal(rr.Centroid, &vec); err != nil {
			continue
		}
		out = append(out, domain.TopicCentroid{TopicID: rr.TopicID, Centroid: vec, MemberCount: rr.MemberCount, UpdatedAt: rr.UpdatedAt})
	}
	return out, nil
}

// NextTopicID mints a fresh topic ID from the topic_id_seq sequence,
// used when a news item joins no existing centroid within the join
// threshold and starts a new topic.
func (r *TopicRepository) NextTopicID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.db.DB.GetContext(ctx, &id, `SELECT nextval('topic_id_seq')`); err != nil {
		return 0, fmt.Errorf("repository: mint topic id: %w", err)
	}
	return id, nil
}

// UpsertCentroid stores the topic's updated running-mean centroid and
// member count after a news item joins or starts it.
func (r *TopicRepository) UpsertCentroid(ctx context.Context, c domain.TopicCentroid) error {
	vec, err := json.Marshal(c.Centroid)
	if err != nil {
		return fmt.Errorf("repository: marshal centroid: %w", err)
	}
	_, err = r.db.DB.ExecContext(ctx, `
		INSERT INTO topic_centroid (topic_id, centroid, member_count, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (topic_id) DO UPDATE SET
			centroid = EXCLUDED.centroid, member_count = EXCLUDED.member_count, updated_at = EXCLUDED.updated_at`,
		c.TopicID, vec, c.MemberCount, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: upsert centroid: %w", err)
	}
	return nil
}

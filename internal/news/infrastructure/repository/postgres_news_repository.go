// Package repository implements the news pipeline's Postgres-backed
// persistence, following the teacher's constructor-injected,
// logger-carrying repository shape (redis_order_repository.go) but
// over sqlx/Postgres per SPEC_FULL.md's relational schema.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/database"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

// NewsRepository persists News, NewsScore, NewsEmbedding, and
// NewsTopic rows, and answers the read queries the facade needs.
type NewsRepository struct {
	db  *database.Database
	log *logger.Logger
}

// NewNewsRepository builds a Postgres-backed NewsRepository.
func NewNewsRepository(db *database.Database, log *logger.Logger) *NewsRepository {
	return &NewsRepository{db: db, log: log}
}

// ExistsByDedupKey answers the ingestor's uniqueness check.
func (r *NewsRepository) ExistsByDedupKey(ctx context.Context, dedupKey string) (bool, error) {
	var exists bool
	err := r.db.DB.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM news WHERE dedup_key = $1)`, dedupKey)
	if err != nil {
		return false, fmt.Errorf("repository: check dedup key: %w", err)
	}
	return exists, nil
}

// Save inserts a News row and its initial NewsScore in one
// transaction, reflecting their one-to-one, owned relationship.
func (r *NewsRepository) Save(ctx context.Context, news *domain.News, score *domain.NewsScore) (*domain.News, error) {
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		reasonJSON, err := json.Marshal(score.ReasonJSON)
		if err != nil {
			return fmt.Errorf("marshal reasonJson: %w", err)
		}

		row := tx.QueryRowxContext(ctx, `
			INSERT INTO news (source, url, published_at, title, body, lang, dedup_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			news.Source, news.URL, news.PublishedAt, news.Title, news.Body, news.Lang, news.DedupKey, news.CreatedAt)
		if err := row.Scan(&news.ID); err != nil {
			return fmt.Errorf("insert news: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO news_score (news_id, importance, reason_json, rank_score, importance_p, model_version, summary)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			news.ID, score.Importance, reasonJSON, score.RankScore, score.ImportanceP, score.ModelVersion, score.Summary)
		if err != nil {
			return fmt.Errorf("insert news_score: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("repository: save news: %w", err)
	}
	return news, nil
}

// GetByID loads a News row, returning ErrNewsNotFound when absent.
func (r *NewsRepository) GetByID(ctx context.Context, id int64) (*domain.News, error) {
	var n domain.News
	err := r.db.DB.GetContext(ctx, &n, `SELECT id, source, url, published_at, title, body, lang, dedup_key, created_at FROM news WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNewsNotFound
		}
		return nil, fmt.Errorf("repository: get news %d: %w", id, err)
	}
	return &n, nil
}

// ErrNewsNotFound is returned by GetByID/GetEmbedding when no row matches.
var ErrNewsNotFound = errors.New("repository: news not found")

// ListTopByRankScore returns up to limit News rows ordered by
// rankScore desc, then publishedAt desc, feeding the facade's K-wide
// candidate fetch (K = max(100, 5n)).
func (r *NewsRepository) ListTopByRankScore(ctx context.Context, limit int, sinceLang string) ([]*domain.News, []*domain.NewsScore, error) {
	type row struct {
		domain.News
		Importance   float64         `db:"importance"`
		ReasonJSON   []byte          `db:"reason_json"`
		RankScore    float64         `db:"rank_score"`
		ImportanceP  sql.NullFloat64 `db:"importance_p"`
		ModelVersion sql.NullString  `db:"model_version"`
		Summary      sql.NullString  `db:"summary"`
	}

	query := `
		SELECT n.id, n.source, n.url, n.published_at, n.title, n.body, n.lang, n.dedup_key, n.created_at,
		       s.importance, s.reason_json, s.rank_score, s.importance_p, s.model_version, s.summary
		FROM news n
		JOIN news_score s ON s.news_id = n.id
		WHERE ($2 = '' OR n.lang = $2)
		ORDER BY s.rank_score DESC, n.published_at DESC
		LIMIT $1`

	var rows []row
	if err := r.db.DB.SelectContext(ctx, &rows, query, limit, sinceLang); err != nil {
		return nil, nil, fmt.Errorf("repository: list top news: %w", err)
	}

	news := make([]*domain.News, 0, len(rows))
	scores := make([]*domain.NewsScore, 0, len(rows))
	for i := range rows {
		n := rows[i].News
		news = append(news, &n)

		var reason map[string]interface{}
		_ = json.Unmarshal(rows[i].ReasonJSON, &reason)

		score := &domain.NewsScore{
			NewsID:     n.ID,
			Importance: rows[i].Importance,
			ReasonJSON: reason,
			RankScore:  rows[i].RankScore,
		}
		if rows[i].ImportanceP.Valid {
			v := rows[i].ImportanceP.Float64
			score.ImportanceP = &v
		}
		if rows[i].ModelVersion.Valid {
			score.ModelVersion = rows[i].ModelVersion.String
		}
		if rows[i].Summary.Valid {
			v := rows[i].Summary.String
			score.Summary = &v
		}
		scores = append(scores, score)
	}
	return news, scores, nil
}

// GetScore loads a single News item's current NewsScore row, used by
// the bandit rank source to resolve a candidate's rankScore/importance
// outside the facade's batch fetch.
func (r *NewsRepository) GetScore(ctx context.Context, newsID int64) (*domain.NewsScore, error) {
	type row struct {
		NewsID       int64           `db:"news_id"`
		Importance   float64         `db:"importance"`
		ReasonJSON   []byte          `db:"reason_json"`
		RankScore    float64         `db:"rank_score"`
		ImportanceP  sql.NullFloat64 `db:"importance_p"`
		ModelVersion sql.NullString  `db:"model_version"`
		Summary      sql.NullString  `db:"summary"`
	}
	var rr row
	err := r.db.DB.GetContext(ctx, &rr, `SELECT news_id, importance, reason_json, rank_score, importance_p, model_version, summary FROM news_score WHERE news_id = $1`, newsID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: get score %d: %w", newsID, err)
	}

	var reason map[string]interface{}
	_ = json.Unmarshal(rr.ReasonJSON, &reason)

	score := &domain.NewsScore{NewsID: rr.NewsID, Importance: rr.Importance, ReasonJSON: reason, RankScore: rr.RankScore}
	if rr.ImportanceP.Valid {
		v := rr.ImportanceP.Float64
		score.ImportanceP = &v
	}
	if rr.ModelVersion.Valid {
		score.ModelVersion = rr.ModelVersion.String
	}
	if rr.Summary.Valid {
		v := rr.Summary.String
		score.Summary = &v
	}
	return score, nil
}

// CountClicksSince counts click_log rows for newsID over the trailing
// days window, the popularity signal the bandit's "popular" arm ranks
// by.
func (r *NewsRepository) CountClicksSince(ctx context.Context, newsID int64, days int) (int64, error) {
	var count int64
	err := r.db.DB.GetContext(ctx, &count, `SELECT COUNT(*) FROM click_log WHERE news_id = $1 AND clicked_at >= now() - ($2 || ' days')::interval`, newsID, days)
	if err != nil {
		return 0, fmt.Errorf("repository: count clicks for %d: %w", newsID, err)
	}
	return count, nil
}

// SaveEmbedding upserts a NewsEmbedding row.
func (r *NewsRepository) SaveEmbedding(ctx context.Context, e *domain.NewsEmbedding) error {
	vec, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("repository: marshal embedding vector: %w", err)
	}

	_, err = r.db.DB.ExecContext(ctx, `
		INSERT INTO news_embedding (news_id, vector, norm, model_version, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (news_id) DO UPDATE SET
			vector = EXCLUDED.vector, norm = EXCLUDED.norm,
			model_version = EXCLUDED.model_version, created_at = EXCLUDED.created_at`,
		e.NewsID, vec, e.Norm, e.ModelVersion, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: save embedding: %w", err)
	}
	return nil
}

// GetEmbedding loads a News item's embedding, if any.
func (r *NewsRepository) GetEmbedding(ctx context.Context, newsID int64) (*domain.NewsEmbedding, error) {
	type row struct {
		NewsID       int64     `db:"news_id"`
		Vector       []byte    `db:"vector"`
		Norm         float64   `db:"norm"`
		ModelVersion string    `db:"model_version"`
		CreatedAt    time.Time `db:"created_at"`
	}
	var rr row
	err := r.db.DB.GetContext(ctx, &rr, `SELECT news_id, vector, norm, model_version, created_at FROM news_embedding WHERE news_id = $1`, newsID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNewsNotFound
		}
		return nil, fmt.Errorf("repository: get embedding %d: %w", newsID, err)
	}
	var vec []float32
	if err := json.Unmarshal(rr.Vector, &vec); err != nil {
		return nil, fmt.Errorf("repository: decode embedding vector: %w", err)
	}
	return &domain.NewsEmbedding{NewsID: rr.NewsID, Vector: vec, Norm: rr.Norm, ModelVersion: rr.ModelVersion, CreatedAt: rr.CreatedAt}, nil
}

// ListRecentEmbeddings returns embeddings created since the given
// time, feeding the clustering batch's lookback window.
func (r *NewsRepository) ListRecentEmbeddings(ctx context.Context, since time.Time) ([]*domain.NewsEmbedding, error) {
	type row struct {
		NewsID       int64     `db:"news_id"`
		Vector       []byte    `db:"vector"`
		Norm         float64   `db:"norm"`
		ModelVersion string    `db:"model_version"`
		CreatedAt    time.Time `db:"created_at"`
	}
	var rows []row
	err := r.db.DB.SelectContext(ctx, &rows, `SELECT news_id, vector, norm, model_version, created_at FROM news_embedding WHERE created_at >= $1 ORDER BY created_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("repository: list recent embeddings: %w", err)
	}
	out := make([]*domain.NewsEmbedding, 0, len(rows))
	for _, rr := range rows {
		var vec []float32
		if err := json.Unmarshal(rr.Vector, &vec); err != nil {
			continue
		}
		out = append(out, &domain.NewsEmbedding{NewsID: rr.NewsID, Vector: vec, Norm: rr.Norm, ModelVersion: rr.ModelVersion, CreatedAt: rr.CreatedAt})
	}
	return out, nil
}

// ListTopicsByNewsIDs loads the topic assignment for each of the
// given news IDs, keyed by newsId; items with no assignment yet are
// simply absent from the result.
func (r *NewsRepository) ListTopicsByNewsIDs(ctx context.Context, newsIDs []int64) (map[int64]*domain.NewsTopic, error) {
	if len(newsIDs) == 0 {
		return map[int64]*domain.NewsTopic{}, nil
	}
	type row struct {
		NewsID           int64   `db:"news_id"`
		TopicID          int64   `db:"topic_id"`
		GroupID          *int64  `db:"group_id"`
		TopicKeywords    []byte  `db:"topic_keywords"`
		SimilarityScore  float64 `db:"similarity_score"`
		ClusteringMethod string  `db:"clustering_method"`
	}
	query, args, err := sqlx.In(`SELECT news_id, topic_id, group_id, topic_keywords, similarity_score, clustering_method FROM news_topic WHERE news_id IN (?)`, newsIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: build topics query: %w", err)
	}
	var rows []row
	if err := r.db.DB.SelectContext(ctx, &rows, r.db.DB.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("repository: list topics: %w", err)
	}
	out := make(map[int64]*domain.NewsTopic, len(rows))
	for _, rr := range rows {
		var keywords []string
		_ = json.Unmarshal(rr.TopicKeywords, &keywords)
		out[rr.NewsID] = &domain.NewsTopic{
			NewsID: rr.NewsID, TopicID: rr.TopicID, GroupID: rr.GroupID,
			TopicKeywords: keywords, SimilarityScore: rr.SimilarityScore, ClusteringMethod: rr.ClusteringMethod,
		}
	}
	return out, nil
}

// ListEmbeddingsByNewsIDs loads the embedding vector for each of the
// given news IDs, keyed by newsId.
func (r *NewsRepository) ListEmbeddingsByNewsIDs(ctx context.Context, newsIDs []int64) (map[int64][]float32, error) {
	if len(newsIDs) == 0 {
		return map[int64][]float32{}, nil
	}
	type row struct {
		NewsID int64  `db:"news_id"`
		Vector []byte `db:"vector"`
	}
	query, args, err := sqlx.In(`SELECT news_id, vector FROM news_embedding WHERE news_id IN (?)`, newsIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: build embeddings query: %w", err)
	}
	var rows []row
	if err := r.db.DB.SelectContext(ctx, &rows, r.db.DB.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("repository: list embeddings: %w", err)
	}
	out := make(map[int64][]float32, len(rows))
	for _, rr := range rows {
		var vec []float32
		if err := json.Unmarshal(rr.Vector, &vec); err != nil {
			continue
		}
		out[rr.NewsID] = vec
	}
	return out, nil
}

// SaveTopic upserts a NewsTopic assignment.
func (r *NewsRepository) SaveTopic(ctx context.Context, t *domain.NewsTopic) error {
	keywords, err := json.Marshal(t.TopicKeywords)
	if err != nil {
		return fmt.Errorf("repository: marshal topic keywords: %w", err)
	}
	_, err = r.db.DB.ExecContext(ctx, `
		INSERT INTO news_topic (news_id, topic_id, group_id, topic_keywords, similarity_score, clustering_method)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (news_id) DO UPDATE SET
			topic_id = EXCLUDED.topic_id, group_id = EXCLUDED.group_id,
			topic_keywords = EXCLUDED.topic_keywords, similarity_score = EXCLUDED.similarity_score,
			clustering_method = EXCLUDED.clustering_method`,
		t.NewsID, t.TopicID, t.GroupID, keywords, t.SimilarityScore, t.ClusteringMethod)
	if err != nil {
		return fmt.Errorf("repository: save topic: %w", err)
	}
	return nil
}

// ListSources loads the configured RSS sources.
func (r *NewsRepository) ListSources(ctx context.Context) ([]domain.Source, error) {
	var sources []domain.Source
	err := r.db.DB.SelectContext(ctx, &sources, `SELECT name, url, lang, weight FROM rss_source`)
	if err != nil {
		return nil, fmt.Errorf("repository: list sources: %w", err)
	}
	return sources, nil
}

// GetSourceByName loads one rss_source row by its name, the ML
// enrichment pipeline's route back to the source weight the rule
// scorer fallback needs.
func (r *NewsRepository) GetSourceByName(ctx context.Context, name string) (*domain.Source, error) {
	var source domain.Source
	err := r.db.DB.GetContext(ctx, &source, `SELECT name, url, lang, weight FROM rss_source WHERE name = $1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: get source %s: %w", name, err)
	}
	return &source, nil
}

// UpdateScore folds the ML enrichment pipeline's importanceP,
// modelVersion, and summary into an already-persisted NewsScore row.
func (r *NewsRepository) UpdateScore(ctx context.Context, newsID int64, importanceP float64, modelVersion, summary string) error {
	_, err := r.db.DB.ExecContext(ctx, `
		UPDATE news_score SET importance_p = $2, model_version = $3, summary = $4
		WHERE news_id = $1`, newsID, importanceP, modelVersion, summary)
	if err != nil {
		return fmt.Errorf("repository: update score %d: %w", newsID, err)
	}
	return nil
}

// Package repository persists anonymous visitors and their
// preferences, and answers the personaliser's recent-click-history
// queries.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/database"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

// UserRepository is the Postgres-backed store for AnonymousUser,
// UserPreference, and the click-history queries the personaliser runs.
type UserRepository struct {
	db  *database.Database
	log *logger.Logger
}

// NewUserRepository builds a Postgres-backed UserRepository.
func NewUserRepository(db *database.Database, log *logger.Logger) *UserRepository {
	return &UserRepository{db: db, log: log}
}

// GetOrCreateAnonymousUser loads anonID's row, creating one with
// sessionCount=1 if it doesn't exist yet, else bumping lastSeenAt and
// sessionCount.
func (r *UserRepository) GetOrCreateAnonymousUser(ctx context.Context, anonID, userAgent, country string) (*domain.AnonymousUser, error) {
	now := time.Now().UTC()
	var u domain.AnonymousUser
	err := r.db.DB.GetContext(ctx, &u, `
		INSERT INTO anonymous_user (anon_id, first_seen_at, last_seen_at, session_count, user_agent, country, is_active)
		VALUES ($1, $2, $2, 1, $3, $4, true)
		ON CONFLICT (anon_id) DO UPDATE SET
			last_seen_at = $2, session_count = anonymous_user.session_count + 1
		RETURNING anon_id, first_seen_at, last_seen_at, session_count, user_agent, country, is_active`,
		anonID, now, userAgent, country)
	if err != nil {
		return nil, fmt.Errorf("repository: upsert anonymous user: %w", err)
	}
	return &u, nil
}

type userPreferenceRow struct {
	UserID                 string  `db:"user_id"`
	InterestTickers        []byte  `db:"interest_tickers"`
	InterestKeywords       []byte  `db:"interest_keywords"`
	PersonalizationEnabled bool    `db:"personalization_enabled"`
	DiversityWeight        float64 `db:"diversity_weight"`
	IsActive               bool    `db:"is_active"`
}

func (r userPreferenceRow) toDomain() (domain.UserPreference, error) {
	var tickers, keywords []string
	if err := json.Unmarshal(r.InterestTickers, &tickers); err != nil {
		return domain.UserPreference{}, fmt.Errorf("repository: unmarshal interest tickers: %w", err)
	}
	if err := json.Unmarshal(r.InterestKeywords, &keywords); err != nil {
		return domain.UserPreference{}, fmt.Errorf("repository: unmarshal interest keywords: %w", err)
	}
	return domain.UserPreference{
		UserID:                 r.UserID,
		InterestTickers:        tickers,
		InterestKeywords:       keywords,
		PersonalizationEnabled: r.PersonalizationEnabled,
		DiversityWeight:        r.DiversityWeight,
		IsActive:               r.IsActive,
	}, nil
}

// GetPreference loads userID's preferences, or nil if none are set.
func (r *UserRepository) GetPreference(ctx context.Context, userID string) (*domain.UserPreference, error) {
	var row userPreferenceRow
	err := r.db.DB.GetContext(ctx, &row, `
		SELECT user_id, interest_tickers, interest_keywords, personalization_enabled, diversity_weight, is_active
		FROM user_preference WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: get user preference: %w", err)
	}
	p, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePreference upserts p.
func (r *UserRepository) SavePreference(ctx context.Context, p domain.UserPreference) error {
	tickers, err := json.Marshal(p.InterestTickers)
	if err != nil {
		return fmt.Errorf("repository: marshal interest tickers: %w", err)
	}
	keywords, err := json.Marshal(p.InterestKeywords)
	if err != nil {
		return fmt.Errorf("repository: marshal interest keywords: %w", err)
	}
	_, err = r.db.DB.ExecContext(ctx, `
		INSERT INTO user_preference (user_id, interest_tickers, interest_keywords, personalization_enabled, diversity_weight, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			interest_tickers = EXCLUDED.interest_tickers, interest_keywords = EXCLUDED.interest_keywords,
			personalization_enabled = EXCLUDED.personalization_enabled, diversity_weight = EXCLUDED.diversity_weight,
			is_active = EXCLUDED.is_active`,
		p.UserID, tickers, keywords, p.PersonalizationEnabled, p.DiversityWeight, p.IsActive)
	if err != nil {
		return fmt.Errorf("repository: save user preference: %w", err)
	}
	return nil
}

// ListRecentClickedNewsIDs returns the distinct news ids anonID or
// userID clicked since the given time, for the personaliser's
// click-history affinity and novelty terms.
func (r *UserRepository) ListRecentClickedNewsIDs(ctx context.Context, anonID string, userID *string, since time.Time) ([]int64, error) {
	var ids []int64
	query := `
		SELECT DISTINCT c.news_id
		FROM click_log c
		WHERE c.clicked_at >= $1 AND (c.anon_id = $2 OR ($3::text IS NOT NULL AND c.user_id = $3))`
	if err := r.db.DB.SelectContext(ctx, &ids, query, since, anonID, userID); err != nil {
		return nil, fmt.Errorf("repository: list recent clicked news ids: %w", err)
	}
	return ids, nil
}

// RecordClick inserts one ClickLog row.
func (r *UserRepository) RecordClick(ctx context.Context, c domain.ClickLog) error {
	_, err := r.db.DB.ExecContext(ctx, `
		INSERT INTO click_log (anon_id, user_id, news_id, clicked_at, dwell_time_ms, experiment_key, variant, date_partition)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.AnonID, c.UserID, c.NewsID, c.ClickedAt, c.DwellTimeMs, c.ExperimentKey, c.Variant, c.DatePartition)
	if err != nil {
		return fmt.Errorf("repository: record click: %w", err)
	}
	return nil
}

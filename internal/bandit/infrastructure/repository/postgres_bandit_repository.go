// Package repository persists bandit configuration, running
// per-(experiment,arm,context) statistics, and the decision/reward
// audit trail to Postgres.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/bandit/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/database"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

// BanditRepository is the Postgres-backed store for every bandit
// entity, implementing application.ExperimentReader,
// application.StateStore, and application.DecisionStore.
type BanditRepository struct {
	db  *database.Database
	log *logger.Logger
}

// NewBanditRepository builds a Postgres-backed BanditRepository.
func NewBanditRepository(db *database.Database, log *logger.Logger) *BanditRepository {
	return &BanditRepository{db: db, log: log}
}

// GetExperiment loads a bandit's configuration, or nil if it doesn't exist.
func (r *BanditRepository) GetExperiment(ctx context.Context, experimentKey string) (*domain.BanditExperiment, error) {
	var exp domain.BanditExperiment
	err := r.db.DB.GetContext(ctx, &exp, `
		SELECT experiment_key, algorithm, epsilon, alpha, beta, is_active
		FROM bandit_experiment WHERE experiment_key = $1`, experimentKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: get bandit experiment: %w", err)
	}
	return &exp, nil
}

// ListArms returns every configured arm for experimentKey.
func (r *BanditRepository) ListArms(ctx context.Context, experimentKey string) ([]domain.BanditArm, error) {
	var arms []domain.BanditArm
	if err := r.db.DB.SelectContext(ctx, &arms, `
		SELECT name, algorithm_type, enabled FROM bandit_arm WHERE experiment_key = $1`, experimentKey); err != nil {
		return nil, fmt.Errorf("repository: list bandit arms: %w", err)
	}
	return arms, nil
}

// GetStates loads the running statistics for each named arm under
// (experimentKey, contextKey), defaulting to a zero-value state for
// any arm with no prior pulls.
func (r *BanditRepository) GetStates(ctx context.Context, experimentKey, contextKey string, arms []string) (map[string]domain.BanditState, error) {
	var rows []domain.BanditState
	if err := r.db.DB.SelectContext(ctx, &rows, `
		SELECT experiment_key, arm, context_key, pulls, total_reward, sum_reward_squared, last_pull_at
		FROM bandit_state WHERE experiment_key = $1 AND context_key = $2`, experimentKey, contextKey); err != nil {
		return nil, fmt.Errorf("repository: get bandit states: %w", err)
	}

	out := make(map[string]domain.BanditState, len(arms))
	for _, name := range arms {
		out[name] = domain.BanditState{ExperimentKey: experimentKey, Arm: name, ContextKey: contextKey}
	}
	for _, row := range rows {
		out[row.Arm] = row
	}
	return out, nil
}

// ListStatesByExperiment aggregates every arm's running statistics
// across all contexts for experimentKey, feeding the bandit
// performance report.
func (r *BanditRepository) ListStatesByExperiment(ctx context.Context, experimentKey string) ([]domain.BanditState, error) {
	var rows []domain.BanditState
	if err := r.db.DB.SelectContext(ctx, &rows, `
		SELECT $1 AS experiment_key, arm, '' AS context_key,
		       SUM(pulls) AS pulls, SUM(total_reward) AS total_reward,
		       SUM(sum_reward_squared) AS sum_reward_squared, MAX(last_pull_at) AS last_pull_at
		FROM bandit_state WHERE experiment_key = $1 GROUP BY arm`, experimentKey); err != nil {
		return nil, fmt.Errorf("repository: list bandit states for %s: %w", experimentKey, err)
	}
	return rows, nil
}

// RecordPull atomically folds one more reward observation into the
// (experimentKey, arm, contextKey) running totals, relying on the
// table's unique constraint on the triple for merge-safe upserts
// under concurrent reward updates.
func (r *BanditRepository) RecordPull(ctx context.Context, experimentKey, arm, contextKey string, reward float64) error {
	_, err := r.db.DB.ExecContext(ctx, `
		INSERT INTO bandit_state (experiment_key, arm, context_key, pulls, total_reward, sum_reward_squared, last_pull_at)
		VALUES ($1, $2, $3, 1, $4, $5, now())
		ON CONFLICT (experiment_key, arm, context_key) DO UPDATE SET
			pulls = bandit_state.pulls + 1,
			total_reward = bandit_state.total_reward + EXCLUDED.total_reward,
			sum_reward_squared = bandit_state.sum_reward_squared + EXCLUDED.sum_reward_squared,
			last_pull_at = now()`,
		experimentKey, arm, contextKey, reward, reward*reward)
	if err != nil {
		return fmt.Errorf("repository: record pull: %w", err)
	}
	return nil
}

// SaveDecision persists a BanditDecision and returns its minted ID.
func (r *BanditRepository) SaveDecision(ctx context.Context, d domain.BanditDecision) (int64, error) {
	newsIDs, err := json.Marshal(d.NewsIDs)
	if err != nil {
		return 0, fmt.Errorf("repository: marshal news ids: %w", err)
	}
	var userID *string
	if d.Context.UserID != nil {
		userID = d.Context.UserID
	}

	var id int64
	row := r.db.DB.QueryRowxContext(ctx, `
		INSERT INTO bandit_decision (experiment_key, arm, context_type, context_value, user_id,
			decision_value, selection_reason, news_ids, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		d.ExperimentKey, d.Arm, d.Context.ContextType, d.Context.ContextValue, userID,
		d.DecisionValue, d.SelectionReason, newsIDs, d.DecidedAt)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("repository: save decision: %w", err)
	}
	return id, nil
}

// SaveReward persists one BanditReward row.
func (r *BanditRepository) SaveReward(ctx context.Context, reward domain.BanditReward) error {
	_, err := r.db.DB.ExecContext(ctx, `
		INSERT INTO bandit_reward (decision_id, reward_type, reward_value, recorded_at)
		VALUES ($1, $2, $3, $4)`,
		reward.DecisionID, reward.RewardType, reward.RewardValue, reward.RecordedAt)
	if err != nil {
		return fmt.Errorf("repository: save reward: %w", err)
	}
	return nil
}

// GetDecision loads a prior BanditDecision by ID, reconstructing its
// BanditContext from the flattened context_type/context_value/user_id
// columns.
func (r *BanditRepository) GetDecision(ctx context.Context, decisionID int64) (*domain.BanditDecision, error) {
	type row struct {
		ID              int64               `db:"id"`
		ExperimentKey   string              `db:"experiment_key"`
		Arm             string              `db:"arm"`
		ContextType     string              `db:"context_type"`
		ContextValue    string              `db:"context_value"`
		UserID          *string             `db:"user_id"`
		DecisionValue   float64             `db:"decision_value"`
		SelectionReason domain.SelectionReason `db:"selection_reason"`
		NewsIDs         []byte              `db:"news_ids"`
		DecidedAt       sql.NullTime        `db:"decided_at"`
	}
	var rr row
	err := r.db.DB.GetContext(ctx, &rr, `
		SELECT id, experiment_key, arm, context_type, context_value, user_id,
			decision_value, selection_reason, news_ids, decided_at
		FROM bandit_decision WHERE id = $1`, decisionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: get decision: %w", err)
	}

	var newsIDs []int64
	if err := json.Unmarshal(rr.NewsIDs, &newsIDs); err != nil {
		return nil, fmt.Errorf("repository: unmarshal news ids: %w", err)
	}

	return &domain.BanditDecision{
		ID:            rr.ID,
		ExperimentKey: rr.ExperimentKey,
		Arm:           rr.Arm,
		Context: domain.BanditContext{
			UserID:       rr.UserID,
			ContextType:  rr.ContextType,
			ContextValue: rr.ContextValue,
		},
		DecisionValue:   rr.DecisionValue,
		SelectionReason: rr.SelectionReason,
		NewsIDs:         newsIDs,
		DecidedAt:       rr.DecidedAt.Time,
	}, nil
}

package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/bandit/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

type fakeRankSource struct{}

func (f *fakeRankSource) ByPersonalizedScore(ctx context.Context, bctx domain.BanditContext, ids []int64) ([]int64, error) {
	return ids, nil
}
func (f *fakeRankSource) ByPopularity(ctx context.Context, ids []int64) ([]int64, error) { return ids, nil }
func (f *fakeRankSource) ByDiversity(ctx context.Context, ids []int64) ([]int64, error)   { return ids, nil }
func (f *fakeRankSource) ByRecency(ctx context.Context, ids []int64) ([]int64, error)     { return ids, nil }

type fakeExperimentReader struct {
	exp  *domain.BanditExperiment
	arms []domain.BanditArm
}

func (f *fakeExperimentReader) GetExperiment(ctx context.Context, experimentKey string) (*domain.BanditExperiment, error) {
	return f.exp, nil
}
func (f *fakeExperimentReader) ListArms(ctx context.Context, experimentKey string) ([]domain.BanditArm, error) {
	return f.arms, nil
}

type fakeStateStore struct {
	states map[string]domain.BanditState
}

func (f *fakeStateStore) GetStates(ctx context.Context, experimentKey, contextKey string, arms []string) (map[string]domain.BanditState, error) {
	return f.states, nil
}
func (f *fakeStateStore) RecordPull(ctx context.Context, experimentKey, arm, contextKey string, reward float64) error {
	s := f.states[arm]
	s.Pulls++
	s.TotalReward += reward
	s.SumRewardSquared += reward * reward
	f.states[arm] = s
	return nil
}

type fakeDecisionStore struct {
	decisions map[int64]domain.BanditDecision
	rewards   []domain.BanditReward
	nextID    int64
}

func newFakeDecisionStore() *fakeDecisionStore {
	return &fakeDecisionStore{decisions: make(map[int64]domain.BanditDecision)}
}

func (f *fakeDecisionStore) SaveDecision(ctx context.Context, d domain.BanditDecision) (int64, error) {
	f.nextID++
	d.ID = f.nextID
	f.decisions[f.nextID] = d
	return f.nextID, nil
}
func (f *fakeDecisionStore) SaveReward(ctx context.Context, r domain.BanditReward) error {
	f.rewards = append(f.rewards, r)
	return nil
}
func (f *fakeDecisionStore) GetDecision(ctx context.Context, decisionID int64) (*domain.BanditDecision, error) {
	d, ok := f.decisions[decisionID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func TestCore_SelectPersistsDecisionAndReturnsRankedNewsIDs(t *testing.T) {
	exp := &domain.BanditExperiment{ExperimentKey: "exp-1", Algorithm: domain.AlgorithmEpsilonGreedy, Epsilon: 0, IsActive: true}
	arms := []domain.BanditArm{
		{Name: "PERSONALIZED", AlgorithmType: domain.ArmPersonalized, Enabled: true},
		{Name: "POPULAR", AlgorithmType: domain.ArmPopular, Enabled: true},
	}
	states := map[string]domain.BanditState{
		"PERSONALIZED": {Pulls: 5, TotalReward: 4},
		"POPULAR":      {Pulls: 5, TotalReward: 1},
	}
	core := New(&fakeExperimentReader{exp: exp, arms: arms}, &fakeStateStore{states: states}, newFakeDecisionStore(),
		DefaultArms(&fakeRankSource{}), logger.New("test"))

	result, err := core.Select(context.Background(), "exp-1", domain.BanditContext{ContextType: "hour_of_day", ContextValue: "14"}, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "PERSONALIZED", result.Arm)
	assert.Equal(t, []int64{1, 2, 3}, result.NewsIDs)
	assert.NotZero(t, result.DecisionID)
}

func TestCore_SelectRejectsInactiveExperiment(t *testing.T) {
	core := New(&fakeExperimentReader{exp: &domain.BanditExperiment{IsActive: false}}, &fakeStateStore{states: map[string]domain.BanditState{}},
		newFakeDecisionStore(), DefaultArms(&fakeRankSource{}), logger.New("test"))

	_, err := core.Select(context.Background(), "exp-1", domain.BanditContext{}, []int64{1})
	assert.Error(t, err)
}

func TestCore_RewardNormalizesAndUpdatesRunningState(t *testing.T) {
	exp := &domain.BanditExperiment{ExperimentKey: "exp-1", Algorithm: domain.AlgorithmEpsilonGreedy, Epsilon: 0, IsActive: true}
	arms := []domain.BanditArm{{Name: "POPULAR", AlgorithmType: domain.ArmPopular, Enabled: true}}
	states := map[string]domain.BanditState{"POPULAR": {}}
	stateStore := &fakeStateStore{states: states}
	decisionStore := newFakeDecisionStore()
	core := New(&fakeExperimentReader{exp: exp, arms: arms}, stateStore, decisionStore, DefaultArms(&fakeRankSource{}), logger.New("test"))

	result, err := core.Select(context.Background(), "exp-1", domain.BanditContext{ContextType: "category", ContextValue: "tech"}, []int64{1})
	require.NoError(t, err)

	err = core.Reward(context.Background(), result.DecisionID, domain.RewardClick, 0)
	require.NoError(t, err)

	updated := stateStore.states["POPULAR"]
	assert.Equal(t, int64(1), updated.Pulls)
	assert.Equal(t, 1.0, updated.TotalReward)
	require.Len(t, decisionStore.rewards, 1)
	assert.Equal(t, 1.0, decisionStore.rewards[0].RewardValue)
}

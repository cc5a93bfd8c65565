package application

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/bandit/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

// ExperimentReader loads a running bandit's configuration and arms.
type ExperimentReader interface {
	GetExperiment(ctx context.Context, experimentKey string) (*domain.BanditExperiment, error)
	ListArms(ctx context.Context, experimentKey string) ([]domain.BanditArm, error)
}

// StateStore loads and atomically updates per-(experiment,arm,context)
// running statistics.
type StateStore interface {
	GetStates(ctx context.Context, experimentKey string, contextKey string, arms []string) (map[string]domain.BanditState, error)
	RecordPull(ctx context.Context, experimentKey, arm, contextKey string, reward float64) error
}

// DecisionStore persists the audit trail of selections and rewards.
type DecisionStore interface {
	SaveDecision(ctx context.Context, d domain.BanditDecision) (int64, error)
	SaveReward(ctx context.Context, r domain.BanditReward) error
	GetDecision(ctx context.Context, decisionID int64) (*domain.BanditDecision, error)
}

// Core orchestrates one Select/Reward round-trip for a bandit
// experiment.
type Core struct {
	experiments ExperimentReader
	states      StateStore
	decisions   DecisionStore
	arms        map[string]Arm
	selectors   map[domain.Algorithm]Selector
	log         *logger.Logger
}

// New builds a Core over the four standard arms and all three
// selection algorithms, sharing one time-seeded *rand.Rand between the
// epsilon-greedy and Thompson selectors so each Select call advances a
// live generator instead of redrawing a fresh, fixed-seed one.
func New(experiments ExperimentReader, states StateStore, decisions DecisionStore, armImpls []Arm, log *logger.Logger) *Core {
	armsByName := make(map[string]Arm, len(armImpls))
	for _, a := range armImpls {
		armsByName[a.Name()] = a
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Core{
		experiments: experiments,
		states:      states,
		decisions:   decisions,
		arms:        armsByName,
		selectors: map[domain.Algorithm]Selector{
			domain.AlgorithmEpsilonGreedy: NewEpsilonGreedySelector(rng),
			domain.AlgorithmUCB1:          NewUCB1Selector(),
			domain.AlgorithmThompson:      NewThompsonSelector(rng),
		},
		log: log,
	}
}

// SelectResult is what Select returns: the chosen arm's ranked news
// IDs plus the decision ID feedback later references.
type SelectResult struct {
	DecisionID int64
	Arm        string
	NewsIDs    []int64
}

// Select resolves bctx, picks an arm under the experiment's
// configured algorithm, asks it to rank candidateNewsIDs, and
// persists the decision.
func (c *Core) Select(ctx context.Context, experimentKey string, bctx domain.BanditContext, candidateNewsIDs []int64) (*SelectResult, error) {
	exp, err := c.experiments.GetExperiment(ctx, experimentKey)
	if err != nil {
		return nil, fmt.Errorf("bandit: get experiment %s: %w", experimentKey, err)
	}
	if exp == nil || !exp.IsActive {
		return nil, fmt.Errorf("bandit: experiment %s not active", experimentKey)
	}

	armConfigs, err := c.experiments.ListArms(ctx, experimentKey)
	if err != nil {
		return nil, fmt.Errorf("bandit: list arms for %s: %w", experimentKey, err)
	}
	armNames := make([]string, 0, len(armConfigs))
	for _, a := range armConfigs {
		if a.Enabled {
			armNames = append(armNames, a.Name)
		}
	}
	if len(armNames) == 0 {
		return nil, fmt.Errorf("bandit: no enabled arms for %s", experimentKey)
	}

	contextKey := bctx.Key()
	states, err := c.states.GetStates(ctx, experimentKey, contextKey, armNames)
	if err != nil {
		return nil, fmt.Errorf("bandit: get states for %s/%s: %w", experimentKey, contextKey, err)
	}

	selector, ok := c.selectors[exp.Algorithm]
	if !ok {
		return nil, fmt.Errorf("bandit: unknown algorithm %s", exp.Algorithm)
	}
	chosenArmName, reason := selector.Select(*exp, armNames, states)

	arm, ok := c.arms[chosenArmName]
	if !ok {
		return nil, fmt.Errorf("bandit: arm %s has no implementation registered", chosenArmName)
	}
	newsIDs, err := arm.Rank(ctx, bctx, candidateNewsIDs)
	if err != nil {
		return nil, fmt.Errorf("bandit: arm %s rank: %w", chosenArmName, err)
	}

	decisionValue := 0.0
	if state, ok := states[chosenArmName]; ok {
		decisionValue = state.MeanReward()
	}
	decision := domain.BanditDecision{
		ExperimentKey:   experimentKey,
		Arm:             chosenArmName,
		Context:         bctx,
		DecisionValue:   decisionValue,
		SelectionReason: reason,
		NewsIDs:         newsIDs,
		DecidedAt:       time.Now().UTC(),
	}
	decisionID, err := c.decisions.SaveDecision(ctx, decision)
	if err != nil {
		return nil, fmt.Errorf("bandit: save decision: %w", err)
	}

	return &SelectResult{DecisionID: decisionID, Arm: chosenArmName, NewsIDs: newsIDs}, nil
}

// Reward records feedback against a prior decision: normalizes the
// raw signal, appends a BanditReward row, and atomically folds it
// into the (experiment,arm,context) running statistics.
func (c *Core) Reward(ctx context.Context, decisionID int64, rewardType domain.RewardType, rawValue float64) error {
	decision, err := c.decisions.GetDecision(ctx, decisionID)
	if err != nil {
		return fmt.Errorf("bandit: get decision %d: %w", decisionID, err)
	}
	if decision == nil {
		return fmt.Errorf("bandit: decision %d not found", decisionID)
	}

	normalized := domain.NormalizeReward(rewardType, rawValue)

	if err := c.decisions.SaveReward(ctx, domain.BanditReward{
		DecisionID:  decisionID,
		RewardType:  rewardType,
		RewardValue: normalized,
		RecordedAt:  time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("bandit: save reward: %w", err)
	}

	contextKey := decision.Context.Key()
	if err := c.states.RecordPull(ctx, decision.ExperimentKey, decision.Arm, contextKey, normalized); err != nil {
		return fmt.Errorf("bandit: record pull: %w", err)
	}
	return nil
}

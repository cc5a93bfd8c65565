// Package domain holds the multi-armed bandit's entities: the
// experiment configuration, its arms, the context a decision is made
// under, the running per-(experiment,arm,context) statistics, and the
// decision/reward audit trail.
package domain

import "time"

// Algorithm selects which arm-selection strategy a BanditExperiment runs.
type Algorithm string

const (
	AlgorithmEpsilonGreedy Algorithm = "epsilon_greedy"
	AlgorithmUCB1          Algorithm = "ucb1"
	AlgorithmThompson      Algorithm = "thompson"
)

// BanditExperiment configures one running bandit.
type BanditExperiment struct {
	ExperimentKey string    `json:"experimentKey" db:"experiment_key"`
	Algorithm     Algorithm `json:"algorithm" db:"algorithm"`
	Epsilon       float64   `json:"epsilon" db:"epsilon"`
	Alpha         float64   `json:"alpha" db:"alpha"`
	Beta          float64   `json:"beta" db:"beta"`
	IsActive      bool      `json:"isActive" db:"is_active"`
}

// ArmAlgorithmType names the ranking strategy behind an arm.
type ArmAlgorithmType string

const (
	ArmPersonalized ArmAlgorithmType = "PERSONALIZED"
	ArmPopular      ArmAlgorithmType = "POPULAR"
	ArmDiverse      ArmAlgorithmType = "DIVERSE"
	ArmRecent       ArmAlgorithmType = "RECENT"
)

// BanditArm is one ranking strategy the bandit can select.
type BanditArm struct {
	Name          string           `json:"name" db:"name"`
	AlgorithmType ArmAlgorithmType `json:"algorithmType" db:"algorithm_type"`
	Enabled       bool             `json:"enabled" db:"enabled"`
}

// BanditContext is the slice a decision is keyed under.
type BanditContext struct {
	UserID       *string `json:"userId,omitempty" db:"user_id"`
	ContextType  string  `json:"contextType" db:"context_type"`   // e.g. "hour_of_day", "category"
	ContextValue string  `json:"contextValue" db:"context_value"` // e.g. "14", "005930"
}

// Key returns a stable string identifying this context for map
// lookups and the BanditState unique constraint.
func (c BanditContext) Key() string {
	userPart := "anon"
	if c.UserID != nil {
		userPart = *c.UserID
	}
	return userPart + "|" + c.ContextType + "|" + c.ContextValue
}

// BanditState is the running per-(experiment,arm,context) statistic
// set. Uniqueness on the triple guarantees merge-safe upserts under
// concurrent reward updates.
type BanditState struct {
	ExperimentKey     string    `json:"experimentKey" db:"experiment_key"`
	Arm               string    `json:"arm" db:"arm"`
	ContextKey        string    `json:"contextKey" db:"context_key"`
	Pulls             int64     `json:"pulls" db:"pulls"`
	TotalReward       float64   `json:"totalReward" db:"total_reward"`
	SumRewardSquared  float64   `json:"sumRewardSquared" db:"sum_reward_squared"`
	LastPullAt        time.Time `json:"lastPullAt" db:"last_pull_at"`
}

// MeanReward returns the running average reward, 0 with no pulls yet.
func (s BanditState) MeanReward() float64 {
	if s.Pulls == 0 {
		return 0
	}
	return s.TotalReward / float64(s.Pulls)
}

// Variance returns the running reward variance, 0 with <2 pulls.
func (s BanditState) Variance() float64 {
	if s.Pulls < 2 {
		return 0
	}
	mean := s.MeanReward()
	return s.SumRewardSquared/float64(s.Pulls) - mean*mean
}

// SelectionReason records why an arm was chosen, for audit.
type SelectionReason string

const (
	ReasonExploration SelectionReason = "EXPLORATION"
	ReasonExploitation SelectionReason = "EXPLOITATION"
	ReasonRandom       SelectionReason = "RANDOM"
)

// BanditDecision is the audit record of one arm selection.
type BanditDecision struct {
	ID              int64           `json:"id" db:"id"`
	ExperimentKey   string          `json:"experimentKey" db:"experiment_key"`
	Arm             string          `json:"arm" db:"arm"`
	Context         BanditContext   `json:"context" db:"-"`
	DecisionValue   float64         `json:"decisionValue" db:"decision_value"`
	SelectionReason SelectionReason `json:"selectionReason" db:"selection_reason"`
	NewsIDs         []int64         `json:"newsIds" db:"news_ids"`
	DecidedAt       time.Time       `json:"decidedAt" db:"decided_at"`
}

// RewardType classifies the feedback signal a BanditReward carries.
type RewardType string

const (
	RewardClick      RewardType = "CLICK"
	RewardDwellTime  RewardType = "DWELL_TIME"
	RewardEngagement RewardType = "ENGAGEMENT"
)

// BanditReward is one feedback event against a prior decision.
type BanditReward struct {
	ID          int64      `json:"id" db:"id"`
	DecisionID  int64      `json:"decisionId" db:"decision_id"`
	RewardType  RewardType `json:"rewardType" db:"reward_type"`
	RewardValue float64    `json:"rewardValue" db:"reward_value"`
	RecordedAt  time.Time  `json:"recordedAt" db:"recorded_at"`
}

// NormalizeReward maps a raw feedback signal to [0,1]: CLICK -> 1.0,
// DWELL_TIME -> clip(seconds/60, 0, 1), ENGAGEMENT -> caller-supplied
// in [0,1].
func NormalizeReward(rewardType RewardType, raw float64) float64 {
	switch rewardType {
	case RewardClick:
		return 1.0
	case RewardDwellTime:
		v := raw / 60.0
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	case RewardEngagement:
		if raw < 0 {
			return 0
		}
		if raw > 1 {
			return 1
		}
		return raw
	default:
		return 0
	}
}

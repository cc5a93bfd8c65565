// Package application implements the multi-armed bandit: four ranking
// arms, the three selection algorithms that choose among them, the
// decision/reward persistence round-trip, and reward normalization.
package application

import (
	"context"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/bandit/domain"
)

// Arm ranks news IDs for one context under its own strategy.
type Arm interface {
	Name() string
	AlgorithmType() domain.ArmAlgorithmType
	Rank(ctx context.Context, bctx domain.BanditContext, candidateNewsIDs []int64) ([]int64, error)
}

// RankSource supplies the raw orderings each arm specializes.
type RankSource interface {
	// ByPersonalizedScore orders candidateNewsIDs for the PERSONALIZED
	// arm; bctx identifies the requesting user.
	ByPersonalizedScore(ctx context.Context, bctx domain.BanditContext, candidateNewsIDs []int64) ([]int64, error)
	// ByPopularity orders candidateNewsIDs by recent click-through volume.
	ByPopularity(ctx context.Context, candidateNewsIDs []int64) ([]int64, error)
	// ByDiversity orders candidateNewsIDs through the MMR diversity filter.
	ByDiversity(ctx context.Context, candidateNewsIDs []int64) ([]int64, error)
	// ByRecency orders candidateNewsIDs by publishedAt desc.
	ByRecency(ctx context.Context, candidateNewsIDs []int64) ([]int64, error)
}

type personalizedArm struct{ source RankSource }
type popularArm struct{ source RankSource }
type diverseArm struct{ source RankSource }
type recentArm struct{ source RankSource }

func (a personalizedArm) Name() string                        { return string(domain.ArmPersonalized) }
func (a personalizedArm) AlgorithmType() domain.ArmAlgorithmType { return domain.ArmPersonalized }
func (a personalizedArm) Rank(ctx context.Context, bctx domain.BanditContext, ids []int64) ([]int64, error) {
	return a.source.ByPersonalizedScore(ctx, bctx, ids)
}

func (a popularArm) Name() string                        { return string(domain.ArmPopular) }
func (a popularArm) AlgorithmType() domain.ArmAlgorithmType { return domain.ArmPopular }
func (a popularArm) Rank(ctx context.Context, bctx domain.BanditContext, ids []int64) ([]int64, error) {
	return a.source.ByPopularity(ctx, ids)
}

func (a diverseArm) Name() string                        { return string(domain.ArmDiverse) }
func (a diverseArm) AlgorithmType() domain.ArmAlgorithmType { return domain.ArmDiverse }
func (a diverseArm) Rank(ctx context.Context, bctx domain.BanditContext, ids []int64) ([]int64, error) {
	return a.source.ByDiversity(ctx, ids)
}

func (a recentArm) Name() string                        { return string(domain.ArmRecent) }
func (a recentArm) AlgorithmType() domain.ArmAlgorithmType { return domain.ArmRecent }
func (a recentArm) Rank(ctx context.Context, bctx domain.BanditContext, ids []int64) ([]int64, error) {
	return a.source.ByRecency(ctx, ids)
}

// DefaultArms builds the four standard arms over source.
func DefaultArms(source RankSource) []Arm {
	return []Arm{
		personalizedArm{source: source},
		popularArm{source: source},
		diverseArm{source: source},
		recentArm{source: source},
	}
}

package application

import (
	"context"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/bandit/domain"
)

// StateLister aggregates one experiment's running per-arm statistics
// across every context, implemented by
// infrastructure/repository.BanditRepository.
type StateLister interface {
	ListStatesByExperiment(ctx context.Context, experimentKey string) ([]domain.BanditState, error)
}

// ArmPerformance is one arm's aggregated pulls/meanReward/variance.
type ArmPerformance struct {
	Arm        string
	Pulls      int64
	MeanReward float64
	Variance   float64
}

// PerformanceReport computes ArmPerformance for every arm of an
// experiment, the read side the admin performance endpoint serves.
type PerformanceReport struct {
	states StateLister
}

// NewPerformanceReport builds a PerformanceReport.
func NewPerformanceReport(states StateLister) *PerformanceReport {
	return &PerformanceReport{states: states}
}

// ArmPerformance returns every arm's aggregated statistics for
// experimentKey.
func (p *PerformanceReport) ArmPerformance(ctx context.Context, experimentKey string) ([]ArmPerformance, error) {
	states, err := p.states.ListStatesByExperiment(ctx, experimentKey)
	if err != nil {
		return nil, err
	}
	out := make([]ArmPerformance, 0, len(states))
	for _, s := range states {
		out = append(out, ArmPerformance{Arm: s.Arm, Pulls: s.Pulls, MeanReward: s.MeanReward(), Variance: s.Variance()})
	}
	return out, nil
}

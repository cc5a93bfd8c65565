package application

import (
	"math"
	"math/rand"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/bandit/domain"
)

// Selector picks one arm among those with known running state, given
// the experiment's tunables, returning the chosen arm's name and why.
type Selector interface {
	Select(exp domain.BanditExperiment, arms []string, states map[string]domain.BanditState) (arm string, reason domain.SelectionReason)
}

// EpsilonGreedySelector implements the ε-greedy rule: with
// probability ε explore uniformly at random, else exploit the arm
// with the highest mean reward, breaking ties at random.
type EpsilonGreedySelector struct {
	rng *rand.Rand
}

// NewEpsilonGreedySelector builds a selector; rng may be nil to use
// the package-level default source.
func NewEpsilonGreedySelector(rng *rand.Rand) *EpsilonGreedySelector {
	return &EpsilonGreedySelector{rng: rng}
}

func (s *EpsilonGreedySelector) Select(exp domain.BanditExperiment, arms []string, states map[string]domain.BanditState) (string, domain.SelectionReason) {
	r := s.random()
	if r.Float64() < exp.Epsilon {
		return arms[r.Intn(len(arms))], domain.ReasonExploration
	}

	best := bestArmsByMeanReward(arms, states)
	if len(best) == 1 {
		return best[0], domain.ReasonExploitation
	}
	return best[r.Intn(len(best))], domain.ReasonExploitation
}

func (s *EpsilonGreedySelector) random() *rand.Rand {
	if s.rng != nil {
		return s.rng
	}
	return rand.New(rand.NewSource(rand.Int63()))
}

// UCB1Selector implements the upper-confidence-bound rule:
// argmax(mean + sqrt(2 ln N / n_a)). An arm with zero pulls gets
// infinite bound so every arm is tried at least once.
type UCB1Selector struct{}

// NewUCB1Selector builds a UCB1Selector.
func NewUCB1Selector() *UCB1Selector {
	return &UCB1Selector{}
}

func (s *UCB1Selector) Select(exp domain.BanditExperiment, arms []string, states map[string]domain.BanditState) (string, domain.SelectionReason) {
	var totalPulls int64
	for _, name := range arms {
		totalPulls += states[name].Pulls
	}

	best := ""
	bestBound := math.Inf(-1)
	for _, name := range arms {
		state := states[name]
		var bound float64
		if state.Pulls == 0 {
			bound = math.Inf(1)
		} else {
			bound = state.MeanReward() + math.Sqrt(2*math.Log(float64(totalPulls))/float64(state.Pulls))
		}
		if bound > bestBound {
			bestBound = bound
			best = name
		}
	}

	reason := domain.ReasonExploitation
	if states[best].Pulls == 0 {
		reason = domain.ReasonExploration
	}
	return best, reason
}

// ThompsonSelector implements Thompson sampling over a Beta(α, β)
// posterior per arm, treating each reward (already normalized to
// [0,1]) as a Bernoulli-like success/failure split: successes accrue
// totalReward, failures accrue (pulls - totalReward).
type ThompsonSelector struct {
	rng *rand.Rand
}

// NewThompsonSelector builds a selector; rng may be nil to use the
// package-level default source.
func NewThompsonSelector(rng *rand.Rand) *ThompsonSelector {
	return &ThompsonSelector{rng: rng}
}

func (s *ThompsonSelector) Select(exp domain.BanditExperiment, arms []string, states map[string]domain.BanditState) (string, domain.SelectionReason) {
	r := s.random()
	best := ""
	bestSample := -1.0
	anyPulled := false
	for _, name := range arms {
		state := states[name]
		successes := state.TotalReward
		failures := float64(state.Pulls) - successes
		if failures < 0 {
			failures = 0
		}
		alpha := exp.Alpha + successes
		beta := exp.Beta + failures
		sample := sampleBeta(r, alpha, beta)
		if state.Pulls > 0 {
			anyPulled = true
		}
		if sample > bestSample {
			bestSample = sample
			best = name
		}
	}

	reason := domain.ReasonExploitation
	if !anyPulled {
		reason = domain.ReasonExploration
	}
	return best, reason
}

func (s *ThompsonSelector) random() *rand.Rand {
	if s.rng != nil {
		return s.rng
	}
	return rand.New(rand.NewSource(rand.Int63()))
}

// sampleBeta draws from Beta(alpha, beta) via two independent Gamma
// draws: X ~ Gamma(alpha,1), Y ~ Gamma(beta,1), X/(X+Y) ~ Beta(alpha,beta).
func sampleBeta(r *rand.Rand, alpha, beta float64) float64 {
	x := sampleGamma(r, alpha)
	y := sampleGamma(r, beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1) via Marsaglia and Tsang's
// method, valid for shape >= 1; shape < 1 is boosted via the standard
// shape+1 transform and corrected with a uniform power.
func sampleGamma(r *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := r.Float64()
		return sampleGamma(r, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		x := r.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := r.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

func bestArmsByMeanReward(arms []string, states map[string]domain.BanditState) []string {
	best := make([]string, 0, 1)
	bestMean := math.Inf(-1)
	for _, name := range arms {
		mean := states[name].MeanReward()
		if mean > bestMean {
			bestMean = mean
			best = best[:0]
			best = append(best, name)
		} else if mean == bestMean {
			best = append(best, name)
		}
	}
	return best
}

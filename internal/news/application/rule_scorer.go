package application

import (
	"strings"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
)

// highImpactKeywords each contribute 0.3 to keywords_hit.
var highImpactKeywords = []string{"실적", "배당", "IPO"}

// mediumImpactKeywords each contribute 0.2 to keywords_hit.
var mediumImpactKeywords = []string{"투자", "수익"}

// Weights of the four importance signals; they sum to 1 so a weighted
// average of [0,1] factors, not their raw sum, is what gets scaled to
// [0,10] — otherwise freshness alone (1.0) plus any other signal
// saturates the clip and source-weight differences disappear.
const (
	sourceWeightFactor = 0.40
	tickersHitFactor   = 0.25
	keywordsHitFactor  = 0.15
	freshnessFactor    = 0.20
)

// RuleScorer computes the fallback importance score used when the ML
// client is unavailable, and as the quality signal the ML predictions
// are blended against.
type RuleScorer struct {
	matcher *TickerMatcher
}

// NewRuleScorer builds a scorer over the given ticker matcher.
func NewRuleScorer(matcher *TickerMatcher) *RuleScorer {
	return &RuleScorer{matcher: matcher}
}

// Score computes a NewsScore's rule-based fields for n, evaluated at
// "now" (passed explicitly so freshness is deterministic in tests).
func (s *RuleScorer) Score(n *domain.News, source domain.Source, now time.Time) *domain.NewsScore {
	text := n.Title + " " + n.Body

	sourceWeight := source.EffectiveWeight()
	tickersHit := s.matcher.CalculateTickerMatchStrength(n.Title, n.Body)
	if tickersHit > 1 {
		tickersHit = 1
	}
	keywordsHit := keywordScore(text)
	freshness := freshnessScore(n.PublishedAt, now)

	weighted := sourceWeightFactor*sourceWeight + tickersHitFactor*tickersHit +
		keywordsHitFactor*keywordsHit + freshnessFactor*freshness
	importance := clip(10*weighted, 0, 10)

	qualityPenalty := 0.0
	norm := NewNormalizer()
	if norm.IsContentTooShort(n.Body) {
		qualityPenalty += 0.5
	}
	if norm.IsContentSuspicious(n.Body) {
		qualityPenalty += 0.5
	}
	if qualityPenalty > 1 {
		qualityPenalty = 1
	}
	importance -= qualityPenalty
	if importance < 0 {
		importance = 0
	}
	if importance > 10 {
		importance = 10
	}

	reason := map[string]interface{}{
		"source_weight": sourceWeight,
		"tickers_hit":    tickersHit,
		"keywords_hit":   keywordsHit,
		"freshness":      freshness,
		"tickers_found":  s.matcher.FindTickers(text),
	}
	if qualityPenalty > 0 {
		reason["quality_penalty"] = qualityPenalty
	}

	return &domain.NewsScore{
		NewsID:     n.ID,
		Importance: importance,
		ReasonJSON: reason,
		RankScore:  importance / 10,
	}
}

// keywordScore sums weighted keyword hits, capped at 1.0.
func keywordScore(text string) float64 {
	score := 0.0
	for _, kw := range highImpactKeywords {
		if strings.Contains(text, kw) {
			score += 0.3
		}
	}
	for _, kw := range mediumImpactKeywords {
		if strings.Contains(text, kw) {
			score += 0.2
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// freshnessScore buckets age into 1.0 (<=3h),
// 0.5 (<=24h), 0.2 (<=72h), else 0.
func freshnessScore(publishedAt, now time.Time) float64 {
	age := now.Sub(publishedAt)
	switch {
	case age <= 3*time.Hour:
		return 1.0
	case age <= 24*time.Hour:
		return 0.5
	case age <= 72*time.Hour:
		return 0.2
	default:
		return 0
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package ranking

import (
	"math"
	"strings"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
)

// Weight constants for the personalized rankScore recombination.
const (
	weightImportance = 0.45
	weightRecency    = 0.20
	weightRelevance  = 0.25
	weightNovelty    = 0.10

	relevanceTickerWeight  = 0.5
	relevanceKeywordWeight = 0.3
	relevanceClickWeight   = 0.2

	recencyHalfLifeHours = 24.0
)

// ClickHistory is the subset of a user's last-7-days clicks the
// personaliser needs: which news items they clicked and, for those
// items, their tickers/keywords/embedding for affinity and novelty.
type ClickHistory struct {
	ClickedNewsIDs []int64
	ClickedTickers map[string]struct{}
	ClickedKeywords map[string]struct{}
	ClickedEmbeddings [][]float32
}

// PersonalizeInput is everything Personalize needs about one
// candidate beyond its current RankScore.
type PersonalizeInput struct {
	Candidate   Candidate
	AgeHours    float64
	Tickers     []string
	Keywords    []string
	Preference  domain.UserPreference
	History     ClickHistory
}

// Personalize recomputes rankScore as a weighted blend
// of normalized importance, recency, user relevance (ticker/keyword/
// click-history overlap), and novelty against the user's recent
// clicks. Returns the new rankScore in [0,1].
func Personalize(in PersonalizeInput) float64 {
	importanceNorm := clip01(in.Candidate.Importance / 10.0)
	recency := math.Exp(-in.AgeHours / recencyHalfLifeHours)
	relevance := userRelevance(in)
	novelty := 1 - maxSimilarityToClicked(in.Candidate, in.History)

	return weightImportance*importanceNorm +
		weightRecency*recency +
		weightRelevance*relevance +
		weightNovelty*clip01(novelty)
}

func userRelevance(in PersonalizeInput) float64 {
	tickerOverlap := overlapRatio(in.Tickers, sliceToSet(in.Preference.InterestTickers))
	keywordOverlap := overlapRatio(in.Keywords, sliceToSet(in.Preference.InterestKeywords))
	clickAffinity := clickHistoryAffinity(in.Candidate.NewsID, in.History)

	return relevanceTickerWeight*tickerOverlap +
		relevanceKeywordWeight*keywordOverlap +
		relevanceClickWeight*clickAffinity
}

// clickHistoryAffinity is 1 when the candidate was itself previously
// clicked by this user (a strong affinity signal, e.g. a returning
// series), else 0. Dwell-time-weighted affinity would need per-click
// dwell data the facade doesn't currently thread through.
func clickHistoryAffinity(newsID int64, history ClickHistory) float64 {
	for _, id := range history.ClickedNewsIDs {
		if id == newsID {
			return 1.0
		}
	}
	return 0.0
}

func maxSimilarityToClicked(c Candidate, history ClickHistory) float64 {
	if len(c.Embedding) == 0 || len(history.ClickedEmbeddings) == 0 {
		return 0
	}
	maxSim := 0.0
	for _, clicked := range history.ClickedEmbeddings {
		sim := cosineSimilarity(c.Embedding, clicked)
		if sim > maxSim {
			maxSim = sim
		}
	}
	return maxSim
}

func overlapRatio(items []string, against map[string]struct{}) float64 {
	if len(items) == 0 || len(against) == 0 {
		return 0
	}
	hits := 0
	for _, item := range items {
		if _, ok := against[strings.ToLower(item)]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(items))
}

func sliceToSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[strings.ToLower(item)] = struct{}{}
	}
	return set
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// AgeHours computes an item's age in hours from publishedAt to now,
// the input Personalize's recency term expects.
func AgeHours(publishedAt time.Time) float64 {
	return time.Since(publishedAt).Hours()
}

// Package ranking re-orders a candidate news list for one feed
// request: the MMR diversity filter trades rank for novelty against
// what's already selected, and the personaliser re-weights rankScore
// per user before diversity runs.
package ranking

import (
	"math"
	"strings"
	"time"
)

// Candidate is one ranked item going through diversity filtering and
// personalization; it carries just enough state for both stages so
// neither needs to reach back into the repositories mid-pipeline.
type Candidate struct {
	NewsID      int64
	TopicID     int64
	PublishedAt time.Time
	RankScore   float64
	Importance  float64 // in [0,10]
	Embedding   []float32
	Tokens      []string // stemmed/lowercased tokens, used when Embedding is absent
}

// MMRConfig tunes the diversity filter.
type MMRConfig struct {
	Lambda      float64 // default 0.7
	MaxPerTopic int     // default 2
}

// SelectDiverse runs the maximal-marginal-relevance filter over
// candidates (already ordered by rankScore desc) and returns the top
// n, preferring items that both score well and differ from what's
// already been picked, capped at cfg.MaxPerTopic items per topic.
func SelectDiverse(candidates []Candidate, n int, cfg MMRConfig) []Candidate {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	lambda := cfg.Lambda
	if lambda <= 0 {
		lambda = 0.7
	}
	maxPerTopic := cfg.MaxPerTopic
	if maxPerTopic <= 0 {
		maxPerTopic = 2
	}

	remaining := append([]Candidate(nil), candidates...)
	selected := make([]Candidate, 0, n)
	topicCounts := make(map[int64]int)

	for len(selected) < n && len(remaining) > 0 {
		bestIdx := -1
		bestScore := -1.0
		for i, cand := range remaining {
			if topicCounts[cand.TopicID] >= maxPerTopic {
				continue
			}
			maxSim := 0.0
			for _, s := range selected {
				sim := similarity(cand, s)
				if sim > maxSim {
					maxSim = sim
				}
			}
			mmrScore := lambda*cand.RankScore - (1-lambda)*maxSim
			if bestIdx == -1 || mmrScore > bestScore ||
				(mmrScore == bestScore && cand.PublishedAt.After(remaining[bestIdx].PublishedAt)) {
				bestIdx = i
				bestScore = mmrScore
			}
		}
		if bestIdx == -1 {
			// Every remaining candidate's topic is already at cap;
			// stop rather than breaking the per-topic limit to reach n.
			break
		}

		chosen := remaining[bestIdx]
		selected = append(selected, chosen)
		topicCounts[chosen.TopicID]++
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

// similarity uses embedding cosine when both items have one, else
// falls back to Jaccard overlap of their stemmed tokens.
func similarity(a, b Candidate) float64 {
	if len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		return cosineSimilarity(a.Embedding, b.Embedding)
	}
	return jaccardOverlap(a.Tokens, b.Tokens)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / math.Sqrt(normA*normB)
}

func jaccardOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[strings.ToLower(t)] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[strings.ToLower(t)] = struct{}{}
	}
	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

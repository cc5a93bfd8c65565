// Package clustering groups recently-embedded news into topics on a
// timer: a fast cosine single-pass against running-mean centroids by
// default, or a remote HDBSCAN/k-means delegate when the advanced
// flag is enabled, plus a near-duplicate overlay that links
// near-identical siblings under a shared groupId.
package clustering

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

// Algorithm names which assignment strategy a run used, persisted on
// each NewsTopic as ClusteringMethod.
const (
	AlgorithmCosine  = "COSINE"
	AlgorithmHDBSCAN = "HDBSCAN"
	AlgorithmKMeans  = "KMEANS"
)

// EmbeddingReader loads the embeddings a clustering pass considers.
type EmbeddingReader interface {
	ListRecentEmbeddings(ctx context.Context, since time.Time) ([]*domain.NewsEmbedding, error)
	GetByID(ctx context.Context, id int64) (*domain.News, error)
}

// CentroidStore persists running-mean topic centroids and mints new
// topic IDs, backed by internal/news/infrastructure/repository.TopicRepository.
type CentroidStore interface {
	ListCentroids(ctx context.Context) ([]domain.TopicCentroid, error)
	NextTopicID(ctx context.Context) (int64, error)
	UpsertCentroid(ctx context.Context, c domain.TopicCentroid) error
}

// TopicWriter persists the per-news topic assignment.
type TopicWriter interface {
	SaveTopic(ctx context.Context, t *domain.NewsTopic) error
}

// RemoteClusterer invokes the advanced-clustering endpoint when the
// feature flag is on, returning one label per input embedding in the
// same order they were submitted.
type RemoteClusterer interface {
	Cluster(ctx context.Context, algorithm string, vectors [][]float32) (labels []int, err error)
}

// Config tunes a clustering pass; field names mirror pkg/config.ClusteringConfig.
type Config struct {
	Algorithm           string // COSINE, HDBSCAN, or KMEANS
	CosineJoinThreshold float64
	NearDuplicateThresh float64
	Lookback            time.Duration
}

// Clusterer assigns each recently-embedded news item a topic, and
// overlays a groupId on near-duplicate siblings.
type Clusterer struct {
	embeddings EmbeddingReader
	centroids  CentroidStore
	topics     TopicWriter
	remote     RemoteClusterer
	log        *logger.Logger
}

// New builds a Clusterer. remote may be nil; it is only consulted
// when cfg.Algorithm requests HDBSCAN or KMEANS.
func New(embeddings EmbeddingReader, centroids CentroidStore, topics TopicWriter, remote RemoteClusterer, log *logger.Logger) *Clusterer {
	return &Clusterer{embeddings: embeddings, centroids: centroids, topics: topics, remote: remote, log: log}
}

// Result summarises one clustering pass.
type Result struct {
	ItemsConsidered int
	TopicsAssigned  int
	NewTopics       int
	GroupsFormed    int
	Errors          []string
}

// Run loads every embedding created since cfg.Lookback and assigns
// each one a topic, persisting the updated centroids and topic links.
func (c *Clusterer) Run(ctx context.Context, cfg Config) (*Result, error) {
	since := time.Now().UTC().Add(-cfg.Lookback)
	embeddings, err := c.embeddings.ListRecentEmbeddings(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("clustering: list recent embeddings: %w", err)
	}

	result := &Result{ItemsConsidered: len(embeddings)}
	if len(embeddings) == 0 {
		return result, nil
	}

	var assignments map[int64]int64 // newsId -> topicId
	var method string
	switch cfg.Algorithm {
	case AlgorithmHDBSCAN, AlgorithmKMeans:
		assignments, method, err = c.assignRemote(ctx, cfg, embeddings, result)
	default:
		assignments, method, err = c.assignCosine(ctx, cfg, embeddings, result)
	}
	if err != nil {
		return nil, err
	}

	groups := c.overlayNearDuplicates(embeddings, cfg.NearDuplicateThresh)
	distinctGroups := make(map[int64]struct{}, len(groups))
	for _, groupID := range groups {
		distinctGroups[groupID] = struct{}{}
	}
	result.GroupsFormed = len(distinctGroups)

	for _, e := range embeddings {
		topicID, ok := assignments[e.NewsID]
		if !ok {
			continue
		}
		topic := &domain.NewsTopic{
			NewsID:           e.NewsID,
			TopicID:          topicID,
			ClusteringMethod: method,
			SimilarityScore:  1.0,
		}
		if groupID, ok := groups[e.NewsID]; ok {
			gid := groupID
			topic.GroupID = &gid
		}
		if err := c.topics.SaveTopic(ctx, topic); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("news %d: %v", e.NewsID, err))
			continue
		}
		result.TopicsAssigned++
	}

	return result, nil
}

// assignCosine implements the default single-pass strategy: a news
// item joins the nearest existing centroid when cosine similarity
// clears cfg.CosineJoinThreshold, else it starts a new topic. Each
// assignment immediately folds the member into the running-mean
// centroid so later items in the same pass can join it too.
func (c *Clusterer) assignCosine(ctx context.Context, cfg Config, embeddings []*domain.NewsEmbedding, result *Result) (map[int64]int64, string, error) {
	existing, err := c.centroids.ListCentroids(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("clustering: list centroids: %w", err)
	}

	byTopic := make(map[int64]domain.TopicCentroid, len(existing))
	for _, tc := range existing {
		byTopic[tc.TopicID] = tc
	}

	assignments := make(map[int64]int64, len(embeddings))
	for _, e := range embeddings {
		bestTopic := int64(0)
		bestSim := -1.0
		for topicID, tc := range byTopic {
			sim := cosineSimilarity(e.Vector, tc.Centroid)
			if sim > bestSim {
				bestSim = sim
				bestTopic = topicID
			}
		}

		var target domain.TopicCentroid
		if bestSim >= cfg.CosineJoinThreshold {
			target = byTopic[bestTopic]
		} else {
			topicID, err := c.centroids.NextTopicID(ctx)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("mint topic id: %v", err))
				continue
			}
			target = domain.TopicCentroid{TopicID: topicID, Centroid: append([]float32(nil), e.Vector...), MemberCount: 0}
			result.NewTopics++
		}

		target.Centroid = runningMean(target.Centroid, target.MemberCount, e.Vector)
		target.MemberCount++
		target.UpdatedAt = time.Now().UTC()
		if err := c.centroids.UpsertCentroid(ctx, target); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("upsert centroid %d: %v", target.TopicID, err))
			continue
		}
		byTopic[target.TopicID] = target
		assignments[e.NewsID] = target.TopicID
	}

	return assignments, AlgorithmCosine, nil
}

// assignRemote delegates cluster labeling to the configured advanced
// endpoint and maps each returned label onto a stable topic ID,
// minting a fresh one for any label not already seen this pass.
func (c *Clusterer) assignRemote(ctx context.Context, cfg Config, embeddings []*domain.NewsEmbedding, result *Result) (map[int64]int64, string, error) {
	if c.remote == nil {
		return nil, "", fmt.Errorf("clustering: %s requested but no remote clusterer configured", cfg.Algorithm)
	}

	vectors := make([][]float32, len(embeddings))
	for i, e := range embeddings {
		vectors[i] = e.Vector
	}
	labels, err := c.remote.Cluster(ctx, cfg.Algorithm, vectors)
	if err != nil {
		return nil, "", fmt.Errorf("clustering: remote cluster call: %w", err)
	}
	if len(labels) != len(embeddings) {
		return nil, "", fmt.Errorf("clustering: remote clusterer returned %d labels for %d items", len(labels), len(embeddings))
	}

	labelToTopic := make(map[int]int64)
	assignments := make(map[int64]int64, len(embeddings))
	for i, e := range embeddings {
		label := labels[i]
		if label < 0 {
			// Noise point under HDBSCAN conventions: its own singleton topic.
			topicID, err := c.centroids.NextTopicID(ctx)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("mint topic id: %v", err))
				continue
			}
			assignments[e.NewsID] = topicID
			result.NewTopics++
			continue
		}
		topicID, ok := labelToTopic[label]
		if !ok {
			topicID, err = c.centroids.NextTopicID(ctx)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("mint topic id: %v", err))
				continue
			}
			labelToTopic[label] = topicID
			result.NewTopics++
		}
		assignments[e.NewsID] = topicID
	}

	var method string
	if cfg.Algorithm == AlgorithmHDBSCAN {
		method = AlgorithmHDBSCAN
	} else {
		method = AlgorithmKMeans
	}
	return assignments, method, nil
}

// overlayNearDuplicates links every pair of items whose cosine
// similarity clears thresh into a shared groupId, independent of
// which topic either one lands in.
func (c *Clusterer) overlayNearDuplicates(embeddings []*domain.NewsEmbedding, thresh float64) map[int64]int64 {
	groups := make(map[int64]int64)
	nextGroup := int64(1)

	for i := 0; i < len(embeddings); i++ {
		a := embeddings[i]
		for j := i + 1; j < len(embeddings); j++ {
			b := embeddings[j]
			if cosineSimilarity(a.Vector, b.Vector) < thresh {
				continue
			}
			groupID, aHas := groups[a.NewsID]
			groupID2, bHas := groups[b.NewsID]
			switch {
			case aHas && bHas:
				if groupID != groupID2 {
					mergeGroups(groups, groupID2, groupID)
				}
			case aHas:
				groups[b.NewsID] = groupID
			case bHas:
				groups[a.NewsID] = groupID2
			default:
				groups[a.NewsID] = nextGroup
				groups[b.NewsID] = nextGroup
				nextGroup++
			}
		}
	}
	return groups
}

func mergeGroups(groups map[int64]int64, from, to int64) {
	for id, g := range groups {
		if g == from {
			groups[id] = to
		}
	}
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
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
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// runningMean folds one new member into a centroid over n prior
// members: a topic centroid is the running mean of its members.
func runningMean(centroid []float32, n int, member []float32) []float32 {
	if n == 0 || len(centroid) != len(member) {
		return append([]float32(nil), member...)
	}
	out := make([]float32, len(centroid))
	for i := range centroid {
		out[i] = centroid[i] + (member[i]-centroid[i])/float32(n+1)
	}
	return out
}

// ExtractKeywords returns the top-n most frequent Korean/English word
// tokens (length >= 2) in texts. Run does not call it, so the
// NewsTopic rows Run writes have empty TopicKeywords.
func ExtractKeywords(texts []string, n int) []string {
	counts := make(map[string]int)
	for _, text := range texts {
		for _, tok := range strings.Fields(text) {
			tok = strings.ToLower(strings.Trim(tok, ".,!?\"'()[]{}:;“”‘’·"))
			if len([]rune(tok)) < 2 {
				continue
			}
			counts[tok]++
		}
	}
	keywords := make([]string, 0, len(counts))
	for k := range counts {
		keywords = append(keywords, k)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > n {
		keywords = keywords[:n]
	}
	return keywords
}

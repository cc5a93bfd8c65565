// Package ranksource adapts the news repository and the ranking
// package's MMR filter onto application.RankSource, so
// each bandit arm ranks the same candidate pool the main feed uses
// instead of a bandit-specific reimplementation.
package ranksource

import (
	"context"
	"sort"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/bandit/domain"
	newsdomain "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/ranking"
)

// NewsReader is the subset of the facade's news repository the four
// arms need to build Candidates.
type NewsReader interface {
	GetByID(ctx context.Context, id int64) (*newsdomain.News, error)
	ListTopicsByNewsIDs(ctx context.Context, newsIDs []int64) (map[int64]*newsdomain.NewsTopic, error)
	ListEmbeddingsByNewsIDs(ctx context.Context, newsIDs []int64) (map[int64][]float32, error)
}

// ScoreReader resolves the rankScore/importance/click-count a
// candidate currently carries.
type ScoreReader interface {
	GetScore(ctx context.Context, newsID int64) (*newsdomain.NewsScore, error)
	CountClicksSince(ctx context.Context, newsID int64, days int) (int64, error)
}

// Source implements application.RankSource.
type Source struct {
	news      NewsReader
	scores    ScoreReader
	mmrConfig ranking.MMRConfig
}

// New builds a Source.
func New(news NewsReader, scores ScoreReader, mmrConfig ranking.MMRConfig) *Source {
	if mmrConfig.Lambda <= 0 {
		mmrConfig.Lambda = 0.7
	}
	if mmrConfig.MaxPerTopic <= 0 {
		mmrConfig.MaxPerTopic = 2
	}
	return &Source{news: news, scores: scores, mmrConfig: mmrConfig}
}

func (s *Source) buildCandidates(ctx context.Context, ids []int64) ([]ranking.Candidate, error) {
	topics, err := s.news.ListTopicsByNewsIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	embeddings, err := s.news.ListEmbeddingsByNewsIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	candidates := make([]ranking.Candidate, 0, len(ids))
	for _, id := range ids {
		item, err := s.news.GetByID(ctx, id)
		if err != nil || item == nil {
			continue
		}
		var rankScore, importance float64
		if score, err := s.scores.GetScore(ctx, id); err == nil && score != nil {
			rankScore, importance = score.RankScore, score.Importance
		}
		var topicID int64
		var keywords []string
		if t := topics[id]; t != nil {
			topicID = t.TopicID
			keywords = t.TopicKeywords
		}
		candidates = append(candidates, ranking.Candidate{
			NewsID: id, TopicID: topicID, PublishedAt: item.PublishedAt,
			RankScore: rankScore, Importance: importance,
			Embedding: embeddings[id], Tokens: keywords,
		})
	}
	return candidates, nil
}

// ByPersonalizedScore orders by the candidate's stored rankScore
// desc. bctx is not consulted and no per-user personalization is
// applied, so every user gets the same order.
func (s *Source) ByPersonalizedScore(ctx context.Context, bctx domain.BanditContext, ids []int64) ([]int64, error) {
	candidates, err := s.buildCandidates(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].RankScore > candidates[j].RankScore })
	return idsOf(candidates), nil
}

// ByPopularity orders by click count over the trailing 7 days.
func (s *Source) ByPopularity(ctx context.Context, ids []int64) ([]int64, error) {
	type counted struct {
		id     int64
		clicks int64
	}
	counts := make([]counted, 0, len(ids))
	for _, id := range ids {
		n, _ := s.scores.CountClicksSince(ctx, id, 7)
		counts = append(counts, counted{id: id, clicks: n})
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].clicks > counts[j].clicks })
	out := make([]int64, len(counts))
	for i, c := range counts {
		out[i] = c.id
	}
	return out, nil
}

// ByDiversity runs the candidate pool through the MMR filter.
func (s *Source) ByDiversity(ctx context.Context, ids []int64) ([]int64, error) {
	candidates, err := s.buildCandidates(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].RankScore > candidates[j].RankScore })
	diverse := ranking.SelectDiverse(candidates, len(candidates), s.mmrConfig)
	return idsOf(diverse), nil
}

// ByRecency orders by publishedAt desc.
func (s *Source) ByRecency(ctx context.Context, ids []int64) ([]int64, error) {
	candidates, err := s.buildCandidates(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].PublishedAt.After(candidates[j].PublishedAt) })
	return idsOf(candidates), nil
}

func idsOf(candidates []ranking.Candidate) []int64 {
	out := make([]int64, len(candidates))
	for i, c := range candidates {
		out[i] = c.NewsID
	}
	return out
}

// Package facade composes the news pipeline's read path: candidate
// fetch, optional ticker filter, personalization, diversity
// filtering, and experiment bucketing, exposed as the single
// FeedQuery the HTTP layer calls.
package facade

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	newsapp "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/application"
	newsdomain "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	httptransport "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/transport/http"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/ranking"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"

	expapp "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/experiment/application"
)

// clickHistoryLookback bounds how far back clicked-news affinity and
// novelty terms look.
const clickHistoryLookback = 7 * 24 * time.Hour

// NewsReader is the facade's candidate-fetch surface.
type NewsReader interface {
	ListTopByRankScore(ctx context.Context, limit int, lang string) ([]*newsdomain.News, []*newsdomain.NewsScore, error)
	GetByID(ctx context.Context, id int64) (*newsdomain.News, error)
	ListTopicsByNewsIDs(ctx context.Context, newsIDs []int64) (map[int64]*newsdomain.NewsTopic, error)
	ListEmbeddingsByNewsIDs(ctx context.Context, newsIDs []int64) (map[int64][]float32, error)
}

// UserReader is the facade's personalization-input surface.
type UserReader interface {
	GetPreference(ctx context.Context, userID string) (*newsdomain.UserPreference, error)
	ListRecentClickedNewsIDs(ctx context.Context, anonID string, userID *string, since time.Time) ([]int64, error)
	RecordClick(ctx context.Context, click newsdomain.ClickLog) error
}

// Bucketer is the facade's experiment-assignment surface.
type Bucketer interface {
	Assign(ctx context.Context, anonID, experimentKey string) (expapp.Assignment, error)
}

// ImpressionRecorder is the facade's telemetry-emission surface.
type ImpressionRecorder interface {
	RecordImpression(ctx context.Context, impression newsdomain.ImpressionLog)
}

// Facade composes the ranked, personalized, diversified,
// experiment-tagged feed a request handler serves.
type Facade struct {
	news      NewsReader
	users     UserReader
	matcher   *newsapp.TickerMatcher
	bucketer  Bucketer
	telemetry ImpressionRecorder
	mmrConfig ranking.MMRConfig
	log       *logger.Logger
	now       func() time.Time
}

// New builds a Facade. telemetry may be nil to disable impression
// emission (e.g. in tests).
func New(news NewsReader, users UserReader, matcher *newsapp.TickerMatcher, bucketer Bucketer, telemetry ImpressionRecorder, mmrConfig ranking.MMRConfig, log *logger.Logger) *Facade {
	if mmrConfig.Lambda <= 0 {
		mmrConfig.Lambda = 0.7
	}
	if mmrConfig.MaxPerTopic <= 0 {
		mmrConfig.MaxPerTopic = 2
	}
	return &Facade{news: news, users: users, matcher: matcher, bucketer: bucketer, telemetry: telemetry, mmrConfig: mmrConfig, log: log, now: time.Now}
}

// Query fetches top-K candidates by rankScore and freshness, applies
// an optional ticker filter, the personaliser if requested, the
// diversity filter, experiment bucketing, truncates to n, and emits
// impressions.
func (f *Facade) Query(ctx context.Context, req httptransport.FeedRequest) (*httptransport.FeedResponse, error) {
	now := f.now()
	n := req.N
	if n <= 0 {
		n = 20
	}
	if n > 100 {
		n = 100
	}
	k := 5 * n
	if k < 100 {
		k = 100
	}

	newsList, scores, err := f.news.ListTopByRankScore(ctx, k, req.Lang)
	if err != nil {
		return nil, fmt.Errorf("facade: list top news: %w", err)
	}
	scoreByID := make(map[int64]*newsdomain.NewsScore, len(scores))
	for _, s := range scores {
		scoreByID[s.NewsID] = s
	}

	candidates := newsList
	if len(req.Tickers) > 0 {
		wanted := make(map[string]struct{}, len(req.Tickers))
		for _, t := range req.Tickers {
			wanted[t] = struct{}{}
		}
		filtered := make([]*newsdomain.News, 0, len(newsList))
		for _, item := range newsList {
			for _, hit := range f.matcher.FindTickers(item.Title + " " + item.Body) {
				if _, ok := wanted[hit]; ok {
					filtered = append(filtered, item)
					break
				}
			}
		}
		candidates = filtered
	}

	ids := make([]int64, len(candidates))
	itemByID := make(map[int64]*newsdomain.News, len(candidates))
	for i, item := range candidates {
		ids[i] = item.ID
		itemByID[item.ID] = item
	}

	topics, err := f.news.ListTopicsByNewsIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("facade: list topics: %w", err)
	}
	embeddings, err := f.news.ListEmbeddingsByNewsIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("facade: list embeddings: %w", err)
	}

	personalize := req.Personalized && req.UserID != ""
	var pref newsdomain.UserPreference
	var history ranking.ClickHistory
	if personalize {
		if p, err := f.users.GetPreference(ctx, req.UserID); err == nil && p != nil {
			pref = *p
		}
		history = f.buildClickHistory(ctx, req.AnonID, req.UserID, now)
	}

	rankCandidates := make([]ranking.Candidate, 0, len(candidates))
	for _, item := range candidates {
		score := scoreByID[item.ID]
		rankScore, importance := 0.0, 0.0
		if score != nil {
			rankScore, importance = score.RankScore, score.Importance
		}
		var topicID int64
		var keywords []string
		if t := topics[item.ID]; t != nil {
			topicID = t.TopicID
			keywords = t.TopicKeywords
		}
		embedding := embeddings[item.ID]

		if personalize {
			tickers := f.matcher.FindTickers(item.Title + " " + item.Body)
			rankScore = ranking.Personalize(ranking.PersonalizeInput{
				Candidate: ranking.Candidate{
					NewsID: item.ID, TopicID: topicID, PublishedAt: item.PublishedAt,
					RankScore: rankScore, Importance: importance, Embedding: embedding, Tokens: keywords,
				},
				AgeHours:   ranking.AgeHours(item.PublishedAt),
				Tickers:    tickers,
				Keywords:   keywords,
				Preference: pref,
				History:    history,
			})
		}

		rankCandidates = append(rankCandidates, ranking.Candidate{
			NewsID: item.ID, TopicID: topicID, PublishedAt: item.PublishedAt,
			RankScore: rankScore, Importance: importance, Embedding: embedding, Tokens: keywords,
		})
	}

	sort.SliceStable(rankCandidates, func(i, j int) bool {
		if rankCandidates[i].RankScore != rankCandidates[j].RankScore {
			return rankCandidates[i].RankScore > rankCandidates[j].RankScore
		}
		return rankCandidates[i].PublishedAt.After(rankCandidates[j].PublishedAt)
	})

	ordered := rankCandidates
	if req.Diversity {
		pool := 3 * n
		if pool > len(rankCandidates) {
			pool = len(rankCandidates)
		}
		ordered = ranking.SelectDiverse(rankCandidates, pool, f.mmrConfig)
	}
	if len(ordered) > n {
		ordered = ordered[:n]
	}

	assignment, err := f.bucketer.Assign(ctx, req.AnonID, req.ExperimentKey)
	if err != nil {
		return nil, fmt.Errorf("facade: bucket assignment: %w", err)
	}

	var userIDPtr *string
	if req.UserID != "" {
		userIDPtr = &req.UserID
	}
	var experimentKeyPtr, variantPtr *string
	if assignment.Logged {
		experimentKeyPtr = &assignment.ExperimentKey
		variantPtr = &assignment.Variant
	}

	items := make([]httptransport.FeedItemView, 0, len(ordered))
	for pos, c := range ordered {
		item := itemByID[c.NewsID]
		if item == nil {
			continue
		}
		score := scoreByID[c.NewsID]
		var summary string
		if score != nil && score.Summary != nil {
			summary = *score.Summary
		}
		items = append(items, httptransport.FeedItemView{
			NewsID: c.NewsID, Title: item.Title, URL: item.URL, Source: item.Source,
			Importance: c.Importance, RankScore: c.RankScore, Summary: summary,
		})

		if f.telemetry != nil {
			f.telemetry.RecordImpression(ctx, newsdomain.ImpressionLog{
				AnonID: req.AnonID, UserID: userIDPtr, NewsID: c.NewsID, ShownAt: now,
				ExperimentKey: experimentKeyPtr, Variant: variantPtr, DatePartition: expapp.DatePartition(now),
				Position: pos + 1, Importance: c.Importance, RankScore: c.RankScore,
				Personalized: personalize, DiversityApplied: req.Diversity,
			})
		}
	}

	resp := &httptransport.FeedResponse{Items: items}
	if assignment.Logged {
		resp.ExperimentKey = assignment.ExperimentKey
		resp.Variant = assignment.Variant
	}
	return resp, nil
}

// RecordClick implements httptransport.ClickRecorder.
func (f *Facade) RecordClick(ctx context.Context, newsID int64, req httptransport.ClickRequest) error {
	now := f.now()
	var userIDPtr *string
	if req.UserID != "" {
		userIDPtr = &req.UserID
	}
	return f.users.RecordClick(ctx, newsdomain.ClickLog{
		AnonID: req.AnonID, UserID: userIDPtr, NewsID: newsID, ClickedAt: now,
		DwellTimeMs: req.DwellTimeMs, DatePartition: expapp.DatePartition(now),
	})
}

// buildClickHistory loads the anon/user's recently-clicked news ids
// and resolves the ticker/keyword/embedding signals the personaliser
// needs from them.
func (f *Facade) buildClickHistory(ctx context.Context, anonID, userID string, now time.Time) ranking.ClickHistory {
	var userIDPtr *string
	if userID != "" {
		userIDPtr = &userID
	}
	ids, err := f.users.ListRecentClickedNewsIDs(ctx, anonID, userIDPtr, now.Add(-clickHistoryLookback))
	if err != nil || len(ids) == 0 {
		return ranking.ClickHistory{}
	}

	embeddings, _ := f.news.ListEmbeddingsByNewsIDs(ctx, ids)
	topics, _ := f.news.ListTopicsByNewsIDs(ctx, ids)

	history := ranking.ClickHistory{
		ClickedNewsIDs:    ids,
		ClickedTickers:    map[string]struct{}{},
		ClickedKeywords:   map[string]struct{}{},
		ClickedEmbeddings: make([][]float32, 0, len(ids)),
	}
	for _, id := range ids {
		item, err := f.news.GetByID(ctx, id)
		if err != nil || item == nil {
			continue
		}
		for _, ticker := range f.matcher.FindTickers(item.Title + " " + item.Body) {
			history.ClickedTickers[strings.ToLower(ticker)] = struct{}{}
		}
		if t := topics[id]; t != nil {
			for _, kw := range t.TopicKeywords {
				history.ClickedKeywords[strings.ToLower(kw)] = struct{}{}
			}
		}
		if vec := embeddings[id]; len(vec) > 0 {
			history.ClickedEmbeddings = append(history.ClickedEmbeddings, vec)
		}
	}
	return history
}

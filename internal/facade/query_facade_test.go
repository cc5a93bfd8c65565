package facade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	newsapp "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/application"
	newsdomain "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	httptransport "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/transport/http"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/ranking"
	expapp "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/experiment/application"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

type fakeNewsReader struct {
	news       []*newsdomain.News
	scores     []*newsdomain.NewsScore
	topics     map[int64]*newsdomain.NewsTopic
	embeddings map[int64][]float32
}

func (f *fakeNewsReader) ListTopByRankScore(ctx context.Context, limit int, lang string) ([]*newsdomain.News, []*newsdomain.NewsScore, error) {
	return f.news, f.scores, nil
}
func (f *fakeNewsReader) GetByID(ctx context.Context, id int64) (*newsdomain.News, error) {
	for _, n := range f.news {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, nil
}
func (f *fakeNewsReader) ListTopicsByNewsIDs(ctx context.Context, newsIDs []int64) (map[int64]*newsdomain.NewsTopic, error) {
	out := make(map[int64]*newsdomain.NewsTopic)
	for _, id := range newsIDs {
		if t, ok := f.topics[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}
func (f *fakeNewsReader) ListEmbeddingsByNewsIDs(ctx context.Context, newsIDs []int64) (map[int64][]float32, error) {
	out := make(map[int64][]float32)
	for _, id := range newsIDs {
		if v, ok := f.embeddings[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

type fakeUserReader struct {
	pref      *newsdomain.UserPreference
	clickedID []int64
	clicks    []newsdomain.ClickLog
}

func (f *fakeUserReader) GetPreference(ctx context.Context, userID string) (*newsdomain.UserPreference, error) {
	return f.pref, nil
}
func (f *fakeUserReader) ListRecentClickedNewsIDs(ctx context.Context, anonID string, userID *string, since time.Time) ([]int64, error) {
	return f.clickedID, nil
}
func (f *fakeUserReader) RecordClick(ctx context.Context, click newsdomain.ClickLog) error {
	f.clicks = append(f.clicks, click)
	return nil
}

type fakeBucketer struct {
	assignment expapp.Assignment
}

func (f *fakeBucketer) Assign(ctx context.Context, anonID, experimentKey string) (expapp.Assignment, error) {
	return f.assignment, nil
}

type fakeImpressionRecorder struct {
	impressions []newsdomain.ImpressionLog
}

func (f *fakeImpressionRecorder) RecordImpression(ctx context.Context, impression newsdomain.ImpressionLog) {
	f.impressions = append(f.impressions, impression)
}

func newTestNews(id int64, title string, rankScore float64, publishedAgo time.Duration) (*newsdomain.News, *newsdomain.NewsScore) {
	n := &newsdomain.News{ID: id, Title: title, Body: title, URL: "https://example.com/" + title, Source: "src", PublishedAt: time.Now().Add(-publishedAgo)}
	s := &newsdomain.NewsScore{NewsID: id, RankScore: rankScore, Importance: rankScore * 10}
	return n, s
}

func TestFacade_QueryReturnsItemsOrderedByRankScore(t *testing.T) {
	n1, s1 := newTestNews(1, "low", 0.3, time.Hour)
	n2, s2 := newTestNews(2, "high", 0.9, time.Hour)
	news := &fakeNewsReader{
		news:   []*newsdomain.News{n1, n2},
		scores: []*newsdomain.NewsScore{s1, s2},
		topics: map[int64]*newsdomain.NewsTopic{},
	}
	bucketer := &fakeBucketer{assignment: expapp.Assignment{Logged: false}}
	f := New(news, &fakeUserReader{}, newsapp.NewTickerMatcher(nil), bucketer, nil, ranking.MMRConfig{}, logger.New("test"))

	resp, err := f.Query(context.Background(), httptransport.FeedRequest{AnonID: "anon-1", N: 2, Lang: "ko"})
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, int64(2), resp.Items[0].NewsID)
	assert.Equal(t, int64(1), resp.Items[1].NewsID)
}

func TestFacade_QueryFiltersByRequestedTickers(t *testing.T) {
	n1, s1 := newTestNews(1, "삼성전자 실적 발표", 0.5, time.Hour)
	n2, s2 := newTestNews(2, "날씨 뉴스", 0.8, time.Hour)
	news := &fakeNewsReader{
		news:   []*newsdomain.News{n1, n2},
		scores: []*newsdomain.NewsScore{s1, s2},
		topics: map[int64]*newsdomain.NewsTopic{},
	}
	bucketer := &fakeBucketer{assignment: expapp.Assignment{Logged: false}}
	f := New(news, &fakeUserReader{}, newsapp.NewTickerMatcher(nil), bucketer, nil, ranking.MMRConfig{}, logger.New("test"))

	resp, err := f.Query(context.Background(), httptransport.FeedRequest{AnonID: "anon-1", N: 5, Lang: "ko", Tickers: []string{"005930"}})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(1), resp.Items[0].NewsID)
}

func TestFacade_QueryTagsExperimentWhenBucketerLogs(t *testing.T) {
	n1, s1 := newTestNews(1, "only", 0.5, time.Hour)
	news := &fakeNewsReader{news: []*newsdomain.News{n1}, scores: []*newsdomain.NewsScore{s1}, topics: map[int64]*newsdomain.NewsTopic{}}
	bucketer := &fakeBucketer{assignment: expapp.Assignment{ExperimentKey: "exp-1", Variant: "treatment", Logged: true}}
	recorder := &fakeImpressionRecorder{}
	f := New(news, &fakeUserReader{}, newsapp.NewTickerMatcher(nil), bucketer, recorder, ranking.MMRConfig{}, logger.New("test"))

	resp, err := f.Query(context.Background(), httptransport.FeedRequest{AnonID: "anon-1", N: 5})
	require.NoError(t, err)
	assert.Equal(t, "exp-1", resp.ExperimentKey)
	assert.Equal(t, "treatment", resp.Variant)
	require.Len(t, recorder.impressions, 1)
	assert.Equal(t, "exp-1", *recorder.impressions[0].ExperimentKey)
}

func TestFacade_QueryPersonalizesWhenRequested(t *testing.T) {
	n1, s1 := newTestNews(1, "삼성전자 실적", 0.4, 30*time.Hour)
	n2, s2 := newTestNews(2, "일반 뉴스", 0.5, 30*time.Hour)
	news := &fakeNewsReader{news: []*newsdomain.News{n1, n2}, scores: []*newsdomain.NewsScore{s1, s2}, topics: map[int64]*newsdomain.NewsTopic{}}
	pref := &newsdomain.UserPreference{UserID: "user-1", InterestTickers: []string{"005930"}, PersonalizationEnabled: true}
	users := &fakeUserReader{pref: pref}
	bucketer := &fakeBucketer{assignment: expapp.Assignment{Logged: false}}
	f := New(news, users, newsapp.NewTickerMatcher(nil), bucketer, nil, ranking.MMRConfig{}, logger.New("test"))

	resp, err := f.Query(context.Background(), httptransport.FeedRequest{AnonID: "anon-1", UserID: "user-1", N: 2, Personalized: true})
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, int64(1), resp.Items[0].NewsID)
}

func TestFacade_RecordClickPersistsClickLog(t *testing.T) {
	users := &fakeUserReader{}
	f := New(&fakeNewsReader{}, users, newsapp.NewTickerMatcher(nil), &fakeBucketer{}, nil, ranking.MMRConfig{}, logger.New("test"))

	err := f.RecordClick(context.Background(), 42, httptransport.ClickRequest{AnonID: "anon-1"})
	require.NoError(t, err)
	require.Len(t, users.clicks, 1)
	assert.Equal(t, int64(42), users.clicks[0].NewsID)
}

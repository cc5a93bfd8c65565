package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

type fakeFeedQuery struct {
	resp *FeedResponse
	err  error
	last FeedRequest
}

func (f *fakeFeedQuery) Query(ctx context.Context, req FeedRequest) (*FeedResponse, error) {
	f.last = req
	return f.resp, f.err
}

type fakeClickRecorder struct {
	called bool
	newsID int64
	req    ClickRequest
}

func (f *fakeClickRecorder) RecordClick(ctx context.Context, newsID int64, req ClickRequest) error {
	f.called = true
	f.newsID = newsID
	f.req = req
	return nil
}

type fakeNewsReader struct {
	news  map[int64]*domain.News
	score map[int64]*domain.NewsScore
}

func (r *fakeNewsReader) GetByID(ctx context.Context, id int64) (*domain.News, error) {
	if r.news == nil {
		return nil, nil
	}
	return r.news[id], nil
}

func (r *fakeNewsReader) GetScore(ctx context.Context, newsID int64) (*domain.NewsScore, error) {
	if r.score == nil {
		return nil, nil
	}
	return r.score[newsID], nil
}

func setupTestRouter(feedQuery FeedQuery, clicks ClickRecorder) *gin.Engine {
	return setupTestRouterWithNews(feedQuery, clicks, &fakeNewsReader{})
}

func setupTestRouterWithNews(feedQuery FeedQuery, clicks ClickRecorder, news NewsReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewHandler(nil, feedQuery, clicks, news, logger.New("test"))
	handler.RegisterRoutes(router)
	return router
}

func TestHandleGetFeed_ReturnsFeedResponse(t *testing.T) {
	feedQuery := &fakeFeedQuery{resp: &FeedResponse{Items: []FeedItemView{{NewsID: 1, Title: "t"}}}}
	router := setupTestRouter(feedQuery, nil)

	req := httptest.NewRequest(http.MethodGet, "/news/top?anonId=anon-1&n=10&diversity=true", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anon-1", feedQuery.last.AnonID)
	assert.Equal(t, 10, feedQuery.last.N)
	assert.True(t, feedQuery.last.Diversity)

	var resp FeedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
}

func TestHandleGetFeed_RequiresAnonID(t *testing.T) {
	router := setupTestRouter(&fakeFeedQuery{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/news/top", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetFeed_UnavailableWithoutFacade(t *testing.T) {
	router := setupTestRouter(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/news/top?anonId=anon-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleClick_RecordsClick(t *testing.T) {
	clicks := &fakeClickRecorder{}
	router := setupTestRouter(&fakeFeedQuery{}, clicks)

	body, _ := json.Marshal(ClickRequest{AnonID: "anon-1"})
	req := httptest.NewRequest(http.MethodPost, "/news/42/click", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, clicks.called)
	assert.Equal(t, int64(42), clicks.newsID)
	assert.Equal(t, "anon-1", clicks.req.AnonID)
}

func TestHandleGetNews_ReturnsDetailWithScore(t *testing.T) {
	summary := "요약"
	news := &fakeNewsReader{
		news:  map[int64]*domain.News{1: {ID: 1, Title: "t", URL: "http://x", Source: "s", Body: "b", Lang: "ko", PublishedAt: time.Now()}},
		score: map[int64]*domain.NewsScore{1: {NewsID: 1, Importance: 7.0, RankScore: 0.9, Summary: &summary}},
	}
	router := setupTestRouterWithNews(&fakeFeedQuery{}, nil, news)

	req := httptest.NewRequest(http.MethodGet, "/news/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var detail NewsDetailView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, int64(1), detail.NewsID)
	assert.Equal(t, 0.9, detail.RankScore)
	assert.Equal(t, "요약", detail.Summary)
}

func TestHandleGetNews_NotFound(t *testing.T) {
	router := setupTestRouterWithNews(&fakeFeedQuery{}, nil, &fakeNewsReader{})

	req := httptest.NewRequest(http.MethodGet, "/news/99", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

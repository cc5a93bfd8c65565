// Package http exposes the news pipeline's admin and query surface
// over gin: on-demand ingestion, health, and the ranked-feed query
// the facade composes.
package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/application"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

// FeedQuery is the facade's ranked-feed read surface.
type FeedQuery interface {
	Query(ctx context.Context, req FeedRequest) (*FeedResponse, error)
}

// FeedRequest mirrors the facade's GET /news/top query parameters.
type FeedRequest struct {
	AnonID        string
	UserID        string
	N             int
	Lang          string
	Tickers       []string
	Personalized  bool
	Diversity     bool
	ExperimentKey string
}

// ClickRequest is the body of POST /news/{id}/click.
type ClickRequest struct {
	UserID      string `json:"userId"`
	AnonID      string `json:"anonId" binding:"required"`
	DwellTimeMs *int64 `json:"dwellTimeMs"`
}

// ClickRecorder is the facade's click-logging surface.
type ClickRecorder interface {
	RecordClick(ctx context.Context, newsID int64, req ClickRequest) error
}

// NewsReader resolves a single item's body and current score for
// GET /news/{id}.
type NewsReader interface {
	GetByID(ctx context.Context, id int64) (*domain.News, error)
	GetScore(ctx context.Context, newsID int64) (*domain.NewsScore, error)
}

// NewsDetailView is the JSON body returned by GET /news/{id}.
type NewsDetailView struct {
	NewsID      int64     `json:"newsId"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Body        string    `json:"body"`
	Lang        string    `json:"lang"`
	PublishedAt time.Time `json:"publishedAt"`
	Importance  float64   `json:"importance,omitempty"`
	RankScore   float64   `json:"rankScore,omitempty"`
	Summary     string    `json:"summary,omitempty"`
}

// FeedResponse is returned verbatim as the handler's JSON body.
type FeedResponse struct {
	Items         []FeedItemView `json:"items"`
	ExperimentKey string         `json:"experimentKey,omitempty"`
	Variant       string         `json:"variant,omitempty"`
}

// FeedItemView is one ranked item as rendered to the client.
type FeedItemView struct {
	NewsID     int64   `json:"newsId"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Source     string  `json:"source"`
	Importance float64 `json:"importance"`
	RankScore  float64 `json:"rankScore"`
	Summary    string  `json:"summary,omitempty"`
}

// Handler serves the news pipeline's HTTP API.
type Handler struct {
	ingestor  *application.Ingestor
	feedQuery FeedQuery
	clicks    ClickRecorder
	news      NewsReader
	log       *logger.Logger
}

// NewHandler builds a Handler. feedQuery/clicks/news may be nil until
// the facade and repository are wired (the ingest/health endpoints
// work standalone for earlier rollout stages).
func NewHandler(ingestor *application.Ingestor, feedQuery FeedQuery, clicks ClickRecorder, news NewsReader, log *logger.Logger) *Handler {
	return &Handler{ingestor: ingestor, feedQuery: feedQuery, clicks: clicks, news: news, log: log}
}

// RegisterRoutes wires the handler's routes onto a gin engine/group.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.handleHealth)
	r.POST("/admin/ingest", h.handleTriggerIngest)
	r.GET("/news/top", h.handleGetFeed)
	r.GET("/news/:id", h.handleGetNews)
	r.POST("/news/:id/click", h.handleClick)
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "stocks-news-agent"})
}

// handleTriggerIngest runs one synchronous RSS collection pass,
// intended for operator-triggered backfills outside the cron schedule.
func (h *Handler) handleTriggerIngest(c *gin.Context) {
	result, err := h.ingestor.Run(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("manual ingest trigger failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleGetFeed serves the personalized, diversified, bucketed feed.
func (h *Handler) handleGetFeed(c *gin.Context) {
	if h.feedQuery == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feed query not yet available"})
		return
	}

	n := 20
	if raw := c.Query("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			n = parsed
		}
	}

	req := FeedRequest{
		AnonID:        c.Query("anonId"),
		UserID:        c.Query("userId"),
		N:             n,
		Lang:          c.DefaultQuery("lang", "ko"),
		Tickers:       c.QueryArray("tickers"),
		Personalized:  c.Query("personalized") == "true",
		Diversity:     c.Query("diversity") == "true",
		ExperimentKey: c.Query("experimentKey"),
	}
	if req.AnonID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "anonId is required"})
		return
	}

	resp, err := h.feedQuery.Query(c.Request.Context(), req)
	if err != nil {
		h.log.WithError(err).Error("feed query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "feed query failed"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetNews serves a single item's body and current score.
func (h *Handler) handleGetNews(c *gin.Context) {
	if h.news == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "news lookup not yet available"})
		return
	}

	newsID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid news id"})
		return
	}

	item, err := h.news.GetByID(c.Request.Context(), newsID)
	if err != nil {
		h.log.WithError(err).Error("news lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "news lookup failed"})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "news not found"})
		return
	}

	view := NewsDetailView{
		NewsID: item.ID, Title: item.Title, URL: item.URL, Source: item.Source,
		Body: item.Body, Lang: item.Lang, PublishedAt: item.PublishedAt,
	}
	if score, err := h.news.GetScore(c.Request.Context(), newsID); err == nil && score != nil {
		view.Importance = score.Importance
		view.RankScore = score.RankScore
		if score.Summary != nil {
			view.Summary = *score.Summary
		}
	}
	c.JSON(http.StatusOK, view)
}

// handleClick logs a single click against a previously-served item.
func (h *Handler) handleClick(c *gin.Context) {
	if h.clicks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "click recording not yet available"})
		return
	}

	newsID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid news id"})
		return
	}

	var req ClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid click body"})
		return
	}

	if err := h.clicks.RecordClick(c.Request.Context(), newsID, req); err != nil {
		h.log.WithError(err).Error("record click failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record click failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

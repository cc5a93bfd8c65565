// Package http exposes the multi-armed bandit's recommend/reward
// round-trip over gin: selecting an arm for a context, recording
// click/dwell/engagement feedback against a prior decision, and a
// per-arm performance report.
package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/bandit/application"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/bandit/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

// Selector is the bandit core's recommend/reward surface, implemented
// by application.Core.
type Selector interface {
	Select(ctx context.Context, experimentKey string, bctx domain.BanditContext, candidateNewsIDs []int64) (*application.SelectResult, error)
	Reward(ctx context.Context, decisionID int64, rewardType domain.RewardType, rawValue float64) error
}

// PerformanceReader reports running per-arm statistics for one
// experiment, implemented by application.PerformanceReport.
type PerformanceReader interface {
	ArmPerformance(ctx context.Context, experimentKey string) ([]application.ArmPerformance, error)
}

// Handler serves the bandit recommend/reward HTTP surface.
type Handler struct {
	selector    Selector
	performance PerformanceReader
	log         *logger.Logger
}

// NewHandler builds a Handler.
func NewHandler(selector Selector, performance PerformanceReader, log *logger.Logger) *Handler {
	return &Handler{selector: selector, performance: performance, log: log}
}

// RegisterRoutes wires the bandit endpoints onto router.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/bandit/recommendations", h.handleRecommendations)
	router.POST("/bandit/reward", h.handleReward)
	router.POST("/bandit/click", h.handleClick)
	router.POST("/bandit/engagement", h.handleEngagement)
	router.GET("/bandit/performance", h.handlePerformance)
}

type recommendationsRequest struct {
	ExperimentKey string  `form:"experimentKey" binding:"required"`
	UserID        *string `form:"userId"`
	ContextType   string  `form:"contextType"`
	ContextValue  string  `form:"contextValue"`
	CandidateIDs  []int64 `form:"candidateIds" binding:"required"`
}

func (h *Handler) handleRecommendations(c *gin.Context) {
	var req recommendationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bctx := domain.BanditContext{UserID: req.UserID, ContextType: req.ContextType, ContextValue: req.ContextValue}
	result, err := h.selector.Select(c.Request.Context(), req.ExperimentKey, bctx, req.CandidateIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisionId": result.DecisionID, "arm": result.Arm, "newsIds": result.NewsIDs})
}

type rewardRequest struct {
	DecisionID int64   `json:"decisionId" binding:"required"`
	RawValue   float64 `json:"value"`
}

func (h *Handler) handleReward(c *gin.Context) {
	h.recordReward(c, domain.RewardEngagement)
}

func (h *Handler) handleClick(c *gin.Context) {
	h.recordReward(c, domain.RewardClick)
}

func (h *Handler) handleEngagement(c *gin.Context) {
	h.recordReward(c, domain.RewardDwellTime)
}

func (h *Handler) recordReward(c *gin.Context, rewardType domain.RewardType) {
	var req rewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.selector.Reward(c.Request.Context(), req.DecisionID, rewardType, req.RawValue); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func (h *Handler) handlePerformance(c *gin.Context) {
	experimentKey := c.Query("experimentKey")
	if experimentKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "experimentKey is required"})
		return
	}
	arms, err := h.performance.ArmPerformance(c.Request.Context(), experimentKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"experimentKey": experimentKey, "arms": arms})
}

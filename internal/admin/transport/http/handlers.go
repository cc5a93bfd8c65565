// Package http exposes the operator-facing admin surface over gin:
// reading/writing a user's ranking preferences and triggering topic
// clustering passes outside their cron schedule.
package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/clustering"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

// PreferenceStore is the user repository's preference read/write
// surface.
type PreferenceStore interface {
	GetPreference(ctx context.Context, userID string) (*domain.UserPreference, error)
	SavePreference(ctx context.Context, p domain.UserPreference) error
}

// ClusterRunner runs one topic-clustering pass, implemented by
// clustering.Clusterer.
type ClusterRunner interface {
	Run(ctx context.Context, cfg clustering.Config) (*clustering.Result, error)
}

// Handler serves the admin preference/clustering endpoints.
type Handler struct {
	prefs      PreferenceStore
	clusterer  ClusterRunner
	defaultCfg clustering.Config
	log        *logger.Logger
}

// NewHandler builds a Handler. defaultCfg supplies the
// threshold/lookback every trigger endpoint starts from; each
// endpoint overrides only the algorithm.
func NewHandler(prefs PreferenceStore, clusterer ClusterRunner, defaultCfg clustering.Config, log *logger.Logger) *Handler {
	return &Handler{prefs: prefs, clusterer: clusterer, defaultCfg: defaultCfg, log: log}
}

// RegisterRoutes wires the handler's routes onto a gin engine/group.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/users/:userId/preferences", h.handleGetPreferences)
	r.PUT("/users/:userId/preferences", h.handlePutPreferences)
	r.POST("/admin/clustering", h.handleCluster(h.defaultCfg.Algorithm))
	r.POST("/admin/clustering/hdbscan", h.handleCluster("HDBSCAN"))
	r.POST("/admin/clustering/kmeans", h.handleCluster("KMEANS"))
	r.POST("/admin/clustering/optimize", h.handleOptimize)
}

func (h *Handler) handleGetPreferences(c *gin.Context) {
	userID := c.Param("userId")
	pref, err := h.prefs.GetPreference(c.Request.Context(), userID)
	if err != nil {
		h.log.WithError(err).Error("get preference failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get preference failed"})
		return
	}
	if pref == nil {
		c.JSON(http.StatusOK, domain.UserPreference{UserID: userID, PersonalizationEnabled: true, DiversityWeight: 0.3, IsActive: true})
		return
	}
	c.JSON(http.StatusOK, pref)
}

type preferenceRequest struct {
	InterestTickers        []string `json:"interestTickers"`
	InterestKeywords       []string `json:"interestKeywords"`
	PersonalizationEnabled bool     `json:"personalizationEnabled"`
	DiversityWeight        float64  `json:"diversityWeight"`
}

func (h *Handler) handlePutPreferences(c *gin.Context) {
	userID := c.Param("userId")
	var req preferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pref := domain.UserPreference{
		UserID:                 userID,
		InterestTickers:        req.InterestTickers,
		InterestKeywords:       req.InterestKeywords,
		PersonalizationEnabled: req.PersonalizationEnabled,
		DiversityWeight:        req.DiversityWeight,
		IsActive:               true,
	}
	if err := h.prefs.SavePreference(c.Request.Context(), pref); err != nil {
		h.log.WithError(err).Error("save preference failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save preference failed"})
		return
	}
	c.JSON(http.StatusOK, pref)
}

// handleCluster returns a handler that runs one clustering pass with
// algorithm substituted for the configured default.
func (h *Handler) handleCluster(algorithm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := h.defaultCfg
		cfg.Algorithm = algorithm
		result, err := h.clusterer.Run(c.Request.Context(), cfg)
		if err != nil {
			h.log.WithError(err).Error("clustering pass failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "clustering pass failed"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleOptimize sweeps a small grid of cosine-join thresholds and
// keeps the pass with the highest TopicsAssigned; near-duplicate
// groups play no part in the choice.
func (h *Handler) handleOptimize(c *gin.Context) {
	candidates := []float64{0.82, 0.86, 0.90, 0.94}
	var best *clustering.Result
	var bestThreshold float64

	for _, threshold := range candidates {
		cfg := h.defaultCfg
		cfg.Algorithm = "COSINE"
		cfg.CosineJoinThreshold = threshold
		result, err := h.clusterer.Run(c.Request.Context(), cfg)
		if err != nil {
			h.log.WithError(err).Error("optimize clustering pass failed")
			continue
		}
		if best == nil || result.TopicsAssigned > best.TopicsAssigned {
			best, bestThreshold = result, threshold
		}
	}

	if best == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "every optimize candidate failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chosenThreshold": bestThreshold, "result": best})
}

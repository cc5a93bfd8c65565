package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/clustering"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

type fakePreferenceStore struct {
	prefs map[string]domain.UserPreference
}

func (s *fakePreferenceStore) GetPreference(ctx context.Context, userID string) (*domain.UserPreference, error) {
	p, ok := s.prefs[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *fakePreferenceStore) SavePreference(ctx context.Context, p domain.UserPreference) error {
	if s.prefs == nil {
		s.prefs = map[string]domain.UserPreference{}
	}
	s.prefs[p.UserID] = p
	return nil
}

type fakeClusterRunner struct {
	byThreshold map[float64]int
	lastCfg     clustering.Config
}

func (r *fakeClusterRunner) Run(ctx context.Context, cfg clustering.Config) (*clustering.Result, error) {
	r.lastCfg = cfg
	return &clustering.Result{TopicsAssigned: r.byThreshold[cfg.CosineJoinThreshold]}, nil
}

func setupAdminRouter(prefs PreferenceStore, clusterer ClusterRunner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewHandler(prefs, clusterer, clustering.Config{Algorithm: "COSINE", CosineJoinThreshold: 0.9}, logger.New("test"))
	handler.RegisterRoutes(router)
	return router
}

func TestHandleGetPreferences_DefaultsWhenAbsent(t *testing.T) {
	router := setupAdminRouter(&fakePreferenceStore{}, &fakeClusterRunner{})

	req := httptest.NewRequest(http.MethodGet, "/users/u1/preferences", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var pref domain.UserPreference
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pref))
	assert.Equal(t, "u1", pref.UserID)
	assert.True(t, pref.PersonalizationEnabled)
	assert.Equal(t, 0.3, pref.DiversityWeight)
}

func TestHandlePutPreferences_Saves(t *testing.T) {
	store := &fakePreferenceStore{}
	router := setupAdminRouter(store, &fakeClusterRunner{})

	body, _ := json.Marshal(preferenceRequest{
		InterestTickers: []string{"005930"}, PersonalizationEnabled: true, DiversityWeight: 0.5,
	})
	req := httptest.NewRequest(http.MethodPut, "/users/u1/preferences", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	saved, ok := store.prefs["u1"]
	require.True(t, ok)
	assert.Equal(t, []string{"005930"}, saved.InterestTickers)
	assert.Equal(t, 0.5, saved.DiversityWeight)
}

func TestHandleCluster_RunsWithOverriddenAlgorithm(t *testing.T) {
	runner := &fakeClusterRunner{}
	router := setupAdminRouter(&fakePreferenceStore{}, runner)

	req := httptest.NewRequest(http.MethodPost, "/admin/clustering/hdbscan", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HDBSCAN", runner.lastCfg.Algorithm)
}

func TestHandleOptimize_PicksThresholdWithMostTopics(t *testing.T) {
	runner := &fakeClusterRunner{byThreshold: map[float64]int{
		0.82: 3, 0.86: 7, 0.90: 5, 0.94: 1,
	}}
	router := setupAdminRouter(&fakePreferenceStore{}, runner)

	req := httptest.NewRequest(http.MethodPost, "/admin/clustering/optimize", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		ChosenThreshold float64            `json:"chosenThreshold"`
		Result          clustering.Result  `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0.86, resp.ChosenThreshold)
	assert.Equal(t, 7, resp.Result.TopicsAssigned)
}

// Package mlclient wraps the three remote model-serving operations —
// importance scoring, summarization, and embedding — each behind its
// own circuit breaker, a shared Redis response cache, and a rule-based
// fallback so the ranking pipeline degrades rather than blocks when
// the model service is unhealthy.
package mlclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/application"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/apperrors"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/cache"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/concurrency"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/metrics"
)

// Config controls endpoint, timeouts, cache TTLs, and retry/breaker
// tuning, mirroring pkg/config.MLConfig.
type Config struct {
	ServiceURL         string
	CallTimeout        time.Duration
	ImportanceCacheTTL time.Duration
	SummaryCacheTTL    time.Duration
	MaxRetries         int
	BreakerOpenTimeout time.Duration
	BreakerWindowSize  int
	BreakerMinWindow   int
}

// ImportanceResult is the importance:score response.
type ImportanceResult struct {
	ImportanceP  float64 `json:"importanceP"`
	ModelVersion string  `json:"modelVersion"`
}

// SummaryResult is the summarize response.
type SummaryResult struct {
	Summary      string `json:"summary"`
	ModelVersion string `json:"modelVersion"`
}

// EmbeddingResult is the embed response.
type EmbeddingResult struct {
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"modelVersion"`
}

// Client wraps the three remote operations behind independent
// circuit breakers.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      cache.Cache
	breakers   *concurrency.Manager
	scorer     *application.RuleScorer
	log        *logger.Logger
}

// New builds a Client. scorer backs the importance fallback; the
// summary fallback needs no collaborator (first-two-sentences of the
// body), and the embedding fallback is simply "no vector".
func New(cfg Config, c cache.Cache, scorer *application.RuleScorer, log *logger.Logger) *Client {
	breakerCfg := &concurrency.Config{
		WindowSize:           cfg.BreakerWindowSize,
		MinWindowForTrip:     cfg.BreakerMinWindow,
		FailureRateThreshold: 0.5,
		OpenTimeout:          cfg.BreakerOpenTimeout,
		CallTimeout:          cfg.CallTimeout,
		HalfOpenMaxProbes:    5,
		HalfOpenSuccessRatio: 0.5,
	}
	mgr := concurrency.NewManager(nil)
	mgr.GetOrCreate("importance", breakerCfg)
	mgr.GetOrCreate("summarize", breakerCfg)
	mgr.GetOrCreate("embed", breakerCfg)

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.CallTimeout},
		cache:      c,
		breakers:   mgr,
		scorer:     scorer,
		log:        log,
	}
}

// ScoreImportance calls importance:score, falling back to the rule
// scorer's importance on circuit-open, 4xx, or exhausted retries.
func (c *Client) ScoreImportance(ctx context.Context, n *domain.News, source domain.Source) (*ImportanceResult, error) {
	cacheKey := "ml:importance:" + contentHash(n.Title+"|"+n.Body)
	var cached ImportanceResult
	if c.cache != nil {
		if err := c.cache.Get(ctx, cacheKey, &cached); err == nil {
			metrics.CacheOperationsTotal.WithLabelValues("importance", "hit").Inc()
			return &cached, nil
		}
		metrics.CacheOperationsTotal.WithLabelValues("importance", "miss").Inc()
	}

	breaker := c.breakers.GetOrCreate("importance", nil)
	start := time.Now()
	result, err := breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return c.callWithRetry(ctx, "importance:score", map[string]interface{}{
			"title": n.Title,
			"body":  n.Body,
		})
	})
	metrics.MLCallDuration.WithLabelValues("importance").Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.MLCallsTotal.WithLabelValues("importance", "fallback").Inc()
		score := c.scorer.Score(n, source, time.Now().UTC())
		return &ImportanceResult{ImportanceP: score.RankScore, ModelVersion: "rule-fallback"}, nil
	}

	raw, ok := result.(map[string]interface{})
	if !ok {
		metrics.MLCallsTotal.WithLabelValues("importance", "fallback").Inc()
		score := c.scorer.Score(n, source, time.Now().UTC())
		return &ImportanceResult{ImportanceP: score.RankScore, ModelVersion: "rule-fallback"}, nil
	}
	out := &ImportanceResult{
		ImportanceP:  toFloat(raw["importanceP"]),
		ModelVersion: toString(raw["modelVersion"]),
	}
	metrics.MLCallsTotal.WithLabelValues("importance", "success").Inc()
	if c.cache != nil {
		_ = c.cache.Set(ctx, cacheKey, out, c.cfg.ImportanceCacheTTL)
	}
	return out, nil
}

// Summarize calls summarize, falling back to the first two sentences
// of the body trimmed to 240 characters.
func (c *Client) Summarize(ctx context.Context, title, body string) (*SummaryResult, error) {
	cacheKey := "ml:summary:" + contentHash(title+"|"+body)
	var cached SummaryResult
	if c.cache != nil {
		if err := c.cache.Get(ctx, cacheKey, &cached); err == nil {
			metrics.CacheOperationsTotal.WithLabelValues("summarize", "hit").Inc()
			return &cached, nil
		}
		metrics.CacheOperationsTotal.WithLabelValues("summarize", "miss").Inc()
	}

	breaker := c.breakers.GetOrCreate("summarize", nil)
	start := time.Now()
	result, err := breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return c.callWithRetry(ctx, "summarize", map[string]interface{}{
			"title": title,
			"body":  body,
		})
	})
	metrics.MLCallDuration.WithLabelValues("summarize").Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.MLCallsTotal.WithLabelValues("summarize", "fallback").Inc()
		return &SummaryResult{Summary: fallbackSummary(body), ModelVersion: "truncation-fallback"}, nil
	}

	raw, ok := result.(map[string]interface{})
	if !ok {
		metrics.MLCallsTotal.WithLabelValues("summarize", "fallback").Inc()
		return &SummaryResult{Summary: fallbackSummary(body), ModelVersion: "truncation-fallback"}, nil
	}
	out := &SummaryResult{Summary: toString(raw["summary"]), ModelVersion: toString(raw["modelVersion"])}
	metrics.MLCallsTotal.WithLabelValues("summarize", "success").Inc()
	if c.cache != nil {
		_ = c.cache.Set(ctx, cacheKey, out, c.cfg.SummaryCacheTTL)
	}
	return out, nil
}

// Embed calls embed. On failure it returns (nil, err) — callers
// (the embedding pipeline) must tolerate a null embedding by queuing
// a backlog retry.
func (c *Client) Embed(ctx context.Context, text, modelVersion string) (*EmbeddingResult, error) {
	cacheKey := "ml:embed:" + modelVersion + ":" + contentHash(text)
	var cached EmbeddingResult
	if c.cache != nil {
		if err := c.cache.Get(ctx, cacheKey, &cached); err == nil {
			metrics.CacheOperationsTotal.WithLabelValues("embed", "hit").Inc()
			return &cached, nil
		}
		metrics.CacheOperationsTotal.WithLabelValues("embed", "miss").Inc()
	}

	breaker := c.breakers.GetOrCreate("embed", nil)
	start := time.Now()
	result, err := breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return c.callWithRetry(ctx, "embed", map[string]interface{}{
			"text":         text,
			"modelVersion": modelVersion,
		})
	})
	metrics.MLCallDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.MLCallsTotal.WithLabelValues("embed", "fallback").Inc()
		return nil, apperrors.Wrap(apperrors.TransientRemote, err, "embed call failed")
	}

	raw, ok := result.(map[string]interface{})
	if !ok {
		metrics.MLCallsTotal.WithLabelValues("embed", "fallback").Inc()
		return nil, apperrors.New(apperrors.TransientRemote, "embed: unexpected response shape")
	}
	vecRaw, _ := raw["vector"].([]interface{})
	vec := make([]float32, len(vecRaw))
	for i, v := range vecRaw {
		vec[i] = float32(toFloat(v))
	}
	out := &EmbeddingResult{Vector: vec, ModelVersion: toString(raw["modelVersion"])}
	metrics.MLCallsTotal.WithLabelValues("embed", "success").Inc()
	if c.cache != nil {
		_ = c.cache.Set(ctx, cacheKey, out, 0) // permanent: ttl<=0 means no expiry in RedisCache
	}
	return out, nil
}

// BreakerState exposes each operation's current state for the
// metrics gauge and admin inspection.
func (c *Client) BreakerState(operation string) concurrency.State {
	return c.breakers.GetOrCreate(operation, nil).State()
}

// callWithRetry posts the operation's payload with bounded
// exponential backoff (max 3 attempts), retrying only network errors
// and 5xx responses.
func (c *Client) callWithRetry(ctx context.Context, op string, payload map[string]interface{}) (interface{}, error) {
	maxAttempts := c.cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, status, err := c.post(ctx, op, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if status >= 400 && status < 500 {
			// permanent: not retried
			return nil, apperrors.Wrap(apperrors.PermanentRemote, err, op+" returned a client error").WithContext("status", status)
		}
		// network error or 5xx: retry
	}
	return nil, apperrors.Wrap(apperrors.TransientRemote, lastErr, op+" exhausted retries")
}

func (c *Client) post(ctx context.Context, op string, payload map[string]interface{}) (interface{}, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}

	url := strings.TrimRight(c.cfg.ServiceURL, "/") + "/" + op
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("mlclient: %s returned status %d", op, resp.StatusCode)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, resp.StatusCode, err
	}
	return decoded, resp.StatusCode, nil
}

func fallbackSummary(body string) string {
	sentences := strings.SplitAfterN(body, "다.", 3)
	var out string
	if len(sentences) > 2 {
		out = sentences[0] + sentences[1]
	} else {
		out = body
	}
	out = strings.TrimSpace(out)
	runes := []rune(out)
	if len(runes) > 240 {
		out = string(runes[:240])
	}
	return out
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func toFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// Package enrichment implements the second asynchronous post-save
// stage the RSS Ingestor triggers: on NewsSaved, refine the rule
// scorer's fallback importance with the ML client's importance:score
// call and attach a generated summary. Structured the same way as
// internal/embedding (single-flight lock, Redis-backed retry
// backlog) since both subscribe to the same event and must tolerate
// the same ML-unavailability failure mode independently of each
// other.
package enrichment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/mlclient"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/cache"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/concurrency"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

// Scorer calls the remote importance/summary operations (implemented
// by internal/mlclient.Client).
type Scorer interface {
	ScoreImportance(ctx context.Context, n *domain.News, source domain.Source) (*mlclient.ImportanceResult, error)
	Summarize(ctx context.Context, title, body string) (*mlclient.SummaryResult, error)
	BreakerState(operation string) concurrency.State
}

// NewsReader is the read side of the news repository the pipeline needs.
type NewsReader interface {
	GetByID(ctx context.Context, id int64) (*domain.News, error)
	GetSourceByName(ctx context.Context, name string) (*domain.Source, error)
}

// ScoreWriter persists the refined score.
type ScoreWriter interface {
	UpdateScore(ctx context.Context, newsID int64, importanceP float64, modelVersion, summary string) error
}

// Backlog is the retry queue a failed call is pushed onto.
type Backlog interface {
	Push(ctx context.Context, id string) error
	Pop(ctx context.Context) (string, error)
	Len(ctx context.Context) (int64, error)
}

// Lock is a single acquire/release guard scoped to one news item.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory mints a fresh single-flight Lock per news ID.
type LockFactory interface {
	NewLock(newsID string) Lock
}

type redisLockFactory struct {
	redis *cache.RedisCache
	ttl   time.Duration
}

// NewRedisLockFactory builds a LockFactory backed by Redis SETNX locks.
func NewRedisLockFactory(redis *cache.RedisCache, ttl time.Duration) LockFactory {
	return &redisLockFactory{redis: redis, ttl: ttl}
}

func (f *redisLockFactory) NewLock(newsID string) Lock {
	return cache.NewSingleFlightLock(f.redis, newsID, f.ttl)
}

// Pipeline wires the score-on-save and backlog-drain flows.
type Pipeline struct {
	ml      Scorer
	news    NewsReader
	writer  ScoreWriter
	backlog Backlog
	locks   LockFactory
	log     *logger.Logger
}

// New builds a Pipeline.
func New(ml Scorer, news NewsReader, writer ScoreWriter, backlog Backlog, locks LockFactory, log *logger.Logger) *Pipeline {
	return &Pipeline{ml: ml, news: news, writer: writer, backlog: backlog, locks: locks, log: log}
}

// HandleNewsSaved scores and summarizes one news item, queuing it in
// the backlog on failure instead of propagating the error.
func (p *Pipeline) HandleNewsSaved(ctx context.Context, newsID int64) error {
	lock := p.locks.NewLock(strconv.FormatInt(newsID, 10))
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("enrichment: acquire single-flight lock: %w", err)
	}
	if !acquired {
		p.log.WithField("newsId", newsID).Debug("enrichment already in flight for this news item")
		return nil
	}
	defer lock.Release(ctx)

	if err := p.scoreAndSave(ctx, newsID); err != nil {
		p.log.WithField("newsId", newsID).WithError(err).Warn("enrichment failed, queuing to backlog")
		if qerr := p.backlog.Push(ctx, strconv.FormatInt(newsID, 10)); qerr != nil {
			return fmt.Errorf("enrichment: queue backlog after failure: %w", qerr)
		}
		return nil
	}
	return nil
}

func (p *Pipeline) scoreAndSave(ctx context.Context, newsID int64) error {
	n, err := p.news.GetByID(ctx, newsID)
	if err != nil {
		return fmt.Errorf("load news %d: %w", newsID, err)
	}
	if n == nil {
		return fmt.Errorf("news %d not found", newsID)
	}

	source, err := p.news.GetSourceByName(ctx, n.Source)
	if err != nil {
		return fmt.Errorf("load source %s: %w", n.Source, err)
	}
	if source == nil {
		source = &domain.Source{Name: n.Source}
	}

	importance, err := p.ml.ScoreImportance(ctx, n, *source)
	if err != nil {
		return fmt.Errorf("score importance: %w", err)
	}
	summary, err := p.ml.Summarize(ctx, n.Title, n.Body)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	if err := p.writer.UpdateScore(ctx, newsID, importance.ImportanceP, importance.ModelVersion, summary.Summary); err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	return nil
}

// DrainBacklog pops and retries queued news IDs while the importance
// circuit is CLOSED, stopping as soon as it opens again or the
// backlog is empty.
func (p *Pipeline) DrainBacklog(ctx context.Context, maxItems int) (int, error) {
	drained := 0
	for i := 0; i < maxItems; i++ {
		if p.ml.BreakerState("importance") != concurrency.StateClosed {
			break
		}

		idStr, err := p.backlog.Pop(ctx)
		if err != nil {
			if err == cache.ErrCacheMiss {
				break
			}
			return drained, fmt.Errorf("enrichment: drain backlog: %w", err)
		}

		newsID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			p.log.WithField("raw", idStr).Warn("dropping malformed backlog entry")
			continue
		}

		if err := p.HandleNewsSaved(ctx, newsID); err != nil {
			p.log.WithField("newsId", newsID).WithError(err).Warn("backlog retry failed")
			continue
		}
		drained++
	}
	return drained, nil
}

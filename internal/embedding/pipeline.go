// Package embedding implements the asynchronous, post-save enrichment
// stage: on NewsSaved, compose title+body, call the ML
// client's embed operation, and upsert the resulting NewsEmbedding.
// Failures are queued in a Redis-backed backlog and retried by a
// periodic drain while the embed circuit is closed. A single-flight
// lock keeps two consumer instances from embedding the same news item
// concurrently.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/mlclient"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/cache"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/concurrency"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/metrics"
)

// ModelVersion identifies the embedding model the pipeline targets;
// NewsEmbedding rows and the cache key carry it so a model upgrade
// doesn't collide with stale vectors.
const ModelVersion = "embed-ko-v1"

// Embedder calls the remote embed operation (implemented by
// internal/mlclient.Client).
type Embedder interface {
	Embed(ctx context.Context, text, modelVersion string) (*mlclient.EmbeddingResult, error)
	BreakerState(operation string) concurrency.State
}

// NewsReader is the read side of the news repository the pipeline needs.
type NewsReader interface {
	GetByID(ctx context.Context, id int64) (*domain.News, error)
}

// EmbeddingWriter is the write side of the news repository the
// pipeline needs.
type EmbeddingWriter interface {
	SaveEmbedding(ctx context.Context, e *domain.NewsEmbedding) error
}

// Backlog is the retry queue a failed embed call is pushed onto
// (implemented by cache.BacklogQueue).
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

// LockFactory mints a fresh single-flight Lock per news ID
// (implemented by redisLockFactory, wrapping cache.NewSingleFlightLock).
type LockFactory interface {
	NewLock(newsID string) Lock
}

// redisLockFactory adapts cache.NewSingleFlightLock to LockFactory.
type redisLockFactory struct {
	redis *cache.RedisCache
	ttl   time.Duration
}

// NewRedisLockFactory builds a LockFactory backed by Redis SETNX
// locks, one per news ID, each held for ttl.
func NewRedisLockFactory(redis *cache.RedisCache, ttl time.Duration) LockFactory {
	return &redisLockFactory{redis: redis, ttl: ttl}
}

func (f *redisLockFactory) NewLock(newsID string) Lock {
	return cache.NewSingleFlightLock(f.redis, newsID, f.ttl)
}

// Pipeline wires the embed-on-save and backlog-drain flows.
type Pipeline struct {
	ml      Embedder
	news    NewsReader
	writer  EmbeddingWriter
	backlog Backlog
	locks   LockFactory
	log     *logger.Logger
}

// New builds a Pipeline.
func New(ml Embedder, news NewsReader, writer EmbeddingWriter, backlog Backlog, locks LockFactory, log *logger.Logger) *Pipeline {
	return &Pipeline{ml: ml, news: news, writer: writer, backlog: backlog, locks: locks, log: log}
}

// HandleNewsSaved embeds one news item, queuing it in the backlog on
// failure instead of propagating the error — the ingestion path this
// is triggered from must never block on ML availability.
func (p *Pipeline) HandleNewsSaved(ctx context.Context, newsID int64) error {
	lock := p.locks.NewLock(strconv.FormatInt(newsID, 10))
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("embedding: acquire single-flight lock: %w", err)
	}
	if !acquired {
		p.log.WithField("newsId", newsID).Debug("embedding already in flight for this news item")
		return nil
	}
	defer lock.Release(ctx)

	if err := p.embedAndSave(ctx, newsID); err != nil {
		p.log.WithField("newsId", newsID).WithError(err).Warn("embedding failed, queuing to backlog")
		if qerr := p.backlog.Push(ctx, strconv.FormatInt(newsID, 10)); qerr != nil {
			return fmt.Errorf("embedding: queue backlog after failure: %w", qerr)
		}
		return nil
	}
	return nil
}

func (p *Pipeline) embedAndSave(ctx context.Context, newsID int64) error {
	n, err := p.news.GetByID(ctx, newsID)
	if err != nil {
		return fmt.Errorf("load news %d: %w", newsID, err)
	}

	text := n.Title + "\n" + n.Body
	result, err := p.ml.Embed(ctx, text, ModelVersion)
	if err != nil {
		return fmt.Errorf("embed call: %w", err)
	}

	embedding := &domain.NewsEmbedding{
		NewsID:       newsID,
		Vector:       result.Vector,
		Norm:         l2Norm(result.Vector),
		ModelVersion: result.ModelVersion,
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.writer.SaveEmbedding(ctx, embedding); err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	metrics.EmbeddingProcessedTotal.WithLabelValues("success").Inc()
	return nil
}

// DrainBacklog pops and retries queued news IDs while the embed
// circuit is CLOSED, stopping as soon as it opens again or the
// backlog is empty, draining it periodically while the circuit stays CLOSED.
func (p *Pipeline) DrainBacklog(ctx context.Context, maxItems int) (int, error) {
	drained := 0
	for i := 0; i < maxItems; i++ {
		if p.ml.BreakerState("embed") != concurrency.StateClosed {
			break
		}

		idStr, err := p.backlog.Pop(ctx)
		if err != nil {
			if err == cache.ErrCacheMiss {
				break
			}
			return drained, fmt.Errorf("embedding: drain backlog: %w", err)
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
	if depth, err := p.backlog.Len(ctx); err == nil {
		metrics.EmbeddingBacklogDepth.Set(float64(depth))
	}
	return drained, nil
}

func l2Norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

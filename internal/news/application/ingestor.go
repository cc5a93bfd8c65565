package application

import (
	"context"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
	"golang.org/x/time/rate"
)

// FeedFetcher pulls and parses one RSS/Atom feed (implemented by
// infrastructure/rss.Fetcher).
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string, timeout time.Duration) ([]domain.FeedItem, error)
}

// NewsRepository is the persistence surface the Ingestor writes
// through (implemented by infrastructure/repository).
type NewsRepository interface {
	ExistsByDedupKey(ctx context.Context, dedupKey string) (bool, error)
	Save(ctx context.Context, news *domain.News, score *domain.NewsScore) (*domain.News, error)
}

// SourceRepository lists the configured RSS sources.
type SourceRepository interface {
	ListSources(ctx context.Context) ([]domain.Source, error)
}

// EventPublisher publishes the NewsSaved domain event.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.DomainEvent) error
}

// IngestorConfig controls per-source fetch behavior.
type IngestorConfig struct {
	SourceTimeout  time.Duration
	RequestsPerSec float64
}

// Ingestor pulls every
// configured source on a fixed interval, normalizes and dedups items,
// persists new ones, and emits NewsSaved so the embedding pipeline
// picks them up asynchronously.
type Ingestor struct {
	sources    SourceRepository
	news       NewsRepository
	fetcher    FeedFetcher
	normalizer *Normalizer
	scorer     *RuleScorer
	publisher  EventPublisher
	limiter    *rate.Limiter
	cfg        IngestorConfig
	log        *logger.Logger
}

// NewIngestor wires the ingestor's collaborators.
func NewIngestor(
	sources SourceRepository,
	news NewsRepository,
	fetcher FeedFetcher,
	scorer *RuleScorer,
	publisher EventPublisher,
	cfg IngestorConfig,
	log *logger.Logger,
) *Ingestor {
	limit := rate.Limit(cfg.RequestsPerSec)
	if cfg.RequestsPerSec <= 0 {
		limit = rate.Inf
	}
	return &Ingestor{
		sources:    sources,
		news:       news,
		fetcher:    fetcher,
		normalizer: NewNormalizer(),
		scorer:     scorer,
		publisher:  publisher,
		limiter:    rate.NewLimiter(limit, 1),
		cfg:        cfg,
		log:        log,
	}
}

// Run fetches every configured source once. A single source's failure
// is recorded in the result and does not abort the others.
func (ing *Ingestor) Run(ctx context.Context) (*domain.IngestResult, error) {
	result := &domain.IngestResult{StartTime: time.Now().UTC()}

	sources, err := ing.sources.ListSources(ctx)
	if err != nil {
		result.EndTime = time.Now().UTC()
		return result, err
	}

	for _, source := range sources {
		ing.runSource(ctx, source, result)
	}

	result.EndTime = time.Now().UTC()
	return result, nil
}

func (ing *Ingestor) runSource(ctx context.Context, source domain.Source, result *domain.IngestResult) {
	if err := ing.limiter.Wait(ctx); err != nil {
		return
	}

	items, err := ing.fetcher.Fetch(ctx, source.URL, ing.cfg.SourceTimeout)
	if err != nil {
		collErr := &domain.RssCollectionError{SourceName: source.Name, Cause: err}
		result.Errors = append(result.Errors, collErr.Error())
		ing.log.WithField("source", source.Name).WithError(err).Warn("rss collection failed")
		return
	}

	result.ItemsFetched += len(items)
	for _, item := range items {
		result.ItemsProcessed++
		if err := ing.processItem(ctx, source, item, result); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}
}

func (ing *Ingestor) processItem(ctx context.Context, source domain.Source, item domain.FeedItem, result *domain.IngestResult) error {
	body := ing.normalizer.ExtractBestContent(item.Description, item.Content)
	title := ing.normalizer.Clean(item.Title)
	dedupKey := ing.normalizer.DedupKey(title, source.Name, item.PublishedAt)

	exists, err := ing.news.ExistsByDedupKey(ctx, dedupKey)
	if err != nil {
		return err
	}
	if exists {
		result.ItemsSkipped++
		return nil
	}

	news := &domain.News{
		Source:      source.Name,
		URL:         item.Link,
		PublishedAt: item.PublishedAt,
		Title:       title,
		Body:        body,
		Lang:        source.Lang,
		DedupKey:    dedupKey,
		CreatedAt:   time.Now().UTC(),
	}
	score := ing.scorer.Score(news, source, time.Now().UTC())

	saved, err := ing.news.Save(ctx, news, score)
	if err != nil {
		return err
	}
	result.ItemsSaved++

	if ing.publisher != nil {
		_ = ing.publisher.Publish(ctx, domain.NewNewsSavedEvent(saved))
	}
	return nil
}

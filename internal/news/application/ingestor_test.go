package application

import (
	"context"
	"testing"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

type mockSourceRepository struct {
	sources []domain.Source
}

func (m *mockSourceRepository) ListSources(ctx context.Context) ([]domain.Source, error) {
	return m.sources, nil
}

type mockFeedFetcher struct {
	items map[string][]domain.FeedItem
	err   map[string]error
}

func (m *mockFeedFetcher) Fetch(ctx context.Context, feedURL string, timeout time.Duration) ([]domain.FeedItem, error) {
	if err, ok := m.err[feedURL]; ok {
		return nil, err
	}
	return m.items[feedURL], nil
}

type mockNewsRepository struct {
	saved   []*domain.News
	byDedup map[string]bool
	nextID  int64
}

func newMockNewsRepository() *mockNewsRepository {
	return &mockNewsRepository{byDedup: make(map[string]bool)}
}

func (m *mockNewsRepository) ExistsByDedupKey(ctx context.Context, dedupKey string) (bool, error) {
	return m.byDedup[dedupKey], nil
}

func (m *mockNewsRepository) Save(ctx context.Context, news *domain.News, score *domain.NewsScore) (*domain.News, error) {
	m.nextID++
	news.ID = m.nextID
	m.byDedup[news.DedupKey] = true
	m.saved = append(m.saved, news)
	return news, nil
}

type mockPublisher struct {
	events []*domain.DomainEvent
}

func (m *mockPublisher) Publish(ctx context.Context, event *domain.DomainEvent) error {
	m.events = append(m.events, event)
	return nil
}

func TestIngestor_SkipsDuplicateWithinSameMinute(t *testing.T) {
	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	source := domain.Source{Name: "naver", URL: "https://naver.example/rss", Weight: 1.0}
	item := domain.FeedItem{Title: "삼성전자 실적 발표", Description: "삼성전자가 실적을 발표했다", PublishedAt: now}

	fetcher := &mockFeedFetcher{items: map[string][]domain.FeedItem{
		source.URL: {item, item}, // identical title+source+minute twice
	}}
	newsRepo := newMockNewsRepository()
	scorer := NewRuleScorer(NewTickerMatcher(nil))
	publisher := &mockPublisher{}
	ing := NewIngestor(&mockSourceRepository{sources: []domain.Source{source}}, newsRepo, fetcher, scorer, publisher, IngestorConfig{SourceTimeout: time.Second}, logger.New("test"))

	result, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ItemsSaved != 1 {
		t.Fatalf("expected itemsSaved==1 (second identical item is a same-minute duplicate), got %d", result.ItemsSaved)
	}
	if result.ItemsSkipped != 1 {
		t.Fatalf("expected itemsSkipped==1, got %d", result.ItemsSkipped)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected exactly one NewsSaved event, got %d", len(publisher.events))
	}
}

func TestIngestor_OneSourceFailureDoesNotAbortOthers(t *testing.T) {
	now := time.Now().UTC()
	good := domain.Source{Name: "good", URL: "https://good.example/rss", Weight: 1.0}
	bad := domain.Source{Name: "bad", URL: "https://bad.example/rss", Weight: 1.0}

	fetcher := &mockFeedFetcher{
		items: map[string][]domain.FeedItem{
			good.URL: {{Title: "좋은 뉴스", Description: "내용", PublishedAt: now}},
		},
		err: map[string]error{
			bad.URL: context.DeadlineExceeded,
		},
	}
	newsRepo := newMockNewsRepository()
	scorer := NewRuleScorer(NewTickerMatcher(nil))
	ing := NewIngestor(&mockSourceRepository{sources: []domain.Source{good, bad}}, newsRepo, fetcher, scorer, nil, IngestorConfig{SourceTimeout: time.Second}, logger.New("test"))

	result, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected top-level error: %v", err)
	}
	if result.ItemsSaved != 1 {
		t.Fatalf("expected the good source's item still saved, got %d", result.ItemsSaved)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected exactly one recorded per-source error, got %d", len(result.Errors))
	}
}

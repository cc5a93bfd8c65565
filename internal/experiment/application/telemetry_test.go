package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

type fakeTelemetryWriter struct {
	mu          sync.Mutex
	impressions []domain.ImpressionLog
	clicks      []domain.ClickLog
}

func (f *fakeTelemetryWriter) SaveImpressions(ctx context.Context, impressions []domain.ImpressionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.impressions = append(f.impressions, impressions...)
	return nil
}

func (f *fakeTelemetryWriter) SaveClicks(ctx context.Context, clicks []domain.ClickLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, clicks...)
	return nil
}

func (f *fakeTelemetryWriter) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.impressions), len(f.clicks)
}

func TestTelemetrySink_FlushesOnBufferSize(t *testing.T) {
	writer := &fakeTelemetryWriter{}
	sink := NewTelemetrySink(writer, TelemetryConfig{FlushInterval: time.Hour, FlushSize: 3}, logger.New("test"))

	ctx := context.Background()
	sink.RecordImpression(ctx, domain.ImpressionLog{NewsID: 1})
	sink.RecordImpression(ctx, domain.ImpressionLog{NewsID: 2})
	impressions, _ := writer.counts()
	assert.Equal(t, 0, impressions)

	sink.RecordImpression(ctx, domain.ImpressionLog{NewsID: 3})
	impressions, _ = writer.counts()
	assert.Equal(t, 3, impressions)
}

func TestTelemetrySink_StopDrainsRemainingBuffer(t *testing.T) {
	writer := &fakeTelemetryWriter{}
	sink := NewTelemetrySink(writer, TelemetryConfig{FlushInterval: time.Hour, FlushSize: 500}, logger.New("test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink.Start(ctx)

	sink.RecordClick(ctx, domain.ClickLog{NewsID: 1})
	sink.RecordClick(ctx, domain.ClickLog{NewsID: 2})
	sink.Stop()

	_, clicks := writer.counts()
	require.Equal(t, 2, clicks)
}

package application

import (
	"context"
	"sync"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

// TelemetryConfig tunes the buffered sink's flush cadence.
type TelemetryConfig struct {
	FlushInterval time.Duration // default 1s
	FlushSize     int           // default 500
}

// TelemetryWriter batches impressions/clicks into storage.
type TelemetryWriter interface {
	SaveImpressions(ctx context.Context, impressions []domain.ImpressionLog) error
	SaveClicks(ctx context.Context, clicks []domain.ClickLog) error
}

// TelemetrySink buffers impression/click events in memory and
// flushes them in batches, either on a timer or once the buffer fills
// flushing every 1s or once 500 events have buffered.
type TelemetrySink struct {
	writer TelemetryWriter
	cfg    TelemetryConfig
	log    *logger.Logger

	mu          sync.Mutex
	impressions []domain.ImpressionLog
	clicks      []domain.ClickLog

	stop chan struct{}
	done chan struct{}
}

// NewTelemetrySink builds a sink; call Start to begin the flush timer
// and Stop to drain the buffer and halt it.
func NewTelemetrySink(writer TelemetryWriter, cfg TelemetryConfig, log *logger.Logger) *TelemetrySink {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = 500
	}
	return &TelemetrySink{writer: writer, cfg: cfg, log: log, stop: make(chan struct{}), done: make(chan struct{})}
}

// RecordImpression buffers one impression, flushing immediately if
// the buffer has reached FlushSize.
func (s *TelemetrySink) RecordImpression(ctx context.Context, impression domain.ImpressionLog) {
	s.mu.Lock()
	s.impressions = append(s.impressions, impression)
	full := len(s.impressions) >= s.cfg.FlushSize
	s.mu.Unlock()
	if full {
		s.flushImpressions(ctx)
	}
}

// RecordClick buffers one click, flushing immediately if the buffer
// has reached FlushSize.
func (s *TelemetrySink) RecordClick(ctx context.Context, click domain.ClickLog) {
	s.mu.Lock()
	s.clicks = append(s.clicks, click)
	full := len(s.clicks) >= s.cfg.FlushSize
	s.mu.Unlock()
	if full {
		s.flushClicks(ctx)
	}
}

// Start runs the periodic flush loop until Stop is called or ctx is
// done.
func (s *TelemetrySink) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.flushImpressions(ctx)
				s.flushClicks(ctx)
			case <-s.stop:
				s.flushImpressions(ctx)
				s.flushClicks(ctx)
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop signals the flush loop to drain and exit, blocking until it
// has.
func (s *TelemetrySink) Stop() {
	close(s.stop)
	<-s.done
}

func (s *TelemetrySink) flushImpressions(ctx context.Context) {
	s.mu.Lock()
	if len(s.impressions) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.impressions
	s.impressions = nil
	s.mu.Unlock()

	if err := s.writer.SaveImpressions(ctx, batch); err != nil {
		s.log.WithError(err).Error("telemetry: flush %d impressions failed", len(batch))
	}
}

func (s *TelemetrySink) flushClicks(ctx context.Context) {
	s.mu.Lock()
	if len(s.clicks) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.clicks
	s.clicks = nil
	s.mu.Unlock()

	if err := s.writer.SaveClicks(ctx, batch); err != nil {
		s.log.WithError(err).Error("telemetry: flush %d clicks failed", len(batch))
	}
}

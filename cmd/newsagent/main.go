// Command newsagent runs the Korean financial news ranking service:
// RSS ingestion, ML enrichment, rule+ML scoring, topic clustering, the
// personalized/diversified feed query, experiment bucketing, and the
// multi-armed bandit, all behind one gin HTTP API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	adminhttp "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/admin/transport/http"
	banditapp "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/bandit/application"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/bandit/infrastructure/ranksource"
	banditrepo "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/bandit/infrastructure/repository"
	bandithttp "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/bandit/transport/http"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/clustering"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/embedding"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/enrichment"
	expapp "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/experiment/application"
	expmsg "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/experiment/infrastructure/messaging"
	exprepo "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/experiment/infrastructure/repository"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/facade"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/mlclient"
	newsapp "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/application"
	newsdomain "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/infrastructure/messaging"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/infrastructure/repository"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/infrastructure/rss"
	newshttp "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/transport/http"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/ranking"
	userrepo "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/user/infrastructure/repository"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/cache"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/config"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/database"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/kafka"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

const serviceName = "stocks-news-agent"

func main() {
	log := logger.New(serviceName)
	log.Info("starting %s", serviceName)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config failed")
	}

	db, err := database.New(&database.Config{
		Host: cfg.Database.Host, Port: cfg.Database.Port, User: cfg.Database.User,
		Password: cfg.Database.Password, Database: cfg.Database.Name, SSLMode: cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns, MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.WithError(err).Fatal("connect to postgres failed")
	}
	defer db.Close()
	log.Info("connected to postgres")

	redisCache, err := cache.NewRedisCache(&cache.Config{
		Host: cfg.Redis.Host, Port: cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB,
		Prefix: "newsagent", DialTimeout: cfg.Redis.DialTimeout, ReadTimeout: cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout, PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		log.WithError(err).Fatal("connect to redis failed")
	}
	defer redisCache.Close()
	log.Info("connected to redis")

	producer, err := kafka.NewProducer(&kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers, RetryMax: cfg.Kafka.RetryMax, RequiredAcks: cfg.Kafka.RequiredAcks,
	})
	if err != nil {
		log.WithError(err).Fatal("connect kafka producer failed")
	}
	defer producer.Close()
	eventPublisher := messaging.NewEventPublisher(producer, cfg.Kafka.NewsSavedTopic)

	// Repositories.
	newsRepo := repository.NewNewsRepository(db, log)
	topicRepo := repository.NewTopicRepository(db, log)
	userRepo := userrepo.NewUserRepository(db, log)
	experimentRepo := exprepo.NewExperimentRepository(db, log)
	telemetryRepo := exprepo.NewTelemetryRepository(db, log)
	banditRepo := banditrepo.NewBanditRepository(db, log)

	// Rule scoring, ML enrichment.
	tickerMatcher := newsapp.NewTickerMatcher(nil)
	ruleScorer := newsapp.NewRuleScorer(tickerMatcher)
	mlClient := mlclient.New(mlclient.Config{
		ServiceURL: cfg.ML.ServiceURL, CallTimeout: cfg.ML.CallTimeout,
		ImportanceCacheTTL: cfg.ML.ImportanceCacheTTL, SummaryCacheTTL: cfg.ML.SummaryCacheTTL,
		MaxRetries: cfg.ML.MaxRetries, BreakerOpenTimeout: cfg.ML.BreakerOpenTimeout,
		BreakerWindowSize: cfg.ML.BreakerWindowSize, BreakerMinWindow: cfg.ML.BreakerMinWindow,
	}, redisCache, ruleScorer, log)

	// RSS ingestion.
	fetcher := rss.NewFetcher()
	ingestor := newsapp.NewIngestor(newsRepo, newsRepo, fetcher, ruleScorer, eventPublisher, newsapp.IngestorConfig{
		SourceTimeout: cfg.RSS.SourceTimeout, RequestsPerSec: cfg.RSS.RequestsPerSec,
	}, log)

	// Embedding and enrichment pipelines, both fed by the NewsSaved
	// Kafka topic but independently retried so a stalled embed call
	// never blocks importance/summary refinement or vice versa.
	backlog := cache.NewBacklogQueue(redisCache, "embed")
	lockFactory := embedding.NewRedisLockFactory(redisCache, 30*time.Second)
	embedPipeline := embedding.New(mlClient, newsRepo, newsRepo, backlog, lockFactory, log)

	enrichBacklog := cache.NewBacklogQueue(redisCache, "enrich")
	enrichLockFactory := enrichment.NewRedisLockFactory(redisCache, 30*time.Second)
	enrichPipeline := enrichment.New(mlClient, newsRepo, newsRepo, enrichBacklog, enrichLockFactory, log)

	// Topic clustering.
	clusterer := clustering.New(newsRepo, topicRepo, newsRepo, nil, log)

	// Experiment lifecycle.
	bucketer := expapp.NewBucketer(experimentRepo)
	telemetrySink := expapp.NewTelemetrySink(telemetryRepo, expapp.TelemetryConfig{}, log)
	metricsSource := expapp.NewCompositeMetricsSource(experimentRepo, telemetryRepo)
	rollup := expapp.NewRollup(metricsSource, experimentRepo, log)
	warningEmitter := expmsg.NewEventEmitter(eventPublisher)
	autoStop := expapp.NewAutoStopMonitor(experimentRepo, experimentRepo, warningEmitter, log)

	// News Query Facade.
	mmrConfig := ranking.MMRConfig{Lambda: cfg.MMR.Lambda, MaxPerTopic: cfg.MMR.MaxPerTopic}
	queryFacade := facade.New(newsRepo, userRepo, tickerMatcher, bucketer, telemetrySink, mmrConfig, log)

	// Multi-armed bandit, ranking over the same candidate pool the
	// facade ranks, via the ranksource adapter.
	rankSource := ranksource.New(newsRepo, newsRepo, mmrConfig)
	banditCore := banditapp.New(banditRepo, banditRepo, banditRepo, banditapp.DefaultArms(rankSource), log)
	banditPerformance := banditapp.NewPerformanceReport(banditRepo)

	// HTTP API.
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	newsHandler := newshttp.NewHandler(ingestor, queryFacade, queryFacade, newsRepo, log)
	newsHandler.RegisterRoutes(router)

	banditHandler := bandithttp.NewHandler(banditCore, banditPerformance, log)
	banditHandler.RegisterRoutes(router)

	adminHandler := adminhttp.NewHandler(userRepo, clusterer, clustering.Config{
		Algorithm: cfg.Clustering.Algorithm, CosineJoinThreshold: cfg.Clustering.CosineJoinThreshold,
		NearDuplicateThresh: cfg.Clustering.NearDuplicateThresh, Lookback: cfg.Clustering.Lookback,
	}, log)
	adminHandler.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.APIPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.WithField("addr", httpServer.Addr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetrySink.Start(ctx)

	consumer, err := kafka.NewConsumer(&kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers, ConsumerGroup: cfg.Kafka.ConsumerGroup, AutoOffsetReset: "earliest",
	})
	if err != nil {
		log.WithError(err).Fatal("connect kafka consumer failed")
	}
	defer consumer.Close()
	go consumeNewsSaved(ctx, consumer, cfg.Kafka.NewsSavedTopic, embedPipeline, enrichPipeline, log)

	scheduler := cron.New()
	if cfg.RSS.Enabled {
		if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.RSS.PollInterval), func() {
			result, err := ingestor.Run(ctx)
			if err != nil {
				log.WithError(err).Error("scheduled ingest failed")
				return
			}
			log.WithField("fetched", result.ItemsFetched).Info("scheduled ingest completed")
		}); err != nil {
			log.WithError(err).Fatal("schedule rss poll failed")
		}
	}
	if cfg.Clustering.Enabled {
		if _, err := scheduler.AddFunc(cfg.Clustering.Cron, func() {
			if _, err := clusterer.Run(ctx, clustering.Config{
				Algorithm: cfg.Clustering.Algorithm, CosineJoinThreshold: cfg.Clustering.CosineJoinThreshold,
				NearDuplicateThresh: cfg.Clustering.NearDuplicateThresh, Lookback: cfg.Clustering.Lookback,
			}); err != nil {
				log.WithError(err).Error("scheduled clustering pass failed")
			}
		}); err != nil {
			log.WithError(err).Fatal("schedule clustering failed")
		}
	}
	if _, err := scheduler.AddFunc("0 */6 * * *", func() {
		if err := autoStop.Run(ctx, time.Now().UTC()); err != nil {
			log.WithError(err).Error("scheduled auto-stop check failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("schedule auto-stop failed")
	}
	if _, err := scheduler.AddFunc("@daily", func() {
		yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
		if err := rollup.Run(ctx, yesterday); err != nil {
			log.WithError(err).Error("scheduled rollup failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("schedule rollup failed")
	}
	if _, err := scheduler.AddFunc("@every 5m", func() {
		if _, err := embedPipeline.DrainBacklog(ctx, 100); err != nil {
			log.WithError(err).Error("scheduled embed backlog drain failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("schedule embed backlog drain failed")
	}
	if _, err := scheduler.AddFunc("@every 5m", func() {
		if _, err := enrichPipeline.DrainBacklog(ctx, 100); err != nil {
			log.WithError(err).Error("scheduled enrichment backlog drain failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("schedule enrichment backlog drain failed")
	}
	scheduler.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	log.Info("newsagent is running")
	<-sig

	log.Info("shutting down")
	cancel()
	telemetrySink.Stop()
	schedCtx := scheduler.Stop()
	<-schedCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http server shutdown error")
	}
	log.Info("newsagent stopped gracefully")
}

// consumeNewsSaved drains the NewsSaved topic until ctx is canceled,
// forwarding each event's newsId to the embedding and enrichment
// pipelines. A failure in one is queued to its own backlog and never
// blocks the other.
func consumeNewsSaved(ctx context.Context, consumer kafka.Consumer, topic string, embed *embedding.Pipeline, enrich *enrichment.Pipeline, log *logger.Logger) {
	handler := func(ctx context.Context, key, value []byte) error {
		event, err := newsdomain.EventFromJSON(value)
		if err != nil {
			return fmt.Errorf("decode news saved event: %w", err)
		}
		rawID, ok := event.Data["newsId"].(float64)
		if !ok {
			return fmt.Errorf("news saved event missing newsId")
		}
		newsID := int64(rawID)

		if err := embed.HandleNewsSaved(ctx, newsID); err != nil {
			return fmt.Errorf("embed news %d: %w", newsID, err)
		}
		if err := enrich.HandleNewsSaved(ctx, newsID); err != nil {
			return fmt.Errorf("enrich news %d: %w", newsID, err)
		}
		return nil
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if err := consumer.Consume(ctx, []string{topic}, handler); err != nil {
			log.WithError(err).Error("kafka consume loop failed, retrying")
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
		}
	}
}

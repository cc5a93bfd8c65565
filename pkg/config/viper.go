package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Load reads config.yaml (if present) plus environment variables
// named to match their environment variables (ML_SERVICE_URL, RSS_COLLECTION_ENABLED,
// TOPIC_CLUSTERING_ENABLED, TOPIC_CLUSTERING_CRON,
// CLUSTERING_ALGORITHM, MMR_LAMBDA, ...) into a Config, starting from
// Default() so every field has a sane value even with no environment
// set at all.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	cfg := Default()
	setViperDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	bindEnv(v)

	out := *cfg
	if err := v.Unmarshal(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// setViperDefaults seeds viper with the Default() values so partial
// env/config overrides never zero out the rest of the struct.
func setViperDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("environment", cfg.Environment)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)

	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.api_port", cfg.Server.APIPort)
	v.SetDefault("server.metrics_port", cfg.Server.MetricsPort)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.name", cfg.Database.Name)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.ssl_mode", cfg.Database.SSLMode)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)

	v.SetDefault("redis.host", cfg.Redis.Host)
	v.SetDefault("redis.port", cfg.Redis.Port)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.pool_size", cfg.Redis.PoolSize)

	v.SetDefault("kafka.brokers", cfg.Kafka.Brokers)
	v.SetDefault("kafka.news_saved_topic", cfg.Kafka.NewsSavedTopic)
	v.SetDefault("kafka.consumer_group", cfg.Kafka.ConsumerGroup)
	v.SetDefault("kafka.retry_max", cfg.Kafka.RetryMax)
	v.SetDefault("kafka.required_acks", cfg.Kafka.RequiredAcks)

	v.SetDefault("ml.service_url", cfg.ML.ServiceURL)
	v.SetDefault("ml.call_timeout", cfg.ML.CallTimeout)
	v.SetDefault("ml.importance_cache_ttl", cfg.ML.ImportanceCacheTTL)
	v.SetDefault("ml.summary_cache_ttl", cfg.ML.SummaryCacheTTL)
	v.SetDefault("ml.max_retries", cfg.ML.MaxRetries)
	v.SetDefault("ml.breaker_open_timeout", cfg.ML.BreakerOpenTimeout)
	v.SetDefault("ml.breaker_window_size", cfg.ML.BreakerWindowSize)
	v.SetDefault("ml.breaker_min_window", cfg.ML.BreakerMinWindow)

	v.SetDefault("rss.enabled", cfg.RSS.Enabled)
	v.SetDefault("rss.poll_interval", cfg.RSS.PollInterval)
	v.SetDefault("rss.source_timeout", cfg.RSS.SourceTimeout)
	v.SetDefault("rss.requests_per_sec", cfg.RSS.RequestsPerSec)

	v.SetDefault("clustering.enabled", cfg.Clustering.Enabled)
	v.SetDefault("clustering.cron", cfg.Clustering.Cron)
	v.SetDefault("clustering.algorithm", cfg.Clustering.Algorithm)
	v.SetDefault("clustering.cosine_join_threshold", cfg.Clustering.CosineJoinThreshold)
	v.SetDefault("clustering.near_duplicate_threshold", cfg.Clustering.NearDuplicateThresh)
	v.SetDefault("clustering.lookback", cfg.Clustering.Lookback)

	v.SetDefault("mmr.lambda", cfg.MMR.Lambda)
	v.SetDefault("mmr.max_per_topic", cfg.MMR.MaxPerTopic)

	v.SetDefault("bandit.algorithm", cfg.Bandit.Algorithm)
	v.SetDefault("bandit.epsilon", cfg.Bandit.Epsilon)
	v.SetDefault("bandit.alpha", cfg.Bandit.Alpha)
	v.SetDefault("bandit.beta", cfg.Bandit.Beta)

	v.SetDefault("features.advanced_clustering_enabled", cfg.Features.AdvancedClusteringEnabled)
	v.SetDefault("features.personalization_enabled", cfg.Features.PersonalizationEnabled)
}

// bindEnv maps the exact environment variable names this service expects
// onto their nested viper keys, since those names don't follow the
// dotted-path -> SCREAMING_SNAKE convention AutomaticEnv assumes.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("ml.service_url", "ML_SERVICE_URL")
	_ = v.BindEnv("rss.enabled", "RSS_COLLECTION_ENABLED")
	_ = v.BindEnv("clustering.enabled", "TOPIC_CLUSTERING_ENABLED")
	_ = v.BindEnv("clustering.cron", "TOPIC_CLUSTERING_CRON")
	_ = v.BindEnv("clustering.algorithm", "CLUSTERING_ALGORITHM")
	_ = v.BindEnv("mmr.lambda", "MMR_LAMBDA")
}

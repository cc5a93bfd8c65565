// Package config provides the typed configuration surface for the
// news ranking pipeline: server ports, storage DSNs, the ML service
// endpoint, feature toggles, and the tunables
// (RSS_COLLECTION_ENABLED, TOPIC_CLUSTERING_CRON, mmr.lambda, ...).
package config

import "time"

// Config is the root configuration object, populated by Load from
// environment variables (and an optional config.yaml) via viper.
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`

	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	ML         MLConfig         `mapstructure:"ml"`
	RSS        RSSConfig        `mapstructure:"rss"`
	Clustering ClusteringConfig `mapstructure:"clustering"`
	MMR        MMRConfig        `mapstructure:"mmr"`
	Bandit     BanditConfig     `mapstructure:"bandit"`
	Features   FeatureFlags     `mapstructure:"features"`
}

// ServerConfig configures the public ranking API and internal ports.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	APIPort         int           `mapstructure:"api_port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig configures the cache/backlog Redis client.
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig configures the NewsSaved event bus.
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	NewsSavedTopic string  `mapstructure:"news_saved_topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	RetryMax      int      `mapstructure:"retry_max"`
	RequiredAcks  string   `mapstructure:"required_acks"`
}

// MLConfig configures the remote model-serving collaborator client.
type MLConfig struct {
	ServiceURL          string        `mapstructure:"service_url"`
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
	ImportanceCacheTTL  time.Duration `mapstructure:"importance_cache_ttl"`
	SummaryCacheTTL     time.Duration `mapstructure:"summary_cache_ttl"`
	MaxRetries          int           `mapstructure:"max_retries"`
	BreakerOpenTimeout  time.Duration `mapstructure:"breaker_open_timeout"`
	BreakerWindowSize   int           `mapstructure:"breaker_window_size"`
	BreakerMinWindow    int           `mapstructure:"breaker_min_window"`
}

// RSSConfig configures the ingestion scheduler.
type RSSConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	SourceTimeout  time.Duration `mapstructure:"source_timeout"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
}

// ClusteringConfig configures the topic clusterer schedule/algorithm.
type ClusteringConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Cron                string        `mapstructure:"cron"`
	Algorithm           string        `mapstructure:"algorithm"` // COSINE, HDBSCAN, KMEANS
	CosineJoinThreshold float64       `mapstructure:"cosine_join_threshold"`
	NearDuplicateThresh float64       `mapstructure:"near_duplicate_threshold"`
	Lookback            time.Duration `mapstructure:"lookback"`
}

// MMRConfig configures the diversity filter.
type MMRConfig struct {
	Lambda        float64 `mapstructure:"lambda"`
	MaxPerTopic   int     `mapstructure:"max_per_topic"`
}

// BanditConfig configures the multi-armed bandit defaults.
type BanditConfig struct {
	Algorithm string  `mapstructure:"algorithm"` // epsilon_greedy, ucb1, thompson
	Epsilon   float64 `mapstructure:"epsilon"`
	Alpha     float64 `mapstructure:"alpha"`
	Beta      float64 `mapstructure:"beta"`
}

// FeatureFlags are static startup toggles; experiment.* flags live in
// the FeatureFlag entity (internal/experiment) instead, since those
// must be mutable at runtime by the auto-stop monitor.
type FeatureFlags struct {
	AdvancedClusteringEnabled bool `mapstructure:"advanced_clustering_enabled"`
	PersonalizationEnabled    bool `mapstructure:"personalization_enabled"`
}

// Default returns the configuration baseline before env/file overrides.
func Default() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		LogFormat:   "console",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			APIPort:         8080,
			MetricsPort:     9090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "newsagent",
			User:            "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         6379,
			DB:           0,
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			NewsSavedTopic: "news.saved",
			ConsumerGroup:  "newsagent-embedding-pipeline",
			RetryMax:       5,
			RequiredAcks:   "all",
		},
		ML: MLConfig{
			ServiceURL:         "http://localhost:9500",
			CallTimeout:        2 * time.Second,
			ImportanceCacheTTL: 5 * time.Minute,
			SummaryCacheTTL:    24 * time.Hour,
			MaxRetries:         3,
			BreakerOpenTimeout: 30 * time.Second,
			BreakerWindowSize:  50,
			BreakerMinWindow:   20,
		},
		RSS: RSSConfig{
			Enabled:        true,
			PollInterval:   10 * time.Minute,
			SourceTimeout:  10 * time.Second,
			RequestsPerSec: 2,
		},
		Clustering: ClusteringConfig{
			Enabled:             true,
			Cron:                "0 */6 * * *",
			Algorithm:           "COSINE",
			CosineJoinThreshold: 0.75,
			NearDuplicateThresh: 0.9,
			Lookback:            72 * time.Hour,
		},
		MMR: MMRConfig{
			Lambda:      0.7,
			MaxPerTopic: 2,
		},
		Bandit: BanditConfig{
			Algorithm: "epsilon_greedy",
			Epsilon:   0.1,
			Alpha:     1,
			Beta:      1,
		},
		Features: FeatureFlags{
			AdvancedClusteringEnabled: false,
			PersonalizationEnabled:    true,
		},
	}
}

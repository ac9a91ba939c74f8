package config

// Package config provides a reusable loader for snaprag configuration files
// and environment variables. Configuration is read from config/default.yaml,
// merged with an optional environment overlay, a .env file, and
// SNAPRAG_-prefixed environment variables.

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/RyanKung/snaprag/pkg/utils"
)

// Config is the unified configuration for a snaprag process. It mirrors the
// structure of the YAML files under config/.
type Config struct {
	Database struct {
		URL                string `mapstructure:"url" json:"url"`
		MaxConnections     int    `mapstructure:"max_connections" json:"max_connections"`
		MinConnections     int    `mapstructure:"min_connections" json:"min_connections"`
		ConnectionTimeoutS int    `mapstructure:"connection_timeout_s" json:"connection_timeout_s"`
	} `mapstructure:"database" json:"database"`

	Embeddings struct {
		Dimension      int    `mapstructure:"dimension" json:"dimension"`
		Model          string `mapstructure:"model" json:"model"`
		IndexesEnabled bool   `mapstructure:"indexes_enabled" json:"indexes_enabled"`
		IndexLists     int    `mapstructure:"index_lists" json:"index_lists"`
	} `mapstructure:"embeddings" json:"embeddings"`

	Snapchain struct {
		HTTPEndpoint string `mapstructure:"http_endpoint" json:"http_endpoint"`
		GRPCEndpoint string `mapstructure:"grpc_endpoint" json:"grpc_endpoint"`
	} `mapstructure:"snapchain" json:"snapchain"`

	Sync struct {
		ShardIDs             []uint32 `mapstructure:"shard_ids" json:"shard_ids"`
		BatchSize            uint32   `mapstructure:"batch_size" json:"batch_size"`
		IntervalMS           uint64   `mapstructure:"interval_ms" json:"interval_ms"`
		WorkersPerShard      uint32   `mapstructure:"workers_per_shard" json:"workers_per_shard"`
		EnableRealtimeSync   bool     `mapstructure:"enable_realtime_sync" json:"enable_realtime_sync"`
		EnableHistoricalSync bool     `mapstructure:"enable_historical_sync" json:"enable_historical_sync"`
	} `mapstructure:"sync" json:"sync"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// ConnectionTimeout returns the pool connect timeout as a duration.
func (c *Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.Database.ConnectionTimeoutS) * time.Second
}

// SyncInterval returns the poll cadence as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalMS) * time.Millisecond
}

// Validate checks the fields the ingestion pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Snapchain.GRPCEndpoint == "" {
		return fmt.Errorf("snapchain.grpc_endpoint is required")
	}
	if c.Sync.BatchSize == 0 {
		return fmt.Errorf("sync.batch_size must be positive")
	}
	if c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("database.min_connections exceeds max_connections")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 1)
	v.SetDefault("database.connection_timeout_s", 5)
	v.SetDefault("embeddings.dimension", 1536)
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.indexes_enabled", true)
	v.SetDefault("embeddings.index_lists", 100)
	v.SetDefault("snapchain.http_endpoint", "http://localhost:3381")
	v.SetDefault("snapchain.grpc_endpoint", "http://localhost:3383")
	v.SetDefault("sync.shard_ids", []uint32{0, 1, 2})
	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.interval_ms", 1000)
	v.SetDefault("sync.workers_per_shard", 1)
	v.SetDefault("sync.enable_realtime_sync", true)
	v.SetDefault("sync.enable_historical_sync", true)
	v.SetDefault("logging.level", "info")
}

// Load reads configuration files and merges any environment specific
// overrides. If env is empty, only the default configuration plus
// environment variables are used. A missing default.yaml is not an error;
// the defaults above apply.
func Load(env string) (*Config, error) {
	// .env values become plain environment variables, picked up below.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("default")
	v.AddConfigPath("config")
	v.AddConfigPath(".")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		v.SetConfigName(env)
		if err := v.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	v.SetEnvPrefix("SNAPRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration using the SNAPRAG_ENV environment variable
// to select the overlay file.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("SNAPRAG_ENV", ""))
}

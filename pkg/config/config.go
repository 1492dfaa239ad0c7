package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	SQLite  SQLiteConfig
	Catalog CatalogConfig
	Cache   CacheConfig
	Redis   RedisConfig
	Recs    RecsConfig
	LLM     LLMConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host                 string
	Port                 int
	ReadTimeout          int
	WriteTimeout         int
	BodyLimit            int
	MaxQueryLength       int
	MaxRequestsPerMinute int
	AllowedOrigins       []string
	IsDevelopment        bool
}

type SQLiteConfig struct {
	Path string
}

type CatalogConfig struct {
	// MovieLensDir holds movies.csv, ratings.csv and tags.csv.
	MovieLensDir string
	// LoadOnStart ingests MovieLensDir when the database has no movies yet.
	LoadOnStart bool
}

type CacheConfig struct {
	Dir     string
	Backend string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type RecsConfig struct {
	MinRatingCount int
	TopK           int
	ReturnK        int
	CountWeight    float64
}

type LLMConfig struct {
	Enabled     bool
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

const (
	CacheBackendBadger = "badger"
	CacheBackendRedis  = "redis"
	CacheBackendNone   = "none"
)

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/movierec")

	v.SetEnvPrefix("MOVIEREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Recs.MinRatingCount < 1 {
		errs = append(errs, fmt.Errorf("recs.minRatingCount must be >= 1, got %d", c.Recs.MinRatingCount))
	}
	if c.Recs.TopK < 1 {
		errs = append(errs, fmt.Errorf("recs.topK must be >= 1, got %d", c.Recs.TopK))
	}
	if c.Recs.ReturnK < 1 {
		errs = append(errs, fmt.Errorf("recs.returnK must be >= 1, got %d", c.Recs.ReturnK))
	}
	if c.Recs.ReturnK > c.Recs.TopK {
		errs = append(errs, fmt.Errorf("recs.returnK (%d) must not exceed recs.topK (%d)", c.Recs.ReturnK, c.Recs.TopK))
	}
	if c.Recs.CountWeight < 0 {
		errs = append(errs, fmt.Errorf("recs.countWeight must be >= 0, got %g", c.Recs.CountWeight))
	}

	switch c.Cache.Backend {
	case CacheBackendBadger:
		if c.Cache.Dir == "" {
			errs = append(errs, errors.New("cache.dir is required for the badger backend"))
		}
	case CacheBackendRedis, CacheBackendNone:
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}

	if c.LLM.Enabled && c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
		errs = append(errs, errors.New("llm.apiKey or llm.baseURL is required when llm.enabled is set"))
	}

	if c.SQLite.Path == "" {
		errs = append(errs, errors.New("sqlite.path is required"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.maxQueryLength", 2000)
	v.SetDefault("server.maxRequestsPerMinute", 120)
	v.SetDefault("server.isDevelopment", false)

	v.SetDefault("sqlite.path", "./data/movies.db")

	v.SetDefault("catalog.movielensDir", "./data/ml-latest-small")
	v.SetDefault("catalog.loadOnStart", true)

	v.SetDefault("cache.dir", "./data/cache")
	v.SetDefault("cache.backend", CacheBackendBadger)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("recs.minRatingCount", 20)
	v.SetDefault("recs.topK", 30)
	v.SetDefault("recs.returnK", 10)
	v.SetDefault("recs.countWeight", 0.25)

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.maxTokens", 512)
	v.SetDefault("llm.timeoutSec", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kapu/trendscope-go/internal/constants"
)

type Config struct {
	Analysis AnalysisConfig
	Upstream UpstreamConfig
	Sampling SamplingConfig
	Redis    RedisConfig
	History  HistoryConfig
	Gemini   GeminiConfig
	OpenAI   OpenAIConfig
	YouTube  YouTubeConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// Analysis modes
const (
	ModeCombined = "combined"
	ModeSplit    = "split"
	ModeLocal    = "local"
)

// History drivers
const (
	HistoryNone     = "none"
	HistoryPostgres = "postgres"
	HistorySQLite   = "sqlite"
)

type AnalysisConfig struct {
	Mode            string
	UseFallbackData bool
	DedupTTL        time.Duration
}

// UpstreamConfig holds endpoint URLs. Empty URLs are allowed at load time; the
// call path that needs one fails with a ConfigError.
type UpstreamConfig struct {
	RecommendationURL string
	TrendURL          string
	SentimentURL      string
	ProductsURL       string
	Timeout           time.Duration
	RatePerSecond     float64
	Burst             int
}

type SamplingConfig struct {
	VideoMin       int
	VideoMax       int
	VideoDefault   int
	CommentMin     int
	CommentMax     int
	CommentDefault int
}

type RedisConfig struct {
	Host           string
	Port           int
	Password       string
	DB             int
	ResultCacheTTL time.Duration
}

// Enabled reports whether a Redis result cache should be built.
func (r RedisConfig) Enabled() bool {
	return r.Host != "" && r.ResultCacheTTL > 0
}

type HistoryConfig struct {
	Driver     string
	SQLitePath string
	Postgres   PostgresConfig
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OpenAIConfig struct {
	APIKey         string
	Model          string
	EnableFallback bool
}

type YouTubeConfig struct {
	APIKey          string
	CredentialsFile string
}

type ServerConfig struct {
	Addr           string
	UploadMaxBytes int64
}

type LoggingConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the current environment without reading
// any .env file.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Analysis: AnalysisConfig{
			Mode:            strings.ToLower(getEnv("ANALYSIS_MODE", ModeCombined)),
			UseFallbackData: getEnvBool("USE_FALLBACK_DATA", false),
			DedupTTL:        getEnvDuration("DEDUP_TTL_SECONDS", time.Second, constants.DedupConfig.TTL),
		},
		Upstream: UpstreamConfig{
			RecommendationURL: getEnv("GEMINI_API_URL", ""),
			TrendURL:          getEnv("TREND_API_URL", ""),
			SentimentURL:      getEnv("SENTIMENT_API_URL", ""),
			ProductsURL:       strings.TrimRight(getEnv("PRODUCTS_API_URL", ""), "/"),
			Timeout:           getEnvDuration("UPSTREAM_TIMEOUT_SECONDS", time.Second, constants.APIConfig.DefaultTimeout),
			RatePerSecond:     getEnvFloat("UPSTREAM_RATE_PER_SECOND", constants.APIConfig.RateLimitPerSec),
			Burst:             getEnvInt("UPSTREAM_BURST", constants.APIConfig.RateLimitBurst),
		},
		Sampling: SamplingConfig{
			VideoMin:       getEnvInt("VIDEO_SAMPLE_MIN", constants.SampleBounds.VideoMin),
			VideoMax:       getEnvInt("VIDEO_SAMPLE_MAX", constants.SampleBounds.VideoMax),
			VideoDefault:   getEnvInt("VIDEO_SAMPLE_DEFAULT", constants.SampleBounds.VideoDefault),
			CommentMin:     getEnvInt("COMMENT_SAMPLE_MIN", constants.SampleBounds.CommentMin),
			CommentMax:     getEnvInt("COMMENT_SAMPLE_MAX", constants.SampleBounds.CommentMax),
			CommentDefault: getEnvInt("COMMENT_SAMPLE_DEFAULT", constants.SampleBounds.CommentDefault),
		},
		Redis: RedisConfig{
			Host:           getEnv("REDIS_HOST", ""),
			Port:           getEnvInt("REDIS_PORT", 6379),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvInt("REDIS_DB", 0),
			ResultCacheTTL: getEnvDuration("RESULT_CACHE_TTL_MINUTES", time.Minute, constants.CacheTTL.AnalysisResult),
		},
		History: HistoryConfig{
			Driver:     strings.ToLower(getEnv("HISTORY_DRIVER", HistoryNone)),
			SQLitePath: getEnv("SQLITE_PATH", "data/history.db"),
			Postgres: PostgresConfig{
				Host:     getEnv("POSTGRES_HOST", "localhost"),
				Port:     getEnvInt("POSTGRES_PORT", 5432),
				User:     getEnv("POSTGRES_USER", "trendscope"),
				Password: getEnv("POSTGRES_PASSWORD", ""),
				Database: getEnv("POSTGRES_DB", "trendscope"),
			},
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			Model:          getEnv("OPENAI_MODEL", "gpt-5-mini"),
			EnableFallback: getEnvBool("OPENAI_ENABLE_FALLBACK", true),
		},
		YouTube: YouTubeConfig{
			APIKey:          getEnv("YOUTUBE_API_KEY", ""),
			CredentialsFile: getEnv("YOUTUBE_CREDENTIALS_FILE", ""),
		},
		Server: ServerConfig{
			Addr:           getEnv("SERVER_ADDR", ":8080"),
			UploadMaxBytes: int64(getEnvInt("UPLOAD_MAX_BYTES", int(constants.UploadLimits.MaxBytes))),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Analysis.Mode {
	case ModeCombined, ModeSplit, ModeLocal:
	default:
		return fmt.Errorf("ANALYSIS_MODE must be one of combined, split, local (got %q)", c.Analysis.Mode)
	}
	if c.Analysis.DedupTTL < 0 {
		return fmt.Errorf("DEDUP_TTL_SECONDS must not be negative")
	}
	if c.Sampling.VideoMin <= 0 || c.Sampling.VideoMin > c.Sampling.VideoMax {
		return fmt.Errorf("invalid video sample bounds %d-%d", c.Sampling.VideoMin, c.Sampling.VideoMax)
	}
	if c.Sampling.CommentMin <= 0 || c.Sampling.CommentMin > c.Sampling.CommentMax {
		return fmt.Errorf("invalid comment sample bounds %d-%d", c.Sampling.CommentMin, c.Sampling.CommentMax)
	}
	if c.Sampling.VideoDefault < c.Sampling.VideoMin || c.Sampling.VideoDefault > c.Sampling.VideoMax {
		return fmt.Errorf("VIDEO_SAMPLE_DEFAULT %d outside bounds", c.Sampling.VideoDefault)
	}
	if c.Sampling.CommentDefault < c.Sampling.CommentMin || c.Sampling.CommentDefault > c.Sampling.CommentMax {
		return fmt.Errorf("COMMENT_SAMPLE_DEFAULT %d outside bounds", c.Sampling.CommentDefault)
	}
	if c.Upstream.RatePerSecond <= 0 || c.Upstream.Burst <= 0 {
		return fmt.Errorf("UPSTREAM_RATE_PER_SECOND and UPSTREAM_BURST must be positive")
	}
	switch c.History.Driver {
	case HistoryNone, HistoryPostgres, HistorySQLite:
	default:
		return fmt.Errorf("HISTORY_DRIVER must be one of none, postgres, sqlite (got %q)", c.History.Driver)
	}
	if c.Server.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration reads an integer count of unit.
func getEnvDuration(key string, unit time.Duration, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return time.Duration(intVal) * unit
		}
	}
	return defaultValue
}

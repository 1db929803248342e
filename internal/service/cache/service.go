package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/domain"
	apperrors "github.com/kapu/trendscope-go/pkg/errors"
)

const resultKeyPrefix = "trendscope:analysis:"

type CacheService struct {
	client *redis.Client
	logger *zap.Logger
}

type CacheConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func NewCacheService(cfg CacheConfig, logger *zap.Logger) (*CacheService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.NewCacheError("failed to connect to Redis", "ping", "", err)
	}

	logger.Info("Redis connected",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("db", cfg.DB),
	)

	return NewCacheServiceWithClient(client, logger), nil
}

func NewCacheServiceWithClient(client *redis.Client, logger *zap.Logger) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{
		client: client,
		logger: logger,
	}
}

// Get decodes the value at key into dest. found is false when the key is absent.
func (c *CacheService) Get(ctx context.Context, key string, dest any) (found bool, err error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		c.logger.Error("Cache get failed", zap.String("key", key), zap.Error(err))
		return false, apperrors.NewCacheError("get failed", "get", key, err)
	}

	if err := json.Unmarshal([]byte(value), dest); err != nil {
		c.logger.Error("Cache unmarshal failed", zap.String("key", key), zap.Error(err))
		return false, apperrors.NewCacheError("unmarshal failed", "get", key, err)
	}
	return true, nil
}

func (c *CacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return apperrors.NewCacheError("marshal failed", "set", key, err)
	}

	if err := c.client.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		c.logger.Error("Cache set failed", zap.String("key", key), zap.Error(err))
		return apperrors.NewCacheError("set failed", "set", key, err)
	}
	return nil
}

func (c *CacheService) Del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Error("Cache delete failed", zap.String("key", key), zap.Error(err))
		return apperrors.NewCacheError("delete failed", "del", key, err)
	}
	return nil
}

func (c *CacheService) Close() error {
	return c.client.Close()
}

// ResultCache stores live analysis outcomes keyed by request.
type ResultCache interface {
	GetOutcome(ctx context.Context, req domain.AnalysisRequest) (*domain.Outcome, bool, error)
	SetOutcome(ctx context.Context, req domain.AnalysisRequest, outcome *domain.Outcome) error
}

// RedisResultCache is the Redis-backed ResultCache.
type RedisResultCache struct {
	cache *CacheService
	ttl   time.Duration
}

func NewRedisResultCache(cache *CacheService, ttl time.Duration) *RedisResultCache {
	return &RedisResultCache{cache: cache, ttl: ttl}
}

func ResultKey(req domain.AnalysisRequest) string {
	return resultKeyPrefix + req.DedupKey()
}

func (r *RedisResultCache) GetOutcome(ctx context.Context, req domain.AnalysisRequest) (*domain.Outcome, bool, error) {
	var outcome domain.Outcome
	found, err := r.cache.Get(ctx, ResultKey(req), &outcome)
	if err != nil || !found {
		return nil, false, err
	}
	return &outcome, true, nil
}

// SetOutcome ignores fallback outcomes so substitute data is never served as
// cached live data.
func (r *RedisResultCache) SetOutcome(ctx context.Context, req domain.AnalysisRequest, outcome *domain.Outcome) error {
	if outcome == nil || outcome.IsFallback() {
		return nil
	}
	return r.cache.Set(ctx, ResultKey(req), outcome, r.ttl)
}

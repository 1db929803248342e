package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/config"
	"github.com/kapu/trendscope-go/internal/server"
	"github.com/kapu/trendscope-go/internal/service/analysis"
	"github.com/kapu/trendscope-go/internal/service/cache"
	"github.com/kapu/trendscope-go/internal/service/database"
	"github.com/kapu/trendscope-go/internal/service/fallback"
	"github.com/kapu/trendscope-go/internal/service/history"
	"github.com/kapu/trendscope-go/internal/service/inventory"
	"github.com/kapu/trendscope-go/internal/service/llm"
	"github.com/kapu/trendscope-go/internal/service/parser"
	"github.com/kapu/trendscope-go/internal/service/youtube"
	"github.com/kapu/trendscope-go/internal/upstream"
)

// Container bundles the assembled services shared by the CLI commands.
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Analysis  *analysis.Service
	Inventory *inventory.Service
	History   history.Store

	closers []func()
}

// NewServer wires the HTTP API over the container's services.
func (c *Container) NewServer() *server.Server {
	return server.New(c.Config.Server, server.Deps{
		Analyzer: c.Analysis,
		Uploader: c.Inventory,
		History:  c.History,
		Logger:   c.Logger,
	})
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build assembles all infrastructure services. Optional backends (result cache,
// language model, YouTube) are skipped with a warning when not configured, unless
// the analysis mode needs them.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c := &Container{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// Upstream endpoints
	client := upstream.NewClient(upstream.Options{
		Timeout:       cfg.Upstream.Timeout,
		RatePerSecond: cfg.Upstream.RatePerSecond,
		Burst:         cfg.Upstream.Burst,
	}, logger)
	api := upstream.NewAPI(client, cfg.Upstream)

	fallbackSrc, err := fallback.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load fallback dataset: %w", err)
	}

	// Result cache
	var resultCache cache.ResultCache
	if cfg.Redis.Enabled() {
		cacheSvc, cacheErr := cache.NewCacheService(cache.CacheConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if cacheErr != nil {
			logger.Warn("Result cache unavailable, continuing without it", zap.Error(cacheErr))
		} else {
			c.closers = append(c.closers, func() {
				_ = cacheSvc.Close()
			})
			resultCache = cache.NewRedisResultCache(cacheSvc, cfg.Redis.ResultCacheTTL)
		}
	}

	// History
	store, err := c.openHistory(ctx)
	if err != nil {
		return nil, err
	}
	c.History = store

	// Model and comments, needed by local mode
	localMode := cfg.Analysis.Mode == config.ModeLocal

	var generator llm.Generator
	manager, llmErr := llm.NewManager(ctx, llm.ManagerConfig{
		GeminiAPIKey:       cfg.Gemini.APIKey,
		OpenAIAPIKey:       cfg.OpenAI.APIKey,
		DefaultGeminiModel: cfg.Gemini.Model,
		DefaultOpenAIModel: cfg.OpenAI.Model,
		EnableFallback:     cfg.OpenAI.EnableFallback,
	}, logger)
	switch {
	case llmErr == nil:
		generator = manager
	case localMode:
		return nil, fmt.Errorf("failed to create model manager: %w", llmErr)
	default:
		logger.Debug("Language model not configured", zap.Error(llmErr))
	}

	var comments youtube.CommentSource
	if localMode {
		ytSvc, ytErr := youtube.NewService(ctx, cfg.YouTube, logger)
		if ytErr != nil {
			return nil, fmt.Errorf("failed to create YouTube service: %w", ytErr)
		}
		comments = ytSvc
	}

	c.Analysis = analysis.NewService(analysis.Config{
		Analysis: cfg.Analysis,
		Sampling: cfg.Sampling,
	}, analysis.Deps{
		Upstream:  api,
		Generator: generator,
		Comments:  comments,
		Fallback:  fallbackSrc,
		Cache:     resultCache,
		History:   store,
		Parser:    parser.New(),
		Logger:    logger,
	})

	// Product uploads are not idempotent; never retry them.
	uploadClient := upstream.NewClient(upstream.Options{
		Timeout:       cfg.Upstream.Timeout,
		RatePerSecond: cfg.Upstream.RatePerSecond,
		Burst:         cfg.Upstream.Burst,
		MaxAttempts:   1,
	}, logger.Named("upload"))
	c.Inventory = inventory.NewService(uploadClient, cfg.Upstream.ProductsURL, cfg.Server.UploadMaxBytes, logger)

	logger.Info("Services assembled",
		zap.String("mode", cfg.Analysis.Mode),
		zap.Bool("fallback_only", cfg.Analysis.UseFallbackData),
		zap.Bool("result_cache", resultCache != nil),
		zap.String("history", cfg.History.Driver),
		zap.Bool("llm", generator != nil),
	)
	return c, nil
}

func (c *Container) openHistory(ctx context.Context) (history.Store, error) {
	repo, err := c.OpenHistoryRepository(ctx)
	if err != nil || repo == nil {
		return history.Nop{}, err
	}
	return repo, nil
}

// OpenHistoryRepository opens the configured history database and ensures its
// schema. It returns nil when HISTORY_DRIVER is none.
func (c *Container) OpenHistoryRepository(ctx context.Context) (*history.Repository, error) {
	var (
		db  *database.DB
		err error
	)
	switch c.Config.History.Driver {
	case config.HistoryPostgres:
		pg := c.Config.History.Postgres
		db, err = database.NewPostgres(database.PostgresConfig{
			Host:     pg.Host,
			Port:     pg.Port,
			User:     pg.User,
			Password: pg.Password,
			Database: pg.Database,
		}, c.Logger)
	case config.HistorySQLite:
		db, err = database.NewSQLite(c.Config.History.SQLitePath, c.Logger)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	c.closers = append(c.closers, func() {
		_ = db.Close()
	})

	repo := history.NewRepository(db, nil, c.Logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// Package analysis answers analysis requests: it de-duplicates them, talks to
// the configured upstreams and falls back to the bundled dataset on failure.
package analysis

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/config"
	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/service/cache"
	"github.com/kapu/trendscope-go/internal/service/dedup"
	"github.com/kapu/trendscope-go/internal/service/fallback"
	"github.com/kapu/trendscope-go/internal/service/history"
	"github.com/kapu/trendscope-go/internal/service/llm"
	"github.com/kapu/trendscope-go/internal/service/parser"
	"github.com/kapu/trendscope-go/internal/service/youtube"
	"github.com/kapu/trendscope-go/internal/util"
	"github.com/kapu/trendscope-go/pkg/errors"
)

// Upstream is the analytics API surface. *upstream.API satisfies it.
type Upstream interface {
	FetchCombined(ctx context.Context, req domain.CombinedRequest) (*domain.UpstreamAnalysis, error)
	FetchRecommendation(ctx context.Context, req domain.CombinedRequest) (string, error)
	FetchTrend(ctx context.Context, req domain.TrendRequest) ([]domain.TimelineEntry, error)
	FetchSentiment(ctx context.Context, req domain.SentimentRequest) ([]domain.CommentSentiment, error)
}

type Config struct {
	Analysis config.AnalysisConfig
	Sampling config.SamplingConfig
}

// Deps are the collaborators. Upstream and Fallback are required; the rest may
// be nil (Generator and Comments are then reported as missing configuration in
// local mode).
type Deps struct {
	Upstream  Upstream
	Generator llm.Generator
	Comments  youtube.CommentSource
	Fallback  *fallback.Source
	Cache     cache.ResultCache
	History   history.Store
	Parser    *parser.Parser
	Clock     util.Clock
	Logger    *zap.Logger
}

type Service struct {
	cfg       Config
	upstream  Upstream
	generator llm.Generator
	comments  youtube.CommentSource
	fallback  *fallback.Source
	cache     cache.ResultCache
	history   history.Store
	parser    *parser.Parser
	group     *dedup.Group[*domain.Outcome]
	logger    *zap.Logger
}

func NewService(cfg Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	p := deps.Parser
	if p == nil {
		p = parser.New()
	}
	store := deps.History
	if store == nil {
		store = history.Nop{}
	}
	return &Service{
		cfg:       cfg,
		upstream:  deps.Upstream,
		generator: deps.Generator,
		comments:  deps.Comments,
		fallback:  deps.Fallback,
		cache:     deps.Cache,
		history:   store,
		parser:    p,
		group:     dedup.New[*domain.Outcome](cfg.Analysis.DedupTTL, deps.Clock, logger),
		logger:    logger,
	}
}

// FetchAnalysis returns a best-effort outcome for req. Only validation and
// configuration problems are returned as errors; every other failure yields the
// fallback dataset with Source=fallback.
func (s *Service) FetchAnalysis(ctx context.Context, req domain.AnalysisRequest) (*domain.Outcome, error) {
	req = Normalize(req, s.cfg.Sampling)
	if err := Validate(req, s.cfg.Sampling); err != nil {
		return nil, err
	}

	if s.cfg.Analysis.UseFallbackData {
		s.logger.Info("Serving fallback data", zap.String("keyword", req.Keyword), zap.String("reason", "USE_FALLBACK_DATA"))
		return s.fallback.Outcome(req, "USE_FALLBACK_DATA enabled"), nil
	}

	outcome, shared, err := s.group.Do(ctx, req.DedupKey(), func(ctx context.Context) (*domain.Outcome, error) {
		return s.fetch(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("Analysis shared with concurrent request", zap.String("key", req.DedupKey()))
	}
	return outcome, nil
}

func (s *Service) fetch(ctx context.Context, req domain.AnalysisRequest) (*domain.Outcome, error) {
	if cached, ok := s.readCache(ctx, req); ok {
		return cached, nil
	}

	result, err := s.fetchLive(ctx, req)
	if err != nil {
		var cfgErr *errors.ConfigError
		if stderrors.As(err, &cfgErr) {
			s.logger.Error("Analysis misconfigured", zap.String("setting", cfgErr.Setting), zap.Error(err))
			return nil, err
		}
		s.logger.Warn("Analysis upstream failed, using fallback data",
			zap.String("keyword", req.Keyword),
			zap.String("mode", s.cfg.Analysis.Mode),
			zap.Error(err),
		)
		outcome := s.fallback.Outcome(req, err.Error())
		s.record(ctx, req, outcome)
		return outcome, nil
	}

	outcome := &domain.Outcome{Result: result, Source: domain.SourceLive}
	s.writeCache(ctx, req, outcome)
	s.record(ctx, req, outcome)

	s.logger.Info("Analysis completed",
		zap.String("keyword", req.Keyword),
		zap.String("mode", s.cfg.Analysis.Mode),
		zap.Int("trend_points", len(result.TrendData)),
		zap.Int("recommendations", len(result.Recommendations)),
	)
	return outcome, nil
}

func (s *Service) fetchLive(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	switch s.cfg.Analysis.Mode {
	case config.ModeSplit:
		return s.fetchSplit(ctx, req)
	case config.ModeLocal:
		return s.fetchLocal(ctx, req)
	default:
		return s.fetchCombined(ctx, req)
	}
}

func (s *Service) readCache(ctx context.Context, req domain.AnalysisRequest) (*domain.Outcome, bool) {
	if s.cache == nil {
		return nil, false
	}
	outcome, found, err := s.cache.GetOutcome(ctx, req)
	if err != nil {
		s.logger.Warn("Result cache read failed", zap.Error(err))
		return nil, false
	}
	if found {
		s.logger.Debug("Result cache hit", zap.String("key", req.DedupKey()))
	}
	return outcome, found
}

func (s *Service) writeCache(ctx context.Context, req domain.AnalysisRequest, outcome *domain.Outcome) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetOutcome(ctx, req, outcome); err != nil {
		s.logger.Warn("Result cache write failed", zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, req domain.AnalysisRequest, outcome *domain.Outcome) {
	if err := s.history.Save(ctx, req, outcome); err != nil {
		s.logger.Warn("Failed to save analysis history", zap.Error(err))
	}
}

// assemble builds the result from already-normalized series and raw model text.
func (s *Service) assemble(req domain.AnalysisRequest, trend []domain.TrendPoint, sentiment []domain.SentimentPoint, text string) *domain.AnalysisResult {
	interp := s.parser.Interpret(text)
	if trend == nil {
		trend = []domain.TrendPoint{}
	}
	return &domain.AnalysisResult{
		Keyword:            req.Keyword,
		DateRange:          req.DateRange(),
		TrendData:          trend,
		SentimentData:      sentiment,
		Analysis:           interp.Analysis,
		Recommendations:    interp.Recommendations,
		StructuredAnalysis: interp.Structured,
	}
}

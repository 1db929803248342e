package analysis

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/prompt"
	"github.com/kapu/trendscope-go/internal/service/llm"
	"github.com/kapu/trendscope-go/internal/service/normalize"
	"github.com/kapu/trendscope-go/pkg/errors"
)

const (
	scoringBatchSize   = 50
	scoringConcurrency = 3
)

func combinedRequest(req domain.AnalysisRequest) domain.CombinedRequest {
	return domain.CombinedRequest{
		Product:      req.Keyword,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		VideoCount:   req.VideoSampleSize,
		CommentCount: req.CommentSampleSize,
	}
}

func trendRequest(req domain.AnalysisRequest) domain.TrendRequest {
	return domain.TrendRequest{
		Product:   req.Keyword,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
}

func (s *Service) fetchCombined(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	payload, err := s.upstream.FetchCombined(ctx, combinedRequest(req))
	if err != nil {
		return nil, err
	}
	return s.assemble(req,
		normalize.Trend(payload.Timeline, s.logger),
		normalize.SentimentFromChart(payload.ChartData),
		payload.Recommendation,
	), nil
}

// fetchSplit issues the three sub-calls concurrently and assembles once all of
// them settled. A failed recommendation leaves the text empty.
func (s *Service) fetchSplit(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	var (
		timeline []domain.TimelineEntry
		comments []domain.CommentSentiment
		text     string
	)

	p := pool.New().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		var err error
		timeline, err = s.upstream.FetchTrend(ctx, trendRequest(req))
		if err != nil {
			return fmt.Errorf("trend: %w", err)
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		var err error
		comments, err = s.upstream.FetchSentiment(ctx, domain.SentimentRequest{
			Topic:             req.Keyword,
			SearchMaxResults:  req.VideoSampleSize,
			CommentMaxResults: req.CommentSampleSize,
		})
		if err != nil {
			return fmt.Errorf("sentiment: %w", err)
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		rec, err := s.upstream.FetchRecommendation(ctx, combinedRequest(req))
		if err != nil {
			var cfgErr *errors.ConfigError
			if stderrors.As(err, &cfgErr) {
				return err
			}
			s.logger.Warn("Recommendation unavailable, continuing without it",
				zap.String("keyword", req.Keyword), zap.Error(err))
			return nil
		}
		text = rec
		return nil
	})

	if err := p.Wait(); err != nil {
		return nil, err
	}

	return s.assemble(req,
		normalize.Trend(timeline, s.logger),
		normalize.SentimentFromComments(comments),
		text,
	), nil
}

// fetchLocal pulls the trend from upstream, samples YouTube comments, scores them
// with the model and asks the model for the recommendation.
func (s *Service) fetchLocal(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	if s.comments == nil {
		return nil, errors.NewConfigError("local analysis needs YouTube access", "YOUTUBE_API_KEY")
	}
	if s.generator == nil {
		return nil, errors.NewConfigError("local analysis needs a language model", "GEMINI_API_KEY")
	}

	var (
		timeline []domain.TimelineEntry
		comments []string
	)

	p := pool.New().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		var err error
		timeline, err = s.upstream.FetchTrend(ctx, trendRequest(req))
		if err != nil {
			return fmt.Errorf("trend: %w", err)
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		var err error
		comments, err = s.comments.SampleComments(ctx, req)
		if err != nil {
			return fmt.Errorf("comments: %w", err)
		}
		return nil
	})
	if err := p.Wait(); err != nil {
		return nil, err
	}

	scores, err := s.scoreComments(ctx, req.Keyword, comments)
	if err != nil {
		return nil, err
	}

	trend := normalize.Trend(timeline, s.logger)
	sentiment := normalize.SentimentFromScores(scores)

	text, err := s.generateRecommendation(ctx, req, len(comments), trend, sentiment)
	if err != nil {
		s.logger.Warn("Recommendation unavailable, continuing without it",
			zap.String("keyword", req.Keyword), zap.Error(err))
		text = ""
	}

	return s.assemble(req, trend, sentiment, text), nil
}

type commentScore struct {
	Index     int     `json:"index"`
	Sentiment float64 `json:"sentiment"`
}

// scoreComments labels comments in batches. Comments the model skipped are
// left out of the distribution.
func (s *Service) scoreComments(ctx context.Context, keyword string, comments []string) ([]float64, error) {
	if len(comments) == 0 {
		return nil, nil
	}

	var (
		mu     sync.Mutex
		scores = make([]float64, 0, len(comments))
	)

	p := pool.New().WithContext(ctx).WithMaxGoroutines(scoringConcurrency)
	for start := 0; start < len(comments); start += scoringBatchSize {
		end := min(start+scoringBatchSize, len(comments))
		batch := comments[start:end]

		p.Go(func(ctx context.Context) error {
			pr, err := prompt.BuildCommentSentimentPrompt(prompt.CommentSentimentVars{Keyword: keyword, Comments: batch})
			if err != nil {
				return err
			}

			var labeled []commentScore
			if _, err := s.generator.GenerateJSON(ctx, pr.User, llm.PresetPrecise, &labeled, &llm.GenerateOptions{System: pr.System}); err != nil {
				return fmt.Errorf("comment scoring: %w", err)
			}

			batchScores := make([]float64, 0, len(labeled))
			for _, l := range labeled {
				if l.Index < 0 || l.Index >= len(batch) {
					continue
				}
				batchScores = append(batchScores, l.Sentiment)
			}

			mu.Lock()
			scores = append(scores, batchScores...)
			mu.Unlock()
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (s *Service) generateRecommendation(ctx context.Context, req domain.AnalysisRequest, commentCount int, trend []domain.TrendPoint, sentiment []domain.SentimentPoint) (string, error) {
	pr, err := prompt.BuildRecommendationPrompt(prompt.RecommendationVars{
		Keyword:      req.Keyword,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		CommentCount: commentCount,
		Trend:        trend,
		Sentiment:    sentiment,
	})
	if err != nil {
		return "", err
	}

	text, _, err := s.generator.GenerateText(ctx, pr.User, llm.PresetCreative, &llm.GenerateOptions{System: pr.System})
	return text, err
}

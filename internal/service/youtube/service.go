package youtube

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/kapu/trendscope-go/internal/config"
	"github.com/kapu/trendscope-go/internal/constants"
	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/util"
	apperrors "github.com/kapu/trendscope-go/pkg/errors"
)

const maxCommentPage = 100

// CommentSource yields raw comment texts about a keyword.
type CommentSource interface {
	SampleComments(ctx context.Context, req domain.AnalysisRequest) ([]string, error)
}

// Service samples top-level comments from videos matching a keyword, with local
// accounting of the daily Data API quota.
type Service struct {
	service    *youtube.Service
	clock      util.Clock
	logger     *zap.Logger
	quotaUsed  int
	quotaMu    sync.Mutex
	quotaReset time.Time
}

// NewService authenticates with the API key when set, otherwise with the
// service-account credentials file.
func NewService(ctx context.Context, cfg config.YouTubeConfig, logger *zap.Logger) (*Service, error) {
	var opts []option.ClientOption
	switch {
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	case cfg.CredentialsFile != "":
		credBytes, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read credentials file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, credBytes, youtube.YoutubeReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse credentials: %w", err)
		}
		opts = append(opts, option.WithHTTPClient(oauth2.NewClient(ctx, creds.TokenSource)))
	default:
		return nil, apperrors.NewConfigError("YOUTUBE_API_KEY or YOUTUBE_CREDENTIALS_FILE is required for local analysis", "YOUTUBE_API_KEY")
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	return NewServiceWithClient(svc, nil, logger), nil
}

func NewServiceWithClient(svc *youtube.Service, clock util.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = util.RealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ys := &Service{
		service: svc,
		clock:   clock,
		logger:  logger,
	}
	ys.quotaReset = nextQuotaReset(clock.Now())

	logger.Info("YouTube comment source initialized", zap.Time("quotaReset", ys.quotaReset))
	return ys
}

// nextQuotaReset is the next midnight Pacific Time, when the Data API quota resets.
func nextQuotaReset(now time.Time) time.Time {
	pt, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		pt = time.FixedZone("PST", -8*60*60)
	}
	local := now.In(pt)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, pt)
}

func (ys *Service) checkQuota(cost int) error {
	ys.quotaMu.Lock()
	defer ys.quotaMu.Unlock()

	now := ys.clock.Now()
	if now.After(ys.quotaReset) {
		ys.quotaUsed = 0
		ys.quotaReset = nextQuotaReset(now)
		ys.logger.Info("YouTube API quota auto-reset", zap.Time("nextReset", ys.quotaReset))
	}

	limit := constants.YouTubeQuota.DailyLimit - constants.YouTubeQuota.SafetyMargin
	if ys.quotaUsed+cost > limit {
		return &QuotaExceededError{
			Used:      ys.quotaUsed,
			Limit:     constants.YouTubeQuota.DailyLimit,
			Requested: cost,
			ResetTime: ys.quotaReset,
		}
	}
	return nil
}

func (ys *Service) consumeQuota(cost int) {
	ys.quotaMu.Lock()
	defer ys.quotaMu.Unlock()

	ys.quotaUsed += cost
	remaining := constants.YouTubeQuota.DailyLimit - ys.quotaUsed

	ys.logger.Debug("YouTube API quota consumed",
		zap.Int("cost", cost),
		zap.Int("used", ys.quotaUsed),
		zap.Int("remaining", remaining),
	)
	if remaining < constants.YouTubeQuota.SafetyMargin {
		ys.logger.Warn("YouTube API quota running low",
			zap.Int("remaining", remaining),
			zap.Time("resetTime", ys.quotaReset))
	}
}

// SampleComments searches up to VideoSampleSize videos published in the request's
// date range and gathers top-level comments until CommentSampleSize is reached.
func (ys *Service) SampleComments(ctx context.Context, req domain.AnalysisRequest) ([]string, error) {
	videoIDs, err := ys.searchVideos(ctx, req)
	if err != nil {
		return nil, err
	}

	comments := make([]string, 0, req.CommentSampleSize)
	for _, id := range videoIDs {
		if len(comments) >= req.CommentSampleSize {
			break
		}
		batch, err := ys.videoComments(ctx, id, req.CommentSampleSize-len(comments))
		if err != nil {
			var quotaErr *QuotaExceededError
			if errors.As(err, &quotaErr) || ctx.Err() != nil {
				return nil, err
			}
			ys.logger.Debug("Skipping video comments", zap.String("video_id", id), zap.Error(err))
			continue
		}
		comments = append(comments, batch...)
	}

	ys.logger.Info("YouTube comments sampled",
		zap.String("keyword", req.Keyword),
		zap.Int("videos", len(videoIDs)),
		zap.Int("comments", len(comments)),
	)
	return comments, nil
}

func (ys *Service) searchVideos(ctx context.Context, req domain.AnalysisRequest) ([]string, error) {
	start, end, err := publishedWindow(req)
	if err != nil {
		return nil, err
	}

	var ids []string
	pageToken := ""
	for len(ids) < req.VideoSampleSize {
		if err := ys.checkQuota(constants.YouTubeQuota.SearchCost); err != nil {
			return nil, err
		}

		pageSize := int64(req.VideoSampleSize - len(ids))
		if pageSize > constants.YouTubeQuota.MaxPageSize {
			pageSize = constants.YouTubeQuota.MaxPageSize
		}

		call := ys.service.Search.List([]string{"id"}).
			Q(req.Keyword).
			Type("video").
			Order("relevance").
			PublishedAfter(start).
			PublishedBefore(end).
			MaxResults(pageSize)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		response, err := call.Context(ctx).Do()
		if err != nil {
			return nil, ys.apiError(err, constants.YouTubeQuota.SearchCost)
		}
		ys.consumeQuota(constants.YouTubeQuota.SearchCost)

		for _, item := range response.Items {
			if item.Id == nil || item.Id.VideoId == "" {
				continue
			}
			ids = append(ids, item.Id.VideoId)
		}

		pageToken = response.NextPageToken
		if pageToken == "" || len(response.Items) == 0 {
			break
		}
	}

	if len(ids) > req.VideoSampleSize {
		ids = ids[:req.VideoSampleSize]
	}
	return ids, nil
}

func (ys *Service) videoComments(ctx context.Context, videoID string, limit int) ([]string, error) {
	if err := ys.checkQuota(constants.YouTubeQuota.CommentsCost); err != nil {
		return nil, err
	}
	if limit > maxCommentPage {
		limit = maxCommentPage
	}

	response, err := ys.service.CommentThreads.List([]string{"snippet"}).
		VideoId(videoID).
		MaxResults(int64(limit)).
		Order("relevance").
		TextFormat("plainText").
		Context(ctx).
		Do()
	if err != nil {
		return nil, ys.apiError(err, constants.YouTubeQuota.CommentsCost)
	}
	ys.consumeQuota(constants.YouTubeQuota.CommentsCost)

	comments := make([]string, 0, len(response.Items))
	for _, item := range response.Items {
		if item.Snippet == nil || item.Snippet.TopLevelComment == nil || item.Snippet.TopLevelComment.Snippet == nil {
			continue
		}
		text := item.Snippet.TopLevelComment.Snippet.TextDisplay
		if text == "" {
			text = item.Snippet.TopLevelComment.Snippet.TextOriginal
		}
		if text != "" {
			comments = append(comments, text)
		}
		if len(comments) >= limit {
			break
		}
	}
	return comments, nil
}

// apiError maps a quotaExceeded 403 onto QuotaExceededError.
func (ys *Service) apiError(err error, cost int) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 403 {
		for _, item := range apiErr.Errors {
			if item.Reason == "quotaExceeded" || item.Reason == "dailyLimitExceeded" {
				ys.quotaMu.Lock()
				defer ys.quotaMu.Unlock()
				return &QuotaExceededError{
					Used:      ys.quotaUsed,
					Limit:     constants.YouTubeQuota.DailyLimit,
					Requested: cost,
					ResetTime: ys.quotaReset,
				}
			}
		}
	}
	return fmt.Errorf("YouTube API error: %w", err)
}

// publishedWindow turns the request's inclusive dates into RFC3339 bounds.
func publishedWindow(req domain.AnalysisRequest) (string, string, error) {
	start, err := time.Parse(domain.DateLayout, req.StartDate)
	if err != nil {
		return "", "", fmt.Errorf("invalid start date %q: %w", req.StartDate, err)
	}
	end, err := time.Parse(domain.DateLayout, req.EndDate)
	if err != nil {
		return "", "", fmt.Errorf("invalid end date %q: %w", req.EndDate, err)
	}
	return start.Format(time.RFC3339), end.AddDate(0, 0, 1).Format(time.RFC3339), nil
}

func (ys *Service) GetQuotaStatus() (used int, remaining int, resetTime time.Time) {
	ys.quotaMu.Lock()
	defer ys.quotaMu.Unlock()

	if ys.clock.Now().After(ys.quotaReset) {
		return 0, constants.YouTubeQuota.DailyLimit, nextQuotaReset(ys.clock.Now())
	}
	return ys.quotaUsed, constants.YouTubeQuota.DailyLimit - ys.quotaUsed, ys.quotaReset
}

type QuotaExceededError struct {
	Used      int
	Limit     int
	Requested int
	ResetTime time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("YouTube API quota exceeded: used %d/%d (requested %d more), resets at %s",
		e.Used, e.Limit, e.Requested, e.ResetTime.Format(time.RFC3339))
}

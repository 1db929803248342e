package analysis

import (
	"fmt"
	"time"

	"github.com/kapu/trendscope-go/internal/config"
	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/pkg/errors"
)

// Normalize trims the keyword and fills zero sample sizes with the configured
// defaults. It does not validate.
func Normalize(req domain.AnalysisRequest, bounds config.SamplingConfig) domain.AnalysisRequest {
	req.Keyword = domain.NormalizeKeyword(req.Keyword)
	if req.VideoSampleSize == 0 {
		req.VideoSampleSize = bounds.VideoDefault
	}
	if req.CommentSampleSize == 0 {
		req.CommentSampleSize = bounds.CommentDefault
	}
	return req
}

func Validate(req domain.AnalysisRequest, bounds config.SamplingConfig) error {
	if req.Keyword == "" {
		return errors.NewValidationError("keyword is required", "keyword", req.Keyword)
	}

	start, err := time.Parse(domain.DateLayout, req.StartDate)
	if err != nil {
		return errors.NewValidationError("startDate must be YYYY-MM-DD", "startDate", req.StartDate)
	}
	end, err := time.Parse(domain.DateLayout, req.EndDate)
	if err != nil {
		return errors.NewValidationError("endDate must be YYYY-MM-DD", "endDate", req.EndDate)
	}
	if end.Before(start) {
		return errors.NewValidationError("endDate must not be before startDate", "endDate", req.EndDate)
	}

	if req.VideoSampleSize < bounds.VideoMin || req.VideoSampleSize > bounds.VideoMax {
		return errors.NewValidationError(
			fmt.Sprintf("videoCount must be between %d and %d", bounds.VideoMin, bounds.VideoMax),
			"videoCount", req.VideoSampleSize)
	}
	if req.CommentSampleSize < bounds.CommentMin || req.CommentSampleSize > bounds.CommentMax {
		return errors.NewValidationError(
			fmt.Sprintf("commentCount must be between %d and %d", bounds.CommentMin, bounds.CommentMax),
			"commentCount", req.CommentSampleSize)
	}
	return nil
}

package upstream

import (
	"context"

	"github.com/kapu/trendscope-go/internal/config"
	"github.com/kapu/trendscope-go/internal/domain"
)

// API binds a Client to the configured analysis endpoints.
type API struct {
	client    *Client
	endpoints config.UpstreamConfig
}

func NewAPI(client *Client, endpoints config.UpstreamConfig) *API {
	return &API{client: client, endpoints: endpoints}
}

func (a *API) Client() *Client {
	return a.client
}

// FetchCombined calls the single-call analysis endpoint.
func (a *API) FetchCombined(ctx context.Context, req domain.CombinedRequest) (*domain.UpstreamAnalysis, error) {
	body, err := a.client.Post(ctx, "GEMINI_API_URL", a.endpoints.RecommendationURL, req)
	if err != nil {
		return nil, err
	}
	return DecodeCombined(body, a.endpoints.RecommendationURL)
}

// FetchRecommendation calls the same endpoint as FetchCombined but only keeps the
// recommendation text.
func (a *API) FetchRecommendation(ctx context.Context, req domain.CombinedRequest) (string, error) {
	body, err := a.client.Post(ctx, "GEMINI_API_URL", a.endpoints.RecommendationURL, req)
	if err != nil {
		return "", err
	}
	return DecodeRecommendation(body), nil
}

func (a *API) FetchTrend(ctx context.Context, req domain.TrendRequest) ([]domain.TimelineEntry, error) {
	body, err := a.client.Post(ctx, "TREND_API_URL", a.endpoints.TrendURL, req)
	if err != nil {
		return nil, err
	}
	return DecodeTimeline(body, a.endpoints.TrendURL)
}

func (a *API) FetchSentiment(ctx context.Context, req domain.SentimentRequest) ([]domain.CommentSentiment, error) {
	body, err := a.client.Post(ctx, "SENTIMENT_API_URL", a.endpoints.SentimentURL, req)
	if err != nil {
		return nil, err
	}
	return DecodeComments(body, a.endpoints.SentimentURL)
}

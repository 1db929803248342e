package analysis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/config"
	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/service/fallback"
	"github.com/kapu/trendscope-go/internal/service/llm"
	"github.com/kapu/trendscope-go/internal/service/parser"
	"github.com/kapu/trendscope-go/internal/util"
	"github.com/kapu/trendscope-go/pkg/errors"
)

const sampleText = `1. Overall Analysis:
Interest in the product is climbing steadily.

2. Recommendation:
Increase stock ahead of the holiday season.

3. Justification for the Recommendation:
Search interest rose for three months.

4. Estimated Number of Units:
120 units

5. Important Considerations:
- Watch competitor pricing closely
- Battery complaints could hurt reviews

6. Disclaimer:
Estimates only.`

type fakeUpstream struct {
	combinedCalls atomic.Int32
	release       chan struct{}

	combined    *domain.UpstreamAnalysis
	combinedErr error

	timeline    []domain.TimelineEntry
	trendErr    error
	comments    []domain.CommentSentiment
	sentErr     error
	text        string
	textErr     error
	splitCalls  atomic.Int32
	lastSentReq domain.SentimentRequest
	mu          sync.Mutex
}

func (f *fakeUpstream) FetchCombined(ctx context.Context, req domain.CombinedRequest) (*domain.UpstreamAnalysis, error) {
	f.combinedCalls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.combined, f.combinedErr
}

func (f *fakeUpstream) FetchRecommendation(ctx context.Context, req domain.CombinedRequest) (string, error) {
	f.splitCalls.Add(1)
	return f.text, f.textErr
}

func (f *fakeUpstream) FetchTrend(ctx context.Context, req domain.TrendRequest) ([]domain.TimelineEntry, error) {
	f.splitCalls.Add(1)
	return f.timeline, f.trendErr
}

func (f *fakeUpstream) FetchSentiment(ctx context.Context, req domain.SentimentRequest) ([]domain.CommentSentiment, error) {
	f.splitCalls.Add(1)
	f.mu.Lock()
	f.lastSentReq = req
	f.mu.Unlock()
	return f.comments, f.sentErr
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*domain.Outcome
	sets    int
}

func (c *fakeCache) GetOutcome(ctx context.Context, req domain.AnalysisRequest) (*domain.Outcome, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.entries[req.DedupKey()]
	return o, ok, nil
}

func (c *fakeCache) SetOutcome(ctx context.Context, req domain.AnalysisRequest, outcome *domain.Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]*domain.Outcome{}
	}
	c.entries[req.DedupKey()] = outcome
	c.sets++
	return nil
}

type fakeHistory struct {
	mu    sync.Mutex
	saved []*domain.Outcome
}

func (h *fakeHistory) Save(ctx context.Context, req domain.AnalysisRequest, outcome *domain.Outcome) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saved = append(h.saved, outcome)
	return nil
}

func (h *fakeHistory) Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	return nil, nil
}

type fakeComments struct {
	comments []string
	err      error
}

func (f *fakeComments) SampleComments(ctx context.Context, req domain.AnalysisRequest) ([]string, error) {
	return f.comments, f.err
}

type fakeGenerator struct {
	text     string
	textErr  error
	scores   string
	jsonErr  error
	jsonHits atomic.Int32
}

func (g *fakeGenerator) GenerateText(ctx context.Context, prompt string, preset llm.ModelPreset, opts *llm.GenerateOptions) (string, *llm.GenerateMetadata, error) {
	return g.text, &llm.GenerateMetadata{}, g.textErr
}

func (g *fakeGenerator) GenerateJSON(ctx context.Context, prompt string, preset llm.ModelPreset, dest any, opts *llm.GenerateOptions) (*llm.GenerateMetadata, error) {
	g.jsonHits.Add(1)
	if g.jsonErr != nil {
		return nil, g.jsonErr
	}
	return &llm.GenerateMetadata{}, json.Unmarshal([]byte(g.scores), dest)
}

func floatPtr(v float64) *float64 { return &v }

func testRequest() domain.AnalysisRequest {
	return domain.AnalysisRequest{
		Keyword:           "iPhone",
		StartDate:         "2025-01-01",
		EndDate:           "2025-03-01",
		VideoSampleSize:   50,
		CommentSampleSize: 100,
	}
}

func testSampling() config.SamplingConfig {
	return config.SamplingConfig{
		VideoMin: 10, VideoMax: 200, VideoDefault: 50,
		CommentMin: 50, CommentMax: 500, CommentDefault: 100,
	}
}

func newTestService(t *testing.T, mode string, deps Deps) *Service {
	t.Helper()
	fb, err := fallback.New()
	if err != nil {
		t.Fatalf("fallback dataset: %v", err)
	}
	deps.Fallback = fb
	if deps.Clock == nil {
		deps.Clock = util.NewManualClock(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC))
	}
	deps.Logger = zap.NewNop()
	deps.Parser = parser.New()

	return NewService(Config{
		Analysis: config.AnalysisConfig{Mode: mode, DedupTTL: 5 * time.Second},
		Sampling: testSampling(),
	}, deps)
}

func TestCombinedModeAssemblesResult(t *testing.T) {
	up := &fakeUpstream{combined: &domain.UpstreamAnalysis{
		Timeline: []domain.TimelineEntry{
			{Date: "Jan 5, 2025", Interest: floatPtr(40)},
			{Date: "Feb 2, 2025", Value: floatPtr(55)},
		},
		ChartData: []domain.ChartDatum{
			{Sentiment: "positive", Value: 60.4},
			{Sentiment: "NEGATIVE", Value: 10},
		},
		Recommendation: sampleText,
	}}
	hist := &fakeHistory{}
	svc := newTestService(t, config.ModeCombined, Deps{Upstream: up, History: hist})

	outcome, err := svc.FetchAnalysis(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.IsFallback() {
		t.Fatalf("expected live outcome, got fallback: %s", outcome.FallbackReason)
	}

	res := outcome.Result
	if res.DateRange != "2025-01-01 - 2025-03-01" {
		t.Fatalf("unexpected date range %q", res.DateRange)
	}
	if len(res.TrendData) != 2 || res.TrendData[0].Date != "2025-01-05" || res.TrendData[1].Interest != 55 {
		t.Fatalf("unexpected trend %+v", res.TrendData)
	}
	want := []domain.SentimentPoint{
		{Sentiment: "Positive", Value: 60},
		{Sentiment: "Neutral", Value: 0},
		{Sentiment: "Negative", Value: 10},
	}
	for i, p := range want {
		if res.SentimentData[i] != p {
			t.Fatalf("sentiment[%d] = %+v, want %+v", i, res.SentimentData[i], p)
		}
	}
	if res.Analysis != "Interest in the product is climbing steadily." {
		t.Fatalf("unexpected analysis %q", res.Analysis)
	}
	if len(res.Recommendations) != 3 || res.Recommendations[0] != "Increase stock ahead of the holiday season." {
		t.Fatalf("unexpected recommendations %v", res.Recommendations)
	}
	if res.StructuredAnalysis.EstimatedUnits != "120 units" {
		t.Fatalf("unexpected units %q", res.StructuredAnalysis.EstimatedUnits)
	}
	if len(hist.saved) != 1 {
		t.Fatalf("expected one history entry, got %d", len(hist.saved))
	}
}

func TestConcurrentIdenticalRequestsShareOneUpstreamCall(t *testing.T) {
	up := &fakeUpstream{
		release:  make(chan struct{}),
		combined: &domain.UpstreamAnalysis{Recommendation: sampleText},
	}
	svc := newTestService(t, config.ModeCombined, Deps{Upstream: up})

	const callers = 10
	var wg sync.WaitGroup
	outcomes := make([]*domain.Outcome, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Untrimmed keyword must map to the same key.
			req := testRequest()
			if i%2 == 0 {
				req.Keyword = "  iPhone "
			}
			outcomes[i], _ = svc.FetchAnalysis(context.Background(), req)
		}(i)
	}

	// Let the callers join before the upstream answers.
	for svc.group.Len() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(up.release)
	wg.Wait()

	if got := up.combinedCalls.Load(); got != 1 {
		t.Fatalf("expected one upstream call, got %d", got)
	}
	for i, o := range outcomes {
		if o == nil || o != outcomes[0] {
			t.Fatalf("caller %d did not share the outcome", i)
		}
	}
}

func TestUpstreamFailureFallsBack(t *testing.T) {
	up := &fakeUpstream{combinedErr: errors.NewAPIError("upstream returned 502", 502, nil)}
	cache := &fakeCache{}
	hist := &fakeHistory{}
	svc := newTestService(t, config.ModeCombined, Deps{Upstream: up, Cache: cache, History: hist})

	outcome, err := svc.FetchAnalysis(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("transport errors must not surface: %v", err)
	}
	if !outcome.IsFallback() || !strings.Contains(outcome.FallbackReason, "502") {
		t.Fatalf("expected fallback outcome, got %+v", outcome)
	}
	if outcome.Result.Keyword != "iPhone" || len(outcome.Result.Recommendations) == 0 {
		t.Fatalf("unexpected fallback result %+v", outcome.Result)
	}
	if cache.sets != 0 {
		t.Fatalf("fallback outcome must not be cached")
	}
	if len(hist.saved) != 1 || !hist.saved[0].IsFallback() {
		t.Fatalf("fallback outcome should be recorded in history")
	}
}

func TestConfigErrorIsFatal(t *testing.T) {
	up := &fakeUpstream{combinedErr: errors.NewConfigError("GEMINI_API_URL is not configured", "GEMINI_API_URL")}
	svc := newTestService(t, config.ModeCombined, Deps{Upstream: up})

	outcome, err := svc.FetchAnalysis(context.Background(), testRequest())
	var cfgErr *errors.ConfigError
	if !stderrors.As(err, &cfgErr) || outcome != nil {
		t.Fatalf("expected ConfigError, got outcome=%v err=%v", outcome, err)
	}
}

func TestValidation(t *testing.T) {
	svc := newTestService(t, config.ModeCombined, Deps{Upstream: &fakeUpstream{}})

	cases := []struct {
		name  string
		mut   func(*domain.AnalysisRequest)
		field string
	}{
		{"blank keyword", func(r *domain.AnalysisRequest) { r.Keyword = "   " }, "keyword"},
		{"bad start", func(r *domain.AnalysisRequest) { r.StartDate = "01/01/2025" }, "startDate"},
		{"end before start", func(r *domain.AnalysisRequest) { r.EndDate = "2024-12-31" }, "endDate"},
		{"too many videos", func(r *domain.AnalysisRequest) { r.VideoSampleSize = 500 }, "videoCount"},
		{"too few comments", func(r *domain.AnalysisRequest) { r.CommentSampleSize = 5 }, "commentCount"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := testRequest()
			tc.mut(&req)
			_, err := svc.FetchAnalysis(context.Background(), req)
			var vErr *errors.ValidationError
			if !stderrors.As(err, &vErr) || vErr.Field != tc.field {
				t.Fatalf("expected validation error on %s, got %v", tc.field, err)
			}
		})
	}
}

func TestZeroSampleSizesUseDefaults(t *testing.T) {
	req := Normalize(domain.AnalysisRequest{Keyword: " Laptop "}, testSampling())
	if req.Keyword != "Laptop" || req.VideoSampleSize != 50 || req.CommentSampleSize != 100 {
		t.Fatalf("unexpected normalized request %+v", req)
	}
}

func TestUseFallbackDataSkipsUpstream(t *testing.T) {
	up := &fakeUpstream{}
	svc := newTestService(t, config.ModeCombined, Deps{Upstream: up})
	svc.cfg.Analysis.UseFallbackData = true

	outcome, err := svc.FetchAnalysis(context.Background(), testRequest())
	if err != nil || !outcome.IsFallback() {
		t.Fatalf("expected fallback outcome, got %+v %v", outcome, err)
	}
	if up.combinedCalls.Load() != 0 {
		t.Fatalf("upstream must not be called")
	}
}

func TestCachedOutcomeSkipsUpstream(t *testing.T) {
	up := &fakeUpstream{combined: &domain.UpstreamAnalysis{Recommendation: sampleText}}
	cached := &domain.Outcome{Result: &domain.AnalysisResult{Keyword: "cached"}, Source: domain.SourceLive}
	cache := &fakeCache{entries: map[string]*domain.Outcome{testRequest().DedupKey(): cached}}
	svc := newTestService(t, config.ModeCombined, Deps{Upstream: up, Cache: cache})

	outcome, err := svc.FetchAnalysis(context.Background(), testRequest())
	if err != nil || outcome != cached {
		t.Fatalf("expected cached outcome, got %+v %v", outcome, err)
	}
	if up.combinedCalls.Load() != 0 {
		t.Fatalf("upstream must not be called on cache hit")
	}
}

func TestSplitModeRecommendationFailureDegrades(t *testing.T) {
	up := &fakeUpstream{
		timeline: []domain.TimelineEntry{{Date: "2025-01", Interest: floatPtr(30)}},
		comments: []domain.CommentSentiment{{Sentiment: 1}, {Sentiment: -1}, {Sentiment: 0}, {Sentiment: 2}, {Sentiment: -3}},
		textErr:  fmt.Errorf("timeout"),
	}
	svc := newTestService(t, config.ModeSplit, Deps{Upstream: up})

	outcome, err := svc.FetchAnalysis(context.Background(), testRequest())
	if err != nil || outcome.IsFallback() {
		t.Fatalf("expected live outcome, got %+v %v", outcome, err)
	}
	if up.splitCalls.Load() != 3 {
		t.Fatalf("expected three sub-calls, got %d", up.splitCalls.Load())
	}
	if up.lastSentReq.Topic != "iPhone" || up.lastSentReq.SearchMaxResults != 50 || up.lastSentReq.CommentMaxResults != 100 {
		t.Fatalf("unexpected sentiment request %+v", up.lastSentReq)
	}

	res := outcome.Result
	if res.SentimentData[0].Value != 40 || res.SentimentData[1].Value != 20 || res.SentimentData[2].Value != 40 {
		t.Fatalf("unexpected sentiment %+v", res.SentimentData)
	}
	if len(res.Recommendations) != len(parser.GenericRecommendations) || res.Recommendations[0] != parser.GenericRecommendations[0] {
		t.Fatalf("expected generic recommendations, got %v", res.Recommendations)
	}
}

func TestSplitModeRecommendationConfigErrorIsFatal(t *testing.T) {
	up := &fakeUpstream{
		timeline: []domain.TimelineEntry{{Date: "2025-01", Interest: floatPtr(30)}},
		comments: []domain.CommentSentiment{{Sentiment: 1}},
		textErr:  errors.NewConfigError("GEMINI_API_URL is not configured", "GEMINI_API_URL"),
	}
	svc := newTestService(t, config.ModeSplit, Deps{Upstream: up})

	outcome, err := svc.FetchAnalysis(context.Background(), testRequest())
	var cfgErr *errors.ConfigError
	if !stderrors.As(err, &cfgErr) || outcome != nil {
		t.Fatalf("expected config error, got %+v %v", outcome, err)
	}
	if cfgErr.Setting != "GEMINI_API_URL" {
		t.Fatalf("unexpected setting %q", cfgErr.Setting)
	}
}

func TestSplitModeTrendFailureFallsBack(t *testing.T) {
	up := &fakeUpstream{trendErr: fmt.Errorf("connection reset"), text: sampleText}
	svc := newTestService(t, config.ModeSplit, Deps{Upstream: up})

	outcome, err := svc.FetchAnalysis(context.Background(), testRequest())
	if err != nil || !outcome.IsFallback() {
		t.Fatalf("expected fallback outcome, got %+v %v", outcome, err)
	}
	if !strings.Contains(outcome.FallbackReason, "trend") {
		t.Fatalf("reason should name the failing call: %q", outcome.FallbackReason)
	}
}

func TestLocalModeScoresComments(t *testing.T) {
	up := &fakeUpstream{timeline: []domain.TimelineEntry{{Date: "2025-01", Interest: floatPtr(70)}}}
	gen := &fakeGenerator{
		text:   sampleText,
		scores: `[{"index":0,"sentiment":0.8},{"index":1,"sentiment":-0.5},{"index":2,"sentiment":0},{"index":3,"sentiment":0.2},{"index":9,"sentiment":1}]`,
	}
	comments := &fakeComments{comments: []string{"great camera", "battery dies fast", "ok", "love it"}}
	svc := newTestService(t, config.ModeLocal, Deps{Upstream: up, Generator: gen, Comments: comments})

	outcome, err := svc.FetchAnalysis(context.Background(), testRequest())
	if err != nil || outcome.IsFallback() {
		t.Fatalf("expected live outcome, got %+v %v", outcome, err)
	}
	if gen.jsonHits.Load() != 1 {
		t.Fatalf("expected one scoring batch, got %d", gen.jsonHits.Load())
	}

	// Out-of-range index 9 is ignored: 2 positive, 1 neutral, 1 negative.
	want := []int{50, 25, 25}
	for i, v := range want {
		if outcome.Result.SentimentData[i].Value != v {
			t.Fatalf("sentiment %+v, want %v", outcome.Result.SentimentData, want)
		}
	}
	if outcome.Result.StructuredAnalysis.Recommendation != "Increase stock ahead of the holiday season." {
		t.Fatalf("unexpected recommendation %q", outcome.Result.StructuredAnalysis.Recommendation)
	}
}

func TestLocalModeWithoutYouTubeIsConfigError(t *testing.T) {
	svc := newTestService(t, config.ModeLocal, Deps{Upstream: &fakeUpstream{}, Generator: &fakeGenerator{}})

	_, err := svc.FetchAnalysis(context.Background(), testRequest())
	var cfgErr *errors.ConfigError
	if !stderrors.As(err, &cfgErr) || cfgErr.Setting != "YOUTUBE_API_KEY" {
		t.Fatalf("expected YOUTUBE_API_KEY config error, got %v", err)
	}
}

func TestDedupWindowExpires(t *testing.T) {
	clock := util.NewManualClock(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC))
	up := &fakeUpstream{combined: &domain.UpstreamAnalysis{Recommendation: sampleText}}
	svc := newTestService(t, config.ModeCombined, Deps{Upstream: up, Clock: clock})

	for i := 0; i < 2; i++ {
		if _, err := svc.FetchAnalysis(context.Background(), testRequest()); err != nil {
			t.Fatalf("fetch: %v", err)
		}
	}
	if up.combinedCalls.Load() != 1 {
		t.Fatalf("repeat inside window should reuse, got %d calls", up.combinedCalls.Load())
	}

	clock.Advance(5 * time.Second)
	if _, err := svc.FetchAnalysis(context.Background(), testRequest()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if up.combinedCalls.Load() != 2 {
		t.Fatalf("expected a new call after expiry, got %d", up.combinedCalls.Load())
	}
}

package upstream

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/pkg/errors"
)

// Upstream payloads drift between producers, so decoding looks a field up under
// several paths and treats anything missing as zero.
var (
	timelinePaths       = []string{"analysis.trend.timeline", "trend.timeline", "timeline", "interest_over_time.timeline_data"}
	chartPaths          = []string{"analysis.sentiment.chartData", "sentiment.chartData", "chartData"}
	recommendationPaths = []string{"recommendation", "analysis.recommendation", "text"}
	commentPaths        = []string{"comments", "results", "data"}
)

func firstArray(doc gjson.Result, paths []string) []gjson.Result {
	for _, p := range paths {
		if r := doc.Get(p); r.IsArray() {
			return r.Array()
		}
	}
	return nil
}

func firstString(doc gjson.Result, paths []string) string {
	for _, p := range paths {
		if r := doc.Get(p); r.Type == gjson.String {
			return r.String()
		}
	}
	return ""
}

func parseDocument(body []byte, url string) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.NewAPIError("failed to decode response", 502, map[string]any{
			"url":  url,
			"body": preview(body),
		})
	}
	return gjson.ParseBytes(body), nil
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// DecodeCombined reads the single-call analysis payload.
func DecodeCombined(body []byte, url string) (*domain.UpstreamAnalysis, error) {
	doc, err := parseDocument(body, url)
	if err != nil {
		return nil, err
	}
	return &domain.UpstreamAnalysis{
		Timeline:       decodeTimeline(firstArray(doc, timelinePaths)),
		ChartData:      decodeChart(firstArray(doc, chartPaths)),
		Recommendation: firstString(doc, recommendationPaths),
	}, nil
}

// DecodeTimeline accepts either a bare array of entries or an object holding one.
func DecodeTimeline(body []byte, url string) ([]domain.TimelineEntry, error) {
	doc, err := parseDocument(body, url)
	if err != nil {
		return nil, err
	}
	if doc.IsArray() {
		return decodeTimeline(doc.Array()), nil
	}
	return decodeTimeline(firstArray(doc, timelinePaths)), nil
}

// DecodeComments accepts either a bare array of scored comments or an object
// holding one.
func DecodeComments(body []byte, url string) ([]domain.CommentSentiment, error) {
	doc, err := parseDocument(body, url)
	if err != nil {
		return nil, err
	}
	items := firstArray(doc, commentPaths)
	if doc.IsArray() {
		items = doc.Array()
	}

	comments := make([]domain.CommentSentiment, 0, len(items))
	for _, item := range items {
		comments = append(comments, domain.CommentSentiment{
			Comment:   item.Get("comment").String(),
			Sentiment: item.Get("sentiment").Float(),
		})
	}
	return comments, nil
}

// DecodeRecommendation returns the recommendation text. A non-JSON body is the
// text itself.
func DecodeRecommendation(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if !gjson.Valid(trimmed) {
		return trimmed
	}
	doc := gjson.Parse(trimmed)
	if doc.Type == gjson.String {
		return doc.String()
	}
	return firstString(doc, recommendationPaths)
}

func decodeTimeline(items []gjson.Result) []domain.TimelineEntry {
	entries := make([]domain.TimelineEntry, 0, len(items))
	for _, item := range items {
		entry := domain.TimelineEntry{
			Date:      item.Get("date").String(),
			Timestamp: item.Get("timestamp").String(),
		}
		if r := item.Get("interest"); r.Type == gjson.Number {
			v := r.Float()
			entry.Interest = &v
		}
		if r := item.Get("value"); r.Type == gjson.Number {
			v := r.Float()
			entry.Value = &v
		}
		for _, val := range item.Get("values").Array() {
			entry.Values = append(entry.Values, domain.TrendValue{
				Query:          val.Get("query").String(),
				Value:          val.Get("value").String(),
				ExtractedValue: val.Get("extracted_value").Float(),
			})
		}
		entries = append(entries, entry)
	}
	return entries
}

func decodeChart(items []gjson.Result) []domain.ChartDatum {
	data := make([]domain.ChartDatum, 0, len(items))
	for _, item := range items {
		data = append(data, domain.ChartDatum{
			Sentiment: item.Get("sentiment").String(),
			Value:     item.Get("value").Float(),
		})
	}
	return data
}

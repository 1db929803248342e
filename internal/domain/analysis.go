package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for request dates.
const DateLayout = "2006-01-02"

// AnalysisRequest is immutable once issued; all five fields form its identity.
type AnalysisRequest struct {
	Keyword           string `json:"keyword"`
	StartDate         string `json:"startDate"`
	EndDate           string `json:"endDate"`
	VideoSampleSize   int    `json:"videoCount"`
	CommentSampleSize int    `json:"commentCount"`
}

// DedupKey serializes the request tuple for inflight de-duplication.
func (r AnalysisRequest) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s|%d|%d", r.Keyword, r.StartDate, r.EndDate, r.VideoSampleSize, r.CommentSampleSize)
}

// DateRange renders the "<start> - <end>" label shown on reports.
func (r AnalysisRequest) DateRange() string {
	return fmt.Sprintf("%s - %s", r.StartDate, r.EndDate)
}

func (r AnalysisRequest) String() string {
	return r.DedupKey()
}

type TrendPoint struct {
	Date     string  `json:"date"`
	Interest float64 `json:"interest"`
}

// Sentiment labels, in the order they are always reported.
const (
	SentimentPositive = "Positive"
	SentimentNeutral  = "Neutral"
	SentimentNegative = "Negative"
)

var SentimentOrder = []string{SentimentPositive, SentimentNeutral, SentimentNegative}

type SentimentPoint struct {
	Sentiment string `json:"sentiment"`
	Value     int    `json:"value"`
}

// StructuredAnalysis is the segmented form of the model's recommendation text.
// Every field is empty when its section could not be located.
type StructuredAnalysis struct {
	OverallAnalysis string   `json:"overallAnalysis"`
	Recommendation  string   `json:"recommendation"`
	Justification   string   `json:"justification,omitempty"`
	EstimatedUnits  string   `json:"estimatedUnits"`
	Considerations  []string `json:"considerations"`
	Disclaimer      string   `json:"disclaimer"`
}

// IsEmpty reports whether no section was extracted.
func (s *StructuredAnalysis) IsEmpty() bool {
	if s == nil {
		return true
	}
	return s.OverallAnalysis == "" && s.Recommendation == "" && s.Justification == "" &&
		s.EstimatedUnits == "" && len(s.Considerations) == 0 && s.Disclaimer == ""
}

type AnalysisResult struct {
	Keyword            string              `json:"keyword"`
	DateRange          string              `json:"dateRange"`
	TrendData          []TrendPoint        `json:"trendData"`
	SentimentData      []SentimentPoint    `json:"sentimentData"`
	Analysis           string              `json:"analysis"`
	Recommendations    []string            `json:"recommendations"`
	StructuredAnalysis *StructuredAnalysis `json:"structuredAnalysis,omitempty"`
}

// ResultSource tells callers whether they got live data or the substitute dataset.
type ResultSource string

const (
	SourceLive     ResultSource = "live"
	SourceFallback ResultSource = "fallback"
)

// Outcome is what the analysis service hands to its callers. Fatal errors
// (configuration, validation) are returned as errors and never wrapped here.
type Outcome struct {
	Result         *AnalysisResult `json:"result"`
	Source         ResultSource    `json:"source"`
	FallbackReason string          `json:"fallbackReason,omitempty"`
}

func (o *Outcome) IsFallback() bool {
	return o != nil && o.Source == SourceFallback
}

// HistoryEntry is a stored outcome.
type HistoryEntry struct {
	ID        int64        `json:"id"`
	Key       string       `json:"key"`
	Keyword   string       `json:"keyword"`
	Source    ResultSource `json:"source"`
	Outcome   *Outcome     `json:"outcome"`
	CreatedAt time.Time    `json:"createdAt"`
}

// NormalizeKeyword trims surrounding whitespace.
func NormalizeKeyword(keyword string) string {
	return strings.TrimSpace(keyword)
}

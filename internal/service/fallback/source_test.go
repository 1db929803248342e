package fallback

import (
	"testing"

	"github.com/kapu/trendscope-go/internal/domain"
)

func TestMatch(t *testing.T) {
	src, err := New()
	if err != nil {
		t.Fatalf("load dataset: %v", err)
	}

	tests := map[string]string{
		"iphone 15":         "iPhone",
		"ANDROID":           "Android",
		"lap":               "Laptop",
		"gaming laptop":     "Laptop",
		"mirrorless camera": "Camera",
		"toaster":           "iPhone",
	}
	for keyword, want := range tests {
		if got := src.Match(keyword); got != want {
			t.Errorf("Match(%q) = %q, want %q", keyword, got, want)
		}
	}
}

func TestResultCarriesRequest(t *testing.T) {
	src, err := New()
	if err != nil {
		t.Fatalf("load dataset: %v", err)
	}

	req := domain.AnalysisRequest{Keyword: "Smart Camera", StartDate: "2025-01-01", EndDate: "2025-03-01"}
	out := src.Outcome(req, "upstream unavailable")

	if !out.IsFallback() || out.FallbackReason != "upstream unavailable" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	res := out.Result
	if res.Keyword != "Smart Camera" || res.DateRange != "2025-01-01 - 2025-03-01" {
		t.Fatalf("unexpected header %q %q", res.Keyword, res.DateRange)
	}
	if len(res.TrendData) != 6 || res.TrendData[0].Interest != 35 {
		t.Fatalf("expected camera trend, got %+v", res.TrendData)
	}
	if res.SentimentData[0].Value != 60 || res.SentimentData[2].Sentiment != domain.SentimentNegative {
		t.Fatalf("unexpected sentiment %+v", res.SentimentData)
	}
	if len(res.Recommendations) == 0 {
		t.Fatalf("fallback recommendations must not be empty")
	}

	res.Recommendations[0] = "changed"
	if src.Result(req).Recommendations[0] == "changed" {
		t.Fatalf("results must not share backing arrays")
	}
}

func TestParseRejectsEmptyDataset(t *testing.T) {
	if _, err := Parse([]byte("products: []")); err == nil {
		t.Fatalf("expected error for empty dataset")
	}
	if _, err := Parse([]byte("products:\n  - name: X\n")); err == nil {
		t.Fatalf("expected error for product without recommendations")
	}
}

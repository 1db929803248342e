package export

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kapu/trendscope-go/internal/domain"
)

func sampleResult() *domain.AnalysisResult {
	return &domain.AnalysisResult{
		Keyword:   "Gaming Laptop <Pro>",
		DateRange: "2025-01-01 - 2025-03-01",
		TrendData: []domain.TrendPoint{
			{Date: "2025-01-05", Interest: 42},
			{Date: "2025-02-02", Interest: 57.5},
		},
		SentimentData: []domain.SentimentPoint{
			{Sentiment: "Positive", Value: 40},
			{Sentiment: "Neutral", Value: 20},
			{Sentiment: "Negative", Value: 40},
		},
		Analysis: "Demand is \"rising\", steadily.\n\nSecond paragraph & notes.",
		Recommendations: []string{
			"Increase stock by 20%, starting in March",
			"Watch competitor pricing",
		},
		StructuredAnalysis: &domain.StructuredAnalysis{
			OverallAnalysis: "Demand is rising.",
			Recommendation:  "Increase stock by 20%, starting in March",
			Justification:   "Interest rose three months in a row.",
			EstimatedUnits:  "120 units",
			Considerations:  []string{"Watch competitor pricing", "Battery complaints, mostly minor"},
			Disclaimer:      "Estimates only.",
		},
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("Gaming  Laptop\tPro", FormatCSV); got != "analysis_Gaming_Laptop_Pro.csv" {
		t.Fatalf("unexpected file name %q", got)
	}
	if got := FileName("iPhone", FormatHTML); got != "analysis_iPhone.html" {
		t.Fatalf("unexpected file name %q", got)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatCSV, "CSV": FormatCSV, " html ": FormatHTML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Fatalf("expected error for pdf")
	}
}

func TestCSVRoundTrip(t *testing.T) {
	want := sampleResult()

	var buf bytes.Buffer
	if err := WriteCSV(&buf, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "Analysis Results for,Gaming Laptop <Pro>\n") {
		t.Fatalf("unexpected header:\n%s", buf.String())
	}

	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch\n got: %+v\nwant: %+v", got, want)
	}
}

func TestCSVWithoutStructuredAnalysis(t *testing.T) {
	want := sampleResult()
	want.StructuredAnalysis = nil

	var buf bytes.Buffer
	if err := WriteCSV(&buf, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.StructuredAnalysis != nil {
		t.Fatalf("expected no structured analysis, got %+v", got.StructuredAnalysis)
	}
	if !reflect.DeepEqual(got.Recommendations, want.Recommendations) {
		t.Fatalf("recommendations mismatch: %v", got.Recommendations)
	}
}

func TestHTMLRoundTrip(t *testing.T) {
	want := sampleResult()

	var buf bytes.Buffer
	if err := WriteHTML(&buf, want, time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("write: %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, "Generated on: 2025-03-05") {
		t.Fatalf("missing generated date")
	}
	if strings.Contains(html, "<Pro>") {
		t.Fatalf("keyword was not escaped")
	}

	got, err := ReadHTML(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch\n got: %+v\nwant: %+v", got, want)
	}
}

func TestReadHTMLRejectsForeignDocument(t *testing.T) {
	if _, err := ReadHTML(strings.NewReader("<html><body><p>hello</p></body></html>")); err == nil {
		t.Fatalf("expected error")
	}
}

package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/service/parser"
)

const (
	csvTitle           = "Analysis Results for"
	csvDateRange       = "Date Range"
	csvTrendHeader     = "TREND DATA"
	csvSentimentHeader = "SENTIMENT DATA"
	csvAnalysisHeader  = "ANALYSIS"
	csvSectionsHeader  = "STRUCTURED ANALYSIS"
	csvRecsHeader      = "RECOMMENDATIONS"
)

// WriteCSV writes result as a multi-block CSV document. Blocks are separated by
// blank lines and introduced by a single-field header row.
func WriteCSV(w io.Writer, result *domain.AnalysisResult) error {
	if result == nil {
		return errors.New("nil analysis result")
	}

	cw := csv.NewWriter(w)
	var records [][]string
	add := func(fields ...string) { records = append(records, fields) }

	add(csvTitle, result.Keyword)
	add(csvDateRange, result.DateRange)
	add()

	add(csvTrendHeader)
	add("Date", "Interest")
	for _, p := range result.TrendData {
		add(p.Date, strconv.FormatFloat(p.Interest, 'f', -1, 64))
	}
	add()

	add(csvSentimentHeader)
	add("Sentiment", "Value")
	for _, p := range result.SentimentData {
		add(p.Sentiment, strconv.Itoa(p.Value))
	}
	add()

	add(csvAnalysisHeader)
	add(result.Analysis)
	add()

	if s := result.StructuredAnalysis; s != nil {
		add(csvSectionsHeader)
		for _, sec := range structuredSections(s) {
			add(sec.Section.String(), sec.Text)
		}
		for _, c := range s.Considerations {
			add(parser.SectionConsiderations.String(), c)
		}
		add()
	}

	add(csvRecsHeader)
	for _, r := range result.Recommendations {
		add(r)
	}

	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// ReadCSV parses a document produced by WriteCSV.
func ReadCSV(r io.Reader) (*domain.AnalysisResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	result := &domain.AnalysisResult{
		TrendData:       []domain.TrendPoint{},
		SentimentData:   []domain.SentimentPoint{},
		Recommendations: []string{},
	}

	block := ""
	for i, rec := range records {
		if len(rec) == 1 && isCSVHeader(rec[0]) {
			block = rec[0]
			continue
		}

		switch block {
		case "":
			if len(rec) != 2 {
				continue
			}
			switch rec[0] {
			case csvTitle:
				result.Keyword = rec[1]
			case csvDateRange:
				result.DateRange = rec[1]
			}
		case csvTrendHeader:
			if len(rec) != 2 || (rec[0] == "Date" && rec[1] == "Interest") {
				continue
			}
			v, err := strconv.ParseFloat(rec[1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid interest %q", i+1, rec[1])
			}
			result.TrendData = append(result.TrendData, domain.TrendPoint{Date: rec[0], Interest: v})
		case csvSentimentHeader:
			if len(rec) != 2 || (rec[0] == "Sentiment" && rec[1] == "Value") {
				continue
			}
			v, err := strconv.Atoi(rec[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid sentiment value %q", i+1, rec[1])
			}
			result.SentimentData = append(result.SentimentData, domain.SentimentPoint{Sentiment: rec[0], Value: v})
		case csvAnalysisHeader:
			result.Analysis = strings.Join(rec, ",")
		case csvSectionsHeader:
			if len(rec) != 2 {
				continue
			}
			if result.StructuredAnalysis == nil {
				result.StructuredAnalysis = &domain.StructuredAnalysis{Considerations: []string{}}
			}
			setSection(result.StructuredAnalysis, rec[0], rec[1])
		case csvRecsHeader:
			result.Recommendations = append(result.Recommendations, strings.Join(rec, ","))
		}
	}

	return result, nil
}

func isCSVHeader(s string) bool {
	switch s {
	case csvTrendHeader, csvSentimentHeader, csvAnalysisHeader, csvSectionsHeader, csvRecsHeader:
		return true
	}
	return false
}

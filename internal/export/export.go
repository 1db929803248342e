// Package export renders analysis results as downloadable reports and reads
// them back.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/service/parser"
	"github.com/kapu/trendscope-go/internal/util"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// ParseFormat accepts "csv" and "html" in any case. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

func (f Format) ContentType() string {
	if f == FormatHTML {
		return "text/html; charset=utf-8"
	}
	return "text/csv; charset=utf-8"
}

// FileName builds "analysis_<keyword>.<ext>" with whitespace runs replaced by "_".
func FileName(keyword string, f Format) string {
	return fmt.Sprintf("analysis_%s.%s", util.FileSafe(keyword), f)
}

// Write renders result in format f. generatedAt only appears in HTML reports.
func Write(w io.Writer, f Format, result *domain.AnalysisResult, generatedAt time.Time) error {
	switch f {
	case FormatHTML:
		return WriteHTML(w, result, generatedAt)
	default:
		return WriteCSV(w, result)
	}
}

type sectionText struct {
	Section parser.Section
	Text    string
}

// structuredSections lists the single-text sections in report order.
// Considerations are rendered separately as a list.
func structuredSections(s *domain.StructuredAnalysis) []sectionText {
	if s == nil {
		return nil
	}
	return []sectionText{
		{parser.SectionOverallAnalysis, s.OverallAnalysis},
		{parser.SectionRecommendation, s.Recommendation},
		{parser.SectionJustification, s.Justification},
		{parser.SectionEstimatedUnits, s.EstimatedUnits},
		{parser.SectionDisclaimer, s.Disclaimer},
	}
}

func setSection(s *domain.StructuredAnalysis, name, text string) {
	switch name {
	case parser.SectionOverallAnalysis.String():
		s.OverallAnalysis = text
	case parser.SectionRecommendation.String():
		s.Recommendation = text
	case parser.SectionJustification.String():
		s.Justification = text
	case parser.SectionEstimatedUnits.String():
		s.EstimatedUnits = text
	case parser.SectionConsiderations.String():
		s.Considerations = append(s.Considerations, text)
	case parser.SectionDisclaimer.String():
		s.Disclaimer = text
	}
}

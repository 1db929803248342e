package export

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/service/parser"
)

const (
	htmlTitlePrefix     = "Analysis Report: "
	htmlDateRangePrefix = "Date Range: "
)

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Analysis Report: {{.Result.Keyword}}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; margin-bottom: 1.5em; }
th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: left; }
.content { white-space: pre-wrap; }
</style>
</head>
<body>
<h1 id="title">Analysis Report: {{.Result.Keyword}}</h1>
<p id="date-range">Date Range: {{.Result.DateRange}}</p>
<p id="generated">Generated on: {{.GeneratedOn}}</p>

<h2>Trend Data</h2>
<table id="trend-data">
<tr><th>Date</th><th>Interest</th></tr>
{{- range .Trend}}
<tr><td>{{.Date}}</td><td>{{.Interest}}</td></tr>
{{- end}}
</table>

<h2>Sentiment Data</h2>
<table id="sentiment-data">
<tr><th>Sentiment</th><th>Value</th></tr>
{{- range .Result.SentimentData}}
<tr><td>{{.Sentiment}}</td><td>{{.Value}}</td></tr>
{{- end}}
</table>

<h2>Analysis Conclusions</h2>
<div id="analysis" class="content">{{.Result.Analysis}}</div>
{{- range .Sections}}
<section class="structured" data-section="{{.Name}}">
<h3>{{.Name}}</h3>
<div class="content">{{.Text}}</div>
</section>
{{- end}}
{{- if .HasStructured}}
<section class="structured" data-section="{{.ConsiderationsName}}">
<h3>{{.ConsiderationsName}}</h3>
<ul>
{{- range .Considerations}}
<li class="content">{{.}}</li>
{{- end}}
</ul>
</section>
{{- end}}

<h2>Recommendations</h2>
<ol id="recommendations">
{{- range .Result.Recommendations}}
<li class="content">{{.}}</li>
{{- end}}
</ol>
</body>
</html>
`))

type htmlTrendRow struct {
	Date     string
	Interest string
}

type htmlSection struct {
	Name string
	Text string
}

type htmlReport struct {
	Result             *domain.AnalysisResult
	GeneratedOn        string
	Trend              []htmlTrendRow
	Sections           []htmlSection
	HasStructured      bool
	ConsiderationsName string
	Considerations     []string
}

// WriteHTML renders a standalone printable report.
func WriteHTML(w io.Writer, result *domain.AnalysisResult, generatedAt time.Time) error {
	if result == nil {
		return errors.New("nil analysis result")
	}

	report := htmlReport{
		Result:             result,
		GeneratedOn:        generatedAt.Format("2006-01-02"),
		ConsiderationsName: parser.SectionConsiderations.String(),
	}
	for _, p := range result.TrendData {
		report.Trend = append(report.Trend, htmlTrendRow{
			Date:     p.Date,
			Interest: strconv.FormatFloat(p.Interest, 'f', -1, 64),
		})
	}
	if s := result.StructuredAnalysis; s != nil {
		report.HasStructured = true
		report.Considerations = s.Considerations
		for _, sec := range structuredSections(s) {
			report.Sections = append(report.Sections, htmlSection{Name: sec.Section.String(), Text: sec.Text})
		}
	}

	if err := reportTemplate.Execute(w, report); err != nil {
		return fmt.Errorf("failed to render html report: %w", err)
	}
	return nil
}

// ReadHTML recovers the result from a report produced by WriteHTML.
func ReadHTML(r io.Reader) (*domain.AnalysisResult, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html report: %w", err)
	}

	title := doc.Find("#title")
	if title.Length() == 0 {
		return nil, errors.New("not an analysis report: missing title")
	}

	result := &domain.AnalysisResult{
		Keyword:         strings.TrimPrefix(title.Text(), htmlTitlePrefix),
		DateRange:       strings.TrimPrefix(doc.Find("#date-range").Text(), htmlDateRangePrefix),
		Analysis:        doc.Find("#analysis").Text(),
		TrendData:       []domain.TrendPoint{},
		SentimentData:   []domain.SentimentPoint{},
		Recommendations: []string{},
	}

	var rowErr error
	doc.Find("#trend-data tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() != 2 {
			return true
		}
		v, err := strconv.ParseFloat(cells.Eq(1).Text(), 64)
		if err != nil {
			rowErr = fmt.Errorf("invalid interest %q", cells.Eq(1).Text())
			return false
		}
		result.TrendData = append(result.TrendData, domain.TrendPoint{Date: cells.Eq(0).Text(), Interest: v})
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	doc.Find("#sentiment-data tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() != 2 {
			return true
		}
		v, err := strconv.Atoi(cells.Eq(1).Text())
		if err != nil {
			rowErr = fmt.Errorf("invalid sentiment value %q", cells.Eq(1).Text())
			return false
		}
		result.SentimentData = append(result.SentimentData, domain.SentimentPoint{Sentiment: cells.Eq(0).Text(), Value: v})
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	sections := doc.Find("section.structured")
	if sections.Length() > 0 {
		structured := &domain.StructuredAnalysis{Considerations: []string{}}
		sections.Each(func(_ int, sec *goquery.Selection) {
			name, _ := sec.Attr("data-section")
			if name == parser.SectionConsiderations.String() {
				sec.Find("li").Each(func(_ int, li *goquery.Selection) {
					structured.Considerations = append(structured.Considerations, li.Text())
				})
				return
			}
			setSection(structured, name, sec.Find("div.content").Text())
		})
		result.StructuredAnalysis = structured
	}

	doc.Find("#recommendations li").Each(func(_ int, li *goquery.Selection) {
		result.Recommendations = append(result.Recommendations, li.Text())
	})

	return result, nil
}

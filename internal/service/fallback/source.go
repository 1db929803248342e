package fallback

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kapu/trendscope-go/internal/domain"
)

//go:embed dataset.yaml
var datasetYAML []byte

type product struct {
	Name      string              `yaml:"name"`
	Trend     []domain.TrendPoint `yaml:"trend"`
	Sentiment struct {
		Positive int `yaml:"positive"`
		Neutral  int `yaml:"neutral"`
		Negative int `yaml:"negative"`
	} `yaml:"sentiment"`
	Analysis        string   `yaml:"analysis"`
	Recommendations []string `yaml:"recommendations"`
}

type dataset struct {
	Products []product `yaml:"products"`
}

// Source serves canned analyses for when the live upstream cannot be used.
type Source struct {
	products []product
}

// New loads the embedded dataset.
func New() (*Source, error) {
	return Parse(datasetYAML)
}

// Parse loads a dataset document. It must contain at least one product, and every
// product needs at least one recommendation.
func Parse(data []byte) (*Source, error) {
	var ds dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode fallback dataset: %w", err)
	}
	if len(ds.Products) == 0 {
		return nil, fmt.Errorf("fallback dataset has no products")
	}
	for _, p := range ds.Products {
		if p.Name == "" || len(p.Recommendations) == 0 {
			return nil, fmt.Errorf("fallback product %q needs a name and recommendations", p.Name)
		}
	}
	return &Source{products: ds.Products}, nil
}

// Match returns the product whose name contains the keyword or is contained in
// it, ignoring case. The first product is the default.
func (s *Source) Match(keyword string) string {
	return s.match(keyword).Name
}

func (s *Source) match(keyword string) product {
	needle := strings.ToLower(strings.TrimSpace(keyword))
	for _, p := range s.products {
		name := strings.ToLower(p.Name)
		if strings.Contains(name, needle) || strings.Contains(needle, name) {
			return p
		}
	}
	return s.products[0]
}

// Result builds the substitute result for req. Slices are copied so callers may
// modify them.
func (s *Source) Result(req domain.AnalysisRequest) *domain.AnalysisResult {
	p := s.match(req.Keyword)

	return &domain.AnalysisResult{
		Keyword:   req.Keyword,
		DateRange: req.DateRange(),
		TrendData: append([]domain.TrendPoint(nil), p.Trend...),
		SentimentData: []domain.SentimentPoint{
			{Sentiment: domain.SentimentPositive, Value: p.Sentiment.Positive},
			{Sentiment: domain.SentimentNeutral, Value: p.Sentiment.Neutral},
			{Sentiment: domain.SentimentNegative, Value: p.Sentiment.Negative},
		},
		Analysis:        p.Analysis,
		Recommendations: append([]string(nil), p.Recommendations...),
	}
}

// Outcome wraps Result with the fallback flag and reason.
func (s *Source) Outcome(req domain.AnalysisRequest, reason string) *domain.Outcome {
	return &domain.Outcome{
		Result:         s.Result(req),
		Source:         domain.SourceFallback,
		FallbackReason: reason,
	}
}

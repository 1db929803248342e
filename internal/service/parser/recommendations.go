package parser

import (
	"regexp"
	"strings"

	"github.com/kapu/trendscope-go/internal/domain"
)

// GenericRecommendations is returned when nothing else can be extracted.
var GenericRecommendations = []string{
	"Monitor search interest weekly to catch shifts in demand early",
	"Review customer comments regularly to spot recurring praise and complaints",
	"Adjust inventory and marketing plans as new trend data arrives",
}

var fragmentBullet = regexp.MustCompile(`^(?:[-•*]|\d{1,2}[.)])[ \t]+(.+)$`)

// Recommendations builds the flat recommendation list. A structured result with a
// recommendation or considerations is used as is; otherwise bullet fragments are
// pulled from the justification; otherwise the generic list is returned.
func (p *Parser) Recommendations(structured *domain.StructuredAnalysis) []string {
	if structured != nil {
		var items []string
		if structured.Recommendation != "" {
			items = append(items, structured.Recommendation)
		}
		items = append(items, structured.Considerations...)
		if len(items) > 0 {
			return items
		}
		if items := JustificationBullets(structured.Justification); len(items) > 0 {
			return items
		}
	}
	return append([]string(nil), GenericRecommendations...)
}

// JustificationBullets splits text on sentence boundaries and keeps the fragments
// that start with a bullet marker.
func JustificationBullets(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		for _, fragment := range splitSentences(line) {
			m := fragmentBullet.FindStringSubmatch(strings.TrimSpace(fragment))
			if m == nil {
				continue
			}
			item := strings.TrimRight(strings.TrimSpace(m[1]), ".;")
			if item != "" {
				items = append(items, item)
			}
		}
	}
	return items
}

// splitSentences cuts after ".", "!" or "?" followed by a blank. A period right
// after a digit is a list number and does not end a sentence.
func splitSentences(line string) []string {
	var out []string
	start := 0
	for i := 0; i < len(line)-1; i++ {
		switch line[i] {
		case '.', '!', '?':
		default:
			continue
		}
		if line[i+1] != ' ' && line[i+1] != '\t' {
			continue
		}
		if line[i] == '.' && i > 0 && line[i-1] >= '0' && line[i-1] <= '9' {
			continue
		}
		out = append(out, line[start:i])
		start = i + 1
	}
	return append(out, line[start:])
}

// Interpretation is everything the assembler needs from one block of text.
type Interpretation struct {
	Structured      *domain.StructuredAnalysis `json:"structuredAnalysis"`
	Analysis        string                     `json:"analysis"`
	Recommendations []string                   `json:"recommendations"`
}

// Interpret parses raw and derives the analysis text and flat list. The analysis
// text falls back to the whole trimmed input when no Overall Analysis section
// exists.
func (p *Parser) Interpret(raw string) Interpretation {
	structured := p.Parse(raw)
	analysis := structured.OverallAnalysis
	if analysis == "" {
		analysis = strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	}
	return Interpretation{
		Structured:      structured,
		Analysis:        analysis,
		Recommendations: p.Recommendations(structured),
	}
}

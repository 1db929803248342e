package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/kapu/trendscope-go/internal/constants"
	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/util"
)

// Parser turns free-form recommendation text into a StructuredAnalysis.
// It holds no mutable state and is safe for concurrent use.
type Parser struct {
	patterns               []MarkerPattern
	minConsiderationLength int
}

type Option func(*Parser)

// WithPatterns replaces the marker table.
func WithPatterns(patterns []MarkerPattern) Option {
	return func(p *Parser) {
		p.patterns = patterns
	}
}

func WithMinConsiderationLength(n int) Option {
	return func(p *Parser) {
		p.minConsiderationLength = n
	}
}

func New(opts ...Option) *Parser {
	p := &Parser{
		patterns:               DefaultPatterns(),
		minConsiderationLength: constants.ParserLimits.MinConsiderationLength,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = New()

// Parse runs the default parser.
func Parse(raw string) *domain.StructuredAnalysis {
	return defaultParser.Parse(raw)
}

// Normalize rewrites every recognized marker spelling to its canonical token.
// For each section the spellings are applied in priority order, so a more specific
// spelling consumes its text before a looser one can see it.
func (p *Parser) Normalize(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	for _, pattern := range p.patterns {
		text = pattern.re.ReplaceAllString(text, "${lead}"+pattern.Section.marker())
	}
	return text
}

type position struct {
	section Section
	start   int // index of the token
	body    int // index of the first byte after the token
}

// Split returns the text of every section whose marker occurs in raw. Sections
// are cut at the first occurrence of each marker, in the order they appear.
func (p *Parser) Split(raw string) map[Section]string {
	text := p.Normalize(raw)

	positions := make([]position, 0, len(Sections))
	for _, section := range Sections {
		token := section.token()
		idx := strings.Index(text, token)
		if idx < 0 {
			continue
		}
		positions = append(positions, position{section: section, start: idx, body: idx + len(token)})
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].start < positions[j].start
	})

	out := make(map[Section]string, len(positions))
	for i, pos := range positions {
		end := len(text)
		if i+1 < len(positions) {
			end = positions[i+1].start
		}
		out[pos.section] = cleanSlice(text[pos.body:end], pos.section != SectionConsiderations)
	}
	return out
}

// Parse fills every section it finds. Absent sections stay empty; Considerations
// is never nil.
func (p *Parser) Parse(raw string) *domain.StructuredAnalysis {
	sections := p.Split(raw)

	result := &domain.StructuredAnalysis{
		OverallAnalysis: sections[SectionOverallAnalysis],
		Recommendation:  sections[SectionRecommendation],
		Justification:   sections[SectionJustification],
		EstimatedUnits:  sections[SectionEstimatedUnits],
		Considerations:  []string{},
		Disclaimer:      sections[SectionDisclaimer],
	}
	if block, ok := sections[SectionConsiderations]; ok && block != "" {
		result.Considerations = p.Considerations(block)
	}
	return result
}

var (
	leadingJunk     = regexp.MustCompile(`^(?::[ \t]*|(?:\*\*|__)(?:[ \t]*:)?[ \t]*)+`)
	leadingNumber   = regexp.MustCompile(`^\d{1,2}[.)][ \t]+`)
	danglingNumber  = regexp.MustCompile(`\n[ \t]*\d{1,2}[.)][ \t]*$`)
	canonicalTokens = func() *regexp.Regexp {
		names := make([]string, 0, len(Sections))
		for _, s := range Sections {
			names = append(names, regexp.QuoteMeta(s.String()))
		}
		return regexp.MustCompile(`\n*\[(` + strings.Join(names, "|") + `)\]\n`)
	}()
)

// cleanSlice trims a section body. Repeated markers for a section that was already
// cut are turned back into plain "Name:" text. A single "*" followed by a blank is
// a bullet and survives.
func cleanSlice(s string, stripNumbering bool) string {
	s = canonicalTokens.ReplaceAllString(s, "\n$1: ")
	s = strings.TrimSpace(s)
	s = leadingJunk.ReplaceAllString(s, "")
	if stripNumbering {
		s = leadingNumber.ReplaceAllString(s, "")
	}
	s = danglingNumber.ReplaceAllString(s, "")
	s = util.CollapseBlankLines(s)
	return strings.TrimSpace(s)
}

package parser

import (
	"regexp"
	"strings"
)

// Section is one of the canonical slots the parser tries to fill.
type Section int

const (
	SectionOverallAnalysis Section = iota
	SectionRecommendation
	SectionJustification
	SectionEstimatedUnits
	SectionConsiderations
	SectionDisclaimer
)

// Sections lists every canonical section in canonical order.
var Sections = []Section{
	SectionOverallAnalysis,
	SectionRecommendation,
	SectionJustification,
	SectionEstimatedUnits,
	SectionConsiderations,
	SectionDisclaimer,
}

var sectionNames = map[Section]string{
	SectionOverallAnalysis: "Overall Analysis",
	SectionRecommendation:  "Recommendation",
	SectionJustification:   "Justification",
	SectionEstimatedUnits:  "Estimated Units",
	SectionConsiderations:  "Important Considerations",
	SectionDisclaimer:      "Disclaimer",
}

func (s Section) String() string {
	if name, ok := sectionNames[s]; ok {
		return name
	}
	return "Unknown"
}

// token is the canonical marker body searched for after normalization.
func (s Section) token() string {
	return "[" + s.String() + "]\n"
}

// marker is what every recognized spelling is rewritten to.
func (s Section) marker() string {
	return "\n\n" + s.token()
}

// MarkerKind orders the spellings tried for a section, most specific first.
type MarkerKind int

const (
	KindNumberedColon MarkerKind = iota // "1. Overall Analysis:"
	KindNumbered                        // "1. Overall Analysis"
	KindPlainColon                      // "Overall Analysis:" at line start
	KindHeading                         // "Overall Analysis" alone on its line
)

func (k MarkerKind) String() string {
	switch k {
	case KindNumberedColon:
		return "numbered-colon"
	case KindNumbered:
		return "numbered"
	case KindPlainColon:
		return "plain-colon"
	case KindHeading:
		return "heading"
	default:
		return "unknown"
	}
}

// MarkerPattern is one recognized spelling of a section marker.
type MarkerPattern struct {
	Section Section
	Kind    MarkerKind
	re      *regexp.Regexp
}

func (m MarkerPattern) Match(text string) bool {
	return m.re.MatchString(text)
}

// sectionAliases holds the accepted names per section. A space stands for any run
// of blanks; longer alternatives come first because alternation is leftmost-first.
var sectionAliases = map[Section][]string{
	SectionOverallAnalysis: {`Overall Analysis`, `Overall Assessment`},
	SectionRecommendation:  {`Final Recommendations?`, `Recommendations?`},
	SectionJustification:   {`Justification(?: for (?:the |this |our )?Recommendation)?`, `Rationale`},
	SectionEstimatedUnits:  {`Estimated (?:Number of )?Units(?: to (?:Order|Stock|Produce))?`, `Estimated Quantity`},
	SectionConsiderations:  {`Important Considerations`, `Key Considerations`, `Considerations`},
	SectionDisclaimer:      {`Disclaimer`},
}

const (
	heading = `(?:#{1,6}[ \t]*)?`
	deco    = `(?:\*\*|__)?`
	number  = `\d{1,2}[.)][ \t]*`
	// numbered markers start a line or follow a colon or sentence end; the
	// preceding text is kept through the lead group
	lead = `(?P<lead>^|[:.!?][ \t]+)[ \t]*`
)

func buildPatterns(section Section, aliases []string) []MarkerPattern {
	alts := make([]string, len(aliases))
	for i, a := range aliases {
		alts[i] = strings.ReplaceAll(a, " ", `[ \t]+`)
	}
	name := `(?:` + strings.Join(alts, "|") + `)\b`

	sources := []struct {
		kind MarkerKind
		expr string
	}{
		{KindNumberedColon, `(?im)` + lead + heading + deco + number + deco + name + deco + `[ \t]*:` + deco + `[ \t]*`},
		{KindNumbered, `(?im)` + lead + heading + deco + number + deco + name + deco + `[ \t]*`},
		{KindPlainColon, `(?im)^[ \t]*` + heading + deco + name + deco + `[ \t]*:` + deco + `[ \t]*`},
		{KindHeading, `(?im)^[ \t]*` + heading + deco + name + deco + `[ \t]*$`},
	}

	patterns := make([]MarkerPattern, 0, len(sources))
	for _, src := range sources {
		patterns = append(patterns, MarkerPattern{
			Section: section,
			Kind:    src.kind,
			re:      regexp.MustCompile(src.expr),
		})
	}
	return patterns
}

// DefaultPatterns returns the marker table: per section in canonical order, the
// spellings in priority order.
func DefaultPatterns() []MarkerPattern {
	var table []MarkerPattern
	for _, section := range Sections {
		table = append(table, buildPatterns(section, sectionAliases[section])...)
	}
	return table
}

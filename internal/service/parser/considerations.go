package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	bulletLine = regexp.MustCompile(`^[ \t]*([-•*‣▪]|\d{1,2}[.)])[ \t]+(.*)$`)
	inlineDash = regexp.MustCompile(`[ \t]+-[ \t]+`)
	inlineDot  = regexp.MustCompile(`[ \t]*•[ \t]*`)
)

// Considerations splits a considerations block into items. Bulleted or numbered
// lines win, and a "-" or "•" line is split again at inline repeats of its bullet;
// wrapped lines are joined to the item above them. Without line bullets,
// inline "•" separators are tried, and as a last resort every line longer than the
// minimum length becomes an item.
func (p *Parser) Considerations(block string) []string {
	if items := bulletItems(block); len(items) > 0 {
		return items
	}
	if items := inlineBulletItems(block); len(items) > 0 {
		return items
	}

	items := []string{}
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) > p.minConsiderationLength {
			items = append(items, line)
		}
	}
	return items
}

func bulletItems(block string) []string {
	var items []string
	open := false
	for _, line := range strings.Split(block, "\n") {
		if m := bulletLine.FindStringSubmatch(line); m != nil {
			items = append(items, segments(m[1], m[2])...)
			open = true
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			open = false
			continue
		}
		if open {
			last := len(items) - 1
			items[last] = strings.TrimSpace(items[last] + " " + trimmed)
		}
	}
	return dropEmpty(items)
}

// segments splits a bulleted line that carries further items introduced by the
// same bullet, as in "- a - b".
func segments(bullet, body string) []string {
	var parts []string
	switch bullet {
	case "-":
		parts = inlineDash.Split(body, -1)
	case "•":
		parts = inlineDot.Split(body, -1)
	default:
		parts = []string{body}
	}
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

// inlineBulletItems handles "• a • b" on a single line. Text before the first
// bullet is an introduction, not an item.
func inlineBulletItems(block string) []string {
	if !strings.Contains(block, "•") {
		return nil
	}
	parts := strings.Split(block, "•")
	items := make([]string, 0, len(parts)-1)
	for _, part := range parts[1:] {
		items = append(items, strings.Join(strings.Fields(part), " "))
	}
	return dropEmpty(items)
}

func dropEmpty(items []string) []string {
	out := items[:0]
	for _, item := range items {
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

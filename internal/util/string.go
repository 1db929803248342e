package util

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// TruncateString truncates a string to maxRunes characters (rune-based, not byte-based)
// If truncated, appends "..." to the result
func TruncateString(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

// Normalize performs basic string normalization (lowercase + trim)
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Slugify lower-cases a product name and turns whitespace runs into dashes.
// "Smart Watch X" -> "smart-watch-x"
func Slugify(name string) string {
	return whitespaceRun.ReplaceAllString(Normalize(name), "-")
}

// FileSafe replaces whitespace runs with underscores for download file names.
func FileSafe(name string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(name), "_")
}

// CollapseBlankLines squeezes runs of blank lines into a single blank line.
func CollapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// StripCodeFence removes a surrounding markdown code fence (``` or ```json).
func StripCodeFence(s string) string {
	cleaned := strings.TrimSpace(s)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		if nl := strings.IndexByte(cleaned, '\n'); nl >= 0 && !strings.ContainsAny(cleaned[:nl], "{[\"") {
			cleaned = cleaned[nl+1:]
		} else {
			cleaned = strings.TrimPrefix(cleaned, "json")
		}
		cleaned = strings.TrimSpace(cleaned)
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	return cleaned
}

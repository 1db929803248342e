package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/util"
)

var monthNumbers = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04",
	"may": "05", "jun": "06", "jul": "07", "aug": "08",
	"sep": "09", "oct": "10", "nov": "11", "dec": "12",
}

// "Mar 5, 2025", "Mar 2 – 8, 2025", "Dec 29, 2024 – Jan 4, 2025"
var humanDate = regexp.MustCompile(`^\s*([A-Za-z]+)\.?\s+(\d{1,2})(?:,\s*(\d{4})|\s*[–—-]\s*(?:[A-Za-z]+\.?\s+)?\d{1,2},\s*(\d{4}))`)

// Trend maps upstream timeline entries 1:1 onto trend points, keeping order.
func Trend(entries []domain.TimelineEntry, logger *zap.Logger) []domain.TrendPoint {
	if logger == nil {
		logger = zap.NewNop()
	}

	points := make([]domain.TrendPoint, 0, len(entries))
	for _, entry := range entries {
		date := entry.Date
		if date == "" {
			date = timestampDate(entry.Timestamp)
		}
		points = append(points, domain.TrendPoint{
			Date:     NormalizeDate(date, logger),
			Interest: util.NonNegative(interestOf(entry)),
		})
	}
	return points
}

func interestOf(entry domain.TimelineEntry) float64 {
	switch {
	case entry.Interest != nil:
		return *entry.Interest
	case entry.Value != nil:
		return *entry.Value
	case len(entry.Values) > 0:
		return entry.Values[0].ExtractedValue
	default:
		return 0
	}
}

// timestampDate renders a unix-seconds timestamp as an ISO date (UTC).
func timestampDate(ts string) string {
	secs, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
	if err != nil || secs <= 0 {
		return ""
	}
	return time.Unix(secs, 0).UTC().Format(domain.DateLayout)
}

// NormalizeDate converts "Mon D, YYYY" (or a range starting that way) into
// YYYY-MM-DD. Anything else is returned unchanged. An unknown month name maps to
// "01" and is logged.
func NormalizeDate(raw string, logger *zap.Logger) string {
	m := humanDate.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}

	monthToken := strings.ToLower(m[1])
	if len(monthToken) > 3 {
		monthToken = monthToken[:3]
	}
	month, ok := monthNumbers[monthToken]
	if !ok {
		if logger != nil {
			logger.Warn("Unrecognized month in trend date, defaulting to January",
				zap.String("date", raw),
				zap.String("month", m[1]),
			)
		}
		month = "01"
	}

	year := m[3]
	if year == "" {
		year = m[4]
	}
	day, _ := strconv.Atoi(m[2])
	return fmt.Sprintf("%s-%s-%02d", year, month, day)
}

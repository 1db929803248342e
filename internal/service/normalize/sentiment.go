package normalize

import (
	"math"
	"strings"

	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/util"
)

// SentimentFromScores buckets signed scores: >0 positive, <0 negative, 0 neutral.
// The result always has three entries in Positive, Neutral, Negative order.
func SentimentFromScores(scores []float64) []domain.SentimentPoint {
	var positive, neutral, negative int
	for _, s := range scores {
		switch {
		case s > 0:
			positive++
		case s < 0:
			negative++
		default:
			neutral++
		}
	}

	total := len(scores)
	return []domain.SentimentPoint{
		{Sentiment: domain.SentimentPositive, Value: util.Percent(positive, total)},
		{Sentiment: domain.SentimentNeutral, Value: util.Percent(neutral, total)},
		{Sentiment: domain.SentimentNegative, Value: util.Percent(negative, total)},
	}
}

// SentimentFromComments scores each comment's sentiment value.
func SentimentFromComments(comments []domain.CommentSentiment) []domain.SentimentPoint {
	scores := make([]float64, len(comments))
	for i, c := range comments {
		scores[i] = c.Sentiment
	}
	return SentimentFromScores(scores)
}

// SentimentFromChart reorders an upstream distribution into the fixed three
// buckets. Labels match case-insensitively; unknown labels are ignored and missing
// buckets report 0.
func SentimentFromChart(chart []domain.ChartDatum) []domain.SentimentPoint {
	values := make(map[string]float64, len(domain.SentimentOrder))
	for _, datum := range chart {
		label := strings.ToLower(strings.TrimSpace(datum.Sentiment))
		values[label] += util.NonNegative(datum.Value)
	}

	points := make([]domain.SentimentPoint, 0, len(domain.SentimentOrder))
	for _, name := range domain.SentimentOrder {
		points = append(points, domain.SentimentPoint{
			Sentiment: name,
			Value:     int(math.Round(values[strings.ToLower(name)])),
		})
	}
	return points
}

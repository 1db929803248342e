package prompt

import (
	"github.com/kapu/trendscope-go/internal/domain"
)

type RecommendationVars struct {
	Keyword      string
	StartDate    string
	EndDate      string
	CommentCount int
	Trend        []domain.TrendPoint
	Sentiment    []domain.SentimentPoint
}

// BuildRecommendationPrompt asks for the six numbered sections the parser reads.
func BuildRecommendationPrompt(vars RecommendationVars) (Prompt, error) {
	return DefaultPromptBuilder().Render(TemplateRecommendation, vars)
}

type CommentSentimentVars struct {
	Keyword  string
	Comments []string
}

func BuildCommentSentimentPrompt(vars CommentSentimentVars) (Prompt, error) {
	return DefaultPromptBuilder().Render(TemplateCommentSentiment, vars)
}

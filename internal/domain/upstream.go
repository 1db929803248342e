package domain

// CombinedRequest is the body of the single-call analysis endpoint.
type CombinedRequest struct {
	Product      string `json:"product"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	VideoCount   int    `json:"videoCount,omitempty"`
	CommentCount int    `json:"commentCount,omitempty"`
}

type TrendRequest struct {
	Product   string `json:"product"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type SentimentRequest struct {
	Topic             string `json:"topic"`
	SearchMaxResults  int    `json:"searchMaxResults"`
	CommentMaxResults int    `json:"commentMaxResults"`
}

// TimelineEntry is one point of an upstream trend timeline. Depending on the
// producer the interest arrives as "interest", "value" or values[0].extracted_value.
type TimelineEntry struct {
	Date      string       `json:"date"`
	Timestamp string       `json:"timestamp,omitempty"`
	Interest  *float64     `json:"interest,omitempty"`
	Value     *float64     `json:"value,omitempty"`
	Values    []TrendValue `json:"values,omitempty"`
}

type TrendValue struct {
	Query          string  `json:"query"`
	Value          string  `json:"value"`
	ExtractedValue float64 `json:"extracted_value"`
}

// ChartDatum is one upstream sentiment bucket.
type ChartDatum struct {
	Sentiment string  `json:"sentiment"`
	Value     float64 `json:"value"`
}

// CommentSentiment is one scored comment from the sentiment endpoint.
type CommentSentiment struct {
	Comment   string  `json:"comment"`
	Sentiment float64 `json:"sentiment"`
}

// UpstreamAnalysis is the tolerant decoding of the combined endpoint's payload.
// Missing fields stay zero-valued.
type UpstreamAnalysis struct {
	Timeline       []TimelineEntry
	ChartData      []ChartDatum
	Recommendation string
}

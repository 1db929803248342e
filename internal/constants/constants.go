package constants

import "time"

var DedupConfig = struct {
	TTL time.Duration
}{
	TTL: 5 * time.Second, // 완료 후 중복 요청 흡수 구간
}

var SampleBounds = struct {
	VideoMin       int
	VideoMax       int
	VideoDefault   int
	CommentMin     int
	CommentMax     int
	CommentDefault int
}{
	VideoMin:       10,
	VideoMax:       200,
	VideoDefault:   50,
	CommentMin:     50,
	CommentMax:     500,
	CommentDefault: 100,
}

var CacheTTL = struct {
	AnalysisResult time.Duration
}{
	AnalysisResult: 10 * time.Minute,
}

var RetryConfig = struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}{
	MaxAttempts: 2,
	BaseDelay:   500 * time.Millisecond,
	Jitter:      250 * time.Millisecond,
}

var CircuitBreakerConfig = struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	RateLimitTimeout time.Duration
}{
	FailureThreshold: 3,                // 3회 연속 실패 시 Circuit OPEN
	ResetTimeout:     30 * time.Second, // 기본 재시도 대기 시간
	RateLimitTimeout: 5 * time.Minute,  // 429 전용 타임아웃
}

var APIConfig = struct {
	DefaultTimeout  time.Duration
	RateLimitPerSec float64
	RateLimitBurst  int
	ErrorBodyLimit  int
}{
	DefaultTimeout:  60 * time.Second,
	RateLimitPerSec: 5,
	RateLimitBurst:  5,
	ErrorBodyLimit:  512,
}

var ParserLimits = struct {
	MinConsiderationLength int
}{
	MinConsiderationLength: 15, // 불릿이 없을 때 이보다 짧은 줄은 버린다
}

var UploadLimits = struct {
	MaxBytes              int64
	DefaultTargetTurnover float64
	DefaultPeriod         string
}{
	MaxBytes:              1 << 20,
	DefaultTargetTurnover: 1000,
	DefaultPeriod:         "2025-01",
}

var YouTubeQuota = struct {
	DailyLimit   int
	SafetyMargin int
	SearchCost   int
	CommentsCost int
	MaxPageSize  int64
}{
	DailyLimit:   10000,
	SafetyMargin: 2000,
	SearchCost:   100,
	CommentsCost: 1,
	MaxPageSize:  50,
}

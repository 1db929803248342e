package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kapu/trendscope-go/internal/constants"
	"github.com/kapu/trendscope-go/internal/util"
	"github.com/kapu/trendscope-go/pkg/errors"
)

// Generator is what callers need from the model manager.
type Generator interface {
	GenerateText(ctx context.Context, prompt string, preset ModelPreset, opts *GenerateOptions) (string, *GenerateMetadata, error)
	GenerateJSON(ctx context.Context, prompt string, preset ModelPreset, dest any, opts *GenerateOptions) (*GenerateMetadata, error)
}

// Manager sends prompts to the primary provider and, when enabled, retries once
// on the fallback provider. Repeated service failures open a circuit breaker.
type Manager struct {
	primary        Provider
	fallback       Provider
	circuitBreaker *util.CircuitBreaker
	logger         *zap.Logger
}

type ManagerConfig struct {
	GeminiAPIKey       string
	OpenAIAPIKey       string
	DefaultGeminiModel string
	DefaultOpenAIModel string
	EnableFallback     bool
}

// NewManager builds providers from API keys. Gemini is primary when configured;
// otherwise OpenAI serves alone. With neither key a ConfigError is returned.
func NewManager(ctx context.Context, cfg ManagerConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	defaultGemini := cfg.DefaultGeminiModel
	if defaultGemini == "" {
		defaultGemini = "gemini-2.5-flash"
	}
	defaultOpenAI := cfg.DefaultOpenAIModel
	if defaultOpenAI == "" {
		defaultOpenAI = "gpt-5-mini"
	}

	var gemini Provider
	if cfg.GeminiAPIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		gemini = NewGeminiProvider(client, defaultGemini, logger)
	}

	var openaiProvider Provider
	if p := NewOpenAIProvider(cfg.OpenAIAPIKey, defaultOpenAI, logger); p != nil {
		openaiProvider = p
	}

	switch {
	case gemini != nil && cfg.EnableFallback && openaiProvider != nil:
		logger.Info("OpenAI fallback enabled", zap.String("model", defaultOpenAI))
		return NewManagerWithProviders(gemini, openaiProvider, nil, logger), nil
	case gemini != nil:
		logger.Info("OpenAI fallback disabled")
		return NewManagerWithProviders(gemini, nil, nil, logger), nil
	case openaiProvider != nil:
		logger.Info("Gemini not configured, using OpenAI only", zap.String("model", defaultOpenAI))
		return NewManagerWithProviders(openaiProvider, nil, nil, logger), nil
	default:
		return nil, errors.NewConfigError("GEMINI_API_KEY or OPENAI_API_KEY is required for local analysis", "GEMINI_API_KEY")
	}
}

// NewManagerWithProviders wires explicit providers; fallback may be nil.
func NewManagerWithProviders(primary, fallback Provider, clock util.Clock, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		primary:  primary,
		fallback: fallback,
		circuitBreaker: util.NewCircuitBreaker(
			"llm",
			constants.CircuitBreakerConfig.FailureThreshold,
			constants.CircuitBreakerConfig.ResetTimeout,
			clock,
			logger,
		),
		logger: logger,
	}
}

func (m *Manager) GenerateText(ctx context.Context, prompt string, preset ModelPreset, opts *GenerateOptions) (string, *GenerateMetadata, error) {
	result, metadata, err := m.generate(ctx, prompt, preset, opts)
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(result.Text), metadata, nil
}

// GenerateJSON requests JSON output and decodes it into dest, tolerating a
// surrounding code fence.
func (m *Manager) GenerateJSON(ctx context.Context, prompt string, preset ModelPreset, dest any, opts *GenerateOptions) (*GenerateMetadata, error) {
	var options GenerateOptions
	if opts != nil {
		options = *opts
	}
	options.JSONMode = true

	result, metadata, err := m.generate(ctx, prompt, preset, &options)
	if err != nil {
		return nil, err
	}

	cleaned := util.StripCodeFence(result.Text)
	if cleaned == "" {
		return nil, errors.NewServiceError("empty model response", metadata.Provider, "generate_json", nil)
	}
	if err := json.Unmarshal([]byte(cleaned), dest); err != nil {
		m.logger.Error("Failed to unmarshal JSON response",
			zap.String("provider", metadata.Provider),
			zap.Error(err),
			zap.String("response_preview", util.TruncateString(cleaned, 200)),
		)
		return nil, errors.NewServiceError("invalid JSON from model", metadata.Provider, "generate_json", err)
	}
	return metadata, nil
}

func (m *Manager) generate(ctx context.Context, prompt string, preset ModelPreset, opts *GenerateOptions) (ProviderResult, *GenerateMetadata, error) {
	if !m.circuitBreaker.CanExecute() {
		status := m.circuitBreaker.GetStatus()
		m.logger.Error("AI service unavailable (Circuit OPEN)",
			zap.String("state", status.State.String()),
			zap.Int("failure_count", status.FailureCount),
		)
		return ProviderResult{}, nil, errors.NewServiceError("AI service temporarily unavailable (circuit open)", "llm", "generate", nil)
	}

	primaryResult, primaryErr := invokeProvider(ctx, m.primary, prompt, preset, opts)
	if primaryErr == nil {
		m.circuitBreaker.RecordSuccess()
		return primaryResult, &GenerateMetadata{Provider: m.primary.Name(), Model: primaryResult.Model}, nil
	}

	if m.fallback != nil {
		m.logger.Warn("Primary model failed, trying fallback",
			zap.String("primary", m.primary.Name()),
			zap.Error(primaryErr),
		)
		fallbackResult, fallbackErr := invokeProvider(ctx, m.fallback, prompt, preset, opts)
		if fallbackErr == nil {
			m.circuitBreaker.RecordSuccess()
			return fallbackResult, &GenerateMetadata{
				Provider:     m.fallback.Name(),
				Model:        fallbackResult.Model,
				UsedFallback: true,
			}, nil
		}

		m.recordFailure(primaryErr)
		m.recordFailure(fallbackErr)
		return ProviderResult{}, nil, errors.NewServiceError("all model providers failed", m.fallback.Name(), "generate", fallbackErr)
	}

	m.recordFailure(primaryErr)
	return ProviderResult{}, nil, errors.NewServiceError("model generation failed", providerName(m.primary), "generate", primaryErr)
}

func invokeProvider(ctx context.Context, provider Provider, prompt string, preset ModelPreset, opts *GenerateOptions) (ProviderResult, error) {
	if provider == nil {
		return ProviderResult{}, fmt.Errorf("model provider is not configured")
	}
	return provider.Generate(ctx, prompt, preset, opts)
}

func providerName(p Provider) string {
	if p == nil {
		return "none"
	}
	return p.Name()
}

func (m *Manager) recordFailure(err error) {
	if !IsServiceFailure(err) {
		return
	}
	timeout := constants.CircuitBreakerConfig.ResetTimeout
	if IsRateLimitError(err) {
		timeout = constants.CircuitBreakerConfig.RateLimitTimeout
	}
	m.circuitBreaker.RecordFailure(timeout)
}

func (m *Manager) GetCircuitStatus() util.CircuitBreakerStatus {
	return m.circuitBreaker.GetStatus()
}

func (m *Manager) ResetCircuit() {
	m.circuitBreaker.Reset()
}

var (
	httpStatusPattern = regexp.MustCompile(`\b(5\d{2})\b`)
	geminiCodePattern = regexp.MustCompile(`"code":\s*(\d{3})`)
	openaiCodePattern = regexp.MustCompile(`^(\d{3})\s`)
)

// IsServiceFailure reports provider-side trouble (timeouts, 5xx, rate limits) as
// opposed to a bad prompt.
func IsServiceFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()

	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return true
	}
	if IsRateLimitError(err) {
		return true
	}
	if httpStatusPattern.MatchString(msg) {
		return true
	}
	if code, ok := statusCode(msg); ok {
		return code >= 500 && code < 600
	}
	return false
}

func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()

	if strings.Contains(msg, "429") || strings.Contains(msg, "Rate limit") || strings.Contains(msg, "quota") {
		return true
	}
	if code, ok := statusCode(msg); ok {
		return code == 429
	}
	return false
}

func statusCode(msg string) (int, bool) {
	for _, re := range []*regexp.Regexp{geminiCodePattern, openaiCodePattern} {
		if matches := re.FindStringSubmatch(msg); len(matches) > 1 {
			if code, err := strconv.Atoi(matches[1]); err == nil {
				return code, true
			}
		}
	}
	return 0, false
}

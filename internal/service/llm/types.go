package llm

// ModelPreset selects sampling parameters for a generation.
type ModelPreset string

const (
	PresetCreative ModelPreset = "creative" // 추천 문안
	PresetPrecise  ModelPreset = "precise"  // 점수 매기기
	PresetBalanced ModelPreset = "balanced"
)

type ModelConfig struct {
	Temperature      float32
	TopP             float32
	TopK             int
	MaxOutputTokens  int
	ResponseMimeType string // "application/json" or "text/plain"
}

type OpenAIConfig struct {
	Temperature float32
	MaxTokens   int
	TopP        float32
}

// GenerateMetadata describes which provider answered.
type GenerateMetadata struct {
	Provider     string
	Model        string
	UsedFallback bool
}

type GenerateOptions struct {
	Model     string
	JSONMode  bool
	System    string
	Overrides *ModelConfig
}

func GetPresetConfig(preset ModelPreset) ModelConfig {
	switch preset {
	case PresetCreative:
		return ModelConfig{
			Temperature:     0.7,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 2048,
		}
	case PresetPrecise:
		return ModelConfig{
			Temperature:     0.1,
			TopP:            0.9,
			TopK:            20,
			MaxOutputTokens: 4096,
		}
	default:
		return ModelConfig{
			Temperature:     0.3,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 4096,
		}
	}
}

func GetOpenAIPresetConfig(preset ModelPreset) OpenAIConfig {
	cfg := GetPresetConfig(preset)
	return OpenAIConfig{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxOutputTokens,
		TopP:        cfg.TopP,
	}
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a configuration that failed validation. Specific failures
// are joined underneath it.
var ErrInvalid = errors.New("config: invalid configuration")

// ValidProviderNames lists known provider names per provider kind. Unknown
// names only warn, so third-party additions stay usable.
var ValidProviderNames = map[string][]string{
	"asr":        {"whisper-native", "whisper-server", "openai"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Defaults applied by Load for fields left unset.
const (
	DefaultPasses           = 3
	DefaultPassTimeout      = 5 * time.Minute
	DefaultLanguage         = "en"
	DefaultPromptCharBudget = 800
	DefaultPromptLimit      = 1000
	DefaultMinGram          = 1
	DefaultMaxGram          = 3
	DefaultThreshold        = 70.0
	DefaultMaxSuggestions   = 3
	DefaultPenalty          = 0.6
	DefaultSemanticTopK     = 10
	DefaultOutputDir        = "out"
	DefaultFFmpegPath       = "ffmpeg"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Unknown YAML fields are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Audio.FFmpegPath == "" {
		cfg.Audio.FFmpegPath = DefaultFFmpegPath
	}
	if cfg.Transcribe.Passes == 0 {
		cfg.Transcribe.Passes = DefaultPasses
	}
	if cfg.Transcribe.PassTimeout == 0 {
		cfg.Transcribe.PassTimeout = Duration(DefaultPassTimeout)
	}
	if cfg.Transcribe.Language == "" {
		cfg.Transcribe.Language = DefaultLanguage
	}
	if cfg.Transcribe.PromptCharBudget == 0 {
		cfg.Transcribe.PromptCharBudget = DefaultPromptCharBudget
	}
	if cfg.Transcribe.PromptLimit == 0 {
		cfg.Transcribe.PromptLimit = DefaultPromptLimit
	}
	if cfg.Match.MinGram == 0 {
		cfg.Match.MinGram = DefaultMinGram
	}
	if cfg.Match.MaxGram == 0 {
		cfg.Match.MaxGram = DefaultMaxGram
	}
	if cfg.Match.Threshold == 0 {
		cfg.Match.Threshold = DefaultThreshold
	}
	if cfg.Match.MaxSuggestions == 0 {
		cfg.Match.MaxSuggestions = DefaultMaxSuggestions
	}
	if cfg.Verify.DisagreementPenalty == 0 {
		cfg.Verify.DisagreementPenalty = DefaultPenalty
	}
	if cfg.Knowledge.Semantic.TopK == 0 {
		cfg.Knowledge.Semantic.TopK = DefaultSemanticTopK
	}
	if cfg.Knowledge.PromptDB == "" {
		cfg.Knowledge.PromptDB = cfg.Knowledge.PlayerDB
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = DefaultOutputDir
	}
}

// Validate checks that cfg is a coherent configuration. All failures found
// are joined under [ErrInvalid] so callers see everything at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Audio.Slowdown < 0 {
		errs = append(errs, fmt.Errorf("audio.slowdown %.2f must not be negative", cfg.Audio.Slowdown))
	}
	if cfg.Knowledge.PlayerDB == "" {
		errs = append(errs, errors.New("knowledge.player_db is required"))
	}
	if cfg.Transcribe.Passes < 1 {
		errs = append(errs, fmt.Errorf("transcribe.passes %d must be at least 1", cfg.Transcribe.Passes))
	}
	if cfg.Transcribe.PassTimeout < 0 {
		errs = append(errs, fmt.Errorf("transcribe.pass_timeout %s must not be negative", cfg.Transcribe.PassTimeout))
	}
	if cfg.Transcribe.Temperature < 0 || cfg.Transcribe.Temperature > 1 {
		errs = append(errs, fmt.Errorf("transcribe.temperature %.2f is out of range [0, 1]", cfg.Transcribe.Temperature))
	}
	if cfg.Transcribe.PromptLimit < 1 {
		errs = append(errs, fmt.Errorf("transcribe.prompt_limit %d must be at least 1", cfg.Transcribe.PromptLimit))
	}
	if cfg.Match.MinGram < 1 || cfg.Match.MaxGram < cfg.Match.MinGram {
		errs = append(errs, fmt.Errorf("match gram range [%d, %d] is invalid; min_gram must be >= 1 and <= max_gram", cfg.Match.MinGram, cfg.Match.MaxGram))
	}
	if cfg.Match.Threshold < 0 || cfg.Match.Threshold > 100 {
		errs = append(errs, fmt.Errorf("match.threshold %.1f is out of range [0, 100]", cfg.Match.Threshold))
	}
	if cfg.Match.MaxSuggestions < 1 {
		errs = append(errs, fmt.Errorf("match.max_suggestions %d must be at least 1", cfg.Match.MaxSuggestions))
	}
	if cfg.Verify.DisagreementPenalty < 0 || cfg.Verify.DisagreementPenalty > 1 {
		errs = append(errs, fmt.Errorf("verify.disagreement_penalty %.2f is out of range [0, 1]", cfg.Verify.DisagreementPenalty))
	}

	if cfg.Providers.ASR.Name == "" {
		errs = append(errs, errors.New("providers.asr.name is required"))
	}
	errs = append(errs, validateASREntry("providers.asr", cfg.Providers.ASR)...)
	for i, entry := range cfg.Providers.ASRFallbacks {
		prefix := fmt.Sprintf("providers.asr_fallbacks[%d]", i)
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		errs = append(errs, validateASREntry(prefix, entry)...)
		validateProviderName("asr", entry.Name)
	}
	if cfg.Verify.LLMCheck && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("verify.llm_check requires providers.llm to be configured"))
	}
	if cfg.Knowledge.Semantic.PostgresDSN != "" && cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, errors.New("knowledge.semantic.postgres_dsn requires providers.embeddings to be configured"))
	}

	validateProviderName("asr", cfg.Providers.ASR.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// validateASREntry checks the per-backend requirements of one recognition
// provider entry.
func validateASREntry(prefix string, entry ProviderEntry) []error {
	switch entry.Name {
	case "whisper-native":
		if entry.Model == "" {
			return []error{fmt.Errorf("%s.model (GGML model path) is required for whisper-native", prefix)}
		}
	case "whisper-server":
		if entry.BaseURL == "" {
			return []error{fmt.Errorf("%s.base_url is required for whisper-server", prefix)}
		}
	case "openai":
		if entry.APIKey == "" {
			return []error{fmt.Errorf("%s.api_key is required for the openai recognizer", prefix)}
		}
	}
	return nil
}

// validateProviderName warns when name is non-empty and not in the
// [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

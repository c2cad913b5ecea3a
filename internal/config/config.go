// Package config provides the configuration schema, loader, and validation
// for the mention resolution pipeline.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can use Go duration syntax
// ("90s", "5m", "1h30m").
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	Audio      AudioConfig      `yaml:"audio"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Match      MatchConfig      `yaml:"match"`
	Verify     VerifyConfig     `yaml:"verify"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Output     OutputConfig     `yaml:"output"`
}

// AudioConfig holds clip extraction settings.
type AudioConfig struct {
	// FFmpegPath is the ffmpeg executable. Default: "ffmpeg" on PATH.
	FFmpegPath string `yaml:"ffmpeg_path"`

	// Slowdown is the playback speed factor applied during extraction, in
	// (0, 1] for slowdown or up to 2.0 for speedup. Zero means unchanged.
	Slowdown float64 `yaml:"slowdown"`
}

// KnowledgeConfig points at the knowledge base corpora.
type KnowledgeConfig struct {
	// PlayerDB is the JSONL knowledge base used for matching. Required.
	PlayerDB string `yaml:"player_db"`

	// PromptDB is the JSONL corpus used for prompt conditioning. When
	// empty, PlayerDB is used for both.
	PromptDB string `yaml:"prompt_db"`

	// Semantic enables the optional pgvector retrieval layer.
	Semantic SemanticConfig `yaml:"semantic"`
}

// SemanticConfig holds the semantic index settings.
type SemanticConfig struct {
	// PostgresDSN is the connection string for the pgvector database.
	// Empty disables semantic retrieval.
	PostgresDSN string `yaml:"postgres_dsn"`

	// TopK is the number of records retrieved per question. Default: 10.
	TopK int `yaml:"top_k"`
}

// TranscribeConfig holds the first-stage recognition settings.
type TranscribeConfig struct {
	// Passes is the number of recognition passes. Default: 3.
	Passes int `yaml:"passes"`

	// PassTimeout bounds a single pass. Default: 5m.
	PassTimeout Duration `yaml:"pass_timeout"`

	// Language is the ISO 639-1 language hint. Default: "en".
	Language string `yaml:"language"`

	// Temperature is the sampling temperature of the first pass, in [0, 1].
	// Later passes add a fixed step on top. Default: 0.
	Temperature float64 `yaml:"temperature"`

	// PromptCharBudget bounds the rendered prompt length. Default: 800.
	PromptCharBudget int `yaml:"prompt_char_budget"`

	// PromptLimit caps how many knowledge records contribute a name to the
	// prompt. Default: 1000.
	PromptLimit int `yaml:"prompt_limit"`
}

// MatchConfig holds the n-gram matching settings.
type MatchConfig struct {
	// MinGram and MaxGram are the inclusive n-gram window sizes.
	// Defaults: 1 and 3.
	MinGram int `yaml:"min_gram"`
	MaxGram int `yaml:"max_gram"`

	// Threshold is the minimum accepted similarity score in [0, 100].
	// Default: 70.
	Threshold float64 `yaml:"threshold"`

	// MaxSuggestions caps candidates kept per record. Default: 3.
	MaxSuggestions int `yaml:"max_suggestions"`
}

// VerifyConfig holds the verification stage settings.
type VerifyConfig struct {
	// DisagreementPenalty scales a candidate's score when the verification
	// round misses it, in [0, 1]. Default: 0.6.
	DisagreementPenalty float64 `yaml:"disagreement_penalty"`

	// LLMCheck enables the advisory LLM plausibility check. Requires
	// providers.llm.
	LLMCheck bool `yaml:"llm_check"`
}

// ProvidersConfig declares the provider implementation per concern.
type ProvidersConfig struct {
	ASR        ProviderEntry `yaml:"asr"`
	LLM        ProviderEntry `yaml:"llm"`
	Embeddings ProviderEntry `yaml:"embeddings"`

	// ASRFallbacks lists recognition backends tried in order when the
	// primary ASR backend fails or its breaker is open.
	ASRFallbacks []ProviderEntry `yaml:"asr_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds.
type ProviderEntry struct {
	// Name selects the implementation (e.g., "whisper-native",
	// "whisper-server", "openai", "ollama", "anthropic").
	Name string `yaml:"name"`

	// APIKey authenticates against hosted providers.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint. For
	// "whisper-server" this is the server URL.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider. For "whisper-native" this
	// is the GGML model file path.
	Model string `yaml:"model"`
}

// OutputConfig controls where stage artifacts are written.
type OutputConfig struct {
	// Dir is the artifact output directory. Default: "out".
	Dir string `yaml:"dir"`

	// Overwrite allows replacing existing artifacts. By default a run
	// refuses to clobber earlier output.
	Overwrite bool `yaml:"overwrite"`
}

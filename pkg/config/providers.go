package config

import "time"

// ASRProviderConfig configures the external ASR collaborator.
type ASRProviderConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKeyEnv string `yaml:"api_key_env"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LLMProviderConfig configures the external LLM collaborator used by the
// LLM Stage Evaluator (C9). The Embedding Service is configured by
// EmbeddingConfig.
type LLMProviderConfig struct {
	Provider string `yaml:"provider"` // e.g. "anthropic"
	Model string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries int `yaml:"max_retries"`
	// RetryBackoff is a backoff schedule (1s, 3s, 10s by default). No code
	// reads MaxRetries or RetryBackoff, and the provider adapters in this
	// module add no retry loop of their own.
	RetryBackoff []time.Duration `yaml:"-"`
}

// EmbeddingConfig configures the Embedding Service (C3).
type EmbeddingConfig struct {
	Endpoint string `yaml:"endpoint"`
	Dimensions int `yaml:"dimensions"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CacheSize int `yaml:"cache_size"`
	RedisAddr string `yaml:"redis_addr,omitempty"`
}

// StageTimeouts configures the per-step suspension-point deadlines from
// ("Suspension points").
type StageTimeouts struct {
	ASRDownload time.Duration `yaml:"asr_download"`
	ASRProvider time.Duration `yaml:"asr_provider"`
	Alignment time.Duration `yaml:"alignment"`
	LLMStage time.Duration `yaml:"llm_stage"`
	Embedding time.Duration `yaml:"embedding"`
}

// DefaultASRProviderConfig returns built-in ASR provider defaults.
func DefaultASRProviderConfig() *ASRProviderConfig {
	return &ASRProviderConfig{
		Endpoint: "",
		APIKeyEnv: "ASR_API_KEY",
		DownloadTimeout: 30 * time.Second,
		RequestTimeout: 120 * time.Second,
	}
}

// DefaultLLMProviderConfig returns built-in LLM provider defaults.
func DefaultLLMProviderConfig() *LLMProviderConfig {
	return &LLMProviderConfig{
		Provider: "anthropic",
		Model: "claude-haiku-4-5",
		APIKeyEnv: "ANTHROPIC_API_KEY",
		RequestTimeout: 60 * time.Second,
		MaxRetries: 3,
		RetryBackoff: []time.Duration{1 * time.Second, 3 * time.Second, 10 * time.Second},
	}
}

// DefaultEmbeddingConfig returns built-in embedding service defaults.
func DefaultEmbeddingConfig() *EmbeddingConfig {
	return &EmbeddingConfig{
		Dimensions: 768,
		RequestTimeout: 10 * time.Second,
		CacheSize: 10000,
	}
}

// DefaultStageTimeouts returns built-in per-stage suspension timeouts.
func DefaultStageTimeouts() *StageTimeouts {
	return &StageTimeouts{
		ASRDownload: 30 * time.Second,
		ASRProvider: 120 * time.Second,
		Alignment: 120 * time.Second,
		LLMStage: 60 * time.Second,
		Embedding: 10 * time.Second,
	}
}

// Package config loads and validates the QA evaluation engine's
// configuration: a YAML file merged with environment variable overrides,
// plus the system-wide tunables used by the detection, scoring, and queue
// subsystems.
package config

// Config is the umbrella configuration object returned by Initialize and
// used throughout the application.
type Config struct {
	configDir string

	Defaults *Defaults
	Queue *QueueConfig
	Retention *RetentionConfig
	ASR *ASRProviderConfig
	LLM *LLMProviderConfig
	Embedding *EmbeddingConfig
	Timeouts *StageTimeouts

	// RedactionEnabledByDefault is loaded from the config file, but no other
	// package reads it: the pipeline redacts every transcript it builds
	// whenever it has a masking service, and has no per-flow switch.
	RedactionEnabledByDefault bool `yaml:"redaction_enabled_by_default"`
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// yamlConfig mirrors the on-disk YAML file structure.
type yamlConfig struct {
	Defaults *Defaults `yaml:"defaults"`
	Queue *QueueConfig `yaml:"queue"`
	Retention *RetentionConfig `yaml:"retention"`
	ASR *ASRProviderConfig `yaml:"asr"`
	LLM *LLMProviderConfig `yaml:"llm"`
	Embedding *EmbeddingConfig `yaml:"embedding"`
	RedactionEnabledByDefault *bool `yaml:"redaction_enabled_by_default"`
}

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, merges, validates, and returns ready-to-use
// configuration.
//
// Steps performed:
//  1. Start from built-in defaults.
//  2. Load qaengine.yaml from configDir (if present) and expand ${VAR} env
//     references in its raw bytes.
//  3. Merge the loaded file over the defaults (user values win).
//  4. Validate the merged configuration.
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg := &Config{
		configDir:                 configDir,
		Defaults:                  DefaultDefaults(),
		Queue:                     DefaultQueueConfig(),
		Retention:                 DefaultRetentionConfig(),
		ASR:                       DefaultASRProviderConfig(),
		LLM:                       DefaultLLMProviderConfig(),
		Embedding:                 DefaultEmbeddingConfig(),
		Timeouts:                  DefaultStageTimeouts(),
		RedactionEnabledByDefault: true,
	}

	path := filepath.Join(configDir, "qaengine.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("No qaengine.yaml found, using built-in defaults")
			if err := validate(cfg); err != nil {
				return nil, fmt.Errorf("configuration validation failed: %w", err)
			}
			return cfg, nil
		}
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(raw)

	var fileCfg yamlConfig
	if err := yaml.Unmarshal(expanded, &fileCfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
	}

	if err := applyOverrides(cfg, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to merge %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully")
	return cfg, nil
}

// applyOverrides merges user-supplied YAML values over the built-in
// defaults using mergo, with WithOverride so non-zero file values win.
func applyOverrides(cfg *Config, file *yamlConfig) error {
	if file.Defaults != nil {
		if err := mergo.Merge(cfg.Defaults, *file.Defaults, mergo.WithOverride); err != nil {
			return err
		}
	}
	if file.Queue != nil {
		if err := mergo.Merge(cfg.Queue, *file.Queue, mergo.WithOverride); err != nil {
			return err
		}
	}
	if file.Retention != nil {
		if err := mergo.Merge(cfg.Retention, *file.Retention, mergo.WithOverride); err != nil {
			return err
		}
	}
	if file.ASR != nil {
		if err := mergo.Merge(cfg.ASR, *file.ASR, mergo.WithOverride); err != nil {
			return err
		}
	}
	if file.LLM != nil {
		if err := mergo.Merge(cfg.LLM, *file.LLM, mergo.WithOverride); err != nil {
			return err
		}
	}
	if file.Embedding != nil {
		if err := mergo.Merge(cfg.Embedding, *file.Embedding, mergo.WithOverride); err != nil {
			return err
		}
	}
	if file.RedactionEnabledByDefault != nil {
		cfg.RedactionEnabledByDefault = *file.RedactionEnabledByDefault
	}
	return nil
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

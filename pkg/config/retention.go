package config

import "time"

// RetentionConfig holds data retention and cleanup settings for terminal
// Evaluations and SandboxRuns. The config validator checks some of them,
// but no other package reads them: there is no cleanup loop, and nothing
// deletes or soft-deletes records.
type RetentionConfig struct {
	// SessionRetentionDays is the retention period, in days, for completed
	// evaluations.
	SessionRetentionDays int `yaml:"session_retention_days"`

	// SandboxRunTTL is the maximum age of a SandboxRun.
	SandboxRunTTL time.Duration `yaml:"sandbox_run_ttl"`

	// CleanupInterval is the interval between cleanup passes.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		SessionRetentionDays: 365,
		SandboxRunTTL:        7 * 24 * time.Hour,
		CleanupInterval:      12 * time.Hour,
	}
}

package config

import "time"

// RetentionConfig controls the tombstone cleanup sweep for completed
// TaskToRun rows (internal/cleanup). Off by default: see DESIGN.md.
type RetentionConfig struct {
	Enabled         bool          `yaml:"enabled"`
	TaskRetention   time.Duration `yaml:"task_retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		Enabled:         false,
		TaskRetention:   30 * 24 * time.Hour,
		CleanupInterval: 12 * time.Hour,
	}
}

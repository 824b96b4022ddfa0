package config

import "fmt"

// Validator validates loaded configuration comprehensively with clear
// error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation, fail-fast at the first
// error.
func (v *Validator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := v.validateDatabase(); err != nil {
		return fmt.Errorf("database validation failed: %w", err)
	}
	if err := v.validateScheduler(); err != nil {
		return fmt.Errorf("scheduler validation failed: %w", err)
	}
	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateServer() error {
	s := v.cfg.Server
	if s.ListenAddr == "" {
		return NewValidationError("listen_addr", fmt.Errorf("must not be empty"))
	}
	if s.RequestTimeout <= 0 {
		return NewValidationError("request_timeout", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	d := v.cfg.Database
	if d.Host == "" {
		return NewValidationError("host", fmt.Errorf("must not be empty"))
	}
	if d.Port <= 0 {
		return NewValidationError("port", fmt.Errorf("must be positive"))
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		return NewValidationError("max_idle_conns", fmt.Errorf("cannot exceed max_open_conns (%d)", d.MaxOpenConns))
	}
	return nil
}

func (v *Validator) validateScheduler() error {
	s := v.cfg.Scheduler
	if s.MatcherFanout <= 0 {
		return NewValidationError("matcher_fanout", fmt.Errorf("must be positive"))
	}
	if s.MaxDimensionPowerset <= 0 {
		return NewValidationError("max_dimension_powerset", fmt.Errorf("must be positive"))
	}
	if s.ChunkSize <= 0 {
		return NewValidationError("chunk_size", fmt.Errorf("must be positive"))
	}
	if s.BotDeathTimeout <= 0 {
		return NewValidationError("bot_death_timeout", fmt.Errorf("must be positive"))
	}
	if s.SweepInterval <= 0 {
		return NewValidationError("sweep_interval", fmt.Errorf("must be positive"))
	}
	if s.PollBaseBackoff <= 0 {
		return NewValidationError("poll_base_backoff", fmt.Errorf("must be positive"))
	}
	if s.PollMaxBackoff < s.PollBaseBackoff {
		return NewValidationError("poll_max_backoff", fmt.Errorf("cannot be less than poll_base_backoff"))
	}
	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention
	if r.Enabled && r.TaskRetention <= 0 {
		return NewValidationError("task_retention", fmt.Errorf("must be positive when retention is enabled"))
	}
	return nil
}

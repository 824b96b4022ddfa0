package config

import "time"

// SchedulerConfig contains the reservation engine, matcher, update pipeline,
// and sweeper tunables (spec.md §4.1-§4.8).
type SchedulerConfig struct {
	// MatcherFanout is how many candidate TaskToRun rows internal/matcher
	// returns per poll before the reservation engine starts its claim loop.
	MatcherFanout int `yaml:"matcher_fanout"`

	// MaxDimensionPowerset bounds how many subsets internal/matcher will
	// enumerate for a bot's dimension set; a bot whose powerset would exceed
	// this is quarantined instead of matched (spec.md §4.3).
	MaxDimensionPowerset int `yaml:"max_dimension_powerset"`

	// ChunkSize is the maximum byte size of a single TaskOutputChunk row.
	ChunkSize int `yaml:"chunk_size"`

	// BotDeathTimeout is how long a TaskRunResult may go without an update
	// before the sweeper declares BOT_DIED (spec.md §4.7).
	BotDeathTimeout time.Duration `yaml:"bot_death_timeout"`

	// SweepInterval is how often the sweeper runs both its scans.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// PollBaseBackoff and PollMaxBackoff bound the bot poll protocol's sleep
	// backoff (spec.md §4.8).
	PollBaseBackoff time.Duration `yaml:"poll_base_backoff"`
	PollMaxBackoff  time.Duration `yaml:"poll_max_backoff"`

	// PriorityFloor is the minimum (best) priority value a request may have;
	// lower numbers are higher priority, so requests are clamped up to this
	// floor (spec.md §4.1). The clamp applies to every request; no caller
	// identity is exempt from it.
	PriorityFloor uint8 `yaml:"priority_floor"`

	// BotVersion is the server's expected bot binary version string; a poll
	// reporting a different version is told to "update" (spec.md §4.8).
	BotVersion string `yaml:"bot_version"`

	// RestartAfter is the max bot uptime before a poll is told to "restart".
	RestartAfter time.Duration `yaml:"restart_after"`
}

// DefaultSchedulerConfig returns the built-in scheduler defaults.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		MatcherFanout:        50,
		MaxDimensionPowerset: 1024,
		ChunkSize:            100 * 1024,
		BotDeathTimeout:      5 * time.Minute,
		SweepInterval:        1 * time.Minute,
		PollBaseBackoff:      1 * time.Second,
		PollMaxBackoff:       60 * time.Second,
		PriorityFloor:        100,
		BotVersion:           "1",
		RestartAfter:         7 * 24 * time.Hour,
	}
}

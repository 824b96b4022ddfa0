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

// swarmschedYAMLConfig represents the complete swarmsched.yaml file
// structure.
type swarmschedYAMLConfig struct {
	Server    *ServerConfig    `yaml:"server"`
	Database  *DatabaseConfig  `yaml:"database"`
	Scheduler *SchedulerConfig `yaml:"scheduler"`
	Retention *RetentionConfig `yaml:"retention"`
}

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load swarmsched.yaml from configDir (missing file is not an error —
//     compiled-in defaults are used)
//  2. Expand environment variables
//  3. Merge user-provided values over compiled-in defaults
//  4. Validate all configuration
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.Info("configuration initialized successfully",
		"listen_addr", cfg.Server.ListenAddr,
		"db_host", cfg.Database.Host,
		"matcher_fanout", cfg.Scheduler.MatcherFanout)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	yamlCfg, err := loadYAML(configDir)
	if err != nil {
		return nil, NewLoadError("swarmsched.yaml", err)
	}

	server := DefaultServerConfig()
	if yamlCfg.Server != nil {
		if err := mergo.Merge(server, yamlCfg.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}

	database := DefaultDatabaseConfig()
	if yamlCfg.Database != nil {
		if err := mergo.Merge(database, yamlCfg.Database, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge database config: %w", err)
		}
	}

	scheduler := DefaultSchedulerConfig()
	if yamlCfg.Scheduler != nil {
		if err := mergo.Merge(scheduler, yamlCfg.Scheduler, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge scheduler config: %w", err)
		}
	}

	retention := DefaultRetentionConfig()
	if yamlCfg.Retention != nil {
		if err := mergo.Merge(retention, yamlCfg.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}

	return &Config{
		configDir: configDir,
		Server:    server,
		Database:  database,
		Scheduler: scheduler,
		Retention: retention,
	}, nil
}

func loadYAML(configDir string) (*swarmschedYAMLConfig, error) {
	var cfg swarmschedYAMLConfig

	path := filepath.Join(configDir, "swarmsched.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No file on disk is fine; compiled-in defaults apply.
			return &cfg, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &cfg, nil
}

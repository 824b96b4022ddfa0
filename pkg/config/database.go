package config

import (
	"time"

	"github.com/luci/swarmsched/pkg/database"
)

// DatabaseConfig mirrors pkg/database.Config with YAML tags so it can be
// read from swarmsched.yaml, where the loader merges and validates it. The
// server's connection settings come from env vars only (DB_HOST,
// DB_PASSWORD, etc, see database.LoadConfigFromEnv); the YAML values are not
// applied to the database connection.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// DefaultDatabaseConfig returns the built-in database defaults.
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "swarmsched",
		Database:        "swarmsched",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}
}

// ToDatabaseConfig converts the YAML-sourced config into pkg/database.Config,
// filling Password from DB_PASSWORD (never read from YAML).
func (c *DatabaseConfig) ToDatabaseConfig(password string) database.Config {
	return database.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        password,
		Database:        c.Database,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// Package config loads orchestrator-core's YAML configuration: server
// ports, database connection settings, scheduler tuning, checkpoint
// retention, and the validation confidence threshold, all kept
// configurable rather than hardcoded.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object.
type Config struct {
	Server     Server     `yaml:"server"`
	Database   Database   `yaml:"database"`
	Scheduler  Scheduler  `yaml:"scheduler"`
	Checkpoint Checkpoint `yaml:"checkpoint"`
	Validation Validation `yaml:"validation"`
	Logging    Logging    `yaml:"logging"`
}

// Server configures the orchestrator-service HTTP binding.
type Server struct {
	Port       int `yaml:"port"`
	HealthPort int `yaml:"health_port"`
}

// Database configures the Postgres connection pool.
type Database struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// Scheduler configures the bounded-parallelism task runner shared by the
// tool service and the workflow engine.
type Scheduler struct {
	MaxParallelTasks  int           `yaml:"max_parallel_tasks"`
	DefaultTaskTimeout time.Duration `yaml:"default_task_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	BaseRetryDelay    time.Duration `yaml:"base_retry_delay"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// Checkpoint configures checkpoint retention. MaxPerRun caps the engine's
// in-memory checkpoint list; persisted checkpoint rows are not pruned, and
// PruneOnSave is not read by the engine or the store.
type Checkpoint struct {
	MaxPerRun   int  `yaml:"max_per_run"`
	PruneOnSave bool `yaml:"prune_on_save"`
}

// Validation configures the confidence-filtering threshold the validate
// node applies.
type Validation struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// Logging configures the logrus logger's level and formatter.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in defaults, used whenever a section is absent
// from the loaded YAML.
func Default() *Config {
	return &Config{
		Server:     Server{Port: 8080, HealthPort: 8081},
		Database:   DefaultDatabaseConfig(),
		Scheduler: Scheduler{
			MaxParallelTasks:   4,
			DefaultTaskTimeout: 5 * time.Minute,
			MaxRetries:         3,
			BaseRetryDelay:     5 * time.Second,
			MaxRetryDelay:      300 * time.Second,
			BackoffMultiplier:  2.0,
		},
		Checkpoint: Checkpoint{MaxPerRun: 20, PruneOnSave: true},
		Validation: Validation{ConfidenceThreshold: 0.3},
		Logging:    Logging{Level: "info", Format: "text"},
	}
}

// DefaultDatabaseConfig returns the baseline database connection settings.
func DefaultDatabaseConfig() Database {
	return Database{
		Host:            "localhost",
		Port:            5432,
		User:            "orchestrator",
		Database:        "orchestrator_core",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// LoadFromEnv overlays environment variables onto the Database config. An
// invalid DB_PORT is silently ignored, keeping the existing value.
func (d *Database) LoadFromEnv() {
	if v := os.Getenv("DB_HOST"); v != "" {
		d.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			d.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		d.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		d.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		d.Database = v
	}
	if v := os.Getenv("DB_SSL_MODE"); v != "" {
		d.SSLMode = v
	}
}

// DSN renders the Database config as a libpq connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// Load reads and parses a YAML config file at path, filling any absent
// section from Default().
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

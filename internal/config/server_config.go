package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	AuthToken       string        `yaml:"auth_token"` // empty disables auth on mutating routes
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// StorageSettings contains in-memory storage configuration
type StorageSettings struct {
	BufferSize int `yaml:"buffer_size"`
}

// DatabaseSettings contains SQLite persistence configuration
type DatabaseSettings struct {
	Enabled         bool          `yaml:"enabled"`
	Path            string        `yaml:"path"`
	BatchSize       int           `yaml:"batch_size"`
	FlushPeriod     time.Duration `yaml:"flush_period"`
	ChannelSize     int           `yaml:"channel_size"`
	RetentionDays   int           `yaml:"retention_days"`
	CleanupSchedule string        `yaml:"cleanup_schedule"`
}

func (s *ServerSettings) applyDefaults() {
	if s.Port == 0 {
		s.Port = 8081
	}
	if s.Host == "" {
		s.Host = "localhost"
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 60 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 10 * time.Second
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 10 * time.Second
	}
}

func (s *ServerSettings) validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func (s *StorageSettings) applyDefaults() {
	if s.BufferSize == 0 {
		s.BufferSize = 100
	}
}

func (d *DatabaseSettings) applyDefaults() {
	if d.Path == "" {
		d.Path = "./data/flood-monitor.db"
	}
	if d.BatchSize == 0 {
		d.BatchSize = 100
	}
	if d.FlushPeriod == 0 {
		d.FlushPeriod = 5 * time.Second
	}
	if d.ChannelSize == 0 {
		d.ChannelSize = 1000
	}
	if d.RetentionDays == 0 {
		d.RetentionDays = 30
	}
	if d.CleanupSchedule == "" {
		d.CleanupSchedule = "@every 1h"
	}
}

func (d *DatabaseSettings) validate() error {
	if !d.Enabled {
		return nil
	}
	if d.RetentionDays < 1 {
		return fmt.Errorf("retention days must be at least 1")
	}
	if d.BatchSize < 1 || d.ChannelSize < d.BatchSize {
		return fmt.Errorf("database batch size must be positive and not exceed channel size")
	}
	if _, err := cron.ParseStandard(d.CleanupSchedule); err != nil {
		return fmt.Errorf("cleanup schedule %q: %w", d.CleanupSchedule, err)
	}
	return nil
}

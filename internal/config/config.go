package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds all configuration for the flood monitor
type AppConfig struct {
	Server   ServerSettings   `yaml:"server"`
	Feed     FeedSettings     `yaml:"feed"`
	Poller   PollerSettings   `yaml:"poller"`
	Storage  StorageSettings  `yaml:"storage"`
	Database DatabaseSettings `yaml:"database"`
	Alert    AlertSettings    `yaml:"alert"`
	Logging  LoggingConfig    `yaml:"logging"`
}

// FeedSettings describes the ThingSpeak channel the readings come from
type FeedSettings struct {
	BaseURL            string        `yaml:"base_url"`
	ChannelID          string        `yaml:"channel_id"`
	ReadAPIKey         string        `yaml:"read_api_key"`
	Field              string        `yaml:"field"`
	Results            int           `yaml:"results"`
	Timeout            time.Duration `yaml:"timeout"`
	MinRequestInterval time.Duration `yaml:"min_request_interval"`
}

// PollerSettings controls the fetch cadence
type PollerSettings struct {
	Interval time.Duration `yaml:"interval"`
}

// AlertSettings controls flood risk flagging
type AlertSettings struct {
	FloodThreshold float64 `yaml:"flood_threshold"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level    string `yaml:"level"`     // debug, info, warn, error
	Format   string `yaml:"format"`    // json or text
	FilePath string `yaml:"file_path"` // empty = stdout only
}

var fieldPattern = regexp.MustCompile(`^field[1-8]$`)

// LoadAppConfig loads configuration from a YAML file, applies defaults and
// environment overrides, then validates the result.
func LoadAppConfig(path string) (*AppConfig, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var config AppConfig
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	config.ApplyDefaults()
	if err := config.OverrideFromEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields
func (ac *AppConfig) ApplyDefaults() {
	ac.Server.applyDefaults()
	ac.Storage.applyDefaults()
	ac.Database.applyDefaults()

	if ac.Feed.BaseURL == "" {
		ac.Feed.BaseURL = "https://api.thingspeak.com"
	}
	if ac.Feed.Field == "" {
		ac.Feed.Field = "field1"
	}
	if ac.Feed.Results == 0 {
		ac.Feed.Results = 10
	}
	if ac.Feed.Timeout == 0 {
		ac.Feed.Timeout = 10 * time.Second
	}
	if ac.Feed.MinRequestInterval == 0 {
		ac.Feed.MinRequestInterval = 5 * time.Second
	}
	if ac.Poller.Interval == 0 {
		ac.Poller.Interval = 15 * time.Second
	}
	if ac.Alert.FloodThreshold == 0 {
		ac.Alert.FloodThreshold = 3.5
	}
	if ac.Logging.Level == "" {
		ac.Logging.Level = "info"
	}
	if ac.Logging.Format == "" {
		ac.Logging.Format = "json"
	}
}

// OverrideFromEnv overrides config values from environment variables.
// Only non-empty variables are applied.
func (ac *AppConfig) OverrideFromEnv() error {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT %q: %w", v, err)
		}
		ac.Server.Port = port
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		ac.Server.Host = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		ac.Server.AuthToken = v
	}
	if v := os.Getenv("FEED_BASE_URL"); v != "" {
		ac.Feed.BaseURL = v
	}
	if v := os.Getenv("FEED_CHANNEL_ID"); v != "" {
		ac.Feed.ChannelID = v
	}
	if v := os.Getenv("FEED_READ_API_KEY"); v != "" {
		ac.Feed.ReadAPIKey = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		ac.Database.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		ac.Logging.Level = v
	}
	return nil
}

// Validate checks required fields and ranges
func (ac *AppConfig) Validate() error {
	if err := ac.Server.validate(); err != nil {
		return err
	}
	if ac.Feed.ChannelID == "" {
		return fmt.Errorf("feed channel ID is required")
	}
	if !fieldPattern.MatchString(ac.Feed.Field) {
		return fmt.Errorf("feed field must be field1..field8, got %q", ac.Feed.Field)
	}
	if ac.Feed.Results < 1 || ac.Feed.Results > 8000 {
		return fmt.Errorf("feed results must be between 1 and 8000")
	}
	if ac.Feed.MinRequestInterval < 0 {
		return fmt.Errorf("feed min request interval cannot be negative")
	}
	if ac.Poller.Interval < 1*time.Second {
		return fmt.Errorf("poll interval must be at least 1 second")
	}
	if ac.Alert.FloodThreshold < 0 {
		return fmt.Errorf("flood threshold cannot be negative")
	}
	if ac.Storage.BufferSize < 10 {
		return fmt.Errorf("buffer size must be at least 10")
	}
	if err := ac.Database.validate(); err != nil {
		return err
	}
	switch ac.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be json or text, got %q", ac.Logging.Format)
	}
	return nil
}

// String returns a safe string representation (hides secrets)
func (ac *AppConfig) String() string {
	return fmt.Sprintf("AppConfig{Server: [%s:%d, Token=%s], Feed: [URL=%s, Channel=%s, Key=%s, Field=%s, Results=%d], Poller: %+v, Storage: %+v, Database: %+v, Alert: %+v, Logging: %+v}",
		ac.Server.Host,
		ac.Server.Port,
		maskToken(ac.Server.AuthToken),
		ac.Feed.BaseURL,
		ac.Feed.ChannelID,
		maskToken(ac.Feed.ReadAPIKey),
		ac.Feed.Field,
		ac.Feed.Results,
		ac.Poller,
		ac.Storage,
		ac.Database,
		ac.Alert,
		ac.Logging,
	)
}

// maskToken masks all but first 4 characters of a token
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

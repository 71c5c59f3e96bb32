package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Engine      EngineConfig     `toml:"engine"`
	Providers   ProvidersConfig  `toml:"providers"`
	Compositor  CompositorConfig `toml:"compositor"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	WebSocket   WebSocketConfig  `toml:"websocket"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// EngineConfig controls the submission and polling engine
type EngineConfig struct {
	PollInterval     string  `toml:"poll_interval"`       // e.g., "3s" - delay between provider status polls
	MaxPollAttempts  int     `toml:"max_poll_attempts"`   // Poll ceiling before a job is forced to failed
	MaxSubmitRetries int     `toml:"max_submit_retries"`  // Outer submit+poll retry ceiling for retryable kinds
	SubmitRatePerSec float64 `toml:"submit_rate_per_sec"` // Per-provider submission rate limit
	SubmitBurst      int     `toml:"submit_burst"`        // Rate limiter burst size
}

// ProvidersConfig holds per-provider credentials and model selection
type ProvidersConfig struct {
	Gemini GeminiConfig `toml:"gemini"`
	Claude ClaudeConfig `toml:"claude"`
}

type GeminiConfig struct {
	APIKey     string `toml:"api_key"`
	ImageModel string `toml:"image_model"` // default "gemini-2.5-flash-image"
	VideoModel string `toml:"video_model"` // default "veo-3.0-generate-001"
}

type ClaudeConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"` // default "claude-sonnet-4-5"
}

// CompositorConfig controls the fixed-layout portrait grid
type CompositorConfig struct {
	Width     int `toml:"width"`      // Canvas width in pixels
	Height    int `toml:"height"`     // Canvas height in pixels
	Columns   int `toml:"columns"`    // Grid columns
	Rows      int `toml:"rows"`       // Grid rows
	Padding   int `toml:"padding"`    // Padding between cells in pixels
	LabelBand int `toml:"label_band"` // Height reserved below each cell for the name label
}

// SchedulerConfig controls background maintenance
type SchedulerConfig struct {
	Enabled       bool   `toml:"enabled"`
	SweepSchedule string `toml:"sweep_schedule"` // Cron schedule for the stale-job sweep
	StaleAfter    string `toml:"stale_after"`    // e.g., "30m" - processing records older than this are failed
	GCSchedule    string `toml:"gc_schedule"`    // Cron schedule for badger value log GC
}

type WebSocketConfig struct {
	ReadBufferSize  int `toml:"read_buffer_size"`
	WriteBufferSize int `toml:"write_buffer_size"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8585,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/backlot",
				ResetOnStartup: false,
			},
		},
		Engine: EngineConfig{
			PollInterval:     "3s",
			MaxPollAttempts:  100,
			MaxSubmitRetries: 3,
			SubmitRatePerSec: 2,
			SubmitBurst:      4,
		},
		Providers: ProvidersConfig{
			Gemini: GeminiConfig{
				ImageModel: "gemini-2.5-flash-image",
				VideoModel: "veo-3.0-generate-001",
			},
			Claude: ClaudeConfig{
				Model: "claude-sonnet-4-5",
			},
		},
		Compositor: CompositorConfig{
			Width:     1920,
			Height:    1080,
			Columns:   3,
			Rows:      2,
			Padding:   16,
			LabelBand: 28,
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			SweepSchedule: "*/5 * * * *",
			StaleAfter:    "30m",
			GCSchedule:    "0 * * * *",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadConfig loads configuration from a TOML file with environment overrides.
// A missing file is not an error - defaults are used.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else {
			if err := toml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies BACKLOT_* environment variable overrides
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("BACKLOT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("BACKLOT_SERVER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("BACKLOT_BADGER_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("BACKLOT_GEMINI_API_KEY"); v != "" {
		config.Providers.Gemini.APIKey = v
	}
	if v := os.Getenv("BACKLOT_CLAUDE_API_KEY"); v != "" {
		config.Providers.Claude.APIKey = v
	}
	if v := os.Getenv("BACKLOT_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if _, err := c.PollInterval(); err != nil {
		return fmt.Errorf("invalid engine.poll_interval: %w", err)
	}
	if c.Engine.MaxPollAttempts <= 0 {
		return fmt.Errorf("engine.max_poll_attempts must be positive, got %d", c.Engine.MaxPollAttempts)
	}
	if c.Engine.MaxSubmitRetries <= 0 {
		return fmt.Errorf("engine.max_submit_retries must be positive, got %d", c.Engine.MaxSubmitRetries)
	}
	if c.Compositor.Columns <= 0 || c.Compositor.Rows <= 0 {
		return fmt.Errorf("compositor grid must have positive dimensions, got %dx%d", c.Compositor.Columns, c.Compositor.Rows)
	}
	if c.Scheduler.Enabled {
		if _, err := c.StaleAfter(); err != nil {
			return fmt.Errorf("invalid scheduler.stale_after: %w", err)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}
	return nil
}

// PollInterval parses the engine poll interval duration
func (c *Config) PollInterval() (time.Duration, error) {
	return time.ParseDuration(c.Engine.PollInterval)
}

// StaleAfter parses the scheduler staleness horizon
func (c *Config) StaleAfter() (time.Duration, error) {
	return time.ParseDuration(c.Scheduler.StaleAfter)
}

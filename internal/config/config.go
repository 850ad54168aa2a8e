// Package config loads velvetrope configuration from an optional YAML file
// with environment-variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all velvetrope configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Game     GameConfig     `yaml:"game"`
	Database DatabaseConfig `yaml:"database"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LLMConfig configures the chat-completion transport and the model behind
// each agent role. The persona usually runs on a small model and the judge on
// a larger one; the compactor defaults to the persona's model.
type LLMConfig struct {
	APIKey         string   `yaml:"api_key"`
	BaseURL        string   `yaml:"base_url"`
	Timeout        Duration `yaml:"timeout"`
	MaxRetries     int      `yaml:"max_retries"`
	JSONRetries    int      `yaml:"json_retries"`
	DoormanModel   string   `yaml:"doorman_model"`
	JudgeModel     string   `yaml:"judge_model"`
	CompactorModel string   `yaml:"compactor_model"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "45s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// GameConfig holds pacing knobs. Thresholds are process-wide; sessions cannot
// override them.
type GameConfig struct {
	StartingScore       int `yaml:"starting_score"`
	WinThreshold        int `yaml:"win_threshold"`
	LoseThreshold       int `yaml:"lose_threshold"`
	MaxDeltaPerTurn     int `yaml:"max_delta_per_turn"`
	RecentWindow        int `yaml:"recent_window"`
	CompactionThreshold int `yaml:"compaction_threshold"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8000"},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Timeout:     Duration(45 * time.Second),
			MaxRetries:  3,
			JSONRetries: 1,
		},
		Game: GameConfig{
			StartingScore:       30,
			WinThreshold:        100,
			LoseThreshold:       -50,
			MaxDeltaPerTurn:     25,
			RecentWindow:        10,
			CompactionThreshold: 12,
		},
		Database: DatabaseConfig{Path: "velvetrope.db"},
		LogLevel: "info",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment overrides. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays environment variables on the loaded values. Names match
// the original deployment's .env convention.
func (c *Config) applyEnv() {
	envString(&c.Server.Addr, "SERVER_ADDR")
	envString(&c.LLM.APIKey, "LLM_API_KEY")
	envString(&c.LLM.BaseURL, "LLM_BASE_URL")
	envString(&c.LLM.DoormanModel, "DOORMAN_MODEL")
	envString(&c.LLM.JudgeModel, "JUDGE_MODEL")
	envString(&c.LLM.CompactorModel, "COMPACTOR_MODEL")
	envInt(&c.LLM.MaxRetries, "LLM_MAX_RETRIES")
	envInt(&c.LLM.JSONRetries, "LLM_JSON_RETRIES")
	envInt(&c.Game.StartingScore, "STARTING_SCORE")
	envInt(&c.Game.WinThreshold, "WIN_THRESHOLD")
	envInt(&c.Game.LoseThreshold, "LOSE_THRESHOLD")
	envInt(&c.Game.MaxDeltaPerTurn, "MAX_DELTA_PER_TURN")
	envInt(&c.Game.RecentWindow, "RECENT_WINDOW")
	envInt(&c.Game.CompactionThreshold, "COMPACTION_THRESHOLD")
	envString(&c.Database.Path, "DATABASE_PATH")
	envString(&c.LogLevel, "LOG_LEVEL")

	if raw := os.Getenv("LLM_TIMEOUT_SECONDS"); raw != "" {
		if seconds, err := strconv.ParseFloat(raw, 64); err == nil && seconds > 0 {
			c.LLM.Timeout = Duration(seconds * float64(time.Second))
		}
	}
}

// Validate checks the fields the engine cannot run without.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.LLM.DoormanModel == "" || c.LLM.JudgeModel == "" {
		return fmt.Errorf("DOORMAN_MODEL and JUDGE_MODEL are required")
	}
	if c.Game.WinThreshold <= c.Game.LoseThreshold {
		return fmt.Errorf("win threshold must exceed lose threshold")
	}
	if c.Game.StartingScore <= c.Game.LoseThreshold || c.Game.StartingScore >= c.Game.WinThreshold {
		return fmt.Errorf("starting score must lie strictly between the thresholds")
	}
	return nil
}

func envString(target *string, name string) {
	if value := os.Getenv(name); value != "" {
		*target = value
	}
}

func envInt(target *int, name string) {
	if raw := os.Getenv(name); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			*target = value
		}
	}
}

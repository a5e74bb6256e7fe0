package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPPort          int
	DatabasePath      string
	MaxMessageLength  int
	PostCooldown      time.Duration
	ProbeInterval     time.Duration
	PresenceUpdates   bool
	LimiterPruneEvery time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:          8080,
		DatabasePath:      "~/.boardcast/boardcast.db",
		MaxMessageLength:  500,
		PostCooldown:      5 * time.Second,
		ProbeInterval:     30 * time.Second,
		PresenceUpdates:   true,
		LimiterPruneEvery: 10 * time.Minute,
	}
}

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server   ServerSection   `toml:"server"`
	Limits   LimitsSection   `toml:"limits"`
	Liveness LivenessSection `toml:"liveness"`
}

type ServerSection struct {
	HTTPPort        int    `toml:"http_port"`
	DatabasePath    string `toml:"database_path"`
	PresenceUpdates *bool  `toml:"presence_updates"`
}

type LimitsSection struct {
	MaxMessageLength    int `toml:"max_message_length"`
	PostCooldownSeconds int `toml:"post_cooldown_seconds"`
}

type LivenessSection struct {
	ProbeIntervalSeconds int `toml:"probe_interval_seconds"`
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	defaults := DefaultConfig()
	presence := defaults.PresenceUpdates
	return TOMLConfig{
		Server: ServerSection{
			HTTPPort:        defaults.HTTPPort,
			DatabasePath:    defaults.DatabasePath,
			PresenceUpdates: &presence,
		},
		Limits: LimitsSection{
			MaxMessageLength:    defaults.MaxMessageLength,
			PostCooldownSeconds: int(defaults.PostCooldown / time.Second),
		},
		Liveness: LivenessSection{
			ProbeIntervalSeconds: int(defaults.ProbeInterval / time.Second),
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates default if not
// found, then applies environment overrides (a .env file is honored in
// development).
func LoadConfig(path string) (TOMLConfig, error) {
	path, err := expandHome(path)
	if err != nil {
		return TOMLConfig{}, err
	}

	var config TOMLConfig
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// File doesn't exist, create default config
		config = DefaultTOMLConfig()
		if err := writeDefaultConfig(path, config); err != nil {
			// Still run with defaults if the file can't be written
			// (e.g. read-only config directory)
			applyEnvOverrides(&config)
			return config, nil
		}
	} else {
		if _, err := toml.DecodeFile(path, &config); err != nil {
			return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&config)
	return config, nil
}

// applyEnvOverrides lets the environment win over the config file.
func applyEnvOverrides(config *TOMLConfig) {
	_ = godotenv.Load()

	if v := os.Getenv("BOARDCAST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.HTTPPort = port
		}
	}
	if v := os.Getenv("BOARDCAST_DB"); v != "" {
		config.Server.DatabasePath = v
	}
	if v := os.Getenv("BOARDCAST_PRESENCE_UPDATES"); v != "" {
		enabled := v == "true" || v == "1"
		config.Server.PresenceUpdates = &enabled
	}
}

// writeDefaultConfig writes the default config to a file
func writeDefaultConfig(path string, config TOMLConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	header := `# Boardcast Server Configuration
# This file was auto-generated with default values
# Edit as needed and restart the server for changes to take effect

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ToServerConfig converts TOMLConfig to ServerConfig
func (c *TOMLConfig) ToServerConfig() ServerConfig {
	cfg := DefaultConfig()

	if c.Server.HTTPPort != 0 {
		cfg.HTTPPort = c.Server.HTTPPort
	}
	if strings.TrimSpace(c.Server.DatabasePath) != "" {
		cfg.DatabasePath = c.Server.DatabasePath
	}
	if c.Server.PresenceUpdates != nil {
		cfg.PresenceUpdates = *c.Server.PresenceUpdates
	}
	if c.Limits.MaxMessageLength != 0 {
		cfg.MaxMessageLength = c.Limits.MaxMessageLength
	}
	if c.Limits.PostCooldownSeconds != 0 {
		cfg.PostCooldown = time.Duration(c.Limits.PostCooldownSeconds) * time.Second
	}
	if c.Liveness.ProbeIntervalSeconds != 0 {
		cfg.ProbeInterval = time.Duration(c.Liveness.ProbeIntervalSeconds) * time.Second
	}

	return cfg
}

// GetDatabasePath returns the database path with ~ expanded
func (c *TOMLConfig) GetDatabasePath() (string, error) {
	path := c.Server.DatabasePath
	if path == "" {
		path = DefaultConfig().DatabasePath
	}
	return expandHome(path)
}

func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}
	return path, nil
}

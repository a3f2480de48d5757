// Package config manages nodemailer configuration and on-disk paths
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	// ConfigDirName is the name of the config directory
	ConfigDirName = ".nodemailer"
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// EnvFileName holds optional KEY=value overrides next to the config file
	EnvFileName = ".env"
	// LogFileName is the log file written by `run`
	LogFileName = "nodemailer.log"

	// HomeEnv relocates the whole config directory
	HomeEnv = "NODEMAILER_HOME"
)

// Favorites backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds the instance configuration
type Config struct {
	// Username is the announced identity; empty falls back to the OS login
	Username string `json:"username,omitempty"`

	BroadcastPort int    `json:"broadcast_port"`
	MessagingPort int    `json:"messaging_port"`
	ControlAddr   string `json:"control_addr"`

	BroadcastIntervalMs  int `json:"broadcast_interval_ms"`
	StaleAfterSeconds    int `json:"stale_after_seconds"`
	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
	ConnectTimeoutMs     int `json:"connect_timeout_ms"`
	ReadTimeoutSeconds   int `json:"read_timeout_seconds"`
	MaxMessageBytes      int `json:"max_message_bytes"`

	// FavoritesBackend is "file" (favorites.json) or "sqlite" (data.db)
	FavoritesBackend string `json:"favorites_backend"`

	// Verbose sends logs to stderr instead of the log file
	Verbose bool `json:"verbose"`
}

// Default returns a new Config with default values
func Default() *Config {
	return &Config{
		BroadcastPort:        37220,
		MessagingPort:        37221,
		ControlAddr:          "127.0.0.1:37222",
		BroadcastIntervalMs:  2000,
		StaleAfterSeconds:    30,
		SweepIntervalSeconds: 30,
		ConnectTimeoutMs:     500,
		ReadTimeoutSeconds:   30,
		MaxMessageBytes:      32 << 20,
		FavoritesBackend:     BackendFile,
	}
}

// BroadcastInterval returns the presence broadcast period
func (c *Config) BroadcastInterval() time.Duration {
	return time.Duration(c.BroadcastIntervalMs) * time.Millisecond
}

// StaleAfter returns the staleness threshold
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSeconds) * time.Second
}

// SweepInterval returns the stale-peer sweep period
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// ConnectTimeout returns the outbound connect timeout
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// ReadTimeout returns the inbound idle read timeout
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// Validate checks ports, durations and the favorites backend
func (c *Config) Validate() error {
	if err := validPort("broadcast_port", c.BroadcastPort); err != nil {
		return err
	}
	if err := validPort("messaging_port", c.MessagingPort); err != nil {
		return err
	}
	if c.BroadcastPort == c.MessagingPort {
		return fmt.Errorf("broadcast_port and messaging_port must differ (both %d)", c.BroadcastPort)
	}
	if _, _, err := net.SplitHostPort(c.ControlAddr); err != nil {
		return fmt.Errorf("invalid control_addr %q: %w", c.ControlAddr, err)
	}

	positive := []struct {
		name  string
		value int
	}{
		{"broadcast_interval_ms", c.BroadcastIntervalMs},
		{"stale_after_seconds", c.StaleAfterSeconds},
		{"sweep_interval_seconds", c.SweepIntervalSeconds},
		{"connect_timeout_ms", c.ConnectTimeoutMs},
		{"read_timeout_seconds", c.ReadTimeoutSeconds},
		{"max_message_bytes", c.MaxMessageBytes},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	switch c.FavoritesBackend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown favorites_backend %q (want %q or %q)",
			c.FavoritesBackend, BackendFile, BackendSQLite)
	}
	return nil
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s out of range: %d", name, port)
	}
	return nil
}

// Paths holds commonly used paths
type Paths struct {
	// ConfigDir is ~/.nodemailer
	ConfigDir string
	// ConfigFile is ~/.nodemailer/config.json
	ConfigFile string
	// EnvFile is ~/.nodemailer/.env
	EnvFile string
	// FavoritesFile is ~/.nodemailer/favorites.json
	FavoritesFile string
	// LogsDir is ~/.nodemailer/logs
	LogsDir string
	// LogFile is ~/.nodemailer/logs/nodemailer.log
	LogFile string
}

// GetPaths returns the standard paths, honouring NODEMAILER_HOME
func GetPaths() (*Paths, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return PathsFor(dir), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return PathsFor(filepath.Join(homeDir, ConfigDirName)), nil
}

// PathsFor returns the layout rooted at configDir
func PathsFor(configDir string) *Paths {
	logsDir := filepath.Join(configDir, "logs")
	return &Paths{
		ConfigDir:     configDir,
		ConfigFile:    filepath.Join(configDir, ConfigFileName),
		EnvFile:       filepath.Join(configDir, EnvFileName),
		FavoritesFile: filepath.Join(configDir, "favorites.json"),
		LogsDir:       logsDir,
		LogFile:       filepath.Join(logsDir, LogFileName),
	}
}

// EnsureDirectories creates all required directories
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.ConfigDir, p.LogsDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Load loads configuration from the standard location
func Load() (*Config, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}
	return LoadFile(paths.ConfigFile)
}

// LoadFile loads configuration from path, then applies the .env file next to
// it and the process environment. A missing file yields defaults.
func LoadFile(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(config, filepath.Join(filepath.Dir(path), EnvFileName)); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Save saves configuration to the standard location
func (c *Config) Save() error {
	paths, err := GetPaths()
	if err != nil {
		return err
	}
	return c.SaveFile(paths.ConfigFile)
}

// SaveFile writes the configuration to path
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

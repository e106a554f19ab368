package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server        ServerSection        `toml:"server"`
	Limits        LimitsSection        `toml:"limits"`
	Observability ObservabilitySection `toml:"observability"`
}

type ServerSection struct {
	Address    string `toml:"address"`
	Port       int    `toml:"port"`
	WindowSize int    `toml:"window_size"`
}

type LimitsSection struct {
	MaxClients int `toml:"max_clients"`
}

type ObservabilitySection struct {
	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`
	JournalPath string `toml:"journal_path"`
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: ServerSection{
			Address:    "localhost",
			Port:       15000,
			WindowSize: 3,
		},
		Limits: LimitsSection{
			MaxClients: MaxClients,
		},
		Observability: ObservabilitySection{
			LogLevel: "info",
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates default if not found
func LoadConfig(path string) (TOMLConfig, error) {
	path, err := expandHome(path)
	if err != nil {
		return TOMLConfig{}, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		if err := writeDefaultConfig(path, config); err != nil {
			// An unwritable location still leaves us with usable defaults
			return config, nil
		}
		return config, nil
	}

	config := DefaultTOMLConfig()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
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

	header := `# udpchat server configuration
# This file was auto-generated with default values
# window_size is accepted but currently has no effect

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
func (c *TOMLConfig) ToServerConfig() (ServerConfig, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(c.Server.Address) != "" {
		cfg.Address = c.Server.Address
	}

	if c.Server.Port != 0 {
		cfg.Port = c.Server.Port
	}

	if c.Server.WindowSize != 0 {
		cfg.WindowSize = c.Server.WindowSize
	}

	if c.Limits.MaxClients != 0 {
		cfg.MaxClients = c.Limits.MaxClients
	}

	cfg.MetricsAddr = c.Observability.MetricsAddr

	if c.Observability.JournalPath != "" {
		journalPath, err := expandHome(c.Observability.JournalPath)
		if err != nil {
			return ServerConfig{}, err
		}
		cfg.JournalPath = journalPath
	}

	return cfg, cfg.Validate()
}

// Validate checks the ranges of the numeric settings
func (c ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("invalid window size %d", c.WindowSize)
	}
	if c.MaxClients < 1 {
		return fmt.Errorf("invalid max clients %d", c.MaxClients)
	}
	return nil
}

// expandHome expands a leading ~/ to the user's home directory
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[2:]), nil
}

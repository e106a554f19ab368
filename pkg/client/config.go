package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the structure of the client config file
type TOMLConfig struct {
	Connection ConnectionSection `toml:"connection"`
	Local      LocalSection      `toml:"local"`
}

type ConnectionSection struct {
	Address    string `toml:"address"`
	Port       int    `toml:"port"`
	WindowSize int    `toml:"window_size"`
}

type LocalSection struct {
	Username string `toml:"username"`
	LogLevel string `toml:"log_level"`
}

// ConfigError represents a structured configuration error
type ConfigError struct {
	Path       string
	Message    string
	LineNumber int // 0 if not a parse error
}

func (e *ConfigError) Error() string {
	if e.LineNumber > 0 {
		return fmt.Sprintf("%s: %s (line %d)", e.Path, e.Message, e.LineNumber)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// getXDGConfigHome returns the XDG config directory
func getXDGConfigHome() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return xdg
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config")
}

// DefaultConfigPath returns the client config location under the XDG config home
func DefaultConfigPath() string {
	return filepath.Join(getXDGConfigHome(), "udpchat", "client.toml")
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Connection: ConnectionSection{
			Address:    "localhost",
			Port:       15000,
			WindowSize: 3,
		},
		Local: LocalSection{
			LogLevel: "warn",
		},
	}
}

// LoadClientConfig loads configuration from a TOML file, creates default if not found
func LoadClientConfig(path string) (TOMLConfig, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return TOMLConfig{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		// Unwritable locations still run on defaults
		_ = writeDefaultConfig(path, config)
		return config, nil
	}

	config := DefaultTOMLConfig()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		cfgErr := &ConfigError{
			Path:    path,
			Message: strings.TrimPrefix(err.Error(), "toml: "),
		}
		var parseErr toml.ParseError
		if errors.As(err, &parseErr) {
			cfgErr.LineNumber = parseErr.Position.Line
		}
		return TOMLConfig{}, cfgErr
	}

	if err := validateConfig(&config); err != nil {
		return TOMLConfig{}, &ConfigError{Path: path, Message: err.Error()}
	}

	return config, nil
}

// validateConfig validates configuration values
func validateConfig(config *TOMLConfig) error {
	var problems []string

	if strings.TrimSpace(config.Connection.Address) == "" {
		problems = append(problems, "server address cannot be empty")
	}
	if config.Connection.Port < 1 || config.Connection.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port number: %d (must be 1-65535)", config.Connection.Port))
	}
	if config.Connection.WindowSize < 1 {
		problems = append(problems, fmt.Sprintf("invalid window size: %d (must be at least 1)", config.Connection.WindowSize))
	}
	if config.Local.Username != "" && !ValidUsername(config.Local.Username) {
		problems = append(problems, fmt.Sprintf("invalid username %q (no spaces or commas)", config.Local.Username))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// writeDefaultConfig writes the default config to a file
func writeDefaultConfig(path string, config TOMLConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	header := `# udpchat client configuration
# This file was auto-generated with default values
# window_size is accepted but currently has no effect

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ToConfig converts the file configuration into a client Config
func (c *TOMLConfig) ToConfig() Config {
	return Config{
		Username:   c.Local.Username,
		Address:    c.Connection.Address,
		Port:       c.Connection.Port,
		WindowSize: c.Connection.WindowSize,
	}
}

// ValidUsername reports whether name can be carried in a join message and in
// comma-separated name lists
func ValidUsername(name string) bool {
	return name != "" && !strings.ContainsAny(name, " ,")
}

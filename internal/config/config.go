package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Scan      ScanConfig     `yaml:"scan"`
	Connect   ConnectConfig  `yaml:"connect"`
	Log       LogConfig      `yaml:"log"`
	Clipboard *bool          `yaml:"clipboard"` // Copy scan results to clipboard (default: true)
	Launcher  LauncherConfig `yaml:"launcher"`

	// Lighthouses is an optional default target list, used when a power
	// command is given without addresses.
	Lighthouses []string `yaml:"lighthouses"`
}

// ScanConfig contains discovery settings
type ScanConfig struct {
	Timeout Duration `yaml:"timeout"` // Maximum advertisement scan duration
}

// ConnectConfig contains per-device connection settings
type ConnectConfig struct {
	Timeout Duration `yaml:"timeout"` // BLE connection timeout per attempt
	Retries int      `yaml:"retries"` // Connect/read/write cycles per target
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// LauncherConfig contains quick-launcher generation settings
type LauncherConfig struct {
	Folder   string `yaml:"folder"`    // Destination folder, empty = desktop
	NoWindow bool   `yaml:"no_window"` // Windows only: emit a .vbs that hides the console window
}

// ClipboardEnabled returns whether scan results should be copied to the
// clipboard.
func (c *Config) ClipboardEnabled() bool {
	if c.Clipboard == nil {
		return true
	}
	return *c.Clipboard
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file. A missing file is not an
// error: the tool is expected to work with no configuration at all.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Scan.Timeout == 0 {
		c.Scan.Timeout = Duration(15 * time.Second)
	}
	if c.Connect.Timeout == 0 {
		c.Connect.Timeout = Duration(10 * time.Second)
	}
	if c.Connect.Retries <= 0 {
		c.Connect.Retries = 3
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

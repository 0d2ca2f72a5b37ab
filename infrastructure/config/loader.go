package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"m4a-extractor/domain/media"
)

// DefaultPath is where commands look for the configuration file
const DefaultPath = "config/config.yaml"

// Config represents the complete application configuration
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Output   OutputConfig   `yaml:"output"`
	Transfer TransferConfig `yaml:"transfer"`
	Logging  LoggingConfig  `yaml:"logging"`
	Google   GoogleConfig   `yaml:"google"`
}

// PathsConfig contains directory paths for extracted audio
type PathsConfig struct {
	// SourceDirectory is searched for the newest recording when no input is given
	SourceDirectory string `yaml:"source_directory"`
	// OutputDirectory receives derived output files; empty means next to the source
	OutputDirectory string `yaml:"output_directory"`
}

// OutputConfig contains output container settings
type OutputConfig struct {
	Format    string `yaml:"format"`
	Overwrite bool   `yaml:"overwrite"`
}

// TransferConfig tunes the sample copy loop
type TransferConfig struct {
	MinBufferSize    int `yaml:"min_buffer_size"`
	ProgressInterval int `yaml:"progress_interval"`
}

// LoggingConfig contains structured logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GoogleConfig contains Google Drive settings
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	AudioFolderID   string `yaml:"audio_folder_id"`
	Share           bool   `yaml:"share"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Output: OutputConfig{
			Format: media.OutputMPEG4.String(),
		},
		Transfer: TransferConfig{
			MinBufferSize:    256 * 1024,
			ProgressInterval: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Google: GoogleConfig{
			CredentialsFile: "config/credentials.json",
			TokenFile:       "config/token.json",
		},
	}
}

// Load reads and parses the configuration from the specified YAML file.
// Keys missing from the file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that cannot be corrected silently
func (c *Config) Validate() error {
	if _, err := media.ParseOutputFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	if c.Transfer.MinBufferSize < 0 {
		return fmt.Errorf("transfer.min_buffer_size must not be negative: %d", c.Transfer.MinBufferSize)
	}
	if c.Transfer.ProgressInterval < 0 {
		return fmt.Errorf("transfer.progress_interval must not be negative: %d", c.Transfer.ProgressInterval)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json: %q", c.Logging.Format)
	}
	return nil
}

// OutputFormat returns the parsed output.format value
func (c *Config) OutputFormat() media.OutputFormat {
	format, err := media.ParseOutputFormat(c.Output.Format)
	if err != nil {
		return media.OutputMPEG4
	}
	return format
}

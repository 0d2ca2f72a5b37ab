package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Errors for config management
var (
	ErrUnknownKey   = errors.New("unknown config key")
	ErrInvalidValue = errors.New("invalid config value")
)

// ConfigManager reads and updates single config entries by dotted key,
// saving the file after every change
type ConfigManager struct {
	config     *Config
	configPath string
}

// NewConfigManager creates a new config manager
func NewConfigManager(cfg *Config, configPath string) *ConfigManager {
	return &ConfigManager{
		config:     cfg,
		configPath: configPath,
	}
}

// Entry is one key and its current value
type Entry struct {
	Key   string
	Value string
}

type field struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringField(p func(c *Config) *string) field {
	return field{
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error {
			*p(c) = v
			return nil
		},
	}
}

func boolField(p func(c *Config) *bool) field {
	return field{
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, v)
			}
			*p(c) = b
			return nil
		},
	}
}

func intField(p func(c *Config) *int) field {
	return field{
		get: func(c *Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("%w: %q is not a non-negative integer", ErrInvalidValue, v)
			}
			*p(c) = n
			return nil
		},
	}
}

var fields = map[string]field{
	"paths.source_directory":     stringField(func(c *Config) *string { return &c.Paths.SourceDirectory }),
	"paths.output_directory":     stringField(func(c *Config) *string { return &c.Paths.OutputDirectory }),
	"output.format":              stringField(func(c *Config) *string { return &c.Output.Format }),
	"output.overwrite":           boolField(func(c *Config) *bool { return &c.Output.Overwrite }),
	"transfer.min_buffer_size":   intField(func(c *Config) *int { return &c.Transfer.MinBufferSize }),
	"transfer.progress_interval": intField(func(c *Config) *int { return &c.Transfer.ProgressInterval }),
	"logging.level":              stringField(func(c *Config) *string { return &c.Logging.Level }),
	"logging.format":             stringField(func(c *Config) *string { return &c.Logging.Format }),
	"google.credentials_file":    stringField(func(c *Config) *string { return &c.Google.CredentialsFile }),
	"google.token_file":          stringField(func(c *Config) *string { return &c.Google.TokenFile }),
	"google.audio_folder_id":     stringField(func(c *Config) *string { return &c.Google.AudioFolderID }),
	"google.share":               boolField(func(c *Config) *bool { return &c.Google.Share }),
}

// Keys returns every supported key in sorted order
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func lookup(key string) (string, field, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	f, ok := fields[key]
	if !ok {
		return key, field{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return key, f, nil
}

// Get returns the current value of key
func (m *ConfigManager) Get(key string) (string, error) {
	_, f, err := lookup(key)
	if err != nil {
		return "", err
	}
	return f.get(m.config), nil
}

// List returns every key with its current value
func (m *ConfigManager) List() []Entry {
	keys := Keys()
	result := make([]Entry, 0, len(keys))
	for _, k := range keys {
		result = append(result, Entry{Key: k, Value: fields[k].get(m.config)})
	}
	return result
}

// Set validates and stores value under key, then saves the file.
// The in-memory config is left unchanged when the new value is rejected.
func (m *ConfigManager) Set(key, value string) error {
	_, f, err := lookup(key)
	if err != nil {
		return err
	}

	updated := *m.config
	if err := f.set(&updated, strings.TrimSpace(value)); err != nil {
		return err
	}
	if err := updated.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	*m.config = updated
	return Save(m.config, m.configPath)
}

// Reset restores key to its default value, then saves the file
func (m *ConfigManager) Reset(key string) error {
	_, f, err := lookup(key)
	if err != nil {
		return err
	}
	return m.Set(key, f.get(Default()))
}

// SuggestSetCommand returns the command that sets key
func SuggestSetCommand(key string) string {
	return fmt.Sprintf(`m4a-extractor config set %s "<value>"`, key)
}

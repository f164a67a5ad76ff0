package bootstrap

import (
	"fmt"
	"os"
	"time"

	"github.com/core-tools/hsu-bootstrap/pkg/envconfig"
	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/monitoring"
	"github.com/core-tools/hsu-bootstrap/pkg/provision"
	"github.com/core-tools/hsu-bootstrap/pkg/renewal"
	"github.com/core-tools/hsu-bootstrap/pkg/shutdown"

	"gopkg.in/yaml.v3"
)

const (
	DefaultID            = "sbx"
	DefaultSettleTimeout = 15 * time.Second
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
)

// Config represents the top-level settings file structure
type Config struct {
	Bootstrap   Options                      `yaml:"bootstrap"`
	Variant     VariantConfig                `yaml:"variant,omitempty"`
	Provisioner provision.Config             `yaml:"provisioner,omitempty"`
	Renewal     RenewalConfig                `yaml:"renewal,omitempty"`
	Health      monitoring.HealthCheckConfig `yaml:"health,omitempty"`
}

// Options represents bootstrap-level settings
type Options struct {
	ID            string        `yaml:"id"`
	Variant       string        `yaml:"variant"`
	EnvFile       string        `yaml:"env_file"`
	SettleTimeout time.Duration `yaml:"settle_timeout,omitempty"`
	GracePeriod   time.Duration `yaml:"grace_period,omitempty"`
	HookTimeout   time.Duration `yaml:"hook_timeout,omitempty"`
	PIDDirectory  string        `yaml:"pid_directory,omitempty"`
	StatusAddress string        `yaml:"status_address,omitempty"`
	LogLevel      string        `yaml:"log_level,omitempty"`
	LogFormat     string        `yaml:"log_format,omitempty"`
}

// VariantConfig describes the "custom" variant
type VariantConfig struct {
	AllowList []string          `yaml:"allow_list,omitempty"`
	Defaults  map[string]string `yaml:"defaults,omitempty"`
}

type RenewalConfig struct {
	Enabled      bool `yaml:"enabled"`
	renewal.Task `yaml:",inline"`
}

// DefaultConfig is what runs without a settings file: the sbx variant with
// no provisioner and no renewal
func DefaultConfig() *Config {
	config := newConfig()
	setConfigDefaults(config)
	return config
}

// newConfig seeds the fields where zero is a meaningful value; YAML only
// overwrites the keys it sets
func newConfig() *Config {
	return &Config{
		Bootstrap: Options{GracePeriod: shutdown.DefaultGracePeriod},
	}
}

// LoadConfigFromFile loads settings from a YAML file and applies defaults
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	config := newConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", filename)
	}

	setConfigDefaults(config)
	return config, nil
}

func setConfigDefaults(config *Config) {
	options := &config.Bootstrap
	if options.ID == "" {
		options.ID = DefaultID
	}
	if options.Variant == "" {
		options.Variant = VariantSbx
	}
	if options.EnvFile == "" {
		options.EnvFile = envconfig.DefaultOverrideFile
	}
	if options.SettleTimeout == 0 {
		options.SettleTimeout = DefaultSettleTimeout
	}
	if options.LogLevel == "" {
		options.LogLevel = DefaultLogLevel
	}
	if options.LogFormat == "" {
		options.LogFormat = DefaultLogFormat
	}

	if config.Renewal.Enabled {
		config.Renewal.Task = config.Renewal.Task.WithDefaults()
	}
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := validateOptions(&config.Bootstrap); err != nil {
		return errors.NewValidationError("invalid bootstrap configuration", err)
	}

	if _, err := LookupVariant(config.Bootstrap.Variant, config.Variant); err != nil {
		return errors.NewValidationError("invalid variant configuration", err)
	}

	if err := provision.ValidateConfig(config.Provisioner); err != nil {
		return errors.NewValidationError("invalid provisioner configuration", err)
	}

	if config.Renewal.Enabled {
		if err := renewal.ValidateTask(config.Renewal.Task); err != nil {
			return errors.NewValidationError("invalid renewal configuration", err)
		}
	}

	if err := monitoring.ValidateHealthCheckConfig(config.Health); err != nil {
		return errors.NewValidationError("invalid health check configuration", err)
	}

	return nil
}

func validateOptions(options *Options) error {
	if options.ID == "" {
		return errors.NewValidationError("id cannot be empty", nil)
	}
	if options.SettleTimeout < 0 || options.GracePeriod < 0 || options.HookTimeout < 0 {
		return errors.NewValidationError("timeouts cannot be negative", nil).
			WithContext("settle_timeout", options.SettleTimeout.String()).
			WithContext("grace_period", options.GracePeriod.String()).
			WithContext("hook_timeout", options.HookTimeout.String())
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, options.LogLevel) {
		return errors.NewValidationError(
			fmt.Sprintf("invalid log level: %s", options.LogLevel),
			nil,
		).WithContext("valid_levels", "debug, info, warn, error")
	}

	validLogFormats := []string{"console", "json"}
	if !contains(validLogFormats, options.LogFormat) {
		return errors.NewValidationError(
			fmt.Sprintf("invalid log format: %s", options.LogFormat),
			nil,
		).WithContext("valid_formats", "console, json")
	}

	return nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "github.com/sbuss/data-filter-utils/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Output  OutputConfig  `yaml:"output" envconfig:"OUTPUT"`
	Outlier OutlierConfig `yaml:"outlier" envconfig:"OUTLIER"`

	// TasksFile holds extra task definitions for `run --task`.
	TasksFile string `yaml:"tasks_file" envconfig:"TASKS_FILE"`
	// MetricsFile, when set, receives batch metrics in the Prometheus
	// text format after every run.
	MetricsFile string `yaml:"metrics_file" envconfig:"METRICS_FILE"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_unless=Output console"`
}

// OutputConfig controls where and how aggregate tables are written
type OutputConfig struct {
	Dir string `yaml:"dir" envconfig:"DIR" validate:"required"`
	// BOM prefixes CSV tables with a UTF-8 byte order mark so spreadsheet
	// tools detect the encoding.
	BOM bool `yaml:"bom" envconfig:"BOM"`
	// StdDev adds SDRT-* and SDAcc-* columns to every task.
	StdDev bool `yaml:"std_dev" envconfig:"STD_DEV"`
}

// OutlierConfig selects how outlier thresholds are estimated
type OutlierConfig struct {
	Scope string `yaml:"scope" envconfig:"SCOPE" validate:"oneof=session cohort"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: DefaultLogFile,
		},
		Output: OutputConfig{
			Dir: DefaultOutputDir,
		},
		Outlier: OutlierConfig{
			Scope: OutlierScopeSession,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// DATAFILTER_* environment variables, in increasing order of precedence.
// Variables from a .env file in the working directory count as environment
// variables but never replace ones already set.
//
// path names the config file. When empty, DATAFILTER_CONFIG and then the
// default search locations are tried; finding no file there is not an
// error. A named file that does not exist is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(ConfigFileEnv)
		explicit = path != ""
	}
	if !explicit {
		path = findConfigFile()
	}

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NewConfigError("failed to load .env file", err)
	}

	// No default tags: fields without an environment variable keep the
	// value from the file or Default.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file at path onto cfg. Unknown keys are
// rejected so typos surface instead of being ignored.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.NewConfigError("failed to read config file", err).
			WithContext("path", path)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return apperrors.NewConfigError("failed to parse config file", err).
			WithContext("path", path)
	}
	return nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if err := ValidateStruct(c); err != nil {
		return apperrors.NewConfigError("config validation failed", err)
	}
	return nil
}

// String renders the configuration as YAML for logging.
func (c *Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%+v", *c)
	}
	return string(out)
}

// findConfigFile returns the first config file found in the search paths,
// or "" when there is none.
func findConfigFile() string {
	for _, location := range configSearchPaths {
		if info, err := os.Stat(location); err == nil && !info.IsDir() {
			return location
		}
	}
	return ""
}

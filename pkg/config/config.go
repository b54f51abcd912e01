// Package config provides configuration loading and management for niftitools.
// Application settings come from a YAML file overridden by environment
// variables; the transform pipeline is a separate YAML file (see LoadPipeline).
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-faster/errors"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"niftitools/pkg/nifti"
	"niftitools/pkg/serrors"
)

// Output datatypes accepted in Output.DataType.
const (
	DataTypeFloat32 = "float32"
	DataTypeFloat64 = "float64"
)

// Config represents the application settings.
type Config struct {
	// Environment selects the logger: development or production
	Environment string `env:"NIFTITOOLS_ENVIRONMENT" env-default:"development" yaml:"environment"`

	// Processing parameters
	Processing struct {
		// Workers is how many images are processed at the same time
		Workers int `env:"NIFTITOOLS_WORKERS" env-default:"1" yaml:"workers"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Dir receives every output file; empty means next to each input
		Dir string `env:"NIFTITOOLS_OUTPUT_DIR" yaml:"dir"`

		// CompressionLevel is the gzip level of .nii.gz files, 1 to 9
		CompressionLevel int `env:"NIFTITOOLS_COMPRESSION_LEVEL" env-default:"5" yaml:"compressionLevel"`

		// DataType is the voxel type written to disk: float32 or float64
		DataType string `env:"NIFTITOOLS_DATATYPE" env-default:"float32" yaml:"dataType"`

		// Preview writes PNG mid-slices next to every final image
		Preview bool `env:"NIFTITOOLS_PREVIEW" yaml:"preview"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Environment = "development"
	cfg.Processing.Workers = 1
	cfg.Output.CompressionLevel = nifti.DefaultCompressionLevel
	cfg.Output.DataType = DataTypeFloat32

	return cfg
}

// LoadConfig loads settings from a YAML file and the environment.
// If the file doesn't exist, defaults and the environment are used.
func LoadConfig(configPath string) (*Config, error) {
	var cfg Config

	_, statErr := os.Stat(configPath)
	switch {
	case configPath == "" || os.IsNotExist(statErr):
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, serrors.Wrap(serrors.ErrConfiguration, err, "reading environment")
		}
	default:
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, serrors.Wrap(serrors.ErrConfiguration, err, "reading %s", configPath)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges that cleanenv cannot express.
func (c *Config) Validate() error {
	if c.Processing.Workers < 1 {
		return serrors.With(serrors.ErrConfiguration, "workers must be at least 1, got %d", c.Processing.Workers)
	}
	if _, err := c.CodecOptions(); err != nil {
		return err
	}
	return nil
}

// CodecOptions translates the output settings for nifti.NewCodec.
func (c *Config) CodecOptions() (nifti.Options, error) {
	opts := nifti.Options{CompressionLevel: c.Output.CompressionLevel}
	if opts.CompressionLevel < 1 || opts.CompressionLevel > 9 {
		return opts, serrors.With(serrors.ErrConfiguration, "compression level must be 1 to 9, got %d", opts.CompressionLevel)
	}
	switch c.Output.DataType {
	case DataTypeFloat32, "":
		opts.DataType = nifti.DTFloat32
	case DataTypeFloat64:
		opts.DataType = nifti.DTFloat64
	default:
		return opts, serrors.With(serrors.ErrConfiguration, "unsupported output datatype %q", c.Output.DataType)
	}
	return opts, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.Wrap(err, "writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	cfg.Processing.Workers = runtime.NumCPU()
	return SaveConfig(cfg, configPath)
}

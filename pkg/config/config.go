// Package config loads the command line tool's YAML configuration.
//
//	log_level: info        # debug, info, warn or error
//	chunk_size: 32KB       # cell data streaming buffer
//	error_codes: true      # exit with the cobuild error code on failure
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Limits on ChunkSize.
const (
	MinChunkSize = 64 * datasize.B
	MaxChunkSize = 16 * datasize.MB
)

var (
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidChunkSize = errors.New("invalid chunk size")
)

// Config is the tool configuration.
type Config struct {
	LogLevel   string            `yaml:"log_level"`
	ChunkSize  datasize.ByteSize `yaml:"chunk_size"`
	ErrorCodes bool              `yaml:"error_codes"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		ChunkSize:  32 * datasize.KB,
		ErrorCodes: true,
	}
}

// Validate checks every field.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.ChunkSize < MinChunkSize || c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrInvalidChunkSize,
			c.ChunkSize.HumanReadable(), MinChunkSize.HumanReadable(), MaxChunkSize.HumanReadable())
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	switch c.LogLevel {
	case "debug":
		return zap.DebugLevel, nil
	case "info", "":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	}
	return zap.InfoLevel, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
}

// Load reads path over the defaults. Fields absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds a console logger at the configured level, writing to
// stderr.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = true
	return zc.Build()
}

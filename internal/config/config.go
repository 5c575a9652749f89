// Package config provides configuration management for clips applications
// using Viper for configuration loading from files, environment variables
// and command-line flags.
//
// The configuration is read from .clips.yml, overridden by CLIPS_ prefixed
// environment variables (CLIPS_CLIPS_BASE_PATH, CLIPS_SERVER_PORT, ...) and
// finally by flags bound by the CLI. It covers resource loading, the frame
// loop, the development server, logging and the S3 source.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/clips/internal/logging"
	"github.com/conneroisu/clips/internal/source"
	"github.com/conneroisu/clips/pkg/clips"
)

// FileName is the default configuration file name, without extension.
const FileName = ".clips"

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "CLIPS"

type Config struct {
	Clips  clips.Settings  `mapstructure:"clips" yaml:"clips"`
	Loop   LoopConfig      `mapstructure:"loop" yaml:"loop"`
	Page   PageConfig      `mapstructure:"page" yaml:"page"`
	Server ServerConfig    `mapstructure:"server" yaml:"server"`
	Log    LogConfig       `mapstructure:"log" yaml:"log"`
	S3     source.S3Config `mapstructure:"s3" yaml:"s3"`
}

type LoopConfig struct {
	FrameInterval time.Duration `mapstructure:"frame_interval" yaml:"frame_interval"`
	// MaxFrames bounds how many frames a one-shot render runs before output.
	MaxFrames int `mapstructure:"max_frames" yaml:"max_frames"`
}

// PageConfig describes the page a clip is rendered into.
type PageConfig struct {
	// File is an HTML document; empty uses a blank document.
	File     string `mapstructure:"file" yaml:"file"`
	Clip     string `mapstructure:"clip" yaml:"clip"`
	Target   string `mapstructure:"target" yaml:"target"`
	Position string `mapstructure:"position" yaml:"position"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// Watch lists extra paths that trigger a live reload.
	Watch []string `mapstructure:"watch" yaml:"watch"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("clips.base_path", "./clips")
	v.SetDefault("loop.frame_interval", 16*time.Millisecond)
	v.SetDefault("loop.max_frames", 10)
	v.SetDefault("page.target", "body")
	v.SetDefault("page.position", string(clips.PositionEnd))
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Init configures the global viper instance. See InitWith.
func Init(file string) error {
	return InitWith(viper.GetViper(), file)
}

// InitWith configures v: defaults, config file lookup and environment
// overrides. An explicit file must exist; a missing default file is ignored.
func InitWith(v *viper.Viper, file string) error {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && file == "" {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Load decodes and validates the global viper configuration.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Loop.FrameInterval == 0 {
		config.Loop.FrameInterval = 16 * time.Millisecond
	}
	if config.Loop.MaxFrames == 0 {
		config.Loop.MaxFrames = 10
	}
	if config.Page.Target == "" {
		config.Page.Target = "body"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Logger builds the logger described by the log section, writing to out
// (standard error when nil).
func (c *Config) Logger(out io.Writer) (*logging.ClipsLogger, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stderr
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: c.Log.Format,
		Output: out,
	}), nil
}

// Address returns the server listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// WatchPaths returns the local paths a rendered page depends on: the base
// path when it is a directory, the page file and server.watch.
func (c *Config) WatchPaths() []string {
	var paths []string
	if base := c.Clips.BasePath; base != "" && !strings.Contains(base, "://") {
		paths = append(paths, base)
	}
	if c.Page.File != "" {
		paths = append(paths, c.Page.File)
	}
	return append(paths, c.Server.Watch...)
}

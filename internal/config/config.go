// Package config loads the tunables the demo binary wires into
// internal/stream.Config, layering flags, environment variables, and an
// optional config file the way this repository's other services do.
package config

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	streamcore "github.com/dep2p/go-yamux-stream/internal/stream"
)

const (
	envPrefix = "YMXSTREAM"

	defaultWindowSize      = 256 * 1024
	defaultMaxWindow       = 256 * 1024
	defaultWriteQueueLimit = 256 * 1024
)

var defaultConfigFilePaths = []string{".", "$YMXSTREAM_CONFIG_DIR/"}

// Config is the top-level configuration for the demo binary.
type Config struct {
	Stream Stream `mapstructure:"stream"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Stream mirrors internal/stream.Config's fields for (de)serialization.
type Stream struct {
	WindowSize      uint32 `mapstructure:"window_size"`
	MaxWindow       uint32 `mapstructure:"max_window"`
	WriteQueueLimit int    `mapstructure:"write_queue_limit"`
}

// StreamConfig converts to the internal/stream package's own Config
// type, which deliberately does not carry (de)serialization tags.
func (s Stream) StreamConfig() streamcore.Config {
	return streamcore.Config{
		WindowSize:      s.WindowSize,
		MaxWindow:       s.MaxWindow,
		WriteQueueLimit: s.WriteQueueLimit,
	}
}

// Load parses arguments (normally os.Args[1:]) into a Config, honoring
// (in ascending priority) built-in defaults, an optional config file,
// YMXSTREAM_-prefixed environment variables, and command-line flags.
func Load(arguments []string, errOutput io.Writer) (*Config, *pflag.FlagSet, error) {
	cfg := &Config{}

	v := newViper()
	fs := newFlagSet(errOutput)
	configure(v, fs)

	fs.String("config", "", "configuration file")
	if err := fs.Parse(arguments); err != nil {
		return nil, nil, err
	}

	if configFile, _ := fs.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, nil, errors.Wrap(err, "read configuration file")
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, errors.Wrap(err, "unmarshal configuration")
	}

	return cfg, fs, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	for _, p := range defaultConfigFilePaths {
		v.AddConfigPath(p)
	}
	return v
}

func newFlagSet(errOutput io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("yamux-stream-demo", pflag.ContinueOnError)
	fs.SetOutput(errOutput)
	return fs
}

func configure(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Uint32("window-size", defaultWindowSize, "initial per-stream flow-control window, in bytes")
	fs.Uint32("max-window", defaultMaxWindow, "ceiling a stream's receive window may grow to via AdjustWindowSize")
	fs.Int("write-queue-limit", defaultWriteQueueLimit, "maximum unacknowledged bytes a stream will buffer for write")
	_ = v.BindPFlag("stream.window_size", fs.Lookup("window-size"))
	_ = v.BindPFlag("stream.max_window", fs.Lookup("max-window"))
	_ = v.BindPFlag("stream.write_queue_limit", fs.Lookup("write-queue-limit"))

	fs.String("log-level", "info", "default log level (debug|info|warn|error)")
	fs.String("log-format", "text", "log output format (text|json)")
	_ = v.BindPFlag("log_level", fs.Lookup("log-level"))
	_ = v.BindPFlag("log_format", fs.Lookup("log-format"))

	fs.String("metrics-addr", ":9090", "address to serve /metrics on")
	_ = v.BindPFlag("metrics_addr", fs.Lookup("metrics-addr"))
}

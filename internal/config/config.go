// Package config provides configuration management for muxarr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultQueueSize       = 50
	defaultPollInterval    = 100 * time.Microsecond
	defaultAudioBitRate    = 128000
	defaultVideoBitRate    = 2000000
	defaultGOPSize         = 12
	defaultMaxBFrames      = 2
	defaultPreset          = "veryfast"
	defaultSampleFormat    = "fltp"
	defaultPixelFormat     = "yuv420p"
	defaultProbeSize       = 5 * 1000 * 1000 // libav's own default
	defaultAnalyzeDuration = 5 * time.Second
)

// Backend names.
const (
	BackendAuto   = "auto"
	BackendLibav  = "libav"
	BackendMPEGTS = "mpegts"
)

// Config holds all configuration for the application.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Session  SessionConfig  `mapstructure:"session"`
	Encoding EncodingConfig `mapstructure:"encoding"`
	Input    InputConfig    `mapstructure:"input"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// SessionConfig holds remux session configuration.
type SessionConfig struct {
	Backend      string        `mapstructure:"backend"` // auto, libav, mpegts
	QueueSize    int           `mapstructure:"queue_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Format       string        `mapstructure:"format"` // output container override
}

// EncodingConfig holds the defaults applied to transcoded streams.
type EncodingConfig struct {
	AudioBitRate        int64  `mapstructure:"audio_bitrate"`
	VideoBitRate        int64  `mapstructure:"video_bitrate"`
	GOPSize             int    `mapstructure:"gop_size"`
	MaxBFrames          int    `mapstructure:"max_b_frames"`
	Preset              string `mapstructure:"preset"`
	DefaultSampleFormat string `mapstructure:"default_sample_format"`
	DefaultPixelFormat  string `mapstructure:"default_pixel_format"`
}

// InputConfig holds input probing configuration.
type InputConfig struct {
	// ProbeSize is how much of the input is read to detect streams.
	// Supports human-readable values like "5MB" or raw byte counts.
	ProbeSize       ByteSize      `mapstructure:"probe_size"`
	AnalyzeDuration time.Duration `mapstructure:"analyze_duration"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with MUXARR_ and use underscores for nesting.
// Example: MUXARR_SESSION_QUEUE_SIZE=100.
func Load(configPath string) (*Config, error) {
	return LoadWith(viper.New(), configPath)
}

// LoadWith is Load on a caller-supplied viper instance, so that CLI flags
// bound to v take precedence over file and environment values.
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("muxarr")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.muxarr")
	}

	v.SetEnvPrefix("MUXARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Session defaults
	v.SetDefault("session.backend", BackendAuto)
	v.SetDefault("session.queue_size", defaultQueueSize)
	v.SetDefault("session.poll_interval", defaultPollInterval)
	v.SetDefault("session.format", "")

	// Encoding defaults
	v.SetDefault("encoding.audio_bitrate", defaultAudioBitRate)
	v.SetDefault("encoding.video_bitrate", defaultVideoBitRate)
	v.SetDefault("encoding.gop_size", defaultGOPSize)
	v.SetDefault("encoding.max_b_frames", defaultMaxBFrames)
	v.SetDefault("encoding.preset", defaultPreset)
	v.SetDefault("encoding.default_sample_format", defaultSampleFormat)
	v.SetDefault("encoding.default_pixel_format", defaultPixelFormat)

	// Input defaults
	v.SetDefault("input.probe_size", defaultProbeSize)
	v.SetDefault("input.analyze_duration", defaultAnalyzeDuration)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Logging validation
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Session validation
	validBackends := map[string]bool{BackendAuto: true, BackendLibav: true, BackendMPEGTS: true}
	if !validBackends[c.Session.Backend] {
		return fmt.Errorf("session.backend must be one of: auto, libav, mpegts")
	}
	if c.Session.QueueSize < 1 {
		return fmt.Errorf("session.queue_size must be at least 1")
	}
	if c.Session.PollInterval <= 0 {
		return fmt.Errorf("session.poll_interval must be positive")
	}

	// Encoding validation
	if c.Encoding.AudioBitRate < 0 || c.Encoding.VideoBitRate < 0 {
		return fmt.Errorf("encoding bitrates must not be negative")
	}
	if c.Encoding.GOPSize < 0 {
		return fmt.Errorf("encoding.gop_size must not be negative")
	}
	if c.Encoding.MaxBFrames < 0 {
		return fmt.Errorf("encoding.max_b_frames must not be negative")
	}

	// Input validation
	if c.Input.ProbeSize < 0 {
		return fmt.Errorf("input.probe_size must not be negative")
	}
	if c.Input.AnalyzeDuration < 0 {
		return fmt.Errorf("input.analyze_duration must not be negative")
	}

	return nil
}

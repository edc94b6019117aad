// Package cmd implements the CLI commands for muxarr.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmylchreest/muxarr/internal/config"
	"github.com/jmylchreest/muxarr/internal/observability"
	"github.com/jmylchreest/muxarr/internal/version"
)

var (
	// cfgFile holds the config file path from the CLI flag.
	cfgFile string

	// appConfig is loaded once per invocation by the persistent pre-run.
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "muxarr",
	Short:   "Remux and transcode media containers",
	Version: version.Short(),
	Long: `muxarr copies the streams of one media container into another, optionally
re-encoding audio or video on the way.

Stream copy between MPEG-TS files runs on a pure Go backend. Every other
container, and all transcoding, runs on libav (FFmpeg).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE is set in init() to avoid an initialization cycle
}

// statusError carries a session status out of a command.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

// exitCode maps a command error to a process exit code. Session statuses
// above zero are used as is; collaborator codes are negative and exit 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var se *statusError
	if errors.As(err, &se) && se.status > 0 {
		return se.status
	}
	return 1
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return exitCode(err)
}

func init() {
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initConfig()
	}

	// The log flags are not bound to viper; they only override config and
	// environment when set explicitly.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is muxarr.yaml in ., ./configs or $HOME/.muxarr)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initConfig loads configuration and installs the default logger.
//
// Priority order (highest to lowest):
//  1. CLI flags, only if explicitly provided
//  2. Environment variables (MUXARR_LOGGING_LEVEL, MUXARR_SESSION_BACKEND, ...)
//  3. Config file values
//  4. Built-in defaults
func initConfig() error {
	cfg, err := config.LoadWith(viper.GetViper(), cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	flags := rootCmd.PersistentFlags()
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format, _ = flags.GetString("log-format")
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}

	logger := observability.NewLogger(cfg.Logging)
	slog.SetDefault(logger)
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug("using config file", slog.String("path", used))
	}

	appConfig = cfg
	return nil
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}

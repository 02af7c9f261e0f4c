// Package cli defines the command-line interface for prettymaps.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/prettymaps-go/prettymaps/internal/logging"
)

// Options stores global CLI options shared between commands.
type Options struct {
	// ConfigPath is the prettymaps.yaml to load; empty means look it up.
	ConfigPath string
	// PresetDir overrides the preset directory of the config file.
	PresetDir string
	LogLevel  logging.Level
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
func Execute(args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}

	rootOpts := &Options{
		LogLevel: logging.LevelInfo,
	}

	rootCmd := newRootCommand(rootOpts, logger)
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
func newRootCommand(opts *Options, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "prettymaps",
		Short:         "prettymaps draws styled maps from OpenStreetMap data",
		Long:          "prettymaps fetches OpenStreetMap layers around a place and composes them into a styled PNG or SVG map, driven by reusable named presets.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var envCfg baseEnv
			if err := parseEnv(&envCfg); err != nil {
				return err
			}
			applyBaseEnv(cmd, opts, envCfg)

			levelRaw := cmd.Flag("log-level").Value.String()
			if !cmd.Flags().Changed("log-level") && envPresent("PRETTYMAPS_LOG_LEVEL") {
				levelRaw = envCfg.LogLevel
			}
			level := logging.ParseLevel(levelRaw)
			opts.LogLevel = level
			logger = logging.NewLogger(cmd.ErrOrStderr(), level)
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to prettymaps.yaml (default: ./prettymaps.yaml, then the user config directory)")
	cmd.PersistentFlags().StringVar(&opts.PresetDir, "preset-dir", "", "Directory holding presets (overrides presetDir from the config file)")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("vars", "", "Additional template variables for prettymaps.yaml in k=v,k2=v2 format")
	cmd.PersistentFlags().String("var-file", "", "Path to YAML/ENV file with additional template variables")

	cmd.AddCommand(
		newPlotCommand(opts),
		newMultiplotCommand(opts),
		newPresetCommand(opts),
		newCacheCommand(opts),
		newDoctorCommand(opts),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}

// Package main is the entry point for the toolnexus binary. It runs builtin
// and configured capabilities through the governed execution pipeline, either
// once from the command line or behind an HTTP server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/config"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/logging"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for toolnexus.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "toolnexus",
		Short: "Governed tool execution pipeline",
		Long: `Runs tool capabilities through validation, policy, concurrency, caching,
resilience, admission and telemetry stages.

Examples:
  toolnexus capabilities
  echo '{"a":1}' | toolnexus exec json-format format -
  toolnexus serve --config toolnexus.yaml`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", os.Getenv("TOOLNEXUS_CONFIG"), "Path to configuration file (YAML)")
	flags.StringVarP(&opts.LogLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.LogFormat, "log-format", "", "Log format (text, json, console)")

	rootCmd.AddCommand(
		newExecCmd(opts),
		newCapabilitiesCmd(opts),
		newServeCmd(opts),
	)
	return rootCmd
}

// loadConfig reads the configuration and applies flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Logging.Format = o.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// setup loads configuration and installs the process logger on stderr so
// command output on stdout stays machine-readable.
func (o *rootOptions) setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	cfg.Logging.Output = cmd.ErrOrStderr()
	return cfg, logging.Setup(cfg.Logging), nil
}

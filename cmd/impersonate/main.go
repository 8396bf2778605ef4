// Package main implements the impersonate CLI for fetching URLs with a
// browser TLS fingerprint.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	impersonate "github.com/wippyai/impersonate-engine"
)

var (
	// configPath is an optional YAML config file
	configPath string
	// verbose enables debug logging
	verbose bool
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "impersonate",
	Short: "Fetch URLs with the TLS fingerprint of a real browser",
	Long: `impersonate sends HTTP requests whose TLS and HTTP/2 settings match a
chosen browser profile.

Configuration is read from an optional YAML file, then IMPERSONATE_*
environment variables, then flags.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log connection details to stderr")
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(interactiveCmd)
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// startEngine builds and starts an engine for cfg.
func startEngine(ctx context.Context, cfg Config) (*impersonate.Engine, func(), error) {
	log, err := newLogger(cfg.Verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	impersonate.SetLogger(log)

	eng := impersonate.New(impersonate.WithLogger(log), impersonate.WithWorkers(cfg.Workers))
	if err := eng.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start engine: %w", err)
	}
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Close(ctx)
		_ = log.Sync()
	}
	return eng, stop, nil
}

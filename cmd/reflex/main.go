package main

import (
	"fmt"
	"os"

	"reflexruntime/internal/config"
	"reflexruntime/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	sessionsDir string

	// Logger
	logger *zap.Logger

	// Loaded configuration, available to all subcommands after PersistentPreRunE.
	cfg config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "reflex",
	Short: "ReflexRuntime - self-healing runtime layer",
	Long: `ReflexRuntime wraps a running program with an autonomous repair loop.

When a protected function panics, the runtime captures the failure context,
asks an LLM for a corrected implementation, hot-swaps the function binding in
the live namespace, and records the whole attempt as a markdown session file.

Use the subcommands to inspect past sessions or run the interactive demo.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if sessionsDir != "" {
			cfg.Sessions.Dir = sessionsDir
		}

		ws := cfg.Logging.Workspace
		if ws == "" {
			ws = "."
		}
		if err := logging.Initialize(ws, cfg.Healing.Debug, cfg.Logging.Level); err != nil {
			// Category logging is a diagnostic aid, not a prerequisite.
			logger.Warn("category logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "reflex.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&sessionsDir, "sessions-dir", "", "Override the session record directory")

	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(demoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

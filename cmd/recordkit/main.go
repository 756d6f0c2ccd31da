package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thiago-r-goveia/recordkit/internal/config"
	"github.com/thiago-r-goveia/recordkit/internal/formats"
)

var (
	// Global flags
	verbose bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "recordkit",
	Short: "Tolerant parser for line oriented record files",
	Long: `recordkit reads delimited, fixed column and block structured text files,
skips the records that do not fit their format and aggregates the rest.

Formats are YAML schemas. The built-in ones can be listed with "recordkit formats"
and overridden by schemas placed in SCHEMA_DIR.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load .env file: %w", err)
		}

		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig is swapped in tests.
var loadConfig = config.New

func loadRegistry() (*formats.Registry, error) {
	return formats.LoadRegistry(cfg.SchemaDir, logger)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(scanCmd, formatsCmd, cutCmd, gradesCmd, refluxCmd, mutationsCmd, setupCmd, ingestCmd, serveCmd)
}

func main() {
	start := time.Now()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	if logger != nil {
		logger.Debug("Execution finished", zap.Duration("took", time.Since(start)))
	}
}

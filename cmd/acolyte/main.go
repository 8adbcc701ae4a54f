package main

import (
	"fmt"
	"os"

	"acolyte/internal/config"
	"acolyte/internal/logging"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath      string
	definitionPaths []string
	worldPath       string
	verbose         bool

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "acolyte",
	Short: "acolyte - reactive goal engine for a card-and-situation game",
	Long: `acolyte observes the table once per beat, arbitrates between the active
goals and motivations, and runs the chosen operations one action at a time.

Goals, impulses and operations are declared in YAML definition files. The
bundled simulator stands in for the game so the engine can run end to end.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if len(definitionPaths) > 0 {
			cfg.Definitions.Paths = definitionPaths
		}
		if worldPath != "" {
			cfg.World.Path = worldPath
		}
		if verbose {
			cfg.Logging.DebugMode = true
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := logging.Initialize(loggingConfig(cfg)); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logging.BootDebug("config loaded from %s", configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "acolyte.yaml", "Config file (missing file means defaults)")
	rootCmd.PersistentFlags().StringSliceVarP(&definitionPaths, "definitions", "d", nil, "Definition files or directories (overrides config)")
	rootCmd.PersistentFlags().StringVar(&worldPath, "world", "", "Simulated world file (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newHistoryCmd())
}

func loggingConfig(c *config.Config) logging.Config {
	return logging.Config{
		DebugMode:  c.Logging.DebugMode,
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		Categories: c.Logging.Categories,
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorBanner(err))
		os.Exit(1)
	}
}

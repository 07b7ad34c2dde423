package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imagedupes/internal/config"
	"imagedupes/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logrus.Logger
	logFile io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "imagedupes",
	Short: "Find duplicate and similar images in directories",
	Long: `imagedupes finds duplicate and visually similar images.

Every image is reduced to a 64-bit perceptual fingerprint. Images whose
fingerprints agree on at least --threshold percent of their bits are reported
together as a set; the first image of a set is the one the others were
compared against.

Settings are read from ~/.imagedupes/config.toml, then .env and IMAGEDUPES_*
environment variables, then command line flags.

Example usage:
  imagedupes scan ./photos                  # Report duplicate sets
  imagedupes scan -r -d ./photos ./backup   # Recurse, choose what to delete
  imagedupes scan -n --threshold 90 ./a     # Looser match, never delete
  imagedupes list                           # Show the sets of the last scan
  imagedupes clean --dry-run                # Preview removal of duplicates`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	defaults := config.Default()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.imagedupes/config.toml)")
	rootCmd.PersistentFlags().String("db", defaults.Database, "Path to SQLite database")
	rootCmd.PersistentFlags().IntP("threshold", "t", defaults.Threshold, "Similarity threshold (0-100, where 100 means identical)")
	rootCmd.PersistentFlags().Int("hash-size", defaults.HashSize, "Grid side used for the average hash (values above 8 only use the first 64 cells)")
	rootCmd.PersistentFlags().Int("workers", runtime.NumCPU(), "Number of parallel workers for scanning")
	rootCmd.PersistentFlags().String("log-level", defaults.Log.Level, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to this file instead of stderr")
}

// setup resolves the configuration and logger before any subcommand runs
func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	if err := c.ApplyFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, closer, err := logging.New(logging.Options{Level: c.Log.Level, File: c.Log.File})
	if err != nil {
		return err
	}

	cfg, logger, logFile = c, l, closer
	logger.WithFields(logrus.Fields{
		"config":    cfgFile,
		"db":        cfg.Database,
		"threshold": cfg.Threshold,
		"hash_size": cfg.HashSize,
		"workers":   cfg.Workers,
	}).Debug("configuration resolved")

	return nil
}

// Package cli wires the station's commands.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/config"
	logger "github.com/mrhunsaker/GAZE-TRACKING/server/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile     string
	projectRoot string
)

var rootCmd = &cobra.Command{
	Use:   "gaze",
	Short: "Visual recognition memory experiment station",
	Long: `gaze runs the visual recognition memory experiment: calibrate a gaze
tracker, show sample and test stimuli, and save every gaze sample with the
trial it belongs to.

Example:
  gaze serve --config config/config.yaml
  gaze simulate --category Colors --trials 10`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <root>/config/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "project root holding config/, assets/ and logs/")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
}

// bootstrap loads configuration and builds the application logger.
func bootstrap() (*zap.Logger, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	projectRoot = root

	boot, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	if err := config.Init(projectRoot, cfgFile, boot); err != nil {
		return nil, err
	}

	log, err := logger.Init(projectRoot, config.Get().Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return log, nil
}

// inRoot makes a configured path absolute against the project root.
func inRoot(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(projectRoot, p)
}

// experimentConfig snapshots the live experiment settings with paths
// resolved.
func experimentConfig() config.ExperimentConfig {
	cfg := config.Get().Experiment
	cfg.AssetRoot = inRoot(cfg.AssetRoot)
	cfg.ExclusionsFile = inRoot(cfg.ExclusionsFile)
	cfg.TrialTypes = append([]int(nil), cfg.TrialTypes...)
	return cfg
}

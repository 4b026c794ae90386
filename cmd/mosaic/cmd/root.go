// Package cmd provides the CLI commands for Mosaic.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mosaicdocs/mosaic/internal/logging"
	"github.com/mosaicdocs/mosaic/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the mosaic CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mosaic",
		Short: "Hybrid search over multi-tenant document workspaces",
		Long: `Mosaic combines full-text and semantic search over document
workspaces, fusing both result lists with Reciprocal Rank Fusion.

Documents are indexed into overlapping chunks with embeddings; queries
run lexical and semantic retrieval and merge the rankings. When the
embedding provider is down, search degrades to lexical-only.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("mosaic version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ~/.mosaic/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.mosaic/logs/")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newRecentCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	_, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Logging problems never block the command itself
		fmt.Fprintf(os.Stderr, "warning: logging setup failed: %v\n", err)
		return nil
	}
	loggingCleanup = cleanup
	return nil
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// Package cmd implements the perm-engine CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vmtag/perm-engine/pkg/logger"
)

// Version is the current version.
const Version = "0.1.0"

var (
	// Global flags.
	cfgFile string
	debug   bool
	quiet   bool
)

// rootCmd is the root command.
var rootCmd = &cobra.Command{
	Use:   "perm-engine",
	Short: "Parallel batch engine for VM tag and permission operations",
	Long: `perm-engine schedules, parallelizes, retries and reports the
execution of tag/permission operations over a VM inventory. Operation
plans are produced upstream; the engine decides how to run them, not
what they should be.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			logger.EnableDebug()
		}
		if quiet {
			logger.SetLevel(logger.LevelError)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress and info output")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

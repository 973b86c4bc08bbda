package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"vmtag/perm-engine/internal/config"
	"vmtag/perm-engine/internal/opsource"
	"vmtag/perm-engine/internal/partition"
)

// validateCmd checks a plan file and the effective configuration
// without executing anything.
var validateCmd = &cobra.Command{
	Use:   "validate <plan.yaml>",
	Short: "Validate a plan file and the effective configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewLoader().WithConfigPath(cfgFile).Load()
		if err != nil {
			return err
		}

		strategy, err := partition.ParseStrategy(cfg.Engine.BatchStrategy)
		if err != nil {
			return err
		}

		plan, err := opsource.ParseFile(args[0])
		if err != nil {
			return err
		}

		// Exercise the partitioner so batch-count problems surface here
		// instead of at run time.
		batches, err := partition.Partition(plan.Operations, cfg.Engine.ThreadCount, strategy)
		if err != nil {
			return err
		}

		if !quiet {
			fmt.Printf("plan ok: %d operations, %d batches (%s)\n",
				len(plan.Operations), len(batches), strategy)
			for _, b := range batches {
				fmt.Printf("  batch %d: %d operations, complexity %d\n",
					b.Index, b.Size(), b.ComplexitySum())
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/danpilch/pathprof/pkg/benchmark"
)

func (a *app) newBenchCmd() *cobra.Command {
	opts := benchmark.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure the cost of an enter/exit pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.logger.WithField("iterations", opts.Iterations).Debug("Running self-benchmark")
			results := benchmark.Run(benchmark.DefaultScenarios(), opts)
			benchmark.RenderResults(cmd.OutOrStdout(), results)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Iterations, "iterations", opts.Iterations, "timed batches per scenario")
	cmd.Flags().IntVar(&opts.BatchSize, "batch", opts.BatchSize, "enter/exit pairs per batch")
	cmd.Flags().IntVar(&opts.Warmup, "warmup", opts.Warmup, "untimed batches per scenario")

	return cmd
}

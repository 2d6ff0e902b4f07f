package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danpilch/pathprof/pkg/export"
	"github.com/danpilch/pathprof/pkg/flamegraph"
	"github.com/danpilch/pathprof/pkg/output"
)

func (a *app) newReportCmd() *cobra.Command {
	var (
		format      string
		top         int
		percentiles string
		frames      int
	)

	cmd := &cobra.Command{
		Use:   "report <collapsed-file>",
		Short: "Rank the call paths of a collapsed dump by self time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			stacks, err := a.readCollapsed(args[0])
			if err != nil {
				return err
			}

			report := output.BuildReport(args[0], stacks, top)
			if percentiles != "" {
				rows, enabled, err := a.readPercentiles(percentiles)
				if err != nil {
					return err
				}
				if !enabled {
					a.logger.WithField("path", percentiles).Warn("Percentile dump was written with histograms disabled")
				}
				matched := report.AttachPercentiles(rows)
				a.logger.WithField("matched", matched).Debug("Attached percentiles")
			}

			fm := output.NewFormatter(f, cmd.OutOrStdout())
			fm.SetStackFrames(frames)
			return fm.Render(report)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, json, tsv or markdown")
	cmd.Flags().IntVarP(&top, "top", "n", 20, "number of paths to show (0 for all)")
	cmd.Flags().StringVarP(&percentiles, "percentiles", "p", "", "percentile CSV of the same thread")
	cmd.Flags().IntVar(&frames, "frames", 4, "trailing frames shown per stack in tables (0 for all)")

	return cmd
}

func (a *app) readCollapsed(path string) ([]flamegraph.Stack, error) {
	f, err := a.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stacks, err := flamegraph.ParseCollapsed(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stacks, nil
}

func (a *app) readPercentiles(path string) ([]export.PercentileRow, bool, error) {
	f, err := a.fs.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	rows, enabled, err := export.ReadPercentiles(f)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", path, err)
	}
	return rows, enabled, nil
}

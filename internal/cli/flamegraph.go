package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danpilch/pathprof/pkg/flamegraph"
)

func (a *app) newFlamegraphCmd() *cobra.Command {
	var (
		out    string
		title  string
		width  int
		colors string
	)

	cmd := &cobra.Command{
		Use:   "flamegraph <collapsed-file>",
		Short: "Render a collapsed dump as an SVG flame graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stacks, err := a.readCollapsed(args[0])
			if err != nil {
				return err
			}

			opts := flamegraph.DefaultSVGOptions()
			if title != "" {
				opts.Title = title
			}
			opts.Width = width
			opts.ColorScheme = colors

			if out == "" || out == "-" {
				return flamegraph.GenerateSVG(stacks, cmd.OutOrStdout(), opts)
			}

			f, err := a.fs.Create(out)
			if err != nil {
				return fmt.Errorf("cannot create %q: %w", out, err)
			}
			if err := flamegraph.GenerateSVG(stacks, f, opts); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			a.logger.WithField("path", out).Info("Wrote flame graph")
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", "SVG file to write (stdout when empty)")
	cmd.Flags().StringVar(&title, "title", "", "graph title")
	cmd.Flags().IntVar(&width, "width", 1200, "image width in pixels")
	cmd.Flags().StringVar(&colors, "colors", "hot", "color scheme: hot or cold")

	return cmd
}

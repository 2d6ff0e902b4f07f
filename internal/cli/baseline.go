package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danpilch/pathprof/pkg/baseline"
)

func (a *app) newBaselineCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Save collapsed dumps as baselines and compare against them",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "baseline directory (default ~/.pathprof/baselines)")

	store := func() *baseline.Store { return baseline.NewStore(a.fs, dir) }

	cmd.AddCommand(&cobra.Command{
		Use:   "save <name> <collapsed-file>",
		Short: "Save a collapsed dump as a named baseline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stacks, err := a.readCollapsed(args[1])
			if err != nil {
				return err
			}
			b := baseline.New(args[0], args[1], stacks)
			if err := store().Save(b); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved baseline %q (%d paths)\n", b.Name, len(b.Paths))
			return nil
		},
	})

	var failOnRegression bool
	compareCmd := &cobra.Command{
		Use:   "compare <name> <collapsed-file>",
		Short: "Compare a collapsed dump against a saved baseline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := store().Load(args[0])
			if err != nil {
				return err
			}
			stacks, err := a.readCollapsed(args[1])
			if err != nil {
				return err
			}

			comparisons := baseline.Compare(base, baseline.New("current", args[1], stacks))
			baseline.RenderComparison(cmd.OutOrStdout(), base, comparisons)

			if n := baseline.Regressions(comparisons); failOnRegression && n > 0 {
				return fmt.Errorf("%d regressions against baseline %q", n, base.Name)
			}
			return nil
		},
	}
	compareCmd.Flags().BoolVar(&failOnRegression, "fail-on-regression", false, "exit non-zero when a regression is found")
	cmd.AddCommand(compareCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved baselines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := store()
			names, err := s.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No baselines in %s\n", s.Dir())
				return nil
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	})

	return cmd
}

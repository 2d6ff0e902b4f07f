package cli

import (
	"github.com/spf13/cobra"

	"github.com/danpilch/pathprof/pkg/baseline"
	"github.com/danpilch/pathprof/pkg/mcpserver"
)

func (a *app) newMCPCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve dumps to MCP clients over stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout with the tools
load_profile, find_hotspots, compare_baseline and list_baselines.

Logs go to stderr so they never mix with protocol traffic.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := mcpserver.New("pathprof", Version, a.fs, baseline.NewStore(a.fs, dir), a.logger)
			a.logger.Info("MCP server ready on stdio")
			return s.ServeStdio()
		},
	}
	cmd.Flags().StringVar(&dir, "baseline-dir", "", "baseline directory (default ~/.pathprof/baselines)")

	return cmd
}

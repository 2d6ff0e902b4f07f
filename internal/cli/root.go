// Package cli implements the pathprof command line.
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/danpilch/pathprof/pkg/config"
)

// Version is set at build time.
var Version = "dev"

// app is the state shared by every subcommand.
type app struct {
	fs     afero.Fs
	logger *logrus.Logger
	cfg    config.Config

	configPath string
	logLevel   string
}

// NewRootCmd builds the command tree on fs.
func NewRootCmd(fs afero.Fs) *cobra.Command {
	a := &app{
		fs:     fs,
		logger: logrus.New(),
		cfg:    config.Default(),
	}

	rootCmd := &cobra.Command{
		Use:   "pathprof",
		Short: "pathprof - call-path profiling for instrumented Go programs",
		Long: `Record self time per distinct call path on every thread, then dump it as
collapsed stacks, latency percentiles, speedscope or pprof profiles.

The subcommands run a demo workload, turn dumps into reports, flame graphs and
baselines, benchmark the instrumentation cost and serve dumps to MCP clients.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides the configuration)")

	rootCmd.AddCommand(a.newDemoCmd())
	rootCmd.AddCommand(a.newReportCmd())
	rootCmd.AddCommand(a.newFlamegraphCmd())
	rootCmd.AddCommand(a.newBaselineCmd())
	rootCmd.AddCommand(a.newBenchCmd())
	rootCmd.AddCommand(a.newMCPCmd())

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.configPath != "" {
		cfg, err := config.LoadFrom(a.fs, a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	level := a.cfg.Level()
	if a.logLevel != "" {
		lvl, err := logrus.ParseLevel(a.logLevel)
		if err != nil {
			return err
		}
		level = lvl
	}
	a.logger.SetLevel(level)
	a.logger.SetOutput(cmd.ErrOrStderr())
	return nil
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd(afero.NewOsFs()).Execute()
}

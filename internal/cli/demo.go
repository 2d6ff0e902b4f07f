package cli

import (
	"context"
	"fmt"
	"hash/fnv"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danpilch/pathprof/pkg/config"
	"github.com/danpilch/pathprof/pkg/debug"
	"github.com/danpilch/pathprof/pkg/profiler"
)

type demoOptions struct {
	threads    int
	iterations int
	out        string
	histograms bool
	dryRun     bool
	agentArgs  string
	debugAddr  string
	hold       time.Duration
}

func (a *app) newDemoCmd() *cobra.Command {
	var opts demoOptions

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Profile a synthetic nested workload and dump every format",
		Long: `Run a small request-handling workload on several goroutines, each locked to
its own OS thread, and dump the profile of every thread to the output directory.

Agent-style settings can be given in the compact form used by instrumented
programs, for example --agent-args 'packages=demo.|other.,histograms=true'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.demoConfig(cmd, opts)
			if err != nil {
				return err
			}
			return a.runDemo(cmd, cfg, opts)
		},
	}

	cmd.Flags().IntVar(&opts.threads, "threads", 4, "worker threads")
	cmd.Flags().IntVar(&opts.iterations, "iterations", 200, "requests per thread")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "dump directory (default from configuration)")
	cmd.Flags().BoolVar(&opts.histograms, "histograms", false, "record latency histograms")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "enable diagnostics such as collision reports")
	cmd.Flags().StringVar(&opts.agentArgs, "agent-args", "", "compact agent arguments, applied over the configuration file")
	cmd.Flags().StringVar(&opts.debugAddr, "debug-addr", "", "serve pprof, /metrics and /threads on this address")
	cmd.Flags().DurationVar(&opts.hold, "hold", 0, "keep the debug server up this long after dumping")

	return cmd
}

func (a *app) demoConfig(cmd *cobra.Command, opts demoOptions) (config.Config, error) {
	cfg := a.cfg
	if opts.agentArgs != "" {
		parsed, err := config.ParseAgentArgs(opts.agentArgs)
		if err != nil {
			return cfg, err
		}
		cfg = parsed
	}
	if cmd.Flags().Changed("histograms") {
		cfg.Histograms = opts.histograms
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = opts.dryRun
	}
	if opts.out != "" {
		cfg.OutputDir = opts.out
	}
	if len(cfg.Packages) == 0 {
		cfg.Packages = []string{"demo."}
	}
	if opts.threads < 1 || opts.iterations < 1 {
		return cfg, fmt.Errorf("threads and iterations must be positive")
	}
	return cfg, nil
}

func (a *app) runDemo(cmd *cobra.Command, cfg config.Config, opts demoOptions) error {
	p := profiler.New(
		profiler.WithConfig(cfg),
		profiler.WithLogger(a.logger),
		profiler.WithFs(a.fs),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.debugAddr != "" {
		srv, err := debug.StartServer(opts.debugAddr, p.Registry(), p.Threads, a.logger)
		if err != nil {
			return err
		}
		defer srv.Stop()
		fmt.Fprintf(cmd.OutOrStdout(), "Debug server on http://%s\n", srv.Addr())
	}

	w := newWorkload(p)
	var wg sync.WaitGroup
	for i := 0; i < opts.threads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			th := p.Current()
			if th == nil {
				th = p.Attach(fmt.Sprintf("demo-%d", i))
			}
			tctx := profiler.WithThread(ctx, th)
			for n := 0; n < opts.iterations && ctx.Err() == nil; n++ {
				_ = w.handle(tctx, n)
			}
		}(i)
	}
	wg.Wait()

	if err := p.DumpAll(cfg.OutputDir); err != nil {
		return err
	}
	debug.RenderThreads(cmd.OutOrStdout(), p.Threads())
	fmt.Fprintf(cmd.OutOrStdout(), "\nDumps written to %s\n", cfg.OutputDir)

	if opts.debugAddr != "" && opts.hold > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(opts.hold):
		}
	}
	return nil
}

// workload is a fixed call shape: every request is parsed and rendered, every
// third one also reads the store, which decodes its record.
type workload struct {
	serve, parse, lookup, decode, render *profiler.Site
}

func newWorkload(p *profiler.Profiler) *workload {
	return &workload{
		serve:  p.Site("demo.Server.Handle"),
		parse:  p.Site("demo.Parser.Parse"),
		lookup: p.Site("demo.Store.Lookup"),
		decode: p.Site("demo.Codec.Decode"),
		render: p.Site("demo.View.Render"),
	}
}

func (w *workload) handle(ctx context.Context, n int) error {
	return w.serve.RunContext(ctx, func(ctx context.Context) error {
		burn(200)
		if err := w.parse.RunContext(ctx, func(context.Context) error {
			burn(2000 + n%7*100)
			return nil
		}); err != nil {
			return err
		}
		if n%3 == 0 {
			if err := w.lookup.RunContext(ctx, func(ctx context.Context) error {
				burn(500)
				return w.decode.RunContext(ctx, func(context.Context) error {
					burn(3000)
					return nil
				})
			}); err != nil {
				return err
			}
		}
		return w.render.RunContext(ctx, func(context.Context) error {
			burn(1000)
			return nil
		})
	})
}

// burn hashes n bytes to stand in for real work.
func burn(n int) uint64 {
	h := fnv.New64a()
	buf := make([]byte, 64)
	for i := 0; i < n; i += len(buf) {
		buf[0] = byte(i)
		h.Write(buf)
	}
	return h.Sum64()
}

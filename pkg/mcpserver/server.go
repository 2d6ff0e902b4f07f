// Package mcpserver exposes call-path dumps to language-model clients over
// the Model Context Protocol.
package mcpserver

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/danpilch/pathprof/pkg/baseline"
	"github.com/danpilch/pathprof/pkg/export"
	"github.com/danpilch/pathprof/pkg/flamegraph"
	"github.com/danpilch/pathprof/pkg/output"
)

const defaultTop = 10

// Server holds loaded profiles between tool calls.
type Server struct {
	fs        afero.Fs
	baselines *baseline.Store
	logger    *logrus.Logger
	profiles  *xsync.MapOf[string, []flamegraph.Stack]
	mcp       *server.MCPServer
}

// New creates the server and registers its tools.
func New(name, version string, fs afero.Fs, baselines *baseline.Store, logger *logrus.Logger) *Server {
	s := &Server{
		fs:        fs,
		baselines: baselines,
		logger:    logger,
		profiles:  xsync.NewMapOf[string, []flamegraph.Stack](),
		mcp:       server.NewMCPServer(name, version, server.WithLogging()),
	}

	s.mcp.AddTool(mcp.NewTool("load_profile",
		mcp.WithDescription("Load a collapsed call-path dump (collapsed-<thread>-<tid>.txt) for analysis"),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to the collapsed dump file"),
		),
	), s.loadProfile)

	s.mcp.AddTool(mcp.NewTool("find_hotspots",
		mcp.WithDescription("Rank call paths by self time. This is the main tool for finding where a thread spends its time."),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to a loaded collapsed dump"),
		),
		mcp.WithNumber("top_n",
			mcp.Description("Number of hotspots to return (default: 10)"),
		),
		mcp.WithString("percentiles_path",
			mcp.Description("Optional percentile CSV of the same thread to add latency columns"),
		),
	), s.findHotspots)

	s.mcp.AddTool(mcp.NewTool("compare_baseline",
		mcp.WithDescription("Compare a loaded dump against a saved baseline and list paths whose share of self time drifted"),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to a loaded collapsed dump"),
		),
		mcp.WithString("baseline",
			mcp.Required(),
			mcp.Description("Name of the saved baseline"),
		),
	), s.compareBaseline)

	s.mcp.AddTool(mcp.NewTool("list_baselines",
		mcp.WithDescription("List saved baselines"),
	), s.listBaselines)

	return s
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves requests on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// Load parses a collapsed dump and caches it under its cleaned path.
func (s *Server) Load(path string) ([]flamegraph.Stack, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stacks, err := flamegraph.ParseCollapsed(f)
	if err != nil {
		return nil, err
	}
	s.profiles.Store(filepath.Clean(path), stacks)
	s.logger.WithFields(logrus.Fields{
		"path":  path,
		"paths": len(stacks),
	}).Debug("Loaded profile")
	return stacks, nil
}

func (s *Server) loaded(path string) ([]flamegraph.Stack, bool) {
	return s.profiles.Load(filepath.Clean(path))
}

func (s *Server) loadProfile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	stacks, err := s.Load(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load profile: %v", err)), nil
	}

	report := output.BuildReport(path, stacks, 1)
	top := "none"
	if len(report.Hotspots) > 0 {
		top = fmt.Sprintf("%s (%.1f%%)", report.Hotspots[0].Stack, report.Hotspots[0].Share)
	}

	return mcp.NewToolResultText(fmt.Sprintf(`Profile loaded.

File: %s
Paths: %d
Total self time: %s
Heaviest path: %s

Use find_hotspots or compare_baseline to analyze it.
`, path, report.Paths, time.Duration(report.TotalNs), top)), nil
}

func (s *Server) findHotspots(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	top := int(request.GetFloat("top_n", defaultTop))
	if top <= 0 {
		top = defaultTop
	}

	stacks, ok := s.loaded(path)
	if !ok {
		return mcp.NewToolResultError("Profile not loaded. Use load_profile tool first"), nil
	}
	report := output.BuildReport(path, stacks, top)

	if pct := request.GetString("percentiles_path", ""); pct != "" {
		f, err := s.fs.Open(pct)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to open percentiles: %v", err)), nil
		}
		rows, _, err := export.ReadPercentiles(f)
		f.Close()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read percentiles: %v", err)), nil
		}
		report.AttachPercentiles(rows)
	}

	var sb strings.Builder
	if err := output.NewFormatter(output.FormatMarkdown, &sb).Render(report); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) compareBaseline(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := request.RequireString("baseline")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	stacks, ok := s.loaded(path)
	if !ok {
		return mcp.NewToolResultError("Profile not loaded. Use load_profile tool first"), nil
	}
	base, err := s.baselines.Load(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	comparisons := baseline.Compare(base, baseline.New("current", path, stacks))

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Baseline comparison: %s vs %s\n\n", path, name)
	fmt.Fprintf(&sb, "Baseline taken %s on %s.\n\n", base.Timestamp.Format(time.RFC3339), base.Hostname)

	changed := 0
	for _, c := range comparisons {
		if c.Severity == baseline.SeverityNone {
			continue
		}
		changed++
		fmt.Fprintf(&sb, "- [%s] `%s`: %.1f%% -> %.1f%% of self time (%+.1f%%)\n",
			c.Severity, c.Stack, c.BaselineShare, c.CurrentShare, c.DeltaPct)
	}
	if changed == 0 {
		sb.WriteString("No path drifted by 5% or more.\n")
	}
	fmt.Fprintf(&sb, "\n**Regressions:** %d\n", baseline.Regressions(comparisons))
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) listBaselines(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.baselines.List()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(names) == 0 {
		return mcp.NewToolResultText("No baselines saved in " + s.baselines.Dir()), nil
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

// Package config holds profiler settings: which routines to instrument,
// diagnostic and histogram toggles, and where dumps go.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/danpilch/pathprof/pkg/export"
	"github.com/danpilch/pathprof/pkg/histogram"
)

// Config is the full profiler configuration.
type Config struct {
	// Packages are name prefixes selecting instrumented routines. With no
	// packages nothing is instrumented.
	Packages []string `yaml:"packages"`

	// DryRun enables side-channel diagnostics such as hash collision reports.
	DryRun bool `yaml:"dry_run"`

	// Histograms enables per-path latency histograms.
	Histograms bool `yaml:"histograms"`

	// HistogramMax is the largest self time tracked before clamping.
	HistogramMax time.Duration `yaml:"histogram_max"`

	// OutputDir is where dumps are written.
	OutputDir string `yaml:"output_dir"`

	// Formats selects the dump formats written by a full dump.
	Formats []string `yaml:"formats"`

	// LogLevel is a logrus level name.
	LogLevel string `yaml:"log_level"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		HistogramMax: time.Duration(histogram.DefaultMax),
		OutputDir:    "pathprof-out",
		Formats:      formatNames(export.Formats()),
		LogLevel:     "warn",
	}
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (Config, error) {
	return LoadFrom(afero.NewOsFs(), path)
}

// LoadFrom is Load reading from fs.
func LoadFrom(fs afero.Fs, path string) (Config, error) {
	cfg := Default()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, fmt.Errorf("cannot read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("cannot parse config %q: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// ParseAgentArgs parses the compact agent argument form:
//
//	packages=com.acme|org.example,dryRun=true,histograms=true,out=/tmp/prof,formats=collapsed|speedscope
//
// Pairs are comma separated, list values are '|' separated. Unknown keys are
// rejected.
func ParseAgentArgs(args string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(args) == "" {
		return cfg, nil
	}

	for _, part := range strings.Split(args, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return cfg, fmt.Errorf("malformed agent argument %q", part)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch strings.ToLower(key) {
		case "packages":
			cfg.Packages = splitList(value)
		case "dryrun":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return cfg, fmt.Errorf("invalid dryRun value %q: %w", value, err)
			}
			cfg.DryRun = b
		case "histograms", "histogram":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return cfg, fmt.Errorf("invalid histograms value %q: %w", value, err)
			}
			cfg.Histograms = b
		case "histogrammax":
			d, err := time.ParseDuration(value)
			if err != nil {
				return cfg, fmt.Errorf("invalid histogramMax value %q: %w", value, err)
			}
			cfg.HistogramMax = d
		case "out", "outputdir":
			cfg.OutputDir = value
		case "formats":
			cfg.Formats = splitList(value)
		case "loglevel":
			cfg.LogLevel = value
		default:
			return cfg, fmt.Errorf("unknown agent argument %q", key)
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for inconsistent values.
func (c Config) Validate() error {
	if c.HistogramMax < 0 {
		return fmt.Errorf("histogram_max must not be negative, got %s", c.HistogramMax)
	}
	if c.HistogramMax > 0 && c.HistogramMax < time.Microsecond {
		return fmt.Errorf("histogram_max must be at least 1µs, got %s", c.HistogramMax)
	}
	if _, err := c.ExportFormats(); err != nil {
		return err
	}
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("invalid log_level: %w", err)
		}
	}
	return nil
}

// ExportFormats returns the configured dump formats.
func (c Config) ExportFormats() ([]export.Format, error) {
	out := make([]export.Format, 0, len(c.Formats))
	for _, name := range c.Formats {
		f, err := export.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Level returns the configured log level, falling back to warn.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.WarnLevel
	}
	return lvl
}

// Instrumented reports whether a routine name falls under one of the
// configured package prefixes.
func (c Config) Instrumented(name string) bool {
	for _, pkg := range c.Packages {
		if pkg == "" {
			continue
		}
		if strings.HasPrefix(name, pkg) {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, "|") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func formatNames(fs []export.Format) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}

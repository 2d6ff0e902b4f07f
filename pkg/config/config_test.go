package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/pathprof/pkg/export"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.HistogramMax)
	assert.False(t, cfg.Histograms)
	assert.False(t, cfg.DryRun)

	formats, err := cfg.ExportFormats()
	require.NoError(t, err)
	assert.Equal(t, export.Formats(), formats)
}

func TestParseAgentArgs(t *testing.T) {
	cfg, err := ParseAgentArgs("packages=com.acme| org.example ,dryRun=true,histograms=true,out=/tmp/prof,formats=collapsed|speedscope,histogramMax=5s")
	require.NoError(t, err)

	assert.Equal(t, []string{"com.acme", "org.example"}, cfg.Packages)
	assert.True(t, cfg.DryRun)
	assert.True(t, cfg.Histograms)
	assert.Equal(t, "/tmp/prof", cfg.OutputDir)
	assert.Equal(t, []string{"collapsed", "speedscope"}, cfg.Formats)
	assert.Equal(t, 5*time.Second, cfg.HistogramMax)
}

func TestParseAgentArgs_Empty(t *testing.T) {
	cfg, err := ParseAgentArgs("  ")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseAgentArgs_Errors(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{"missing value", "packages"},
		{"bad bool", "dryRun=maybe"},
		{"unknown key", "colour=blue"},
		{"bad format", "formats=svg"},
		{"bad duration", "histogramMax=soon"},
		{"bad level", "logLevel=loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAgentArgs(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestInstrumented(t *testing.T) {
	cfg := Config{Packages: []string{"com.acme", ""}}

	assert.True(t, cfg.Instrumented("com.acme"))
	assert.True(t, cfg.Instrumented("com.acme.Service.run"))
	assert.True(t, cfg.Instrumented("com.acmex.Other"))
	assert.False(t, cfg.Instrumented("org.example.Main"))

	assert.False(t, Config{}.Instrumented("com.acme.Service.run"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pathprof.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
packages: [github.com/acme/shop]
dry_run: true
histograms: true
histogram_max: 2s
output_dir: /var/tmp/prof
formats: [collapsed, pprof]
log_level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"github.com/acme/shop"}, cfg.Packages)
	assert.True(t, cfg.DryRun)
	assert.True(t, cfg.Histograms)
	assert.Equal(t, 2*time.Second, cfg.HistogramMax)
	assert.Equal(t, "/var/tmp/prof", cfg.OutputDir)
	assert.Equal(t, []string{"collapsed", "pprof"}, cfg.Formats)
	assert.Equal(t, logrus.DebugLevel, cfg.Level())
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFrom_Invalid(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("formats: [svg]\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/broken.yaml", []byte("packages: [\n"), 0o644))

	_, err := LoadFrom(fs, "/bad.yaml")
	assert.ErrorContains(t, err, "svg")

	_, err = LoadFrom(fs, "/broken.yaml")
	assert.ErrorContains(t, err, "cannot parse config")
}

func TestValidate_HistogramMax(t *testing.T) {
	cfg := Default()
	cfg.HistogramMax = -time.Second
	assert.Error(t, cfg.Validate())

	cfg.HistogramMax = time.Nanosecond
	assert.Error(t, cfg.Validate())
}

package profiler

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/danpilch/pathprof/pkg/export"
)

// Snapshots captures the aggregated records of every thread, ordered by
// thread id. A thread running concurrently may be captured mid-update.
func (p *Profiler) Snapshots() []export.Snapshot {
	histograms := p.settings.Histograms.Load()
	threads := p.Threads()
	out := make([]export.Snapshot, 0, len(threads))
	for _, th := range threads {
		out = append(out, export.Snapshot{
			ThreadName: th.Name(),
			ThreadID:   th.ID(),
			Records:    th.Snapshot(),
			Histograms: histograms,
		})
	}
	return out
}

// Dump writes one file per registered thread in format f into dir, creating
// dir if needed. Every thread is attempted; write failures are combined into
// the returned error.
func (p *Profiler) Dump(dir string, f export.Format) error {
	start := time.Now()
	label := string(f)
	defer func() {
		p.metrics.dumpDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		p.metrics.dumpFailures.WithLabelValues(label).Inc()
		return fmt.Errorf("cannot create dump directory %q: %w", dir, err)
	}

	var result *multierror.Error
	written := 0
	for _, snap := range p.Snapshots() {
		path := filepath.Join(dir, snap.FileName(f))
		if err := p.writeSnapshot(path, f, snap); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		written++
		p.metrics.dumpFiles.WithLabelValues(label).Inc()
		p.logger.WithFields(logrus.Fields{
			"format": label,
			"path":   path,
			"paths":  len(snap.Records),
		}).Debug("Wrote thread dump")
	}

	if err := result.ErrorOrNil(); err != nil {
		p.metrics.dumpFailures.WithLabelValues(label).Inc()
		p.logger.WithFields(logrus.Fields{
			"format": label,
			"dir":    dir,
			"error":  err,
		}).Warn("Dump incomplete")
		return err
	}
	p.metrics.dumps.WithLabelValues(label).Inc()
	p.logger.WithFields(logrus.Fields{
		"format":  label,
		"dir":     dir,
		"threads": written,
	}).Info("Dump complete")
	return nil
}

func (p *Profiler) writeSnapshot(path string, f export.Format, snap export.Snapshot) error {
	file, err := p.fs.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create %q: %w", path, err)
	}
	if err := export.Write(file, f, p.ids, snap); err != nil {
		file.Close()
		return fmt.Errorf("cannot write %q: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("cannot close %q: %w", path, err)
	}
	return nil
}

// DumpCollapsed writes collapsed-stack text files.
func (p *Profiler) DumpCollapsed(dir string) error {
	return p.Dump(dir, export.FormatCollapsed)
}

// DumpPercentiles writes percentile CSV files.
func (p *Profiler) DumpPercentiles(dir string) error {
	return p.Dump(dir, export.FormatPercentiles)
}

// DumpSpeedscope writes speedscope JSON files.
func (p *Profiler) DumpSpeedscope(dir string) error {
	return p.Dump(dir, export.FormatSpeedscope)
}

// DumpPprof writes gzipped pprof profiles.
func (p *Profiler) DumpPprof(dir string) error {
	return p.Dump(dir, export.FormatPprof)
}

// DumpAll writes every configured format.
func (p *Profiler) DumpAll(dir string) error {
	var result *multierror.Error
	for _, f := range p.formats {
		if err := p.Dump(dir, f); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

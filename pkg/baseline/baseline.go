// Package baseline saves call-path profiles as named baselines and detects
// drift between a baseline and a later profile.
package baseline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"

	"github.com/danpilch/pathprof/pkg/export"
	"github.com/danpilch/pathprof/pkg/flamegraph"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Baseline is a saved profile: self nanoseconds keyed by collapsed stack.
type Baseline struct {
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Hostname  string            `json:"hostname"`
	Source    string            `json:"source"`
	TotalNs   int64             `json:"total_ns"`
	Paths     map[string]int64  `json:"paths"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// New creates a baseline from parsed stacks.
func New(name, source string, stacks []flamegraph.Stack) *Baseline {
	hostname, _ := os.Hostname()
	b := &Baseline{
		Name:      name,
		Timestamp: time.Now(),
		Hostname:  hostname,
		Source:    source,
		Paths:     make(map[string]int64, len(stacks)),
	}
	for _, s := range stacks {
		b.Paths[s.Key()] += s.Value
		b.TotalNs += s.Value
	}
	return b
}

// Share returns the percentage of total self time spent in stack.
func (b *Baseline) Share(stack string) float64 {
	if b.TotalNs == 0 {
		return 0
	}
	return float64(b.Paths[stack]) / float64(b.TotalNs) * 100
}

// DefaultDir returns the default baseline storage directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pathprof/baselines"
	}
	return filepath.Join(home, ".pathprof", "baselines")
}

// Store keeps baselines as JSON files in one directory.
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore returns a store rooted at dir. An empty dir means DefaultDir.
func NewStore(fs afero.Fs, dir string) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{fs: fs, dir: dir}
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) (string, error) {
	if name == "" {
		return "", errors.New("baseline name is empty")
	}
	if export.Sanitize(name) != name {
		return "", fmt.Errorf("baseline name %q may only contain letters, digits, '.', '_' and '-'", name)
	}
	return filepath.Join(s.dir, name+".json"), nil
}

// Save writes a baseline, replacing any baseline of the same name.
func (s *Store) Save(b *Baseline) error {
	path, err := s.path(b.Name)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("cannot create baseline directory: %w", err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal baseline: %w", err)
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write baseline: %w", err)
	}
	return nil
}

// Load reads a baseline by name.
func (s *Store) Load(name string) (*Baseline, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("cannot read baseline %q: %w", name, err)
	}

	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("cannot parse baseline %q: %w", name, err)
	}
	if b.Paths == nil {
		b.Paths = map[string]int64{}
	}
	return &b, nil
}

// List returns the names of saved baselines in lexical order.
func (s *Store) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	sort.Strings(names)
	return names, nil
}

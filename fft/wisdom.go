package fft

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// SystemWisdomPath is read when no explicit wisdom file is given.
const SystemWisdomPath = "/etc/sweeper/wisdom.yaml"

const wisdomVersion = 1

// Entry records one measured plan shape.
type Entry struct {
	Size      int    `yaml:"size"`
	Direction string `yaml:"direction"`
	Effort    string `yaml:"effort"`
	NsPerOp   int64  `yaml:"ns_per_op"`
}

type wisdomFile struct {
	Version int     `yaml:"version"`
	Plans   []Entry `yaml:"plans"`
}

type wisdomKey struct {
	size int
	dir  Direction
}

// Wisdom remembers which plan shapes were already measured. It is safe for
// concurrent use; a nil *Wisdom knows nothing and forgets everything added.
type Wisdom struct {
	mu      sync.Mutex
	entries map[wisdomKey]Entry
}

func NewWisdom() *Wisdom {
	return &Wisdom{entries: map[wisdomKey]Entry{}}
}

// Lookup returns the entry for a plan shape if it was measured with at
// least the requested effort.
func (w *Wisdom) Lookup(size int, dir Direction, effort Effort) (Entry, bool) {
	if w == nil {
		return Entry{}, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[wisdomKey{size, dir}]
	if !ok {
		return Entry{}, false
	}
	have, err := ParseEffort(e.Effort)
	if err != nil || have < effort {
		return Entry{}, false
	}
	return e, true
}

// Add records e, keeping the entry with the higher effort on conflict.
func (w *Wisdom) Add(e Entry) {
	if w == nil {
		return
	}
	dir, err := parseDirection(e.Direction)
	if err != nil {
		return
	}
	effort, err := ParseEffort(e.Effort)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	k := wisdomKey{e.Size, dir}
	if old, ok := w.entries[k]; ok {
		if oldEffort, err := ParseEffort(old.Effort); err == nil && oldEffort > effort {
			return
		}
	}
	w.entries[k] = e
}

func (w *Wisdom) Len() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Forget drops everything learned so far.
func (w *Wisdom) Forget() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = map[wisdomKey]Entry{}
}

// Import merges the wisdom stored at path. An empty path reads
// SystemWisdomPath.
func (w *Wisdom) Import(path string) error {
	if path == "" {
		path = SystemWisdomPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f wisdomFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("unable to parse wisdom file %q: %w", path, err)
	}
	if f.Version != wisdomVersion {
		return fmt.Errorf("wisdom file %q has version %d, want %d", path, f.Version, wisdomVersion)
	}
	for _, e := range f.Plans {
		w.Add(e)
	}
	return nil
}

// Export writes all entries to path, sorted by size and direction.
func (w *Wisdom) Export(path string) error {
	f := wisdomFile{Version: wisdomVersion}
	if w != nil {
		w.mu.Lock()
		for _, e := range w.entries {
			f.Plans = append(f.Plans, e)
		}
		w.mu.Unlock()
	}
	sort.Slice(f.Plans, func(i, j int) bool {
		if f.Plans[i].Size != f.Plans[j].Size {
			return f.Plans[i].Size < f.Plans[j].Size
		}
		return f.Plans[i].Direction > f.Plans[j].Direction
	})
	data, err := yaml.Marshal(&f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

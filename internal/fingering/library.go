package fingering

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnknownChord is returned when a chord is not in the library.
var ErrUnknownChord = errors.New("unknown chord")

// Library holds the fingerings loaded at startup. It is never mutated after
// construction and is safe for concurrent use.
type Library struct {
	specs map[string]*Spec
}

// NewLibrary builds a library from already parsed specs.
func NewLibrary(specs ...*Spec) (*Library, error) {
	l := &Library{specs: make(map[string]*Spec, len(specs))}
	for _, s := range specs {
		if s == nil {
			continue
		}
		if _, dup := l.specs[s.Chord()]; dup {
			return nil, fmt.Errorf("duplicate chord %q", s.Chord())
		}
		l.specs[s.Chord()] = s
	}
	return l, nil
}

// LoadLibrary reads every *.json file in dir as a fingering document.
func LoadLibrary(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fingering dir: %w", err)
	}

	var specs []*Spec
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		s, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}

	return NewLibrary(specs...)
}

// Get returns the fingering for a chord.
func (l *Library) Get(chord string) (*Spec, error) {
	s, ok := l.specs[chord]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChord, chord)
	}
	return s, nil
}

// Names returns the chord names in sorted order.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.specs))
	for name := range l.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of chords.
func (l *Library) Len() int { return len(l.specs) }

// With returns a copy of the library with spec added, replacing any existing
// fingering of the same chord. The receiver is left unchanged.
func (l *Library) With(spec *Spec) *Library {
	next := &Library{specs: make(map[string]*Spec, len(l.specs)+1)}
	for name, s := range l.specs {
		next.specs[name] = s
	}
	next.specs[spec.Chord()] = spec
	return next
}

package fingering

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Finger pairs a finger name with its placement rule.
type Finger struct {
	Name string
	Rule Rule
}

// Spec is an ordered, read-only fingering for one chord.
// The order is the order of keys in the source document.
type Spec struct {
	chord   string
	fingers []Finger
	index   map[string]int
}

// NewSpec builds a Spec from fingers in the given order.
// Finger names must be unique and non-empty.
func NewSpec(chord string, fingers []Finger) (*Spec, error) {
	s := &Spec{
		chord:   chord,
		fingers: make([]Finger, 0, len(fingers)),
		index:   make(map[string]int, len(fingers)),
	}

	for _, f := range fingers {
		if f.Name == "" {
			return nil, errors.New("finger name is empty")
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate finger %q", f.Name)
		}
		s.index[f.Name] = len(s.fingers)
		s.fingers = append(s.fingers, f)
	}

	return s, nil
}

// Parse decodes a fingering document: a JSON object mapping finger name to
// rule. Key order is preserved.
func Parse(chord string, data []byte) (*Spec, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", chord, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("parse %s: expected object, got %v", chord, tok)
	}

	var fingers []Finger
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", chord, err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("parse %s: expected finger name, got %v", chord, tok)
		}

		var rule Rule
		if err := dec.Decode(&rule); err != nil {
			return nil, fmt.Errorf("parse %s: finger %q: %w", chord, name, err)
		}
		fingers = append(fingers, Finger{Name: name, Rule: rule})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("parse %s: %w", chord, err)
	}

	return NewSpec(chord, fingers)
}

// Load reads a fingering document from disk. The chord name is the file
// name without its extension.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fingering: %w", err)
	}
	chord := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(chord, data)
}

// Chord returns the chord name.
func (s *Spec) Chord() string { return s.chord }

// Len returns the number of finger rules.
func (s *Spec) Len() int { return len(s.fingers) }

// Fingers returns a copy of the fingers in document order.
func (s *Spec) Fingers() []Finger {
	out := make([]Finger, len(s.fingers))
	copy(out, s.fingers)
	return out
}

// Rule returns the rule for a finger.
func (s *Spec) Rule(name string) (Rule, bool) {
	i, ok := s.index[name]
	if !ok {
		return Rule{}, false
	}
	return s.fingers[i].Rule, true
}

// Position returns the document position of a finger, or -1.
func (s *Spec) Position(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// MarshalJSON encodes the spec as an ordered JSON object.
func (s *Spec) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.fingers {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Rule)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Fingerprint returns a hex digest of the encoded rules. Two specs with the
// same fingers, rules and order share a fingerprint.
func (s *Spec) Fingerprint() string {
	data, err := s.MarshalJSON()
	if err != nil {
		return ""
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Problem describes one structural defect in a spec.
type Problem struct {
	Finger string
	Reason string
}

func (p Problem) Error() string {
	return fmt.Sprintf("finger %q: %s", p.Finger, p.Reason)
}

// Validate reports structural defects: rules without a kind, string numbers
// outside 1-6, references to unknown fingers, self references and reference
// cycles.
// A spec with problems is still usable; affected fingers simply do not
// resolve.
func (s *Spec) Validate() []Problem {
	var problems []Problem

	for _, f := range s.fingers {
		switch f.Rule.Kind {
		case "":
			problems = append(problems, Problem{f.Name, ErrRuleKind.Error()})
		case KindDirect:
			if f.Rule.StringNumber < MinString || f.Rule.StringNumber > MaxString {
				problems = append(problems, Problem{f.Name, fmt.Sprintf("string number %d out of range", f.Rule.StringNumber)})
			}
		case KindRelational:
			switch {
			case f.Rule.RefFinger == f.Name:
				problems = append(problems, Problem{f.Name, "references itself"})
			case s.Position(f.Rule.RefFinger) < 0:
				problems = append(problems, Problem{f.Name, fmt.Sprintf("unknown reference %q", f.Rule.RefFinger)})
			}
		}
	}

	for _, name := range s.cycleMembers() {
		problems = append(problems, Problem{name, "part of a reference cycle"})
	}

	return problems
}

// cycleMembers returns fingers that sit on a reference cycle, in document order.
func (s *Spec) cycleMembers() []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(s.fingers))
	onCycle := make([]bool, len(s.fingers))

	var visit func(i int, path []int)
	visit = func(i int, path []int) {
		state[i] = visiting
		path = append(path, i)

		r := s.fingers[i].Rule
		if r.IsRelational() && r.RefFinger != s.fingers[i].Name {
			if j := s.Position(r.RefFinger); j >= 0 {
				switch state[j] {
				case visiting:
					for k := len(path) - 1; k >= 0; k-- {
						onCycle[path[k]] = true
						if path[k] == j {
							break
						}
					}
				case unvisited:
					visit(j, path)
				}
			}
		}
		state[i] = done
	}

	for i := range s.fingers {
		if state[i] == unvisited {
			visit(i, nil)
		}
	}

	var names []string
	for i, f := range s.fingers {
		if onCycle[i] {
			names = append(names, f.Name)
		}
	}
	return names
}

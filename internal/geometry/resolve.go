package geometry

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r2"

	"github.com/ayusman/fretsense/internal/fingering"
)

// Reasons a finger fails to resolve.
const (
	ReasonInvalidString       = "invalid string number"
	ReasonUnknownReference    = "unknown reference finger"
	ReasonReferenceCycle      = "reference cycle"
	ReasonReferenceUnresolved = "reference finger unresolved"
	ReasonNoRule              = "rule has neither string_number nor ref_finger"
)

// Target is a resolved finger position in pixels.
type Target struct {
	Finger string
	Group  string
	Point  r2.Point
}

// Unresolved records a finger that was left out of the result.
type Unresolved struct {
	Finger string `json:"finger"`
	Reason string `json:"reason"`
}

// Resolution is the outcome of resolving a fingering against a frame.
type Resolution struct {
	// Targets holds resolved fingers in fingering order.
	Targets []Target
	// Unresolved holds fingers omitted from Targets, in fingering order.
	Unresolved []Unresolved
	// Degenerate is set when the reference line has zero length; every
	// target then collapses onto a fixed point.
	Degenerate bool
}

// Lookup returns the target for a finger.
func (r Resolution) Lookup(finger string) (Target, bool) {
	for _, t := range r.Targets {
		if t.Finger == finger {
			return t, true
		}
	}
	return Target{}, false
}

type resolveState int

const (
	stateUnresolved resolveState = iota
	stateVisiting
	stateResolved
	stateUnresolvable
)

// Resolve computes a target for every finger in the fingering.
//
// Relational fingers are resolved in dependency order, so a reference may
// appear anywhere in the document and chains of any depth resolve. A finger
// whose reference is unknown, unresolvable or part of a cycle is reported in
// Unresolved instead of failing the whole request.
func Resolve(f *Frame, spec *fingering.Spec) Resolution {
	r := &resolver{
		frame:  f,
		spec:   spec,
		state:  make(map[string]resolveState, spec.Len()),
		points: make(map[string]r2.Point, spec.Len()),
		reason: make(map[string]string),
	}

	fingers := spec.Fingers()

	// Direct rules first; they depend on nothing.
	for _, fg := range fingers {
		if fg.Rule.IsDirect() {
			r.resolve(fg.Name)
		}
	}
	for _, fg := range fingers {
		r.resolve(fg.Name)
	}

	res := Resolution{Degenerate: f.line.Degenerate()}
	for _, fg := range fingers {
		if r.state[fg.Name] == stateResolved {
			res.Targets = append(res.Targets, Target{
				Finger: fg.Name,
				Group:  fingering.GroupOf(fg.Name),
				Point:  r.points[fg.Name],
			})
			continue
		}
		res.Unresolved = append(res.Unresolved, Unresolved{Finger: fg.Name, Reason: r.reason[fg.Name]})
	}
	return res
}

type resolver struct {
	frame  *Frame
	spec   *fingering.Spec
	state  map[string]resolveState
	points map[string]r2.Point
	reason map[string]string
}

func (r *resolver) resolve(name string) bool {
	switch r.state[name] {
	case stateResolved:
		return true
	case stateUnresolvable:
		return false
	case stateVisiting:
		r.fail(name, ReasonReferenceCycle)
		return false
	}

	rule, ok := r.spec.Rule(name)
	if !ok {
		return false
	}

	r.state[name] = stateVisiting

	switch rule.Kind {
	case fingering.KindDirect:
		p, err := r.frame.DirectPoint(rule.StringNumber, rule.FretPercent)
		if err != nil {
			if errors.Is(err, ErrInvalidString) {
				return r.fail(name, ReasonInvalidString)
			}
			return r.fail(name, err.Error())
		}
		r.succeed(name, p)

	case fingering.KindRelational:
		if _, known := r.spec.Rule(rule.RefFinger); !known {
			return r.fail(name, ReasonUnknownReference)
		}
		if !r.resolve(rule.RefFinger) {
			// A cycle marks every member while unwinding; keep that reason.
			if r.state[name] == stateUnresolvable {
				return false
			}
			if r.state[rule.RefFinger] == stateUnresolvable && r.reason[rule.RefFinger] == ReasonReferenceCycle && r.onCycle(name) {
				return r.fail(name, ReasonReferenceCycle)
			}
			return r.fail(name, ReasonReferenceUnresolved)
		}
		r.succeed(name, r.frame.RelationalPoint(r.points[rule.RefFinger], rule.AvgRelDistNorm, rule.AvgRelAngleDeg))

	case "":
		return r.fail(name, ReasonNoRule)

	default:
		return r.fail(name, fmt.Sprintf("unknown rule kind %q", rule.Kind))
	}

	return true
}

// onCycle reports whether following references from name leads back to name.
func (r *resolver) onCycle(name string) bool {
	seen := map[string]bool{}
	cur := name
	for {
		rule, ok := r.spec.Rule(cur)
		if !ok || !rule.IsRelational() {
			return false
		}
		cur = rule.RefFinger
		if cur == name {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
	}
}

func (r *resolver) succeed(name string, p r2.Point) {
	r.state[name] = stateResolved
	r.points[name] = p
}

func (r *resolver) fail(name, reason string) bool {
	r.state[name] = stateUnresolvable
	if _, set := r.reason[name]; !set {
		r.reason[name] = reason
	}
	return false
}

// Package fingering describes chord shapes as per-finger placement rules.
package fingering

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Kind identifies how a rule places its finger.
type Kind string

const (
	// KindDirect places a finger on a string at a signed fret offset.
	KindDirect Kind = "direct"
	// KindRelational places a finger relative to another finger.
	KindRelational Kind = "relational"
)

// String numbers run from the high E string (1) to the low E string (6).
const (
	MinString = 1
	MaxString = 6
)

// ErrRuleKind describes a rule that carries neither a string number nor a
// reference finger. Such a rule parses with an empty Kind and its finger
// never resolves.
var ErrRuleKind = errors.New("rule has neither string_number nor ref_finger")

// ErrStringNumber is returned when string_number is not a whole number.
var ErrStringNumber = errors.New("string_number must be a whole number")

// Rule is a single finger placement rule.
//
// A direct rule sets StringNumber and FretPercent. FretPercent is a signed
// percentage of one fret width: negative values move toward the near marker,
// positive values toward the far marker.
//
// A relational rule sets RefFinger, AvgRelDistNorm (distance as a fraction of
// the reference line length) and AvgRelAngleDeg (angle relative to the
// reference line direction).
type Rule struct {
	Kind           Kind
	StringNumber   int
	FretPercent    float64
	RefFinger      string
	AvgRelDistNorm float64
	AvgRelAngleDeg float64
}

// Direct builds a direct rule.
func Direct(stringNumber int, fretPercent float64) Rule {
	return Rule{Kind: KindDirect, StringNumber: stringNumber, FretPercent: fretPercent}
}

// Relational builds a relational rule.
func Relational(ref string, distNorm, angleDeg float64) Rule {
	return Rule{Kind: KindRelational, RefFinger: ref, AvgRelDistNorm: distNorm, AvgRelAngleDeg: angleDeg}
}

// IsDirect reports whether the rule is a direct rule.
func (r Rule) IsDirect() bool { return r.Kind == KindDirect }

// IsRelational reports whether the rule is a relational rule.
func (r Rule) IsRelational() bool { return r.Kind == KindRelational }

// jsonRule mirrors the on-disk layout. Pointers distinguish a missing key
// from an explicit zero.
type jsonRule struct {
	StringNumber   *float64 `json:"string_number,omitempty"`
	FretPercent    *float64 `json:"fret_percent,omitempty"`
	RefFinger      *string  `json:"ref_finger,omitempty"`
	AvgRelDistNorm *float64 `json:"avg_rel_dist_norm,omitempty"`
	AvgRelAngleDeg *float64 `json:"avg_rel_angle_deg,omitempty"`
}

// UnmarshalJSON decodes a rule. The presence of string_number selects a
// direct rule; otherwise ref_finger selects a relational rule. Missing
// numeric fields default to zero. string_number may be written as 3 or 3.0.
// A rule with neither key decodes with an empty Kind.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw jsonRule
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.StringNumber != nil:
		n := *raw.StringNumber
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.Abs(n) > math.MaxInt32 {
			return fmt.Errorf("%w, got %v", ErrStringNumber, n)
		}
		*r = Direct(int(n), deref(raw.FretPercent))
	case raw.RefFinger != nil:
		*r = Relational(*raw.RefFinger, deref(raw.AvgRelDistNorm), deref(raw.AvgRelAngleDeg))
	default:
		*r = Rule{}
	}
	return nil
}

// MarshalJSON encodes a rule in the on-disk layout.
func (r Rule) MarshalJSON() ([]byte, error) {
	var raw jsonRule
	switch r.Kind {
	case KindDirect:
		n := float64(r.StringNumber)
		raw.StringNumber = &n
		raw.FretPercent = &r.FretPercent
	case KindRelational:
		raw.RefFinger = &r.RefFinger
		raw.AvgRelDistNorm = &r.AvgRelDistNorm
		raw.AvgRelAngleDeg = &r.AvgRelAngleDeg
	case "":
	default:
		return nil, fmt.Errorf("marshal rule: unknown kind %q", r.Kind)
	}
	return json.Marshal(raw)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

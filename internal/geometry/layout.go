package geometry

import (
	"errors"

	"github.com/golang/geo/r2"

	"github.com/ayusman/fretsense/internal/fingering"
)

// Radius constants shared with the renderer. The visual radius is a fraction
// of the reference line length; the multipliers scale it at draw and scoring
// time.
const (
	VisualRadiusFactor      = 0.12
	HitRadiusMultiplier     = 1.6
	ScoringRadiusMultiplier = 3.5
)

// ErrInvalidFrame is returned for non-positive frame dimensions.
var ErrInvalidFrame = errors.New("frame dimensions must be positive")

// Point is a resolution independent coordinate in [0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NormalizedTarget is a finger target in normalized coordinates.
type NormalizedTarget struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Group string  `json:"group"`
}

// Layout is the packaged result handed to callers.
type Layout struct {
	Targets                 map[string]NormalizedTarget `json:"targets"`
	Order                   []string                    `json:"order"`
	VisualRadiusNorm        float64                     `json:"visual_radius_norm"`
	HitRadiusMultiplier     float64                     `json:"hit_radius_multiplier"`
	ScoringRadiusMultiplier float64                     `json:"scoring_radius_multiplier"`
	Line                    [2]Point                    `json:"reference_line"`
	Unresolved              []Unresolved                `json:"unresolved,omitempty"`
	Degenerate              bool                        `json:"degenerate,omitempty"`
}

// Normalize converts a pixel point to frame-relative coordinates.
func Normalize(p r2.Point, width, height int) Point {
	return Point{X: p.X / float64(width), Y: p.Y / float64(height)}
}

// NewLayout normalizes a resolution against the frame size.
func NewLayout(res Resolution, line ReferenceLine, width, height int) (*Layout, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidFrame
	}

	l := &Layout{
		Targets:                 make(map[string]NormalizedTarget, len(res.Targets)),
		Order:                   make([]string, 0, len(res.Targets)),
		VisualRadiusNorm:        line.Length() * VisualRadiusFactor / float64(width),
		HitRadiusMultiplier:     HitRadiusMultiplier,
		ScoringRadiusMultiplier: ScoringRadiusMultiplier,
		Line:                    [2]Point{Normalize(line.Top, width, height), Normalize(line.Bottom, width, height)},
		Unresolved:              res.Unresolved,
		Degenerate:              res.Degenerate,
	}

	for _, t := range res.Targets {
		n := Normalize(t.Point, width, height)
		l.Targets[t.Finger] = NormalizedTarget{X: n.X, Y: n.Y, Group: t.Group}
		l.Order = append(l.Order, t.Finger)
	}

	return l, nil
}

// Service resolves a fixed fingering against detected markers. It holds no
// mutable state and is safe for concurrent use.
type Service struct {
	spec *fingering.Spec
}

// NewService creates a Service for one fingering.
func NewService(spec *fingering.Spec) *Service {
	return &Service{spec: spec}
}

// Spec returns the fingering this service resolves.
func (s *Service) Spec() *fingering.Spec { return s.spec }

// Resolve builds the reference line, resolves every finger and packages the
// result for a width x height frame. It returns ErrMissingMarker when either
// marker is nil.
func (s *Service) Resolve(near, far *Quad, width, height int) (*Layout, error) {
	return Locate(near, far, width, height, s.spec)
}

// Locate is Service.Resolve for a fingering supplied per call.
func Locate(near, far *Quad, width, height int, spec *fingering.Spec) (*Layout, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidFrame
	}
	frame, err := NewFrame(near, far)
	if err != nil {
		return nil, err
	}
	return NewLayout(Resolve(frame, spec), frame.Line(), width, height)
}

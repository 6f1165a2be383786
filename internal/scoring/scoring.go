// Package scoring grades a tracked hand against a locked chord layout.
package scoring

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/ayusman/fretsense/internal/detector"
	"github.com/ayusman/fretsense/internal/fingering"
	"github.com/ayusman/fretsense/internal/geometry"
)

const (
	// MaxPoints is awarded to a finger inside its hit radius.
	MaxPoints = 50.0

	// FalloffFactor bounds partial credit: fingers beyond this many hit
	// radii score nothing.
	FalloffFactor = 2.2
)

// FingerLandmarks maps finger names to the MediaPipe landmark that is
// compared against the target: fingertips for the primary names and the
// PIP joints for their secondary contacts.
var FingerLandmarks = map[string]int{
	"index":  detector.IndexTip,
	"im":     detector.IndexPIP,
	"middle": detector.MiddleTip,
	"mm":     detector.MiddlePIP,
	"ring":   detector.RingTip,
	"rm":     detector.RingPIP,
	"pinky":  detector.PinkyTip,
	"pm":     detector.PinkyPIP,
	"thumb":  detector.ThumbTip,
}

// Grade buckets the overall percentage.
type Grade string

const (
	GradePerfect Grade = "perfect"
	GradeClose   Grade = "close"
	GradeOff     Grade = "off"
)

// GradeFor returns the grade for an overall percentage.
func GradeFor(percent float64) Grade {
	switch {
	case percent >= 99:
		return GradePerfect
	case percent >= 50:
		return GradeClose
	default:
		return GradeOff
	}
}

// Options describe the frame the landmarks were taken from.
type Options struct {
	Width  int
	Height int

	// Mirror flips landmark x before comparing. Landmarks from an unmirrored
	// camera feed need this because targets live in the mirrored view.
	Mirror bool
}

// FingerScore is the result for one target.
type FingerScore struct {
	Finger   string  `json:"finger"`
	Group    string  `json:"group"`
	Tracked  bool    `json:"tracked"`
	Distance float64 `json:"distance_px,omitempty"`
	Points   float64 `json:"points"`
	Hit      bool    `json:"hit"`
}

// Result is the score of one hand against one layout.
type Result struct {
	Fingers []FingerScore      `json:"fingers"`
	Groups  map[string]float64 `json:"groups"`
	Percent float64            `json:"percent"`
	Grade   Grade              `json:"grade"`
}

// Score compares hand against every target of layout. A nil hand scores
// zero on every target. Only the four finger groups count toward the group
// and overall percentages.
func Score(layout *geometry.Layout, hand *detector.HandLandmarks, opts Options) (*Result, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, geometry.ErrInvalidFrame
	}

	w, h := float64(opts.Width), float64(opts.Height)
	hitRadius := layout.VisualRadiusNorm * w * layout.HitRadiusMultiplier

	res := &Result{
		Fingers: make([]FingerScore, 0, len(layout.Order)),
		Groups:  make(map[string]float64),
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)

	for _, name := range layout.Order {
		target, ok := layout.Targets[name]
		if !ok {
			continue
		}

		fs := FingerScore{Finger: name, Group: target.Group}

		if idx, known := FingerLandmarks[name]; known && hand != nil {
			fs.Tracked = true
			tip := hand.Pixel(idx, opts.Width, opts.Height, opts.Mirror)
			fs.Distance = tip.Sub(r2.Point{X: target.X * w, Y: target.Y * h}).Norm()
			fs.Points, fs.Hit = points(fs.Distance, hitRadius)
		}

		res.Fingers = append(res.Fingers, fs)
		sums[fs.Group] += fs.Points
		counts[fs.Group]++
	}

	var total, possible float64
	for _, group := range fingering.Groups {
		n, ok := counts[group]
		if !ok {
			continue
		}
		groupMax := float64(n) * MaxPoints
		total += sums[group]
		possible += groupMax
		res.Groups[group] = sums[group] / groupMax * 100
	}

	if possible > 0 {
		res.Percent = total / possible * 100
	}
	res.Grade = GradeFor(res.Percent)

	return res, nil
}

// points awards full marks inside the hit radius, then falls off linearly
// to zero at FalloffFactor hit radii.
func points(dist, hitRadius float64) (float64, bool) {
	if dist < hitRadius {
		return MaxPoints, true
	}
	if dist < hitRadius*FalloffFactor {
		ratio := 1 - (dist-hitRadius)/(hitRadius*(FalloffFactor-1))
		return math.Max(0, ratio*MaxPoints), false
	}
	return 0, false
}

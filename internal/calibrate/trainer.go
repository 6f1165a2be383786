// Package calibrate derives fingering rules from recorded finger positions.
package calibrate

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"github.com/ayusman/fretsense/internal/fingering"
	"github.com/ayusman/fretsense/internal/geometry"
)

// Sample is one recorded frame: both markers and where each finger sat, in
// pixels.
type Sample struct {
	Near      [4]geometry.Point         `json:"near"`
	Far       [4]geometry.Point         `json:"far"`
	Fingers   map[string]geometry.Point `json:"fingers"`
	Timestamp int64                     `json:"timestamp"`
}

// Anchor says how to express one finger in the trained fingering. An empty
// RefFinger produces a direct rule; otherwise a relational rule against
// RefFinger.
type Anchor struct {
	Finger    string `json:"finger"`
	RefFinger string `json:"ref_finger,omitempty"`
}

// Trainer averages recorded samples into a fingering.
type Trainer struct{}

// NewTrainer creates a new Trainer instance.
func NewTrainer() *Trainer {
	return &Trainer{}
}

// Train parses samples and fits one rule per anchor, in anchor order.
func (t *Trainer) Train(chord string, anchors []Anchor, samples []json.RawMessage) (*fingering.Spec, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples provided")
	}
	if len(anchors) == 0 {
		return nil, fmt.Errorf("no anchors provided")
	}

	frames := make([]*geometry.Frame, 0, len(samples))
	parsed := make([]Sample, 0, len(samples))
	for i, raw := range samples {
		var s Sample
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("failed to parse sample %d: %w", i, err)
		}

		near, far := toQuad(s.Near), toQuad(s.Far)
		frame, err := geometry.NewFrame(&near, &far)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		if frame.Line().Degenerate() {
			return nil, fmt.Errorf("sample %d has a zero-length reference line", i)
		}

		for _, a := range anchors {
			if _, ok := s.Fingers[a.Finger]; !ok {
				return nil, fmt.Errorf("sample %d has no position for %q", i, a.Finger)
			}
			if a.RefFinger != "" {
				if _, ok := s.Fingers[a.RefFinger]; !ok {
					return nil, fmt.Errorf("sample %d has no position for %q", i, a.RefFinger)
				}
			}
		}

		frames = append(frames, frame)
		parsed = append(parsed, s)
	}

	fingers := make([]fingering.Finger, 0, len(anchors))
	for _, a := range anchors {
		var rule fingering.Rule
		if a.RefFinger == "" {
			rule = fitDirect(a.Finger, frames, parsed)
		} else {
			rule = fitRelational(a.Finger, a.RefFinger, frames, parsed)
		}
		fingers = append(fingers, fingering.Finger{Name: a.Finger, Rule: rule})
	}

	return fingering.NewSpec(chord, fingers)
}

// fitDirect projects each observation onto the reference line. The position
// along the line gives the string; the perpendicular offset, measured in fret
// widths, gives the fret percent.
func fitDirect(finger string, frames []*geometry.Frame, samples []Sample) fingering.Rule {
	var sumString, sumPercent float64

	for i, frame := range frames {
		line := frame.Line()
		rel := pixel(samples[i].Fingers[finger]).Sub(line.Top)

		along := rel.Dot(line.Vector()) / (line.Length() * line.Length())
		sumString += float64(fingering.MaxString) - along*float64(fingering.MaxString-fingering.MinString)

		offset := rel.Dot(frame.Perpendicular())
		if width := frame.FretWidth(offset); width > 0 {
			sumPercent += offset / width * 100
		}
	}

	n := float64(len(frames))
	stringNumber := int(math.Round(sumString / n))
	if stringNumber < fingering.MinString {
		stringNumber = fingering.MinString
	}
	if stringNumber > fingering.MaxString {
		stringNumber = fingering.MaxString
	}

	return fingering.Direct(stringNumber, sumPercent/n)
}

// fitRelational averages the distance (in line lengths) and the angle
// (relative to the line direction) from the reference finger. Angles are
// averaged on the unit circle so that 179 and -179 degrees average to 180.
func fitRelational(finger, ref string, frames []*geometry.Frame, samples []Sample) fingering.Rule {
	var sumDist, sumSin, sumCos float64

	for i, frame := range frames {
		line := frame.Line()
		d := pixel(samples[i].Fingers[finger]).Sub(pixel(samples[i].Fingers[ref]))

		sumDist += d.Norm() / line.Length()

		angle := geometry.Heading(d) - line.Heading()
		sumSin += math.Sin(angle)
		sumCos += math.Cos(angle)
	}

	n := float64(len(frames))
	angleDeg := math.Atan2(sumSin, sumCos) * 180 / math.Pi

	return fingering.Relational(ref, sumDist/n, angleDeg)
}

func toQuad(corners [4]geometry.Point) geometry.Quad {
	var q geometry.Quad
	for i, c := range corners {
		q[i] = pixel(c)
	}
	return q
}

func pixel(p geometry.Point) r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

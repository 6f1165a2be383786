package geometry

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r2"

	"github.com/ayusman/fretsense/internal/fingering"
)

// ErrInvalidString is returned for string numbers outside 1-6.
var ErrInvalidString = errors.New("string number out of range")

// Frame is the per-request coordinate frame built from the reference line
// and both markers. It is immutable once built.
type Frame struct {
	line ReferenceLine
	near Quad
	far  Quad

	// perp is the unit perpendicular to the line, oriented from the near
	// marker toward the far marker.
	perp r2.Point

	leftOuter  [2]r2.Point
	rightOuter [2]r2.Point
}

// NewFrame builds the reference line from the markers and derives the frame.
func NewFrame(near, far *Quad) (*Frame, error) {
	line, err := BuildReferenceLine(near, far)
	if err != nil {
		return nil, err
	}
	return NewFrameWithLine(line, *near, *far), nil
}

// NewFrameWithLine derives a frame from an already known reference line.
func NewFrameWithLine(line ReferenceLine, near, far Quad) *Frame {
	f := &Frame{line: line, near: near, far: far}

	nearC, farC := near.Centroid(), far.Centroid()

	f.perp = Perpendicular(UnitVector(line.Vector()))
	if f.perp.Dot(farC.Sub(nearC)) < 0 {
		f.perp = f.perp.Mul(-1)
	}

	left, right := near, far
	if nearC.X >= farC.X {
		left, right = far, near
	}
	f.leftOuter = OuterCorners(left, Left)
	f.rightOuter = OuterCorners(right, Right)

	return f
}

// Line returns the reference line.
func (f *Frame) Line() ReferenceLine { return f.line }

// Perpendicular returns the unit perpendicular oriented toward the far marker.
// It is the zero vector when the line is degenerate.
func (f *Frame) Perpendicular() r2.Point { return f.perp }

// FretWidth returns the pixel width of one fret on the side selected by the
// sign of fretPercent: the left marker for negative values, the right marker
// otherwise. It is the mean distance from the line ends to that marker's
// outer edge.
func (f *Frame) FretWidth(fretPercent float64) float64 {
	outer := f.rightOuter
	if fretPercent < 0 {
		outer = f.leftOuter
	}
	return (Distance(f.line.Top, outer[0]) + Distance(f.line.Bottom, outer[1])) / 2
}

// StringPoint returns where a string crosses the reference line. String 6
// lies at Top and string 1 at Bottom.
func (f *Frame) StringPoint(stringNumber int) (r2.Point, error) {
	if stringNumber < fingering.MinString || stringNumber > fingering.MaxString {
		return r2.Point{}, fmt.Errorf("%w: %d", ErrInvalidString, stringNumber)
	}
	t := float64(fingering.MaxString-stringNumber) / float64(fingering.MaxString-fingering.MinString)
	return f.line.At(t), nil
}

// DirectPoint places a finger on a string, offset perpendicular to the line
// by fretPercent percent of one fret width.
func (f *Frame) DirectPoint(stringNumber int, fretPercent float64) (r2.Point, error) {
	base, err := f.StringPoint(stringNumber)
	if err != nil {
		return r2.Point{}, err
	}
	move := fretPercent / 100 * f.FretWidth(fretPercent)
	return base.Add(f.perp.Mul(move)), nil
}

// RelationalPoint offsets ref by distNorm line lengths at angleDeg degrees
// measured from the line direction.
func (f *Frame) RelationalPoint(ref r2.Point, distNorm, angleDeg float64) r2.Point {
	angle := f.line.Heading() + radians(angleDeg)
	return ref.Add(Polar(angle, distNorm*f.line.Length()))
}

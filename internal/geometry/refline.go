package geometry

import (
	"errors"

	"github.com/golang/geo/r2"
)

// ErrMissingMarker is returned when one or both fret markers are absent.
// Callers treat it as "not ready" and retry on a later frame.
var ErrMissingMarker = errors.New("fret marker missing")

// ReferenceLine is the fret boundary shared by the two markers, oriented
// from Top (smaller y) to Bottom.
type ReferenceLine struct {
	Top    r2.Point
	Bottom r2.Point
}

// BuildReferenceLine derives the fret boundary from the near and far markers.
//
// The eight corners are pooled and sorted by x. The two leftmost and two
// rightmost corners belong to the edges facing away from the boundary and
// are dropped. Of the remaining four, the upper two average to Top and the
// lower two to Bottom.
func BuildReferenceLine(near, far *Quad) (ReferenceLine, error) {
	if near == nil || far == nil {
		return ReferenceLine{}, ErrMissingMarker
	}

	pooled := make([]r2.Point, 0, 8)
	pooled = append(pooled, near[:]...)
	pooled = append(pooled, far[:]...)

	inner := sortedByY(sortedByX(pooled)[2:6])

	return ReferenceLine{
		Top:    Mean(inner[0], inner[1]),
		Bottom: Mean(inner[2], inner[3]),
	}, nil
}

// Vector returns Bottom - Top.
func (l ReferenceLine) Vector() r2.Point {
	return l.Bottom.Sub(l.Top)
}

// Length returns the distance from Top to Bottom.
func (l ReferenceLine) Length() float64 {
	return l.Vector().Norm()
}

// At returns the point at parameter t, where 0 is Top and 1 is Bottom.
func (l ReferenceLine) At(t float64) r2.Point {
	return l.Top.Add(l.Vector().Mul(t))
}

// Heading returns the direction of the line in radians.
func (l ReferenceLine) Heading() float64 {
	return Heading(l.Vector())
}

// Degenerate reports whether the line has zero length.
func (l ReferenceLine) Degenerate() bool {
	return l.Length() == 0
}

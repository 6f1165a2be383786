// Package geometry projects chord finger targets onto a webcam frame from two
// detected fret markers.
//
// All coordinates are pixels with y growing downward unless a type says
// otherwise.
package geometry

import (
	"math"

	"github.com/golang/geo/r2"
)

// UnitVector returns v scaled to unit length.
// The zero vector is returned unchanged.
func UnitVector(v r2.Point) r2.Point {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Mul(1 / n)
}

// Perpendicular returns v rotated by 90 degrees: (-v.Y, v.X).
// Callers choose the orientation.
func Perpendicular(v r2.Point) r2.Point {
	return v.Ortho()
}

// Heading returns the direction of v in radians.
func Heading(v r2.Point) float64 {
	return math.Atan2(v.Y, v.X)
}

// Polar returns the vector of the given length pointing at angle radians.
func Polar(angle, length float64) r2.Point {
	return r2.Point{X: math.Cos(angle), Y: math.Sin(angle)}.Mul(length)
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b r2.Point) float64 {
	return a.Sub(b).Norm()
}

// Mean returns the average of the points. It returns the zero point for an
// empty input.
func Mean(points ...r2.Point) r2.Point {
	if len(points) == 0 {
		return r2.Point{}
	}
	var sum r2.Point
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(points)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

package geometry

import (
	"sort"

	"github.com/golang/geo/r2"
)

// Quad is the oriented bounding box of one detected fret marker.
// Corner order is whatever the detector produced and carries no meaning.
type Quad [4]r2.Point

// NewQuad builds a Quad from eight interleaved coordinates x0,y0,...,x3,y3.
func NewQuad(xy [8]float64) Quad {
	var q Quad
	for i := range q {
		q[i] = r2.Point{X: xy[2*i], Y: xy[2*i+1]}
	}
	return q
}

// Centroid returns the mean of the four corners.
func (q Quad) Centroid() r2.Point {
	return Mean(q[:]...)
}

// Side selects the left or right edge of a marker.
type Side int

const (
	// Left is the edge with the smaller x coordinates.
	Left Side = iota
	// Right is the edge with the larger x coordinates.
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// OuterCorners returns the two corners forming the left or right edge of q,
// ordered top to bottom.
//
// The corners are the two smallest-x (Left) or two largest-x (Right)
// corners. This assumes markers are roughly upright boxes; under strong
// rotation the selected pair may be a diagonal rather than an edge.
func OuterCorners(q Quad, side Side) [2]r2.Point {
	pts := sortedByX(q[:])

	var pair [2]r2.Point
	if side == Left {
		pair = [2]r2.Point{pts[0], pts[1]}
	} else {
		pair = [2]r2.Point{pts[2], pts[3]}
	}

	if pair[1].Y < pair[0].Y {
		pair[0], pair[1] = pair[1], pair[0]
	}
	return pair
}

// sortedByX returns a copy of points ordered by x. Ties keep input order.
func sortedByX(points []r2.Point) []r2.Point {
	out := make([]r2.Point, len(points))
	copy(out, points)
	sort.SliceStable(out, func(i, j int) bool { return out[i].X < out[j].X })
	return out
}

// sortedByY returns a copy of points ordered by y. Ties keep input order.
func sortedByY(points []r2.Point) []r2.Point {
	out := make([]r2.Point, len(points))
	copy(out, points)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Y < out[j].Y })
	return out
}

package detector

import (
	"github.com/ayusman/fretsense/internal/geometry"
)

// Markers holds the two fret markers picked from one frame. Either may be
// nil when the model did not see it.
type Markers struct {
	Near *Detection
	Far  *Detection

	nearClass int
	farClass  int
}

// SelectMarkers picks the near and far markers out of raw detections. Boxes
// below the confidence threshold or of other classes are ignored; when a
// class was detected more than once the most confident box wins.
func SelectMarkers(dets []Detection, cfg Config) Markers {
	m := Markers{nearClass: cfg.NearClass, farClass: cfg.FarClass}

	for i := range dets {
		d := dets[i]
		if d.Confidence < cfg.MinConfidence {
			continue
		}
		switch d.ClassID {
		case cfg.NearClass:
			if m.Near == nil || d.Confidence > m.Near.Confidence {
				m.Near = &d
			}
		case cfg.FarClass:
			if m.Far == nil || d.Confidence > m.Far.Confidence {
				m.Far = &d
			}
		}
	}

	return m
}

// Ready reports whether both markers are present.
func (m Markers) Ready() bool {
	return m.Near != nil && m.Far != nil
}

// Quads returns the marker corners for the geometry package, nil for a
// missing marker.
func (m Markers) Quads() (near, far *geometry.Quad) {
	if m.Near != nil {
		q := m.Near.Corners
		near = &q
	}
	if m.Far != nil {
		q := m.Far.Corners
		far = &q
	}
	return near, far
}

// Boxes returns the present markers keyed by class id with corners
// normalized to the frame size.
func (m Markers) Boxes(width, height int) map[int][4]geometry.Point {
	boxes := make(map[int][4]geometry.Point, 2)
	if width <= 0 || height <= 0 {
		return boxes
	}

	add := func(class int, d *Detection) {
		if d == nil {
			return
		}
		var pts [4]geometry.Point
		for i, c := range d.Corners {
			pts[i] = geometry.Normalize(c, width, height)
		}
		boxes[class] = pts
	}
	add(m.nearClass, m.Near)
	add(m.farClass, m.Far)

	return boxes
}

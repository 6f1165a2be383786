// Package detector finds fret markers and hand landmarks in camera frames.
package detector

import "github.com/golang/geo/r2"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Pixel converts a landmark to frame pixels. MediaPipe coordinates are
// normalized to the image it saw; mirror flips x for frames the user sees
// mirrored.
func (h *HandLandmarks) Pixel(index, width, height int, mirror bool) r2.Point {
	p := h.Points[index]
	x := p.X
	if mirror {
		x = 1 - x
	}
	return r2.Point{X: x * float64(width), Y: p.Y * float64(height)}
}

// Mirrored returns a copy with x flipped about the frame centre and the
// handedness swapped.
func (h *HandLandmarks) Mirrored() *HandLandmarks {
	if h == nil {
		return nil
	}

	out := *h
	for i := range out.Points {
		out.Points[i].X = 1 - out.Points[i].X
	}
	switch h.Handedness {
	case "Left":
		out.Handedness = "Right"
	case "Right":
		out.Handedness = "Left"
	}
	return &out
}

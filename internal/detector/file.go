package detector

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang/geo/r2"

	"github.com/ayusman/fretsense/internal/geometry"
)

// DetectionFile is the on-disk form of a recorded detector run.
type DetectionFile struct {
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Detections []fileDetection `json:"detections"`
}

type fileDetection struct {
	ClassID    int           `json:"class_id"`
	Confidence float64       `json:"confidence"`
	Corners    [4][2]float64 `json:"corners"`
}

// ParseDetections decodes a recorded detector run. Corners are in pixels.
func ParseDetections(data []byte) (*DetectionFile, []Detection, error) {
	var f DetectionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parse detections: %w", err)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return nil, nil, fmt.Errorf("parse detections: frame size %dx%d", f.Width, f.Height)
	}

	dets := make([]Detection, len(f.Detections))
	for i, d := range f.Detections {
		var q geometry.Quad
		for j, c := range d.Corners {
			q[j] = r2.Point{X: c[0], Y: c[1]}
		}
		dets[i] = Detection{ClassID: d.ClassID, Confidence: d.Confidence, Corners: q}
	}
	return &f, dets, nil
}

// LoadDetections reads a recorded detector run from path.
func LoadDetections(path string) (*DetectionFile, []Detection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read detections: %w", err)
	}
	return ParseDetections(data)
}

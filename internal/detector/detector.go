package detector

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/fretsense/internal/geometry"
)

// FretDetector defines the interface for fret marker detection implementations.
type FretDetector interface {
	// DetectFrets analyzes a frame and returns every oriented box that passed
	// the confidence threshold. Returns an empty slice if nothing is found.
	DetectFrets(frame *gocv.Mat) ([]Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// HandDetector defines the interface for hand landmark detection.
type HandDetector interface {
	// Detect analyzes a video frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Detection is one oriented fret box in pixel coordinates.
type Detection struct {
	ClassID    int
	Confidence float64
	Corners    geometry.Quad
}

// Config holds configuration options for fret detection.
type Config struct {
	// ModelPath is the ONNX export of the oriented-box fret model.
	ModelPath string

	// SharedLibraryPath points at the onnxruntime shared library. Empty uses
	// the platform default.
	SharedLibraryPath string

	// InputSize is the square model input edge in pixels (default: 640).
	InputSize int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// IoUThreshold controls duplicate suppression between boxes of one class.
	IoUThreshold float64

	// NearClass and FarClass are the model classes of the two markers.
	NearClass int
	FarClass  int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		InputSize:     640,
		MinConfidence: 0.02,
		IoUThreshold:  0.7,
		NearClass:     1,
		FarClass:      2,
	}
}

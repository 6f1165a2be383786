package detector

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/fretsense/internal/geometry"
)

// MockDetector is a test implementation of the FretDetector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	dets  []Detection
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetDetections sets the boxes that will be returned by DetectFrets.
func (m *MockDetector) SetDetections(dets []Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dets = dets
}

// SetError sets the error that will be returned by DetectFrets.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times DetectFrets ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// DetectFrets returns the pre-configured boxes or error.
func (m *MockDetector) DetectFrets(frame *gocv.Mat) ([]Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.dets, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// MockHandDetector is a test implementation of the HandDetector interface.
type MockHandDetector struct {
	mu    sync.Mutex
	hands []HandLandmarks
	err   error
}

// NewMockHandDetector creates a new MockHandDetector instance.
func NewMockHandDetector() *MockHandDetector {
	return &MockHandDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockHandDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockHandDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured hands or error.
func (m *MockHandDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Close is a no-op for the mock detector.
func (m *MockHandDetector) Close() error {
	return nil
}

// SquareMarkers returns a near and far detection as axis-aligned squares of
// the given size, side by side with their top edges at y.
func SquareMarkers(nearX, farX, y, size float64, cfg Config) []Detection {
	box := func(x float64) geometry.Quad {
		return geometry.NewQuad([8]float64{x, y, x + size, y, x + size, y + size, x, y + size})
	}
	return []Detection{
		{ClassID: cfg.NearClass, Confidence: 0.9, Corners: box(nearX)},
		{ClassID: cfg.FarClass, Confidence: 0.85, Corners: box(farX)},
	}
}

// HandWithTips returns a right hand whose landmarks all sit at the wrist
// except the given indices, which are placed at the supplied normalized
// coordinates.
func HandWithTips(tips map[int]Point3D) HandLandmarks {
	hand := HandLandmarks{Handedness: "Right", Score: 0.95}
	for i := range hand.Points {
		hand.Points[i] = Point3D{X: 0.5, Y: 0.9}
	}
	for idx, p := range tips {
		if idx >= 0 && idx < NumLandmarks {
			hand.Points[idx] = p
		}
	}
	return hand
}

// Package capture reads still frames from a camera or image files using
// GoCV (OpenCV), for tools that lock a fretboard outside the browser.
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultWidth  = 640
	DefaultHeight = 480
	DefaultFPS    = 15
)

// ErrNotOpen is returned when reading from a source that is not open.
var ErrNotOpen = errors.New("source is not open")

// ErrExhausted is returned when a finite source has no frames left.
var ErrExhausted = errors.New("no more frames")

// Source yields BGR frames.
type Source interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller must Close it.
	ReadFrame() (*gocv.Mat, error)
}

// Camera captures frames from a video device.
type Camera struct {
	deviceID int
	fps      int
	capture  *gocv.VideoCapture
	mu       sync.Mutex
}

// NewCamera creates a Camera for the given device ID. fps <= 0 uses
// DefaultFPS.
func NewCamera(deviceID, fps int) *Camera {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Camera{deviceID: deviceID, fps: fps}
}

// Open opens the device at DefaultWidth x DefaultHeight.
func (c *Camera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.deviceID, err)
	}
	capture.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
	capture.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
	capture.Set(gocv.VideoCaptureFPS, float64(c.fps))

	c.capture = capture
	return nil
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	return err
}

// ReadFrame grabs the next frame from the device.
func (c *Camera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, ErrNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("read frame from camera %d", c.deviceID)
	}
	return &mat, nil
}

// Files reads frames from image files in order.
type Files struct {
	paths []string
	next  int
	open  bool
	mu    sync.Mutex
}

// NewFiles creates a source over the given image paths.
func NewFiles(paths ...string) *Files {
	return &Files{paths: paths}
}

func (f *Files) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	f.next = 0
	return nil
}

func (f *Files) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

// ReadFrame decodes the next file. Unreadable images are an error rather
// than skipped.
func (f *Files) ReadFrame() (*gocv.Mat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return nil, ErrNotOpen
	}
	if f.next >= len(f.paths) {
		return nil, ErrExhausted
	}

	path := f.paths[f.next]
	f.next++

	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("read image %s", path)
	}
	return &mat, nil
}

// MockSource plays back in-memory frames for testing.
type MockSource struct {
	frames []*gocv.Mat
	next   int
	loop   bool
	open   bool
	mu     sync.Mutex
}

func NewMockSource(frames []*gocv.Mat, loop bool) *MockSource {
	return &MockSource{frames: frames, loop: loop}
}

func (m *MockSource) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	m.next = 0
	return nil
}

func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}

// ReadFrame returns a clone of the next frame.
func (m *MockSource) ReadFrame() (*gocv.Mat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return nil, ErrNotOpen
	}
	if m.next >= len(m.frames) {
		if !m.loop || len(m.frames) == 0 {
			return nil, ErrExhausted
		}
		m.next = 0
	}

	frame := m.frames[m.next].Clone()
	m.next++
	return &frame, nil
}

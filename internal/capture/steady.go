package capture

import (
	"context"
	"errors"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Frame differencing constants
const (
	// BlurSize is the Gaussian kernel edge used before differencing.
	BlurSize = 21
	// DiffThreshold is the per-pixel intensity change counted as motion.
	DiffThreshold = 25
	// DefaultMotionPercent is the share of changed pixels above which a
	// frame counts as moving.
	DefaultMotionPercent = 1.0
)

// SteadyDetector tells whether consecutive frames are still enough to lock
// the fretboard from.
type SteadyDetector struct {
	threshold   float64
	prevGray    gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// NewSteadyDetector creates a detector that treats more than threshold
// percent changed pixels as motion. threshold <= 0 uses
// DefaultMotionPercent.
func NewSteadyDetector(threshold float64) *SteadyDetector {
	if threshold <= 0 {
		threshold = DefaultMotionPercent
	}
	return &SteadyDetector{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// Check compares frame with the previous one and returns whether it is
// steady and the percentage of pixels that changed. The first frame is never
// steady since there is nothing to compare against.
func (s *SteadyDetector) Check(frame *gocv.Mat) (bool, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: BlurSize, Y: BlurSize}, 0, 0, gocv.BorderDefault)

	if !s.initialized || blurred.Rows() != s.prevGray.Rows() || blurred.Cols() != s.prevGray.Cols() {
		blurred.CopyTo(&s.prevGray)
		s.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, s.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0
	blurred.CopyTo(&s.prevGray)

	return changed <= s.threshold, changed
}

// Reset forgets the previous frame.
func (s *SteadyDetector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prevGray.Close()
	s.prevGray = gocv.NewMat()
	s.initialized = false
}

// Close releases the stored frame.
func (s *SteadyDetector) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prevGray.Close()
	s.initialized = false
}

// WaitSteady reads frames from src until need consecutive frames are steady
// and returns the last one. The caller must Close it. If src runs out first,
// the last frame read is returned along with ErrExhausted.
func WaitSteady(ctx context.Context, src Source, det *SteadyDetector, need int) (*gocv.Mat, error) {
	if need < 1 {
		need = 1
	}

	var last *gocv.Mat
	steady := 0
	for steady < need {
		if err := ctx.Err(); err != nil {
			closeMat(last)
			return nil, err
		}

		frame, err := src.ReadFrame()
		if errors.Is(err, ErrExhausted) && last != nil {
			return last, ErrExhausted
		}
		if err != nil {
			closeMat(last)
			return nil, err
		}

		if ok, _ := det.Check(frame); ok {
			steady++
		} else {
			steady = 0
		}
		closeMat(last)
		last = frame
	}
	return last, nil
}

func closeMat(m *gocv.Mat) {
	if m != nil {
		m.Close()
	}
}

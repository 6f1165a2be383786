package detector

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
	"sync"

	"github.com/golang/geo/r2"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/ayusman/fretsense/internal/geometry"
)

// ErrNoModel is returned when the detector is created without a model path.
var ErrNoModel = errors.New("fret model path not configured")

var (
	envMu    sync.Mutex
	envUsers int
)

// OnnxDetector implements FretDetector by running an oriented-box YOLO export
// in-process through onnxruntime.
type OnnxDetector struct {
	config  Config
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	classes int
	anchors int
}

// NewOnnxDetector loads the model and allocates its tensors. The onnxruntime
// environment is shared by all detectors in the process.
func NewOnnxDetector(config Config) (*OnnxDetector, error) {
	if config.ModelPath == "" {
		return nil, ErrNoModel
	}
	if config.InputSize <= 0 {
		config.InputSize = DefaultConfig().InputSize
	}

	if err := acquireEnvironment(config.SharedLibraryPath); err != nil {
		return nil, err
	}

	d, err := newOnnxDetector(config)
	if err != nil {
		releaseEnvironment()
		return nil, err
	}
	return d, nil
}

func newOnnxDetector(config Config) (*OnnxDetector, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 input and 1 output, got %d and %d", len(inputs), len(outputs))
	}

	shape, classes, anchors, err := outputShape(outputs[0].Dimensions)
	if err != nil {
		return nil, err
	}

	size := int64(config.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(shape...))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(config.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &OnnxDetector{
		config:  config,
		session: session,
		input:   input,
		output:  output,
		classes: classes,
		anchors: anchors,
	}, nil
}

// outputShape checks a model output shape and returns it ready for tensor
// allocation. Oriented-box exports emit (batch, 4 + classes + 1, anchors):
// box, class scores, then the rotation in radians. A dynamic batch (-1) is
// pinned to 1 since frames are run one at a time.
func outputShape(dims []int64) (shape []int64, classes, anchors int, err error) {
	if len(dims) != 3 {
		return nil, 0, 0, fmt.Errorf("unexpected output shape %v", dims)
	}
	shape = append([]int64(nil), dims...)
	if shape[0] <= 0 {
		shape[0] = 1
	}
	if shape[0] != 1 || shape[1] < 6 || shape[2] <= 0 {
		return nil, 0, 0, fmt.Errorf("unexpected output shape %v", dims)
	}
	return shape, int(shape[1]) - 5, int(shape[2]), nil
}

// DetectFrets runs the model on a BGR frame and returns boxes in frame pixels.
// The frame is resized to the square model input without letterboxing, so
// boxes scale back per axis.
func (d *OnnxDetector) DetectFrets(frame *gocv.Mat) ([]Detection, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, fmt.Errorf("detector closed")
	}

	size := d.config.InputSize
	blob := gocv.BlobFromImage(*frame, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	pixels, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	copy(d.input.GetData(), pixels)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run model: %w", err)
	}

	scaleX := float64(frame.Cols()) / float64(size)
	scaleY := float64(frame.Rows()) / float64(size)
	dets := decodeOBB(d.output.GetData(), d.classes, d.anchors, d.config.MinConfidence, scaleX, scaleY)

	return suppress(dets, d.config.IoUThreshold), nil
}

// Close releases the session and tensors.
func (d *OnnxDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil
	}

	var errs []error
	if err := d.session.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if err := d.input.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if err := d.output.Destroy(); err != nil {
		errs = append(errs, err)
	}
	d.session, d.input, d.output = nil, nil, nil

	if err := releaseEnvironment(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func acquireEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envUsers == 0 && !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	envUsers++
	return nil
}

func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	envUsers--
	if envUsers > 0 {
		return nil
	}
	envUsers = 0
	return ort.DestroyEnvironment()
}

// decodeOBB turns the channel-major model output into detections. Each
// anchor contributes at most one box, labelled with its best class.
func decodeOBB(data []float32, classes, anchors int, minConf, scaleX, scaleY float64) []Detection {
	at := func(row, col int) float64 { return float64(data[row*anchors+col]) }

	var dets []Detection
	for i := 0; i < anchors; i++ {
		best, bestScore := -1, 0.0
		for c := 0; c < classes; c++ {
			if s := at(4+c, i); s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || bestScore < minConf {
			continue
		}

		corners := rotatedCorners(at(0, i), at(1, i), at(2, i), at(3, i), at(4+classes, i))
		for k := range corners {
			corners[k] = r2.Point{X: corners[k].X * scaleX, Y: corners[k].Y * scaleY}
		}

		dets = append(dets, Detection{ClassID: best, Confidence: bestScore, Corners: corners})
	}
	return dets
}

// rotatedCorners returns the corners of a w×h box centred on (cx, cy) and
// rotated by angle radians, clockwise starting from the box's own top-left.
func rotatedCorners(cx, cy, w, h, angle float64) geometry.Quad {
	cos, sin := math.Cos(angle), math.Sin(angle)
	hw, hh := w/2, h/2

	offsets := [4]r2.Point{{X: -hw, Y: -hh}, {X: hw, Y: -hh}, {X: hw, Y: hh}, {X: -hw, Y: hh}}

	var q geometry.Quad
	for i, o := range offsets {
		q[i] = r2.Point{
			X: cx + o.X*cos - o.Y*sin,
			Y: cy + o.X*sin + o.Y*cos,
		}
	}
	return q
}

// suppress performs greedy per-class non-maximum suppression on the boxes'
// axis-aligned bounds.
func suppress(dets []Detection, threshold float64) []Detection {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	kept := make([]Detection, 0, len(dets))
	for _, d := range dets {
		overlaps := false
		for _, k := range kept {
			if k.ClassID == d.ClassID && iou(bounds(k.Corners), bounds(d.Corners)) > threshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}
	return kept
}

func bounds(q geometry.Quad) r2.Rect {
	return r2.RectFromPoints(q[:]...)
}

func iou(a, b r2.Rect) float64 {
	inter := a.Intersection(b)
	if inter.IsEmpty() {
		return 0
	}
	ia := inter.Size().X * inter.Size().Y
	union := a.Size().X*a.Size().Y + b.Size().X*b.Size().Y - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}

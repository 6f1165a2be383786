package detector

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r2"

	"github.com/ayusman/fretsense/internal/geometry"
)

const epsilon = 1e-6

func nearPoint(a, b r2.Point) bool {
	return math.Abs(a.X-b.X) <= epsilon && math.Abs(a.Y-b.Y) <= epsilon
}

func TestSelectMarkers(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("both markers present", func(t *testing.T) {
		m := SelectMarkers(SquareMarkers(100, 200, 100, 40, cfg), cfg)

		if !m.Ready() {
			t.Fatal("expected markers to be ready")
		}
		if m.Near.Corners[0] != (r2.Point{X: 100, Y: 100}) {
			t.Errorf("unexpected near corners: %v", m.Near.Corners)
		}
		if m.Far.Corners[0] != (r2.Point{X: 200, Y: 100}) {
			t.Errorf("unexpected far corners: %v", m.Far.Corners)
		}
	})

	t.Run("most confident box wins", func(t *testing.T) {
		dets := SquareMarkers(100, 200, 100, 40, cfg)
		better := dets[0]
		better.Confidence = 0.99
		better.Corners = geometry.NewQuad([8]float64{90, 90, 130, 90, 130, 130, 90, 130})
		worse := dets[0]
		worse.Confidence = 0.3
		dets = append(dets, better, worse)

		m := SelectMarkers(dets, cfg)
		if m.Near.Confidence != 0.99 {
			t.Errorf("expected confidence 0.99, got %f", m.Near.Confidence)
		}
	})

	t.Run("ignores low confidence and foreign classes", func(t *testing.T) {
		dets := SquareMarkers(100, 200, 100, 40, cfg)
		dets[1].Confidence = 0.01
		dets = append(dets, Detection{ClassID: 0, Confidence: 0.99})

		m := SelectMarkers(dets, cfg)
		if m.Ready() {
			t.Error("expected markers not to be ready")
		}
		if m.Near == nil {
			t.Error("expected near marker to survive")
		}
		if m.Far != nil {
			t.Errorf("expected far marker to be dropped, got %+v", m.Far)
		}
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		dets := SquareMarkers(100, 200, 100, 40, cfg)
		dets[0].Confidence = cfg.MinConfidence
		dets[1].Confidence = cfg.MinConfidence

		if !SelectMarkers(dets, cfg).Ready() {
			t.Error("expected boxes at the threshold to count")
		}
	})

	t.Run("empty input", func(t *testing.T) {
		m := SelectMarkers(nil, cfg)
		near, far := m.Quads()
		if near != nil || far != nil {
			t.Error("expected nil quads")
		}
	})

	t.Run("does not alias the input slice", func(t *testing.T) {
		dets := SquareMarkers(100, 200, 100, 40, cfg)
		m := SelectMarkers(dets, cfg)
		dets[0].Confidence = 0

		if m.Near.Confidence == 0 {
			t.Error("expected selection to hold its own copy")
		}
	})
}

func TestMarkers_Boxes(t *testing.T) {
	cfg := DefaultConfig()
	m := SelectMarkers(SquareMarkers(100, 200, 100, 40, cfg), cfg)

	boxes := m.Boxes(400, 200)
	if len(boxes) != 2 {
		t.Fatalf("expected 2 boxes, got %d", len(boxes))
	}

	near := boxes[cfg.NearClass]
	if near[0] != (geometry.Point{X: 0.25, Y: 0.5}) {
		t.Errorf("expected (0.25, 0.5), got %v", near[0])
	}
	far := boxes[cfg.FarClass]
	if far[2] != (geometry.Point{X: 0.6, Y: 0.7}) {
		t.Errorf("expected (0.6, 0.7), got %v", far[2])
	}

	if got := m.Boxes(0, 0); len(got) != 0 {
		t.Errorf("expected no boxes for empty frame, got %v", got)
	}
}

func TestDecodeOBB(t *testing.T) {
	const classes, anchors = 3, 2
	data := make([]float32, (5+classes)*anchors)
	set := func(row, col int, v float32) { data[row*anchors+col] = v }

	set(0, 0, 320)
	set(1, 0, 320)
	set(2, 0, 100)
	set(3, 0, 50)
	set(4, 0, 0.1)
	set(5, 0, 0.8)
	set(6, 0, 0.05)

	set(0, 1, 100)
	set(1, 1, 100)
	set(2, 1, 10)
	set(3, 1, 10)
	set(4, 1, 0.01)
	set(5, 1, 0.01)
	set(6, 1, 0.01)

	dets := decodeOBB(data, classes, anchors, 0.02, 2, 1.5)
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}

	d := dets[0]
	if d.ClassID != 1 {
		t.Errorf("expected class 1, got %d", d.ClassID)
	}
	if math.Abs(d.Confidence-0.8) > epsilon {
		t.Errorf("expected confidence 0.8, got %f", d.Confidence)
	}
	if !nearPoint(d.Corners[0], r2.Point{X: 540, Y: 442.5}) {
		t.Errorf("expected first corner (540, 442.5), got %v", d.Corners[0])
	}
	if !nearPoint(d.Corners[2], r2.Point{X: 740, Y: 517.5}) {
		t.Errorf("expected third corner (740, 517.5), got %v", d.Corners[2])
	}
}

func TestRotatedCorners(t *testing.T) {
	q := rotatedCorners(0, 0, 4, 2, math.Pi/2)

	want := geometry.Quad{{X: 1, Y: -2}, {X: 1, Y: 2}, {X: -1, Y: 2}, {X: -1, Y: -2}}
	for i := range want {
		if !nearPoint(q[i], want[i]) {
			t.Errorf("corner %d: expected %v, got %v", i, want[i], q[i])
		}
	}

	c := q.Centroid()
	if !nearPoint(c, r2.Point{}) {
		t.Errorf("expected centroid at origin, got %v", c)
	}
}

func TestSuppress(t *testing.T) {
	box := func(x float64) geometry.Quad {
		return geometry.NewQuad([8]float64{x, 0, x + 10, 0, x + 10, 10, x, 10})
	}

	dets := []Detection{
		{ClassID: 1, Confidence: 0.5, Corners: box(1)},
		{ClassID: 1, Confidence: 0.9, Corners: box(0)},
		{ClassID: 2, Confidence: 0.4, Corners: box(0)},
		{ClassID: 1, Confidence: 0.3, Corners: box(50)},
	}

	kept := suppress(dets, 0.7)
	if len(kept) != 3 {
		t.Fatalf("expected 3 boxes, got %d: %+v", len(kept), kept)
	}
	if kept[0].Confidence != 0.9 {
		t.Errorf("expected most confident box first, got %f", kept[0].Confidence)
	}
	for _, k := range kept {
		if k.Confidence == 0.5 {
			t.Error("expected overlapping lower-confidence box to be suppressed")
		}
	}
}

func TestOutputShape(t *testing.T) {
	tests := []struct {
		name        string
		dims        []int64
		wantShape   []int64
		wantClasses int
		wantAnchors int
		wantErr     bool
	}{
		{name: "static batch", dims: []int64{1, 8, 8400}, wantShape: []int64{1, 8, 8400}, wantClasses: 3, wantAnchors: 8400},
		{name: "dynamic batch", dims: []int64{-1, 8, 8400}, wantShape: []int64{1, 8, 8400}, wantClasses: 3, wantAnchors: 8400},
		{name: "dynamic anchors", dims: []int64{1, 8, -1}, wantErr: true},
		{name: "too few rows", dims: []int64{1, 5, 8400}, wantErr: true},
		{name: "batch of two", dims: []int64{2, 8, 8400}, wantErr: true},
		{name: "wrong rank", dims: []int64{8, 8400}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape, classes, anchors, err := outputShape(tt.dims)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %v", tt.dims)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(shape) != 3 || shape[0] != tt.wantShape[0] || shape[1] != tt.wantShape[1] || shape[2] != tt.wantShape[2] {
				t.Errorf("expected shape %v, got %v", tt.wantShape, shape)
			}
			if classes != tt.wantClasses || anchors != tt.wantAnchors {
				t.Errorf("expected %d classes and %d anchors, got %d and %d", tt.wantClasses, tt.wantAnchors, classes, anchors)
			}
		})
	}

	dims := []int64{-1, 8, 8400}
	outputShape(dims)
	if dims[0] != -1 {
		t.Error("expected the model dimensions to be left untouched")
	}
}

func TestNewOnnxDetector_NoModel(t *testing.T) {
	if _, err := NewOnnxDetector(DefaultConfig()); !errors.Is(err, ErrNoModel) {
		t.Errorf("expected ErrNoModel, got %v", err)
	}
}

func TestNewMediaPipeDetector_MissingScript(t *testing.T) {
	cfg := DefaultHandConfig()
	cfg.ScriptPath = t.TempDir() + "/missing.py"

	if _, err := NewMediaPipeDetector(cfg, nil); !errors.Is(err, ErrNoHandService) {
		t.Errorf("expected ErrNoHandService, got %v", err)
	}
}

func TestParseHands(t *testing.T) {
	t.Run("full hand", func(t *testing.T) {
		line := []byte(`{"hands": [{"handedness": "Left", "score": 0.8, "points": [` +
			`{"x":0.1,"y":0.2,"z":0},{"x":0,"y":0,"z":0},{"x":0,"y":0,"z":0},{"x":0,"y":0,"z":0},` +
			`{"x":0,"y":0,"z":0},{"x":0,"y":0,"z":0},{"x":0,"y":0,"z":0},{"x":0,"y":0,"z":0},` +
			`{"x":0.4,"y":0.5,"z":0},{"x":0,"y":0,"z":0},{"x":0,"y":0,"z":0},{"x":0,"y":0,"z":0},` +
			`{"x":0,"y":0,"z":0},{"x":0,"y":0,"z":0},{"x":0,"y":0,"z":0},{"x":0,"y":0,"z":0},` +
			`{"x":0,"y":0,"z":0},{"x":0,"y":0,"z":0},{"x":0,"y":0,"z":0},{"x":0,"y":0,"z":0},` +
			`{"x":0,"y":0,"z":0}]}]}` + "\n")

		hands, err := parseHands(line)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hands) != 1 {
			t.Fatalf("expected 1 hand, got %d", len(hands))
		}
		if hands[0].Handedness != "Left" || hands[0].Score != 0.8 {
			t.Errorf("unexpected hand metadata: %+v", hands[0])
		}
		if hands[0].Points[IndexTip] != (Point3D{X: 0.4, Y: 0.5}) {
			t.Errorf("unexpected index tip: %v", hands[0].Points[IndexTip])
		}
	})

	t.Run("short hands are dropped", func(t *testing.T) {
		hands, err := parseHands([]byte(`{"hands": [{"points": [{"x":1,"y":1,"z":0}]}]}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hands) != 0 {
			t.Errorf("expected no hands, got %d", len(hands))
		}
	})

	t.Run("service error", func(t *testing.T) {
		if _, err := parseHands([]byte(`{"error": "decode failed"}`)); err == nil {
			t.Error("expected error from service")
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := parseHands([]byte(`{nope`)); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestHandLandmarks_Pixel(t *testing.T) {
	hand := HandWithTips(map[int]Point3D{IndexTip: {X: 0.25, Y: 0.5}})

	t.Run("plain", func(t *testing.T) {
		p := hand.Pixel(IndexTip, 640, 480, false)
		if !nearPoint(p, r2.Point{X: 160, Y: 240}) {
			t.Errorf("expected (160, 240), got %v", p)
		}
	})

	t.Run("mirrored", func(t *testing.T) {
		p := hand.Pixel(IndexTip, 640, 480, true)
		if !nearPoint(p, r2.Point{X: 480, Y: 240}) {
			t.Errorf("expected (480, 240), got %v", p)
		}
	})
}

func TestHandLandmarks_Mirrored(t *testing.T) {
	hand := HandWithTips(map[int]Point3D{ThumbTip: {X: 0.2, Y: 0.3, Z: 0.1}})

	m := hand.Mirrored()
	if math.Abs(m.Points[ThumbTip].X-0.8) > epsilon {
		t.Errorf("expected x 0.8, got %f", m.Points[ThumbTip].X)
	}
	if m.Points[ThumbTip].Y != 0.3 || m.Points[ThumbTip].Z != 0.1 {
		t.Errorf("expected y and z unchanged, got %v", m.Points[ThumbTip])
	}
	if m.Handedness != "Left" {
		t.Errorf("expected handedness Left, got %s", m.Handedness)
	}
	if hand.Points[ThumbTip].X != 0.2 {
		t.Error("expected original hand to be unchanged")
	}

	var nilHand *HandLandmarks
	if nilHand.Mirrored() != nil {
		t.Error("expected nil result for nil input")
	}
}

func TestMockDetector(t *testing.T) {
	t.Run("returns empty detections by default", func(t *testing.T) {
		mock := NewMockDetector()

		dets, err := mock.DetectFrets(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if dets != nil {
			t.Errorf("expected nil detections, got %v", dets)
		}
	})

	t.Run("returns configured detections", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetDetections(SquareMarkers(0, 50, 0, 10, DefaultConfig()))

		dets, err := mock.DetectFrets(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(dets) != 2 {
			t.Errorf("expected 2 detections, got %d", len(dets))
		}
		if mock.Calls() != 1 {
			t.Errorf("expected 1 call, got %d", mock.Calls())
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()

		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		dets, err := mock.DetectFrets(nil)

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if dets != nil {
			t.Errorf("expected nil detections when error is set, got %v", dets)
		}
	})

	t.Run("implements FretDetector interface", func(t *testing.T) {
		var _ FretDetector = (*MockDetector)(nil)
		var _ FretDetector = (*OnnxDetector)(nil)
	})
}

func TestMockHandDetector(t *testing.T) {
	mock := NewMockHandDetector()
	mock.SetHands([]HandLandmarks{HandWithTips(nil)})

	hands, err := mock.Detect(nil)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(hands) != 1 {
		t.Errorf("expected 1 hand, got %d", len(hands))
	}
	if err := mock.Close(); err != nil {
		t.Errorf("expected Close to return nil, got %v", err)
	}

	var _ HandDetector = (*MockHandDetector)(nil)
	var _ HandDetector = (*MediaPipeDetector)(nil)
}

func TestParseDetections(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		data := []byte(`{
			"width": 640, "height": 480,
			"detections": [
				{"class_id": 1, "confidence": 0.9, "corners": [[10,20],[50,20],[50,60],[10,60]]},
				{"class_id": 2, "confidence": 0.4, "corners": [[300,20],[340,20],[340,60],[300,60]]}
			]
		}`)

		f, dets, err := ParseDetections(data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.Width != 640 || f.Height != 480 {
			t.Errorf("expected 640x480, got %dx%d", f.Width, f.Height)
		}
		if len(dets) != 2 {
			t.Fatalf("expected 2 detections, got %d", len(dets))
		}
		if dets[1].ClassID != 2 || dets[1].Confidence != 0.4 {
			t.Errorf("unexpected detection: %+v", dets[1])
		}
		if !nearPoint(dets[0].Corners[2], r2.Point{X: 50, Y: 60}) {
			t.Errorf("unexpected corner: %v", dets[0].Corners[2])
		}
	})

	t.Run("missing frame size", func(t *testing.T) {
		if _, _, err := ParseDetections([]byte(`{"detections": []}`)); err == nil {
			t.Error("expected error for missing frame size")
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, _, err := ParseDetections([]byte(`{`)); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, _, err := LoadDetections("/nonexistent/detections.json"); err == nil {
			t.Error("expected read error")
		}
	})
}

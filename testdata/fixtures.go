// Package testdata provides chord and detection fixtures shared by tests.
package testdata

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/fretsense/internal/detector"
	"github.com/ayusman/fretsense/internal/fingering"
)

//go:embed chords/*.json detections/*.json
var fixturesFS embed.FS

// Fixture frame size, matching the recorded detections.
const (
	FrameWidth  = 640
	FrameHeight = 480
)

// Chord loads a chord fixture by name, e.g. "D".
func Chord(name string) (*fingering.Spec, error) {
	data, err := fixturesFS.ReadFile("chords/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("load chord %s: %w", name, err)
	}
	return fingering.Parse(name, data)
}

// ChordData returns the raw document of a chord fixture.
func ChordData(name string) ([]byte, error) {
	return fixturesFS.ReadFile("chords/" + name + ".json")
}

// Library loads every chord fixture.
func Library() (*fingering.Library, error) {
	entries, err := fs.ReadDir(fixturesFS, "chords")
	if err != nil {
		return nil, err
	}

	var specs []*fingering.Spec
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), path.Ext(entry.Name()))
		spec, err := Chord(name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return fingering.NewLibrary(specs...)
}

// Detections loads a recorded detector run by name, e.g. "locked".
func Detections(name string) ([]detector.Detection, error) {
	data, err := fixturesFS.ReadFile("detections/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("load detections %s: %w", name, err)
	}
	_, dets, err := detector.ParseDetections(data)
	return dets, err
}

// BlankFrame returns an empty BGR image of the fixture size. The caller
// must Close it.
func BlankFrame() gocv.Mat {
	return gocv.NewMatWithSize(FrameHeight, FrameWidth, gocv.MatTypeCV8UC3)
}

// EncodedFrame returns a fixture-sized JPEG filled with a colour derived
// from seed, so different seeds produce different bytes.
func EncodedFrame(seed int) ([]byte, error) {
	mat := BlankFrame()
	defer mat.Close()

	mat.SetTo(gocv.NewScalar(float64(seed%256), float64((seed*7)%256), float64((seed*13)%256), 0))

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}

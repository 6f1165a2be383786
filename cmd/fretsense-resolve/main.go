// Command fretsense-resolve resolves a chord fingering against a recorded
// detector run, an image or a camera and prints the resulting layout as
// JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/fretsense/internal/capture"
	"github.com/ayusman/fretsense/internal/detector"
	"github.com/ayusman/fretsense/internal/fingering"
	"github.com/ayusman/fretsense/internal/geometry"
)

type output struct {
	Chord     string                    `json:"chord"`
	Ready     bool                      `json:"ready_to_lock"`
	FretBoxes map[int][4]geometry.Point `json:"fret_boxes"`
	Layout    *geometry.Layout          `json:"layout,omitempty"`
	Problems  []string                  `json:"problems,omitempty"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "fretsense-resolve: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("fretsense-resolve", flag.ContinueOnError)
	detectionsPath := fs.String("detections", "", "recorded detector run (JSON)")
	imagePath := fs.String("image", "", "image to run the fret model on")
	cameraID := fs.Int("camera", -1, "camera device to run the fret model on")
	modelPath := fs.String("model", "", "ONNX fret model, required with -image or -camera")
	onnxLib := fs.String("onnx-lib", "", "onnxruntime shared library (default: platform default)")
	steadyFrames := fs.Int("steady-frames", 5, "consecutive still camera frames required before detecting")
	timeout := fs.Duration("timeout", 10*time.Second, "how long to wait for the camera to settle")
	chordPath := fs.String("chord", "", "chord fingering file (JSON)")
	chordName := fs.String("name", "", "chord name (default: file name without extension)")
	minConf := fs.Float64("min-confidence", detector.DefaultConfig().MinConfidence, "minimum marker confidence")
	nearClass := fs.Int("near-class", detector.DefaultConfig().NearClass, "class id of the near marker")
	farClass := fs.Int("far-class", detector.DefaultConfig().FarClass, "class id of the far marker")
	if err := fs.Parse(args); err != nil {
		return err
	}

	inputs := 0
	for _, set := range []bool{*detectionsPath != "", *imagePath != "", *cameraID >= 0} {
		if set {
			inputs++
		}
	}
	if inputs != 1 || *chordPath == "" {
		fs.Usage()
		return errors.New("-chord and exactly one of -detections, -image or -camera are required")
	}

	name := *chordName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(*chordPath), filepath.Ext(*chordPath))
	}
	data, err := os.ReadFile(*chordPath)
	if err != nil {
		return fmt.Errorf("read chord: %w", err)
	}
	spec, err := fingering.Parse(name, data)
	if err != nil {
		return err
	}

	cfg := detector.DefaultConfig()
	cfg.MinConfidence = *minConf
	cfg.NearClass = *nearClass
	cfg.FarClass = *farClass
	cfg.ModelPath = *modelPath
	cfg.SharedLibraryPath = *onnxLib

	var file *detector.DetectionFile
	var dets []detector.Detection
	switch {
	case *detectionsPath != "":
		file, dets, err = detector.LoadDetections(*detectionsPath)
	case *imagePath != "":
		file, dets, err = detectSource(context.Background(), capture.NewFiles(*imagePath), cfg, 0)
	default:
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		file, dets, err = detectSource(ctx, capture.NewCamera(*cameraID, 0), cfg, *steadyFrames)
	}
	if err != nil {
		return err
	}

	markers := detector.SelectMarkers(dets, cfg)

	out := output{
		Chord:     name,
		Ready:     markers.Ready(),
		FretBoxes: markers.Boxes(file.Width, file.Height),
	}
	for _, p := range spec.Validate() {
		out.Problems = append(out.Problems, p.Error())
	}

	if out.Ready {
		near, far := markers.Quads()
		out.Layout, err = geometry.Locate(near, far, file.Width, file.Height, spec)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}

	if !out.Ready {
		return errors.New("both fret markers are required to resolve a layout")
	}
	return nil
}

// detectSource reads one frame from src and runs the fret model on it.
// With steady > 0 it waits for that many still frames first.
func detectSource(ctx context.Context, src capture.Source, cfg detector.Config, steady int) (*detector.DetectionFile, []detector.Detection, error) {
	if cfg.ModelPath == "" {
		return nil, nil, detector.ErrNoModel
	}
	det, err := detector.NewOnnxDetector(cfg)
	if err != nil {
		return nil, nil, err
	}
	defer det.Close()

	if err := src.Open(); err != nil {
		return nil, nil, err
	}
	defer src.Close()

	var frame *gocv.Mat
	if steady > 0 {
		sd := capture.NewSteadyDetector(capture.DefaultMotionPercent)
		defer sd.Close()
		frame, err = capture.WaitSteady(ctx, src, sd, steady)
	} else {
		frame, err = src.ReadFrame()
	}
	if err != nil {
		return nil, nil, err
	}
	defer frame.Close()

	dets, err := det.DetectFrets(frame)
	if err != nil {
		return nil, nil, err
	}
	return &detector.DetectionFile{Width: frame.Cols(), Height: frame.Rows()}, dets, nil
}

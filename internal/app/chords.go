package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ayusman/fretsense/internal/calibrate"
	"github.com/ayusman/fretsense/internal/events"
	"github.com/ayusman/fretsense/internal/fingering"
	"github.com/ayusman/fretsense/internal/store"
)

// ErrInvalidFingering is returned when training produces an unusable
// fingering.
var ErrInvalidFingering = errors.New("invalid fingering")

// ChordInfo describes a chord of the library.
type ChordInfo struct {
	Name      string            `json:"name"`
	Fingering *fingering.Spec   `json:"fingering"`
	Source    store.ChordSource `json:"source"`
	Samples   int               `json:"samples"`
}

// Chords lists every chord of the library in name order.
func (a *App) Chords() ([]ChordInfo, error) {
	lib := a.Library()

	stored, err := a.store.Chords().List()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*store.Chord, len(stored))
	for _, c := range stored {
		byName[c.Name] = c
	}

	infos := make([]ChordInfo, 0, lib.Len())
	for _, name := range lib.Names() {
		spec, _ := lib.Get(name)
		info := ChordInfo{Name: name, Fingering: spec, Source: store.ChordSourceFile}
		if c, ok := byName[name]; ok {
			info.Source = c.Source
			info.Samples = c.Samples
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Chord returns one chord of the library.
func (a *App) Chord(name string) (*ChordInfo, error) {
	spec, err := a.Library().Get(name)
	if err != nil {
		return nil, err
	}

	info := &ChordInfo{Name: name, Fingering: spec, Source: store.ChordSourceFile}
	c, err := a.store.Chords().GetByName(name)
	switch {
	case err == nil:
		info.Source = c.Source
		info.Samples = c.Samples
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	return info, nil
}

// RecordSamples appends calibration samples for chord and returns how many
// are now recorded. Each sample must decode as a calibration sample.
func (a *App) RecordSamples(chord string, samples []json.RawMessage) (int, error) {
	chord = strings.TrimSpace(chord)
	if chord == "" {
		return 0, errors.New("chord name is required")
	}
	if len(samples) == 0 {
		return 0, errors.New("no samples provided")
	}
	for i, raw := range samples {
		var s calibrate.Sample
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("sample %d: %w", i, err)
		}
	}

	total, err := a.store.Samples().Append(chord, samples)
	if err != nil {
		return 0, err
	}

	a.log.Info("calibration samples recorded",
		zap.String("chord", chord),
		zap.Int("added", len(samples)),
		zap.Int("total", total),
	)
	return total, nil
}

// Train fits a fingering for chord from its recorded samples, stores it and
// makes it available to new sessions. The samples are kept so training can
// be repeated with other anchors.
func (a *App) Train(ctx context.Context, chord string, anchors []calibrate.Anchor) (*fingering.Spec, error) {
	rows, err := a.store.Samples().GetByChord(chord)
	if err != nil {
		return nil, err
	}
	samples := make([]json.RawMessage, len(rows))
	for i, r := range rows {
		samples[i] = r.Data
	}

	spec, err := calibrate.NewTrainer().Train(chord, anchors, samples)
	if err != nil {
		return nil, err
	}
	if problems := spec.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFingering, errors.Join(problemErrors(problems)...))
	}

	data, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	if err := a.store.Chords().Save(&store.Chord{
		Name:      chord,
		Fingering: data,
		Source:    store.ChordSourceTrained,
		Samples:   len(samples),
	}); err != nil {
		return nil, fmt.Errorf("save chord: %w", err)
	}

	for {
		cur := a.library.Load()
		if a.library.CompareAndSwap(cur, cur.With(spec)) {
			break
		}
	}

	a.log.Info("chord trained",
		zap.String("chord", chord),
		zap.Int("fingers", spec.Len()),
		zap.Int("samples", len(samples)),
	)
	a.publish(ctx, events.TypeChordTrained, chord, map[string]any{
		"fingers": spec.Len(),
		"samples": len(samples),
	})

	return spec, nil
}

func problemErrors(problems []fingering.Problem) []error {
	errs := make([]error, len(problems))
	for i, p := range problems {
		errs[i] = p
	}
	return errs
}

// Samples returns the recorded calibration samples of chord.
func (a *App) Samples(chord string) ([]store.Sample, error) {
	return a.store.Samples().GetByChord(chord)
}

// ClearSamples deletes the recorded calibration samples of chord.
func (a *App) ClearSamples(chord string) error {
	return a.store.Samples().DeleteByChord(chord)
}

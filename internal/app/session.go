package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayusman/fretsense/internal/cache"
	"github.com/ayusman/fretsense/internal/detector"
	"github.com/ayusman/fretsense/internal/events"
	"github.com/ayusman/fretsense/internal/geometry"
	"github.com/ayusman/fretsense/internal/scoring"
	"github.com/ayusman/fretsense/internal/store"
)

// FretResult is the outcome of a live marker check.
type FretResult struct {
	Boxes       map[int][4]geometry.Point `json:"fret_boxes"`
	ReadyToLock bool                      `json:"ready_to_lock"`
}

// LockResult is a locked session.
type LockResult struct {
	SessionID string                    `json:"session_id"`
	Chord     string                    `json:"chord"`
	Layout    *geometry.Layout          `json:"layout"`
	FretBoxes map[int][4]geometry.Point `json:"fret_boxes"`
	Cached    bool                      `json:"cached"`
}

// SessionDetail is a stored session with its score history.
type SessionDetail struct {
	*store.Session
	Summary *store.ScoreSummary `json:"summary"`
	Scores  []store.Score       `json:"scores"`
}

// detect runs the fret detector under the concurrency limit and picks the
// two markers.
func (a *App) detect(ctx context.Context, frame *Frame) (detector.Markers, error) {
	release, err := a.acquire(ctx)
	if err != nil {
		return detector.Markers{}, err
	}
	defer release()

	dets, err := a.frets.DetectFrets(&frame.Mat)
	if err != nil {
		return detector.Markers{}, fmt.Errorf("detect frets: %w", err)
	}
	return detector.SelectMarkers(dets, a.config.DetectorConfig), nil
}

// DetectFrets reports which markers are visible in frame.
func (a *App) DetectFrets(ctx context.Context, frame *Frame) (*FretResult, error) {
	markers, err := a.detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	return &FretResult{
		Boxes:       markers.Boxes(frame.Width, frame.Height),
		ReadyToLock: markers.Ready(),
	}, nil
}

// Lock resolves chord against the markers in frame and opens a session.
// Layouts are cached by image hash and chord when a cache is configured.
func (a *App) Lock(ctx context.Context, frame *Frame, chord string) (*LockResult, error) {
	spec, err := a.Library().Get(chord)
	if err != nil {
		return nil, err
	}

	res := &LockResult{Chord: chord}

	fingerprint := spec.Fingerprint()
	if entry := a.cachedLock(ctx, frame, chord, fingerprint); entry != nil {
		res.Layout = entry.Layout
		res.FretBoxes = entry.FretBoxes
		res.Cached = true
	} else {
		markers, err := a.detect(ctx, frame)
		if err != nil {
			return nil, err
		}
		if !markers.Ready() {
			return nil, ErrNotReady
		}

		near, far := markers.Quads()
		layout, err := geometry.Locate(near, far, frame.Width, frame.Height, spec)
		if err != nil {
			return nil, err
		}
		res.Layout = layout
		res.FretBoxes = markers.Boxes(frame.Width, frame.Height)

		a.storeLock(ctx, frame, &cache.Entry{
			Chord:       chord,
			Fingerprint: fingerprint,
			Width:       frame.Width,
			Height:      frame.Height,
			Layout:      layout,
			FretBoxes:   res.FretBoxes,
		})
	}

	if res.Layout.Degenerate {
		a.log.Warn("reference line is degenerate", zap.String("chord", chord))
	}
	for _, u := range res.Layout.Unresolved {
		a.log.Warn("finger left unresolved",
			zap.String("chord", chord),
			zap.String("finger", u.Finger),
			zap.String("reason", u.Reason),
		)
	}

	layoutJSON, err := json.Marshal(res.Layout)
	if err != nil {
		return nil, err
	}
	boxesJSON, err := json.Marshal(res.FretBoxes)
	if err != nil {
		return nil, err
	}

	res.SessionID = uuid.New().String()
	sess := &store.Session{
		ID:          res.SessionID,
		Chord:       chord,
		FrameWidth:  frame.Width,
		FrameHeight: frame.Height,
		ImageHash:   frame.Hash,
		Layout:      layoutJSON,
		FretBoxes:   boxesJSON,
	}
	if err := a.store.Sessions().Create(sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	a.log.Info("fretboard locked",
		zap.String("session_id", res.SessionID),
		zap.String("chord", chord),
		zap.Int("targets", len(res.Layout.Targets)),
		zap.Bool("cached", res.Cached),
	)
	a.publish(ctx, events.TypeSessionLocked, res.SessionID, map[string]any{
		"chord":   chord,
		"targets": len(res.Layout.Targets),
		"cached":  res.Cached,
	})

	return res, nil
}

// cachedLock looks up a layout for this frame and fingering. Entries are
// keyed by the fingering fingerprint, so a retrained chord never sees the
// layouts of its previous rules.
func (a *App) cachedLock(ctx context.Context, frame *Frame, chord, fingerprint string) *cache.Entry {
	if a.cache == nil || frame.Hash == "" || fingerprint == "" {
		return nil
	}
	entry, err := a.cache.Get(ctx, frame.Hash, chord, fingerprint)
	if err != nil {
		a.log.Warn("lock cache read failed", zap.Error(err))
		return nil
	}
	if entry == nil || entry.Layout == nil || entry.Width != frame.Width || entry.Height != frame.Height {
		return nil
	}
	return entry
}

func (a *App) storeLock(ctx context.Context, frame *Frame, entry *cache.Entry) {
	if a.cache == nil || frame.Hash == "" || entry.Fingerprint == "" {
		return
	}
	if err := a.cache.Set(ctx, frame.Hash, entry); err != nil {
		a.log.Warn("lock cache write failed", zap.Error(err))
	}
}

// SessionLayout is the layout of a locked session and the frame size it
// was computed for.
type SessionLayout struct {
	SessionID string
	Chord     string
	Layout    *geometry.Layout
	Width     int
	Height    int
}

// Evaluate scores hand against the layout without recording the attempt.
func (l *SessionLayout) Evaluate(hand *detector.HandLandmarks, mirror bool) (*scoring.Result, error) {
	return scoring.Score(l.Layout, hand, scoring.Options{
		Width:  l.Width,
		Height: l.Height,
		Mirror: mirror,
	})
}

// Layout loads the layout of a locked session.
func (a *App) Layout(sessionID string) (*SessionLayout, error) {
	sess, err := a.store.Sessions().GetByID(sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var layout geometry.Layout
	if err := json.Unmarshal(sess.Layout, &layout); err != nil {
		return nil, fmt.Errorf("decode layout of session %s: %w", sessionID, err)
	}

	return &SessionLayout{
		SessionID: sess.ID,
		Chord:     sess.Chord,
		Layout:    &layout,
		Width:     sess.FrameWidth,
		Height:    sess.FrameHeight,
	}, nil
}

// Score grades hand against a locked session and records the attempt. hand
// may be nil when no hand was visible. mirror flips landmark x coordinates
// that were taken from the unmirrored camera image.
func (a *App) Score(ctx context.Context, sessionID string, hand *detector.HandLandmarks, mirror bool) (*scoring.Result, error) {
	sl, err := a.Layout(sessionID)
	if err != nil {
		return nil, err
	}

	result, err := sl.Evaluate(hand, mirror)
	if err != nil {
		return nil, err
	}

	detail, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if err := a.store.Scores().Create(&store.Score{
		SessionID: sessionID,
		Percent:   result.Percent,
		Grade:     string(result.Grade),
		Detail:    detail,
	}); err != nil {
		return nil, fmt.Errorf("save score: %w", err)
	}

	a.publish(ctx, events.TypeSessionScored, sessionID, map[string]any{
		"chord":   sl.Chord,
		"percent": result.Percent,
		"grade":   result.Grade,
	})

	return result, nil
}

// ScoreFrame runs hand detection on frame and scores the first hand found.
// The frame is already mirrored, so landmarks are used as detected.
func (a *App) ScoreFrame(ctx context.Context, sessionID string, frame *Frame) (*scoring.Result, error) {
	if a.hands == nil {
		return nil, ErrNoHandDetector
	}

	release, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	hands, err := a.hands.Detect(&frame.Mat)
	release()
	if err != nil {
		return nil, fmt.Errorf("detect hands: %w", err)
	}

	var hand *detector.HandLandmarks
	if len(hands) > 0 {
		hand = &hands[0]
	}
	return a.Score(ctx, sessionID, hand, false)
}

// Session returns a stored session with its score history.
func (a *App) Session(id string) (*SessionDetail, error) {
	sess, err := a.store.Sessions().GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	scores, err := a.store.Scores().ListBySession(id)
	if err != nil {
		return nil, err
	}
	summary, err := a.store.Scores().Summary(id)
	if err != nil {
		return nil, err
	}

	return &SessionDetail{Session: sess, Summary: summary, Scores: scores}, nil
}

// Sessions lists the most recent sessions.
func (a *App) Sessions(limit int) ([]*store.Session, error) {
	return a.store.Sessions().List(limit)
}

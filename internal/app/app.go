// Package app ties fret detection, fingering resolution, scoring and
// persistence together for the practice session flow.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/fretsense/internal/cache"
	"github.com/ayusman/fretsense/internal/detector"
	"github.com/ayusman/fretsense/internal/events"
	"github.com/ayusman/fretsense/internal/fingering"
	"github.com/ayusman/fretsense/internal/store"
)

// Detection limits.
const (
	// DefaultMaxConcurrent bounds simultaneous detector runs.
	DefaultMaxConcurrent = 2
	// DefaultQueueTimeout is how long a request waits for a detector slot.
	DefaultQueueTimeout = 10 * time.Second
)

var (
	// ErrNotReady is returned by Lock when either fret marker is missing.
	ErrNotReady = errors.New("could not find both fret markers")
	// ErrBusy is returned when no detector slot frees up in time.
	ErrBusy = errors.New("detector busy, try again later")
	// ErrNoHandDetector is returned when scoring a frame without hand tracking.
	ErrNoHandDetector = errors.New("hand detection is not enabled")
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
)

// Config holds the collaborators of an App. Library, Store and Frets are
// required.
type Config struct {
	Library        *fingering.Library
	Store          *store.Store
	Frets          detector.FretDetector
	Hands          detector.HandDetector
	DetectorConfig detector.Config
	Cache          *cache.LockCache
	Publisher      events.Publisher
	Logger         *zap.Logger
	MaxConcurrent  int
	QueueTimeout   time.Duration
}

// App is the practice session service behind the HTTP API.
type App struct {
	config    Config
	library   atomic.Pointer[fingering.Library]
	store     *store.Store
	frets     detector.FretDetector
	hands     detector.HandDetector
	cache     *cache.LockCache
	publisher events.Publisher
	log       *zap.Logger
	slots     chan struct{}
	started   time.Time
}

// New creates an App. Trained fingerings already in the store replace the
// file fingerings of the same chord, and file fingerings missing from the
// store are recorded there.
func New(config Config) (*App, error) {
	if config.Library == nil {
		return nil, errors.New("app: library is required")
	}
	if config.Store == nil {
		return nil, errors.New("app: store is required")
	}
	if config.Frets == nil {
		return nil, errors.New("app: fret detector is required")
	}
	if config.Publisher == nil {
		config.Publisher = events.NopPublisher{}
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultMaxConcurrent
	}
	if config.QueueTimeout <= 0 {
		config.QueueTimeout = DefaultQueueTimeout
	}
	if config.DetectorConfig.NearClass == 0 && config.DetectorConfig.FarClass == 0 {
		config.DetectorConfig = detector.DefaultConfig()
	}

	a := &App{
		config:    config,
		store:     config.Store,
		frets:     config.Frets,
		hands:     config.Hands,
		cache:     config.Cache,
		publisher: config.Publisher,
		log:       config.Logger,
		slots:     make(chan struct{}, config.MaxConcurrent),
		started:   time.Now(),
	}
	a.library.Store(config.Library)

	if err := a.syncChords(); err != nil {
		return nil, err
	}

	return a, nil
}

// syncChords merges the stored chords with the file library.
func (a *App) syncChords() error {
	lib := a.library.Load()
	repo := a.store.Chords()

	stored, err := repo.List()
	if err != nil {
		return fmt.Errorf("list stored chords: %w", err)
	}

	known := make(map[string]bool, len(stored))
	for _, c := range stored {
		known[c.Name] = true
		if c.Source != store.ChordSourceTrained {
			continue
		}
		spec, err := fingering.Parse(c.Name, c.Fingering)
		if err != nil {
			a.log.Warn("skipping stored chord", zap.String("chord", c.Name), zap.Error(err))
			continue
		}
		lib = lib.With(spec)
	}

	for _, name := range lib.Names() {
		if known[name] {
			continue
		}
		spec, _ := lib.Get(name)
		data, err := json.Marshal(spec)
		if err != nil {
			return err
		}
		if err := repo.Save(&store.Chord{Name: name, Fingering: data, Source: store.ChordSourceFile}); err != nil {
			return fmt.Errorf("record chord %s: %w", name, err)
		}
	}

	a.library.Store(lib)
	a.log.Info("fingering library ready", zap.Int("chords", lib.Len()))
	return nil
}

// Library returns the current fingering library.
func (a *App) Library() *fingering.Library {
	return a.library.Load()
}

// HandsEnabled reports whether frames can be scored server side.
func (a *App) HandsEnabled() bool {
	return a.hands != nil
}

// Uptime returns how long the app has been running.
func (a *App) Uptime() time.Duration {
	return time.Since(a.started)
}

// acquire waits for a detector slot. The returned func releases it.
func (a *App) acquire(ctx context.Context) (func(), error) {
	timer := time.NewTimer(a.config.QueueTimeout)
	defer timer.Stop()

	select {
	case a.slots <- struct{}{}:
		return func() { <-a.slots }, nil
	case <-timer.C:
		return nil, ErrBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *App) publish(ctx context.Context, eventType, key string, payload any) {
	e, err := events.New(eventType, key, payload)
	if err != nil {
		a.log.Error("failed to build event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := a.publisher.Publish(ctx, e); err != nil {
		a.log.Warn("failed to publish event",
			zap.String("type", eventType),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// Close releases the detectors and the event publisher. The store and cache
// are owned by the caller.
func (a *App) Close() error {
	var errs []error
	if err := a.frets.Close(); err != nil {
		errs = append(errs, fmt.Errorf("fret detector: %w", err))
	}
	if a.hands != nil {
		if err := a.hands.Close(); err != nil {
			errs = append(errs, fmt.Errorf("hand detector: %w", err))
		}
	}
	if err := a.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("publisher: %w", err))
	}
	return errors.Join(errs...)
}

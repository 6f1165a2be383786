package e2e

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zaptest"

	"github.com/ayusman/fretsense/internal/app"
	"github.com/ayusman/fretsense/internal/cache"
	"github.com/ayusman/fretsense/internal/detector"
	"github.com/ayusman/fretsense/internal/events"
	"github.com/ayusman/fretsense/internal/geometry"
	"github.com/ayusman/fretsense/internal/scoring"
	"github.com/ayusman/fretsense/internal/server"
	"github.com/ayusman/fretsense/internal/store"
	"github.com/ayusman/fretsense/testdata"
)

type stack struct {
	ts        *httptest.Server
	frets     *detector.MockDetector
	publisher *events.MemoryPublisher
	close     func()
}

// startStack wires a server the way cmd/fretsense does, against mock
// detectors, a miniredis cache and an in-memory event publisher.
func startStack(t *testing.T, dbPath, redisAddr string) *stack {
	t.Helper()

	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}

	lib, err := testdata.Library()
	if err != nil {
		t.Fatalf("testdata.Library() error = %v", err)
	}

	log := zaptest.NewLogger(t)
	lc := cache.New(cache.Config{Addr: redisAddr, TTL: time.Minute}, log)

	frets := detector.NewMockDetector()
	dets, err := testdata.Detections("locked")
	if err != nil {
		t.Fatalf("testdata.Detections() error = %v", err)
	}
	frets.SetDetections(dets)

	publisher := events.NewMemoryPublisher()

	a, err := app.New(app.Config{
		Library:   lib,
		Store:     s,
		Frets:     frets,
		Cache:     lc,
		Publisher: publisher,
		Logger:    log,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}

	ts := httptest.NewServer(server.New(server.Config{App: a, Logger: log}))

	return &stack{
		ts:        ts,
		frets:     frets,
		publisher: publisher,
		close: func() {
			ts.Close()
			a.Close()
			lc.Close()
			s.Close()
		},
	}
}

func postJSON(t *testing.T, client *http.Client, url string, body interface{}, out interface{}) int {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal error = %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s error = %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "data.db")
	mr := miniredis.RunT(t)

	raw, err := testdata.EncodedFrame(42)
	if err != nil {
		t.Fatalf("EncodedFrame() error = %v", err)
	}
	image := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(raw)

	st := startStack(t, dbPath, mr.Addr())
	client := st.ts.Client()

	var locked struct {
		Success   bool                                 `json:"success"`
		SessionID string                               `json:"session_id"`
		Targets   map[string]geometry.NormalizedTarget `json:"targets"`
		Cached    bool                                 `json:"cached"`
	}

	t.Run("DetectFrets", func(t *testing.T) {
		var res struct {
			ReadyToLock bool `json:"ready_to_lock"`
		}
		if status := postJSON(t, client, st.ts.URL+"/api/detect_frets", map[string]string{"image": image}, &res); status != http.StatusOK {
			t.Fatalf("status = %d, want %d", status, http.StatusOK)
		}
		if !res.ReadyToLock {
			t.Error("expected fixture markers to be ready")
		}
	})

	t.Run("LockFretboard", func(t *testing.T) {
		if status := postJSON(t, client, st.ts.URL+"/api/lock_fretboard", map[string]string{"image": image, "chord": "D"}, &locked); status != http.StatusOK {
			t.Fatalf("status = %d, want %d", status, http.StatusOK)
		}
		if !locked.Success || len(locked.Targets) != 6 {
			t.Fatalf("unexpected lock: %+v", locked)
		}
		if locked.Cached {
			t.Error("expected first lock to run detection")
		}
	})

	t.Run("LockHitsCache", func(t *testing.T) {
		var again struct {
			Cached bool `json:"cached"`
		}
		postJSON(t, client, st.ts.URL+"/api/lock_fretboard", map[string]string{"image": image, "chord": "D"}, &again)
		if !again.Cached {
			t.Error("expected second lock of the same frame to be cached")
		}
	})

	t.Run("Score", func(t *testing.T) {
		points := make([]detector.Point3D, detector.NumLandmarks)
		for name, target := range locked.Targets {
			if idx, ok := scoring.FingerLandmarks[name]; ok {
				points[idx] = detector.Point3D{X: 1 - target.X, Y: target.Y}
			}
		}

		var res struct {
			Percent float64 `json:"percent"`
			Grade   string  `json:"grade"`
		}
		if status := postJSON(t, client, st.ts.URL+"/api/sessions/"+locked.SessionID+"/score", map[string]interface{}{"landmarks": points}, &res); status != http.StatusOK {
			t.Fatalf("status = %d, want %d", status, http.StatusOK)
		}
		if res.Percent != 100 || res.Grade != string(scoring.GradePerfect) {
			t.Errorf("expected perfect, got %+v", res)
		}
	})

	t.Run("Calibrate", func(t *testing.T) {
		dets, _ := testdata.Detections("locked")
		corners := func(d detector.Detection) [4]geometry.Point {
			var q [4]geometry.Point
			for i, c := range d.Corners {
				q[i] = geometry.Point{X: c.X, Y: c.Y}
			}
			return q
		}
		fingers := make(map[string]geometry.Point)
		for name, target := range locked.Targets {
			fingers[name] = geometry.Point{X: target.X * testdata.FrameWidth, Y: target.Y * testdata.FrameHeight}
		}
		sample := map[string]interface{}{"near": corners(dets[0]), "far": corners(dets[1]), "fingers": fingers}

		if status := postJSON(t, client, st.ts.URL+"/api/chords/D7/samples", map[string]interface{}{"samples": []interface{}{sample}}, nil); status != http.StatusCreated {
			t.Fatalf("samples status = %d, want %d", status, http.StatusCreated)
		}

		anchors := map[string]interface{}{"anchors": []map[string]string{
			{"finger": "index"},
			{"finger": "middle"},
			{"finger": "im", "ref_finger": "index"},
		}}
		if status := postJSON(t, client, st.ts.URL+"/api/chords/D7/train", anchors, nil); status != http.StatusOK {
			t.Fatalf("train status = %d, want %d", status, http.StatusOK)
		}
	})

	t.Run("Events", func(t *testing.T) {
		var types []string
		for _, e := range st.publisher.Events() {
			types = append(types, e.Type)
		}
		want := []string{
			events.TypeSessionLocked,
			events.TypeSessionLocked,
			events.TypeSessionScored,
			events.TypeChordTrained,
		}
		if strings.Join(types, ",") != strings.Join(want, ",") {
			t.Errorf("events = %v, want %v", types, want)
		}
	})

	st.close()

	t.Run("RestartKeepsState", func(t *testing.T) {
		st := startStack(t, dbPath, mr.Addr())
		defer st.close()
		client := st.ts.Client()

		resp, err := client.Get(st.ts.URL + "/api/chords/D7")
		if err != nil {
			t.Fatalf("GET error = %v", err)
		}
		var chord struct {
			Source string `json:"source"`
		}
		json.NewDecoder(resp.Body).Decode(&chord)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK || chord.Source != string(store.ChordSourceTrained) {
			t.Errorf("expected trained D7 after restart, got %d %+v", resp.StatusCode, chord)
		}

		resp, err = client.Get(st.ts.URL + "/api/sessions/" + locked.SessionID)
		if err != nil {
			t.Fatalf("GET error = %v", err)
		}
		var session struct {
			Summary struct {
				Attempts int `json:"attempts"`
			} `json:"summary"`
		}
		json.NewDecoder(resp.Body).Decode(&session)
		resp.Body.Close()

		if session.Summary.Attempts != 1 {
			t.Errorf("expected 1 recorded attempt after restart, got %d", session.Summary.Attempts)
		}

		var relocked struct {
			Cached bool `json:"cached"`
		}
		postJSON(t, client, st.ts.URL+"/api/lock_fretboard", map[string]string{"image": image, "chord": "D"}, &relocked)
		if !relocked.Cached || st.frets.Calls() != 0 {
			t.Error("expected the redis cache to survive the restart")
		}
	})
}

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ayusman/fretsense/internal/app"
	"github.com/ayusman/fretsense/internal/detector"
	"github.com/ayusman/fretsense/internal/scoring"
)

// SessionHandler serves locked sessions and scoring.
type SessionHandler struct {
	app     *app.App
	log     *zap.Logger
	maxBody int64
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(a *app.App, log *zap.Logger, maxBody int64) *SessionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionHandler{app: a, log: log, maxBody: maxBody}
}

// ServeHTTP implements the http.Handler interface.
// Expected paths: /api/sessions, /api/sessions/{id} and
// /api/sessions/{id}/score
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.get(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "score":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.score(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// LandmarksMessage carries one hand as reported by a browser hand tracker:
// 21 points normalized to the unmirrored camera image.
type LandmarksMessage struct {
	Landmarks  []detector.Point3D `json:"landmarks"`
	Handedness string             `json:"handedness"`
	// Mirror defaults to true: browser trackers see the raw camera image
	// while targets live in the mirrored view.
	Mirror *bool `json:"mirror"`
}

// Hand converts the message to landmarks. An empty landmark list means no
// hand was in view and yields nil.
func (m LandmarksMessage) Hand() (*detector.HandLandmarks, error) {
	if len(m.Landmarks) == 0 {
		return nil, nil
	}
	if len(m.Landmarks) != detector.NumLandmarks {
		return nil, fmt.Errorf("expected %d landmarks, got %d", detector.NumLandmarks, len(m.Landmarks))
	}

	hand := &detector.HandLandmarks{Handedness: m.Handedness, Score: 1}
	copy(hand.Points[:], m.Landmarks)
	return hand, nil
}

// MirrorOrDefault reports whether landmark x coordinates must be flipped.
func (m LandmarksMessage) MirrorOrDefault() bool {
	return m.Mirror == nil || *m.Mirror
}

type scoreRequest struct {
	LandmarksMessage
	Image string `json:"image"`
}

type scoreResponse struct {
	Success bool `json:"success"`
	*scoring.Result
}

// list handles GET /api/sessions?limit=N
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	sessions, err := h.app.Sessions(limit)
	if err != nil {
		internalError(w, h.log, "failed to list sessions", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// get handles GET /api/sessions/{id}
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	detail, err := h.app.Session(id)
	if err != nil {
		if errors.Is(err, app.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		internalError(w, h.log, "failed to get session", err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// score handles POST /api/sessions/{id}/score
func (h *SessionHandler) score(w http.ResponseWriter, r *http.Request, id string) {
	var req scoreRequest
	if !decodeBody(w, r, h.maxBody, &req) {
		return
	}

	var (
		result *scoring.Result
		err    error
	)
	if req.Image != "" {
		frame, derr := app.DecodeImage(req.Image)
		if derr != nil {
			writeError(w, http.StatusBadRequest, derr.Error())
			return
		}
		result, err = h.app.ScoreFrame(r.Context(), id, frame)
		frame.Close()
	} else {
		hand, herr := req.Hand()
		if herr != nil {
			writeError(w, http.StatusBadRequest, herr.Error())
			return
		}
		result, err = h.app.Score(r.Context(), id, hand, req.MirrorOrDefault())
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, scoreResponse{Success: true, Result: result})
	case errors.Is(err, app.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, app.ErrNoHandDetector):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, app.ErrBusy):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		internalError(w, h.log, "failed to score attempt", err)
	}
}

package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayusman/fretsense/internal/app"
	"github.com/ayusman/fretsense/internal/fingering"
	"github.com/ayusman/fretsense/internal/geometry"
)

// NotReadyMessage is returned when a lock is attempted without both markers
// in view.
const NotReadyMessage = "Could not find Fret 2 and 3. Please align guitar clearly."

// VisionHandler serves the marker check and fretboard lock endpoints.
type VisionHandler struct {
	app          *app.App
	log          *zap.Logger
	defaultChord string
	maxBody      int64
}

// NewVisionHandler creates a VisionHandler. defaultChord is locked when a
// request names no chord.
func NewVisionHandler(a *app.App, log *zap.Logger, defaultChord string, maxBody int64) *VisionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &VisionHandler{app: a, log: log, defaultChord: defaultChord, maxBody: maxBody}
}

type imageRequest struct {
	Image string `json:"image"`
	Chord string `json:"chord"`
}

type detectFretsResponse struct {
	Success     bool                      `json:"success"`
	FretBoxes   map[int][4]geometry.Point `json:"fret_boxes"`
	ReadyToLock bool                      `json:"ready_to_lock"`
}

type lockResponse struct {
	Success                 bool                                 `json:"success"`
	SessionID               string                               `json:"session_id"`
	Chord                   string                               `json:"chord"`
	Targets                 map[string]geometry.NormalizedTarget `json:"targets"`
	Order                   []string                             `json:"order"`
	FretBoxes               map[int][4]geometry.Point            `json:"fret_boxes"`
	VisualRadiusNorm        float64                              `json:"visual_radius_norm"`
	HitRadiusMultiplier     float64                              `json:"hit_radius_multiplier"`
	ScoringRadiusMultiplier float64                              `json:"scoring_radius_multiplier"`
	ReferenceLine           [2]geometry.Point                    `json:"reference_line"`
	Unresolved              []geometry.Unresolved                `json:"unresolved,omitempty"`
	Degenerate              bool                                 `json:"degenerate,omitempty"`
	Cached                  bool                                 `json:"cached"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DetectFrets handles POST /api/detect_frets.
func (h *VisionHandler) DetectFrets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	frame, ok := h.frame(w, r, nil)
	if !ok {
		return
	}
	defer frame.Close()

	res, err := h.app.DetectFrets(r.Context(), frame)
	if err != nil {
		h.detectionError(w, "fret detection failed", err)
		return
	}

	writeJSON(w, http.StatusOK, detectFretsResponse{
		Success:     true,
		FretBoxes:   res.Boxes,
		ReadyToLock: res.ReadyToLock,
	})
}

// LockFretboard handles POST /api/lock_fretboard.
func (h *VisionHandler) LockFretboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req imageRequest
	frame, ok := h.frame(w, r, &req)
	if !ok {
		return
	}
	defer frame.Close()

	chord := req.Chord
	if chord == "" {
		chord = h.defaultChord
	}

	res, err := h.app.Lock(r.Context(), frame, chord)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrNotReady):
		writeJSON(w, http.StatusOK, messageResponse{Message: NotReadyMessage})
		return
	case errors.Is(err, fingering.ErrUnknownChord):
		writeError(w, http.StatusNotFound, err.Error())
		return
	default:
		h.detectionError(w, "fretboard lock failed", err)
		return
	}

	l := res.Layout
	writeJSON(w, http.StatusOK, lockResponse{
		Success:                 true,
		SessionID:               res.SessionID,
		Chord:                   res.Chord,
		Targets:                 l.Targets,
		Order:                   l.Order,
		FretBoxes:               res.FretBoxes,
		VisualRadiusNorm:        l.VisualRadiusNorm,
		HitRadiusMultiplier:     l.HitRadiusMultiplier,
		ScoringRadiusMultiplier: l.ScoringRadiusMultiplier,
		ReferenceLine:           l.Line,
		Unresolved:              l.Unresolved,
		Degenerate:              l.Degenerate,
		Cached:                  res.Cached,
	})
}

// frame decodes the image of the request body into req, or into a private
// request when req is nil.
func (h *VisionHandler) frame(w http.ResponseWriter, r *http.Request, req *imageRequest) (*app.Frame, bool) {
	if req == nil {
		req = &imageRequest{}
	}
	if !decodeBody(w, r, h.maxBody, req) {
		return nil, false
	}
	if req.Image == "" {
		writeError(w, http.StatusBadRequest, "No image provided")
		return nil, false
	}

	frame, err := app.DecodeImage(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return frame, true
}

func (h *VisionHandler) detectionError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, app.ErrBusy) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	internalError(w, h.log, msg, err)
}

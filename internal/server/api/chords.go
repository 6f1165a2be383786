package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ayusman/fretsense/internal/app"
	"github.com/ayusman/fretsense/internal/calibrate"
	"github.com/ayusman/fretsense/internal/fingering"
)

// ChordHandler serves the fingering library and calibration endpoints.
type ChordHandler struct {
	app     *app.App
	log     *zap.Logger
	maxBody int64
}

// NewChordHandler creates a new ChordHandler.
func NewChordHandler(a *app.App, log *zap.Logger, maxBody int64) *ChordHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChordHandler{app: a, log: log, maxBody: maxBody}
}

// ServeHTTP implements the http.Handler interface.
// Expected paths: /api/chords, /api/chords/{name},
// /api/chords/{name}/samples and /api/chords/{name}/train
func (h *ChordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/chords")
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
	name := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.get(w, r, name)
	case len(parts) == 2 && parts[1] == "samples":
		switch r.Method {
		case http.MethodGet:
			h.listSamples(w, r, name)
		case http.MethodPost:
			h.createSamples(w, r, name)
		case http.MethodDelete:
			h.deleteSamples(w, r, name)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "train":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.train(w, r, name)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// Response types

type chordResponse struct {
	Name      string          `json:"name"`
	Fingering *fingering.Spec `json:"fingering"`
	Source    string          `json:"source"`
	Samples   int             `json:"samples"`
}

type listChordsResponse struct {
	Chords []chordResponse `json:"chords"`
}

type sampleResponse struct {
	ID          int64           `json:"id"`
	Chord       string          `json:"chord"`
	SampleIndex int             `json:"sample_index"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   string          `json:"created_at"`
}

type listSamplesResponse struct {
	Samples []sampleResponse `json:"samples"`
}

// Request types

type createSamplesRequest struct {
	Samples []json.RawMessage `json:"samples"`
}

type trainRequest struct {
	Anchors []calibrate.Anchor `json:"anchors"`
}

func toChordResponse(c app.ChordInfo) chordResponse {
	return chordResponse{
		Name:      c.Name,
		Fingering: c.Fingering,
		Source:    string(c.Source),
		Samples:   c.Samples,
	}
}

// list handles GET /api/chords
func (h *ChordHandler) list(w http.ResponseWriter, r *http.Request) {
	chords, err := h.app.Chords()
	if err != nil {
		internalError(w, h.log, "failed to list chords", err)
		return
	}

	response := listChordsResponse{Chords: make([]chordResponse, 0, len(chords))}
	for _, c := range chords {
		response.Chords = append(response.Chords, toChordResponse(c))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/chords/{name}
func (h *ChordHandler) get(w http.ResponseWriter, r *http.Request, name string) {
	c, err := h.app.Chord(name)
	if err != nil {
		if errors.Is(err, fingering.ErrUnknownChord) {
			writeError(w, http.StatusNotFound, "Chord not found")
			return
		}
		internalError(w, h.log, "failed to get chord", err)
		return
	}

	writeJSON(w, http.StatusOK, toChordResponse(*c))
}

// listSamples handles GET /api/chords/{name}/samples
func (h *ChordHandler) listSamples(w http.ResponseWriter, r *http.Request, name string) {
	samples, err := h.app.Samples(name)
	if err != nil {
		internalError(w, h.log, "failed to list samples", err)
		return
	}

	response := listSamplesResponse{Samples: make([]sampleResponse, 0, len(samples))}
	for _, s := range samples {
		response.Samples = append(response.Samples, sampleResponse{
			ID:          s.ID,
			Chord:       s.Chord,
			SampleIndex: s.SampleIndex,
			Data:        s.Data,
			CreatedAt:   s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// createSamples handles POST /api/chords/{name}/samples
func (h *ChordHandler) createSamples(w http.ResponseWriter, r *http.Request, name string) {
	var req createSamplesRequest
	if !decodeBody(w, r, h.maxBody, &req) {
		return
	}

	if len(req.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "At least one sample is required")
		return
	}

	total, err := h.app.RecordSamples(name, req.Samples)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"status": "ok", "samples": total})
}

// deleteSamples handles DELETE /api/chords/{name}/samples
func (h *ChordHandler) deleteSamples(w http.ResponseWriter, r *http.Request, name string) {
	if err := h.app.ClearSamples(name); err != nil {
		internalError(w, h.log, "failed to delete samples", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// train handles POST /api/chords/{name}/train
func (h *ChordHandler) train(w http.ResponseWriter, r *http.Request, name string) {
	var req trainRequest
	if !decodeBody(w, r, h.maxBody, &req) {
		return
	}

	if len(req.Anchors) == 0 {
		writeError(w, http.StatusBadRequest, "At least one anchor is required")
		return
	}

	if _, err := h.app.Train(r.Context(), name, req.Anchors); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	c, err := h.app.Chord(name)
	if err != nil {
		internalError(w, h.log, "failed to load trained chord", err)
		return
	}

	writeJSON(w, http.StatusOK, toChordResponse(*c))
}

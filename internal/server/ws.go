package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/fretsense/internal/app"
	"github.com/ayusman/fretsense/internal/scoring"
	"github.com/ayusman/fretsense/internal/server/api"
)

// Live socket limits.
const (
	liveReadLimit = 64 << 10
	liveIdle      = 60 * time.Second
	liveWriteWait = 5 * time.Second
)

// LiveHandler scores landmark frames streamed over a WebSocket against one
// locked session. Frames are evaluated without being recorded unless the
// client sets record.
type LiveHandler struct {
	app      *app.App
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewLiveHandler creates a new LiveHandler.
func NewLiveHandler(a *app.App, log *zap.Logger, c *cors) *LiveHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LiveHandler{
		app: a,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: c.checkOrigin,
		},
	}
}

type liveMessage struct {
	api.LandmarksMessage
	Record bool `json:"record"`
}

type liveReply struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Recorded  bool   `json:"recorded,omitempty"`
	Timestamp int64  `json:"timestamp"`
	*scoring.Result
}

// ServeHTTP handles WebSocket upgrade requests on
// /api/sessions/{id}/live.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/live")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	layout, err := h.app.Layout(id)
	if err != nil {
		if errors.Is(err, app.ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		h.log.Error("failed to load session layout", zap.String("session_id", id), zap.Error(err))
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(liveReadLimit)
	h.log.Info("live scoring started", zap.String("session_id", id))

	frames := 0
	for {
		conn.SetReadDeadline(time.Now().Add(liveIdle))

		var msg liveMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("live socket closed", zap.String("session_id", id), zap.Error(err))
			}
			break
		}
		frames++

		reply := h.evaluate(r, layout, msg)
		conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			break
		}
	}

	h.log.Info("live scoring ended", zap.String("session_id", id), zap.Int("frames", frames))
}

func (h *LiveHandler) evaluate(r *http.Request, layout *app.SessionLayout, msg liveMessage) liveReply {
	reply := liveReply{Timestamp: time.Now().UnixMilli()}

	hand, err := msg.Hand()
	if err != nil {
		reply.Error = err.Error()
		return reply
	}

	var result *scoring.Result
	if msg.Record {
		result, err = h.app.Score(r.Context(), layout.SessionID, hand, msg.MirrorOrDefault())
	} else {
		result, err = layout.Evaluate(hand, msg.MirrorOrDefault())
	}
	if err != nil {
		reply.Error = err.Error()
		return reply
	}

	reply.Success = true
	reply.Recorded = msg.Record
	reply.Result = result
	return reply
}

// Package server provides the HTTP server for the FretSense practice backend.
package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/fretsense/internal/app"
	"github.com/ayusman/fretsense/internal/logging"
	"github.com/ayusman/fretsense/internal/server/api"
)

// DefaultChord is locked when a request names no chord.
const DefaultChord = "D"

// Config holds the server configuration.
type Config struct {
	StaticDir      string
	App            *app.App
	Logger         *zap.Logger
	AllowedOrigins []string
	MaxBodyBytes   int64
	DefaultChord   string
}

// Server represents the HTTP server for the FretSense application.
type Server struct {
	config  Config
	mux     *http.ServeMux
	handler http.Handler
	log     *zap.Logger
	start   time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.DefaultChord == "" {
		config.DefaultChord = DefaultChord
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = api.DefaultMaxBodyBytes
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		log:    config.Logger,
		start:  time.Now(),
	}
	s.setupRoutes()
	s.handler = logging.Middleware(s.log, newCORS(config.AllowedOrigins).wrap(s.mux))
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if a := s.config.App; a != nil {
		vision := api.NewVisionHandler(a, s.log, s.config.DefaultChord, s.config.MaxBodyBytes)
		s.mux.HandleFunc("/api/detect_frets", vision.DetectFrets)
		s.mux.HandleFunc("/api/lock_fretboard", vision.LockFretboard)

		chords := api.NewChordHandler(a, s.log, s.config.MaxBodyBytes)
		s.mux.Handle("/api/chords", chords)
		s.mux.Handle("/api/chords/", chords)

		sessions := api.NewSessionHandler(a, s.log, s.config.MaxBodyBytes)
		live := NewLiveHandler(a, s.log, newCORS(s.config.AllowedOrigins))

		// Route between the REST handler and the live scoring socket
		sessionRouter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/live") {
				live.ServeHTTP(w, r)
				return
			}
			sessions.ServeHTTP(w, r)
		})
		s.mux.Handle("/api/sessions", sessionRouter)
		s.mux.Handle("/api/sessions/", sessionRouter)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status":  "ok",
		"message": "Vision backend running",
		"uptime":  uptime.String(),
	}
	if a := s.config.App; a != nil {
		response["chords"] = a.Library().Len()
		response["hands"] = a.HandsEnabled()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// NewHTTPServer wraps s in an http.Server with the given timeouts. The live
// socket needs WriteTimeout to be zero or generous.
func NewHTTPServer(addr string, s *Server, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}

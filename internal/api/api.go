// Package api exposes the HTTP control surface: acquisition start/stop,
// session reset, meditation mode, status, archived session listings, and the
// /ws streaming endpoint.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/auraloop/mindstate/internal/broadcast"
	"github.com/auraloop/mindstate/internal/headband"
	"github.com/auraloop/mindstate/internal/monitoring"
	"github.com/auraloop/mindstate/internal/session"
	"github.com/auraloop/mindstate/internal/sessiondb"
	"github.com/auraloop/mindstate/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Acquirer is the acquisition supervisor the handlers drive. The concrete
// implementation lives in main, where the sensor link and the tick loop are
// wired together.
type Acquirer interface {
	Start(ctx context.Context) (headband.DeviceInfo, error)
	Stop() error
	Running() bool
	Info() headband.DeviceInfo
}

type Server struct {
	acq     Acquirer
	session *session.Session
	hub     *broadcast.Hub
	db      *sessiondb.DB
}

// NewServer wires the control surface. db may be nil when tick persistence
// is disabled; the history endpoint then reports the archive unavailable.
func NewServer(acq Acquirer, s *session.Session, hub *broadcast.Hub, db *sessiondb.DB) *Server {
	return &Server{acq: acq, session: s, hub: hub, db: db}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration per request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/connect", s.handleConnect)
	mux.HandleFunc("/api/disconnect", s.handleDisconnect)
	mux.HandleFunc("/api/reset", s.handleReset)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.acq.Running() {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "already_connected",
			"device": s.acq.Info(),
		})
		return
	}
	info, err := s.acq.Start(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "connected",
		"device": info,
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.acq.Stop(); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.session.Reset()
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":     "reset",
		"session_id": s.session.ID(),
	})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Meditation bool `json:"meditation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.session.SetMeditation(req.Meditation)
	s.writeJSON(w, http.StatusOK, map[string]bool{"meditation": req.Meditation})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected":   s.acq.Running(),
		"device":      s.acq.Info(),
		"session_id":  s.session.ID(),
		"meditation":  s.session.Meditation(),
		"subscribers": s.hub.SubscriberCount(),
		"version":     version.String(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "tick archive disabled")
		return
	}
	sessions, err := s.db.ListSessions()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []sessiondb.SessionInfo{}
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

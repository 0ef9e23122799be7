package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/trailride/navcore/internal/config"
	"github.com/trailride/navcore/internal/geo"
	"github.com/trailride/navcore/internal/progress"
	"github.com/trailride/navcore/internal/session"
	"github.com/trailride/navcore/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	session *session.Session
}

func NewServer(s *session.Session) *Server {
	return &Server{session: s}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", s.showSession)
	mux.HandleFunc("/api/session/start", s.startSession)
	mux.HandleFunc("/api/session/stop", s.stopSession)
	mux.HandleFunc("/api/metrics", s.showMetrics)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/mode", s.setMode)
	mux.HandleFunc("/api/recenter", s.recenter)
	mux.HandleFunc("/api/wake", s.wake)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("error encoding response: %v", err)
	}
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, s.session.Snapshot())
}

type startRequest struct {
	Route *struct {
		Name       string      `json:"name"`
		Points     [][]float64 `json:"points"`
		Elevations []float64   `json:"elevations"`
	} `json:"route"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	opts := session.StartOptions{}
	if req.Route != nil {
		route := &geo.Route{
			Name:       req.Route.Name,
			Elevations: req.Route.Elevations,
		}
		for _, p := range req.Route.Points {
			if len(p) != 2 {
				s.writeJSONError(w, http.StatusBadRequest, "Route points must be [lon, lat] pairs")
				return
			}
			route.Points = append(route.Points, geo.Point{Lon: p[0], Lat: p[1]})
		}
		opts.Route = route
		opts.RouteName = req.Route.Name
	}

	if err := s.session.Start(r.Context(), opts); err != nil {
		s.writeJSONError(w, http.StatusConflict, "Failed to start session: "+err.Error())
		return
	}
	s.writeJSON(w, s.session.Snapshot())
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.session.Stop(r.Context()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to stop session: "+err.Error())
		return
	}
	s.writeJSON(w, s.session.Snapshot())
}

// metricsResponse pairs the raw progress numbers with the strings a
// display renders, so thin clients need no formatting logic.
type metricsResponse struct {
	progress.Metrics
	RemainingDistance string `json:"remaining_distance"`
	RemainingAscent   string `json:"remaining_ascent"`
	ETA               string `json:"eta"`
}

func (s *Server) showMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	m := s.session.Snapshot().Metrics
	s.writeJSON(w, metricsResponse{
		Metrics:           m,
		RemainingDistance: units.FormatDistanceKm(m.RemainingDistanceM),
		RemainingAscent:   units.FormatAscent(m.RemainingAscentM),
		ETA:               units.FormatETA(m.ETAMinutes),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, s.session.Config())
	case http.MethodPost:
		var partial config.NavConfig
		if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
		if err := s.session.UpdateConfig(&partial); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Failed to update config: "+err.Error())
			return
		}
		s.writeJSON(w, s.session.Config())
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	switch session.Mode(req.Mode) {
	case session.NorthUp, session.HeadingUp:
		s.session.SetMode(session.Mode(req.Mode))
	case "":
		// An empty mode means toggle.
		s.session.ToggleMode()
	default:
		s.writeJSONError(w, http.StatusBadRequest, "Unknown mode: "+req.Mode)
		return
	}
	s.writeJSON(w, map[string]session.Mode{"mode": s.session.Snapshot().Mode})
}

func (s *Server) recenter(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.session.Recenter()
	s.writeJSON(w, s.session.Snapshot())
}

func (s *Server) wake(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.session.Wake()
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// Package server exposes the relay over HTTP: health, room REST, the
// websocket endpoint and metrics.
package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Huddle/backend/internal/metrics"
	"github.com/BioHazard786/Huddle/backend/internal/signaling"
	"github.com/BioHazard786/Huddle/internal/roomcode"
	"github.com/BioHazard786/Huddle/internal/version"
)

// OriginPolicy decides whether a browser origin may talk to the relay.
// A nil policy accepts every origin.
type OriginPolicy func(origin string) bool

// Server bundles the relay's HTTP dependencies.
type Server struct {
	hub      *signaling.Hub
	registry *signaling.Registry
	metrics  *metrics.Metrics
	allow    OriginPolicy
	upgrader websocket.Upgrader
}

func New(hub *signaling.Hub, m *metrics.Metrics, allow OriginPolicy) *Server {
	s := &Server{
		hub:      hub,
		registry: hub.Registry(),
		metrics:  m,
		allow:    allow,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin: func(r *http.Request) bool { return s.originAllowed(r.Header.Get("Origin")) },
	}
	return s
}

// NewRouter returns the relay's HTTP handler.
func (s *Server) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/", s.health)
	r.Get("/health", s.health)
	r.Get("/ws", s.serveWS)
	r.Handle("/metrics", metrics.PrometheusHandler(s.metrics))

	r.Route("/api/rooms", func(r chi.Router) {
		r.Post("/", s.createRoom)
		r.Get("/{roomID}", s.getRoom)
	})

	return r
}

type healthResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Version     string `json:"version"`
	ActiveRooms int    `json:"activeRooms"`
	ActiveUsers int    `json:"activeUsers"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	rooms, users := s.registry.Stats()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Message:     "Huddle signaling relay is running",
		Version:     version.Version,
		ActiveRooms: rooms,
		ActiveUsers: users,
	})
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	id := s.registry.CreateRoom()
	log.Info().Str("room", id).Msg("Room pre-created")
	writeJSON(w, http.StatusCreated, map[string]string{"roomId": id})
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	id := roomcode.Normalize(chi.URLParam(r, "roomID"))
	sum, ok := s.registry.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Room not found"})
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Failed to upgrade connection")
		return
	}
	signaling.NewClient(s.hub, conn).Serve()
}

func (s *Server) originAllowed(origin string) bool {
	origin = strings.TrimSpace(origin)
	return origin == "" || s.allow == nil || s.allow(origin)
}

// cors enforces the origin policy and answers preflight requests.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !s.originAllowed(origin) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Origin not allowed"})
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Expose-Headers", middleware.RequestIDHeader)
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			if headers := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers")); headers != "" {
				w.Header().Set("Access-Control-Allow-Headers", headers)
			}
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

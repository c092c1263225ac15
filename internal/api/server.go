package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/atlas-desktop/adaptive-engine/internal/engine"
	"github.com/atlas-desktop/adaptive-engine/internal/events"
	"github.com/atlas-desktop/adaptive-engine/internal/metrics"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server exposes the control surface: engine lifecycle, feedback on
// recommendations, snapshots, and the event WebSocket.
type Server struct {
	logger     *zap.Logger
	config     *types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	hub        *Hub
	engine     *engine.Engine
}

// NewServer wires the server to an engine and subscribes the WebSocket hub
// to the engine's event bus.
func NewServer(logger *zap.Logger, config *types.ServerConfig, eng *engine.Engine) *Server {
	s := &Server{
		logger: logger.Named("api"),
		config: config,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		engine: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // UI is a local desktop shell
			},
		},
	}

	s.setupRoutes()
	s.wireEvents()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/v1/engine/start", s.handleStart).Methods("POST")
	s.router.HandleFunc("/api/v1/engine/stop", s.handleStop).Methods("POST")
	s.router.HandleFunc("/api/v1/engine/snapshot", s.handleSnapshot).Methods("GET")

	s.router.HandleFunc("/api/v1/signals/{id}/accept", s.handleAccept).Methods("POST")
	s.router.HandleFunc("/api/v1/signals/{id}/skip", s.handleSkip).Methods("POST")

	s.router.HandleFunc(s.config.WebSocketPath, s.handleWebSocket)

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// wireEvents forwards engine bus events to WebSocket clients.
func (s *Server) wireEvents() {
	bus := s.engine.Events()
	bus.Subscribe(events.EventTypeRecommendation, func(e events.Event) {
		if rec, ok := e.(events.RecommendationEvent); ok {
			s.hub.Broadcast(MsgTypeRecommendation, rec.Recommendation)
		}
	})
	bus.Subscribe(events.EventTypeStatus, func(e events.Event) {
		s.hub.Broadcast(MsgTypeStatus, e)
	})
	bus.Subscribe(events.EventTypeSwitch, func(e events.Event) {
		s.hub.Broadcast(MsgTypeSwitch, e)
	})
	bus.Subscribe(events.EventTypeError, func(e events.Event) {
		s.hub.Broadcast(MsgTypeError, e)
	})
}

// Router returns the underlying router, mainly for tests.
func (s *Server) Router() *mux.Router { return s.router }

// Start serves HTTP until Stop is called.
func (s *Server) Start() error {
	go s.hub.Run()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("control server listening", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Stop()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"clients": s.hub.ClientCount(),
		"time":    time.Now().UTC(),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	if err := s.engine.Start(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	timeout := 10 * time.Second
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			timeout = d
		}
	}
	if err := s.engine.Stop(timeout); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.engine.ApplyFeedback(id, true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted", "signalId": id})
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.engine.ApplyFeedback(id, false)
	writeJSON(w, http.StatusOK, map[string]string{"status": "skipped", "signalId": id})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:   uuid.New().String(),
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 64),
	}
	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

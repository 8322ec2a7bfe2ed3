// Package api exposes the automation service over HTTP: workflow CRUD,
// event ingestion, inbound webhooks, run history and live run streams.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pipeboard/automation/pkg/config"
	"github.com/pipeboard/automation/pkg/engine"
	"github.com/pipeboard/automation/pkg/logging"
	"github.com/pipeboard/automation/pkg/trigger"
	"github.com/pipeboard/automation/pkg/workflow"
)

// TenantHeader carries the workspace id on every scoped request
const TenantHeader = "X-Tenant-ID"

// Server represents the HTTP API server
type Server struct {
	config    *config.Config
	router    *mux.Router
	server    *http.Server
	registry  workflow.Registry
	engine    engine.Engine
	triggers  *trigger.Service
	scheduler *trigger.CronScheduler
	wsManager *WebSocketManager
	sseStream *SSEStreamer
	logger    logging.Logger
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, registry workflow.Registry, eng engine.Engine, triggers *trigger.Service, scheduler *trigger.CronScheduler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	s := &Server{
		config:    cfg,
		router:    mux.NewRouter(),
		registry:  registry,
		engine:    eng,
		triggers:  triggers,
		scheduler: scheduler,
		wsManager: NewWebSocketManager(eng, logger),
		sseStream: NewSSEStreamer(eng),
		logger:    logger,
	}

	s.setupRoutes()
	return s
}

// Router returns the configured handler, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server", logging.Field{Key: "addr", Value: addr})

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)

	// Tenant-scoped routes
	scoped := api.PathPrefix("").Subrouter()
	scoped.Use(requireTenant)

	workflows := scoped.PathPrefix("/workflows").Subrouter()
	workflows.HandleFunc("", s.handleListWorkflows).Methods(http.MethodGet, http.MethodOptions)
	workflows.HandleFunc("", s.handleCreateWorkflow).Methods(http.MethodPost, http.MethodOptions)
	workflows.HandleFunc("/{id}", s.handleGetWorkflow).Methods(http.MethodGet, http.MethodOptions)
	workflows.HandleFunc("/{id}", s.handleDeleteWorkflow).Methods(http.MethodDelete, http.MethodOptions)
	workflows.HandleFunc("/{id}/graph", s.handleSaveGraph).Methods(http.MethodPut, http.MethodOptions)
	workflows.HandleFunc("/{id}/status", s.handleSetStatus).Methods(http.MethodPost, http.MethodOptions)

	scoped.HandleFunc("/templates", s.handleListTemplates).Methods(http.MethodGet, http.MethodOptions)

	scoped.HandleFunc("/events", s.handleIngestEvent).Methods(http.MethodPost, http.MethodOptions)

	runs := scoped.PathPrefix("/runs").Subrouter()
	runs.HandleFunc("", s.handleListRuns).Methods(http.MethodGet, http.MethodOptions)
	runs.HandleFunc("/{id}", s.handleGetRun).Methods(http.MethodGet, http.MethodOptions)
	runs.HandleFunc("/{id}/cancel", s.handleCancelRun).Methods(http.MethodPost, http.MethodOptions)
	runs.HandleFunc("/{id}/stream", s.sseStream.HandleStream).Methods(http.MethodGet, http.MethodOptions)

	// Inbound webhooks accept any method; builders pick the method in
	// the trigger configuration
	s.router.PathPrefix("/hooks/").HandlerFunc(s.handleInboundWebhook)

	s.router.HandleFunc("/ws/executions/{id}", s.wsManager.HandleWebSocket)

	s.router.Use(corsMiddleware)
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// requireTenant rejects scoped requests that carry no tenant header
func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get(TenantHeader) == "" {
			http.Error(w, "Missing "+TenantHeader+" header", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers and short-circuits preflight requests
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+TenantHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tenantID(r *http.Request) string {
	return r.Header.Get(TenantHeader)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

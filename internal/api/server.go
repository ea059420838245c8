// SPDX-License-Identifier: MIT

// Package api exposes the connection manager over HTTP: a REST surface
// for commands and queries plus a websocket stream of state events.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/vmixd/internal/bus"
	xlog "github.com/ManuGH/vmixd/internal/log"
	"github.com/ManuGH/vmixd/internal/manager"
	"github.com/ManuGH/vmixd/internal/state"
)

// Service is the supervisor surface the HTTP layer needs. Handlers stay
// transport-only; all connection semantics live behind this interface.
type Service interface {
	Connect(ctx context.Context, req manager.ConnectRequest) (state.Connection, error)
	Disconnect(ctx context.Context, host string) error
	Refresh(ctx context.Context, host string) error
	Statuses() []state.Connection
	Counts() (connected, reconnecting int)
	GetInputs(ctx context.Context, host string) ([]state.Input, error)
	GetVideoLists(ctx context.Context, host string) ([]state.VideoListInput, error)
	SendFunction(ctx context.Context, host, name string, params map[string]string) error
	SelectVideoListItem(ctx context.Context, host string, inputNumber, itemIndex int) error
	SetAutoRefreshConfig(host string, cfg state.AutoRefreshConfig)
	GetAutoRefreshConfig(host string) (state.AutoRefreshConfig, bool)
	AllAutoRefreshConfigs() map[string]state.AutoRefreshConfig
	Events() *bus.Bus
}

// Server is the HTTP front of the daemon.
type Server struct {
	svc     Service
	version string
	log     zerolog.Logger
	router  chi.Router
}

// New builds the server with its routes mounted.
func New(svc Service, version string) *Server {
	s := &Server{
		svc:     svc,
		version: version,
		log:     xlog.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(httprate.Limit(300, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Get("/autorefresh", s.handleAllAutoRefresh)
		r.Route("/connections", func(r chi.Router) {
			r.Get("/", s.handleListConnections)
			r.Post("/", s.handleConnect)
			r.Route("/{host}", func(r chi.Router) {
				r.Get("/", s.handleGetConnection)
				r.Delete("/", s.handleDisconnect)
				r.Post("/refresh", s.handleRefresh)
				r.Get("/inputs", s.handleInputs)
				r.Get("/videolists", s.handleVideoLists)
				r.Post("/videolists/{number}/select", s.handleSelect)
				r.Post("/function", s.handleFunction)
				r.Get("/autorefresh", s.handleGetAutoRefresh)
				r.Put("/autorefresh", s.handleSetAutoRefresh)
			})
		})
	})
	return r
}

// requestID attaches a request id to the context and response so log
// lines across the daemon can be correlated with one API call.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(xlog.ContextWithRequestID(r.Context(), id)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected, reconnecting := s.svc.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"connections": map[string]int{
			"connected":    connected,
			"reconnecting": reconnecting,
		},
	})
}

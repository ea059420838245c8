// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	xlog "github.com/ManuGH/vmixd/internal/log"
	"github.com/ManuGH/vmixd/internal/manager"
	"github.com/ManuGH/vmixd/internal/state"
)

type connectRequest struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Transport string `json:"transport"`
	Label     string `json:"label"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, errors.New("invalid request body"))
		return
	}
	if req.Host == "" {
		writeBadRequest(w, errors.New("host is required"))
		return
	}
	kind := state.TransportKind(req.Transport)
	if req.Transport != "" && !kind.Valid() {
		writeBadRequest(w, errors.New("transport must be http or tcp"))
		return
	}
	if req.Port < 0 || req.Port > 65535 {
		writeBadRequest(w, errors.New("port out of range"))
		return
	}

	rec, err := s.svc.Connect(r.Context(), manager.ConnectRequest{
		Host:      req.Host,
		Port:      req.Port,
		Transport: kind,
		Label:     req.Label,
	})
	if err != nil {
		logger := xlog.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(err).Str("event", "api.connect_failed").Str("host", req.Host).Msg("connect failed")
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Statuses())
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")
	for _, rec := range s.svc.Statuses() {
		if rec.Host == host {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeNotFound(w)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Disconnect(r.Context(), chi.URLParam(r, "host")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Refresh(r.Context(), chi.URLParam(r, "host")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInputs(w http.ResponseWriter, r *http.Request) {
	inputs, err := s.svc.GetInputs(r.Context(), chi.URLParam(r, "host"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inputs)
}

func (s *Server) handleVideoLists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.svc.GetVideoLists(r.Context(), chi.URLParam(r, "host"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

type selectRequest struct {
	Index int `json:"index"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number < 1 {
		writeBadRequest(w, errors.New("input number must be a positive integer"))
		return
	}
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, errors.New("invalid request body"))
		return
	}
	if req.Index < 0 {
		writeBadRequest(w, errors.New("index must not be negative"))
		return
	}
	if err := s.svc.SelectVideoListItem(r.Context(), chi.URLParam(r, "host"), number, req.Index); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type functionRequest struct {
	Function string            `json:"function"`
	Params   map[string]string `json:"params"`
}

func (s *Server) handleFunction(w http.ResponseWriter, r *http.Request) {
	var req functionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, errors.New("invalid request body"))
		return
	}
	if req.Function == "" {
		writeBadRequest(w, errors.New("function name is required"))
		return
	}
	if err := s.svc.SendFunction(r.Context(), chi.URLParam(r, "host"), req.Function, req.Params); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAllAutoRefresh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.AllAutoRefreshConfigs())
}

func (s *Server) handleGetAutoRefresh(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.svc.GetAutoRefreshConfig(chi.URLParam(r, "host"))
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSetAutoRefresh(w http.ResponseWriter, r *http.Request) {
	var cfg state.AutoRefreshConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeBadRequest(w, errors.New("invalid request body"))
		return
	}
	s.svc.SetAutoRefreshConfig(chi.URLParam(r, "host"), cfg)
	writeJSON(w, http.StatusOK, cfg)
}

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"i4.energy/across/lmsgw/laser"
	"i4.energy/across/lmsgw/sopas"
)

const maxCommandBody = 64 << 10

// Server handles incoming HTTP requests for interacting with the
// configured scanner session
type Server struct {
	Logger zerolog.Logger
	Device Device
	// Token, if set, is required as a bearer token on command requests.
	Token string
	// Metrics is optional.
	Metrics *Metrics

	once sync.Once
	mux  *http.ServeMux
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.once.Do(s.routes)

	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(sw, r)

	if s.Metrics != nil {
		_, pattern := s.mux.Handler(r)
		s.Metrics.RecordHTTPRequest(r.Method, pattern, sw.status, time.Since(start))
	}
}

func (s *Server) routes() {
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /commands/{kind}", s.handleCommand)
	s.mux.HandleFunc("GET /commands", s.handleKinds)
	s.mux.HandleFunc("GET /state", s.handleState)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.Metrics != nil {
		s.mux.Handle("GET /metrics", s.Metrics.Handler())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	s.sendJSON(w, ErrorResponse{Message: message}, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.Token == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && token == s.Token
}

// handleCommand builds a command from the path kind and the JSON body and
// queues it on the session.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCommandBody))
	if err != nil {
		status := http.StatusBadRequest
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			status = http.StatusRequestEntityTooLarge
		}
		s.sendError(w, err.Error(), status)
		return
	}

	cmd, err := sopas.UnmarshalCommand(r.PathValue("kind"), body)
	switch {
	case errors.Is(err, sopas.ErrUnknownCommand):
		s.sendError(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.Device.Send(cmd); err != nil {
		s.Logger.Error().Err(err).Stringer("command", cmd).Msg("Failed to send command")
		s.sendError(w, err.Error(), sendStatus(err))
		return
	}

	s.Logger.Info().Stringer("command", cmd).Msg("Command queued")

	type CommandResponse struct {
		Status  string        `json:"status"`
		Command sopas.Command `json:"command"`
	}
	s.sendJSON(w, CommandResponse{Status: "queued", Command: cmd}, http.StatusAccepted)
}

func sendStatus(err error) int {
	var uerr *sopas.UnsupportedCommandError
	switch {
	case errors.As(err, &uerr):
		return http.StatusBadRequest
	case errors.Is(err, laser.ErrNotConnected), errors.Is(err, laser.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	kinds := sopas.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.String())
	}
	s.sendJSON(w, names, http.StatusOK)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	type StateResponse struct {
		Address string      `json:"address"`
		State   laser.State `json:"state"`
		Pending int         `json:"pending"`
	}
	s.sendJSON(w, StateResponse{
		Address: s.Device.Address(),
		State:   s.Device.State(),
		Pending: s.Device.Pending(),
	}, http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

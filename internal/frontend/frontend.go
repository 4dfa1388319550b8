// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package frontend implements the public-facing HTTP server: one route
// per endpoint definition that enqueues the request and blocks for the
// correlated reply, a metrics route, and the built-in administrative
// routes that bypass the Engine but still flow through the Queue.
package frontend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coco/internal/coerr"
	"coco/internal/endpoint"
	"coco/internal/logging"
	"coco/internal/queue"
	"coco/internal/worker"
)

// Server is the controller's public HTTP surface.
type Server struct {
	defs            map[string]*endpoint.Definition
	q               queue.Queue
	log             *logging.Logger
	frontendTimeout time.Duration
	httpServer      *http.Server
}

// New constructs a Server. frontendTimeout bounds how long a request
// blocks waiting for the Worker's reply before the Frontend answers
// with a 500 internal timeout error.
func New(addr string, defs map[string]*endpoint.Definition, q queue.Queue, frontendTimeout time.Duration, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Default
	}
	s := &Server{defs: defs, q: q, log: log, frontendTimeout: frontendTimeout}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: frontendTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/blocklist", s.admin(worker.AdminBlocklist))
	mux.HandleFunc("/update-blocklist", s.admin(worker.AdminUpdateBlocklist))
	mux.HandleFunc("/wait", s.admin(worker.AdminWait))
	mux.HandleFunc("/reset-state", s.admin(worker.AdminResetState))
	mux.HandleFunc("/save-state", s.admin(worker.AdminSaveState))
	mux.HandleFunc("/load-state", s.admin(worker.AdminLoadState))
	mux.HandleFunc("/saved-states", s.admin(worker.AdminSavedStates))

	mux.HandleFunc("/", s.handleEndpoint)
}

// ListenAndServe starts the HTTP server. It blocks until the server
// stops, returning http.ErrServerClosed on a graceful Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("frontend listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) admin(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(r)
		s.enqueueAndReply(w, r, name, body)
	}
}

// handleEndpoint routes GET|POST /{endpoint} to the named endpoint
// definition, rejecting unknown endpoints and disallowed methods
// before ever touching the Queue.
func (s *Server) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, coerr.InvalidPathError("unknown path %q", r.URL.Path))
		return
	}
	def, ok := s.defs[name]
	if !ok {
		writeError(w, coerr.InvalidPathError("unknown endpoint %q", name))
		return
	}
	if r.Method != def.Method {
		writeError(w, coerr.InvalidMethodError("endpoint %q requires %s", name, def.Method))
		return
	}

	body := decodeBody(r)
	s.enqueueAndReply(w, r, name, body)
}

func (s *Server) enqueueAndReply(w http.ResponseWriter, r *http.Request, name string, body map[string]any) {
	e := queue.NewEntry(name, r.Method, body, r.URL.Query())

	ctx, cancel := context.WithTimeout(r.Context(), s.frontendTimeout)
	defer cancel()

	if err := s.q.Push(ctx, e); err != nil {
		if err == queue.ErrFull {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": err.Error()})
			return
		}
		writeError(w, err)
		return
	}

	select {
	case reply := <-e.Reply:
		if reply.Err != nil {
			writeError(w, reply.Err)
			return
		}
		writeJSON(w, http.StatusOK, reply.Report)
	case <-ctx.Done():
		writeError(w, coerr.InternalError("timed out awaiting reply for %q", name))
	}
}

func decodeBody(r *http.Request) map[string]any {
	if r.Body == nil {
		return map[string]any{}
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return map[string]any{}
	}
	if body == nil {
		body = map[string]any{}
	}
	return body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if ce, ok := coerr.As(err); ok {
		status = ce.StatusCode()
	}
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

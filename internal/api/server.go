// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package api is the operational HTTP surface: status inspection,
// force-reconnect/resubscribe, the global notification gate, the
// force-next escape hatch, and Prometheus metrics.
//
// This surface is operational control only, not part of the data path.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/pipeline"
	"github.com/tomtom215/killfeed/internal/stream"
)

// StreamController is the slice of the stream client the surface needs.
type StreamController interface {
	Status() stream.Status
	ForceReconnect()
	ForceResubscribe()
}

// PipelineController is the slice of the orchestrator the surface needs.
type PipelineController interface {
	Counters() pipeline.Counters
	NotificationsEnabled() bool
	SetNotificationsEnabled(bool)
	ForceNext()
}

// statusResponse is the /api/status body.
type statusResponse struct {
	Stream               stream.Status     `json:"stream"`
	Pipeline             pipeline.Counters `json:"pipeline"`
	NotificationsEnabled bool              `json:"notifications_enabled"`
}

// Server serves the operational surface.
type Server struct {
	cfg    config.ServerConfig
	stream StreamController
	pipe   PipelineController
}

// NewServer creates the operational HTTP server.
func NewServer(cfg config.ServerConfig, streamCtl StreamController, pipeCtl PipelineController) *Server {
	return &Server{cfg: cfg, stream: streamCtl, pipe: pipeCtl}
}

// Serve implements suture.Service: listens until the context is canceled,
// then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.Timeout,
		WriteTimeout:      s.cfg.Timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logging.Info().Str("addr", srv.Addr).Msg("operational surface listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Server) String() string {
	return "http-server"
}

// Router builds the chi route tree. Exposed for handler tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/stream", func(r chi.Router) {
			r.Post("/reconnect", s.handleReconnect)
			r.Post("/resubscribe", s.handleResubscribe)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Post("/enable", s.handleNotifications(true))
			r.Post("/disable", s.handleNotifications(false))
		})

		r.Post("/debug/force-next", s.handleForceNext)
	})

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Stream:               s.stream.Status(),
		Pipeline:             s.pipe.Counters(),
		NotificationsEnabled: s.pipe.NotificationsEnabled(),
	})
}

func (s *Server) handleReconnect(w http.ResponseWriter, _ *http.Request) {
	s.stream.ForceReconnect()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconnecting"})
}

func (s *Server) handleResubscribe(w http.ResponseWriter, _ *http.Request) {
	s.stream.ForceResubscribe()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "resubscribing"})
}

func (s *Server) handleNotifications(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.pipe.SetNotificationsEnabled(enabled)
		writeJSON(w, http.StatusOK, map[string]bool{"notifications_enabled": enabled})
	}
}

func (s *Server) handleForceNext(w http.ResponseWriter, _ *http.Request) {
	s.pipe.ForceNext()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "next killmail will notify"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

// SPDX-License-Identifier: MIT

// Package api exposes the room lifecycle over HTTP. Handlers stay thin:
// validation and JSON shaping here, all session semantics in lifecycle.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parlorvoice/parlor/internal/config"
	"github.com/parlorvoice/parlor/internal/lifecycle"
	"github.com/parlorvoice/parlor/internal/registry"
)

// SessionService is the orchestrator surface the handlers need.
type SessionService interface {
	CreateSession(ctx context.Context, req lifecycle.CreateRequest) (lifecycle.SessionInfo, error)
	Snapshot() []lifecycle.SessionInfo
}

// CleanupService is the coordinator surface the handlers need.
type CleanupService interface {
	Trigger(ctx context.Context, roomName string, reason registry.Reason) bool
}

// SessionCounter reports how many sessions are currently registered.
type SessionCounter interface {
	Len() int
}

var errAtCapacity = errors.New("session capacity reached")

// Server holds the HTTP dependencies. Construct with NewServer and mount
// Routes on an http.Server.
type Server struct {
	cfg      config.AppConfig
	sessions SessionService
	cleanup  CleanupService
	health   healthcheck.Handler
}

func NewServer(cfg config.AppConfig, sessions SessionService, cleanup CleanupService, counter SessionCounter) *Server {
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(500))
	if hostport := dialTarget(cfg.DailyAPIBase); hostport != "" {
		health.AddReadinessCheck("room-provider", healthcheck.TCPDialCheck(hostport, 2*time.Second))
	}
	if cfg.MaxSessions > 0 {
		health.AddReadinessCheck("session-capacity", func() error {
			if counter.Len() >= cfg.MaxSessions {
				return errAtCapacity
			}
			return nil
		})
	}

	return &Server{
		cfg:      cfg,
		sessions: sessions,
		cleanup:  cleanup,
		health:   health,
	}
}

// dialTarget turns the room provider base URL into a host:port for the
// readiness TCP check. Empty when no provider is configured (tests).
func dialTarget(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "http" {
		return u.Host + ":80"
	}
	return u.Host + ":443"
}

// Routes builds the chi router with the full middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(accessLog)
	r.Use(recoverer)
	if s.cfg.CORSEnabled {
		r.Use(corsAllowAll)
	}
	if s.cfg.RateLimitRPM > 0 {
		r.Use(rateLimit(s.cfg.RateLimitRPM))
	}

	r.Get("/", s.handleBanner)
	r.Post("/create-room", s.handleCreateRoom)
	r.Post("/join-room", s.handleCreateRoom)
	r.Delete("/delete-room/{roomName}", s.handleDeleteRoom)
	r.Get("/processes", s.handleProcesses)
	r.Delete("/processes/{roomName}", s.handleDeleteRoom)
	r.Post("/webhooks/daily", s.handleDailyWebhook)

	r.Get("/healthz", s.health.LiveEndpoint)
	r.Get("/readyz", s.health.ReadyEndpoint)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

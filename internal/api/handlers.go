// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parlorvoice/parlor/internal/config"
	"github.com/parlorvoice/parlor/internal/daily"
	"github.com/parlorvoice/parlor/internal/lifecycle"
	"github.com/parlorvoice/parlor/internal/log"
	"github.com/parlorvoice/parlor/internal/registry"
	"github.com/parlorvoice/parlor/internal/version"
)

const maxBodyBytes = 64 << 10

type createRoomRequest struct {
	RoomName string `json:"room_name"`
	Voice    string `json:"voice"`
	Flow     string `json:"flow"`
}

// handleBanner answers the root path with a small service descriptor. The
// public demo frontend probes this before rendering its call screen.
func (s *Server) handleBanner(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "parlord",
		"version": version.Version,
		"status":  "ok",
	})
}

// handleCreateRoom serves both POST /create-room and POST /join-room: an
// empty or absent body gets a fresh room with default voice and flow, a
// room_name naming a live session joins it.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeBadRequest(w, errors.New("unreadable request body"))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeBadRequest(w, errors.New("invalid JSON body"))
			return
		}
	}

	info, err := s.sessions.CreateSession(r.Context(), lifecycle.CreateRequest{
		RoomName: req.RoomName,
		Voice:    req.Voice,
		Flow:     req.Flow,
	})
	if err != nil {
		s.writeCreateError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) writeCreateError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.WithComponentFromContext(r.Context(), "http")

	var apiErr *daily.APIError
	switch {
	case errors.Is(err, config.ErrInvalidValue):
		writeBadRequest(w, err)
	case errors.Is(err, lifecycle.ErrTooManySessions):
		writeServiceUnavailable(w, err)
	case errors.As(err, &apiErr):
		logger.Error().Err(err).Msg("room provider call failed")
		writeBadGateway(w)
	default:
		logger.Error().Err(err).Msg("session creation failed")
		writeInternal(w)
	}
}

// handleDeleteRoom triggers manual cleanup. Tearing down an absent or
// already-cleaning room is a no-op, reported in the response rather than as
// an error status.
func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomName := chi.URLParam(r, "roomName")
	cleaned := s.cleanup.Trigger(r.Context(), roomName, registry.ReasonManual)
	writeJSON(w, http.StatusOK, map[string]any{
		"room_name": roomName,
		"cleaned":   cleaned,
	})
}

// handleProcesses exposes the live registry for operators.
func (s *Server) handleProcesses(w http.ResponseWriter, _ *http.Request) {
	snap := s.sessions.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(snap),
		"processes": snap,
	})
}

// dailyWebhookEvent is the envelope Daily POSTs to registered webhook URLs.
// Only participant.left is acted on; everything else is acknowledged.
type dailyWebhookEvent struct {
	Type    string `json:"type"`
	Payload struct {
		Room string `json:"room"`
	} `json:"payload"`
}

func (s *Server) handleDailyWebhook(w http.ResponseWriter, r *http.Request) {
	var ev dailyWebhookEvent
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&ev); err != nil {
		writeBadRequest(w, errors.New("invalid webhook payload"))
		return
	}

	if ev.Type == "participant.left" && ev.Payload.Room != "" {
		s.cleanup.Trigger(r.Context(), ev.Payload.Room, registry.ReasonParticipantLeft)
	} else {
		logger := log.WithComponentFromContext(r.Context(), "http")
		logger.Debug().Str(log.FieldEvent, ev.Type).Msg("ignoring webhook event")
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// SPDX-License-Identifier: MIT

// Package bot is the worker side of a parlor session. The conversation
// pipeline itself lives behind the Runner interface; everything here is the
// process scaffolding parlord relies on: flag-driven configuration and a
// clean exit when the room ends or SIGTERM arrives.
package bot

import (
	"context"
	"errors"
	"time"

	"github.com/parlorvoice/parlor/internal/log"
)

// Config is the per-session bundle handed to the worker on its command line.
type Config struct {
	RoomURL         string
	Token           string
	Voice           string // public selector ("female", "male")
	VoiceID         string // resolved TTS provider voice id
	Flow            string
	SessionDuration time.Duration // 0 = run until the room ends or SIGTERM
}

// ErrMissingRoomURL rejects a worker launched without a room to join.
var ErrMissingRoomURL = errors.New("bot: room URL is required")

// Runner drives one conversation in one room. Run must return once ctx is
// cancelled; returning nil means the conversation ended cleanly.
type Runner interface {
	Run(ctx context.Context, cfg Config) error
}

// StubRunner is the shipped default: it joins nothing and idles until the
// session duration elapses or ctx is cancelled. Deployments link their real
// pipeline in its place; integration tests and local bring-up use it as-is.
type StubRunner struct{}

func (StubRunner) Run(ctx context.Context, cfg Config) error {
	logger := log.WithComponent("bot")
	logger.Info().
		Str(log.FieldRoomURL, cfg.RoomURL).
		Str(log.FieldVoice, cfg.Voice).
		Str(log.FieldFlow, cfg.Flow).
		Msg("session started")

	var expired <-chan time.Time
	if cfg.SessionDuration > 0 {
		timer := time.NewTimer(cfg.SessionDuration)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("session interrupted, leaving room")
	case <-expired:
		logger.Info().Msg("session duration elapsed, leaving room")
	}
	return nil
}

// Main is the shared entry point for the worker binary: validate, run,
// map the outcome to an exit code.
func Main(ctx context.Context, r Runner, cfg Config) int {
	logger := log.WithComponent("bot")

	if cfg.RoomURL == "" {
		logger.Error().Err(ErrMissingRoomURL).Msg("refusing to start")
		return 2
	}

	if err := r.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("session failed")
		return 1
	}
	return 0
}

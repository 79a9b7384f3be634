// SPDX-License-Identifier: MIT

// Package lifecycle couples every room to exactly one bot process and
// guarantees the pair is torn down together: the Coordinator performs
// at-most-once cleanup per room, the Orchestrator builds sessions and is the
// only other component allowed to request teardown (through the same
// Trigger entry point).
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/parlorvoice/parlor/internal/daily"
	"github.com/parlorvoice/parlor/internal/log"
	"github.com/parlorvoice/parlor/internal/metrics"
	"github.com/parlorvoice/parlor/internal/registry"
)

// RoomDeleter is what cleanup needs from the room provider.
type RoomDeleter interface {
	DeleteRoom(ctx context.Context, name string) error
}

// roomDeleteRetries bounds how often a failing remote delete is retried
// before the room is abandoned. 2 retries = 3 attempts total.
const roomDeleteRetries = 2

// Coordinator performs idempotent room teardown. Any number of trigger
// sources may call Trigger concurrently for the same room; exactly one
// execution performs the side effects.
type Coordinator struct {
	reg   *registry.Registry
	rooms RoomDeleter
	grace time.Duration
}

func NewCoordinator(reg *registry.Registry, rooms RoomDeleter, grace time.Duration) *Coordinator {
	return &Coordinator{reg: reg, rooms: rooms, grace: grace}
}

// Trigger runs the teardown state machine for one room. It returns true if
// this call won the cleanup transition and executed the side effects, false
// if the room was absent or another trigger got there first. Errors during
// teardown are logged and absorbed; the session always reaches terminated.
func (c *Coordinator) Trigger(ctx context.Context, roomName string, reason registry.Reason) bool {
	logger := log.WithComponentFromContext(ctx, "cleanup").With().
		Str(log.FieldRoom, roomName).
		Str(log.FieldReason, string(reason)).
		Logger()

	sess, err := c.reg.Get(roomName)
	if err != nil {
		logger.Debug().Msg("trigger for unknown room, nothing to do")
		metrics.IncCleanupDuplicate()
		return false
	}

	if !sess.BeginCleanup(reason) {
		logger.Debug().
			Str("winner", string(sess.CleanupReason())).
			Msg("cleanup already in progress, ignoring trigger")
		metrics.IncCleanupDuplicate()
		return false
	}

	logger.Info().
		Str(log.FieldNewState, registry.StateCleaningUp.String()).
		Msg("tearing down room")

	// 1. Delete the remote room. A leaked remote room is preferable to a
	// leaked process, so failures are logged and teardown continues.
	c.deleteRemote(ctx, roomName, logger)

	// 2. Terminate the worker, graceful then forced. Never fails.
	if sess.Worker != nil {
		if forced := sess.Worker.Terminate(ctx, c.grace); forced {
			logger.Warn().Int(log.FieldPID, sess.Worker.PID()).Msg("worker required forced termination")
		}
	}

	// 3. Drop the registry entry; the session reaches its terminal state.
	c.reg.Remove(roomName)
	sess.MarkTerminated()
	metrics.IncCleanup(string(reason))

	logger.Info().
		Str(log.FieldNewState, registry.StateTerminated.String()).
		Msg("room torn down")
	return true
}

func (c *Coordinator) deleteRemote(ctx context.Context, roomName string, logger zerolog.Logger) {
	op := func() error {
		err := c.rooms.DeleteRoom(ctx, roomName)
		if errors.Is(err, daily.ErrNotFound) {
			return nil // already gone upstream, fine
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, roomDeleteRetries), ctx))
	if err != nil {
		metrics.IncRoomDeleteFailure()
		logger.Error().Err(err).Msg("abandoning remote room deletion after retries")
	}
}

// DrainAll tears down every registered session with reason signal, in
// parallel, bounded by ctx. Used on process shutdown so no live room is
// abandoned; the caller supplies the overall deadline.
func (c *Coordinator) DrainAll(ctx context.Context) {
	sessions := c.reg.List()
	if len(sessions) == 0 {
		return
	}

	logger := log.WithComponent("cleanup")
	logger.Info().Int("sessions", len(sessions)).Msg("draining all sessions")

	g := new(errgroup.Group)
	for _, sess := range sessions {
		roomName := sess.RoomName
		g.Go(func() error {
			c.Trigger(ctx, roomName, registry.ReasonSignal)
			return nil
		})
	}
	_ = g.Wait()

	logger.Info().Int("remaining", c.reg.Len()).Msg("drain complete")
}

// SPDX-License-Identifier: MIT

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parlorvoice/parlor/internal/config"
	"github.com/parlorvoice/parlor/internal/daily"
	"github.com/parlorvoice/parlor/internal/log"
	"github.com/parlorvoice/parlor/internal/metrics"
	"github.com/parlorvoice/parlor/internal/registry"
	"github.com/parlorvoice/parlor/internal/worker"
)

// ErrTooManySessions is returned when PARLOR_MAX_SESSIONS is reached.
var ErrTooManySessions = errors.New("lifecycle: session capacity reached")

// RoomProvider is what session creation needs from the room provider.
type RoomProvider interface {
	CreateRoom(ctx context.Context, name string, ttl time.Duration) (daily.Room, error)
	GetRoom(ctx context.Context, name string) (daily.Room, error)
	DeleteRoom(ctx context.Context, name string) error
}

// WorkerFactory spawns a bot process. Defaults to worker.Start; tests
// inject stubs.
type WorkerFactory func(cfg worker.Config) (registry.Worker, error)

// DefaultWorkerFactory adapts worker.Start to the factory signature. The
// error path must return an untyped nil: a (*worker.Handle)(nil) wrapped in
// the interface would slip past every Worker != nil guard downstream.
func DefaultWorkerFactory(cfg worker.Config) (registry.Worker, error) {
	h, err := worker.Start(cfg)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// CreateRequest is a validated-on-entry session request.
type CreateRequest struct {
	RoomName string
	Voice    string
	Flow     string
}

// SessionInfo is what callers get back about a session.
type SessionInfo struct {
	RoomName  string          `json:"room_name"`
	RoomURL   string          `json:"room_url"`
	Voice     string          `json:"voice"`
	Flow      string          `json:"flow"`
	State     string          `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
	Proc      worker.ProcStat `json:"process"`
}

// Orchestrator is the top-level entry point for creating sessions. It owns
// the reaper goroutines that watch workers for self-exit.
type Orchestrator struct {
	reg       *registry.Registry
	rooms     RoomProvider
	coord     *Coordinator
	cfg       config.AppConfig
	newWorker WorkerFactory

	rootCtx context.Context
	reapers sync.WaitGroup
}

// NewOrchestrator wires the orchestrator. rootCtx bounds the reaper
// goroutines: once it is cancelled the shutdown drain owns all cleanup.
func NewOrchestrator(rootCtx context.Context, cfg config.AppConfig, reg *registry.Registry, rooms RoomProvider, coord *Coordinator, factory WorkerFactory) *Orchestrator {
	if factory == nil {
		factory = DefaultWorkerFactory
	}
	return &Orchestrator{
		reg:       reg,
		rooms:     rooms,
		coord:     coord,
		cfg:       cfg,
		newWorker: factory,
		rootCtx:   rootCtx,
	}
}

// CreateSession allocates a room, spawns its worker, registers both and
// returns the room URL. A request naming an already-registered room joins
// it: the existing session is returned and no second worker is spawned.
//
// If the remote room is created but the worker cannot start (or fails its
// startup health window), the same Trigger path used everywhere else cleans
// up the partial state so the fresh room is not leaked.
func (o *Orchestrator) CreateSession(ctx context.Context, req CreateRequest) (SessionInfo, error) {
	voice, _, err := config.ResolveVoice(req.Voice)
	if err != nil {
		metrics.IncSessionStarted("invalid")
		return SessionInfo{}, err
	}
	flow, err := config.ResolveFlow(req.Flow)
	if err != nil {
		metrics.IncSessionStarted("invalid")
		return SessionInfo{}, err
	}

	// Join semantics: an already-registered room is reused as-is.
	if req.RoomName != "" {
		if existing, err := o.reg.Get(req.RoomName); err == nil {
			metrics.IncSessionStarted("duplicate")
			return o.info(existing), nil
		}
	}

	if o.cfg.MaxSessions > 0 && o.reg.Len() >= o.cfg.MaxSessions {
		metrics.IncSessionStarted("capacity")
		return SessionInfo{}, ErrTooManySessions
	}

	roomName := req.RoomName
	if roomName == "" {
		roomName = "parlor-" + uuid.NewString()[:8]
	}

	ctx = log.ContextWithRoom(ctx, roomName)
	logger := log.WithComponentFromContext(ctx, "orchestrator")

	room, err := o.rooms.CreateRoom(ctx, roomName, o.cfg.RoomTTL)
	if err != nil && req.RoomName != "" && errors.Is(err, daily.ErrBadResponse) {
		// A named room can already exist upstream (hand-created, or left by
		// an earlier daemon run); adopt it instead of failing the join.
		room, err = o.rooms.GetRoom(ctx, roomName)
		if err == nil {
			logger.Info().Msg("adopted existing remote room")
		}
	}
	if err != nil {
		metrics.IncSessionStarted("room_error")
		return SessionInfo{}, fmt.Errorf("create room: %w", err)
	}

	w, spawnErr := o.newWorker(worker.Config{
		BotPath:  o.cfg.BotPath,
		RoomName: room.Name,
		RoomURL:  room.URL,
		Voice:    voice,
		Flow:     flow,
	})

	// Register even a failed spawn so the error path below runs through the
	// one and only teardown entry point instead of duplicating it here.
	sess := registry.NewSession(room.Name, room.URL, voice, flow, w)
	if err := o.reg.Insert(sess); err != nil {
		// Lost a naming race. Reuse the winner; our own half-built state
		// must still be torn down.
		logger.Warn().Msg("concurrent session for same room, reusing existing")
		if w != nil {
			w.Terminate(ctx, o.cfg.GraceTimeout)
		}
		if existing, getErr := o.reg.Get(room.Name); getErr == nil {
			metrics.IncSessionStarted("duplicate")
			return o.info(existing), nil
		}
		metrics.IncSessionStarted("room_error")
		return SessionInfo{}, fmt.Errorf("create room: %w", registry.ErrDuplicateRoom)
	}

	if spawnErr == nil {
		spawnErr = w.ConfirmStartup(ctx, o.cfg.StartupWindow)
	}
	if spawnErr != nil {
		logger.Error().Err(spawnErr).Msg("worker failed to start, cleaning up room")
		o.coord.Trigger(ctx, room.Name, registry.ReasonError)
		metrics.IncSessionStarted("spawn_error")
		return SessionInfo{}, fmt.Errorf("start worker: %w", spawnErr)
	}

	if !sess.MarkActive() {
		// A cleanup trigger fired during the startup window and won.
		metrics.IncSessionStarted("spawn_error")
		return SessionInfo{}, fmt.Errorf("start worker: %w: session torn down during startup", worker.ErrSpawn)
	}

	o.watchWorker(sess)

	logger.Info().
		Str(log.FieldRoomURL, room.URL).
		Str(log.FieldVoice, voice).
		Str(log.FieldFlow, flow).
		Int(log.FieldPID, w.PID()).
		Msg("session active")
	metrics.IncSessionStarted("ok")
	return o.info(sess), nil
}

// watchWorker converges worker self-exit onto the same cleanup state
// machine as every external trigger: a conversation that ends naturally
// tears its room down exactly like a participant-left webhook would.
func (o *Orchestrator) watchWorker(sess *registry.Session) {
	o.reapers.Add(1)
	go func() {
		defer o.reapers.Done()
		select {
		case <-o.rootCtx.Done():
			// Shutdown drain owns cleanup from here.
			return
		case <-sess.Worker.Exited():
			reason := registry.ReasonParticipantLeft
			if sess.Worker.ExitErr() != nil {
				reason = registry.ReasonError
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			o.coord.Trigger(log.ContextWithRoom(ctx, sess.RoomName), sess.RoomName, reason)
		}
	}()
}

// Wait blocks until all reaper goroutines have finished. Called during
// shutdown after the root context is cancelled.
func (o *Orchestrator) Wait() {
	o.reapers.Wait()
}

func (o *Orchestrator) info(sess *registry.Session) SessionInfo {
	si := SessionInfo{
		RoomName:  sess.RoomName,
		RoomURL:   sess.RoomURL,
		Voice:     sess.Voice,
		Flow:      sess.Flow,
		State:     sess.State().String(),
		CreatedAt: sess.CreatedAt,
	}
	if sess.Worker != nil {
		si.Proc = sess.Worker.Stat()
	}
	return si
}

// Snapshot lists all current sessions for the operator view.
func (o *Orchestrator) Snapshot() []SessionInfo {
	sessions := o.reg.List()
	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, o.info(sess))
	}
	return out
}

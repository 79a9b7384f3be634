// SPDX-License-Identifier: MIT

package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorvoice/parlor/internal/config"
	"github.com/parlorvoice/parlor/internal/daily"
	"github.com/parlorvoice/parlor/internal/registry"
	"github.com/parlorvoice/parlor/internal/worker"
)

// stubFactory hands out stubWorkers and records every spawn.
type stubFactory struct {
	mu       sync.Mutex
	spawned  []*stubWorker
	spawnErr error
	next     func() *stubWorker
}

func (f *stubFactory) new(cfg worker.Config) (registry.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	w := newStubWorker()
	if f.next != nil {
		w = f.next()
	}
	f.spawned = append(f.spawned, w)
	return w, nil
}

func (f *stubFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spawned)
}

func testConfig() config.AppConfig {
	return config.AppConfig{
		DailyAPIKey:   "test-key",
		BotPath:       "parlor-bot",
		RoomTTL:       5 * time.Minute,
		StartupWindow: 50 * time.Millisecond,
		GraceTimeout:  100 * time.Millisecond,
	}
}

func newTestOrchestrator(t *testing.T, cfg config.AppConfig, rooms *stubRooms, factory *stubFactory) (*Orchestrator, *registry.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	reg := registry.New()
	coord := NewCoordinator(reg, rooms, cfg.GraceTimeout)
	orch := NewOrchestrator(ctx, cfg, reg, rooms, coord, factory.new)
	t.Cleanup(func() {
		cancel()
		orch.Wait()
	})
	return orch, reg
}

func TestCreateSessionHappyPath(t *testing.T) {
	rooms := &stubRooms{}
	factory := &stubFactory{}
	orch, reg := newTestOrchestrator(t, testConfig(), rooms, factory)

	info, err := orch.CreateSession(context.Background(), CreateRequest{Voice: "female", Flow: "food-order"})

	require.NoError(t, err)
	assert.NotEmpty(t, info.RoomName)
	assert.Equal(t, "https://parlor.daily.co/"+info.RoomName, info.RoomURL)
	assert.Equal(t, "active", info.State)
	assert.Equal(t, 4242, info.Proc.PID)
	assert.Equal(t, 1, factory.count())
	assert.Equal(t, 1, reg.Len())
}

func TestCreateSessionDefaultsAndExplicitVoice(t *testing.T) {
	rooms := &stubRooms{}
	factory := &stubFactory{}
	orch, _ := newTestOrchestrator(t, testConfig(), rooms, factory)

	// Empty selectors fall back to defaults.
	info, err := orch.CreateSession(context.Background(), CreateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "female", info.Voice)
	assert.Equal(t, "food-order", info.Flow)

	info, err = orch.CreateSession(context.Background(), CreateRequest{Voice: "male", Flow: "restaurant-reservation"})
	require.NoError(t, err)
	assert.Equal(t, "male", info.Voice)
	assert.Equal(t, "restaurant-reservation", info.Flow)
}

func TestCreateSessionRejectsUnknownVoice(t *testing.T) {
	rooms := &stubRooms{}
	factory := &stubFactory{}
	orch, _ := newTestOrchestrator(t, testConfig(), rooms, factory)

	_, err := orch.CreateSession(context.Background(), CreateRequest{Voice: "robot"})

	require.ErrorIs(t, err, config.ErrInvalidValue)
	assert.Empty(t, rooms.created)
	assert.Zero(t, factory.count())
}

func TestCreateSessionRejectsUnknownFlow(t *testing.T) {
	rooms := &stubRooms{}
	factory := &stubFactory{}
	orch, _ := newTestOrchestrator(t, testConfig(), rooms, factory)

	_, err := orch.CreateSession(context.Background(), CreateRequest{Flow: "world-domination"})

	require.ErrorIs(t, err, config.ErrInvalidValue)
	assert.Empty(t, rooms.created)
}

func TestCreateSessionCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessions = 1
	rooms := &stubRooms{}
	factory := &stubFactory{}
	orch, _ := newTestOrchestrator(t, cfg, rooms, factory)

	_, err := orch.CreateSession(context.Background(), CreateRequest{})
	require.NoError(t, err)

	_, err = orch.CreateSession(context.Background(), CreateRequest{})
	require.ErrorIs(t, err, ErrTooManySessions)
	assert.Equal(t, 1, factory.count())
}

func TestCreateSessionRoomProviderFailure(t *testing.T) {
	rooms := &stubRooms{createErr: errors.New("upstream down")}
	factory := &stubFactory{}
	orch, reg := newTestOrchestrator(t, testConfig(), rooms, factory)

	_, err := orch.CreateSession(context.Background(), CreateRequest{})

	require.Error(t, err)
	assert.Zero(t, factory.count())
	assert.Zero(t, reg.Len())
}

func TestCreateSessionAdoptsExistingRemoteRoom(t *testing.T) {
	rooms := &stubRooms{createErr: &daily.APIError{Sentinel: daily.ErrBadResponse, Operation: "POST /rooms", Status: 400}}
	factory := &stubFactory{}
	orch, reg := newTestOrchestrator(t, testConfig(), rooms, factory)

	// Named join: the remote room already exists, so create fails with 400
	// and the orchestrator falls back to fetching it.
	info, err := orch.CreateSession(context.Background(), CreateRequest{RoomName: "standup"})

	require.NoError(t, err)
	assert.Equal(t, "https://parlor.daily.co/standup", info.RoomURL)
	assert.Equal(t, 1, factory.count())
	assert.Equal(t, 1, reg.Len())

	// An anonymous request hitting the same upstream failure stays an error.
	_, err = orch.CreateSession(context.Background(), CreateRequest{})
	require.Error(t, err)
}

func TestCreateSessionSpawnFailureCleansUpRoom(t *testing.T) {
	rooms := &stubRooms{}
	factory := &stubFactory{spawnErr: errors.New("exec: no such file")}
	orch, reg := newTestOrchestrator(t, testConfig(), rooms, factory)

	_, err := orch.CreateSession(context.Background(), CreateRequest{})

	require.Error(t, err)
	// The freshly created remote room must not be leaked.
	require.Len(t, rooms.created, 1)
	assert.Equal(t, rooms.created, rooms.deleted)
	assert.Zero(t, reg.Len())
}

func TestDefaultWorkerFactoryErrorYieldsUntypedNil(t *testing.T) {
	w, err := DefaultWorkerFactory(worker.Config{
		BotPath:  "/nonexistent/parlor-bot",
		RoomName: "r",
		RoomURL:  "u",
		Voice:    "female",
		Flow:     "food-order",
	})

	require.ErrorIs(t, err, worker.ErrSpawn)
	assert.True(t, w == nil, "error path must not wrap a typed-nil handle in the interface")
}

func TestCreateSessionDefaultFactorySpawnFailure(t *testing.T) {
	// Exercises the real worker.Start adapter: a missing bot binary must
	// hand cleanup an untyped nil worker, not a typed-nil *worker.Handle
	// that slips past the nil guards and panics in Terminate.
	rooms := &stubRooms{}
	cfg := testConfig()
	cfg.BotPath = "/nonexistent/parlor-bot"

	ctx, cancel := context.WithCancel(context.Background())
	reg := registry.New()
	coord := NewCoordinator(reg, rooms, cfg.GraceTimeout)
	orch := NewOrchestrator(ctx, cfg, reg, rooms, coord, nil)
	t.Cleanup(func() {
		cancel()
		orch.Wait()
	})

	_, err := orch.CreateSession(context.Background(), CreateRequest{})

	require.ErrorIs(t, err, worker.ErrSpawn)
	require.Len(t, rooms.created, 1)
	assert.Equal(t, rooms.created, rooms.deleted)
	assert.Zero(t, reg.Len())
}

func TestCreateSessionStartupWindowFailureCleansUpRoom(t *testing.T) {
	rooms := &stubRooms{}
	factory := &stubFactory{next: func() *stubWorker {
		w := newStubWorker()
		w.startupErr = worker.ErrSpawn
		return w
	}}
	orch, reg := newTestOrchestrator(t, testConfig(), rooms, factory)

	_, err := orch.CreateSession(context.Background(), CreateRequest{})

	require.ErrorIs(t, err, worker.ErrSpawn)
	require.Len(t, rooms.created, 1)
	assert.Equal(t, rooms.created, rooms.deleted)
	assert.Zero(t, reg.Len())
	assert.EqualValues(t, 1, factory.spawned[0].terminated.Load())
}

func TestCreateSessionReusesExistingRoom(t *testing.T) {
	rooms := &stubRooms{}
	factory := &stubFactory{}
	orch, _ := newTestOrchestrator(t, testConfig(), rooms, factory)

	first, err := orch.CreateSession(context.Background(), CreateRequest{RoomName: "standup"})
	require.NoError(t, err)

	second, err := orch.CreateSession(context.Background(), CreateRequest{RoomName: "standup"})
	require.NoError(t, err)

	assert.Equal(t, first.RoomURL, second.RoomURL)
	assert.Equal(t, 1, factory.count())
	assert.Len(t, rooms.created, 1)
}

func TestWorkerCleanExitTriggersParticipantLeftCleanup(t *testing.T) {
	rooms := &stubRooms{}
	factory := &stubFactory{}
	orch, reg := newTestOrchestrator(t, testConfig(), rooms, factory)

	info, err := orch.CreateSession(context.Background(), CreateRequest{})
	require.NoError(t, err)

	sess, err := reg.Get(info.RoomName)
	require.NoError(t, err)

	factory.spawned[0].exit(nil)

	require.Eventually(t, func() bool {
		return reg.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, registry.ReasonParticipantLeft, sess.CleanupReason())
	assert.Equal(t, []string{info.RoomName}, rooms.deleted)
}

func TestWorkerCrashTriggersErrorCleanup(t *testing.T) {
	rooms := &stubRooms{}
	factory := &stubFactory{}
	orch, reg := newTestOrchestrator(t, testConfig(), rooms, factory)

	info, err := orch.CreateSession(context.Background(), CreateRequest{})
	require.NoError(t, err)

	sess, err := reg.Get(info.RoomName)
	require.NoError(t, err)

	factory.spawned[0].exit(errors.New("exit status 1"))

	require.Eventually(t, func() bool {
		return reg.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, registry.ReasonError, sess.CleanupReason())
}

func TestSnapshotListsSessions(t *testing.T) {
	rooms := &stubRooms{}
	factory := &stubFactory{}
	orch, _ := newTestOrchestrator(t, testConfig(), rooms, factory)

	_, err := orch.CreateSession(context.Background(), CreateRequest{RoomName: "aa"})
	require.NoError(t, err)
	_, err = orch.CreateSession(context.Background(), CreateRequest{RoomName: "bb"})
	require.NoError(t, err)

	snap := orch.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "aa", snap[0].RoomName)
	assert.Equal(t, "bb", snap[1].RoomName)
}

// SPDX-License-Identifier: MIT

package registry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/parlorvoice/parlor/internal/worker"
)

// State is the lifecycle state of a room session.
type State int32

const (
	StateStarting State = iota
	StateActive
	StateCleaningUp
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateCleaningUp:
		return "cleaning_up"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Reason records which trigger won the race into cleanup.
type Reason string

const (
	ReasonParticipantLeft Reason = "participant_left"
	ReasonManual          Reason = "manual"
	ReasonSignal          Reason = "signal"
	ReasonError           Reason = "error"
)

// Worker is the process handle a session owns. Implemented by
// *worker.Handle; narrowed to an interface so lifecycle tests can stub it.
type Worker interface {
	PID() int
	Alive() bool
	Exited() <-chan struct{}
	ExitErr() error
	ConfirmStartup(ctx context.Context, window time.Duration) error
	Terminate(ctx context.Context, grace time.Duration) (forced bool)
	Stat() worker.ProcStat
	LastLogLines(n int) []string
}

// Session is one live room plus the bot process bound to it. The session
// exclusively owns its Worker; once cleanup has been won via BeginCleanup,
// only the winning trigger path touches the worker again.
type Session struct {
	RoomName  string
	RoomURL   string
	Voice     string
	Flow      string
	CreatedAt time.Time
	Worker    Worker

	state  atomic.Int32
	reason atomic.Value // Reason, written once by the BeginCleanup winner
}

// NewSession returns a session in StateStarting.
func NewSession(roomName, roomURL, voice, flow string, w Worker) *Session {
	s := &Session{
		RoomName:  roomName,
		RoomURL:   roomURL,
		Voice:     voice,
		Flow:      flow,
		CreatedAt: time.Now(),
		Worker:    w,
	}
	s.state.Store(int32(StateStarting))
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// MarkActive transitions starting -> active once worker health is confirmed.
// Returns false if a cleanup trigger got there first.
func (s *Session) MarkActive() bool {
	return s.state.CompareAndSwap(int32(StateStarting), int32(StateActive))
}

// BeginCleanup is the single serialization point between concurrent cleanup
// triggers: exactly one caller per session wins the transition into
// cleaning_up and owns the teardown side effects. Losers observe false and
// must do nothing.
func (s *Session) BeginCleanup(reason Reason) bool {
	won := s.state.CompareAndSwap(int32(StateActive), int32(StateCleaningUp)) ||
		s.state.CompareAndSwap(int32(StateStarting), int32(StateCleaningUp))
	if won {
		s.reason.Store(reason)
	}
	return won
}

// MarkTerminated moves the session to its terminal state. Only the
// BeginCleanup winner calls this, after teardown side effects completed.
func (s *Session) MarkTerminated() {
	s.state.Store(int32(StateTerminated))
}

// CleanupReason returns the write-once reason, or "" before cleanup began.
func (s *Session) CleanupReason() Reason {
	if r, ok := s.reason.Load().(Reason); ok {
		return r
	}
	return ""
}

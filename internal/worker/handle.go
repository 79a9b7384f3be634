// SPDX-License-Identifier: MIT

// Package worker owns the spawn, supervision and termination of one
// conversation-bot process bound to one room.
package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/parlorvoice/parlor/internal/log"
	"github.com/parlorvoice/parlor/internal/metrics"
	"github.com/parlorvoice/parlor/internal/procgroup"
)

// ErrSpawn indicates the worker process could not be created or died during
// its startup window.
var ErrSpawn = errors.New("worker: spawn failed")

// Config is the bundle the bot binary is launched with.
type Config struct {
	BotPath  string
	RoomName string
	RoomURL  string
	Voice    string
	Flow     string
}

// Handle supervises exactly one spawned bot process.
type Handle struct {
	cfg       Config
	startedAt time.Time
	ring      *LineRing

	mu      sync.Mutex
	cmd     *exec.Cmd
	exitErr error

	done chan struct{} // closed once the process has exited and exitErr is set
}

// Start launches the bot asynchronously and returns immediately with a
// handle. The process runs in its own process group.
func Start(cfg Config) (*Handle, error) {
	binPath := cfg.BotPath
	args := []string{
		"-room-url", cfg.RoomURL,
		"-voice", cfg.Voice,
		"-flow", cfg.Flow,
	}

	switch cfg.Flow {
	case "sleep_test":
		binPath = "sh"
		args = []string{"-c", "sleep 60"}
	case "ignore_term_test":
		binPath = "sh"
		args = []string{"-c", "trap '' TERM; while true; do sleep 10; done"}
	case "exit_test":
		binPath = "sh"
		args = []string{"-c", "sleep 0.1"}
	case "fail_test":
		binPath = "sh"
		args = []string{"-c", "echo 'boom' >&2; exit 1"}
	}

	h := &Handle{
		cfg:  cfg,
		ring: NewLineRing(256),
		done: make(chan struct{}),
	}

	// Lifetime is owned by Terminate, not by a context: a cancelled request
	// context must not take the conversation down with it.
	cmd := exec.Command(binPath, args...) // #nosec G204 -- path comes from validated config
	procgroup.Set(cmd)
	cmd.Stdout = os.Stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	logger := log.WithComponent("worker").With().Str(log.FieldRoom, cfg.RoomName).Logger()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	h.cmd = cmd
	h.startedAt = time.Now()

	logger.Info().
		Int(log.FieldPID, cmd.Process.Pid).
		Str(log.FieldVoice, cfg.Voice).
		Str(log.FieldFlow, cfg.Flow).
		Msg("started bot process")

	var ioWg sync.WaitGroup
	ioWg.Add(1)
	go func() {
		defer ioWg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			_, _ = h.ring.Write(scanner.Bytes())
			_, _ = h.ring.Write([]byte("\n"))
		}
	}()

	go func() {
		// Drain stderr before Wait: Wait closes the pipe and may discard
		// buffered output if reads are still in flight.
		ioWg.Wait()
		err := cmd.Wait()

		h.mu.Lock()
		h.exitErr = err
		h.mu.Unlock()
		close(h.done)

		if err == nil {
			logger.Info().Int(log.FieldPID, cmd.Process.Pid).Msg("bot process exited")
		} else {
			logger.Warn().
				Err(err).
				Int(log.FieldPID, cmd.Process.Pid).
				Strs("stderr", h.ring.LastN(10)).
				Msg("bot process exited with error")
		}
	}()

	return h, nil
}

// PID returns the worker's process id.
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Exited returns a channel that is closed once the process has exited,
// whether by itself or because it was terminated.
func (h *Handle) Exited() <-chan struct{} {
	return h.done
}

// ExitErr returns the process exit error. Valid only after Exited is closed.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Alive reports whether the process is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ConfirmStartup waits for the startup window to pass. A worker that exits
// inside the window failed its health check.
func (h *Handle) ConfirmStartup(ctx context.Context, window time.Duration) error {
	if window <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return fmt.Errorf("%w: worker exited during startup window: %v", ErrSpawn, h.ExitErr())
	case <-time.After(window):
		return nil
	}
}

// Terminate requests graceful shutdown (SIGTERM to the group), waits up to
// grace, then forces SIGKILL. It always succeeds from the caller's point of
// view; forced reports whether SIGKILL was needed.
func (h *Handle) Terminate(ctx context.Context, grace time.Duration) (forced bool) {
	h.mu.Lock()
	cmd := h.cmd
	h.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return false
	}

	select {
	case <-h.done:
		return false // already exited
	default:
	}

	logger := log.WithComponent("worker").With().
		Str(log.FieldRoom, h.cfg.RoomName).
		Int(log.FieldPID, cmd.Process.Pid).
		Logger()

	// Shutdown deadline already blown: skip straight to SIGKILL.
	if ctx != nil && ctx.Err() != nil {
		h.kill(cmd, logger)
		<-h.done
		metrics.IncWorkerExit("forced_error")
		return true
	}

	if err := procgroup.Signal(cmd, syscall.SIGTERM); err == nil {
		metrics.IncWorkerTerminate("SIGTERM", "sent")
	} else {
		metrics.IncWorkerTerminate("SIGTERM", "error")
		logger.Warn().Err(err).Msg("failed to send SIGTERM")
	}

	var ctxDone <-chan struct{}
	if ctx != nil {
		ctxDone = ctx.Done()
	}

	select {
	case <-h.done:
		if h.ExitErr() == nil {
			metrics.IncWorkerExit("exit0")
		} else {
			metrics.IncWorkerExit("exit_nonzero")
		}
		return false
	case <-ctxDone:
		// Shutdown deadline expired mid-grace; stop waiting politely.
	case <-time.After(grace):
	}

	logger.Warn().Dur("grace", grace).Msg("worker ignored SIGTERM, sending SIGKILL")
	h.kill(cmd, logger)
	<-h.done
	if h.ExitErr() == nil {
		metrics.IncWorkerExit("forced_exit0")
	} else {
		metrics.IncWorkerExit("forced_error")
	}
	return true
}

func (h *Handle) kill(cmd *exec.Cmd, logger zerolog.Logger) {
	if err := procgroup.Signal(cmd, syscall.SIGKILL); err == nil {
		metrics.IncWorkerTerminate("SIGKILL", "sent")
	} else {
		metrics.IncWorkerTerminate("SIGKILL", "error")
		logger.Error().Err(err).Msg("failed to send SIGKILL")
	}
}

// LastLogLines returns the most recent stderr lines for diagnostics.
func (h *Handle) LastLogLines(n int) []string {
	return h.ring.LastN(n)
}

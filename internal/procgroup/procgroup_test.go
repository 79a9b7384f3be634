// SPDX-License-Identifier: MIT

//go:build linux

package procgroup

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetMakesGroupLeader(t *testing.T) {
	cmd := exec.Command("sleep", "60")
	Set(cmd)
	require.NoError(t, cmd.Start())
	defer func() {
		_ = Signal(cmd, syscall.SIGKILL)
		_ = cmd.Wait()
	}()

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	require.NoError(t, err)
	require.Equal(t, cmd.Process.Pid, pgid)
}

func TestSignalReachesWholeGroup(t *testing.T) {
	// The shell forks a grandchild; both must receive the signal.
	cmd := exec.Command("sh", "-c", "sleep 60 & sleep 60")
	Set(cmd)
	require.NoError(t, cmd.Start())
	pgid := cmd.Process.Pid

	require.NoError(t, Signal(cmd, syscall.SIGKILL))
	_ = cmd.Wait()

	// The grandchild may need a scheduler tick to be reaped.
	require.Eventually(t, func() bool {
		return syscall.Kill(-pgid, syscall.Signal(0)) == syscall.ESRCH
	}, 2*time.Second, 10*time.Millisecond, "process group should be dead")
}

func TestSignalToleratesDeadProcess(t *testing.T) {
	cmd := exec.Command("true")
	Set(cmd)
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())

	require.NoError(t, Signal(cmd, syscall.SIGTERM))
}

func TestSignalNilCommand(t *testing.T) {
	require.NoError(t, Signal(nil, syscall.SIGTERM))
	require.NoError(t, Signal(&exec.Cmd{}, syscall.SIGTERM))
}

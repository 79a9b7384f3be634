// SPDX-License-Identifier: MIT

// Package procgroup makes spawned bot processes group leaders so a signal
// reaches the bot and everything it forked. A worker that leaves audio
// helpers behind after its room is gone would defeat the joint-teardown
// guarantee, so termination always addresses the whole group.
package procgroup

import (
	"os/exec"
	"syscall"
)

// Set marks cmd to start as the leader of a fresh process group. Must be
// called before cmd.Start; Signal depends on it.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Signal delivers sig to the entire process group of cmd. A nil command, a
// never-started command or a group that has already vanished all count as
// success: the group being gone is the state every caller is driving toward.
func Signal(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return signalGroup(cmd.Process.Pid, sig)
}

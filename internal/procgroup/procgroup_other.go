// SPDX-License-Identifier: MIT

//go:build !unix

package procgroup

import (
	"os"
	"os/exec"
	"syscall"
)

func set(_ *exec.Cmd) {
	// No process groups here; the worker handle falls back to signalling
	// the root process only.
}

func signalGroup(pid int, _ syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return proc.Kill()
}

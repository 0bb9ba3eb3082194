// SPDX-License-Identifier: MIT

// Package procgroup starts child processes in their own process group and
// signals the whole group, so an encoder and anything it spawns can be
// reaped together.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/myth2dsv/internal/metrics"
)

// ErrKillFailed is returned when a process group survives SIGKILL for longer
// than the grace period.
var ErrKillFailed = errors.New("kill operation failed")

// Set configures the command to start in a new process group.
// Mandatory for Kill and Terminate to reach the whole tree.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Kill sends sig to the process group of cmd. A nil command, an unstarted
// command or a group that is already gone is not an error.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return kill(cmd, sig)
}

// Terminate sends SIGTERM, waits up to grace for exited to close, then
// escalates to SIGKILL and waits up to grace once more. exited must be
// closed by whoever owns cmd.Wait.
func Terminate(cmd *exec.Cmd, exited <-chan struct{}, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	signal(cmd, syscall.SIGTERM, "SIGTERM")
	select {
	case <-exited:
		metrics.IncProcWait("exited")
		return nil
	case <-time.After(grace):
	}

	signal(cmd, syscall.SIGKILL, "SIGKILL")
	select {
	case <-exited:
		metrics.IncProcWait("forced")
		return nil
	case <-time.After(grace):
		metrics.IncProcWait("timeout")
		return ErrKillFailed
	}
}

func signal(cmd *exec.Cmd, sig syscall.Signal, name string) {
	if err := Kill(cmd, sig); err != nil {
		metrics.IncProcTerminate(name, "error")
		return
	}
	metrics.IncProcTerminate(name, "sent")
}

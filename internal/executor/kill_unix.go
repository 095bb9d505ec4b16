//go:build unix

package executor

import (
	"golang.org/x/sys/unix"
)

// killNow force-kills the child and, best-effort, its process group, so
// that a worker which itself forked children (e.g. via subprocess in
// RESTRICTED-denied but still reachable native extensions) does not
// outlive the Executor. Mirrors the teacher's process-group handling in
// cmd/agent for runaway guest processes.
func (e *Executor) killNow() error {
	if e.cmd.Process == nil {
		return nil
	}
	pid := e.cmd.Process.Pid
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
		return e.cmd.Process.Kill()
	}
	return nil
}

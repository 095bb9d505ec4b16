//go:build unix

package executor

import (
	"os/exec"
	"syscall"
)

// setNewProcessGroup places the child in its own process group so
// killNow's group kill cannot reach the bridge-engine process itself.
func setNewProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

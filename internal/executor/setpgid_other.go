//go:build !unix

package executor

import "os/exec"

func setNewProcessGroup(cmd *exec.Cmd) {}

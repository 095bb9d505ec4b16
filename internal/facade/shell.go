package facade

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/langbridge/bridge-engine/internal/protocol"
)

// ShellResult is the outcome of a host-level shell command.
type ShellResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExecShell runs command as a host-level shell command. It does not
// borrow from the worker Pool, does not go through a child process,
// and is not subject to either SecurityMode — it is a side channel,
// grounded on the plain exec.CommandContext invocation style in
// cmd/agent/main.go rather than on anything in the pipe protocol.
//
// A nonzero exit status is not an error: it is reported in ExitCode.
// Only a failure to start or wait on the command at all (bad shell,
// missing /bin/sh, context cancellation before the process starts)
// returns a non-nil error.
func (f *Facade) ExecShell(ctx context.Context, command string) (ShellResult, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	result := ShellResult{}
	err := cmd.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	return result, protocol.Wrap(protocol.KindTransport, err)
}

//go:build windows

package processcontrolimpl

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// Windows has no SIGTERM; termination is a kill
func sendTerminationSignal(process *os.Process) error {
	return process.Kill()
}

func killProcess(process *os.Process) error {
	return process.Kill()
}

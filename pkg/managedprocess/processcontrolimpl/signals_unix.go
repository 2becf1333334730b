//go:build !windows

package processcontrolimpl

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group so signals reach its descendants
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func signalProcessGroup(process *os.Process, sig syscall.Signal) error {
	pgid, err := syscall.Getpgid(process.Pid)
	if err == nil {
		return syscall.Kill(-pgid, sig)
	}
	// Fallback: signal just the process
	return process.Signal(sig)
}

func sendTerminationSignal(process *os.Process) error {
	return signalProcessGroup(process, syscall.SIGTERM)
}

func killProcess(process *os.Process) error {
	return signalProcessGroup(process, syscall.SIGKILL)
}

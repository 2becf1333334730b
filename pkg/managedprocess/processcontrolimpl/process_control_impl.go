package processcontrolimpl

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/core-tools/hsu-procmaster/pkg/errors"
	"github.com/core-tools/hsu-procmaster/pkg/logging"
	"github.com/core-tools/hsu-procmaster/pkg/managedprocess"
)

// TransportOptions configures how OS processes are spawned and terminated
type TransportOptions struct {
	// Time to wait after the termination signal before killing
	GracefulTimeout time.Duration `yaml:"graceful_timeout,omitempty"`

	// Time to wait for the process to die after kill
	KillTimeout time.Duration `yaml:"kill_timeout,omitempty"`

	// Deadline for a single frame write to the child's stdin
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`

	// Bound on how long Wait keeps copying output after the child exits
	WaitDelay time.Duration `yaml:"wait_delay,omitempty"`
}

func (o TransportOptions) withDefaults() TransportOptions {
	if o.GracefulTimeout <= 0 {
		o.GracefulTimeout = 20 * time.Second
	}
	if o.KillTimeout <= 0 {
		o.KillTimeout = 5 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.WaitDelay <= 0 {
		o.WaitDelay = 2 * time.Second
	}
	return o
}

// NewOSTransport returns a managedprocess.Transport backed by os/exec.
// Messages are written to the child's stdin; its stdout and stderr are forwarded to logger.
func NewOSTransport(options TransportOptions, logger logging.Logger) managedprocess.Transport {
	return &osTransport{
		options: options.withDefaults(),
		logger:  logger,
	}
}

type osTransport struct {
	options TransportOptions
	logger  logging.Logger
}

type osHandle struct {
	name    string
	pid     int
	process *os.Process
	stdin   *os.File

	writeMutex sync.Mutex
	done       chan struct{}
	exitErr    error
}

func (h *osHandle) PID() int              { return h.pid }
func (h *osHandle) Done() <-chan struct{} { return h.done }

func (h *osHandle) ExitError() error {
	select {
	case <-h.done:
		return h.exitErr
	default:
		return nil
	}
}

func (h *osHandle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (t *osTransport) Spawn(ctx context.Context, desc managedprocess.ProcessDescription) (managedprocess.Handle, error) {
	if len(desc.Command) == 0 || desc.Command[0] == "" {
		return nil, errors.NewValidationError("command cannot be empty", nil).WithContext("name", desc.Name)
	}

	executablePath, err := exec.LookPath(desc.Command[0])
	if err != nil {
		return nil, errors.NewProcessError("executable not found", err).
			WithContext("name", desc.Name).
			WithContext("executable", desc.Command[0])
	}

	stdinReader, stdinWriter, err := os.Pipe()
	if err != nil {
		return nil, errors.NewIOError("failed to create stdin pipe", err).WithContext("name", desc.Name)
	}

	stdout := newLineWriter(t.logger, desc.Name, StdoutStream)
	stderr := newLineWriter(t.logger, desc.Name, StderrStream)

	cmd := exec.Command(executablePath, desc.Command[1:]...)
	cmd.Args[0] = desc.Command[0]
	cmd.Dir = desc.WorkingDirectory
	cmd.Env = desc.EnvironmentList()
	cmd.Stdin = stdinReader
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = t.options.WaitDelay
	setProcessGroup(cmd)

	t.logger.Debugf("Spawning process, name: %s, command: %v, working directory: %s", desc.Name, desc.Command, desc.WorkingDirectory)

	if err := cmd.Start(); err != nil {
		stdinReader.Close()
		stdinWriter.Close()
		return nil, errors.NewProcessError("failed to start process", err).
			WithContext("name", desc.Name).
			WithContext("executable", executablePath)
	}

	// The child owns the read end now
	stdinReader.Close()

	handle := &osHandle{
		name:    desc.Name,
		pid:     cmd.Process.Pid,
		process: cmd.Process,
		stdin:   stdinWriter,
		done:    make(chan struct{}),
	}

	go func() {
		handle.exitErr = cmd.Wait()
		stdout.Flush()
		stderr.Flush()
		handle.writeMutex.Lock()
		handle.stdin.Close()
		handle.writeMutex.Unlock()
		close(handle.done)
		t.logger.Infof("Process exited, name: %s, pid: %d, result: %v", handle.name, handle.pid, handle.exitErr)
	}()

	return handle, nil
}

func (t *osTransport) Terminate(ctx context.Context, h managedprocess.Handle) error {
	handle, ok := h.(*osHandle)
	if !ok || handle == nil {
		return errors.NewValidationError("handle was not produced by this transport", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	pid := handle.pid
	if handle.exited() {
		t.logger.Debugf("Process already exited, name: %s, pid: %d", handle.name, pid)
		return nil
	}

	t.logger.Infof("Sending termination signal, name: %s, pid: %d, timeout: %v", handle.name, pid, t.options.GracefulTimeout)
	if err := sendTerminationSignal(handle.process); err != nil {
		t.logger.Warnf("Failed to send termination signal, name: %s, pid: %d, error: %v", handle.name, pid, err)
	}

	timer := time.NewTimer(t.options.GracefulTimeout)
	defer timer.Stop()

	select {
	case <-handle.done:
		t.logger.Infof("Process terminated gracefully, name: %s, pid: %d", handle.name, pid)
		return nil
	case <-timer.C:
		t.logger.Warnf("Process did not terminate within %v, forcing termination, name: %s, pid: %d", t.options.GracefulTimeout, handle.name, pid)
	case <-ctx.Done():
		t.logger.Warnf("Context cancelled during graceful termination, forcing termination, name: %s, pid: %d", handle.name, pid)
	}

	if err := killProcess(handle.process); err != nil && !handle.exited() {
		return errors.NewProcessError("failed to kill process", err).WithContext("pid", pid)
	}

	select {
	case <-handle.done:
		t.logger.Infof("Process force terminated, name: %s, pid: %d", handle.name, pid)
		return nil
	case <-time.After(t.options.KillTimeout):
		return errors.NewProcessError("process did not terminate even after force termination", nil).WithContext("pid", pid)
	}
}

func (t *osTransport) Write(h managedprocess.Handle, frame []byte) error {
	handle, ok := h.(*osHandle)
	if !ok || handle == nil {
		return errors.NewValidationError("handle was not produced by this transport", nil)
	}

	handle.writeMutex.Lock()
	defer handle.writeMutex.Unlock()

	if handle.exited() {
		return errors.NewIOError("process has exited", nil).WithContext("pid", handle.pid)
	}

	// Not every platform supports pipe deadlines; without one the write is unbounded
	_ = handle.stdin.SetWriteDeadline(time.Now().Add(t.options.WriteTimeout))

	if _, err := handle.stdin.Write(frame); err != nil {
		return errors.NewIOError("failed to write to process stdin", err).WithContext("pid", handle.pid)
	}
	return nil
}

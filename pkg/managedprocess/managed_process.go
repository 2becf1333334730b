package managedprocess

import (
	"context"
	"sync"
	"time"

	"github.com/core-tools/hsu-procmaster/pkg/errors"
	"github.com/core-tools/hsu-procmaster/pkg/logging"
	"github.com/core-tools/hsu-procmaster/pkg/processmanagement/processstatemachine"
	"github.com/core-tools/hsu-procmaster/pkg/protocol"
)

// ProcessInfo is a point-in-time snapshot of a managed process
type ProcessInfo struct {
	Name             string
	State            processstatemachine.ProcessState
	Command          []string
	WorkingDirectory string
	PID              int
	StartTime        *time.Time
	StartFailures    int
	LastError        string
	Transitions      int
}

// ManagedProcess is one supervised OS process. All mutable state is guarded by mutex.
type ManagedProcess struct {
	desc      ProcessDescription
	transport Transport
	owner     Owner
	logger    logging.Logger

	mutex         sync.Mutex
	stateMachine  *processstatemachine.ProcessStateMachine
	handle        Handle
	startTime     *time.Time
	startFailures int
	lastError     error
	retired       bool
}

func NewManagedProcess(desc ProcessDescription, transport Transport, owner Owner, logger logging.Logger) *ManagedProcess {
	return &ManagedProcess{
		desc:         desc.clone(),
		transport:    transport,
		owner:        owner,
		logger:       logger,
		stateMachine: processstatemachine.NewProcessStateMachine(desc.Name, logger),
	}
}

func (p *ManagedProcess) Name() string {
	return p.desc.Name
}

// Description returns a copy of the launch configuration
func (p *ManagedProcess) Description() ProcessDescription {
	return p.desc.clone()
}

func (p *ManagedProcess) State() processstatemachine.ProcessState {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.stateMachine.CurrentState()
}

func (p *ManagedProcess) IsRunning() bool {
	return p.State() == processstatemachine.ProcessStateRunning
}

// Start spawns the OS process. On failure the process stays created and Start may be retried.
func (p *ManagedProcess) Start(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.retired {
		return errors.NewIllegalStateError("process was removed", nil).WithContext("name", p.desc.Name)
	}
	if err := p.stateMachine.ValidateOperation(processstatemachine.OperationStart); err != nil {
		return err
	}

	handle, err := p.transport.Spawn(ctx, p.desc.clone())
	if err != nil {
		p.startFailures++
		p.lastError = err
		return errors.NewProcessError("failed to spawn process", err).
			WithContext("name", p.desc.Name).
			WithContext("attempt", p.startFailures)
	}

	if err := p.stateMachine.Transition(processstatemachine.ProcessStateRunning, processstatemachine.OperationStart, nil); err != nil {
		// Unreachable after ValidateOperation; do not leak the child
		_ = p.transport.Terminate(ctx, handle)
		return err
	}

	now := time.Now()
	p.handle = handle
	p.startTime = &now
	p.lastError = nil

	if done := handle.Done(); done != nil {
		go p.watchExit(handle, done)
	}

	p.logger.Infof("Managed process started, name: %s, pid: %d", p.desc.Name, handle.PID())
	return nil
}

// Stop terminates the OS process. On failure the process stays running and Stop may be retried.
func (p *ManagedProcess) Stop(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if err := p.stateMachine.ValidateOperation(processstatemachine.OperationStop); err != nil {
		return err
	}

	if err := p.transport.Terminate(ctx, p.handle); err != nil {
		p.lastError = err
		return errors.NewProcessError("failed to terminate process", err).
			WithContext("name", p.desc.Name).
			WithContext("pid", p.handle.PID())
	}

	if err := p.stateMachine.Transition(processstatemachine.ProcessStateStopped, processstatemachine.OperationStop, nil); err != nil {
		return err
	}
	pid := p.handle.PID()
	p.handle = nil

	p.logger.Infof("Managed process stopped, name: %s, pid: %d", p.desc.Name, pid)
	return nil
}

// Send writes one message frame to the process. It fails with an illegal state error
// when the process is not running and with an IO error when the write fails.
func (p *ManagedProcess) Send(msg protocol.ControlMessage) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.stateMachine.CurrentState() != processstatemachine.ProcessStateRunning {
		return errors.NewIllegalStateError("process is not started", nil).
			WithContext("name", p.desc.Name).
			WithContext("state", string(p.stateMachine.CurrentState()))
	}

	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	if err := p.transport.Write(p.handle, frame); err != nil {
		return errors.NewIOError("failed to deliver message", err).
			WithContext("name", p.desc.Name).
			WithContext("message_id", msg.ID)
	}
	return nil
}

// Retire marks a non-running process as removed so it can never be started again.
// It refuses while the process is running.
func (p *ManagedProcess) Retire() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if err := p.stateMachine.ValidateOperation(processstatemachine.OperationRemove); err != nil {
		return err
	}
	p.retired = true
	return nil
}

func (p *ManagedProcess) Info() ProcessInfo {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	info := ProcessInfo{
		Name:             p.desc.Name,
		State:            p.stateMachine.CurrentState(),
		Command:          append([]string(nil), p.desc.Command...),
		WorkingDirectory: p.desc.WorkingDirectory,
		StartTime:        p.startTime,
		StartFailures:    p.startFailures,
		Transitions:      len(p.stateMachine.TransitionHistory()),
	}
	if p.handle != nil {
		info.PID = p.handle.PID()
	}
	if p.lastError != nil {
		info.LastError = p.lastError.Error()
	}
	return info
}

// watchExit moves the process to stopped when the OS process exits on its own
func (p *ManagedProcess) watchExit(handle Handle, done <-chan struct{}) {
	<-done
	exitErr := handle.ExitError()

	p.mutex.Lock()
	if p.handle != handle {
		// Already stopped through Stop
		p.mutex.Unlock()
		return
	}
	if err := p.stateMachine.Transition(processstatemachine.ProcessStateStopped, processstatemachine.OperationExit, exitErr); err != nil {
		p.logger.Errorf("Failed to record process exit, name: %s, error: %v", p.desc.Name, err)
	}
	p.handle = nil
	if exitErr != nil {
		p.lastError = exitErr
	}
	p.mutex.Unlock()

	if p.owner != nil {
		p.owner.ProcessExited(p.desc.Name, exitErr)
	}
}

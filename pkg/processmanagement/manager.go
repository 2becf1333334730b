package processmanagement

import (
	"context"
	"fmt"
	"sync"

	"github.com/core-tools/hsu-procmaster/pkg/errors"
	"github.com/core-tools/hsu-procmaster/pkg/logging"
	"github.com/core-tools/hsu-procmaster/pkg/managedprocess"
	"github.com/core-tools/hsu-procmaster/pkg/protocol"
)

type ProcessRegistry interface {
	AddProcess(name string, command []string, env map[string]string, workingDirectory string)
	RemoveProcess(name string)
}

type ProcessLifecycle interface {
	StartProcess(ctx context.Context, name string)
	StopProcess(ctx context.Context, name string)
	StopAll(ctx context.Context) error
}

type MessageRouter interface {
	SendMessage(sender, recipient string, tokens []string)
	SendBytes(sender, recipient string, data []byte, checksum uint64)
	BroadcastMessage(sender string, tokens []string)
	BroadcastBytes(sender string, data []byte, checksum uint64)
}

type ProcessDiagnostics interface {
	Processes() []managedprocess.ProcessInfo
	ProcessInfo(name string) (managedprocess.ProcessInfo, bool)
	Size() int
}

// ProcessSupervisor is the single authority over process identity, lifecycle and message routing.
// Failures are logged at this boundary and never returned to callers.
type ProcessSupervisor interface {
	ProcessRegistry
	ProcessLifecycle
	MessageRouter
	ProcessDiagnostics
}

// BroadcastPolicy decides what a broadcast does on reaching a process that is not running
type BroadcastPolicy string

const (
	// BroadcastStopOnNotRunning abandons the rest of the broadcast at the first non-running process
	BroadcastStopOnNotRunning BroadcastPolicy = "stop_on_not_running"

	// BroadcastSkipNotRunning skips non-running processes and continues
	BroadcastSkipNotRunning BroadcastPolicy = "skip_not_running"
)

func (p BroadcastPolicy) Validate() error {
	switch p {
	case BroadcastStopOnNotRunning, BroadcastSkipNotRunning:
		return nil
	default:
		return errors.NewValidationError(fmt.Sprintf("unknown broadcast policy: %q", string(p)), nil)
	}
}

type ProcessSupervisorOptions struct {
	BroadcastPolicy BroadcastPolicy
}

// processSupervisor guards the registry with mutex. Operations on a single process take the
// process's own lock after mutex, never the other way round.
type processSupervisor struct {
	options   ProcessSupervisorOptions
	transport managedprocess.Transport
	logger    logging.Logger

	mutex     sync.Mutex
	processes map[string]*managedprocess.ManagedProcess
	order     []string // registration order, used by broadcast and listing
}

func NewProcessSupervisor(options ProcessSupervisorOptions, transport managedprocess.Transport, logger logging.Logger) ProcessSupervisor {
	if options.BroadcastPolicy == "" {
		options.BroadcastPolicy = BroadcastStopOnNotRunning
	}
	return &processSupervisor{
		options:   options,
		transport: transport,
		logger:    logger,
		processes: make(map[string]*managedprocess.ManagedProcess),
	}
}

func (ps *processSupervisor) AddProcess(name string, command []string, env map[string]string, workingDirectory string) {
	if name == "" {
		ps.logger.Warnf("Ignoring process with empty name, command: %v", command)
		return
	}

	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if _, exists := ps.processes[name]; exists {
		ps.logger.Warnf("Already have process, name: %s, ignoring", name)
		return
	}

	desc := managedprocess.ProcessDescription{
		Name:             name,
		Command:          command,
		Environment:      env,
		WorkingDirectory: workingDirectory,
	}
	ps.processes[name] = managedprocess.NewManagedProcess(desc, ps.transport, ps, ps.logger)
	ps.order = append(ps.order, name)

	ps.logger.Infof("Managed process added, name: %s, command: %v, working directory: %s", name, command, workingDirectory)
}

func (ps *processSupervisor) StartProcess(ctx context.Context, name string) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	process, exists := ps.processes[name]
	if !exists {
		ps.logger.Debugf("Start ignored, unknown process, name: %s", name)
		return
	}

	if err := process.Start(ctx); err != nil {
		ps.logger.Errorf("Failed to start process, name: %s, error: %v", name, err)
	}
}

func (ps *processSupervisor) StopProcess(ctx context.Context, name string) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	process, exists := ps.processes[name]
	if !exists {
		ps.logger.Debugf("Stop ignored, unknown process, name: %s", name)
		return
	}

	if err := process.Stop(ctx); err != nil {
		if errors.IsIllegalStateError(err) {
			ps.logger.Warnf("Stop ignored, name: %s, error: %v", name, err)
			return
		}
		ps.logger.Errorf("Failed to stop process, name: %s, error: %v", name, err)
	}
}

func (ps *processSupervisor) RemoveProcess(name string) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	process, exists := ps.processes[name]
	if !exists {
		ps.logger.Debugf("Remove ignored, unknown process, name: %s", name)
		return
	}

	if err := process.Retire(); err != nil {
		ps.logger.Warnf("Cannot remove running process, name: %s, stop it first", name)
		return
	}

	delete(ps.processes, name)
	for i, n := range ps.order {
		if n == name {
			ps.order = append(ps.order[:i], ps.order[i+1:]...)
			break
		}
	}

	ps.logger.Infof("Managed process removed, name: %s", name)
}

// StopAll stops every running process, in registration order
func (ps *processSupervisor) StopAll(ctx context.Context) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	errorCollection := errors.NewErrorCollection()
	for _, name := range ps.order {
		process := ps.processes[name]
		if !process.IsRunning() {
			continue
		}
		if err := process.Stop(ctx); err != nil {
			ps.logger.Errorf("Failed to stop process, name: %s, error: %v", name, err)
			errorCollection.Add(err)
		}
	}
	return errorCollection.ToError()
}

func (ps *processSupervisor) SendMessage(sender, recipient string, tokens []string) {
	ps.send(protocol.NewTextMessage(sender, recipient, tokens))
}

func (ps *processSupervisor) SendBytes(sender, recipient string, data []byte, checksum uint64) {
	ps.send(protocol.NewBytesMessage(sender, recipient, data, checksum))
}

func (ps *processSupervisor) BroadcastMessage(sender string, tokens []string) {
	ps.broadcast(protocol.NewTextMessage(sender, protocol.BroadcastRecipient, tokens))
}

func (ps *processSupervisor) BroadcastBytes(sender string, data []byte, checksum uint64) {
	ps.broadcast(protocol.NewBytesMessage(sender, protocol.BroadcastRecipient, data, checksum))
}

func (ps *processSupervisor) send(msg protocol.ControlMessage) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	process, exists := ps.processes[msg.Recipient]
	if !exists {
		ps.logger.Debugf("Message dropped, unknown recipient, recipient: %s, sender: %s", msg.Recipient, msg.Sender)
		return
	}

	ps.deliver(process, msg)
}

func (ps *processSupervisor) broadcast(msg protocol.ControlMessage) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	for _, name := range ps.order {
		delivered := ps.deliver(ps.processes[name], msg)
		if !delivered && ps.options.BroadcastPolicy == BroadcastStopOnNotRunning {
			ps.logger.Debugf("Broadcast abandoned at non-running process, name: %s, message: %s", name, msg.ID)
			return
		}
	}
}

// deliver sends msg to one process and logs the outcome. It returns false only when the
// process was not running; delivery failures count as attempted.
func (ps *processSupervisor) deliver(process *managedprocess.ManagedProcess, msg protocol.ControlMessage) bool {
	err := process.Send(msg)
	switch {
	case err == nil:
		ps.logger.Debugf("Message delivered, name: %s, sender: %s, kind: %s, message: %s",
			process.Name(), msg.Sender, msg.Kind, msg.ID)
		return true
	case errors.IsIllegalStateError(err):
		ps.logger.Debugf("%s is not started; cannot send message %s", process.Name(), msg.ID)
		return false
	default:
		ps.logger.Errorf("Failed to deliver message, name: %s, message: %s, error: %v", process.Name(), msg.ID, err)
		return true
	}
}

func (ps *processSupervisor) Processes() []managedprocess.ProcessInfo {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	infos := make([]managedprocess.ProcessInfo, 0, len(ps.order))
	for _, name := range ps.order {
		infos = append(infos, ps.processes[name].Info())
	}
	return infos
}

func (ps *processSupervisor) ProcessInfo(name string) (managedprocess.ProcessInfo, bool) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	process, exists := ps.processes[name]
	if !exists {
		return managedprocess.ProcessInfo{}, false
	}
	return process.Info(), true
}

func (ps *processSupervisor) Size() int {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	return len(ps.processes)
}

// ProcessExited implements managedprocess.Owner. No restart is attempted.
func (ps *processSupervisor) ProcessExited(name string, exitErr error) {
	if exitErr != nil {
		ps.logger.Warnf("Managed process exited, name: %s, error: %v", name, exitErr)
		return
	}
	ps.logger.Infof("Managed process exited, name: %s", name)
}

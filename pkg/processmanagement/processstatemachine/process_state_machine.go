package processstatemachine

import (
	"fmt"
	"time"

	"github.com/core-tools/hsu-procmaster/pkg/errors"
	"github.com/core-tools/hsu-procmaster/pkg/logging"
)

// ProcessState represents the current state of a managed process in its lifecycle
type ProcessState string

const (
	// ProcessStateCreated means the process is registered but has never been spawned
	ProcessStateCreated ProcessState = "created"

	// ProcessStateRunning means the OS process was spawned and has not been stopped
	ProcessStateRunning ProcessState = "running"

	// ProcessStateStopped is terminal: the process was stopped or exited
	ProcessStateStopped ProcessState = "stopped"
)

// Operations recorded in transition history
const (
	OperationStart = "start"
	OperationStop  = "stop"
	OperationExit  = "exit"
)

// Operations that are validated but never cause a transition
const (
	OperationSend   = "send"
	OperationRemove = "remove"
)

// ProcessStateTransition represents a state transition with metadata
type ProcessStateTransition struct {
	From      ProcessState
	To        ProcessState
	Operation string
	Timestamp time.Time
	Error     error
}

// ProcessStateMachine validates and records state transitions of one process.
// It is not safe for concurrent use; the owning ManagedProcess serializes access under its own lock.
type ProcessStateMachine struct {
	processName      string
	currentState     ProcessState
	transitions      []ProcessStateTransition
	validTransitions map[ProcessState][]ProcessState
	logger           logging.Logger
}

func NewProcessStateMachine(processName string, logger logging.Logger) *ProcessStateMachine {
	psm := &ProcessStateMachine{
		processName:  processName,
		currentState: ProcessStateCreated,
		transitions:  make([]ProcessStateTransition, 0),
		logger:       logger,
	}

	psm.validTransitions = map[ProcessState][]ProcessState{
		ProcessStateCreated: {
			ProcessStateRunning, // start success
		},
		ProcessStateRunning: {
			ProcessStateStopped, // stop success or exit
		},
		ProcessStateStopped: {},
	}

	return psm
}

func (psm *ProcessStateMachine) CurrentState() ProcessState {
	return psm.currentState
}

func (psm *ProcessStateMachine) CanTransition(to ProcessState) bool {
	for _, validState := range psm.validTransitions[psm.currentState] {
		if validState == to {
			return true
		}
	}
	return false
}

// Transition changes the state, recording the operation; err annotates a transition caused by a failure
func (psm *ProcessStateMachine) Transition(to ProcessState, operation string, err error) error {
	if !psm.CanTransition(to) {
		return errors.NewIllegalStateError(
			fmt.Sprintf("invalid state transition from '%s' to '%s'", psm.currentState, to),
			nil,
		).WithContext("name", psm.processName).
			WithContext("from_state", string(psm.currentState)).
			WithContext("to_state", string(to)).
			WithContext("operation", operation)
	}

	from := psm.currentState
	psm.transitions = append(psm.transitions, ProcessStateTransition{
		From:      from,
		To:        to,
		Operation: operation,
		Timestamp: time.Now(),
		Error:     err,
	})
	psm.currentState = to

	if err != nil {
		psm.logger.Warnf("Managed process state transition, name: %s, %s->%s, operation: %s, error: %v",
			psm.processName, from, to, operation, err)
	} else {
		psm.logger.Infof("Managed process state transition, name: %s, %s->%s, operation: %s",
			psm.processName, from, to, operation)
	}

	return nil
}

// TransitionHistory returns a copy of all recorded transitions
func (psm *ProcessStateMachine) TransitionHistory() []ProcessStateTransition {
	history := make([]ProcessStateTransition, len(psm.transitions))
	copy(history, psm.transitions)
	return history
}

// ValidateOperation checks whether start, stop, send or remove is allowed in the current state
func (psm *ProcessStateMachine) ValidateOperation(operation string) error {
	if psm.IsOperationAllowed(operation) {
		return nil
	}
	return errors.NewIllegalStateError(
		fmt.Sprintf("operation '%s' not allowed in current state '%s'", operation, psm.currentState),
		nil,
	).WithContext("name", psm.processName).
		WithContext("current_state", string(psm.currentState)).
		WithContext("operation", operation)
}

func (psm *ProcessStateMachine) IsOperationAllowed(operation string) bool {
	switch operation {
	case OperationStart:
		return psm.currentState == ProcessStateCreated
	case OperationStop, OperationSend:
		return psm.currentState == ProcessStateRunning
	case OperationRemove:
		return psm.currentState != ProcessStateRunning
	default:
		return false
	}
}

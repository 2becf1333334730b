package managedprocess

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/core-tools/hsu-procmaster/pkg/errors"
	"github.com/core-tools/hsu-procmaster/pkg/processmanagement/processstatemachine"
	"github.com/core-tools/hsu-procmaster/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	mock.Mock
}

func (m *mockLogger) LogLevelf(level int, format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *mockLogger) Debugf(format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *mockLogger) Infof(format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *mockLogger) Warnf(format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *mockLogger) Errorf(format string, args ...interface{}) {
	m.Called(format, args)
}

func newMockLogger() *mockLogger {
	logger := &mockLogger{}
	logger.On("Debugf", mock.Anything, mock.Anything).Maybe()
	logger.On("Infof", mock.Anything, mock.Anything).Maybe()
	logger.On("Warnf", mock.Anything, mock.Anything).Maybe()
	logger.On("Errorf", mock.Anything, mock.Anything).Maybe()
	return logger
}

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Spawn(ctx context.Context, desc ProcessDescription) (Handle, error) {
	args := m.Called(ctx, desc)
	handle, _ := args.Get(0).(Handle)
	return handle, args.Error(1)
}

func (m *mockTransport) Terminate(ctx context.Context, handle Handle) error {
	return m.Called(ctx, handle).Error(0)
}

func (m *mockTransport) Write(handle Handle, frame []byte) error {
	return m.Called(handle, frame).Error(0)
}

type mockOwner struct {
	mock.Mock
}

func (m *mockOwner) ProcessExited(name string, exitErr error) {
	m.Called(name, exitErr)
}

type testHandle struct {
	pid     int
	done    chan struct{}
	exitErr error
}

func (h *testHandle) PID() int              { return h.pid }
func (h *testHandle) Done() <-chan struct{} { return h.done }
func (h *testHandle) ExitError() error      { return h.exitErr }

func createTestDescription() ProcessDescription {
	return ProcessDescription{
		Name:             "S1",
		Command:          []string{"run"},
		Environment:      map[string]string{"B": "2", "A": "1"},
		WorkingDirectory: "/tmp",
	}
}

func TestNewManagedProcess_CopiesDescription(t *testing.T) {
	desc := createTestDescription()
	process := NewManagedProcess(desc, &mockTransport{}, nil, newMockLogger())

	desc.Command[0] = "mutated"
	desc.Environment["A"] = "mutated"

	got := process.Description()
	assert.Equal(t, []string{"run"}, got.Command)
	assert.Equal(t, "1", got.Environment["A"])
	assert.Equal(t, []string{"A=1", "B=2"}, got.EnvironmentList())
	assert.Equal(t, processstatemachine.ProcessStateCreated, process.State())
	assert.False(t, process.IsRunning())
}

func TestManagedProcess_StartStop(t *testing.T) {
	transport := &mockTransport{}
	handle := &testHandle{pid: 4242}
	transport.On("Spawn", mock.Anything, createTestDescription()).Return(handle, nil).Once()
	transport.On("Terminate", mock.Anything, handle).Return(nil).Once()

	process := NewManagedProcess(createTestDescription(), transport, nil, newMockLogger())

	require.NoError(t, process.Start(context.Background()))
	assert.True(t, process.IsRunning())
	info := process.Info()
	assert.Equal(t, 4242, info.PID)
	assert.NotNil(t, info.StartTime)

	require.NoError(t, process.Stop(context.Background()))
	assert.Equal(t, processstatemachine.ProcessStateStopped, process.State())
	assert.Equal(t, 0, process.Info().PID)
	assert.Equal(t, 2, process.Info().Transitions)

	transport.AssertExpectations(t)
}

func TestManagedProcess_StartFailureIsRetryable(t *testing.T) {
	transport := &mockTransport{}
	handle := &testHandle{pid: 7}
	transport.On("Spawn", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("exec: no such file")).Once()
	transport.On("Spawn", mock.Anything, mock.Anything).Return(handle, nil).Once()

	process := NewManagedProcess(createTestDescription(), transport, nil, newMockLogger())

	err := process.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsProcessError(err))
	assert.Equal(t, processstatemachine.ProcessStateCreated, process.State())
	assert.Equal(t, 1, process.Info().StartFailures)
	assert.Contains(t, process.Info().LastError, "no such file")

	require.NoError(t, process.Start(context.Background()))
	assert.True(t, process.IsRunning())
	assert.Empty(t, process.Info().LastError)
	transport.AssertExpectations(t)
}

func TestManagedProcess_StopFailureIsRetryable(t *testing.T) {
	transport := &mockTransport{}
	handle := &testHandle{pid: 7}
	transport.On("Spawn", mock.Anything, mock.Anything).Return(handle, nil).Once()
	transport.On("Terminate", mock.Anything, handle).Return(fmt.Errorf("operation not permitted")).Once()
	transport.On("Terminate", mock.Anything, handle).Return(nil).Once()

	process := NewManagedProcess(createTestDescription(), transport, nil, newMockLogger())
	require.NoError(t, process.Start(context.Background()))

	err := process.Stop(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsProcessError(err))
	assert.True(t, process.IsRunning())

	require.NoError(t, process.Stop(context.Background()))
	assert.Equal(t, processstatemachine.ProcessStateStopped, process.State())
	transport.AssertExpectations(t)
}

func TestManagedProcess_IllegalTransitions(t *testing.T) {
	transport := &mockTransport{}
	handle := &testHandle{pid: 7}
	transport.On("Spawn", mock.Anything, mock.Anything).Return(handle, nil).Once()
	transport.On("Terminate", mock.Anything, handle).Return(nil).Once()

	process := NewManagedProcess(createTestDescription(), transport, nil, newMockLogger())

	// stop before start performs no terminate call
	err := process.Stop(context.Background())
	assert.True(t, errors.IsIllegalStateError(err))

	require.NoError(t, process.Start(context.Background()))
	err = process.Start(context.Background())
	assert.True(t, errors.IsIllegalStateError(err))

	require.NoError(t, process.Stop(context.Background()))

	// stopped is terminal
	err = process.Start(context.Background())
	assert.True(t, errors.IsIllegalStateError(err))
	err = process.Stop(context.Background())
	assert.True(t, errors.IsIllegalStateError(err))

	transport.AssertNumberOfCalls(t, "Spawn", 1)
	transport.AssertNumberOfCalls(t, "Terminate", 1)
}

func TestManagedProcess_Send(t *testing.T) {
	transport := &mockTransport{}
	handle := &testHandle{pid: 7}
	transport.On("Spawn", mock.Anything, mock.Anything).Return(handle, nil).Once()

	var written []byte
	transport.On("Write", handle, mock.Anything).Run(func(args mock.Arguments) {
		written = args.Get(1).([]byte)
	}).Return(nil).Once()
	transport.On("Write", handle, mock.Anything).Return(fmt.Errorf("broken pipe")).Once()

	process := NewManagedProcess(createTestDescription(), transport, nil, newMockLogger())
	msg := protocol.NewTextMessage("master", "S1", []string{"ping"})

	err := process.Send(msg)
	assert.True(t, errors.IsIllegalStateError(err), "send before start")
	transport.AssertNotCalled(t, "Write", mock.Anything, mock.Anything)

	require.NoError(t, process.Start(context.Background()))
	require.NoError(t, process.Send(msg))

	decoded, err := protocol.NewDecoder(bytes.NewReader(written)).Decode()
	require.NoError(t, err)
	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, []string{"ping"}, decoded.Tokens)

	err = process.Send(msg)
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))
	assert.True(t, process.IsRunning(), "delivery failure does not change state")
}

func TestManagedProcess_Retire(t *testing.T) {
	transport := &mockTransport{}
	handle := &testHandle{pid: 7}
	transport.On("Spawn", mock.Anything, mock.Anything).Return(handle, nil).Once()

	process := NewManagedProcess(createTestDescription(), transport, nil, newMockLogger())
	require.NoError(t, process.Start(context.Background()))

	err := process.Retire()
	assert.True(t, errors.IsIllegalStateError(err))

	created := NewManagedProcess(createTestDescription(), transport, nil, newMockLogger())
	require.NoError(t, created.Retire())
	err = created.Start(context.Background())
	assert.True(t, errors.IsIllegalStateError(err))
	transport.AssertNumberOfCalls(t, "Spawn", 1)
}

func TestManagedProcess_ExitIsObserved(t *testing.T) {
	transport := &mockTransport{}
	handle := &testHandle{pid: 7, done: make(chan struct{}), exitErr: fmt.Errorf("exit status 3")}
	transport.On("Spawn", mock.Anything, mock.Anything).Return(handle, nil).Once()

	owner := &mockOwner{}
	exited := make(chan struct{})
	owner.On("ProcessExited", "S1", handle.exitErr).Run(func(mock.Arguments) { close(exited) }).Once()

	process := NewManagedProcess(createTestDescription(), transport, owner, newMockLogger())
	require.NoError(t, process.Start(context.Background()))

	close(handle.done)

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("owner was not notified of exit")
	}
	assert.Equal(t, processstatemachine.ProcessStateStopped, process.State())
	assert.Equal(t, "exit status 3", process.Info().LastError)

	err := process.Send(protocol.NewTextMessage("master", "S1", []string{"ping"}))
	assert.True(t, errors.IsIllegalStateError(err))
	owner.AssertExpectations(t)
}

func TestManagedProcess_StopRacesExitWatcher(t *testing.T) {
	transport := &mockTransport{}
	handle := &testHandle{pid: 7, done: make(chan struct{})}
	transport.On("Spawn", mock.Anything, mock.Anything).Return(handle, nil).Once()
	transport.On("Terminate", mock.Anything, handle).Run(func(mock.Arguments) {
		close(handle.done)
	}).Return(nil).Once()

	owner := &mockOwner{}
	process := NewManagedProcess(createTestDescription(), transport, owner, newMockLogger())
	require.NoError(t, process.Start(context.Background()))
	require.NoError(t, process.Stop(context.Background()))

	// give the watcher a chance to run; it must see the handle was cleared by Stop
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, process.Info().Transitions)
	owner.AssertNotCalled(t, "ProcessExited", mock.Anything, mock.Anything)
}

func TestMergeEnvironment(t *testing.T) {
	env := MergeEnvironment([]string{"PATH=/bin", "HOME=/root", "EMPTY=", "=C:=weird", "A=b=c"}, map[string]string{"HOME": "/home/app"})

	assert.Equal(t, map[string]string{
		"PATH":  "/bin",
		"HOME":  "/home/app",
		"EMPTY": "",
		"A":     "b=c",
	}, env)
}

func TestEnvironmentList(t *testing.T) {
	desc := ProcessDescription{Environment: map[string]string{"B": "2", "A": "1"}}
	assert.Equal(t, []string{"A=1", "B=2"}, desc.EnvironmentList())
}

package control

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/core-tools/hsu-procmaster/pkg/logging"
	"github.com/core-tools/hsu-procmaster/pkg/managedprocess"
	"github.com/core-tools/hsu-procmaster/pkg/processmanagement/processstatemachine"
	"github.com/core-tools/hsu-procmaster/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type mockSupervisor struct {
	mock.Mock
}

func (m *mockSupervisor) AddProcess(name string, command []string, env map[string]string, workingDirectory string) {
	m.Called(name, command, env, workingDirectory)
}

func (m *mockSupervisor) RemoveProcess(name string) {
	m.Called(name)
}

func (m *mockSupervisor) StartProcess(ctx context.Context, name string) {
	m.Called(name)
}

func (m *mockSupervisor) StopProcess(ctx context.Context, name string) {
	m.Called(name)
}

func (m *mockSupervisor) StopAll(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockSupervisor) SendMessage(sender, recipient string, tokens []string) {
	m.Called(sender, recipient, tokens)
}

func (m *mockSupervisor) SendBytes(sender, recipient string, data []byte, checksum uint64) {
	m.Called(sender, recipient, data, checksum)
}

func (m *mockSupervisor) BroadcastMessage(sender string, tokens []string) {
	m.Called(sender, tokens)
}

func (m *mockSupervisor) BroadcastBytes(sender string, data []byte, checksum uint64) {
	m.Called(sender, data, checksum)
}

func (m *mockSupervisor) Processes() []managedprocess.ProcessInfo {
	args := m.Called()
	return args.Get(0).([]managedprocess.ProcessInfo)
}

func (m *mockSupervisor) ProcessInfo(name string) (managedprocess.ProcessInfo, bool) {
	args := m.Called(name)
	return args.Get(0).(managedprocess.ProcessInfo), args.Bool(1)
}

func (m *mockSupervisor) Size() int {
	args := m.Called()
	return args.Int(0)
}

// startTestServer serves the control service over an in-memory listener and returns a gateway to it
func startTestServer(t *testing.T, supervisor *mockSupervisor) Contract {
	t.Helper()
	logger := logging.NewNullLogger()

	listener := bufconn.Listen(1024 * 1024)
	server := NewServerWithListener(listener, ServerOptions{}, logger)
	RegisterGRPCServerHandler(server.GRPC(), supervisor, logger)
	require.NoError(t, server.Start(context.Background()))

	connection, err := NewConnection(ConnectionOptions{
		Address: "bufnet",
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return listener.Dial()
			}),
		},
	}, logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		connection.Shutdown()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})

	return NewGRPCClientGateway(connection.GRPC(), logger)
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestControl_Lifecycle(t *testing.T) {
	supervisor := &mockSupervisor{}
	supervisor.On("AddProcess", "S1", []string{"/bin/app", "-v"}, map[string]string{"FOO": "bar"}, "/tmp").Once()
	supervisor.On("StartProcess", "S1").Once()
	supervisor.On("StopProcess", "S1").Once()
	supervisor.On("RemoveProcess", "S1").Once()

	gateway := startTestServer(t, supervisor)
	ctx := testContext(t)

	require.NoError(t, gateway.AddProcess(ctx, AddProcessRequest{
		Name:             "S1",
		Command:          []string{"/bin/app", "-v"},
		Environment:      map[string]string{"FOO": "bar"},
		WorkingDirectory: "/tmp",
	}))
	require.NoError(t, gateway.StartProcess(ctx, "S1"))
	require.NoError(t, gateway.StopProcess(ctx, "S1"))
	require.NoError(t, gateway.RemoveProcess(ctx, "S1"))

	supervisor.AssertExpectations(t)
}

func TestControl_AddProcessInheritsEnvironment(t *testing.T) {
	require.NoError(t, os.Setenv("PROCMASTER_TEST_VAR", "inherited"))
	defer os.Unsetenv("PROCMASTER_TEST_VAR")

	supervisor := &mockSupervisor{}
	supervisor.On("AddProcess", "S1", []string{"/bin/app"}, mock.MatchedBy(func(env map[string]string) bool {
		return env["PROCMASTER_TEST_VAR"] == "inherited" && env["FOO"] == "bar"
	}), "").Once()

	gateway := startTestServer(t, supervisor)

	require.NoError(t, gateway.AddProcess(testContext(t), AddProcessRequest{
		Name:               "S1",
		Command:            []string{"/bin/app"},
		Environment:        map[string]string{"FOO": "bar"},
		InheritEnvironment: true,
	}))
	supervisor.AssertExpectations(t)
}

func TestControl_InvalidRequests(t *testing.T) {
	supervisor := &mockSupervisor{}
	gateway := startTestServer(t, supervisor)
	ctx := testContext(t)

	err := gateway.AddProcess(ctx, AddProcessRequest{Command: []string{"/bin/app"}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = gateway.AddProcess(ctx, AddProcessRequest{Name: "S1"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = gateway.StartProcess(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = gateway.SendText(ctx, "master", "", []string{"hello"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	supervisor.AssertNotCalled(t, "AddProcess", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestControl_Messages(t *testing.T) {
	data := []byte{0x00, 0x01, 0xfe}
	checksum := protocol.Checksum(data)

	supervisor := &mockSupervisor{}
	supervisor.On("SendMessage", "cli", "S1", []string{"hello", "world"}).Once()
	supervisor.On("SendBytes", protocol.SupervisorSender, "S1", data, checksum).Once()
	supervisor.On("BroadcastMessage", "cli", []string{"reload"}).Twice()
	supervisor.On("BroadcastBytes", "cli", data, checksum).Once()

	gateway := startTestServer(t, supervisor)
	ctx := testContext(t)

	require.NoError(t, gateway.SendText(ctx, "cli", "S1", []string{"hello", "world"}))
	require.NoError(t, gateway.SendBytes(ctx, "", "S1", data))
	require.NoError(t, gateway.BroadcastText(ctx, "cli", []string{"reload"}))
	// "*" as a direct recipient is a broadcast
	require.NoError(t, gateway.SendText(ctx, "cli", protocol.BroadcastRecipient, []string{"reload"}))
	require.NoError(t, gateway.BroadcastBytes(ctx, "cli", data))

	supervisor.AssertExpectations(t)
}

func TestControl_ServerChecksumsUnchecksummedBytes(t *testing.T) {
	data := []byte("payload")

	supervisor := &mockSupervisor{}
	supervisor.On("SendBytes", "cli", "S1", data, protocol.Checksum(data)).Once()

	handler := &grpcServerHandler{supervisor: supervisor, logger: logging.NewNullLogger()}
	_, err := handler.SendMessage(context.Background(), &MessageRequest{
		Sender:    "cli",
		Recipient: "S1",
		Kind:      PayloadKindBytes,
		Data:      data,
	})
	require.NoError(t, err)
	supervisor.AssertExpectations(t)

	_, err = handler.SendMessage(context.Background(), &MessageRequest{Recipient: "S1", Kind: "xml"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestControl_ListProcesses(t *testing.T) {
	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	supervisor := &mockSupervisor{}
	supervisor.On("Processes").Return([]managedprocess.ProcessInfo{
		{
			Name:        "S1",
			State:       processstatemachine.ProcessStateRunning,
			Command:     []string{"/bin/app"},
			PID:         4242,
			StartTime:   &started,
			Transitions: 1,
		},
		{
			Name:          "S2",
			State:         processstatemachine.ProcessStateCreated,
			Command:       []string{"/bin/missing"},
			StartFailures: 2,
			LastError:     "not found",
		},
	})

	gateway := startTestServer(t, supervisor)

	processes, err := gateway.ListProcesses(testContext(t))
	require.NoError(t, err)
	require.Len(t, processes, 2)

	assert.Equal(t, "S1", processes[0].Name)
	assert.Equal(t, "running", processes[0].State)
	assert.Equal(t, 4242, processes[0].PID)
	require.NotNil(t, processes[0].StartTime)
	assert.True(t, started.Equal(*processes[0].StartTime))

	assert.Equal(t, "created", processes[1].State)
	assert.Equal(t, 2, processes[1].StartFailures)
	assert.Equal(t, "not found", processes[1].LastError)
}

func TestNewConnection_RequiresAddress(t *testing.T) {
	_, err := NewConnection(ConnectionOptions{}, logging.NewNullLogger())
	assert.Error(t, err)
}

func TestNewServer_PicksFreePort(t *testing.T) {
	server, err := NewServer(ServerOptions{Port: 0}, logging.NewNullLogger())
	require.NoError(t, err)
	assert.Greater(t, server.Port(), 0)
	require.NoError(t, server.Start(context.Background()))
	assert.NoError(t, server.Stop(context.Background()))
}

package messaging

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-procmaster/pkg/errors"
	"github.com/core-tools/hsu-procmaster/pkg/logging"
	"github.com/core-tools/hsu-procmaster/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) HandleMessage(sender string, tokens []string) {
	m.Called(sender, tokens)
}

func (m *mockHandler) HandleBytes(sender string, data []byte) {
	m.Called(sender, data)
}

func (m *mockHandler) Shutdown() {
	m.Called()
}

func encodeAll(t *testing.T, msgs ...protocol.ControlMessage) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, msg := range msgs {
		frame, err := protocol.Encode(msg)
		require.NoError(t, err)
		buf.Write(frame)
	}
	return buf.Bytes()
}

func TestListen_DispatchesUntilEOF(t *testing.T) {
	data := []byte("START standalone.xml")
	stream := encodeAll(t,
		protocol.NewTextMessage("master", "S1", []string{"hello", "world"}),
		protocol.NewBytesMessage("master", "S1", data, protocol.Checksum(data)),
	)

	handler := &mockHandler{}
	handler.On("HandleMessage", "master", []string{"hello", "world"}).Once()
	handler.On("HandleBytes", "master", data).Once()
	handler.On("Shutdown").Once()

	err := Listen(context.Background(), bytes.NewReader(stream), handler, logging.NewNullLogger())
	require.NoError(t, err)
	handler.AssertExpectations(t)
}

func TestListen_DropsChecksumMismatch(t *testing.T) {
	good := []byte("STOP")
	stream := encodeAll(t,
		protocol.NewBytesMessage("master", "S1", []byte("corrupt"), 42),
		protocol.NewBytesMessage("master", "S1", good, protocol.Checksum(good)),
	)

	handler := &mockHandler{}
	handler.On("HandleBytes", "master", good).Once()
	handler.On("Shutdown").Once()

	require.NoError(t, Listen(context.Background(), bytes.NewReader(stream), handler, logging.NewNullLogger()))
	handler.AssertExpectations(t)
	handler.AssertNumberOfCalls(t, "HandleBytes", 1)
}

func TestListen_CorruptStream(t *testing.T) {
	stream := encodeAll(t, protocol.NewTextMessage("master", "S1", []string{"hello"}))

	handler := &mockHandler{}
	handler.On("Shutdown").Once()

	err := Listen(context.Background(), bytes.NewReader(stream[:len(stream)-2]), handler, logging.NewNullLogger())
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))
	handler.AssertExpectations(t)
}

func TestListen_Cancelled(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()

	handler := &mockHandler{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Listen(ctx, reader, handler, logging.NewNullLogger())
	}()
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.IsCancelledError(err))
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not return")
	}
	handler.AssertNotCalled(t, "Shutdown")
}

func TestCommandHandler(t *testing.T) {
	var mutex sync.Mutex
	var started [][]string
	stops := 0

	handler := &CommandHandler{
		OnStart: func(args []string) error {
			mutex.Lock()
			defer mutex.Unlock()
			started = append(started, args)
			return nil
		},
		OnStop: func() error {
			mutex.Lock()
			defer mutex.Unlock()
			stops++
			return nil
		},
		Logger: logging.NewNullLogger(),
	}

	handler.HandleBytes("master", []byte("START a.xml b"))
	handler.HandleBytes("master", []byte("stop"))
	handler.HandleBytes("master", []byte("RELOAD"))
	handler.HandleBytes("master", []byte("   "))
	handler.HandleMessage("master", []string{"status"})
	handler.Shutdown()

	assert.Equal(t, [][]string{{"a.xml", "b"}}, started)
	assert.Equal(t, 2, stops)
}

func TestCommandHandler_NilCallbacks(t *testing.T) {
	handler := &CommandHandler{Logger: logging.NewNullLogger()}

	assert.NotPanics(t, func() {
		handler.HandleBytes("master", []byte("START"))
		handler.HandleBytes("master", []byte("STOP"))
		handler.Shutdown()
	})
}

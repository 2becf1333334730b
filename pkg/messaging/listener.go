package messaging

import (
	"context"
	"io"

	"github.com/core-tools/hsu-procmaster/pkg/errors"
	"github.com/core-tools/hsu-procmaster/pkg/logging"
	"github.com/core-tools/hsu-procmaster/pkg/protocol"
)

// Handler is implemented by supervised children to receive messages from the master
type Handler interface {
	HandleMessage(sender string, tokens []string)
	HandleBytes(sender string, data []byte)

	// Shutdown is called once when the master closes the channel
	Shutdown()
}

type decodeResult struct {
	msg protocol.ControlMessage
	err error
}

// Listen reads frames from r and dispatches them to handler until r is exhausted or ctx is done.
// A clean end of stream calls handler.Shutdown and returns nil. Frames failing checksum
// verification are logged and dropped. A corrupt stream cannot be resynchronised, so it
// also shuts the handler down and is returned as an error.
func Listen(ctx context.Context, r io.Reader, handler Handler, logger logging.Logger) error {
	results := make(chan decodeResult)
	stop := make(chan struct{})
	defer close(stop)

	// Reads on r cannot be interrupted; the reader goroutine exits on its next frame or EOF
	go func() {
		decoder := protocol.NewDecoder(r)
		for {
			msg, err := decoder.Decode()
			select {
			case results <- decodeResult{msg: msg, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return errors.NewCancelledError("listener cancelled", ctx.Err())
		case result := <-results:
			if result.err == io.EOF {
				logger.Infof("Master closed the message channel, shutting down")
				handler.Shutdown()
				return nil
			}
			if result.err != nil {
				logger.Errorf("Failed to read message, error: %v", result.err)
				handler.Shutdown()
				return errors.NewIOError("message channel is corrupt", result.err)
			}
			dispatch(result.msg, handler, logger)
		}
	}
}

func dispatch(msg protocol.ControlMessage, handler Handler, logger logging.Logger) {
	switch msg.Kind {
	case protocol.PayloadText:
		logger.Debugf("Text message received, id: %s, sender: %s, tokens: %d", msg.ID, msg.Sender, len(msg.Tokens))
		handler.HandleMessage(msg.Sender, msg.Tokens)
	case protocol.PayloadBytes:
		if err := msg.Verify(); err != nil {
			logger.Warnf("Dropping message, id: %s, sender: %s, error: %v", msg.ID, msg.Sender, err)
			return
		}
		logger.Debugf("Bytes message received, id: %s, sender: %s, size: %d", msg.ID, msg.Sender, len(msg.Data))
		handler.HandleBytes(msg.Sender, msg.Data)
	}
}

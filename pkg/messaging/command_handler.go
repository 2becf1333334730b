package messaging

import (
	"strings"

	"github.com/core-tools/hsu-procmaster/pkg/logging"
)

type Command string

const (
	CommandStart Command = "START"
	CommandStop  Command = "STOP"
)

// CommandHandler interprets byte payloads as command lines ("START arg..." or "STOP")
// and logs text messages. A nil callback ignores the command.
type CommandHandler struct {
	OnStart func(args []string) error
	OnStop  func() error
	Logger  logging.Logger
}

func (h *CommandHandler) HandleMessage(sender string, tokens []string) {
	h.Logger.Infof("Message received, sender: %s, message: %v", sender, tokens)
}

func (h *CommandHandler) HandleBytes(sender string, data []byte) {
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		h.Logger.Warnf("Empty command received, sender: %s", sender)
		return
	}

	command, args := Command(strings.ToUpper(fields[0])), fields[1:]
	switch command {
	case CommandStart:
		if h.OnStart == nil {
			return
		}
		if err := h.OnStart(args); err != nil {
			h.Logger.Errorf("Failed to start, args: %v, error: %v", args, err)
		}
	case CommandStop:
		h.stop()
	default:
		h.Logger.Warnf("Unknown command, sender: %s, command: %s", sender, fields[0])
	}
}

func (h *CommandHandler) Shutdown() {
	h.stop()
}

func (h *CommandHandler) stop() {
	if h.OnStop == nil {
		return
	}
	if err := h.OnStop(); err != nil {
		h.Logger.Errorf("Failed to stop, error: %v", err)
	}
}

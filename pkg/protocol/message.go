package protocol

import (
	"hash/crc64"

	"github.com/core-tools/hsu-procmaster/pkg/errors"

	"github.com/google/uuid"
)

// BroadcastRecipient addresses every registered process
const BroadcastRecipient = "*"

// SupervisorSender is the sender identity used when the supervisor itself originates a message
const SupervisorSender = "master"

type PayloadKind byte

const (
	PayloadText  PayloadKind = 'T'
	PayloadBytes PayloadKind = 'B'
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadText:
		return "text"
	case PayloadBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// ControlMessage is one unit of inter-process control traffic.
// Tokens is set for text payloads; Data and Checksum for byte payloads.
type ControlMessage struct {
	ID        string
	Sender    string
	Recipient string
	Kind      PayloadKind
	Tokens    []string
	Data      []byte
	Checksum  uint64
}

func NewTextMessage(sender, recipient string, tokens []string) ControlMessage {
	return ControlMessage{
		ID:        uuid.NewString(),
		Sender:    sender,
		Recipient: recipient,
		Kind:      PayloadText,
		Tokens:    tokens,
	}
}

func NewBytesMessage(sender, recipient string, data []byte, checksum uint64) ControlMessage {
	return ControlMessage{
		ID:        uuid.NewString(),
		Sender:    sender,
		Recipient: recipient,
		Kind:      PayloadBytes,
		Data:      data,
		Checksum:  checksum,
	}
}

func (m ControlMessage) IsBroadcast() bool {
	return m.Recipient == BroadcastRecipient
}

// PayloadSize is the number of payload bytes carried, tokens included
func (m ControlMessage) PayloadSize() int {
	if m.Kind == PayloadBytes {
		return len(m.Data)
	}
	size := 0
	for _, token := range m.Tokens {
		size += len(token)
	}
	return size
}

var checksumTable = crc64.MakeTable(crc64.ECMA)

// Checksum computes the integrity value carried alongside byte payloads
func Checksum(data []byte) uint64 {
	return crc64.Checksum(data, checksumTable)
}

// Verify checks the checksum of a byte payload; text payloads always verify
func (m ControlMessage) Verify() error {
	if m.Kind != PayloadBytes {
		return nil
	}
	if actual := Checksum(m.Data); actual != m.Checksum {
		return errors.NewValidationError("checksum mismatch", ErrChecksumMismatch).
			WithContext("message_id", m.ID).
			WithContext("expected", m.Checksum).
			WithContext("actual", actual)
	}
	return nil
}

package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/core-tools/hsu-procmaster/pkg/errors"
)

// Frame layout, big endian:
//
//	"PM" | version u8 | kind u8 | id (u16 len, bytes) | sender (u16 len, bytes) | body
//
// text body:  u32 count, then u32 len + bytes per token
// bytes body: u64 checksum | u32 len | bytes
const (
	frameVersion = 1

	MaxTokens      = 1 << 16
	MaxPayloadSize = 16 << 20
	maxIdentity    = 1<<16 - 1
)

var frameMagic = [2]byte{'P', 'M'}

var (
	ErrChecksumMismatch = stderrors.New("checksum mismatch")
	ErrBadMagic         = stderrors.New("bad frame magic")
)

// Encode serializes a message into a single frame
func Encode(m ControlMessage) ([]byte, error) {
	if len(m.ID) > maxIdentity || len(m.Sender) > maxIdentity {
		return nil, errors.NewValidationError("identity too long", nil).
			WithContext("id_len", len(m.ID)).
			WithContext("sender_len", len(m.Sender))
	}

	var buf bytes.Buffer
	buf.Write(frameMagic[:])
	buf.WriteByte(frameVersion)
	buf.WriteByte(byte(m.Kind))
	writeShortString(&buf, m.ID)
	writeShortString(&buf, m.Sender)

	switch m.Kind {
	case PayloadText:
		if len(m.Tokens) > MaxTokens {
			return nil, errors.NewValidationError("too many tokens", nil).WithContext("tokens", len(m.Tokens))
		}
		if m.PayloadSize() > MaxPayloadSize {
			return nil, errors.NewValidationError("payload too large", nil).WithContext("size", m.PayloadSize())
		}
		writeUint32(&buf, uint32(len(m.Tokens)))
		for _, token := range m.Tokens {
			writeUint32(&buf, uint32(len(token)))
			buf.WriteString(token)
		}
	case PayloadBytes:
		if len(m.Data) > MaxPayloadSize {
			return nil, errors.NewValidationError("payload too large", nil).WithContext("size", len(m.Data))
		}
		var checksum [8]byte
		binary.BigEndian.PutUint64(checksum[:], m.Checksum)
		buf.Write(checksum[:])
		writeUint32(&buf, uint32(len(m.Data)))
		buf.Write(m.Data)
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unknown payload kind %q", byte(m.Kind)), nil)
	}

	return buf.Bytes(), nil
}

func writeShortString(buf *bytes.Buffer, s string) {
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], v)
	buf.Write(n[:])
}

// Decoder reads frames from a stream, typically a child's stdin
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads the next frame. It returns io.EOF only on a clean frame boundary.
// The checksum is not verified here; call ControlMessage.Verify.
func (d *Decoder) Decode() (ControlMessage, error) {
	var header [4]byte
	if _, err := io.ReadFull(d.r, header[:1]); err != nil {
		return ControlMessage{}, err
	}
	if _, err := io.ReadFull(d.r, header[1:]); err != nil {
		return ControlMessage{}, truncated(err)
	}
	if header[0] != frameMagic[0] || header[1] != frameMagic[1] {
		return ControlMessage{}, errors.NewValidationError("invalid frame", ErrBadMagic)
	}
	if header[2] != frameVersion {
		return ControlMessage{}, errors.NewValidationError("unsupported frame version", nil).
			WithContext("version", header[2])
	}

	m := ControlMessage{Kind: PayloadKind(header[3])}

	var err error
	if m.ID, err = d.readShortString(); err != nil {
		return ControlMessage{}, err
	}
	if m.Sender, err = d.readShortString(); err != nil {
		return ControlMessage{}, err
	}

	switch m.Kind {
	case PayloadText:
		count, err := d.readUint32()
		if err != nil {
			return ControlMessage{}, err
		}
		if count > MaxTokens {
			return ControlMessage{}, errors.NewValidationError("too many tokens", nil).WithContext("tokens", count)
		}
		m.Tokens = make([]string, 0, count)
		total := 0
		for i := uint32(0); i < count; i++ {
			size, err := d.readUint32()
			if err != nil {
				return ControlMessage{}, err
			}
			total += int(size)
			if total > MaxPayloadSize {
				return ControlMessage{}, errors.NewValidationError("payload too large", nil).WithContext("size", total)
			}
			token := make([]byte, size)
			if _, err := io.ReadFull(d.r, token); err != nil {
				return ControlMessage{}, truncated(err)
			}
			m.Tokens = append(m.Tokens, string(token))
		}
	case PayloadBytes:
		var checksum [8]byte
		if _, err := io.ReadFull(d.r, checksum[:]); err != nil {
			return ControlMessage{}, truncated(err)
		}
		m.Checksum = binary.BigEndian.Uint64(checksum[:])
		size, err := d.readUint32()
		if err != nil {
			return ControlMessage{}, err
		}
		if size > MaxPayloadSize {
			return ControlMessage{}, errors.NewValidationError("payload too large", nil).WithContext("size", size)
		}
		m.Data = make([]byte, size)
		if _, err := io.ReadFull(d.r, m.Data); err != nil {
			return ControlMessage{}, truncated(err)
		}
	default:
		return ControlMessage{}, errors.NewValidationError(fmt.Sprintf("unknown payload kind %q", header[3]), nil)
	}

	return m, nil
}

func (d *Decoder) readShortString() (string, error) {
	var n [2]byte
	if _, err := io.ReadFull(d.r, n[:]); err != nil {
		return "", truncated(err)
	}
	s := make([]byte, binary.BigEndian.Uint16(n[:]))
	if _, err := io.ReadFull(d.r, s); err != nil {
		return "", truncated(err)
	}
	return string(s), nil
}

func (d *Decoder) readUint32() (uint32, error) {
	var n [4]byte
	if _, err := io.ReadFull(d.r, n[:]); err != nil {
		return 0, truncated(err)
	}
	return binary.BigEndian.Uint32(n[:]), nil
}

func truncated(err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return errors.NewIOError("truncated frame", err)
}

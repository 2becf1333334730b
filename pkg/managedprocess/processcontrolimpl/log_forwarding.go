package processcontrolimpl

import (
	"bytes"
	"sync"

	"github.com/core-tools/hsu-procmaster/pkg/logging"
)

// StreamType identifies the source stream
type StreamType string

const (
	StdoutStream StreamType = "stdout"
	StderrStream StreamType = "stderr"
)

// maxLineLength bounds a buffered partial line; longer output is emitted in chunks
const maxLineLength = 64 * 1024

// lineWriter forwards a child's output stream to the logger one line at a time
type lineWriter struct {
	logger logging.Logger
	name   string
	stream StreamType

	mutex sync.Mutex
	buf   bytes.Buffer
}

func newLineWriter(logger logging.Logger, name string, stream StreamType) *lineWriter {
	return &lineWriter{
		logger: logger,
		name:   name,
		stream: stream,
	}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			if len(data) >= maxLineLength {
				w.emit(string(data))
				w.buf.Reset()
			}
			break
		}
		w.emit(string(bytes.TrimRight(data[:i], "\r")))
		w.buf.Next(i + 1)
	}
	return len(p), nil
}

// Flush emits any trailing partial line
func (w *lineWriter) Flush() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) emit(line string) {
	if w.stream == StderrStream {
		w.logger.Warnf("%s %s> %s", w.name, w.stream, line)
		return
	}
	w.logger.Infof("%s %s> %s", w.name, w.stream, line)
}

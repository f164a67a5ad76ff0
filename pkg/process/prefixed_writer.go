package process

import (
	"bytes"
	"io"
	"sync"
)

// MaxPendingLine is the longest partial line held before it is flushed unterminated
const MaxPendingLine = 64 * 1024

// PrefixedWriter writes every complete line as "[name] line\n" to the
// underlying writer. Partial lines are held until a newline arrives or the
// pending data reaches MaxPendingLine, so memory stays bounded.
type PrefixedWriter struct {
	mutex   sync.Mutex
	prefix  []byte
	writer  io.Writer
	pending []byte
}

func NewPrefixedWriter(name string, writer io.Writer) *PrefixedWriter {
	return &PrefixedWriter{
		prefix: []byte("[" + name + "] "),
		writer: writer,
	}
}

func (pw *PrefixedWriter) Write(p []byte) (int, error) {
	pw.mutex.Lock()
	defer pw.mutex.Unlock()

	data := p
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			pw.pending = append(pw.pending, data...)
			if len(pw.pending) >= MaxPendingLine {
				if err := pw.emit(pw.pending); err != nil {
					return len(p) - len(data), err
				}
				pw.pending = pw.pending[:0]
			}
			break
		}

		line := data[:i]
		if len(pw.pending) > 0 {
			pw.pending = append(pw.pending, line...)
			line = pw.pending
		}
		if err := pw.emit(line); err != nil {
			return len(p) - len(data), err
		}
		pw.pending = pw.pending[:0]
		data = data[i+1:]
	}

	return len(p), nil
}

// Flush writes any held partial line
func (pw *PrefixedWriter) Flush() error {
	pw.mutex.Lock()
	defer pw.mutex.Unlock()

	if len(pw.pending) == 0 {
		return nil
	}
	err := pw.emit(pw.pending)
	pw.pending = pw.pending[:0]
	return err
}

func (pw *PrefixedWriter) emit(line []byte) error {
	line = bytes.TrimSuffix(line, []byte("\r"))
	out := make([]byte, 0, len(pw.prefix)+len(line)+1)
	if len(line) == 0 {
		// blank lines keep the prefix without the trailing space
		out = append(out, bytes.TrimSuffix(pw.prefix, []byte(" "))...)
	} else {
		out = append(out, pw.prefix...)
		out = append(out, line...)
	}
	out = append(out, '\n')
	_, err := pw.writer.Write(out)
	return err
}

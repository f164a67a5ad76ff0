package bootstrap

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/core-tools/hsu-bootstrap/pkg/logging"
)

type recorder struct {
	mutex sync.Mutex
	lines []string
}

func newRecorder() *recorder {
	return &recorder{}
}

func (r *recorder) record(format string, args ...interface{}) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recorder) joined() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return strings.Join(r.lines, "\n")
}

func (r *recorder) logger() logging.Logger {
	return logging.NewLogger("", logging.LogFuncs{
		Debugf: r.record,
		Infof:  r.record,
		Warnf:  r.record,
		Errorf: r.record,
	})
}

type syncBuffer struct {
	mutex  sync.Mutex
	buffer bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buffer.Write(p)
}

func (b *syncBuffer) String() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buffer.String()
}

//go:build !windows

package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/core-tools/hsu-bootstrap/pkg/envconfig"
	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"
	"github.com/core-tools/hsu-bootstrap/pkg/processfile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

type recordingLogger struct {
	mutex sync.Mutex
	lines []string
}

func (r *recordingLogger) record(format string, args ...interface{}) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recordingLogger) contains(substr string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, line := range r.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func (r *recordingLogger) logger() logging.Logger {
	return logging.NewLogger("", logging.LogFuncs{
		Debugf: r.record,
		Infof:  r.record,
		Warnf:  r.record,
		Errorf: r.record,
	})
}

func resolvedConfig(t *testing.T, values map[string]string) *envconfig.EffectiveConfig {
	t.Helper()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	config, err := envconfig.NewResolver(values, envconfig.NewAllowList(names...), nil).
		WithLookupEnv(func(string) (string, bool) { return "", false }).
		Resolve("")
	require.NoError(t, err)
	return config
}

func newTestSupervisor(output *syncBuffer, recorder *recordingLogger) *Supervisor {
	return NewSupervisor(Options{ID: "sbx", Output: output, WaitDelay: time.Second}, recorder.logger())
}

func startShell(t *testing.T, s *Supervisor, script string, cfg *envconfig.EffectiveConfig) *SupervisedProcess {
	t.Helper()
	p, err := s.Start(context.Background(), "/bin/sh", []string{"-c", script}, "", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(p, 0) })
	return p
}

func TestAwaitExit_FastExit(t *testing.T) {
	output := &syncBuffer{}
	recorder := &recordingLogger{}
	s := newTestSupervisor(output, recorder)

	p := startShell(t, s, "exit 0", nil)

	code, exited := s.AwaitExit(p, 5*time.Second)

	assert.True(t, exited)
	assert.Equal(t, 0, code)
	assert.False(t, s.IsAlive(p))
	exitCode, ok := p.ExitCode()
	assert.True(t, ok)
	assert.Equal(t, 0, exitCode)
}

func TestAwaitExit_TimeoutLeavesProcessRunning(t *testing.T) {
	s := newTestSupervisor(&syncBuffer{}, &recordingLogger{})
	p := startShell(t, s, "sleep 30", nil)

	code, exited := s.AwaitExit(p, 100*time.Millisecond)

	assert.False(t, exited)
	assert.Equal(t, 0, code)
	assert.True(t, s.IsAlive(p))
	_, ok := p.ExitCode()
	assert.False(t, ok)
}

func TestAwaitExit_ZeroTimeoutPolls(t *testing.T) {
	s := newTestSupervisor(&syncBuffer{}, &recordingLogger{})
	p := startShell(t, s, "sleep 30", nil)

	_, exited := s.AwaitExit(p, 0)

	assert.False(t, exited)
}

func TestNonzeroExitIsRecordedNotFatal(t *testing.T) {
	recorder := &recordingLogger{}
	s := newTestSupervisor(&syncBuffer{}, recorder)
	p := startShell(t, s, "exit 7", nil)

	code, exited := s.AwaitExit(p, 5*time.Second)

	assert.True(t, exited)
	assert.Equal(t, 7, code)
	assert.True(t, recorder.contains("exit code: 7"))
}

func TestStart_EnvironmentOverlayAndMergedOutput(t *testing.T) {
	output := &syncBuffer{}
	s := newTestSupervisor(output, &recordingLogger{})
	cfg := resolvedConfig(t, map[string]string{"PORT": "9090", "NAME": "node one"})

	p := startShell(t, s, `echo "port=$PORT name=$NAME"; echo "path set=${PATH:+yes}"; echo oops 1>&2`, cfg)
	_, exited := s.AwaitExit(p, 5*time.Second)
	require.True(t, exited)

	text := output.String()
	assert.Contains(t, text, "[sbx] port=9090 name=node one\n")
	assert.Contains(t, text, "[sbx] path set=yes\n")
	assert.Contains(t, text, "[sbx] oops\n")
	assert.Same(t, cfg, p.Config())
}

func TestStart_ConflictWhileRunning(t *testing.T) {
	s := newTestSupervisor(&syncBuffer{}, &recordingLogger{})
	startShell(t, s, "sleep 30", nil)

	_, err := s.Start(context.Background(), "/bin/sh", []string{"-c", "true"}, "", nil)

	assert.True(t, errors.IsConflictError(err))
}

func TestStart_MissingCommand(t *testing.T) {
	s := newTestSupervisor(&syncBuffer{}, &recordingLogger{})

	p, err := s.Start(context.Background(), "/definitely/not/here", nil, "", nil)

	assert.Nil(t, p)
	assert.True(t, errors.IsProcessStartError(err))
	assert.Nil(t, s.Current())
}

func TestStart_RestartAfterExit(t *testing.T) {
	s := newTestSupervisor(&syncBuffer{}, &recordingLogger{})
	first := startShell(t, s, "exit 0", nil)
	_, exited := s.AwaitExit(first, 5*time.Second)
	require.True(t, exited)

	second := startShell(t, s, "exit 0", nil)

	assert.Same(t, second, s.Current())
}

func TestShutdown_Graceful(t *testing.T) {
	recorder := &recordingLogger{}
	s := newTestSupervisor(&syncBuffer{}, recorder)
	p := startShell(t, s, "sleep 30", nil)

	err := s.Shutdown(p, 5*time.Second)

	require.NoError(t, err)
	assert.False(t, p.IsAlive())
	assert.True(t, recorder.contains("terminated gracefully"))
	assert.False(t, recorder.contains("force terminated"))
}

func TestShutdown_ForcedWhenTermIgnored(t *testing.T) {
	output := &syncBuffer{}
	recorder := &recordingLogger{}
	s := newTestSupervisor(output, recorder)
	p := startShell(t, s, "trap '' TERM; echo ready; while true; do sleep 0.1; done", nil)
	require.Eventually(t, func() bool {
		return strings.Contains(output.String(), "ready")
	}, 5*time.Second, 20*time.Millisecond)

	start := time.Now()
	err := s.Shutdown(p, 300*time.Millisecond)

	require.NoError(t, err)
	assert.False(t, p.IsAlive())
	assert.True(t, recorder.contains("force terminated"))
	assert.False(t, recorder.contains("terminated gracefully"))
	assert.Less(t, time.Since(start), ForceKillTimeout+time.Second)
}

func TestShutdown_SecondCallDoesNotSignal(t *testing.T) {
	s := newTestSupervisor(&syncBuffer{}, &recordingLogger{})
	var terminateCalls, killCalls atomic.Int32
	realTerminate, realKill := s.terminate, s.kill
	s.terminate = func(pid int) error {
		terminateCalls.Add(1)
		return realTerminate(pid)
	}
	s.kill = func(pid int) error {
		killCalls.Add(1)
		return realKill(pid)
	}
	p := startShell(t, s, "sleep 30", nil)

	require.NoError(t, s.Shutdown(p, 5*time.Second))
	require.Equal(t, int32(1), terminateCalls.Load())

	assert.NoError(t, s.Shutdown(p, 5*time.Second))
	assert.Equal(t, int32(1), terminateCalls.Load())
	assert.Equal(t, int32(0), killCalls.Load())
}

func TestShutdown_ConcurrentCalls(t *testing.T) {
	s := newTestSupervisor(&syncBuffer{}, &recordingLogger{})
	var terminateCalls atomic.Int32
	realTerminate := s.terminate
	s.terminate = func(pid int) error {
		terminateCalls.Add(1)
		return realTerminate(pid)
	}
	p := startShell(t, s, "sleep 30", nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Shutdown(p, 5*time.Second))
		}()
	}
	wg.Wait()

	assert.False(t, p.IsAlive())
	assert.Equal(t, int32(1), terminateCalls.Load())
}

func TestShutdown_NilAndTerminateWithoutProcess(t *testing.T) {
	s := newTestSupervisor(&syncBuffer{}, &recordingLogger{})

	assert.NoError(t, s.Shutdown(nil, time.Second))
	assert.NoError(t, s.Terminate(time.Second))
	assert.False(t, s.IsAlive(nil))
}

func TestTerminate_CurrentProcess(t *testing.T) {
	s := newTestSupervisor(&syncBuffer{}, &recordingLogger{})
	p := startShell(t, s, "sleep 30", nil)

	require.NoError(t, s.Terminate(5*time.Second))

	assert.False(t, p.IsAlive())
}

func TestStart_WritesAndRemovesPIDFile(t *testing.T) {
	pidFiles := processfile.NewProcessFileManager(processfile.ProcessFileConfig{BaseDirectory: t.TempDir()}, nil)
	s := NewSupervisor(Options{ID: "sbx", Output: &syncBuffer{}, PIDFiles: pidFiles}, nil)

	p := startShell(t, s, "sleep 30", nil)

	pid, err := pidFiles.ReadPIDFile("sbx")
	require.NoError(t, err)
	assert.Equal(t, p.PID(), pid)

	require.NoError(t, s.Shutdown(p, 5*time.Second))
	assert.NoFileExists(t, pidFiles.GeneratePIDFilePath("sbx"))
}

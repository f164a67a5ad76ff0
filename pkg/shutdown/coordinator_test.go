package shutdown

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTerminator struct {
	mock.Mock
}

func (m *MockTerminator) Terminate(grace time.Duration) error {
	args := m.Called(grace)
	return args.Error(0)
}

type MockStopper struct {
	mock.Mock
}

func (m *MockStopper) Stop() {
	m.Called()
}

func TestRunningFlag(t *testing.T) {
	flag := NewRunningFlag()

	assert.True(t, flag.IsRunning())
	assert.True(t, flag.Stop())
	assert.False(t, flag.IsRunning())
	assert.False(t, flag.Stop())
}

func TestRunningFlag_ConcurrentStopFlipsOnce(t *testing.T) {
	flag := NewRunningFlag()
	var wg sync.WaitGroup
	var mutex sync.Mutex
	flips := 0

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if flag.Stop() {
				mutex.Lock()
				flips++
				mutex.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, flips)
}

func TestCoordinator_FireStopsEverythingOnce(t *testing.T) {
	target := &MockTerminator{}
	target.On("Terminate", 2*time.Second).Return(nil).Once()
	renewal := &MockStopper{}
	renewal.On("Stop").Return().Once()

	coordinator := NewCoordinator(nil, Options{GracePeriod: 2 * time.Second}, nil)
	require.NoError(t, coordinator.Register(target, renewal))

	require.NoError(t, coordinator.Fire("host exited"))
	require.NoError(t, coordinator.Fire("again"))

	assert.False(t, coordinator.Flag().IsRunning())
	target.AssertExpectations(t)
	renewal.AssertExpectations(t)
	select {
	case <-coordinator.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestCoordinator_ConcurrentFire(t *testing.T) {
	target := &MockTerminator{}
	target.On("Terminate", DefaultGracePeriod).Return(nil).Once()

	coordinator := NewCoordinator(NewRunningFlag(), Options{GracePeriod: DefaultGracePeriod}, nil)
	require.NoError(t, coordinator.Register(target, nil))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, coordinator.Fire(fmt.Sprintf("caller %d", i)))
		}(i)
	}
	wg.Wait()

	target.AssertNumberOfCalls(t, "Terminate", 1)
}

func TestCoordinator_RegisterOnlyOnce(t *testing.T) {
	coordinator := NewCoordinator(nil, Options{}, nil)
	defer coordinator.Fire("test cleanup")

	require.NoError(t, coordinator.Register(nil, nil))
	err := coordinator.Register(nil, nil)

	assert.True(t, errors.IsConflictError(err))
}

func TestCoordinator_RegisterAfterFire(t *testing.T) {
	coordinator := NewCoordinator(nil, Options{}, nil)
	require.NoError(t, coordinator.Fire("early"))

	assert.True(t, errors.IsConflictError(coordinator.Register(nil, nil)))
}

func TestCoordinator_TerminateErrorIsReported(t *testing.T) {
	target := &MockTerminator{}
	target.On("Terminate", mock.Anything).Return(errors.NewShutdownError("kill failed", nil))

	coordinator := NewCoordinator(nil, Options{}, nil)
	require.NoError(t, coordinator.Register(target, nil))

	err := coordinator.Fire("host exited")

	require.Error(t, err)
	assert.True(t, errors.IsShutdownError(err))
	assert.False(t, coordinator.Flag().IsRunning())
}

func TestCoordinator_HookTimeoutCapsTermination(t *testing.T) {
	target := &MockTerminator{}
	target.On("Terminate", mock.Anything).Run(func(mock.Arguments) {
		time.Sleep(2 * time.Second)
	}).Return(nil)

	coordinator := NewCoordinator(nil, Options{GracePeriod: time.Second, HookTimeout: 100 * time.Millisecond}, nil)
	require.NoError(t, coordinator.Register(target, nil))

	start := time.Now()
	err := coordinator.Fire("host exited")

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, errors.IsTimeoutError(err))
}

func TestCoordinator_FlagClearedBeforeTerminate(t *testing.T) {
	flag := NewRunningFlag()
	target := &MockTerminator{}
	target.On("Terminate", mock.Anything).Run(func(mock.Arguments) {
		assert.False(t, flag.IsRunning())
	}).Return(nil)

	coordinator := NewCoordinator(flag, Options{}, nil)
	require.NoError(t, coordinator.Register(target, nil))

	require.NoError(t, coordinator.Fire("host exited"))
	target.AssertExpectations(t)
}

func TestCoordinator_ZeroGracePeriodIsKept(t *testing.T) {
	target := &MockTerminator{}
	target.On("Terminate", time.Duration(0)).Return(nil).Once()

	coordinator := NewCoordinator(nil, Options{GracePeriod: 0}, nil)
	assert.Equal(t, hookOverhead, coordinator.options.HookTimeout)
	require.NoError(t, coordinator.Register(target, nil))

	require.NoError(t, coordinator.Fire("host exited"))
	target.AssertExpectations(t)
}

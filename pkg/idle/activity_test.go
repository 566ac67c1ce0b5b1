package idle

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotification struct {
	closed atomic.Int32
}

func (n *fakeNotification) Close() error {
	n.closed.Add(1)
	return nil
}

type fakeController struct {
	input        *CreateIdleNotification
	notification *fakeNotification
	err          error
}

func (c *fakeController) AddNotification(input *CreateIdleNotification) (Notification, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.input = input
	c.notification = &fakeNotification{}
	return c.notification, nil
}

func (c *fakeController) Close() error {
	return nil
}

// A long threshold keeps the periodic reports out of the way.
const quietThreshold = time.Hour

func TestActivityMonitorCreatesNotification(t *testing.T) {
	controller := &fakeController{}
	m, err := NewActivityMonitor(controller, quietThreshold)
	require.NoError(t, err)
	defer m.Close()

	require.NotNil(t, controller.input)
	assert.Equal(t, quietThreshold, controller.input.Duration)
	assert.NotNil(t, controller.input.Idle)
	assert.NotNil(t, controller.input.Resume)
}

func TestActivityMonitorRejectsBadInput(t *testing.T) {
	_, err := NewActivityMonitor(&fakeController{}, 0)
	assert.Error(t, err)

	boom := errors.New("boom")
	_, err = NewActivityMonitor(&fakeController{err: boom}, time.Second)
	assert.ErrorIs(t, err, boom)
}

func TestActivityMonitorResumeReachesChain(t *testing.T) {
	controller := &fakeController{}
	m, err := NewActivityMonitor(controller, quietThreshold)
	require.NoError(t, err)
	defer m.Close()

	var outer, inner atomic.Int32
	restoreInner, err := m.Intercept(func() { inner.Add(1) })
	require.NoError(t, err)
	restoreOuter, err := m.Intercept(func() { outer.Add(1) })
	require.NoError(t, err)

	controller.input.Resume <- struct{}{}
	assert.Eventually(t, func() bool {
		return outer.Load() == 1 && inner.Load() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, restoreOuter())
	controller.input.Resume <- struct{}{}
	assert.Eventually(t, func() bool {
		return inner.Load() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), outer.Load())

	require.NoError(t, restoreInner())
	assert.ErrorIs(t, restoreInner(), ErrAlreadyRestored)
}

func TestActivityMonitorReportsWhileActive(t *testing.T) {
	controller := &fakeController{}
	m, err := NewActivityMonitor(controller, 10*time.Millisecond)
	require.NoError(t, err)
	defer m.Close()

	var calls atomic.Int32
	_, err = m.Intercept(func() { calls.Add(1) })
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	controller.input.Idle <- struct{}{}
	// The ticker may have been handled right before the idle event.
	time.Sleep(30 * time.Millisecond)
	settled := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, calls.Load())
}

func TestActivityMonitorClose(t *testing.T) {
	controller := &fakeController{}
	m, err := NewActivityMonitor(controller, quietThreshold)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Close(), ErrMonitorClosed)
	assert.Equal(t, int32(1), controller.notification.closed.Load())

	_, err = m.Intercept(func() {})
	assert.ErrorIs(t, err, ErrMonitorClosed)
}

func TestTimeoutMs(t *testing.T) {
	ms, err := timeoutMs(1500 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint32(1500), ms)

	ms, err = timeoutMs(-time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), ms)

	_, err = timeoutMs(time.Duration(1<<32) * time.Millisecond)
	assert.Error(t, err)
}

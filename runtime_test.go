package corosched_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nsmith5/corosched"
)

func newTestRuntime(t *testing.T) *corosched.Runtime {
	t.Helper()
	rt, err := corosched.NewRuntime()
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

// TestRoundRobinYield verifies that N coroutines each adding v_i to a
// shared counter c_i times, separated by Yield, produce a final sum of
// Σ v_i · c_i — i.e. every coroutine actually gets its turn.
func TestRoundRobinYield(t *testing.T) {
	defer goleak.VerifyNone(t)

	rt := newTestRuntime(t)

	var mu sync.Mutex
	sum := 0
	add := func(v, times int) func(rt *corosched.Runtime) error {
		return func(rt *corosched.Runtime) error {
			for i := 0; i < times; i++ {
				mu.Lock()
				sum += v
				mu.Unlock()
				if err := rt.Yield(); err != nil {
					return err
				}
			}
			return nil
		}
	}

	rt.Spawn(add(7, 3))
	rt.Spawn(add(11, 1))
	rt.Spawn(add(5, 2))

	require.NoError(t, rt.Run())
	assert.Equal(t, 42, sum)
	assert.Equal(t, 0, rt.NumCoroutines())
}

// TestWakeUpWithChannels verifies that coroutines sleeping for distinct
// durations and then sending are received in ascending sleep-duration
// order, not creation order.
func TestWakeUpWithChannels(t *testing.T) {
	defer goleak.VerifyNone(t)

	rt := newTestRuntime(t)
	ch := corosched.NewChannel[int]()

	sleepThenSend := func(ms int, v int) func(rt *corosched.Runtime) error {
		return func(rt *corosched.Runtime) error {
			if err := rt.WakeUp(rt.After(time.Duration(ms) * time.Millisecond)); err != nil {
				return err
			}
			return ch.Send(rt, v, corosched.Never)
		}
	}

	rt.Spawn(sleepThenSend(30, 111))
	rt.Spawn(sleepThenSend(40, 222))
	rt.Spawn(sleepThenSend(10, 333))
	rt.Spawn(sleepThenSend(20, 444))

	var received []int
	rt.Spawn(func(rt *corosched.Runtime) error {
		for i := 0; i < 4; i++ {
			v, err := ch.Receive(rt, corosched.Never)
			if err != nil {
				return err
			}
			received = append(received, v)
		}
		return nil
	})

	require.NoError(t, rt.Run())
	if diff := cmp.Diff([]int{333, 444, 111, 222}, received); diff != "" {
		t.Errorf("receive order mismatch (-want +got):\n%s", diff)
	}
}

// TestDeadlineAccuracy verifies that WakeUp(now+d) resumes within
// roughly d of the requested deadline.
func TestDeadlineAccuracy(t *testing.T) {
	defer goleak.VerifyNone(t)

	rt := newTestRuntime(t)

	const d = 100 * time.Millisecond
	start := time.Now()
	var elapsed time.Duration

	rt.Spawn(func(rt *corosched.Runtime) error {
		err := rt.WakeUp(rt.After(d))
		elapsed = time.Since(start)
		return err
	})

	require.NoError(t, rt.Run())
	assert.InDelta(t, d, elapsed, float64(100*time.Millisecond))
}

// TestCancellationObservability verifies that Yield and WakeUp inside a
// canceled coroutine both fail with ErrCanceled.
func TestCancellationObservability(t *testing.T) {
	defer goleak.VerifyNone(t)

	rt := newTestRuntime(t)

	gate := corosched.NewChannel[struct{}]()
	var yieldErr, wakeErr error

	co := rt.Spawn(func(rt *corosched.Runtime) error {
		_, recvErr := gate.Receive(rt, corosched.Never)
		yieldErr = rt.Yield()
		wakeErr = rt.WakeUp(corosched.Never)
		return recvErr
	})

	// Cancel unhooks co from the gate's receiver queue and wakes it, so
	// there's no send to pair with: the canceller just sets the flag.
	rt.Spawn(func(rt *corosched.Runtime) error {
		co.Cancel()
		return nil
	})

	require.NoError(t, rt.Run())
	assert.ErrorIs(t, yieldErr, corosched.ErrCanceled)
	assert.ErrorIs(t, wakeErr, corosched.ErrCanceled)
	assert.Equal(t, corosched.StateCanceled, co.State())
}

// TestCancelIdempotent verifies that cancelling twice, or cancelling a
// finished coroutine, is a no-op.
func TestCancelIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	rt := newTestRuntime(t)

	co := rt.Spawn(func(rt *corosched.Runtime) error { return nil })
	require.NoError(t, rt.Run())
	assert.Equal(t, corosched.StateFinished, co.State())

	assert.NotPanics(t, func() {
		co.Cancel()
		co.Cancel()
	})
	assert.Equal(t, corosched.StateFinished, co.State())
}

// TestPanicInBodyOnlyStopsThatCoroutine verifies that an unhandled panic
// escaping a coroutine's body terminates only that coroutine.
func TestPanicInBodyOnlyStopsThatCoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)

	rt := newTestRuntime(t)

	ran := false
	rt.Spawn(func(rt *corosched.Runtime) error {
		panic("boom")
	})
	rt.Spawn(func(rt *corosched.Runtime) error {
		ran = true
		return nil
	})

	require.NoError(t, rt.Run())
	assert.True(t, ran)
}

func TestGroupCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	rt := newTestRuntime(t)
	g := corosched.NewGroup(rt)

	gate := corosched.NewChannel[struct{}]()
	var errs [3]error
	for i := range errs {
		i := i
		g.Spawn(func(rt *corosched.Runtime) error {
			_, errs[i] = gate.Receive(rt, corosched.Never)
			return errs[i]
		})
	}

	require.Equal(t, 3, g.Len())
	g.Cancel()
	require.NoError(t, rt.Run())

	for _, err := range errs {
		assert.ErrorIs(t, err, corosched.ErrCanceled)
	}
	assert.Equal(t, 0, g.Len())
}

// TestSpawnFromCanceledCoroutineFails verifies that a coroutine created
// from inside an already-canceled parent is born canceled and never
// runs its body.
func TestSpawnFromCanceledCoroutineFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	rt := newTestRuntime(t)

	gate := corosched.NewChannel[struct{}]()
	childRan := false
	var child *corosched.Coroutine

	parent := rt.Spawn(func(rt *corosched.Runtime) error {
		_, err := gate.Receive(rt, corosched.Never)
		if err == nil {
			return nil
		}
		child = rt.Spawn(func(rt *corosched.Runtime) error {
			childRan = true
			return nil
		})
		return err
	})

	rt.Spawn(func(rt *corosched.Runtime) error {
		parent.Cancel()
		return nil
	})

	require.NoError(t, rt.Run())
	require.NotNil(t, child)
	assert.Equal(t, corosched.StateCanceled, child.State())
	assert.ErrorIs(t, child.Err(), corosched.ErrCanceled)
	assert.False(t, childRan)
	assert.Equal(t, 0, rt.NumCoroutines())
}

// TestYieldOutsideCoroutine verifies that the suspension-point
// operations fail cleanly, not panic, when called from the goroutine
// driving the Runtime rather than from inside a dispatched coroutine.
func TestYieldOutsideCoroutine(t *testing.T) {
	rt := newTestRuntime(t)

	assert.ErrorIs(t, rt.Yield(), corosched.ErrNotInCoroutine)
	assert.ErrorIs(t, rt.WakeUp(corosched.Never), corosched.ErrNotInCoroutine)
}

func TestErrorsAreDistinct(t *testing.T) {
	for _, err := range []error{
		corosched.ErrCanceled,
		corosched.ErrTimeout,
		corosched.ErrDoneChannel,
		corosched.ErrInvalidFileDescriptor,
		corosched.ErrFileDescriptorBusy,
		corosched.ErrOutOfMemory,
		corosched.ErrNotInCoroutine,
	} {
		assert.True(t, errors.Is(err, err))
	}
	assert.False(t, errors.Is(corosched.ErrTimeout, corosched.ErrCanceled))
}

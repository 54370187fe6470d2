package corosched

import (
	"github.com/nsmith5/corosched/internal/coro"
	"github.com/nsmith5/corosched/internal/timerheap"
)

// State is a coroutine's position in its lifecycle: ready to run,
// running, suspended awaiting some event, or one of the two terminal
// states.
type State int

const (
	StateReady State = iota
	StateRunning
	StateSuspended
	StateCanceled
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateCanceled:
		return "canceled"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// wakeReason records why a suspended coroutine is being moved back onto
// the ready queue, so the operation it was blocked in knows which of its
// documented resumption paths to take. It's irrelevant whenever the
// coroutine's cancelFlag is also set: cancellation always wins.
type wakeReason int

const (
	wakeNormal wakeReason = iota
	wakeTimerExpired
	wakeDone
)

// Coroutine is a handle to a schedulable unit of cooperative execution.
// The zero value is not usable; create one with (*Runtime).Spawn.
type Coroutine struct {
	id int
	rt *Runtime

	state State

	body func(*Runtime) error
	err  error // result of body, once Finished

	engine coro.Coro

	// set at most once, never cleared.
	cancelFlag bool

	// bookkeeping for whatever single wait structure currently holds
	// this coroutine, so Cancel can unhook it in O(1)-ish time no
	// matter whether it's parked on a timer, a channel queue, or the
	// reactor's waiter table.
	timerEntry   *timerheap.Timer
	cancelRemove func()
	wakeReason   wakeReason
}

// ID returns the coroutine's identifier, unique within its Runtime.
func (c *Coroutine) ID() int { return c.id }

// State returns the coroutine's current lifecycle state.
func (c *Coroutine) State() State { return c.state }

// Err returns the error the coroutine's body returned, once it has
// reached StateFinished or StateCanceled. It returns nil before that.
func (c *Coroutine) Err() error { return c.err }

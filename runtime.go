// Package corosched implements a user-space cooperative concurrency
// runtime: stackful-feeling coroutines, unbuffered CSP channels, and a
// file-descriptor poller, all driven by one scheduler, one timer heap,
// and one I/O readiness reactor per Runtime.
package corosched

import (
	"container/list"
	"fmt"
	"log/slog"
	"time"

	"github.com/nsmith5/corosched/internal/reactor"
	"github.com/nsmith5/corosched/internal/timerheap"
)

// Runtime owns one ready queue, one timer heap, and one reactor. Every
// blocking operation in this package is a method on a Runtime, takes
// one as a parameter, or (FileDescriptor.Poll) is bound to one by
// NewFileDescriptor, rather than reaching for thread-local or global
// scheduler state, so a process can host more than one independent
// scheduler.
//
// A Runtime is not safe for concurrent use by multiple OS threads: like
// the coroutines it schedules, it is meant to be driven from a single
// goroutine (the one that calls Run).
type Runtime struct {
	epoch time.Time
	tick  int64

	ready  *list.List // of *Coroutine, FIFO
	timers *timerheap.Heap

	reactor   reactor.Reactor
	fdWaiters map[fdWaiterKey]*Coroutine

	current *Coroutine
	nextID  int
	all     map[int]*Coroutine

	logger *slog.Logger
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

// WithLogger overrides the default console logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Runtime) { rt.logger = logger }
}

// NewRuntime creates a Runtime with its own reactor. The returned error
// comes from acquiring the host readiness multiplexer (e.g. epoll_create1
// failing because the process is out of file descriptors).
func NewRuntime(opts ...Option) (*Runtime, error) {
	rx, err := reactor.New()
	if err != nil {
		return nil, fmt.Errorf("corosched: creating reactor: %w", err)
	}

	rt := &Runtime{
		epoch:     time.Now(),
		ready:     list.New(),
		timers:    timerheap.New(),
		reactor:   rx,
		fdWaiters: make(map[fdWaiterKey]*Coroutine),
		all:       make(map[int]*Coroutine),
		nextID:    1,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.logger == nil {
		rt.logger = newDefaultLogger(rt)
	}
	return rt, nil
}

// Logger returns the Runtime's logger.
func (rt *Runtime) Logger() *slog.Logger { return rt.logger }

// Close releases the Runtime's reactor resources (the epoll or kqueue
// descriptor). It does not stop or cancel coroutines; drive Run to
// quiescence first.
func (rt *Runtime) Close() error {
	return rt.reactor.Close()
}

// Current returns the coroutine presently running on this Runtime, or
// nil if Run is not currently dispatching one (e.g. called from the
// goroutine that owns the Runtime, outside of Run).
func (rt *Runtime) Current() *Coroutine { return rt.current }

// NumCoroutines reports how many coroutines are still live (not yet
// Finished or Canceled). Lets callers assert quiescence in tests without
// reaching into scheduler internals.
func (rt *Runtime) NumCoroutines() int { return len(rt.all) }

// NumReady reports how many coroutines are currently sitting on the
// ready queue awaiting dispatch.
func (rt *Runtime) NumReady() int { return rt.ready.Len() }

// Spawn creates a new coroutine running body and enqueues it on the
// ready queue. The caller continues running immediately — spawning is
// not itself a suspension point for the caller, only for the spawned
// coroutine, which starts out merely enqueued rather than running.
func (rt *Runtime) Spawn(body func(*Runtime) error) *Coroutine {
	id := rt.nextID
	rt.nextID++

	co := &Coroutine{id: id, rt: rt, body: body}

	// The create-and-queue boundary is itself a point where cancellation
	// is observed: a coroutine that spawns a child after its own cancel
	// flag was set must not hand that child a live body to run. The
	// handle is still returned (Spawn has no error return), but the
	// child is born already StateCanceled and its body never executes.
	if rt.current != nil && rt.current.cancelFlag {
		co.state = StateCanceled
		co.err = ErrCanceled
		return co
	}

	rt.all[id] = co
	co.state = StateReady

	prev := rt.current
	rt.current = co
	co.engine.Start(func() { rt.runBody(co) })
	rt.current = prev

	rt.ready.PushBack(co)
	return co
}

// runBody is the entrypoint executed on a coroutine's backing goroutine.
// It immediately suspends once (so Spawn's Start call returns without
// having executed any user code — the coroutine is merely enqueued) and
// only then runs body.
func (rt *Runtime) runBody(co *Coroutine) {
	co.engine.Yield()

	func() {
		defer func() {
			if r := recover(); r != nil {
				co.err = fmt.Errorf("corosched: coroutine panicked: %v", r)
			}
		}()
		co.err = co.body(rt)
	}()

	if co.cancelFlag {
		co.state = StateCanceled
	} else {
		co.state = StateFinished
	}
	co.engine.Finish()
}

// dispatch resumes co until it next suspends or finishes.
func (rt *Runtime) dispatch(co *Coroutine) {
	prev := rt.current
	rt.current = co
	co.state = StateRunning

	co.engine.Next()

	rt.current = prev

	if co.state == StateFinished || co.state == StateCanceled {
		delete(rt.all, co.id)
	}
}

// wake moves a suspended coroutine back onto the tail of the ready
// queue, unhooking it from its timer if it still has one armed. Channel
// rendezvous, channel Done, reactor readiness and Cancel all funnel
// through this function; timer expiry does the same tail append inline
// in expireTimers, whose timer has already been popped. That shared
// tail append gives timer expirations and I/O readiness a deterministic
// order: whoever is woken first wins the race to the back of the queue.
func (rt *Runtime) wake(co *Coroutine, reason wakeReason) {
	if co.timerEntry != nil {
		rt.timers.Remove(co.timerEntry)
		co.timerEntry = nil
	}
	co.cancelRemove = nil
	co.wakeReason = reason
	co.state = StateReady
	rt.ready.PushBack(co)
}

// armTimer registers a timeout for the current suspension, unless
// deadline is Never.
func (rt *Runtime) armTimer(co *Coroutine, deadline Deadline) {
	if deadline == Never {
		return
	}
	co.timerEntry = &timerheap.Timer{Deadline: int64(deadline), Owner: co}
	rt.timers.Add(co.timerEntry)
}

// suspend hands control back to the scheduler loop and blocks the
// calling (backing) goroutine until this coroutine is dispatched again.
// Every blocking operation must have already recorded, before calling
// suspend, how this coroutine can be found and woken (channel queue
// membership, reactor registration, or nothing but a timer for a plain
// sleep).
func (rt *Runtime) suspend(co *Coroutine) {
	co.state = StateSuspended
	co.wakeReason = wakeNormal
	co.engine.Yield()
}

// Yield appends the current coroutine to the tail of the ready queue and
// switches back to the scheduler; it is the most basic suspension
// point. It fails with ErrCanceled if the coroutine was canceled while
// suspended (or had already been canceled before calling Yield), and
// with ErrNotInCoroutine when called from outside any coroutine.
func (rt *Runtime) Yield() error {
	co := rt.current
	if co == nil {
		return ErrNotInCoroutine
	}
	if co.cancelFlag {
		return ErrCanceled
	}
	// Unlike the other suspension points, a yielded coroutine goes
	// straight onto the ready queue, so it stays StateReady rather than
	// StateSuspended: Cancel must see it as already queued (nothing to
	// unhook, no second enqueue) and just set the flag.
	co.wakeReason = wakeNormal
	co.state = StateReady
	rt.ready.PushBack(co)
	co.engine.Yield()
	if co.cancelFlag {
		return ErrCanceled
	}
	return nil
}

// WakeUp suspends the current coroutine until deadline elapses (or it is
// canceled). Unlike the channel and poll operations, an elapsed
// WakeUp deadline is always the normal return path, never ErrTimeout:
// WakeUp's entire contract is "resume at this time", so there's nothing
// else for it to have been waiting for.
//
// A coroutine whose cancel flag is already set fails immediately
// without arming a timer: Cancel fires at most once, so a deadline of
// Never here would otherwise park the coroutine with nothing left that
// could ever wake it back up. Called from outside any coroutine,
// WakeUp fails with ErrNotInCoroutine.
func (rt *Runtime) WakeUp(deadline Deadline) error {
	co := rt.current
	if co == nil {
		return ErrNotInCoroutine
	}
	if co.cancelFlag {
		return ErrCanceled
	}
	rt.armTimer(co, deadline)
	rt.suspend(co)
	if co.cancelFlag {
		return ErrCanceled
	}
	return nil
}

// Cancel requests that target stop at its next suspension point. It is
// idempotent and asynchronous: it never blocks, and cancelling an
// already-finished or already-canceled coroutine is a no-op.
func (target *Coroutine) Cancel() {
	if target.cancelFlag || target.state == StateFinished || target.state == StateCanceled {
		return
	}
	target.cancelFlag = true

	if target.state != StateSuspended {
		// Ready, running, or already terminal: nothing to unhook. A
		// ready/running coroutine observes the flag itself at its next
		// suspension point.
		return
	}

	rt := target.rt
	if target.cancelRemove != nil {
		target.cancelRemove()
	}
	rt.wake(target, wakeNormal)
}

// Run drives the scheduler until no coroutine is runnable, no timer is
// pending, and no coroutine is waiting on I/O. It returns once the
// Runtime is quiescent; callers may call Run again later if more
// coroutines are spawned afterward.
func (rt *Runtime) Run() error {
	for {
		if rt.ready.Len() > 0 {
			front := rt.ready.Front()
			co := rt.ready.Remove(front).(*Coroutine)
			rt.tick++
			rt.dispatch(co)
			continue
		}

		if rt.timers.Len() == 0 && len(rt.fdWaiters) == 0 {
			return nil
		}

		// Only once the ready queue is empty do we compute a timeout and
		// call the reactor; timers are expired only after that call
		// returns, never preemptively while other coroutines are still
		// runnable. Expiring eagerly at the top of every iteration would
		// race an Immediate/zero-deadline Poll against its own timer:
		// the timer would "expire" as soon as the ready queue drained to
		// empty, before the reactor ever got a chance to report the fd
		// as genuinely already ready.
		timeout := rt.nextTimeout()
		events, err := rt.reactor.Wait(timeout)
		if err != nil {
			return fmt.Errorf("corosched: reactor wait: %w", err)
		}
		for _, ev := range events {
			key := fdWaiterKey{fd: ev.FD, dir: ev.Dir}
			co, ok := rt.fdWaiters[key]
			if !ok {
				continue
			}
			delete(rt.fdWaiters, key)
			rt.reactor.Deregister(ev.FD, ev.Dir)
			rt.wake(co, wakeNormal)
		}
		rt.expireTimers()
	}
}

// expireTimers moves every coroutine whose timer deadline has elapsed
// onto the ready queue, in deadline order (ties broken by insertion
// order, per timerheap.Heap).
func (rt *Runtime) expireTimers() {
	now := int64(rt.Now())
	for rt.timers.Len() > 0 && rt.timers.Peek().Deadline <= now {
		t := rt.timers.Pop()
		co := t.Owner.(*Coroutine)
		co.timerEntry = nil
		if co.cancelRemove != nil {
			co.cancelRemove()
			co.cancelRemove = nil
		}
		co.wakeReason = wakeTimerExpired
		co.state = StateReady
		rt.ready.PushBack(co)
	}
}

// nextTimeout computes how long the reactor may block: the time to the
// earliest pending timer, or indefinitely (a negative duration) if none
// is armed.
func (rt *Runtime) nextTimeout() time.Duration {
	if rt.timers.Len() == 0 {
		return -1
	}
	d := time.Duration(rt.timers.Peek().Deadline - int64(rt.Now()))
	if d < 0 {
		return 0
	}
	return d
}

package corosched

import "container/list"

// slot is the transfer cell a blocked sender or receiver's send/receive
// call points at: a tagged union of a value and an error. Rendezvous
// copies into this cell directly, with no channel buffer. The blocked
// party allocates the cell with new on each blocking call, so it lives
// on the heap rather than on that party's goroutine stack.
type slot[T any] struct {
	value   T
	err     error
	isError bool
}

// chanWaiter is one coroutine's entry in a Channel's sender or receiver
// queue.
type chanWaiter[T any] struct {
	co   *Coroutine
	slot *slot[T]
	elem *list.Element
}

// Channel is a synchronous, unbuffered rendezvous point parametrized
// over the value type it transports. There is no capacity: Send blocks
// until a Receive is ready to take the value (or vice versa). The zero
// value is not valid; use NewChannel.
type Channel[T any] struct {
	sendQ *list.List // of *chanWaiter[T], FIFO
	recvQ *list.List // of *chanWaiter[T], FIFO
	done  bool
}

// NewChannel creates a ready-to-use, unbuffered Channel.
func NewChannel[T any]() *Channel[T] {
	return &Channel[T]{
		sendQ: list.New(),
		recvQ: list.New(),
	}
}

// Send blocks until a receiver takes v, deadline elapses, the channel is
// done, or the current coroutine is canceled. Called from outside any
// coroutine it can still complete via the fast paths (a queued receiver,
// or the channel already being done); if it would have to block there it
// fails with ErrNotInCoroutine.
func (ch *Channel[T]) Send(rt *Runtime, v T, deadline Deadline) error {
	return ch.send(rt, slot[T]{value: v}, deadline)
}

// SendError is Send's error-transporting twin: the paired Receive call
// re-raises err unchanged instead of returning a value.
func (ch *Channel[T]) SendError(rt *Runtime, err error, deadline Deadline) error {
	return ch.send(rt, slot[T]{err: err, isError: true}, deadline)
}

func (ch *Channel[T]) send(rt *Runtime, s slot[T], deadline Deadline) error {
	if ch.done {
		return ErrDoneChannel
	}
	if rt.current != nil && rt.current.cancelFlag {
		return ErrCanceled
	}

	if elem := ch.recvQ.Front(); elem != nil {
		w := ch.recvQ.Remove(elem).(*chanWaiter[T])
		*w.slot = s
		rt.wake(w.co, wakeNormal)
		return nil
	}

	// Past the fast paths the call has to suspend, which only a
	// dispatched coroutine can do.
	co := rt.current
	if co == nil {
		return ErrNotInCoroutine
	}
	mySlot := new(slot[T])
	*mySlot = s
	w := &chanWaiter[T]{co: co, slot: mySlot}
	w.elem = ch.sendQ.PushBack(w)
	co.cancelRemove = func() { ch.sendQ.Remove(w.elem) }

	rt.armTimer(co, deadline)
	rt.suspend(co)

	if co.cancelFlag {
		return ErrCanceled
	}
	switch co.wakeReason {
	case wakeTimerExpired:
		return ErrTimeout
	case wakeDone:
		return ErrDoneChannel
	default:
		return nil
	}
}

// Receive blocks until a sender offers a value (or error), deadline
// elapses, the channel is done, or the current coroutine is canceled.
// If the rendezvoused send was a SendError, Receive returns that error
// unchanged instead of a value. Like Send, it may be called from outside
// any coroutine as long as it can complete without blocking; otherwise
// it fails with ErrNotInCoroutine.
func (ch *Channel[T]) Receive(rt *Runtime, deadline Deadline) (T, error) {
	var zero T

	if ch.done {
		return zero, ErrDoneChannel
	}
	if rt.current != nil && rt.current.cancelFlag {
		return zero, ErrCanceled
	}

	if elem := ch.sendQ.Front(); elem != nil {
		w := ch.sendQ.Remove(elem).(*chanWaiter[T])
		rt.wake(w.co, wakeNormal)
		if w.slot.isError {
			return zero, w.slot.err
		}
		return w.slot.value, nil
	}

	co := rt.current
	if co == nil {
		return zero, ErrNotInCoroutine
	}
	mySlot := new(slot[T])
	w := &chanWaiter[T]{co: co, slot: mySlot}
	w.elem = ch.recvQ.PushBack(w)
	co.cancelRemove = func() { ch.recvQ.Remove(w.elem) }

	rt.armTimer(co, deadline)
	rt.suspend(co)

	if co.cancelFlag {
		return zero, ErrCanceled
	}
	switch co.wakeReason {
	case wakeTimerExpired:
		return zero, ErrTimeout
	case wakeDone:
		return zero, ErrDoneChannel
	default:
		if mySlot.isError {
			return zero, mySlot.err
		}
		return mySlot.value, nil
	}
}

// Done terminates the channel: it is idempotent, and every sender and
// receiver currently blocked on it is released with ErrDoneChannel. Once
// done, all subsequent Send/Receive calls fail immediately with
// ErrDoneChannel.
func (ch *Channel[T]) Done(rt *Runtime) {
	if ch.done {
		return
	}
	ch.done = true

	for e := ch.sendQ.Front(); e != nil; e = ch.sendQ.Front() {
		w := ch.sendQ.Remove(e).(*chanWaiter[T])
		rt.wake(w.co, wakeDone)
	}
	for e := ch.recvQ.Front(); e != nil; e = ch.recvQ.Front() {
		w := ch.recvQ.Remove(e).(*chanWaiter[T])
		rt.wake(w.co, wakeDone)
	}
}

// IsDone reports whether Done has been called.
func (ch *Channel[T]) IsDone() bool { return ch.done }

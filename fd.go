package corosched

import "github.com/nsmith5/corosched/internal/reactor"

// Direction is the readiness condition FileDescriptor.Poll waits for.
type Direction = reactor.Direction

const (
	Read  = reactor.Read
	Write = reactor.Write
)

// fdWaiterKey identifies a single (descriptor, direction) pair in a
// Runtime's waiter table. The invariant that at most one coroutine may
// be waiting on a given (fd, direction) pair is enforced here, one layer
// above internal/reactor (which only knows about OS-level registration,
// not coroutines).
type fdWaiterKey struct {
	fd  int
	dir Direction
}

// FileDescriptor is a thin wrapper around a host integer descriptor with
// a polling contract. It does not own fd: the caller is responsible for
// its lifetime.
type FileDescriptor struct {
	rt *Runtime
	fd int
}

// NewFileDescriptor wraps fd for polling on rt. It does not validate fd;
// validation happens on the first Poll call.
func (rt *Runtime) NewFileDescriptor(fd int) *FileDescriptor {
	return &FileDescriptor{rt: rt, fd: fd}
}

// FD returns the wrapped host descriptor.
func (f *FileDescriptor) FD() int { return f.fd }

// Poll suspends the current coroutine until fd becomes ready for dir, or
// deadline elapses, or the coroutine is canceled. Poll always suspends
// at least once, so calling it from outside any coroutine fails with
// ErrNotInCoroutine.
func (f *FileDescriptor) Poll(dir Direction, deadline Deadline) error {
	if f.fd < 0 {
		return ErrInvalidFileDescriptor
	}

	rt := f.rt
	if rt.current != nil && rt.current.cancelFlag {
		return ErrCanceled
	}

	key := fdWaiterKey{fd: f.fd, dir: dir}
	if _, busy := rt.fdWaiters[key]; busy {
		return ErrFileDescriptorBusy
	}

	// Poll always suspends, even for an already-ready descriptor, so it
	// needs a dispatched coroutine to park.
	co := rt.current
	if co == nil {
		return ErrNotInCoroutine
	}

	if err := rt.reactor.Register(f.fd, dir); err != nil {
		return ErrOutOfMemory
	}

	rt.fdWaiters[key] = co
	co.cancelRemove = func() {
		delete(rt.fdWaiters, key)
		rt.reactor.Deregister(f.fd, dir)
	}

	rt.armTimer(co, deadline)
	rt.suspend(co)

	if co.cancelFlag {
		return ErrCanceled
	}
	if co.wakeReason == wakeTimerExpired {
		return ErrTimeout
	}
	return nil
}

// Clean disassociates any runtime bookkeeping for fd (deregistering it
// from the reactor and clearing any waiter-table entries) without
// closing the underlying descriptor. Use this when handing fd to another
// subsystem that will manage it from here on.
//
// Clean does not wake a coroutine currently parked in Poll on this fd;
// callers are expected to only Clean a descriptor nothing is presently
// polling.
func (f *FileDescriptor) Clean() {
	rt := f.rt
	for _, dir := range [...]Direction{Read, Write} {
		key := fdWaiterKey{fd: f.fd, dir: dir}
		if _, ok := rt.fdWaiters[key]; ok {
			delete(rt.fdWaiters, key)
		}
		rt.reactor.Deregister(f.fd, dir)
	}
}

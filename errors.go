package corosched

import "errors"

// constErr wraps a sentinel error so the zero value and copies of the
// sentinel compare equal and work with errors.Is without pointer
// identity games.
type constErr struct {
	error
}

func makeConstErr(err error) error {
	return constErr{error: err}
}

// The exhaustive set of error kinds a blocking operation can return.
// They are never wrapped further by this package; callers use errors.Is
// against these sentinels.
var (
	// ErrCanceled is returned by a suspension-point operation that
	// observed the current coroutine's cancel flag.
	ErrCanceled = makeConstErr(errors.New("corosched: coroutine canceled"))

	// ErrTimeout is returned when a blocking operation's deadline
	// elapses before it could complete.
	ErrTimeout = makeConstErr(errors.New("corosched: deadline exceeded"))

	// ErrDoneChannel is returned by a send or receive on a channel after
	// Done has been called on it.
	ErrDoneChannel = makeConstErr(errors.New("corosched: channel is done"))

	// ErrInvalidFileDescriptor is returned by Poll on a negative
	// descriptor.
	ErrInvalidFileDescriptor = makeConstErr(errors.New("corosched: invalid file descriptor"))

	// ErrFileDescriptorBusy is returned by Poll when another coroutine
	// is already waiting on the same (fd, direction) pair.
	ErrFileDescriptorBusy = makeConstErr(errors.New("corosched: file descriptor already being polled by another coroutine"))

	// ErrOutOfMemory is returned by Poll when registering the descriptor
	// with the host reactor fails. NewChannel has no error return and
	// never produces it.
	ErrOutOfMemory = makeConstErr(errors.New("corosched: out of memory"))

	// ErrNotInCoroutine is returned by a blocking operation that would
	// have to suspend but was called from outside any coroutine — for
	// example from the goroutine driving Run, where there is nothing to
	// park. Operations that can complete without suspending (a channel
	// rendezvous with an already-queued partner, or any already-done /
	// already-failed fast path) still succeed from there.
	ErrNotInCoroutine = makeConstErr(errors.New("corosched: not running inside a coroutine"))
)

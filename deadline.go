package corosched

import "time"

// Deadline is a monotonic absolute point in time, expressed as
// nanoseconds since the owning Runtime was created. Blocking operations
// take a Deadline rather than a time.Duration so that a single value can
// be reused across retries without re-deriving "now".
type Deadline int64

// Never is the sentinel deadline meaning "no effective timeout": a
// blocking operation armed with Never waits until it is satisfied,
// canceled, or the channel/descriptor it's waiting on is done, but never
// times out on its own.
const Never Deadline = 1<<63 - 1

// Immediate returns a Deadline equal to rt.Now(): the operation is
// polled once, without waiting.
func (rt *Runtime) Immediate() Deadline {
	return rt.Now()
}

// Now returns the Runtime's current monotonic time as a Deadline.
func (rt *Runtime) Now() Deadline {
	return Deadline(time.Since(rt.epoch).Nanoseconds())
}

// After returns the Deadline d in the future relative to rt.Now().
func (rt *Runtime) After(d time.Duration) Deadline {
	if d < 0 {
		return rt.Now()
	}
	now := rt.Now()
	if d >= time.Duration(Never-now) {
		return Never
	}
	return now + Deadline(d)
}

// Remaining returns how long until dl elapses, relative to rt.Now(). A
// negative or zero result means dl has already passed.
func (rt *Runtime) Remaining(dl Deadline) time.Duration {
	if dl == Never {
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(dl - rt.Now())
}

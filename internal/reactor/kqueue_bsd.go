//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// kqueueReactor implements Reactor on top of kqueue/kevent.
type kqueueReactor struct {
	kq int

	// registered tracks which (fd, dir) pairs are currently armed so
	// Deregister can no-op cleanly and Wait can map a fired kevent back
	// to the direction the caller asked about.
	registered map[kqueueKey]bool

	changeBuf []unix.Kevent_t
	eventBuf  []unix.Kevent_t
}

type kqueueKey struct {
	fd  int
	dir Direction
}

func newReactor() (Reactor, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	return &kqueueReactor{
		kq:         kq,
		registered: make(map[kqueueKey]bool),
		eventBuf:   make([]unix.Kevent_t, 64),
	}, nil
}

func filterFor(dir Direction) int16 {
	if dir == Write {
		return unix.EVFILT_WRITE
	}
	return unix.EVFILT_READ
}

func (r *kqueueReactor) apply(fd int, dir Direction, flags uint16) error {
	var kev unix.Kevent_t
	unix.SetKevent(&kev, fd, int(filterFor(dir)), int(flags))
	changes := []unix.Kevent_t{kev}
	if _, err := unix.Kevent(r.kq, changes, nil, nil); err != nil {
		return fmt.Errorf("kevent: %w", err)
	}
	return nil
}

func (r *kqueueReactor) Register(fd int, dir Direction) error {
	if err := r.apply(fd, dir, unix.EV_ADD|unix.EV_CLEAR); err != nil {
		return err
	}
	r.registered[kqueueKey{fd: fd, dir: dir}] = true
	return nil
}

func (r *kqueueReactor) Deregister(fd int, dir Direction) error {
	key := kqueueKey{fd: fd, dir: dir}
	if !r.registered[key] {
		return nil
	}
	delete(r.registered, key)
	return r.apply(fd, dir, unix.EV_DELETE)
}

func (r *kqueueReactor) Wait(timeout time.Duration) ([]Event, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		spec := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &spec
	}

	n, err := unix.Kevent(r.kq, nil, r.eventBuf, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("kevent wait: %w", err)
	}

	var events []Event
	for i := 0; i < n; i++ {
		kev := r.eventBuf[i]
		fd := int(kev.Ident)
		var dir Direction
		switch kev.Filter {
		case unix.EVFILT_READ:
			dir = Read
		case unix.EVFILT_WRITE:
			dir = Write
		default:
			continue
		}
		if !r.registered[kqueueKey{fd: fd, dir: dir}] {
			continue
		}
		events = append(events, Event{FD: fd, Dir: dir})
	}
	return events, nil
}

func (r *kqueueReactor) Close() error {
	return unix.Close(r.kq)
}

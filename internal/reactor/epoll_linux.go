//go:build linux

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// epollReactor implements Reactor on top of epoll_create1/epoll_ctl/
// epoll_wait. Registrations are level-triggered: a descriptor that
// stays ready fires again on every Wait call until deregistered.
type epollReactor struct {
	epfd int
	regs map[int]*epollRegistration

	eventBuf []unix.EpollEvent
}

type epollRegistration struct {
	read, write bool
}

func newReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &epollReactor{
		epfd:     epfd,
		regs:     make(map[int]*epollRegistration),
		eventBuf: make([]unix.EpollEvent, 64),
	}, nil
}

func (r *epollReactor) interestMask(reg *epollRegistration) uint32 {
	var mask uint32
	if reg.read {
		mask |= unix.EPOLLIN
	}
	if reg.write {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func (r *epollReactor) Register(fd int, dir Direction) error {
	reg, existed := r.regs[fd]
	op := unix.EPOLL_CTL_MOD
	if !existed {
		reg = &epollRegistration{}
		r.regs[fd] = reg
		op = unix.EPOLL_CTL_ADD
	}

	switch dir {
	case Read:
		reg.read = true
	case Write:
		reg.write = true
	}

	ev := unix.EpollEvent{Events: r.interestMask(reg), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl: %w", err)
	}
	return nil
}

func (r *epollReactor) Deregister(fd int, dir Direction) error {
	reg, ok := r.regs[fd]
	if !ok {
		return nil
	}

	switch dir {
	case Read:
		reg.read = false
	case Write:
		reg.write = false
	}

	if !reg.read && !reg.write {
		delete(r.regs, fd)
		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
			return fmt.Errorf("epoll_ctl del: %w", err)
		}
		return nil
	}

	ev := unix.EpollEvent{Events: r.interestMask(reg), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl mod: %w", err)
	}
	return nil
}

func (r *epollReactor) Wait(timeout time.Duration) ([]Event, error) {
	ms := -1
	if timeout >= 0 {
		// Round up: truncating a sub-millisecond timeout to 0 would spin
		// until the pending timer finally reads as expired.
		ms = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}

	n, err := unix.EpollWait(r.epfd, r.eventBuf, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("epoll_wait: %w", err)
	}

	var events []Event
	for i := 0; i < n; i++ {
		ev := r.eventBuf[i]
		fd := int(ev.Fd)
		reg, ok := r.regs[fd]
		if !ok {
			continue
		}
		ready := ev.Events
		if reg.read && ready&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			events = append(events, Event{FD: fd, Dir: Read})
		}
		if reg.write && ready&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			events = append(events, Event{FD: fd, Dir: Write})
		}
	}
	return events, nil
}

func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}

// Package coro implements the substrate that lets a coroutine body
// suspend transparently from deep call stacks: an ordinary Go goroutine
// paired with an unbuffered channel that enforces strict alternation
// between the driving (scheduler) goroutine and the backing goroutine.
//
// Exactly one side of the pair runs at a time. Start/Next hand control to
// the backing goroutine and block until it calls Yield or Finish; Yield
// and Finish hand control back and block until the driver calls Next
// again (or, for Finish, never — the backing goroutine exits).
package coro

// Coro is one coroutine's backing goroutine handle.
type Coro struct {
	runWaitCh chan struct{}
}

// Start launches f on a new goroutine and blocks until f calls Yield or
// Finish. Every body must call Finish: one that returns without it
// leaves Start or Next blocked forever.
func (c *Coro) Start(f func()) {
	c.runWaitCh = make(chan struct{})
	go f()
	<-c.runWaitCh
}

// Next resumes the backing goroutine from its last Yield and blocks
// until it suspends again via Yield or Finish.
func (c *Coro) Next() {
	c.runWaitCh <- struct{}{}
	<-c.runWaitCh
}

// Yield, called from the backing goroutine, hands control back to
// whichever goroutine is blocked in Start or Next and blocks until that
// goroutine calls Next again.
func (c *Coro) Yield() {
	c.runWaitCh <- struct{}{}
	<-c.runWaitCh
}

// Finish, called from the backing goroutine, hands control back one
// final time and returns; the backing goroutine is expected to exit
// immediately after calling it.
func (c *Coro) Finish() {
	c.runWaitCh <- struct{}{}
}

package bedrock

import (
	"sync"
	"time"
)

// waiterOutcome is the one value a Waiter ever delivers: either a reply
// envelope or the error that released the caller instead.
type waiterOutcome struct {
	env Envelope
	err error
}

// Waiter is a one-shot, single-producer, single-consumer latch: a pending
// commandRequest installs one, keyed by requestId; the first of deliver or
// abort to run wins, and every call after that is a no-op.
type Waiter struct {
	ch   chan waiterOutcome
	once sync.Once
}

func newWaiter() *Waiter {
	return &Waiter{ch: make(chan waiterOutcome, 1)}
}

// deliver latches env as the reply. Safe to call from any goroutine.
func (w *Waiter) deliver(env Envelope) {
	w.once.Do(func() { w.ch <- waiterOutcome{env: env} })
}

// abort latches err, releasing the waiting caller without a reply. Used for
// session-closed and (indirectly, via wait's own timeout) command-timeout
// cancellation.
func (w *Waiter) abort(err error) {
	w.once.Do(func() { w.ch <- waiterOutcome{err: err} })
}

// wait blocks until deliver or abort is called, or timeout elapses first.
func (w *Waiter) wait(timeout time.Duration) (Envelope, error) {
	select {
	case o := <-w.ch:
		return o.env, o.err
	case <-time.After(timeout):
		return Envelope{}, ErrCommandTimeout
	}
}

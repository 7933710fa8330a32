package completion

import (
	"context"
	"fmt"
	"sync"

	db "complgate/debug"
)

type Twait int

const (
	READY Twait = iota
	INTERRUPTED
)

func (w Twait) String() string {
	switch w {
	case READY:
		return "ready"
	case INTERRUPTED:
		return "interrupted"
	default:
		return fmt.Sprintf("Twait(%d)", int(w))
	}
}

type waiter struct {
	ch chan struct{}
}

//
// WaitQ is a condition variable whose waits can be interrupted
// through a context.  Like sync.Cond, it is used with a lock the
// caller holds around Wait; unlike sync.Cond, each waiter parks on
// its own channel, so that an interrupted waiter can take itself off
// the queue.
//
// The queue has its own lock, so Notify*() may be called with or
// without the caller's lock held: a waiter is on the queue before it
// releases the caller's lock, and thus a notifier that acquired the
// caller's lock after that point will find it.
//

type WaitQ struct {
	mu      sync.Mutex
	name    string
	waiters []*waiter
}

func NewWaitQ(name string) *WaitQ {
	return &WaitQ{name: name}
}

func (wq *WaitQ) String() string {
	return fmt.Sprintf("{wq %v}", wq.name)
}

func (wq *WaitQ) enqueue(w *waiter) {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	wq.waiters = append(wq.waiters, w)
}

// dequeue removes w and reports whether it was still queued.
func (wq *WaitQ) dequeue(w *waiter) bool {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	for i, w1 := range wq.waiters {
		if w1 == w {
			wq.waiters = append(wq.waiters[:i], wq.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Caller must hold l and receives it back on return.  Wait releases
// l while parked.  It returns INTERRUPTED if ctx is done before a
// notify reaches the waiter.  If the notify wins the race, the wakeup
// is consumed and Wait returns READY, so that a NotifyOne is never
// lost to an interrupted waiter.  In both cases the caller must
// re-check its condition.
func (wq *WaitQ) Wait(ctx context.Context, l sync.Locker) Twait {
	w := &waiter{ch: make(chan struct{}, 1)}
	wq.enqueue(w)
	l.Unlock()

	r := READY
	select {
	case <-w.ch:
	case <-ctx.Done():
		if wq.dequeue(w) {
			r = INTERRUPTED
		} else {
			<-w.ch
		}
	}
	l.Lock()
	db.DPrintf(db.WAITQ, "%v: wait returns %v", wq, r)
	return r
}

// NotifyOne wakes at most one waiter.
func (wq *WaitQ) NotifyOne() {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	if len(wq.waiters) == 0 {
		return
	}
	w := wq.waiters[0]
	wq.waiters = wq.waiters[1:]
	w.ch <- struct{}{}
	db.DPrintf(db.WAITQ, "%v: notify one; %d left", wq, len(wq.waiters))
}

// NotifyAll wakes every queued waiter.
func (wq *WaitQ) NotifyAll() {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	n := wq.wakeAllL()
	if n > 0 {
		db.DPrintf(db.WAITQ, "%v: notify all %d", wq, n)
	}
}

// ReleaseWaiters detaches any waiters still registered, waking them,
// and drops the queue's storage.  It is safe to call repeatedly.
func (wq *WaitQ) ReleaseWaiters() {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	n := wq.wakeAllL()
	wq.waiters = nil
	if n > 0 {
		db.DPrintf(db.WAITQ, "%v: released %d", wq, n)
	}
}

func (wq *WaitQ) wakeAllL() int {
	n := len(wq.waiters)
	for _, w := range wq.waiters {
		w.ch <- struct{}{}
	}
	wq.waiters = wq.waiters[:0]
	return n
}

// Len returns the number of parked waiters.
func (wq *WaitQ) Len() int {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return len(wq.waiters)
}

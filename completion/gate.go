// The completion package implements a completion gate: a one-slot
// handshake in which writers signal an event and readers block until
// the event has happened, consume it, and return.
//
// A gate is a lock, one bit of state (a signal is pending or not),
// and a wait queue bound to the lock.  Write sets the bit and wakes
// the waiters; Read waits until the bit is set and clears it.  The
// bit doesn't count: several writes before a read make one pending
// signal.  Payloads are ignored; only the presence of a signal
// matters.
package completion

import (
	"fmt"

	"complgate/api/dev"
	db "complgate/debug"
	"complgate/serr"
)

type Gate struct {
	name   string
	st     state
	wq     *WaitQ
	closed bool // under st lock
}

// NewGate returns a gate in the Clear state.
func NewGate(name string) *Gate {
	g := &Gate{
		name: name,
		wq:   NewWaitQ(name),
	}
	return g
}

func (g *Gate) String() string {
	return fmt.Sprintf("{gate %v}", g.name)
}

func (g *Gate) Name() string {
	return g.name
}

// Read blocks until a signal is pending and consumes it.  Reads with
// an empty destination or a nonzero offset return right away without
// touching the gate; a reader that re-reads at the offset it reached
// therefore doesn't consume a second event.  Read never transfers
// data and returns 0 bytes.  If the caller's context is cancelled
// while it waits, Read returns TErrIntr and leaves the gate as it
// was.
func (g *Gate) Read(ctx dev.CtxI, dest []byte, off dev.Toffset) (dev.Tsize, *serr.Err) {
	db.DPrintf(db.GATE, "%v: read %v len %d off %d", g, ctx.Task(), len(dest), off)
	if len(dest) == 0 || off != 0 {
		return 0, nil
	}
	if err := g.consume(ctx); err != nil {
		return 0, err
	}
	g.wakeup()
	db.DPrintf(db.GATE, "%v: awoken %v", g, ctx.Task())
	return 0, nil
}

func (g *Gate) consume(ctx dev.CtxI) *serr.Err {
	g.st.Lock()
	defer g.st.Unlock()

	if g.closed {
		return serr.NewErr(serr.TErrClosed, g.name)
	}
	db.DPrintf(db.GATE, "%v: task %v is going to sleep", g, ctx.Task())
	for !g.st.get() {
		r := g.wq.Wait(ctx.Context(), &g.st)
		if g.closed {
			db.DPrintf(db.GATE_ERR, "%v: closed while %v waits", g, ctx.Task())
			return serr.NewErr(serr.TErrClosed, g.name)
		}
		if r == INTERRUPTED {
			db.DPrintf(db.GATE_ERR, "%v: task %v interrupted", g, ctx.Task())
			return serr.NewErr(serr.TErrIntr, g.name)
		}
	}
	g.st.set(false)
	return nil
}

// Write sets the signal and wakes the readers.  It never blocks and
// accepts all of src, which may be empty.
func (g *Gate) Write(ctx dev.CtxI, src []byte, off dev.Toffset) (dev.Tsize, *serr.Err) {
	db.DPrintf(db.GATE, "%v: write %v len %d", g, ctx.Task(), len(src))
	if err := g.signal(); err != nil {
		return 0, err
	}
	g.wakeup()
	db.DPrintf(db.GATE, "%v: task %v awakening the readers", g, ctx.Task())
	return dev.Tsize(len(src)), nil
}

func (g *Gate) signal() *serr.Err {
	g.st.Lock()
	defer g.st.Unlock()

	if g.closed {
		return serr.NewErr(serr.TErrClosed, g.name)
	}
	g.st.set(true)
	return nil
}

// wakeup wakes every parked reader.  Woken readers re-check the bit
// under the lock and park again if another reader consumed it first.
// After NotifyAll the queue is empty, so ReleaseWaiters is a no-op
// unless a reader parked in between.
func (g *Gate) wakeup() {
	g.wq.NotifyOne()
	g.wq.NotifyAll()
	g.wq.ReleaseWaiters()
}

// IsSignaled reports whether a signal is pending.
func (g *Gate) IsSignaled() bool {
	g.st.Lock()
	defer g.st.Unlock()
	return g.st.get()
}

// NWaiters returns the number of readers parked on the gate.
func (g *Gate) NWaiters() int {
	return g.wq.Len()
}

// Close tears the gate down: parked readers return TErrClosed, and
// so do later reads and writes.  Close is idempotent.
func (g *Gate) Close() {
	g.st.Lock()
	closed := g.closed
	g.closed = true
	g.st.Unlock()
	if !closed {
		db.DPrintf(db.GATE, "%v: close; %d waiters", g, g.wq.Len())
	}
	g.wq.ReleaseWaiters()
}

func (g *Gate) IsClosed() bool {
	g.st.Lock()
	defer g.st.Unlock()
	return g.closed
}

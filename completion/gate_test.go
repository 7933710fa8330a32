package completion_test

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"

	"complgate/api/dev"
	"complgate/completion"
	"complgate/ctx"
	db "complgate/debug"
	"complgate/serr"
)

type result struct {
	n   dev.Tsize
	err *serr.Err
}

func bg() dev.CtxI {
	return ctx.NewCtxCurrent(context.Background())
}

func startRead(g *completion.Gate, c dev.CtxI) chan result {
	ch := make(chan result, 1)
	go func() {
		n, err := g.Read(c, make([]byte, 8), 0)
		ch <- result{n, err}
	}()
	return ch
}

func waitBlocked(t *testing.T, g *completion.Gate, n int) {
	assert.Eventually(t, func() bool { return g.NWaiters() == n }, 2*time.Second, time.Millisecond, "waiters %d", n)
}

func assertBlocked(t *testing.T, ch chan result) {
	time.Sleep(20 * time.Millisecond)
	select {
	case r := <-ch:
		assert.Fail(t, "read should block", "returned %v %v", r.n, r.err)
	default:
	}
}

func TestCompile(t *testing.T) {
}

func TestShortCircuit(t *testing.T) {
	g := completion.NewGate("test")

	n, err := g.Read(bg(), nil, 0)
	assert.Nil(t, err)
	assert.Equal(t, dev.Tsize(0), n)
	n, err = g.Read(bg(), make([]byte, 4), 1)
	assert.Nil(t, err)
	assert.Equal(t, dev.Tsize(0), n)
	assert.False(t, g.IsSignaled())

	_, err = g.Write(bg(), []byte("x"), 0)
	assert.Nil(t, err)
	n, err = g.Read(bg(), []byte{}, 0)
	assert.Nil(t, err)
	assert.Equal(t, dev.Tsize(0), n)
	_, err = g.Read(bg(), make([]byte, 4), 4096)
	assert.Nil(t, err)
	assert.True(t, g.IsSignaled(), "short-circuit consumed signal")
}

func TestReadWrite(t *testing.T) {
	g := completion.NewGate("test")
	ch := startRead(g, bg())
	waitBlocked(t, g, 1)
	assertBlocked(t, ch)

	n, err := g.Write(bg(), []byte("ping"), 0)
	assert.Nil(t, err)
	assert.Equal(t, dev.Tsize(4), n)

	r := <-ch
	assert.Nil(t, r.err)
	assert.Equal(t, dev.Tsize(0), r.n)
	assert.False(t, g.IsSignaled())
	assert.Equal(t, 0, g.NWaiters())
}

func TestSignalConsumed(t *testing.T) {
	g := completion.NewGate("test")
	_, err := g.Write(bg(), []byte("a"), 0)
	assert.Nil(t, err)

	// A pending signal satisfies a read without blocking.
	_, err = g.Read(bg(), make([]byte, 1), 0)
	assert.Nil(t, err)

	// The signal was consumed: the next read blocks.
	c, cancel := context.WithCancel(context.Background())
	ch := startRead(g, ctx.NewCtxCurrent(c))
	waitBlocked(t, g, 1)
	assertBlocked(t, ch)
	cancel()
	r := <-ch
	assert.True(t, r.err.IsErrIntr())
}

func TestWritesCoalesce(t *testing.T) {
	g := completion.NewGate("test")
	for i := 0; i < 3; i++ {
		_, err := g.Write(bg(), []byte("a"), 0)
		assert.Nil(t, err)
	}
	_, err := g.Read(bg(), make([]byte, 1), 0)
	assert.Nil(t, err)
	assert.False(t, g.IsSignaled())

	c, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.Read(ctx.NewCtxCurrent(c), make([]byte, 1), 0)
	assert.True(t, serr.IsErrIntr(err))
}

func TestInterrupt(t *testing.T) {
	g := completion.NewGate("test")
	c, cancel := context.WithCancel(context.Background())
	ch := startRead(g, ctx.NewCtxCurrent(c))
	waitBlocked(t, g, 1)
	cancel()

	r := <-ch
	assert.NotNil(t, r.err)
	assert.Equal(t, serr.TErrIntr, r.err.Code())
	assert.False(t, g.IsSignaled())
	assert.Equal(t, 0, g.NWaiters())

	// The lock is available: a write and a read go through.
	_, err := g.Write(bg(), []byte("x"), 0)
	assert.Nil(t, err)
	_, err = g.Read(bg(), make([]byte, 1), 0)
	assert.Nil(t, err)
}

func TestInterruptBeforeWait(t *testing.T) {
	g := completion.NewGate("test")
	c, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Read(ctx.NewCtxCurrent(c), make([]byte, 1), 0)
	assert.True(t, err.IsErrIntr())

	// A pending signal is consumed even by an interrupted caller, since
	// it never has to wait.
	_, err = g.Write(bg(), nil, 0)
	assert.Nil(t, err)
	_, err = g.Read(ctx.NewCtxCurrent(c), make([]byte, 1), 0)
	assert.Nil(t, err)
}

func TestTwoReaders(t *testing.T) {
	g := completion.NewGate("test")
	ch1 := startRead(g, bg())
	ch2 := startRead(g, bg())
	waitBlocked(t, g, 2)

	_, err := g.Write(bg(), []byte("x"), 0)
	assert.Nil(t, err)

	var pending chan result
	select {
	case r := <-ch1:
		assert.Nil(t, r.err)
		pending = ch2
	case r := <-ch2:
		assert.Nil(t, r.err)
		pending = ch1
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "no reader woke up")
	}
	waitBlocked(t, g, 1)
	assertBlocked(t, pending)
	assert.False(t, g.IsSignaled())

	_, err = g.Write(bg(), []byte("x"), 0)
	assert.Nil(t, err)
	r := <-pending
	assert.Nil(t, r.err)
	assert.False(t, g.IsSignaled())
}

// A write reports all of src even past 4GB.  Write looks only at
// len(src), so the slice needn't be backed by real memory.
func TestHugeWrite(t *testing.T) {
	if strconv.IntSize < 64 {
		t.Skip("32-bit int")
	}
	sz := uint64(1<<32 + 7)
	var b byte
	src := unsafe.Slice(&b, int(sz))
	g := completion.NewGate("test")
	n, err := g.Write(bg(), src, 0)
	assert.Nil(t, err)
	assert.Equal(t, dev.Tsize(sz), n)
	assert.True(t, g.IsSignaled())
}

func TestZeroLengthWrite(t *testing.T) {
	g := completion.NewGate("test")
	ch := startRead(g, bg())
	waitBlocked(t, g, 1)

	n, err := g.Write(bg(), nil, 0)
	assert.Nil(t, err)
	assert.Equal(t, dev.Tsize(0), n)
	r := <-ch
	assert.Nil(t, r.err)
}

func TestClose(t *testing.T) {
	g := completion.NewGate("test")
	ch := startRead(g, bg())
	waitBlocked(t, g, 1)

	g.Close()
	g.Close()
	r := <-ch
	assert.Equal(t, serr.TErrClosed, r.err.Code())
	assert.True(t, g.IsClosed())

	_, err := g.Write(bg(), []byte("x"), 0)
	assert.Equal(t, serr.TErrClosed, err.Code())
	_, err = g.Read(bg(), make([]byte, 1), 0)
	assert.Equal(t, serr.TErrClosed, err.Code())
}

// Each of NREADER readers consumes one signal; writers keep signaling
// until all readers are done.
func TestConcurrent(t *testing.T) {
	const (
		NREADER = 20
		NWRITER = 4
	)
	g := completion.NewGate("test")
	var nread atomic.Int64
	done := make(chan struct{})

	var wg errgroup.Group
	for i := 0; i < NWRITER; i++ {
		wg.Go(func() error {
			for {
				select {
				case <-done:
					return nil
				default:
				}
				if _, err := g.Write(bg(), []byte("w"), 0); err != nil {
					return err
				}
				time.Sleep(100 * time.Microsecond)
			}
		})
	}
	var rg errgroup.Group
	for i := 0; i < NREADER; i++ {
		rg.Go(func() error {
			if _, err := g.Read(bg(), make([]byte, 1), 0); err != nil {
				return err
			}
			nread.Add(1)
			return nil
		})
	}
	assert.Nil(t, rg.Wait())
	close(done)
	assert.Nil(t, wg.Wait())
	assert.Equal(t, int64(NREADER), nread.Load())
	db.DPrintf(db.TEST, "signaled %v waiters %d", g.IsSignaled(), g.NWaiters())
	assert.Equal(t, 0, g.NWaiters())
}

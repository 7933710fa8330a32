package test

import (
	"context"
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"complgate/api/dev"
	"complgate/compld"
	"complgate/config"
	"complgate/ctx"
	db "complgate/debug"
	"complgate/devreg"
	"complgate/gatedev"
	"complgate/serr"
)

//
// Tstate stands in for a host kernel: it loads a completion module
// into a fresh registry and opens files on it.  If running a test
// with --mount <dir>, tests that need the kernel's view of the
// device mount it there; without --mount, they are skipped.
//

var Mount string

func init() {
	flag.StringVar(&Mount, "mount", "", "FUSE mount point")
}

type Tstate struct {
	*compld.Compld
	T   *testing.T
	Reg *devreg.Registry
}

func newTstate(t *testing.T, cfg *config.Config) (*Tstate, error) {
	reg := devreg.NewRegistry()
	cd, err := compld.Init(cfg, reg)
	if err != nil {
		return nil, err
	}
	return &Tstate{Compld: cd, T: t, Reg: reg}, nil
}

func NewTstate(t *testing.T, sharing gatedev.Tsharing) (*Tstate, error) {
	cfg := config.Default()
	cfg.Sharing = sharing.String()
	return newTstate(t, cfg)
}

// NewTstateMount is NewTstate with the device also mounted at Mount.
func NewTstateMount(t *testing.T) (*Tstate, error) {
	if Mount == "" {
		t.Skip("no --mount")
	}
	cfg := config.Default()
	cfg.Mount = Mount
	return newTstate(t, cfg)
}

func (ts *Tstate) Ctx() dev.CtxI {
	return ctx.NewCtxCurrent(context.Background())
}

func (ts *Tstate) Open(m dev.Tmode) *devreg.File {
	f, err := ts.Reg.Open(ts.Ctx(), ts.Config().Name, m)
	assert.Nil(ts.T, err, "Open: %v", err)
	return f
}

// StartRead reads f in a new goroutine; the result arrives on the
// returned channel.
func (ts *Tstate) StartRead(c dev.CtxI, f *devreg.File) chan *serr.Err {
	ch := make(chan *serr.Err, 1)
	go func() {
		_, err := f.Read(c, make([]byte, 16))
		db.DPrintf(db.TEST, "read %v returns %v", f, err)
		ch <- err
	}()
	return ch
}

// WaitBlocked waits until n readers are parked on f's gate.
func (ts *Tstate) WaitBlocked(f *devreg.File, n int) bool {
	g, err := ts.Dev().Gate(f.Handle())
	if !assert.Nil(ts.T, err) {
		return false
	}
	return assert.Eventually(ts.T, func() bool { return g.NWaiters() == n }, 2*time.Second, time.Millisecond, "waiters %d", n)
}

// IsBlocked reports whether ch stays empty for a little while.
func (ts *Tstate) IsBlocked(ch chan *serr.Err) bool {
	select {
	case <-ch:
		return false
	case <-time.After(20 * time.Millisecond):
		return true
	}
}

func (ts *Tstate) Shutdown() {
	err := ts.Teardown()
	assert.Nil(ts.T, err, "Teardown: %v", err)
}

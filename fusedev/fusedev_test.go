package fusedev_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"complgate/devreg"
	"complgate/fusedev"
	"complgate/gatedev"
	"complgate/test"
)

// Run with --mount <dir> on a machine with /dev/fuse, e.g.,
// go test ./fusedev --mount /tmp/compl

func mount(t *testing.T) (*fusedev.FuseSrv, *gatedev.GateDev) {
	if test.Mount == "" {
		t.Skip("no --mount")
	}
	reg := devreg.NewRegistry()
	gd := gatedev.NewGateDev("completion", gatedev.GLOBAL, nil)
	assert.Nil(t, reg.Register("completion", gd))
	fsrv, err := fusedev.Mount(test.Mount, reg, false)
	if !assert.Nil(t, err, "Mount: %v", err) {
		t.FailNow()
	}
	return fsrv, gd
}

func TestReaddir(t *testing.T) {
	fsrv, _ := mount(t)
	defer fsrv.Unmount()

	ents, err := os.ReadDir(fsrv.Mountpoint())
	assert.Nil(t, err)
	assert.Equal(t, 1, len(ents))
	assert.Equal(t, "completion", ents[0].Name())
}

func TestReadWrite(t *testing.T) {
	fsrv, gd := mount(t)
	defer fsrv.Unmount()

	pn := filepath.Join(fsrv.Mountpoint(), "completion")
	rf, err := os.Open(pn)
	assert.Nil(t, err)
	ch := make(chan error)
	go func() {
		// The device transfers no bytes, which os.File reports as EOF.
		_, err := rf.Read(make([]byte, 8))
		ch <- err
	}()
	assert.Eventually(t, func() bool { return gd.NHandles() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	wf, err := os.OpenFile(pn, os.O_WRONLY, 0)
	assert.Nil(t, err)
	n, err := wf.Write([]byte("ping"))
	assert.Nil(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, io.EOF, <-ch)

	assert.Nil(t, rf.Close())
	assert.Nil(t, wf.Close())
	assert.Eventually(t, func() bool { return gd.NHandles() == 0 }, time.Second, time.Millisecond)
}

func TestNotFound(t *testing.T) {
	fsrv, _ := mount(t)
	defer fsrv.Unmount()

	_, err := os.Open(filepath.Join(fsrv.Mountpoint(), "nope"))
	assert.True(t, os.IsNotExist(err))
}

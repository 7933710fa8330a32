// The fusedev package makes registered devices visible to the linux
// kernel: it serves a devreg.Registry as a flat directory over FUSE,
// one regular file per device.  Opening a file opens the device, and
// read(2)/write(2) on it are dispatched to the device's Read and
// Write.  When the kernel interrupts a request (e.g., the reader got
// a signal), go-fuse cancels the request's context, which aborts a
// blocked device read with EINTR.
//
// fusedev is based on go-fuse's fs API, like binsrv.
package fusedev

import (
	"context"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"complgate/api/dev"
	sctx "complgate/ctx"
	db "complgate/debug"
	"complgate/devreg"
	"complgate/serr"
	"complgate/task"
)

const (
	FSNAME = "compld"
	PERM   = 0666
)

type fuseRoot struct {
	reg  *devreg.Registry
	mu   sync.Mutex
	inos map[string]uint64
	next uint64
}

func newFuseRoot(reg *devreg.Registry) *fuseRoot {
	return &fuseRoot{
		reg:  reg,
		inos: make(map[string]uint64),
		next: 2, // 1 is the root
	}
}

// ino returns a stable inode number for the device name.
func (r *fuseRoot) ino(name string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.inos[name]; ok {
		return i
	}
	i := r.next
	r.next += 1
	r.inos[name] = i
	return i
}

// newCtx turns a FUSE request context into a device call context.
// The caller's command name is looked up only when it will be
// logged.
func newCtx(ctx context.Context) dev.CtxI {
	fc, ok := ctx.(*fuse.Context)
	if !ok {
		return sctx.NewCtx(ctx, task.Unknown())
	}
	pid := int(fc.Caller.Pid)
	t := task.NewTask(pid, task.NoPid, "?")
	if db.IsLabelSet(db.FUSEDEV) || db.IsLabelSet(db.GATE) {
		t = task.FromPid(pid)
	}
	return sctx.NewCtx(ctx, t)
}

func mode2dev(flags uint32) dev.Tmode {
	switch flags & syscall.O_ACCMODE {
	case syscall.O_WRONLY:
		return dev.OWRITE
	case syscall.O_RDWR:
		return dev.ORDWR
	default:
		return dev.OREAD
	}
}

type rootNode struct {
	fs.Inode
	root *fuseRoot
}

var _ = (fs.NodeLookuper)((*rootNode)(nil))

func (n *rootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if _, err := n.root.reg.Lookup(name); err != nil {
		return nil, serr.ToErrno(err)
	}
	node := &devNode{root: n.root, name: name}
	ino := n.root.ino(name)
	out.Attr.Mode = syscall.S_IFREG | PERM
	out.Attr.Ino = ino
	ch := n.NewInode(ctx, node, fs.StableAttr{Mode: syscall.S_IFREG, Ino: ino})
	db.DPrintf(db.FUSEDEV, "Lookup %q ino %d", name, ino)
	return ch, fs.OK
}

var _ = (fs.NodeReaddirer)((*rootNode)(nil))

func (n *rootNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names := n.root.reg.Names()
	ents := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		ents = append(ents, fuse.DirEntry{
			Name: name,
			Mode: syscall.S_IFREG,
			Ino:  n.root.ino(name),
		})
	}
	return fs.NewListDirStream(ents), fs.OK
}

type devNode struct {
	fs.Inode
	root *fuseRoot
	name string
}

func (n *devNode) String() string {
	return fmt.Sprintf("{dev %q}", n.name)
}

func (n *devNode) fillAttr(out *fuse.AttrOut) {
	out.Mode = syscall.S_IFREG | PERM
	out.Ino = n.root.ino(n.name)
	out.Size = 0
}

var _ = (fs.NodeGetattrer)((*devNode)(nil))

func (n *devNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.fillAttr(out)
	return fs.OK
}

var _ = (fs.NodeSetattrer)((*devNode)(nil))

// Setattr accepts and ignores attribute changes, so that shell
// redirection (open with O_TRUNC) works on a device.
func (n *devNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	n.fillAttr(out)
	return fs.OK
}

var _ = (fs.NodeOpener)((*devNode)(nil))

func (n *devNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	d, err := n.root.reg.Lookup(n.name)
	if err != nil {
		return nil, 0, serr.ToErrno(err)
	}
	c := newCtx(ctx)
	m := mode2dev(flags)
	h, err := d.Open(c, m)
	if err != nil {
		db.DPrintf(db.FUSEDEV_ERR, "%v: Open %v err %v", n, c.Task(), err)
		return nil, 0, serr.ToErrno(err)
	}
	db.DPrintf(db.FUSEDEV, "%v: Open %v by %v -> %v", n, m, c.Task(), h)
	// Direct I/O so that every read(2) reaches the device instead of
	// the page cache.
	return newDevFile(n.name, d, h), fuse.FOPEN_DIRECT_IO, fs.OK
}

type devFile struct {
	name string
	d    dev.Device
	h    dev.Thandle
}

func newDevFile(name string, d dev.Device, h dev.Thandle) *devFile {
	return &devFile{name: name, d: d, h: h}
}

func (f *devFile) String() string {
	return fmt.Sprintf("{file %q %v}", f.name, f.h)
}

var _ = (fs.FileReader)((*devFile)(nil))
var _ = (fs.FileWriter)((*devFile)(nil))
var _ = (fs.FileReleaser)((*devFile)(nil))

func (f *devFile) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	c := newCtx(ctx)
	n, err := f.d.Read(c, f.h, dest, dev.Toffset(off))
	if err != nil {
		db.DPrintf(db.FUSEDEV_ERR, "%v: Read %v err %v", f, c.Task(), err)
		return nil, serr.ToErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), fs.OK
}

func (f *devFile) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	c := newCtx(ctx)
	n, err := f.d.Write(c, f.h, data, dev.Toffset(off))
	if err != nil {
		db.DPrintf(db.FUSEDEV_ERR, "%v: Write %v err %v", f, c.Task(), err)
		return 0, serr.ToErrno(err)
	}
	return uint32(n), fs.OK
}

func (f *devFile) Release(ctx context.Context) syscall.Errno {
	db.DPrintf(db.FUSEDEV, "%v: Release", f)
	return serr.ToErrno(f.d.Close(newCtx(ctx), f.h))
}

type FuseSrv struct {
	server *fuse.Server
	mnt    string
}

// Mount serves reg at mnt, creating mnt if needed.
func Mount(mnt string, reg *devreg.Registry, debug bool) (*FuseSrv, error) {
	if err := os.MkdirAll(mnt, 0755); err != nil {
		return nil, err
	}
	root := &rootNode{root: newFuseRoot(reg)}
	// Devices come and go with registration; don't let the kernel cache
	// entries or attributes.
	var zero time.Duration
	opts := &fs.Options{
		AttrTimeout:  &zero,
		EntryTimeout: &zero,
		MountOptions: fuse.MountOptions{
			Debug:  debug,
			FsName: FSNAME,
			Name:   "compl",
		},
	}
	server, err := fs.Mount(mnt, root, opts)
	if err != nil {
		return nil, fmt.Errorf("mount %v: %w", mnt, err)
	}
	db.DPrintf(db.FUSEDEV, "mounted at %v", mnt)
	return &FuseSrv{server: server, mnt: mnt}, nil
}

func (fsrv *FuseSrv) Mountpoint() string {
	return fsrv.mnt
}

func (fsrv *FuseSrv) Unmount() error {
	db.DPrintf(db.FUSEDEV, "unmount %v", fsrv.mnt)
	return fsrv.server.Unmount()
}

// Wait blocks until the file system is unmounted.
func (fsrv *FuseSrv) Wait() {
	fsrv.server.Wait()
}

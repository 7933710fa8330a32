// The devreg package is a registration facility for devices: it maps
// names to devices and dispatches open, read, write, and close calls
// to them, the way a kernel's character-device layer does for its
// drivers.  A File records the offset of an open, like a kernel's
// struct file.
package devreg

import (
	"fmt"
	"sort"
	"sync"

	"complgate/api/dev"
	db "complgate/debug"
	"complgate/serr"
)

type Registry struct {
	mu   sync.Mutex
	devs map[string]dev.Device
}

func NewRegistry() *Registry {
	return &Registry{devs: make(map[string]dev.Device)}
}

func (r *Registry) Register(name string, d dev.Device) *serr.Err {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return serr.NewErr(serr.TErrInval, "empty device name")
	}
	if _, ok := r.devs[name]; ok {
		db.DPrintf(db.DEVREG_ERR, "register %q exists", name)
		return serr.NewErr(serr.TErrExists, name)
	}
	r.devs[name] = d
	db.DPrintf(db.DEVREG, "register %q", name)
	return nil
}

func (r *Registry) Unregister(name string) *serr.Err {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devs[name]; !ok {
		return serr.NewErr(serr.TErrNotfound, name)
	}
	delete(r.devs, name)
	db.DPrintf(db.DEVREG, "unregister %q", name)
	return nil
}

func (r *Registry) Lookup(name string) (dev.Device, *serr.Err) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devs[name]
	if !ok {
		return nil, serr.NewErr(serr.TErrNotfound, name)
	}
	return d, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns := make([]string, 0, len(r.devs))
	for n := range r.devs {
		ns = append(ns, n)
	}
	sort.Strings(ns)
	return ns
}

func (r *Registry) Open(ctx dev.CtxI, name string, m dev.Tmode) (*File, *serr.Err) {
	d, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	h, err := d.Open(ctx, m)
	if err != nil {
		return nil, err
	}
	db.DPrintf(db.DEVREG, "open %q %v -> %v", name, m, h)
	return &File{name: name, d: d, h: h, mode: m}, nil
}

type File struct {
	mu   sync.Mutex
	name string
	d    dev.Device
	h    dev.Thandle
	mode dev.Tmode
	off  dev.Toffset
}

func (f *File) String() string {
	return fmt.Sprintf("{file %q %v %v off %d}", f.name, f.h, f.mode, f.off)
}

func (f *File) Name() string {
	return f.name
}

func (f *File) Handle() dev.Thandle {
	return f.h
}

func (f *File) Offset() dev.Toffset {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.off
}

// Read reads at the file's offset and advances it by the bytes read.
func (f *File) Read(ctx dev.CtxI, dest []byte) (dev.Tsize, *serr.Err) {
	off := f.Offset()
	n, err := f.d.Read(ctx, f.h, dest, off)
	if err != nil {
		return 0, err
	}
	f.advance(n)
	return n, nil
}

// Write writes at the file's offset and advances it by the bytes
// written.
func (f *File) Write(ctx dev.CtxI, src []byte) (dev.Tsize, *serr.Err) {
	off := f.Offset()
	n, err := f.d.Write(ctx, f.h, src, off)
	if err != nil {
		return 0, err
	}
	f.advance(n)
	return n, nil
}

func (f *File) ReadAt(ctx dev.CtxI, dest []byte, off dev.Toffset) (dev.Tsize, *serr.Err) {
	return f.d.Read(ctx, f.h, dest, off)
}

func (f *File) WriteAt(ctx dev.CtxI, src []byte, off dev.Toffset) (dev.Tsize, *serr.Err) {
	return f.d.Write(ctx, f.h, src, off)
}

func (f *File) Seek(off dev.Toffset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.off = off
}

func (f *File) advance(n dev.Tsize) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.off += dev.Toffset(n)
}

func (f *File) Close(ctx dev.CtxI) *serr.Err {
	db.DPrintf(db.DEVREG, "close %v", f)
	return f.d.Close(ctx, f.h)
}

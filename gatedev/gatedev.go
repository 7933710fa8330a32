// The gatedev package exposes completion gates as a device.  In
// GLOBAL mode every open shares the device's one gate; an open
// allocates nothing but a handle.  In PEROPEN mode each open gets a
// gate of its own, shared only with the duplicates of its handle and
// closed when the last of them is closed.  A device uses one mode for
// its whole lifetime.
package gatedev

import (
	"fmt"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"complgate/api/dev"
	"complgate/completion"
	db "complgate/debug"
	"complgate/serr"
	"complgate/util/refmap"
	"complgate/util/tracing"
)

type Tsharing int

const (
	GLOBAL Tsharing = iota
	PEROPEN
)

func (s Tsharing) String() string {
	switch s {
	case GLOBAL:
		return "global"
	case PEROPEN:
		return "per-open"
	default:
		return "sharing " + strconv.Itoa(int(s))
	}
}

func ParseSharing(s string) (Tsharing, error) {
	switch s {
	case "", "global":
		return GLOBAL, nil
	case "per-open", "peropen":
		return PEROPEN, nil
	default:
		return GLOBAL, fmt.Errorf("unknown sharing mode %q", s)
	}
}

type handle struct {
	root dev.Thandle // handle whose open created the gate
	g    *completion.Gate
}

type GateDev struct {
	mu      sync.Mutex
	name    string
	sharing Tsharing
	tracer  *tracing.Tracer
	global  *completion.Gate
	gates   *refmap.RefTable[dev.Thandle, *completion.Gate]
	handles map[dev.Thandle]*handle
	next    dev.Thandle
	closed  bool
}

var _ dev.Device = (*GateDev)(nil)

func NewGateDev(name string, sharing Tsharing, tracer *tracing.Tracer) *GateDev {
	if tracer == nil {
		tracer = tracing.NewNoopTracer()
	}
	gd := &GateDev{
		name:    name,
		sharing: sharing,
		tracer:  tracer,
		handles: make(map[dev.Thandle]*handle),
	}
	if sharing == GLOBAL {
		gd.global = completion.NewGate(name)
	} else {
		gd.gates = refmap.NewRefTable[dev.Thandle, *completion.Gate](db.GATEDEV)
	}
	return gd
}

func (gd *GateDev) String() string {
	return fmt.Sprintf("{gatedev %v %v}", gd.name, gd.sharing)
}

func (gd *GateDev) Sharing() Tsharing {
	return gd.sharing
}

func (gd *GateDev) Open(ctx dev.CtxI, m dev.Tmode) (dev.Thandle, *serr.Err) {
	gd.mu.Lock()
	defer gd.mu.Unlock()

	if gd.closed {
		return dev.NoHandle, serr.NewErr(serr.TErrClosed, gd.name)
	}
	h := gd.next
	gd.next += 1
	g := gd.global
	if gd.sharing == PEROPEN {
		g, _ = gd.gates.Insert(h, func() *completion.Gate {
			return completion.NewGate(gd.name + "-" + h.String())
		})
	}
	gd.handles[h] = &handle{root: h, g: g}
	db.DPrintf(db.GATEDEV, "%v: open %v mode %v by %v", gd, h, m, ctx.Task())
	return h, nil
}

// Dup returns a new handle sharing h's gate, like dup(2) or a fork
// inheriting an open file.
func (gd *GateDev) Dup(h dev.Thandle) (dev.Thandle, *serr.Err) {
	gd.mu.Lock()
	defer gd.mu.Unlock()

	e, ok := gd.handles[h]
	if !ok {
		return dev.NoHandle, serr.NewErr(serr.TErrUnknownHandle, h)
	}
	nh := gd.next
	gd.next += 1
	if gd.sharing == PEROPEN {
		gd.gates.Insert(e.root, func() *completion.Gate { return e.g })
	}
	gd.handles[nh] = &handle{root: e.root, g: e.g}
	db.DPrintf(db.GATEDEV, "%v: dup %v -> %v", gd, h, nh)
	return nh, nil
}

func (gd *GateDev) lookup(h dev.Thandle) (*completion.Gate, *serr.Err) {
	gd.mu.Lock()
	defer gd.mu.Unlock()

	e, ok := gd.handles[h]
	if !ok {
		return nil, serr.NewErr(serr.TErrUnknownHandle, h)
	}
	return e.g, nil
}

func (gd *GateDev) Read(ctx dev.CtxI, h dev.Thandle, dest []byte, off dev.Toffset) (dev.Tsize, *serr.Err) {
	_, span := gd.tracer.StartDevSpan(ctx.Context(), "Read", gd.name, attribute.Int("len", len(dest)), attribute.Int64("off", int64(off)))
	defer span.End()

	g, err := gd.lookup(h)
	if err != nil {
		return 0, endSpan(span, err)
	}
	n, err := g.Read(ctx, dest, off)
	if err != nil {
		db.DPrintf(db.GATEDEV_ERR, "%v: read %v err %v", gd, h, err)
	}
	return n, endSpan(span, err)
}

func (gd *GateDev) Write(ctx dev.CtxI, h dev.Thandle, src []byte, off dev.Toffset) (dev.Tsize, *serr.Err) {
	_, span := gd.tracer.StartDevSpan(ctx.Context(), "Write", gd.name, attribute.Int("len", len(src)))
	defer span.End()

	g, err := gd.lookup(h)
	if err != nil {
		return 0, endSpan(span, err)
	}
	n, err := g.Write(ctx, src, off)
	return n, endSpan(span, err)
}

func endSpan(span trace.Span, err *serr.Err) *serr.Err {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (gd *GateDev) Close(ctx dev.CtxI, h dev.Thandle) *serr.Err {
	gd.mu.Lock()
	defer gd.mu.Unlock()

	e, ok := gd.handles[h]
	if !ok {
		return serr.NewErr(serr.TErrUnknownHandle, h)
	}
	delete(gd.handles, h)
	db.DPrintf(db.GATEDEV, "%v: close %v by %v", gd, h, ctx.Task())
	if gd.sharing == PEROPEN {
		g, last, err := gd.gates.Delete(e.root)
		if err != nil {
			return serr.NewErrError(err)
		}
		if last {
			g.Close()
		}
	}
	return nil
}

// Shutdown closes the device's gates; parked readers return
// TErrClosed and later opens fail.
func (gd *GateDev) Shutdown() {
	gd.mu.Lock()
	defer gd.mu.Unlock()

	if gd.closed {
		return
	}
	gd.closed = true
	db.DPrintf(db.GATEDEV, "%v: shutdown; %d handles open", gd, len(gd.handles))
	if gd.global != nil {
		gd.global.Close()
	}
	for _, e := range gd.handles {
		e.g.Close()
	}
	gd.handles = make(map[dev.Thandle]*handle)
}

// Gate returns the gate behind h, for diagnostics.
func (gd *GateDev) Gate(h dev.Thandle) (*completion.Gate, *serr.Err) {
	return gd.lookup(h)
}

func (gd *GateDev) NHandles() int {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	return len(gd.handles)
}

// NGates returns the number of live per-open gates.
func (gd *GateDev) NGates() int {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	if gd.gates == nil {
		return 1
	}
	return gd.gates.Len()
}

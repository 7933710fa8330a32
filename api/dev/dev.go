// Package dev defines the entry points a registration facility
// dispatches into a device: open, read, write, and close.
package dev

import (
	"context"
	"fmt"
	"strconv"

	"complgate/serr"
	"complgate/task"
)

type Toffset uint64

// Tsize is 64 bits wide so that a write of any in-memory buffer can
// report all of len(src).
type Tsize uint64
type Thandle uint64
type Tmode uint32

const (
	OREAD  Tmode = 0x00
	OWRITE Tmode = 0x01
	ORDWR  Tmode = 0x02
)

const NoHandle Thandle = ^Thandle(0)

func (m Tmode) String() string {
	switch m & 0x3 {
	case OREAD:
		return "r"
	case OWRITE:
		return "w"
	case ORDWR:
		return "rw"
	default:
		return fmt.Sprintf("mode %#x", uint32(m))
	}
}

func (h Thandle) String() string {
	if h == NoHandle {
		return "-1"
	}
	return "h" + strconv.FormatUint(uint64(h), 10)
}

// CtxI is the per-call context.  Context() is cancelled when the
// caller is interrupted (e.g., a signal to a task blocked in read);
// Task() identifies the caller for diagnostics only.
type CtxI interface {
	Context() context.Context
	Task() *task.Task
}

type Device interface {
	Open(ctx CtxI, m Tmode) (Thandle, *serr.Err)
	Read(ctx CtxI, h Thandle, dest []byte, off Toffset) (Tsize, *serr.Err)
	Write(ctx CtxI, h Thandle, src []byte, off Toffset) (Tsize, *serr.Err)
	Close(ctx CtxI, h Thandle) *serr.Err
}
